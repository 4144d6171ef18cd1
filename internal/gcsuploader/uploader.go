package gcsuploader

import (
	"context"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"

	"github.com/dvloznov/statement-insights/internal/gcs"
)

// GCSStorageService is the Cloud Storage implementation of gcs.ObjectStore.
// It assumes Application Default Credentials are configured
// (gcloud auth application-default login).
type GCSStorageService struct {
	client *storage.Client
}

var _ gcs.ObjectStore = (*GCSStorageService)(nil)

// NewGCSStorageService creates a storage client.
func NewGCSStorageService(ctx context.Context) (*GCSStorageService, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSStorageService{client: client}, nil
}

// Close releases the underlying client.
func (s *GCSStorageService) Close() error {
	return s.client.Close()
}

// ReadObject downloads the bytes of a gs:// object.
func (s *GCSStorageService) ReadObject(ctx context.Context, uri string) ([]byte, error) {
	bucket, object, err := gcs.ParseURI(uri)
	if err != nil {
		return nil, err
	}

	rc, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("ReadObject: reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("ReadObject: reading bytes: %w", err)
	}
	return data, nil
}

// WriteObject uploads data to a gs:// object.
func (s *GCSStorageService) WriteObject(ctx context.Context, uri string, data []byte, contentType string) error {
	bucket, object, err := gcs.ParseURI(uri)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("WriteObject: write %s: %w", uri, err)
	}
	// Close finalizes the upload.
	if err := w.Close(); err != nil {
		return fmt.Errorf("WriteObject: finalize %s: %w", uri, err)
	}
	return nil
}
