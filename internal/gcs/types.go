// Package gcs holds the object storage contract shared by the row reader and
// the report publisher.
package gcs

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// ObjectStore reads and writes whole objects addressed by gs:// URIs.
type ObjectStore interface {
	// ReadObject downloads the object bytes.
	ReadObject(ctx context.Context, uri string) ([]byte, error)

	// WriteObject uploads data, replacing any existing object.
	WriteObject(ctx context.Context, uri string, data []byte, contentType string) error
}

// Scheme is the URI prefix of Cloud Storage objects.
const Scheme = "gs://"

// IsURI reports whether s looks like a gs:// URI.
func IsURI(s string) bool {
	return strings.HasPrefix(s, Scheme)
}

// ParseURI splits gs://bucket/path/to/object into bucket and object name.
func ParseURI(uri string) (bucket, object string, err error) {
	if !IsURI(uri) {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, Scheme), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// URI builds gs://bucket/object.
func URI(bucket, object string) string {
	return Scheme + bucket + "/" + strings.TrimPrefix(object, "/")
}

// Filename returns the last path element of a URI,
// e.g. "gs://bucket/folder/jan.csv" → "jan.csv".
func Filename(uri string) string {
	trimmed := strings.TrimPrefix(uri, Scheme)
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}
	return path.Base(parts[1])
}
