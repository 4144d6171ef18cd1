// Package gcsuploader publishes upload reports to Cloud Storage and reads
// normalized row files from it.
package gcsuploader

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dvloznov/statement-insights/internal/gcs"
	"github.com/dvloznov/statement-insights/internal/logger"
	"github.com/dvloznov/statement-insights/internal/summary"
)

// ReportObjectName is the object path of an upload report under prefix.
func ReportObjectName(prefix, uploadID string) string {
	name := fmt.Sprintf("uploads/%s/report.json", uploadID)
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// PublishReport writes r as JSON to bucket and returns its URI.
func PublishReport(ctx context.Context, store gcs.ObjectStore, bucket, prefix string, r summary.Report) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("PublishReport: marshal: %w", err)
	}

	uri := gcs.URI(bucket, ReportObjectName(prefix, r.UploadID))
	if err := store.WriteObject(ctx, uri, data, "application/json"); err != nil {
		return "", fmt.Errorf("PublishReport: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("upload_id", r.UploadID).
		Str("uri", uri).
		Int("bytes", len(data)).
		Msg("Report published")
	return uri, nil
}
