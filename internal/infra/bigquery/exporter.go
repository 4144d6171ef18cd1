// Package bigquery exports analyzed uploads to the BigQuery warehouse and
// manages the warehouse schema.
package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/statement-insights/internal/domain"
	"github.com/dvloznov/statement-insights/internal/logger"
	"github.com/dvloznov/statement-insights/internal/summary"
)

const (
	transactionsTable = "transactions"
	anomaliesTable    = "anomalies"
	summariesTable    = "upload_summaries"
)

// Warehouse receives analyzed uploads.
type Warehouse interface {
	ExportUpload(ctx context.Context, r summary.Report, txns []domain.Transaction) (string, error)
	Close() error
}

// Exporter is the BigQuery Warehouse. It holds one shared client.
type Exporter struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	now       func() time.Time
}

var _ Warehouse = (*Exporter)(nil)

// NewExporter creates an exporter for projectID.datasetID.
func NewExporter(ctx context.Context, projectID, datasetID string) (*Exporter, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewExporter: creating client: %w", err)
	}
	return &Exporter{client: client, projectID: projectID, datasetID: datasetID, now: time.Now}, nil
}

// Close closes the BigQuery client connection.
func (e *Exporter) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

// ExportUpload appends a snapshot of the upload and returns its export id.
func (e *Exporter) ExportUpload(ctx context.Context, r summary.Report, txns []domain.Transaction) (string, error) {
	exportID := uuid.NewString()
	snap := NewSnapshot(exportID, r, txns, e.now().UTC())

	if err := ExportSnapshotWithClient(ctx, e.client, e.projectID, e.datasetID, snap); err != nil {
		return "", err
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("upload_id", r.UploadID).
		Str("export_id", exportID).
		Int("transactions", len(snap.Transactions)).
		Int("anomalies", len(snap.Anomalies)).
		Msg("Upload exported to BigQuery")
	return exportID, nil
}

// ExportSnapshotWithClient streams the snapshot rows into the warehouse
// tables using the provided client.
func ExportSnapshotWithClient(ctx context.Context, client *bigquery.Client, projectID, datasetID string, snap Snapshot) error {
	dataset := client.DatasetInProject(projectID, datasetID)

	if len(snap.Transactions) > 0 {
		if err := dataset.Table(transactionsTable).Inserter().Put(ctx, snap.Transactions); err != nil {
			return fmt.Errorf("ExportSnapshot: inserting transactions: %w", err)
		}
	}
	if len(snap.Anomalies) > 0 {
		if err := dataset.Table(anomaliesTable).Inserter().Put(ctx, snap.Anomalies); err != nil {
			return fmt.Errorf("ExportSnapshot: inserting anomalies: %w", err)
		}
	}
	if snap.Summary != nil {
		if err := dataset.Table(summariesTable).Inserter().Put(ctx, snap.Summary); err != nil {
			return fmt.Errorf("ExportSnapshot: inserting summary: %w", err)
		}
	}
	return nil
}

// LatestSummaries returns the most recent export of each upload exported
// between from and to, newest first.
func (e *Exporter) LatestSummaries(ctx context.Context, from, to time.Time) ([]UploadTotals, error) {
	return LatestSummariesWithClient(ctx, e.client, e.projectID, e.datasetID, from, to)
}

// LatestSummariesWithClient is LatestSummaries with the provided client.
func LatestSummariesWithClient(ctx context.Context, client *bigquery.Client, projectID, datasetID string, from, to time.Time) ([]UploadTotals, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT * EXCEPT (rn)
		FROM (
			SELECT s.*, ROW_NUMBER() OVER (PARTITION BY upload_id ORDER BY exported_ts DESC) AS rn
			FROM `+"`%s.%s.%s`"+` s
			WHERE exported_ts BETWEEN @from_ts AND @to_ts
		)
		WHERE rn = 1
		ORDER BY exported_ts DESC
	`, projectID, datasetID, summariesTable))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "from_ts", Value: from},
		{Name: "to_ts", Value: to},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("LatestSummaries: query read: %w", err)
	}

	var out []UploadTotals
	for {
		var row SummaryRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("LatestSummaries: iter next: %w", err)
		}
		out = append(out, row.totals())
	}
	return out, nil
}
