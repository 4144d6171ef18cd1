package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/dvloznov/statement-insights/internal/domain"
	"github.com/dvloznov/statement-insights/internal/gcs"
	"github.com/dvloznov/statement-insights/internal/gcsuploader"
	"github.com/dvloznov/statement-insights/internal/insights"
	"github.com/dvloznov/statement-insights/internal/rows"
	"github.com/dvloznov/statement-insights/internal/summary"
)

// UploadService is the part of insights.Service the pipeline drives.
type UploadService interface {
	CreateUpload(ctx context.Context, upload domain.Upload, txns []domain.Transaction) (domain.Upload, error)
	AnalyzeUpload(ctx context.Context, uploadID string) (insights.AnalysisResult, error)
	UploadTransactions(ctx context.Context, uploadID string) ([]domain.Transaction, error)
	UploadReport(ctx context.Context, uploadID string) (summary.Report, error)
}

var _ UploadService = (*insights.Service)(nil)

// ObjectStore is gcs.ObjectStore.
type ObjectStore = gcs.ObjectStore

// Warehouse receives analyzed uploads; see infra/bigquery.Exporter.
type Warehouse interface {
	ExportUpload(ctx context.Context, r summary.Report, txns []domain.Transaction) (string, error)
}

// LoadRowsStep decodes the rows file at State.Source.
type LoadRowsStep struct {
	Objects ObjectStore
}

func (s *LoadRowsStep) Name() string { return "load_rows" }

func (s *LoadRowsStep) Execute(ctx context.Context, state *State) error {
	txns, err := rows.Load(ctx, state.Source, s.Objects)
	if err != nil {
		return err
	}
	if len(txns) == 0 {
		return &domain.ValidationError{Field: "source", Reason: fmt.Sprintf("%s has no rows", state.Source)}
	}
	if state.Filename == "" {
		if gcs.IsURI(state.Source) {
			state.Filename = gcs.Filename(state.Source)
		} else {
			state.Filename = filepath.Base(state.Source)
		}
	}
	state.Transactions = txns
	return nil
}

// CreateUploadStep registers State.Transactions as a pending upload.
type CreateUploadStep struct {
	Service UploadService
}

func (s *CreateUploadStep) Name() string { return "create_upload" }

func (s *CreateUploadStep) Execute(ctx context.Context, state *State) error {
	format, err := rows.DetectFormat(state.Filename)
	if err != nil {
		format = ""
	}
	upload, err := s.Service.CreateUpload(ctx, domain.Upload{
		ID:       state.UploadID,
		Filename: state.Filename,
		FileType: string(format),
	}, state.Transactions)
	if err != nil {
		return err
	}
	state.UploadID = upload.ID
	return nil
}

// AnalyzeStep classifies and scans the upload.
type AnalyzeStep struct {
	Service UploadService
}

func (s *AnalyzeStep) Name() string { return "analyze" }

func (s *AnalyzeStep) Execute(ctx context.Context, state *State) error {
	res, err := s.Service.AnalyzeUpload(ctx, state.UploadID)
	if err != nil {
		return err
	}
	state.Result = res
	return nil
}

// BuildReportStep renders the current state of the upload.
type BuildReportStep struct {
	Service UploadService
}

func (s *BuildReportStep) Name() string { return "build_report" }

func (s *BuildReportStep) Execute(ctx context.Context, state *State) error {
	r, err := s.Service.UploadReport(ctx, state.UploadID)
	if err != nil {
		return err
	}
	state.Report = r
	return nil
}

// PublishReportStep writes the report JSON to Cloud Storage.
type PublishReportStep struct {
	Objects ObjectStore
	Bucket  string
	Prefix  string
}

func (s *PublishReportStep) Name() string { return "publish_report" }

func (s *PublishReportStep) Execute(ctx context.Context, state *State) error {
	uri, err := gcsuploader.PublishReport(ctx, s.Objects, s.Bucket, s.Prefix, state.Report)
	if err != nil {
		return err
	}
	state.ReportURI = uri
	return nil
}

// ExportStep appends a snapshot of the upload to the warehouse.
type ExportStep struct {
	Service   UploadService
	Warehouse Warehouse
}

func (s *ExportStep) Name() string { return "export_warehouse" }

func (s *ExportStep) Execute(ctx context.Context, state *State) error {
	txns, err := s.Service.UploadTransactions(ctx, state.UploadID)
	if err != nil {
		return err
	}
	exportID, err := s.Warehouse.ExportUpload(ctx, state.Report, txns)
	if err != nil {
		return err
	}
	state.ExportID = exportID
	return nil
}
