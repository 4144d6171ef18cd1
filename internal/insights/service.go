// Package insights is the application service over the categorization,
// anomaly and summary core. Handlers, jobs and binaries talk to it only.
package insights

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/statement-insights/internal/anomaly"
	"github.com/dvloznov/statement-insights/internal/categorizer"
	"github.com/dvloznov/statement-insights/internal/domain"
	"github.com/dvloznov/statement-insights/internal/logger"
	"github.com/dvloznov/statement-insights/internal/rules"
	"github.com/dvloznov/statement-insights/internal/summary"
)

// Deps are the collaborators of a Service.
type Deps struct {
	Rules        rules.Store
	Categories   CategoryRepository
	Transactions TransactionRepository
	Uploads      UploadRepository
	Anomalies    anomaly.Store
	Detector     *anomaly.Detector
	Now          func() time.Time
}

// Service implements the external operations.
type Service struct {
	rules        rules.Store
	categories   CategoryRepository
	transactions TransactionRepository
	uploads      UploadRepository
	anomalies    anomaly.Store
	engine       *categorizer.Engine
	detector     *anomaly.Detector
	now          func() time.Time
}

// NewService wires a Service. A nil Detector uses the default config.
func NewService(deps Deps) *Service {
	if deps.Detector == nil {
		deps.Detector = anomaly.NewDetector(anomaly.DefaultConfig())
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{
		rules:        deps.Rules,
		categories:   deps.Categories,
		transactions: deps.Transactions,
		uploads:      deps.Uploads,
		anomalies:    deps.Anomalies,
		engine:       categorizer.NewEngine(deps.Rules),
		detector:     deps.Detector,
		now:          deps.Now,
	}
}

// AnalysisResult reports one run of the upload pipeline.
type AnalysisResult struct {
	UploadID     string           `json:"upload_id"`
	Evaluated    int              `json:"evaluated"`
	Matched      int              `json:"matched"`
	Skipped      int              `json:"skipped"`
	NewAnomalies []domain.Anomaly `json:"new_anomalies"`
	Summary      domain.Summary   `json:"summary"`
}

// ListRules returns the rules in evaluation order.
func (s *Service) ListRules(ctx context.Context) ([]domain.Rule, error) {
	list, err := s.rules.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListRules: %w", err)
	}
	return list, nil
}

// AddRule creates a user rule.
func (s *Service) AddRule(ctx context.Context, keyword string, categoryID int64, priority *int) (domain.Rule, error) {
	r, err := s.rules.Add(ctx, keyword, categoryID, priority)
	if err != nil {
		return domain.Rule{}, fmt.Errorf("AddRule: %w", err)
	}
	log := logger.FromContext(ctx)
	log.Info().
		Int64("rule_id", r.ID).
		Str("keyword", r.Keyword).
		Int64("category_id", r.CategoryID).
		Int("priority", r.Priority).
		Msg("Rule added")
	return r, nil
}

// UpdateRule edits a user rule. A nil priority keeps the current value.
func (s *Service) UpdateRule(ctx context.Context, id int64, keyword string, categoryID int64, priority *int) (domain.Rule, error) {
	r, err := s.rules.Update(ctx, id, keyword, categoryID, priority)
	if err != nil {
		return domain.Rule{}, fmt.Errorf("UpdateRule: %w", err)
	}
	log := logger.FromContext(ctx)
	log.Info().Int64("rule_id", r.ID).Msg("Rule updated")
	return r, nil
}

// DeleteRule removes a user rule.
func (s *Service) DeleteRule(ctx context.Context, id int64) error {
	if err := s.rules.Delete(ctx, id); err != nil {
		return fmt.Errorf("DeleteRule: %w", err)
	}
	log := logger.FromContext(ctx)
	log.Info().Int64("rule_id", id).Msg("Rule deleted")
	return nil
}

// ListCategories returns the category catalog.
func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	list, err := s.categories.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListCategories: %w", err)
	}
	return list, nil
}

// ClassifyBatch classifies txns against the current rules without persisting them.
func (s *Service) ClassifyBatch(ctx context.Context, txns []domain.Transaction) (categorizer.BatchResult, error) {
	res, err := s.engine.ClassifyBatch(ctx, txns)
	if err != nil {
		return categorizer.BatchResult{}, fmt.Errorf("ClassifyBatch: %w", err)
	}
	return res, nil
}

// DryRun reports which rule would categorize description.
func (s *Service) DryRun(ctx context.Context, description string) (categorizer.Result, *domain.Rule, error) {
	return s.engine.DryRun(ctx, description)
}

// OverrideCategory pins a stored transaction to categoryID.
func (s *Service) OverrideCategory(ctx context.Context, txnID string, categoryID int64) (domain.Transaction, error) {
	ok, err := s.categories.CategoryExists(ctx, categoryID)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("OverrideCategory: %w", err)
	}
	if !ok {
		return domain.Transaction{}, fmt.Errorf("OverrideCategory: %w",
			&domain.ValidationError{Field: "category_id", Reason: "unknown category"})
	}

	txn, err := s.transactions.GetTransaction(ctx, txnID)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("OverrideCategory: %w", err)
	}
	txn = categorizer.OverrideCategory(txn, categoryID)
	if err := s.transactions.SaveTransactions(ctx, []domain.Transaction{txn}); err != nil {
		return domain.Transaction{}, fmt.Errorf("OverrideCategory: save: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("transaction_id", txnID).
		Int64("category_id", categoryID).
		Msg("Category overridden")
	return txn, nil
}

// DetectAnomalies runs the detector over txns. Nothing is persisted.
func (s *Service) DetectAnomalies(txns []domain.Transaction) []domain.Anomaly {
	return s.detector.Detect(txns)
}

// ReviewAnomaly applies a confirm or dismiss decision.
func (s *Service) ReviewAnomaly(ctx context.Context, id, decision string) (domain.Anomaly, error) {
	return anomaly.Review(ctx, s.anomalies, id, decision, s.now())
}

// Summarize aggregates txns and anomalies.
func (s *Service) Summarize(txns []domain.Transaction, anomalies []domain.Anomaly) domain.Summary {
	return summary.Summarize(txns, anomalies)
}

// CreateUpload registers a pending upload and stores its rows. Missing ids
// are generated and every row is attached to the upload.
func (s *Service) CreateUpload(ctx context.Context, upload domain.Upload, txns []domain.Transaction) (domain.Upload, error) {
	if upload.ID == "" {
		upload.ID = uuid.New().String()
	}
	upload.Status = domain.UploadStatusPending
	upload.RowCount = len(txns)
	if upload.UploadedAt.IsZero() {
		upload.UploadedAt = s.now().UTC()
	}

	rows := make([]domain.Transaction, len(txns))
	for i, t := range txns {
		if t.ID == "" {
			t.ID = uuid.New().String()
		}
		t.UploadID = upload.ID
		if t.CreatedAt.IsZero() {
			t.CreatedAt = upload.UploadedAt
		}
		rows[i] = t
	}

	if err := s.uploads.CreateUpload(ctx, upload); err != nil {
		return domain.Upload{}, fmt.Errorf("CreateUpload: %w", err)
	}
	if err := s.transactions.SaveTransactions(ctx, rows); err != nil {
		return domain.Upload{}, fmt.Errorf("CreateUpload: save transactions: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("upload_id", upload.ID).
		Str("filename", upload.Filename).
		Int("rows", len(rows)).
		Msg("Upload created")
	return upload, nil
}

// AnalyzeUpload classifies the upload's transactions, persists the result,
// detects anomalies and stores the ones not already recorded. Running it
// again after a rule change re-classifies everything except overrides and
// never duplicates anomalies.
func (s *Service) AnalyzeUpload(ctx context.Context, uploadID string) (AnalysisResult, error) {
	log := logger.FromContext(ctx).With().Str("upload_id", uploadID).Logger()
	ctx = logger.WithContext(ctx, log)

	res, err := s.analyze(ctx, uploadID)
	if err != nil {
		if _, getErr := s.uploads.GetUpload(ctx, uploadID); getErr == nil {
			if markErr := s.uploads.UpdateUploadStatus(ctx, uploadID, domain.UploadStatusFailed, 0, err.Error()); markErr != nil {
				log.Error().Err(markErr).Msg("Failed to mark upload as failed")
			}
		}
		log.Error().Err(err).Msg("Upload analysis failed")
		return AnalysisResult{}, fmt.Errorf("AnalyzeUpload: %w", err)
	}

	log.Info().
		Int("evaluated", res.Evaluated).
		Int("matched", res.Matched).
		Int("new_anomalies", len(res.NewAnomalies)).
		Msg("Upload analyzed")
	return res, nil
}

func (s *Service) analyze(ctx context.Context, uploadID string) (AnalysisResult, error) {
	if _, err := s.uploads.GetUpload(ctx, uploadID); err != nil {
		return AnalysisResult{}, err
	}

	txns, err := s.transactions.ListTransactions(ctx, uploadID)
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("list transactions: %w", err)
	}

	batch, err := s.engine.ClassifyBatch(ctx, txns)
	if err != nil {
		return AnalysisResult{}, err
	}
	if err := s.transactions.SaveClassifications(ctx, batch.Transactions); err != nil {
		return AnalysisResult{}, fmt.Errorf("save classification: %w", err)
	}
	// Re-read so overrides made while classifying are reflected below.
	txns, err = s.transactions.ListTransactions(ctx, uploadID)
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("list transactions: %w", err)
	}

	existing, err := s.anomalies.ListByUpload(ctx, uploadID)
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("list anomalies: %w", err)
	}
	fresh := anomaly.Dedupe(existing, s.detector.Detect(txns))
	inserted, err := s.anomalies.SaveNew(ctx, fresh)
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("save anomalies: %w", err)
	}

	if err := s.uploads.UpdateUploadStatus(ctx, uploadID, domain.UploadStatusProcessed, len(txns), ""); err != nil {
		return AnalysisResult{}, fmt.Errorf("mark processed: %w", err)
	}

	all := append(existing, inserted...)
	return AnalysisResult{
		UploadID:     uploadID,
		Evaluated:    batch.Evaluated,
		Matched:      batch.Matched,
		Skipped:      batch.Skipped,
		NewAnomalies: inserted,
		Summary:      summary.Summarize(txns, all),
	}, nil
}

// GetUpload returns an upload by id.
func (s *Service) GetUpload(ctx context.Context, uploadID string) (domain.Upload, error) {
	u, err := s.uploads.GetUpload(ctx, uploadID)
	if err != nil {
		return domain.Upload{}, fmt.Errorf("GetUpload: %w", err)
	}
	return u, nil
}

// UploadTransactions returns the stored transactions of an upload.
func (s *Service) UploadTransactions(ctx context.Context, uploadID string) ([]domain.Transaction, error) {
	if _, err := s.uploads.GetUpload(ctx, uploadID); err != nil {
		return nil, fmt.Errorf("UploadTransactions: %w", err)
	}
	txns, err := s.transactions.ListTransactions(ctx, uploadID)
	if err != nil {
		return nil, fmt.Errorf("UploadTransactions: %w", err)
	}
	return txns, nil
}

// UploadAnomalies returns the anomalies of an upload in review order.
func (s *Service) UploadAnomalies(ctx context.Context, uploadID string) ([]domain.Anomaly, error) {
	if _, err := s.uploads.GetUpload(ctx, uploadID); err != nil {
		return nil, fmt.Errorf("UploadAnomalies: %w", err)
	}
	list, err := s.anomalies.ListByUpload(ctx, uploadID)
	if err != nil {
		return nil, fmt.Errorf("UploadAnomalies: %w", err)
	}
	return list, nil
}

// UploadSummary summarizes the stored state of an upload.
func (s *Service) UploadSummary(ctx context.Context, uploadID string) (domain.Summary, error) {
	txns, anomalies, err := s.uploadState(ctx, uploadID)
	if err != nil {
		return domain.Summary{}, fmt.Errorf("UploadSummary: %w", err)
	}
	return summary.Summarize(txns, anomalies), nil
}

// UploadReport renders the full report of an upload with category names.
func (s *Service) UploadReport(ctx context.Context, uploadID string) (summary.Report, error) {
	txns, anomalies, err := s.uploadState(ctx, uploadID)
	if err != nil {
		return summary.Report{}, fmt.Errorf("UploadReport: %w", err)
	}
	categories, err := s.categories.ListCategories(ctx)
	if err != nil {
		return summary.Report{}, fmt.Errorf("UploadReport: list categories: %w", err)
	}
	return summary.BuildReport(uploadID, txns, anomalies, categories, s.now()), nil
}

func (s *Service) uploadState(ctx context.Context, uploadID string) ([]domain.Transaction, []domain.Anomaly, error) {
	txns, err := s.UploadTransactions(ctx, uploadID)
	if err != nil {
		return nil, nil, err
	}
	anomalies, err := s.anomalies.ListByUpload(ctx, uploadID)
	if err != nil {
		return nil, nil, err
	}
	return txns, anomalies, nil
}
