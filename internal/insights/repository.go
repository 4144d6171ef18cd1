package insights

import (
	"context"

	"github.com/dvloznov/statement-insights/internal/domain"
	"github.com/dvloznov/statement-insights/internal/rules"
)

// TransactionRepository persists transactions keyed by their owning upload.
type TransactionRepository interface {
	// SaveTransactions inserts or replaces transactions by id.
	SaveTransactions(ctx context.Context, txns []domain.Transaction) error

	// SaveClassifications writes only the category and matched rule of
	// each transaction, and only where the stored row is not an override.
	// Rows pinned in the meantime keep their manual category.
	SaveClassifications(ctx context.Context, txns []domain.Transaction) error

	// GetTransaction returns one transaction by id.
	GetTransaction(ctx context.Context, id string) (domain.Transaction, error)

	// ListTransactions returns the transactions of an upload ordered by date, then id.
	ListTransactions(ctx context.Context, uploadID string) ([]domain.Transaction, error)
}

// UploadRepository tracks upload batches through the analysis pipeline.
type UploadRepository interface {
	CreateUpload(ctx context.Context, upload domain.Upload) error
	GetUpload(ctx context.Context, id string) (domain.Upload, error)
	UpdateUploadStatus(ctx context.Context, id string, status domain.UploadStatus, rowCount int, errorMsg string) error
}

// CategoryRepository serves the process-wide category reference data.
type CategoryRepository interface {
	rules.CategoryLookup
	ListCategories(ctx context.Context) ([]domain.Category, error)
}
