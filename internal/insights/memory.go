package insights

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dvloznov/statement-insights/internal/anomaly"
	"github.com/dvloznov/statement-insights/internal/domain"
	"github.com/dvloznov/statement-insights/internal/rules"
)

// NewMemoryService wires a Service over in-process stores seeded with the
// default categories and system rules.
func NewMemoryService(ctx context.Context, detector *anomaly.Detector) (*Service, error) {
	categories := rules.NewMemoryCategories()
	store := rules.NewMemoryStore(categories)
	if err := rules.Seed(ctx, categories, store); err != nil {
		return nil, fmt.Errorf("NewMemoryService: %w", err)
	}
	return NewService(Deps{
		Rules:        store,
		Categories:   categories,
		Transactions: NewMemoryTransactions(),
		Uploads:      NewMemoryUploads(),
		Anomalies:    anomaly.NewMemoryStore(),
		Detector:     detector,
	}), nil
}

// MemoryTransactions is an in-process TransactionRepository. Data is lost on
// restart.
type MemoryTransactions struct {
	mu   sync.RWMutex
	txns map[string]domain.Transaction
}

// NewMemoryTransactions creates an empty repository.
func NewMemoryTransactions() *MemoryTransactions {
	return &MemoryTransactions{txns: make(map[string]domain.Transaction)}
}

func (r *MemoryTransactions) SaveTransactions(ctx context.Context, txns []domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range txns {
		r.txns[t.ID] = copyTransaction(t)
	}
	return nil
}

func (r *MemoryTransactions) SaveClassifications(ctx context.Context, txns []domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range txns {
		stored, ok := r.txns[t.ID]
		if !ok || stored.Override || t.Override {
			continue
		}
		c := copyTransaction(t)
		stored.CategoryID = c.CategoryID
		stored.MatchedRuleID = c.MatchedRuleID
		r.txns[t.ID] = stored
	}
	return nil
}

func (r *MemoryTransactions) GetTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.txns[id]
	if !ok {
		return domain.Transaction{}, domain.NewNotFound("transaction", id)
	}
	return copyTransaction(t), nil
}

func (r *MemoryTransactions) ListTransactions(ctx context.Context, uploadID string) ([]domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Transaction
	for _, t := range r.txns {
		if t.UploadID == uploadID {
			out = append(out, copyTransaction(t))
		}
	}
	SortTransactions(out)
	return out, nil
}

// copyTransaction detaches the pointer fields so callers cannot mutate stored rows.
func copyTransaction(t domain.Transaction) domain.Transaction {
	if t.CategoryID != nil {
		v := *t.CategoryID
		t.CategoryID = &v
	}
	if t.MatchedRuleID != nil {
		v := *t.MatchedRuleID
		t.MatchedRuleID = &v
	}
	return t
}

// SortTransactions orders transactions by date, then id.
func SortTransactions(txns []domain.Transaction) {
	sort.SliceStable(txns, func(i, j int) bool {
		if txns[i].TxnDate != txns[j].TxnDate {
			return txns[i].TxnDate.Before(txns[j].TxnDate)
		}
		return txns[i].ID < txns[j].ID
	})
}

// MemoryUploads is an in-process UploadRepository.
type MemoryUploads struct {
	mu      sync.RWMutex
	uploads map[string]domain.Upload
}

// NewMemoryUploads creates an empty repository.
func NewMemoryUploads() *MemoryUploads {
	return &MemoryUploads{uploads: make(map[string]domain.Upload)}
}

func (r *MemoryUploads) CreateUpload(ctx context.Context, upload domain.Upload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uploads[upload.ID] = upload
	return nil
}

func (r *MemoryUploads) GetUpload(ctx context.Context, id string) (domain.Upload, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.uploads[id]
	if !ok {
		return domain.Upload{}, domain.NewNotFound("upload", id)
	}
	return u, nil
}

func (r *MemoryUploads) UpdateUploadStatus(ctx context.Context, id string, status domain.UploadStatus, rowCount int, errorMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.uploads[id]
	if !ok {
		return domain.NewNotFound("upload", id)
	}
	u.Status = status
	u.RowCount = rowCount
	u.ErrorMsg = errorMsg
	r.uploads[id] = u
	return nil
}

var (
	_ TransactionRepository = (*MemoryTransactions)(nil)
	_ UploadRepository      = (*MemoryUploads)(nil)
)
