package postgres

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-insights/internal/domain"
	"github.com/dvloznov/statement-insights/internal/insights"
)

const transactionColumns = `id, upload_id, txn_date, description, amount::text, currency, category_id, matched_rule_id, override, created_at`

// Transactions is the transactions table.
type Transactions struct {
	pool *pgxpool.Pool
}

var _ insights.TransactionRepository = (*Transactions)(nil)

// NewTransactions creates a transaction repository.
func NewTransactions(pool *pgxpool.Pool) *Transactions {
	return &Transactions{pool: pool}
}

func scanTransaction(row scanner) (domain.Transaction, error) {
	var (
		t      domain.Transaction
		date   time.Time
		amount string
	)
	err := row.Scan(&t.ID, &t.UploadID, &date, &t.Description, &amount, &t.Currency,
		&t.CategoryID, &t.MatchedRuleID, &t.Override, &t.CreatedAt)
	if err != nil {
		return domain.Transaction{}, err
	}
	t.TxnDate = civil.DateOf(date)
	t.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	return t, nil
}

// SaveTransactions upserts rows by id in one batch. Amounts and dates are
// written once; later saves only move the categorization fields.
func (r *Transactions) SaveTransactions(ctx context.Context, txns []domain.Transaction) error {
	if len(txns) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, t := range txns {
		createdAt := t.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		batch.Queue(`
			INSERT INTO transactions (id, upload_id, txn_date, description, amount, currency, category_id, matched_rule_id, override, created_at)
			VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10)
			ON CONFLICT (id) DO UPDATE SET
				category_id = EXCLUDED.category_id,
				matched_rule_id = EXCLUDED.matched_rule_id,
				override = EXCLUDED.override
		`, t.ID, t.UploadID, t.TxnDate.In(time.UTC), t.Description, t.Amount.String(), t.Currency,
			t.CategoryID, t.MatchedRuleID, t.Override, createdAt)
	}

	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		if isForeignKeyViolation(err) {
			return &domain.ValidationError{Field: "category_id", Reason: "unknown category or upload"}
		}
		return fmt.Errorf("SaveTransactions: %w", err)
	}
	return nil
}

// SaveClassifications moves the rule-driven fields of existing rows. The
// override guard is evaluated by the UPDATE itself, so a concurrent manual
// override always wins.
func (r *Transactions) SaveClassifications(ctx context.Context, txns []domain.Transaction) error {
	batch := &pgx.Batch{}
	for _, t := range txns {
		if t.Override {
			continue
		}
		batch.Queue(`
			UPDATE transactions
			SET category_id = $2, matched_rule_id = $3
			WHERE id = $1 AND override = false
		`, t.ID, t.CategoryID, t.MatchedRuleID)
	}
	if batch.Len() == 0 {
		return nil
	}

	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		if isForeignKeyViolation(err) {
			return &domain.ValidationError{Field: "category_id", Reason: "unknown category"}
		}
		return fmt.Errorf("SaveClassifications: %w", err)
	}
	return nil
}

func (r *Transactions) GetTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	t, err := scanTransaction(r.pool.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
	if isNoRows(err) {
		return domain.Transaction{}, domain.NewNotFound("transaction", id)
	}
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("GetTransaction: %w", err)
	}
	return t, nil
}

func (r *Transactions) ListTransactions(ctx context.Context, uploadID string) ([]domain.Transaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE upload_id = $1
		ORDER BY txn_date, id
	`, uploadID)
	if err != nil {
		return nil, fmt.Errorf("ListTransactions: %w", err)
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("ListTransactions: scan: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
