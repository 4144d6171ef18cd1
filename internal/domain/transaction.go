package domain

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Transaction represents one normalized statement row after ingestion.
// Only CategoryID, MatchedRuleID and Override change after creation, either
// through the categorizer or through a manual override.
type Transaction struct {
	ID          string          `json:"id"`
	UploadID    string          `json:"upload_id"`
	TxnDate     civil.Date      `json:"txn_date"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"` // negative = outflow, positive = inflow
	Currency    string          `json:"currency"`

	CategoryID    *int64 `json:"category_id"`     // nil = unclassified
	MatchedRuleID *int64 `json:"matched_rule_id"` // rule that produced CategoryID, if any
	Override      bool   `json:"override"`        // manual assignment, immune to re-classification

	CreatedAt time.Time `json:"created_at"`
}

// IsOutflow reports whether the transaction moves money out of the account.
func (t Transaction) IsOutflow() bool {
	return t.Amount.IsNegative()
}

// IsInflow reports whether the transaction moves money into the account.
func (t Transaction) IsInflow() bool {
	return t.Amount.IsPositive()
}

// Magnitude returns the absolute amount.
func (t Transaction) Magnitude() decimal.Decimal {
	return t.Amount.Abs()
}

// Upload is the batch that owns a set of transactions and their anomalies.
type Upload struct {
	ID         string       `json:"id"`
	Filename   string       `json:"filename"`
	FileType   string       `json:"file_type"`
	Status     UploadStatus `json:"status"`
	RowCount   int          `json:"row_count"`
	ErrorMsg   string       `json:"error_msg,omitempty"`
	UploadedAt time.Time    `json:"uploaded_at"`
}

// UploadStatus tracks where an upload is in the analysis pipeline.
type UploadStatus string

const (
	UploadStatusPending   UploadStatus = "pending"
	UploadStatusProcessed UploadStatus = "processed"
	UploadStatusFailed    UploadStatus = "failed"
)
