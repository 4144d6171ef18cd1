package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
)

// TransactionRow is one exported transaction. Exports are append-only
// snapshots keyed by ExportID.
type TransactionRow struct {
	ExportID      string `bigquery:"export_id"`      // REQUIRED
	TransactionID string `bigquery:"transaction_id"` // REQUIRED
	UploadID      string `bigquery:"upload_id"`      // REQUIRED

	TransactionDate civil.Date `bigquery:"transaction_date"` // REQUIRED
	Description     string     `bigquery:"description"`      // REQUIRED
	Amount          *big.Rat   `bigquery:"amount"`           // REQUIRED NUMERIC
	Currency        string     `bigquery:"currency"`         // REQUIRED

	CategoryID    bigquery.NullInt64  `bigquery:"category_id"`     // NULLABLE
	CategoryName  bigquery.NullString `bigquery:"category_name"`   // NULLABLE
	MatchedRuleID bigquery.NullInt64  `bigquery:"matched_rule_id"` // NULLABLE
	Override      bool                `bigquery:"override"`

	ExportedTS time.Time `bigquery:"exported_ts"` // REQUIRED
}

// AnomalyRow is one exported anomaly with its review state at export time.
type AnomalyRow struct {
	ExportID      string `bigquery:"export_id"`
	AnomalyID     string `bigquery:"anomaly_id"`
	TransactionID string `bigquery:"transaction_id"`
	UploadID      string `bigquery:"upload_id"`

	RuleName string `bigquery:"rule_name"`
	Severity string `bigquery:"severity"`
	Detail   string `bigquery:"detail"`
	Status   string `bigquery:"status"`

	ReviewedTS bigquery.NullTimestamp `bigquery:"reviewed_ts"` // NULLABLE
	CreatedTS  time.Time              `bigquery:"created_ts"`
	ExportedTS time.Time              `bigquery:"exported_ts"`
}

// CategoryAmountRow is a REPEATED RECORD inside SummaryRow.
type CategoryAmountRow struct {
	CategoryID   bigquery.NullInt64 `bigquery:"category_id"` // NULL for the uncategorized remainder
	CategoryName string             `bigquery:"category_name"`
	Amount       *big.Rat           `bigquery:"amount"`
}

// SummaryRow is the per-upload summary at export time.
type SummaryRow struct {
	ExportID     string              `bigquery:"export_id"`
	UploadID     string              `bigquery:"upload_id"`
	TotalIncome  *big.Rat            `bigquery:"total_income"`
	TotalExpense *big.Rat            `bigquery:"total_expense"`
	NetBalance   *big.Rat            `bigquery:"net_balance"`
	AnomalyCount int64               `bigquery:"anomaly_count"`
	TxnCount     int64               `bigquery:"txn_count"`
	ByCategory   []CategoryAmountRow `bigquery:"by_category"`
	ExportedTS   time.Time           `bigquery:"exported_ts"`
}
