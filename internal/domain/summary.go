package domain

import "github.com/shopspring/decimal"

// Summary is derived from a transaction set and its anomalies; it is never stored.
type Summary struct {
	TotalIncome  decimal.Decimal           `json:"total_income"`
	TotalExpense decimal.Decimal           `json:"total_expense"`
	NetBalance   decimal.Decimal           `json:"net_balance"`
	AnomalyCount int                       `json:"anomaly_count"`
	TxnCount     int                       `json:"txn_count"`
	ByCategory   map[int64]decimal.Decimal `json:"by_category"`
}

// CategoryTotal is one line of a named category breakdown.
type CategoryTotal struct {
	CategoryID *int64          `json:"category_id"`
	Name       string          `json:"name"`
	Amount     decimal.Decimal `json:"amount"`
}
