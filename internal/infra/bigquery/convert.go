package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-insights/internal/domain"
	"github.com/dvloznov/statement-insights/internal/summary"
)

// numericScale is the fractional precision of BigQuery NUMERIC.
const numericScale = 9

// ratFromDecimal converts to the *big.Rat the client encodes as NUMERIC.
func ratFromDecimal(d decimal.Decimal) *big.Rat {
	return d.Round(numericScale).Rat()
}

// decimalFromRat is the inverse of ratFromDecimal for values read back.
func decimalFromRat(r *big.Rat) decimal.Decimal {
	if r == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigRat(r, numericScale)
}

func nullInt64(p *int64) bigquery.NullInt64 {
	if p == nil {
		return bigquery.NullInt64{}
	}
	return bigquery.NullInt64{Int64: *p, Valid: true}
}

// Snapshot is everything exported for one upload in one run.
type Snapshot struct {
	Transactions []*TransactionRow
	Anomalies    []*AnomalyRow
	Summary      *SummaryRow
}

// NewSnapshot converts a rendered report into warehouse rows.
func NewSnapshot(exportID string, r summary.Report, txns []domain.Transaction, exportedAt time.Time) Snapshot {
	names := make(map[string]string, len(r.Lines))
	for _, l := range r.Lines {
		names[l.TransactionID] = l.CategoryName
	}

	snap := Snapshot{
		Transactions: make([]*TransactionRow, 0, len(txns)),
		Anomalies:    make([]*AnomalyRow, 0, len(r.Anomalies)),
	}

	for _, t := range txns {
		row := &TransactionRow{
			ExportID:        exportID,
			TransactionID:   t.ID,
			UploadID:        t.UploadID,
			TransactionDate: t.TxnDate,
			Description:     t.Description,
			Amount:          ratFromDecimal(t.Amount),
			Currency:        t.Currency,
			CategoryID:      nullInt64(t.CategoryID),
			MatchedRuleID:   nullInt64(t.MatchedRuleID),
			Override:        t.Override,
			ExportedTS:      exportedAt,
		}
		if t.CategoryID != nil {
			row.CategoryName = bigquery.NullString{StringVal: names[t.ID], Valid: names[t.ID] != ""}
		}
		snap.Transactions = append(snap.Transactions, row)
	}

	for _, a := range r.Anomalies {
		row := &AnomalyRow{
			ExportID:      exportID,
			AnomalyID:     a.ID,
			TransactionID: a.TransactionID,
			UploadID:      a.UploadID,
			RuleName:      a.RuleName,
			Severity:      a.Severity.String(),
			Detail:        a.Detail,
			Status:        string(a.Status),
			CreatedTS:     a.CreatedAt,
			ExportedTS:    exportedAt,
		}
		if a.ReviewedAt != nil {
			row.ReviewedTS = bigquery.NullTimestamp{Timestamp: *a.ReviewedAt, Valid: true}
		}
		snap.Anomalies = append(snap.Anomalies, row)
	}

	byCategory := make([]CategoryAmountRow, 0, len(r.Breakdown))
	for _, ct := range r.Breakdown {
		byCategory = append(byCategory, CategoryAmountRow{
			CategoryID:   nullInt64(ct.CategoryID),
			CategoryName: ct.Name,
			Amount:       ratFromDecimal(ct.Amount),
		})
	}
	snap.Summary = &SummaryRow{
		ExportID:     exportID,
		UploadID:     r.UploadID,
		TotalIncome:  ratFromDecimal(r.Summary.TotalIncome),
		TotalExpense: ratFromDecimal(r.Summary.TotalExpense),
		NetBalance:   ratFromDecimal(r.Summary.NetBalance),
		AnomalyCount: int64(r.Summary.AnomalyCount),
		TxnCount:     int64(r.Summary.TxnCount),
		ByCategory:   byCategory,
		ExportedTS:   exportedAt,
	}
	return snap
}

// UploadTotals is a warehouse summary read back for reporting.
type UploadTotals struct {
	UploadID     string
	TotalIncome  decimal.Decimal
	TotalExpense decimal.Decimal
	NetBalance   decimal.Decimal
	AnomalyCount int
	ExportedAt   time.Time
}

func (r *SummaryRow) totals() UploadTotals {
	return UploadTotals{
		UploadID:     r.UploadID,
		TotalIncome:  decimalFromRat(r.TotalIncome),
		TotalExpense: decimalFromRat(r.TotalExpense),
		NetBalance:   decimalFromRat(r.NetBalance),
		AnomalyCount: int(r.AnomalyCount),
		ExportedAt:   r.ExportedTS,
	}
}
