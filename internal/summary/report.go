package summary

import (
	"sort"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-insights/internal/anomaly"
	"github.com/dvloznov/statement-insights/internal/domain"
)

// Line is one transaction as it appears in an upload report.
type Line struct {
	TransactionID string          `json:"transaction_id"`
	TxnDate       civil.Date      `json:"txn_date"`
	Description   string          `json:"description"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	CategoryName  string          `json:"category_name"`
	Override      bool            `json:"override,omitempty"`
}

// Report is the rendered summary of one upload.
type Report struct {
	UploadID    string                 `json:"upload_id"`
	GeneratedAt time.Time              `json:"generated_at"`
	Summary     domain.Summary         `json:"summary"`
	Breakdown   []domain.CategoryTotal `json:"breakdown"`
	Anomalies   []domain.Anomaly       `json:"anomalies"`
	Lines       []Line                 `json:"lines"`
}

// BuildReport assembles the report of an upload. Lines are ordered by date,
// then transaction id; anomalies in review order.
func BuildReport(uploadID string, txns []domain.Transaction, anomalies []domain.Anomaly, categories []domain.Category, at time.Time) Report {
	s := Summarize(txns, anomalies)
	names := domain.CategoryNames(categories)

	lines := make([]Line, 0, len(txns))
	for _, t := range txns {
		lines = append(lines, Line{
			TransactionID: t.ID,
			TxnDate:       t.TxnDate,
			Description:   t.Description,
			Amount:        t.Amount,
			Currency:      t.Currency,
			CategoryName:  categoryName(names, t.CategoryID),
			Override:      t.Override,
		})
	}
	sort.SliceStable(lines, func(i, j int) bool {
		if lines[i].TxnDate != lines[j].TxnDate {
			return lines[i].TxnDate.Before(lines[j].TxnDate)
		}
		return lines[i].TransactionID < lines[j].TransactionID
	})

	ordered := make([]domain.Anomaly, len(anomalies))
	copy(ordered, anomalies)
	anomaly.SortForReview(ordered)

	return Report{
		UploadID:    uploadID,
		GeneratedAt: at.UTC(),
		Summary:     s,
		Breakdown:   Breakdown(s, categories),
		Anomalies:   ordered,
		Lines:       lines,
	}
}
