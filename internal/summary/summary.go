// Package summary aggregates transactions into income, expense and
// per-category totals.
package summary

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-insights/internal/domain"
)

// Summarize computes the summary of txns. All sums are exact decimals, so the
// result is identical across runs and TotalIncome - TotalExpense equals
// NetBalance exactly. Outflows without a category count toward TotalExpense
// but not toward ByCategory.
func Summarize(txns []domain.Transaction, anomalies []domain.Anomaly) domain.Summary {
	s := domain.Summary{
		TotalIncome:  decimal.Zero,
		TotalExpense: decimal.Zero,
		TxnCount:     len(txns),
		ByCategory:   make(map[int64]decimal.Decimal),
	}

	for _, t := range txns {
		switch {
		case t.IsInflow():
			s.TotalIncome = s.TotalIncome.Add(t.Amount)
		case t.IsOutflow():
			mag := t.Magnitude()
			s.TotalExpense = s.TotalExpense.Add(mag)
			if t.CategoryID != nil {
				s.ByCategory[*t.CategoryID] = s.ByCategory[*t.CategoryID].Add(mag)
			}
		}
	}
	s.NetBalance = s.TotalIncome.Sub(s.TotalExpense)

	for _, a := range anomalies {
		if a.Status == domain.StatusOpen {
			s.AnomalyCount++
		}
	}
	return s
}

// Uncategorized returns the expense not attributed to any category.
func Uncategorized(s domain.Summary) decimal.Decimal {
	rest := s.TotalExpense
	for _, v := range s.ByCategory {
		rest = rest.Sub(v)
	}
	return rest
}

// Breakdown names the per-category expense buckets of s, largest first. The
// unattributed remainder is reported under "Uncategorized".
func Breakdown(s domain.Summary, categories []domain.Category) []domain.CategoryTotal {
	names := domain.CategoryNames(categories)

	out := make([]domain.CategoryTotal, 0, len(s.ByCategory)+1)
	for id, amount := range s.ByCategory {
		id := id
		out = append(out, domain.CategoryTotal{
			CategoryID: &id,
			Name:       categoryName(names, &id),
			Amount:     amount,
		})
	}
	if rest := Uncategorized(s); rest.IsPositive() {
		out = append(out, domain.CategoryTotal{Name: domain.UncategorizedName, Amount: rest})
	}

	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Amount.Cmp(out[j].Amount); c != 0 {
			return c > 0
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func categoryName(names map[int64]string, id *int64) string {
	if id == nil {
		return domain.UncategorizedName
	}
	if name, ok := names[*id]; ok {
		return name
	}
	return fmt.Sprintf("category %d", *id)
}
