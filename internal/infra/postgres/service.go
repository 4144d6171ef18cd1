package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dvloznov/statement-insights/internal/anomaly"
	"github.com/dvloznov/statement-insights/internal/insights"
	"github.com/dvloznov/statement-insights/internal/rules"
)

// NewService wires an insights.Service over the pool and seeds the default
// categories and system rules. Migrations must already be applied.
func NewService(ctx context.Context, pool *pgxpool.Pool, detector *anomaly.Detector) (*insights.Service, error) {
	categories := NewCategories(pool)
	store := NewRuleStore(pool, categories)
	if err := rules.Seed(ctx, categories, store); err != nil {
		return nil, fmt.Errorf("NewService: %w", err)
	}
	return insights.NewService(insights.Deps{
		Rules:        store,
		Categories:   categories,
		Transactions: NewTransactions(pool),
		Uploads:      NewUploads(pool),
		Anomalies:    NewAnomalyStore(pool),
		Detector:     detector,
	}), nil
}
