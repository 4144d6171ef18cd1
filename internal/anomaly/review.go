package anomaly

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/statement-insights/internal/domain"
	"github.com/dvloznov/statement-insights/internal/logger"
)

// Store persists anomalies. Resolve must be a compare-and-set on the open
// status: of two concurrent reviews of one anomaly exactly one succeeds and
// the other gets an AlreadyResolvedError.
type Store interface {
	// SaveNew inserts anomalies whose (transaction, rule) key is not stored
	// yet and returns the ones actually inserted.
	SaveNew(ctx context.Context, anomalies []domain.Anomaly) ([]domain.Anomaly, error)

	// Get returns one anomaly by id.
	Get(ctx context.Context, id string) (domain.Anomaly, error)

	// ListByUpload returns the anomalies of an upload in review order.
	ListByUpload(ctx context.Context, uploadID string) ([]domain.Anomaly, error)

	// Resolve moves an open anomaly to decision, stamping at.
	Resolve(ctx context.Context, id string, decision domain.AnomalyStatus, at time.Time) (domain.Anomaly, error)
}

// Review validates decision and applies it to the anomaly with the given id.
func Review(ctx context.Context, store Store, id, decision string, at time.Time) (domain.Anomaly, error) {
	log := logger.FromContext(ctx).With().Str("anomaly_id", id).Logger()

	status, err := domain.ParseDecision(decision)
	if err != nil {
		return domain.Anomaly{}, fmt.Errorf("Review: %w", err)
	}

	a, err := store.Resolve(ctx, id, status, at.UTC())
	if err != nil {
		log.Debug().Err(err).Str("decision", string(status)).Msg("Review rejected")
		return domain.Anomaly{}, fmt.Errorf("Review: %w", err)
	}

	log.Info().Str("status", string(a.Status)).Str("rule", a.RuleName).Msg("Anomaly reviewed")
	return a, nil
}

// OpenCount returns how many anomalies are still open.
func OpenCount(list []domain.Anomaly) int {
	n := 0
	for _, a := range list {
		if a.Status == domain.StatusOpen {
			n++
		}
	}
	return n
}
