package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dvloznov/statement-insights/internal/anomaly"
	"github.com/dvloznov/statement-insights/internal/domain"
)

const anomalyColumns = `id, transaction_id, upload_id, rule_name, severity, detail, status, reviewed_at, created_at`

// AnomalyStore is the anomalies table. The (transaction_id, rule_name)
// unique key backs SaveNew and the conditional UPDATE backs Resolve.
type AnomalyStore struct {
	pool *pgxpool.Pool
}

var _ anomaly.Store = (*AnomalyStore)(nil)

// NewAnomalyStore creates an anomaly store.
func NewAnomalyStore(pool *pgxpool.Pool) *AnomalyStore {
	return &AnomalyStore{pool: pool}
}

func scanAnomaly(row scanner) (domain.Anomaly, error) {
	var (
		a        domain.Anomaly
		severity string
		status   string
	)
	err := row.Scan(&a.ID, &a.TransactionID, &a.UploadID, &a.RuleName, &severity, &a.Detail, &status, &a.ReviewedAt, &a.CreatedAt)
	if err != nil {
		return domain.Anomaly{}, err
	}
	if a.Severity, err = domain.ParseSeverity(severity); err != nil {
		return domain.Anomaly{}, err
	}
	a.Status = domain.AnomalyStatus(status)
	return a, nil
}

func (s *AnomalyStore) SaveNew(ctx context.Context, anomalies []domain.Anomaly) ([]domain.Anomaly, error) {
	if len(anomalies) == 0 {
		return nil, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("SaveNew: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	inserted := make([]domain.Anomaly, 0, len(anomalies))
	for _, a := range anomalies {
		if a.ID == "" {
			a.ID = anomaly.AnomalyID(a.TransactionID, a.RuleName)
		}
		if a.Status == "" {
			a.Status = domain.StatusOpen
		}
		stored, err := scanAnomaly(tx.QueryRow(ctx, `
			INSERT INTO anomalies (id, transaction_id, upload_id, rule_name, severity, detail, status, reviewed_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (transaction_id, rule_name) DO NOTHING
			RETURNING `+anomalyColumns,
			a.ID, a.TransactionID, a.UploadID, a.RuleName, a.Severity.String(), a.Detail, string(a.Status), a.ReviewedAt, a.CreatedAt))
		if isNoRows(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("SaveNew: insert %s/%s: %w", a.TransactionID, a.RuleName, err)
		}
		inserted = append(inserted, stored)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("SaveNew: commit: %w", err)
	}
	return inserted, nil
}

func (s *AnomalyStore) Get(ctx context.Context, id string) (domain.Anomaly, error) {
	a, err := scanAnomaly(s.pool.QueryRow(ctx, `SELECT `+anomalyColumns+` FROM anomalies WHERE id = $1`, id))
	if isNoRows(err) {
		return domain.Anomaly{}, domain.NewNotFound("anomaly", id)
	}
	if err != nil {
		return domain.Anomaly{}, fmt.Errorf("Get: %w", err)
	}
	return a, nil
}

func (s *AnomalyStore) ListByUpload(ctx context.Context, uploadID string) ([]domain.Anomaly, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+anomalyColumns+` FROM anomalies WHERE upload_id = $1`, uploadID)
	if err != nil {
		return nil, fmt.Errorf("ListByUpload: %w", err)
	}
	defer rows.Close()

	var out []domain.Anomaly
	for rows.Next() {
		a, err := scanAnomaly(rows)
		if err != nil {
			return nil, fmt.Errorf("ListByUpload: scan: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByUpload: %w", err)
	}
	anomaly.SortForReview(out)
	return out, nil
}

// Resolve is a compare-and-set on status = 'open'. When no row matches, the
// anomaly is re-read to tell an unknown id from a lost race.
func (s *AnomalyStore) Resolve(ctx context.Context, id string, decision domain.AnomalyStatus, at time.Time) (domain.Anomaly, error) {
	if !decision.Resolved() {
		return domain.Anomaly{}, &domain.ValidationError{Field: "status", Reason: fmt.Sprintf("cannot transition to %q", decision)}
	}

	a, err := scanAnomaly(s.pool.QueryRow(ctx, `
		UPDATE anomalies
		SET status = $2, reviewed_at = $3
		WHERE id = $1 AND status = 'open'
		RETURNING `+anomalyColumns,
		id, string(decision), at))
	if err == nil {
		return a, nil
	}
	if !isNoRows(err) {
		return domain.Anomaly{}, fmt.Errorf("Resolve: %w", err)
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return domain.Anomaly{}, err
	}
	return domain.Anomaly{}, &domain.AlreadyResolvedError{AnomalyID: id, Status: current.Status}
}
