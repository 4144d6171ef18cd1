package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dvloznov/statement-insights/internal/domain"
	"github.com/dvloznov/statement-insights/internal/rules"
)

const ruleColumns = `id, keyword, category_id, priority, match_count, system, created_at`

// RuleStore is the rules table. Match counts are incremented in SQL, so
// concurrent batches never lose updates.
type RuleStore struct {
	pool       *pgxpool.Pool
	categories rules.CategoryLookup
}

var _ rules.SystemRuleWriter = (*RuleStore)(nil)

// NewRuleStore creates a rule store validating categories against lookup.
func NewRuleStore(pool *pgxpool.Pool, lookup rules.CategoryLookup) *RuleStore {
	return &RuleStore{pool: pool, categories: lookup}
}

func scanRule(row scanner) (domain.Rule, error) {
	var r domain.Rule
	err := row.Scan(&r.ID, &r.Keyword, &r.CategoryID, &r.Priority, &r.MatchCount, &r.System, &r.CreatedAt)
	return r, err
}

func (s *RuleStore) List(ctx context.Context) ([]domain.Rule, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+ruleColumns+` FROM rules ORDER BY priority, id`)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer rows.Close()

	var out []domain.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("List: scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *RuleStore) Get(ctx context.Context, id int64) (domain.Rule, error) {
	r, err := scanRule(s.pool.QueryRow(ctx, `SELECT `+ruleColumns+` FROM rules WHERE id = $1`, id))
	if isNoRows(err) {
		return domain.Rule{}, domain.NewNotFound("rule", id)
	}
	if err != nil {
		return domain.Rule{}, fmt.Errorf("Get: %w", err)
	}
	return r, nil
}

func (s *RuleStore) Add(ctx context.Context, keyword string, categoryID int64, priority *int) (domain.Rule, error) {
	p := rules.DefaultPriority
	if priority != nil {
		p = *priority
	}
	return s.insert(ctx, keyword, categoryID, p, false)
}

// AddSystem installs a protected rule.
func (s *RuleStore) AddSystem(ctx context.Context, keyword string, categoryID int64, priority int) (domain.Rule, error) {
	return s.insert(ctx, keyword, categoryID, priority, true)
}

func (s *RuleStore) insert(ctx context.Context, keyword string, categoryID int64, priority int, system bool) (domain.Rule, error) {
	kw, err := rules.ValidateInput(ctx, s.categories, keyword, categoryID)
	if err != nil {
		return domain.Rule{}, err
	}

	r, err := scanRule(s.pool.QueryRow(ctx, `
		INSERT INTO rules (keyword, category_id, priority, system)
		VALUES ($1, $2, $3, $4)
		RETURNING `+ruleColumns,
		kw, categoryID, priority, system))
	if isForeignKeyViolation(err) {
		return domain.Rule{}, &domain.ValidationError{Field: "category_id", Reason: "unknown category"}
	}
	if err != nil {
		return domain.Rule{}, fmt.Errorf("Add: %w", err)
	}
	return r, nil
}

func (s *RuleStore) Update(ctx context.Context, id int64, keyword string, categoryID int64, priority *int) (domain.Rule, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Rule{}, fmt.Errorf("Update: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockMutable(ctx, tx, id); err != nil {
		return domain.Rule{}, err
	}

	kw, err := rules.ValidateInput(ctx, s.categories, keyword, categoryID)
	if err != nil {
		return domain.Rule{}, err
	}

	r, err := scanRule(tx.QueryRow(ctx, `
		UPDATE rules
		SET keyword = $2, category_id = $3, priority = COALESCE($4, priority)
		WHERE id = $1
		RETURNING `+ruleColumns,
		id, kw, categoryID, priority))
	if isForeignKeyViolation(err) {
		return domain.Rule{}, &domain.ValidationError{Field: "category_id", Reason: "unknown category"}
	}
	if err != nil {
		return domain.Rule{}, fmt.Errorf("Update: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Rule{}, fmt.Errorf("Update: commit: %w", err)
	}
	return r, nil
}

func (s *RuleStore) Delete(ctx context.Context, id int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("Delete: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockMutable(ctx, tx, id); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM rules WHERE id = $1`, id); err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("Delete: commit: %w", err)
	}
	return nil
}

// lockMutable row-locks a rule and rejects unknown or system rules.
func lockMutable(ctx context.Context, tx pgx.Tx, id int64) error {
	var system bool
	err := tx.QueryRow(ctx, `SELECT system FROM rules WHERE id = $1 FOR UPDATE`, id).Scan(&system)
	if isNoRows(err) {
		return domain.NewNotFound("rule", id)
	}
	if err != nil {
		return fmt.Errorf("lock rule %d: %w", id, err)
	}
	if system {
		return &domain.ProtectedRuleError{RuleID: id}
	}
	return nil
}

func (s *RuleStore) IncrementMatchCounts(ctx context.Context, counts map[int64]int64) error {
	if len(counts) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for id, n := range counts {
		batch.Queue(`UPDATE rules SET match_count = match_count + $2 WHERE id = $1`, id, n)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("IncrementMatchCounts: %w", err)
	}
	return nil
}
