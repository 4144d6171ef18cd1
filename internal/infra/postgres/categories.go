package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dvloznov/statement-insights/internal/domain"
)

// Categories is the category catalog table.
type Categories struct {
	pool *pgxpool.Pool
}

// NewCategories creates a category repository.
func NewCategories(pool *pgxpool.Pool) *Categories {
	return &Categories{pool: pool}
}

func (c *Categories) CategoryExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := c.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM categories WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("CategoryExists: %w", err)
	}
	return exists, nil
}

func (c *Categories) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := c.pool.Query(ctx, `SELECT id, name, color, system FROM categories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("ListCategories: %w", err)
	}
	defer rows.Close()

	var out []domain.Category
	for rows.Next() {
		var cat domain.Category
		if err := rows.Scan(&cat.ID, &cat.Name, &cat.Color, &cat.System); err != nil {
			return nil, fmt.Errorf("ListCategories: scan: %w", err)
		}
		out = append(out, cat)
	}
	return out, rows.Err()
}

func (c *Categories) UpsertCategory(ctx context.Context, cat domain.Category) error {
	if cat.Color == "" {
		cat.Color = domain.DefaultCategoryColor
	}
	_, err := c.pool.Exec(ctx, `
		INSERT INTO categories (id, name, color, system)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, color = EXCLUDED.color, system = EXCLUDED.system
	`, cat.ID, cat.Name, cat.Color, cat.System)
	if err != nil {
		return fmt.Errorf("UpsertCategory: %w", err)
	}
	return nil
}
