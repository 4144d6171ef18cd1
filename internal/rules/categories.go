package rules

import (
	"context"
	"sort"
	"sync"

	"github.com/dvloznov/statement-insights/internal/domain"
)

// MemoryCategories is an in-memory category catalog.
type MemoryCategories struct {
	mu         sync.RWMutex
	categories map[int64]domain.Category
}

// NewMemoryCategories creates a catalog holding the given categories.
func NewMemoryCategories(categories ...domain.Category) *MemoryCategories {
	c := &MemoryCategories{categories: make(map[int64]domain.Category)}
	for _, cat := range categories {
		c.categories[cat.ID] = cat
	}
	return c
}

// CategoryExists implements CategoryLookup.
func (c *MemoryCategories) CategoryExists(ctx context.Context, id int64) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.categories[id]
	return ok, nil
}

// ListCategories returns all categories ordered by id.
func (c *MemoryCategories) ListCategories(ctx context.Context) ([]domain.Category, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]domain.Category, 0, len(c.categories))
	for _, cat := range c.categories {
		out = append(out, cat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpsertCategory inserts or replaces a category.
func (c *MemoryCategories) UpsertCategory(ctx context.Context, cat domain.Category) error {
	if cat.Color == "" {
		cat.Color = domain.DefaultCategoryColor
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.categories[cat.ID] = cat
	return nil
}
