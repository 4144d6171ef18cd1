// Package rules holds the ordered keyword rules that drive categorization.
package rules

import (
	"context"

	"github.com/dvloznov/statement-insights/internal/domain"
)

// Store is the rule store contract. List always returns rules in evaluation
// order (priority asc, id asc) and reflects every prior mutation.
type Store interface {
	// List returns all rules in evaluation order.
	List(ctx context.Context) ([]domain.Rule, error)

	// Get returns a single rule by id.
	Get(ctx context.Context, id int64) (domain.Rule, error)

	// Add creates a user rule. A nil priority defaults to 0.
	Add(ctx context.Context, keyword string, categoryID int64, priority *int) (domain.Rule, error)

	// Update edits a user rule. A nil priority keeps the current value.
	Update(ctx context.Context, id int64, keyword string, categoryID int64, priority *int) (domain.Rule, error)

	// Delete removes a user rule.
	Delete(ctx context.Context, id int64) error

	// IncrementMatchCounts adds n to the match count of each rule id.
	IncrementMatchCounts(ctx context.Context, counts map[int64]int64) error
}

// CategoryLookup answers whether a category id exists.
type CategoryLookup interface {
	CategoryExists(ctx context.Context, id int64) (bool, error)
}

// DefaultPriority is used when a rule is added without a priority.
const DefaultPriority = 0

// ValidateInput checks the keyword and category shared by Add and Update and
// returns the normalized keyword.
func ValidateInput(ctx context.Context, categories CategoryLookup, keyword string, categoryID int64) (string, error) {
	kw := domain.NormalizeKeyword(keyword)
	if kw == "" {
		return "", &domain.ValidationError{Field: "keyword", Reason: "must not be empty"}
	}
	ok, err := categories.CategoryExists(ctx, categoryID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &domain.ValidationError{Field: "category_id", Reason: "unknown category"}
	}
	return kw, nil
}
