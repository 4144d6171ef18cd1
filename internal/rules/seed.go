package rules

import (
	"context"
	"fmt"

	"github.com/dvloznov/statement-insights/internal/domain"
)

// Built-in category ids.
const (
	CategoryFood      int64 = 1
	CategoryTransport int64 = 2
	CategoryShopping  int64 = 3
	CategoryBills     int64 = 4
	CategoryHealth    int64 = 5
	CategoryTransfer  int64 = 6
	CategoryIncome    int64 = 7
	CategoryOther     int64 = 8
)

// DefaultCategories are the built-in, non-deletable categories.
var DefaultCategories = []domain.Category{
	{ID: CategoryFood, Name: "FOOD", Color: "#F97316", System: true},
	{ID: CategoryTransport, Name: "TRANSPORT", Color: "#0EA5E9", System: true},
	{ID: CategoryShopping, Name: "SHOPPING", Color: "#EC4899", System: true},
	{ID: CategoryBills, Name: "BILLS", Color: "#EAB308", System: true},
	{ID: CategoryHealth, Name: "HEALTH", Color: "#22C55E", System: true},
	{ID: CategoryTransfer, Name: "TRANSFER", Color: "#64748B", System: true},
	{ID: CategoryIncome, Name: "INCOME", Color: "#10B981", System: true},
	{ID: CategoryOther, Name: domain.OtherCategoryName, Color: domain.DefaultCategoryColor, System: true},
}

// SystemRule is a protected rule installed at seed time.
type SystemRule struct {
	Keyword    string
	CategoryID int64
	Priority   int
}

// DefaultSystemRules ship with every installation. Transfers sort last so a
// merchant keyword wins over a generic "transfer" line.
var DefaultSystemRules = []SystemRule{
	{Keyword: "kfc", CategoryID: CategoryFood, Priority: 10},
	{Keyword: "grab", CategoryID: CategoryTransport, Priority: 10},
	{Keyword: "shopee", CategoryID: CategoryShopping, Priority: 10},
	{Keyword: "salary", CategoryID: CategoryIncome, Priority: 10},
	{Keyword: "transfer", CategoryID: CategoryTransfer, Priority: 100},
}

// CategoryWriter persists categories.
type CategoryWriter interface {
	UpsertCategory(ctx context.Context, c domain.Category) error
}

// SystemRuleWriter is a Store that can also install protected rules.
type SystemRuleWriter interface {
	Store
	AddSystem(ctx context.Context, keyword string, categoryID int64, priority int) (domain.Rule, error)
}

// Seed installs the default categories and system rules. Categories are
// upserted every time; system rules are only installed into a store that has
// none yet, so it is safe to run on every startup.
func Seed(ctx context.Context, categories CategoryWriter, store SystemRuleWriter) error {
	for _, c := range DefaultCategories {
		if err := categories.UpsertCategory(ctx, c); err != nil {
			return fmt.Errorf("Seed: upsert category %s: %w", c.Name, err)
		}
	}

	existing, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("Seed: list rules: %w", err)
	}
	for _, r := range existing {
		if r.System {
			return nil
		}
	}

	for _, sr := range DefaultSystemRules {
		if _, err := store.AddSystem(ctx, sr.Keyword, sr.CategoryID, sr.Priority); err != nil {
			return fmt.Errorf("Seed: add system rule %q: %w", sr.Keyword, err)
		}
	}
	return nil
}
