package domain

import "strings"

// UncategorizedName is the reporting label for transactions without a category.
const UncategorizedName = "Uncategorized"

// OtherCategoryName is the built-in catch-all category.
const OtherCategoryName = "OTHER"

// Category is process-wide reference data. Color is a presentation hint only.
type Category struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Color  string `json:"color"`
	System bool   `json:"system"`
}

// DefaultCategoryColor is used when a category is created without one.
const DefaultCategoryColor = "#6366F1"

// CategoryNames indexes categories by id for reporting.
func CategoryNames(categories []Category) map[int64]string {
	names := make(map[int64]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}
	return names
}

// NormalizeCategoryName trims and upper-cases a category name for comparison.
func NormalizeCategoryName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
