package domain

import (
	"sort"
	"strings"
	"time"
)

// Rule maps a case-insensitive keyword to a category.
// Rules are evaluated by ascending Priority, then ascending ID.
type Rule struct {
	ID         int64     `json:"id"`
	Keyword    string    `json:"keyword"`
	CategoryID int64     `json:"category_id"`
	Priority   int       `json:"priority"`
	MatchCount int64     `json:"match_count"` // informational, see rules.Store
	System     bool      `json:"system"`      // protected: cannot be edited or deleted
	CreatedAt  time.Time `json:"created_at"`
}

// Less reports whether r is evaluated before other.
func (r Rule) Less(other Rule) bool {
	if r.Priority != other.Priority {
		return r.Priority < other.Priority
	}
	return r.ID < other.ID
}

// SortRules orders rules in evaluation order, in place.
func SortRules(rules []Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Less(rules[j])
	})
}

// NormalizeKeyword trims surrounding whitespace from a rule keyword.
func NormalizeKeyword(keyword string) string {
	return strings.TrimSpace(keyword)
}
