// Package categorizer assigns categories to transactions with first-match-wins
// keyword rules.
package categorizer

import (
	"context"
	"fmt"
	"strings"

	"github.com/dvloznov/statement-insights/internal/domain"
	"github.com/dvloznov/statement-insights/internal/logger"
	"github.com/dvloznov/statement-insights/internal/rules"
)

// Result is the outcome of classifying one description. Both fields are nil
// when no rule matched.
type Result struct {
	CategoryID    *int64 `json:"category_id"`
	MatchedRuleID *int64 `json:"matched_rule_id"`
}

// Matched reports whether a rule produced the result.
func (r Result) Matched() bool {
	return r.MatchedRuleID != nil
}

// Classify returns the category of the first rule, in evaluation order, whose
// keyword is a case-insensitive substring of description. It has no side
// effects and is deterministic for a given rule set.
func Classify(description string, ruleSet []domain.Rule) Result {
	ordered := make([]domain.Rule, len(ruleSet))
	copy(ordered, ruleSet)
	domain.SortRules(ordered)
	return classifyOrdered(strings.ToLower(description), ordered)
}

// classifyOrdered expects ordered rules and an already lower-cased description.
func classifyOrdered(normalized string, ordered []domain.Rule) Result {
	for _, r := range ordered {
		kw := strings.ToLower(domain.NormalizeKeyword(r.Keyword))
		if kw == "" {
			continue
		}
		if strings.Contains(normalized, kw) {
			categoryID, ruleID := r.CategoryID, r.ID
			return Result{CategoryID: &categoryID, MatchedRuleID: &ruleID}
		}
	}
	return Result{}
}

// Engine classifies batches against a rule store and records match counts.
type Engine struct {
	store rules.Store
}

// NewEngine creates an Engine backed by store.
func NewEngine(store rules.Store) *Engine {
	return &Engine{store: store}
}

// BatchResult reports what a batch run did.
type BatchResult struct {
	Transactions []domain.Transaction `json:"transactions"`
	Evaluated    int                  `json:"evaluated"`
	Matched      int                  `json:"matched"`
	Skipped      int                  `json:"skipped"` // manual overrides left untouched
}

// ClassifyBatch re-classifies every transaction that is not a manual override
// against one snapshot of the rule store. The input slice is not modified.
// Each winning rule's match count grows by the number of transactions it won
// in this batch, so repeated runs count only what they re-evaluate.
func (e *Engine) ClassifyBatch(ctx context.Context, txns []domain.Transaction) (BatchResult, error) {
	log := logger.FromContext(ctx)

	snapshot, err := e.store.List(ctx)
	if err != nil {
		return BatchResult{}, fmt.Errorf("ClassifyBatch: list rules: %w", err)
	}

	res := BatchResult{Transactions: ApplyRules(txns, snapshot)}
	counts := make(map[int64]int64)
	for _, t := range res.Transactions {
		if t.Override {
			res.Skipped++
			continue
		}
		res.Evaluated++
		if t.MatchedRuleID != nil {
			res.Matched++
			counts[*t.MatchedRuleID]++
		}
	}

	if err := e.store.IncrementMatchCounts(ctx, counts); err != nil {
		// Match counts are informational; the assignments stand.
		log.Warn().Err(err).Int("rules", len(counts)).Msg("Failed to record rule match counts")
	}

	log.Debug().
		Int("evaluated", res.Evaluated).
		Int("matched", res.Matched).
		Int("skipped", res.Skipped).
		Msg("Classified batch")

	return res, nil
}

// DryRun reports which rule would win for description without touching
// match counts.
func (e *Engine) DryRun(ctx context.Context, description string) (Result, *domain.Rule, error) {
	snapshot, err := e.store.List(ctx)
	if err != nil {
		return Result{}, nil, fmt.Errorf("DryRun: list rules: %w", err)
	}
	res := classifyOrdered(strings.ToLower(description), snapshot)
	if !res.Matched() {
		return res, nil, nil
	}
	for i := range snapshot {
		if snapshot[i].ID == *res.MatchedRuleID {
			return res, &snapshot[i], nil
		}
	}
	return res, nil, nil
}

// ApplyRules returns a copy of txns with categories assigned from ruleSet.
// Override rows are copied unchanged.
func ApplyRules(txns []domain.Transaction, ruleSet []domain.Rule) []domain.Transaction {
	ordered := make([]domain.Rule, len(ruleSet))
	copy(ordered, ruleSet)
	domain.SortRules(ordered)

	out := make([]domain.Transaction, len(txns))
	for i, t := range txns {
		if !t.Override {
			res := classifyOrdered(strings.ToLower(t.Description), ordered)
			t.CategoryID = res.CategoryID
			t.MatchedRuleID = res.MatchedRuleID
		}
		out[i] = t
	}
	return out
}

// OverrideCategory pins txn to categoryID. The result is immune to later
// re-classification.
func OverrideCategory(txn domain.Transaction, categoryID int64) domain.Transaction {
	id := categoryID
	txn.CategoryID = &id
	txn.MatchedRuleID = nil
	txn.Override = true
	return txn
}
