package anomaly

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/dvloznov/statement-insights/internal/domain"
)

// normalizeDescription lower-cases and collapses whitespace.
func normalizeDescription(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Similarity returns 1 - distance/maxLen over runes of the normalized
// descriptions. Two empty descriptions are identical.
func Similarity(a, b string) float64 {
	a, b = normalizeDescription(a), normalizeDescription(b)
	if a == b {
		return 1
	}
	maxLen := utf8.RuneCountInString(a)
	if l := utf8.RuneCountInString(b); l > maxLen {
		maxLen = l
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(maxLen)
}

// duplicates implements DUPLICATE_SIGNAL over a consistent snapshot of the
// batch: outflows with the same magnitude, dates within the window and
// near-identical descriptions. Both members of a pair are flagged once.
func (d *Detector) duplicates(txns []domain.Transaction) []finding {
	groups := make(map[string][]domain.Transaction)
	for _, t := range txns {
		if !t.IsOutflow() {
			continue
		}
		key := t.Magnitude().String()
		groups[key] = append(groups[key], t)
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	flagged := make(map[string]string) // transaction id -> partner id
	var out []finding
	for _, k := range keys {
		group := groups[k]
		if len(group) < 2 {
			continue
		}
		sort.SliceStable(group, func(i, j int) bool {
			if group[i].TxnDate != group[j].TxnDate {
				return group[i].TxnDate.Before(group[j].TxnDate)
			}
			return group[i].ID < group[j].ID
		})
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				a, b := group[i], group[j]
				if b.TxnDate.DaysSince(a.TxnDate) > d.cfg.DuplicateWindowDays {
					break
				}
				if Similarity(a.Description, b.Description) < d.cfg.DuplicateSimilarity {
					continue
				}
				for _, pair := range [][2]domain.Transaction{{a, b}, {b, a}} {
					t, other := pair[0], pair[1]
					if _, done := flagged[t.ID]; done {
						continue
					}
					flagged[t.ID] = other.ID
					out = append(out, finding{
						txn:      t,
						rule:     domain.RuleDuplicateSignal,
						severity: domain.SeverityLow,
						detail: fmt.Sprintf("possible duplicate of %s: same amount %s within %d days",
							other.ID, t.Magnitude().StringFixed(2), d.cfg.DuplicateWindowDays),
					})
				}
			}
		}
	}
	return out
}
