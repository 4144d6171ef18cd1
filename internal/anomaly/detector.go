// Package anomaly flags unusual outflows for human review and owns the review
// state machine of the resulting findings.
package anomaly

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-insights/internal/domain"
)

// Config tunes the detector rules.
type Config struct {
	// K is the standard-deviation multiplier for STATISTICAL_OUTLIER.
	K float64
	// MinOutflows is the smallest batch of outflows scored for outliers.
	MinOutflows int
	// DuplicateWindowDays bounds the date distance of a duplicate pair, inclusive.
	DuplicateWindowDays int
	// DuplicateSimilarity is the minimum normalized description similarity in [0,1].
	DuplicateSimilarity float64
	// LargeAmountThreshold enables LARGE_AMOUNT when positive.
	LargeAmountThreshold decimal.Decimal
}

// DefaultConfig returns the canonical threshold policy.
func DefaultConfig() Config {
	return Config{
		K:                   2.0,
		MinOutflows:         3,
		DuplicateWindowDays: 3,
		DuplicateSimilarity: 0.9,
	}
}

// idNamespace scopes deterministic anomaly ids.
var idNamespace = uuid.MustParse("6f1f7a52-3c0e-4b8e-9d0c-5b7a3f0f2e61")

// AnomalyID derives the stable id of the anomaly for (transactionID, ruleName).
// Re-running detection over the same transaction yields the same id.
func AnomalyID(transactionID, ruleName string) string {
	return uuid.NewSHA1(idNamespace, []byte(transactionID+"\x00"+ruleName)).String()
}

// Detector runs the independent detector rules over a batch.
type Detector struct {
	cfg Config
	now func() time.Time
}

// NewDetector creates a Detector. Zero fields in cfg fall back to DefaultConfig,
// except LargeAmountThreshold where zero means disabled.
func NewDetector(cfg Config) *Detector {
	def := DefaultConfig()
	if cfg.K <= 0 {
		cfg.K = def.K
	}
	if cfg.MinOutflows < 2 {
		cfg.MinOutflows = def.MinOutflows
	}
	if cfg.DuplicateWindowDays < 0 {
		cfg.DuplicateWindowDays = def.DuplicateWindowDays
	}
	if cfg.DuplicateSimilarity <= 0 || cfg.DuplicateSimilarity > 1 {
		cfg.DuplicateSimilarity = def.DuplicateSimilarity
	}
	return &Detector{cfg: cfg, now: time.Now}
}

// WithClock replaces the clock used for CreatedAt.
func (d *Detector) WithClock(now func() time.Time) *Detector {
	d.now = now
	return d
}

// Config returns the effective configuration.
func (d *Detector) Config() Config {
	return d.cfg
}

// finding is one rule hit before it becomes an Anomaly.
type finding struct {
	txn      domain.Transaction
	rule     string
	severity domain.Severity
	detail   string
}

// Detect returns new open anomalies for txns. It is pure apart from the clock:
// the same batch always yields the same ids, rules and severities, sorted by
// transaction id then rule name. Degenerate batches yield nothing.
func (d *Detector) Detect(txns []domain.Transaction) []domain.Anomaly {
	var findings []finding
	findings = append(findings, d.outliers(txns)...)
	findings = append(findings, d.duplicates(txns)...)
	findings = append(findings, d.largeAmounts(txns)...)

	created := d.now().UTC()
	seen := make(map[domain.AnomalyKey]struct{}, len(findings))
	out := make([]domain.Anomaly, 0, len(findings))
	for _, f := range findings {
		key := domain.AnomalyKey{TransactionID: f.txn.ID, RuleName: f.rule}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, domain.Anomaly{
			ID:            AnomalyID(f.txn.ID, f.rule),
			TransactionID: f.txn.ID,
			UploadID:      f.txn.UploadID,
			RuleName:      f.rule,
			Severity:      f.severity,
			Detail:        f.detail,
			Status:        domain.StatusOpen,
			CreatedAt:     created,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].TransactionID != out[j].TransactionID {
			return out[i].TransactionID < out[j].TransactionID
		}
		return out[i].RuleName < out[j].RuleName
	})
	return out
}

func (d *Detector) largeAmounts(txns []domain.Transaction) []finding {
	if !d.cfg.LargeAmountThreshold.IsPositive() {
		return nil
	}
	var out []finding
	for _, t := range txns {
		if t.Magnitude().GreaterThanOrEqual(d.cfg.LargeAmountThreshold) {
			out = append(out, finding{
				txn:      t,
				rule:     domain.RuleLargeAmount,
				severity: domain.SeverityMedium,
				detail:   "amount " + t.Magnitude().StringFixed(2) + " is at or above " + d.cfg.LargeAmountThreshold.StringFixed(2),
			})
		}
	}
	return out
}

// Dedupe drops fresh anomalies whose (transaction, rule) key already exists,
// and repeated keys within fresh itself.
func Dedupe(existing, fresh []domain.Anomaly) []domain.Anomaly {
	seen := make(map[domain.AnomalyKey]struct{}, len(existing)+len(fresh))
	for _, a := range existing {
		seen[a.Key()] = struct{}{}
	}
	out := make([]domain.Anomaly, 0, len(fresh))
	for _, a := range fresh {
		if _, ok := seen[a.Key()]; ok {
			continue
		}
		seen[a.Key()] = struct{}{}
		out = append(out, a)
	}
	return out
}

// SortForReview orders anomalies by severity (highest first), then by
// creation time, transaction id and rule name.
func SortForReview(list []domain.Anomaly) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.Severity != b.Severity {
			return a.Severity > b.Severity
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		if a.TransactionID != b.TransactionID {
			return a.TransactionID < b.TransactionID
		}
		return a.RuleName < b.RuleName
	})
}
