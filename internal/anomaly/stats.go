package anomaly

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-insights/internal/domain"
)

// baseline is the distribution an outflow is scored against.
type baseline struct {
	n      int
	mean   float64
	stddev float64
}

// moments holds exact running sums of outflow magnitudes.
type moments struct {
	n     int64
	sum   decimal.Decimal
	sumSq decimal.Decimal
}

func (m *moments) add(x decimal.Decimal) {
	m.n++
	m.sum = m.sum.Add(x)
	m.sumSq = m.sumSq.Add(x.Mul(x))
}

// without returns the population statistics of the batch minus one value x.
// Sums stay exact; only the final variance is converted to float64.
func (m moments) without(x decimal.Decimal) baseline {
	n := m.n - 1
	if n <= 0 {
		return baseline{}
	}
	sum := m.sum.Sub(x)
	sumSq := m.sumSq.Sub(x.Mul(x))
	nd := decimal.NewFromInt(n)
	// n·Σx² − (Σx)² over n², exact up to the final division.
	num := nd.Mul(sumSq).Sub(sum.Mul(sum))
	if num.IsNegative() {
		num = decimal.Zero
	}
	mean := sum.InexactFloat64() / float64(n)
	variance := num.InexactFloat64() / float64(n*n)
	return baseline{n: int(n), mean: mean, stddev: math.Sqrt(variance)}
}

// spread reports whether the batch has any variation at all.
func (m moments) spread() bool {
	if m.n < 2 {
		return false
	}
	nd := decimal.NewFromInt(m.n)
	return nd.Mul(m.sumSq).Sub(m.sum.Mul(m.sum)).IsPositive()
}

// outliers implements STATISTICAL_OUTLIER. Each outflow is scored against the
// mean and population standard deviation of the other outflows, so a single
// extreme value cannot hide itself by inflating the spread.
func (d *Detector) outliers(txns []domain.Transaction) []finding {
	var outflows []domain.Transaction
	var m moments
	for _, t := range txns {
		if t.IsOutflow() {
			outflows = append(outflows, t)
			m.add(t.Magnitude())
		}
	}
	if len(outflows) < d.cfg.MinOutflows || !m.spread() {
		return nil
	}

	var out []finding
	for _, t := range outflows {
		x := t.Magnitude()
		b := m.without(x)
		sev, ok := d.score(x.InexactFloat64(), b)
		if !ok {
			continue
		}
		out = append(out, finding{
			txn:      t,
			rule:     domain.RuleStatisticalOutlier,
			severity: sev,
			detail: fmt.Sprintf("outflow %s vs baseline mean %.2f, stddev %.2f over %d other outflows (k=%.1f)",
				x.StringFixed(2), b.mean, b.stddev, b.n, d.cfg.K),
		})
	}
	return out
}

// score maps a magnitude to a severity against b. A baseline without spread
// scores nothing.
func (d *Detector) score(x float64, b baseline) (domain.Severity, bool) {
	if b.n == 0 || b.stddev == 0 || x <= b.mean {
		return 0, false
	}
	if x <= b.mean+d.cfg.K*b.stddev {
		return 0, false
	}
	if x > b.mean+3*b.stddev {
		return domain.SeverityHigh, true
	}
	return domain.SeverityMedium, true
}
