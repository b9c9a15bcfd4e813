// Package risk flags customers whose latest purchases fell below their
// trailing average.
package risk

import (
	"fmt"
	"math"
	"sort"

	"github.com/leapstack-labs/churnwatch/pkg/core"
)

// Kind selects how a drop is measured.
type Kind int

// Rule kinds. KindNone never flags anything.
const (
	KindNone Kind = iota
	KindPercent
	KindValue
)

// Rule is a single drop threshold. Exactly one kind applies per evaluation.
type Rule struct {
	Kind      Kind    `json:"kind"`
	Threshold float64 `json:"threshold"`
}

// Percent flags drops of at least pct percent of the trailing average.
func Percent(pct float64) Rule { return Rule{Kind: KindPercent, Threshold: pct} }

// Value flags drops of at least tons below the trailing average.
func Value(tons float64) Rule { return Rule{Kind: KindValue, Threshold: tons} }

// NewRule builds a rule from optional thresholds. Setting both is an error;
// setting neither yields an inactive rule.
func NewRule(pct, value *float64) (Rule, error) {
	switch {
	case pct != nil && value != nil:
		return Rule{}, core.ErrConflictingRules
	case pct != nil:
		if err := checkThreshold("percentage", *pct); err != nil {
			return Rule{}, err
		}
		return Percent(*pct), nil
	case value != nil:
		if err := checkThreshold("value", *value); err != nil {
			return Rule{}, err
		}
		return Value(*value), nil
	default:
		return Rule{}, nil
	}
}

func checkThreshold(name string, v float64) error {
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		return fmt.Errorf("%s threshold must be a finite number", name)
	case v < 0:
		return fmt.Errorf("%s threshold must not be negative", name)
	}
	return nil
}

// Active reports whether the rule can flag anything.
func (r Rule) Active() bool {
	return r.Kind == KindPercent || r.Kind == KindValue
}

func (r Rule) String() string {
	switch r.Kind {
	case KindPercent:
		return fmt.Sprintf("drop >= %g%%", r.Threshold)
	case KindValue:
		return fmt.Sprintf("drop >= %g t", r.Threshold)
	default:
		return "none"
	}
}

// Drop returns the percentage and absolute fall of a row against its
// trailing average. The percentage is 0 when there is no history.
func Drop(r core.TrendRecord) (pct, value float64) {
	value = r.AvgTonsLast3 - r.TotalTons
	if r.AvgTonsLast3 > 0 {
		pct = value / r.AvgTonsLast3 * 100
	}
	return pct, value
}

// Latest returns each customer's most recent row, ordered by customer.
func Latest(trend []core.TrendRecord) []core.TrendRecord {
	latest := make(map[string]core.TrendRecord)
	for _, r := range trend {
		cur, ok := latest[r.CustomerID]
		if !ok || cur.Period.Before(r.Period) {
			latest[r.CustomerID] = r
		}
	}
	out := make([]core.TrendRecord, 0, len(latest))
	for _, r := range latest {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CustomerID < out[j].CustomerID })
	return out
}

// IdentifyAtRisk evaluates rule against each customer's latest row.
// Inclusion is inclusive of the threshold. The result is ordered by
// customer ID and is empty for an inactive rule.
func IdentifyAtRisk(trend []core.TrendRecord, rule Rule) []core.RiskFlag {
	if !rule.Active() {
		return []core.RiskFlag{}
	}

	flags := []core.RiskFlag{}
	for _, r := range Latest(trend) {
		pct, value := Drop(r)
		var measured float64
		if rule.Kind == KindPercent {
			measured = pct
		} else {
			measured = value
		}
		if measured < rule.Threshold {
			continue
		}
		flags = append(flags, core.RiskFlag{
			CustomerID:   r.CustomerID,
			Period:       r.Period,
			TotalTons:    r.TotalTons,
			AvgTonsLast3: r.AvgTonsLast3,
			DropPct:      pct,
			DropValue:    value,
		})
	}
	return flags
}
