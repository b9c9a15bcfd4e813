// Package trend derives trailing window statistics from aggregated sales.
package trend

import (
	"sort"

	"github.com/leapstack-labs/churnwatch/pkg/core"
	"gonum.org/v1/gonum/stat"
)

// DefaultWindow is the number of preceding periods averaged.
const DefaultWindow = 3

// Build computes trailing statistics with DefaultWindow.
func Build(records []core.AggregatedRecord) []core.TrendRecord {
	return BuildWindow(records, DefaultWindow)
}

// BuildWindow computes, for each record, the mean and sample standard
// deviation of the customer's tons over up to window preceding periods and
// the number of periods since the customer's most recent purchase (zero for
// that period and everything before it). The current period never
// contributes to its own statistics. The result is ordered by customer,
// then period; the input is left untouched.
func BuildWindow(records []core.AggregatedRecord, window int) []core.TrendRecord {
	if window < 1 {
		window = DefaultWindow
	}
	sorted := sortedCopy(records)
	out := make([]core.TrendRecord, len(sorted))

	start := 0
	for start < len(sorted) {
		end := start
		for end < len(sorted) && sorted[end].CustomerID == sorted[start].CustomerID {
			end++
		}
		fillCustomer(sorted[start:end], out[start:end], window)
		start = end
	}
	return out
}

func fillCustomer(in []core.AggregatedRecord, out []core.TrendRecord, window int) {
	tons := make([]float64, len(in))
	for i, r := range in {
		tons[i] = r.TotalTons
	}

	var last core.Period
	purchased := false
	for _, r := range in {
		if r.TotalTons > 0 {
			last, purchased = r.Period, true
		}
	}

	for i, r := range in {
		tr := core.TrendRecord{AggregatedRecord: r}

		prior := tons[max(0, i-window):i]
		if len(prior) > 0 {
			tr.AvgTonsLast3 = stat.Mean(prior, nil)
		}
		if len(prior) > 1 {
			tr.StdTonsLast3 = stat.StdDev(prior, nil)
		}

		if purchased {
			tr.PeriodsSinceLastPurchase = max(0, r.Period.Since(last))
		}
		out[i] = tr
	}
}

func sortedCopy(records []core.AggregatedRecord) []core.AggregatedRecord {
	out := append([]core.AggregatedRecord(nil), records...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CustomerID != out[j].CustomerID {
			return out[i].CustomerID < out[j].CustomerID
		}
		return out[i].Period.Before(out[j].Period)
	})
	return out
}
