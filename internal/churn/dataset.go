// Package churn builds labelled churn datasets from monthly aggregates and
// trains a classifier to score each customer's latest month.
package churn

import (
	"math"
	"sort"

	"github.com/leapstack-labs/churnwatch/internal/trend"
	"github.com/leapstack-labs/churnwatch/pkg/core"
)

// FeatureNames are the classifier inputs, in matrix column order.
var FeatureNames = []string{
	"total_tons",
	"avg_tons_last_3",
	"std_tons_last_3",
	"periods_since_last_purchase",
}

// ThresholdSource records where the inactivity threshold came from.
type ThresholdSource string

// Threshold sources.
const (
	ThresholdFixed   ThresholdSource = "fixed"
	ThresholdDynamic ThresholdSource = "dynamic"
)

// Options configures dataset construction.
type Options struct {
	// InactivityPeriods fixes the churn threshold when positive; otherwise
	// it is derived from the data.
	InactivityPeriods int `json:"inactivity_periods"`
}

// Dataset is a dense monthly grid of trend rows with churn labels.
type Dataset struct {
	Rows      []core.ChurnRow `json:"rows"`
	Threshold float64         `json:"threshold"`
	Source    ThresholdSource `json:"threshold_source"`
}

// BuildDataset densifies monthly records, derives trend features and labels
// a row as churn when its periods since last purchase reach the threshold.
func BuildDataset(records []core.AggregatedRecord, span core.Span, opts Options) (*Dataset, error) {
	if !span.IsMonthly() {
		return nil, &core.MonthlyRequiredError{Span: span}
	}
	for _, r := range records {
		if !r.Period.Span.IsMonthly() {
			return nil, &core.MonthlyRequiredError{Span: r.Period.Span}
		}
	}

	rows := trend.Build(trend.Densify(records))

	ds := &Dataset{Rows: make([]core.ChurnRow, len(rows))}
	if opts.InactivityPeriods > 0 {
		ds.Threshold = float64(opts.InactivityPeriods)
		ds.Source = ThresholdFixed
	} else {
		ds.Threshold = DynamicThreshold(rows)
		ds.Source = ThresholdDynamic
	}

	for i, r := range rows {
		ds.Rows[i] = core.ChurnRow{
			TrendRecord: r,
			Churn:       float64(r.PeriodsSinceLastPurchase) >= ds.Threshold,
		}
	}
	return ds, nil
}

// DynamicThreshold is the 75th percentile of the strictly positive
// periods-since-last-purchase values, never below 1.
func DynamicThreshold(rows []core.TrendRecord) float64 {
	var gaps []float64
	for _, r := range rows {
		if r.PeriodsSinceLastPurchase > 0 {
			gaps = append(gaps, float64(r.PeriodsSinceLastPurchase))
		}
	}
	if len(gaps) == 0 {
		return 1
	}
	return math.Max(1, Percentile(gaps, 75))
}

// Percentile interpolates linearly between closest ranks, the default
// definition of most dataframe libraries (Hyndman and Fan type 7).
func Percentile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	h := (float64(len(sorted)) - 1) * q / 100
	lo := math.Floor(h)
	i := int(lo)
	if i >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	if i < 0 {
		return sorted[0]
	}
	return sorted[i] + (h-lo)*(sorted[i+1]-sorted[i])
}

// Matrix returns the feature matrix and 0/1 labels. Non-finite features
// become 0.
func (ds *Dataset) Matrix() ([][]float64, []int) {
	X := make([][]float64, len(ds.Rows))
	y := make([]int, len(ds.Rows))
	for i, r := range ds.Rows {
		X[i] = features(r.TrendRecord)
		if r.Churn {
			y[i] = 1
		}
	}
	return X, y
}

// Latest returns each customer's most recent row, ordered by customer.
func (ds *Dataset) Latest() []core.ChurnRow {
	var out []core.ChurnRow
	for i, r := range ds.Rows {
		if i == len(ds.Rows)-1 || ds.Rows[i+1].CustomerID != r.CustomerID {
			out = append(out, r)
		}
	}
	return out
}

// Positives counts churn-labelled rows.
func (ds *Dataset) Positives() int {
	n := 0
	for _, r := range ds.Rows {
		if r.Churn {
			n++
		}
	}
	return n
}

func features(r core.TrendRecord) []float64 {
	row := []float64{
		r.TotalTons,
		r.AvgTonsLast3,
		r.StdTonsLast3,
		float64(r.PeriodsSinceLastPurchase),
	}
	for j, v := range row {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			row[j] = 0
		}
	}
	return row
}
