package churn

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/leapstack-labs/churnwatch/internal/classifier"
	"github.com/leapstack-labs/churnwatch/internal/testutil"
	"github.com/leapstack-labs/churnwatch/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jan2023 = core.Monthly.PeriodOf(time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC))

// history returns monthly records from 2023-01; zero entries are omitted
// the way an aggregation of raw purchases omits them.
func history(customer string, tons ...float64) []core.AggregatedRecord {
	var out []core.AggregatedRecord
	for i, v := range tons {
		if v == 0 {
			continue
		}
		out = append(out, core.AggregatedRecord{
			CustomerID: customer,
			Period:     core.Period{Span: core.Monthly, Index: jan2023.Index + int64(i)},
			TotalTons:  v,
			TotalKg:    v * 1000,
		})
	}
	return out
}

// portfolio has active customers buying every month for two years and
// lapsed customers who stop after the first year.
func portfolio(active, lapsed int) []core.AggregatedRecord {
	var records []core.AggregatedRecord
	for c := 0; c < active; c++ {
		tons := make([]float64, 24)
		for m := range tons {
			tons[m] = 1 + float64((c+m)%3)
		}
		records = append(records, history(fmt.Sprintf("ACT%02d", c), tons...)...)
	}
	for c := 0; c < lapsed; c++ {
		tons := make([]float64, 24)
		for m := 0; m < 12; m++ {
			tons[m] = 2 + float64((c+m)%2)
		}
		records = append(records, history(fmt.Sprintf("LAP%02d", c), tons...)...)
	}
	return records
}

func TestBuildDataset_RequiresMonthly(t *testing.T) {
	_, err := BuildDataset(nil, core.Quarterly, Options{})
	var monthly *core.MonthlyRequiredError
	require.True(t, errors.As(err, &monthly))
	assert.Equal(t, core.Quarterly, monthly.Span)
}

func TestBuildDataset_DenseGridAndLabels(t *testing.T) {
	records := append(history("A", 5, 0, 0, 0, 0), history("B", 1, 1, 1, 1, 1)...)
	records = append(records, history("C", 5, 0, 0, 0, 4)...)
	ds, err := BuildDataset(records, core.Monthly, Options{InactivityPeriods: 3})
	require.NoError(t, err)

	require.Len(t, ds.Rows, 15, "three customers over five months")
	assert.Equal(t, ThresholdFixed, ds.Source)
	assert.InDelta(t, 3, ds.Threshold, 1e-9)

	labels := func(rows []core.ChurnRow) []bool {
		var out []bool
		for _, r := range rows {
			out = append(out, r.Churn)
		}
		return out
	}
	assert.Equal(t, []bool{false, false, false, true, true}, labels(ds.Rows[:5]))
	assert.Equal(t, []bool{false, false, false, false, false}, labels(ds.Rows[10:]),
		"a customer who buys again is never labeled inside the gap")
	assert.Equal(t, 2, ds.Positives())

	latest := ds.Latest()
	require.Len(t, latest, 3)
	assert.Equal(t, "2023-05", latest[0].Period.String())
}

func TestDynamicThreshold(t *testing.T) {
	rows := func(gaps ...int) []core.TrendRecord {
		out := make([]core.TrendRecord, len(gaps))
		for i, g := range gaps {
			out[i].PeriodsSinceLastPurchase = g
		}
		return out
	}

	tests := []struct {
		name string
		gaps []int
		want float64
	}{
		{name: "interpolated", gaps: []int{0, 1, 2, 3, 4, 5}, want: 4},
		{name: "between ranks", gaps: []int{1, 2, 3, 4}, want: 3.25},
		{name: "zeros ignored", gaps: []int{0, 0, 0, 6}, want: 6},
		{name: "no gaps floors at one", gaps: []int{0, 0}, want: 1},
		{name: "empty", gaps: nil, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, DynamicThreshold(rows(tt.gaps...)), 1e-9)
		})
	}
}

func TestBuildDataset_ThresholdAdapts(t *testing.T) {
	short := append(history("A", 1, 1, 1, 1, 1, 0, 0), history("B", 1, 1, 1, 1, 1, 1, 0)...)
	short = append(short, history("C", 1, 1, 1, 1, 1, 1, 1)...)
	long := append(history("A", 1, 0, 0, 0, 0, 0, 1), history("B", 1, 0, 0, 0, 0, 0, 0)...)

	shortDS, err := BuildDataset(short, core.Monthly, Options{})
	require.NoError(t, err)
	longDS, err := BuildDataset(long, core.Monthly, Options{})
	require.NoError(t, err)

	assert.Equal(t, ThresholdDynamic, shortDS.Source)
	assert.InDelta(t, 1.5, shortDS.Threshold, 1e-9)
	assert.InDelta(t, 4.75, longDS.Threshold, 1e-9)
	assert.Less(t, shortDS.Threshold, longDS.Threshold)
}

func TestBuildDataset_UniformCadenceHasNoChurn(t *testing.T) {
	tests := []struct {
		name    string
		records []core.AggregatedRecord
	}{
		{
			name:    "every month",
			records: append(history("A", 1, 2, 1, 2, 1, 2), history("B", 3, 3, 3, 3, 3, 3)...),
		},
		{
			name:    "every other month",
			records: append(history("B", 1, 0, 1, 0, 1, 0, 1), history("C", 2, 0, 2, 0, 2, 0, 2)...),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds, err := BuildDataset(tt.records, core.Monthly, Options{})
			require.NoError(t, err)

			assert.Equal(t, ThresholdDynamic, ds.Source)
			assert.GreaterOrEqual(t, ds.Threshold, 1.0)
			assert.Zero(t, ds.Positives())
			for _, r := range ds.Rows {
				assert.Zero(t, r.PeriodsSinceLastPurchase, "%s %s", r.CustomerID, r.Period)
			}
		})
	}
}

func TestPercentile(t *testing.T) {
	assert.InDelta(t, 2.5, Percentile([]float64{4, 1, 3, 2}, 50), 1e-9)
	assert.InDelta(t, 4, Percentile([]float64{4, 1, 3, 2}, 100), 1e-9)
	assert.InDelta(t, 1, Percentile([]float64{4, 1, 3, 2}, 0), 1e-9)
	assert.InDelta(t, 7, Percentile([]float64{7}, 75), 1e-9)
	assert.True(t, Percentile(nil, 75) != Percentile(nil, 75), "empty input is NaN")
}

func TestTrain_FlagsLapsedCustomers(t *testing.T) {
	ds, err := BuildDataset(portfolio(20, 20), core.Monthly, Options{})
	require.NoError(t, err)
	assert.InDelta(t, 9.25, ds.Threshold, 1e-9)

	clf := classifier.NewForest(classifier.ForestConfig{Trees: 30, Seed: 42, Balanced: true})
	report, err := Train(ds, clf, DefaultTrainConfig(), testutil.NewTestLogger(t))
	require.NoError(t, err)

	assert.Equal(t, 40*24, report.Rows)
	assert.Equal(t, 60, report.Positives)
	assert.Equal(t, report.Rows, report.TrainRows+report.TestRows)
	assert.Equal(t, 40, report.Customers)
	assert.Greater(t, report.Evaluation.Accuracy, 0.9)
	require.Len(t, report.Importances, len(FeatureNames))

	require.Len(t, report.AtRisk, 20)
	for i, p := range report.AtRisk {
		assert.Contains(t, p.CustomerID, "LAP")
		assert.Greater(t, p.Probability, 0.5)
		assert.Equal(t, 12, p.PeriodsSinceLastPurchase)
		if i > 0 {
			assert.GreaterOrEqual(t, report.AtRisk[i-1].Probability, p.Probability)
		}
	}
}

func TestTrain_SingleClass(t *testing.T) {
	ds, err := BuildDataset(portfolio(10, 0), core.Monthly, Options{})
	require.NoError(t, err)

	_, err = Train(ds, classifier.NewForest(classifier.DefaultForestConfig()), DefaultTrainConfig(), nil)
	var labelErr *core.SingleClassLabelError
	require.True(t, errors.As(err, &labelErr), "got %v", err)
}
