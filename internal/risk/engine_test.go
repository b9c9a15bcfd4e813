package risk

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/leapstack-labs/churnwatch/internal/aggregate"
	"github.com/leapstack-labs/churnwatch/internal/testutil"
	"github.com/leapstack-labs/churnwatch/internal/trend"
	"github.com/leapstack-labs/churnwatch/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func monthly(customer string, tons ...float64) []core.AggregatedRecord {
	base := core.Monthly.PeriodOf(time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC))
	out := make([]core.AggregatedRecord, len(tons))
	for i, v := range tons {
		out[i] = core.AggregatedRecord{
			CustomerID: customer,
			Period:     core.Period{Span: core.Monthly, Index: base.Index + int64(i)},
			TotalTons:  v,
		}
	}
	return out
}

func ptr(v float64) *float64 { return &v }

func TestIdentifyAtRisk_SampleDataset(t *testing.T) {
	mapping := core.SchemaMapping{
		CustomerCol: "CLIENTE_ANONIMO", DateCol: "ANIO", YearCol: "ANIO", MonthCol: "MES", QuantityCol: "VENTAS_KG",
	}
	res, err := aggregate.Aggregate(testutil.SampleSales(), mapping, core.Monthly)
	require.NoError(t, err)

	rows := trend.Build(res.Records)
	latest := Latest(rows)
	require.Len(t, latest, 3)

	clt2 := latest[1]
	require.Equal(t, "CLT_002", clt2.CustomerID)
	assert.Equal(t, "2024-01", clt2.Period.String())
	pct, value := Drop(clt2)
	assert.InDelta(t, -33.333, pct, 1e-3)
	assert.InDelta(t, -0.5, value, 1e-9)

	flags := IdentifyAtRisk(rows, Percent(30))
	for _, f := range flags {
		assert.NotEqual(t, "CLT_002", f.CustomerID, "growth is not a drop")
	}
}

func TestIdentifyAtRisk_SharpDrop(t *testing.T) {
	rows := trend.Build(monthly("C1", 100, 100, 10))

	flags := IdentifyAtRisk(rows, Percent(50))
	require.Len(t, flags, 1)
	assert.Equal(t, "C1", flags[0].CustomerID)
	assert.InDelta(t, 90, flags[0].DropPct, 1e-9)
	assert.InDelta(t, 90, flags[0].DropValue, 1e-9)
	assert.InDelta(t, 100, flags[0].AvgTonsLast3, 1e-9)
}

func TestIdentifyAtRisk_Rules(t *testing.T) {
	var records []core.AggregatedRecord
	records = append(records, monthly("A", 10, 10, 5)...) // 50%, 5 t
	records = append(records, monthly("B", 10, 10, 8)...) // 20%, 2 t
	records = append(records, monthly("C", 4, 4, 0)...)   // 100%, 4 t
	records = append(records, monthly("D", 7)...)         // no history
	rows := trend.Build(records)

	tests := []struct {
		name string
		rule Rule
		want []string
	}{
		{name: "percent boundary is inclusive", rule: Percent(50), want: []string{"A", "C"}},
		{name: "percent low threshold", rule: Percent(20), want: []string{"A", "B", "C"}},
		{name: "value boundary is inclusive", rule: Value(4), want: []string{"A", "C"}},
		{name: "value high threshold", rule: Value(4.5), want: []string{"A"}},
		{name: "inactive rule", rule: Rule{}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := []string{}
			for _, f := range IdentifyAtRisk(rows, tt.rule) {
				got = append(got, f.CustomerID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIdentifyAtRisk_NoHistoryHasZeroPercent(t *testing.T) {
	rows := trend.Build(monthly("D", 7))
	pct, value := Drop(rows[0])
	assert.Zero(t, pct)
	assert.InDelta(t, -7, value, 1e-9)
	assert.Empty(t, IdentifyAtRisk(rows, Percent(0.0001)))
}

func TestNewRule(t *testing.T) {
	_, err := NewRule(ptr(30), ptr(2))
	assert.True(t, errors.Is(err, core.ErrConflictingRules))

	r, err := NewRule(nil, nil)
	require.NoError(t, err)
	assert.False(t, r.Active())

	r, err = NewRule(ptr(30), nil)
	require.NoError(t, err)
	assert.Equal(t, Percent(30), r)

	r, err = NewRule(nil, ptr(1.5))
	require.NoError(t, err)
	assert.Equal(t, Value(1.5), r)

	_, err = NewRule(ptr(-1), nil)
	assert.ErrorContains(t, err, "must not be negative")
}

func TestNewRule_RejectsNonFinite(t *testing.T) {
	tests := []struct {
		name       string
		pct, value *float64
	}{
		{name: "nan percent", pct: ptr(math.NaN())},
		{name: "inf percent", pct: ptr(math.Inf(1))},
		{name: "nan value", value: ptr(math.NaN())},
		{name: "negative inf value", value: ptr(math.Inf(-1))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRule(tt.pct, tt.value)
			assert.ErrorContains(t, err, "finite")
		})
	}
}
