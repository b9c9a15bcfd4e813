package aggregate

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/leapstack-labs/churnwatch/internal/testutil"
	"github.com/leapstack-labs/churnwatch/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sampleMapping = core.SchemaMapping{
	CustomerCol: "CLIENTE_ANONIMO",
	DateCol:     "ANIO",
	YearCol:     "ANIO",
	MonthCol:    "MES",
	QuantityCol: "VENTAS_KG",
}

func keyed(records []core.AggregatedRecord) map[string]core.AggregatedRecord {
	out := make(map[string]core.AggregatedRecord, len(records))
	for _, r := range records {
		out[r.CustomerID+"@"+r.Period.String()] = r
	}
	return out
}

func TestAggregate_Monthly(t *testing.T) {
	res, err := New(testutil.NewTestLogger(t)).Aggregate(testutil.SampleSales(), sampleMapping, core.Monthly)
	require.NoError(t, err)

	require.Len(t, res.Records, 5)
	assert.True(t, res.Validation.Valid)
	assert.InDelta(t, 6500, res.Validation.OriginalTotal, 1e-9)
	assert.InDelta(t, 6500, res.Validation.AggregatedTotal, 1e-9)
	assert.Zero(t, res.Skipped.Total())

	byKey := keyed(res.Records)
	assert.InDelta(t, 1.0, byKey["CLT_001@2023-01"].TotalTons, 1e-9)
	assert.InDelta(t, 1.2, byKey["CLT_001@2023-02"].TotalTons, 1e-9)
	assert.InDelta(t, 1.5, byKey["CLT_002@2023-01"].TotalTons, 1e-9)
	assert.InDelta(t, 2.0, byKey["CLT_002@2024-01"].TotalTons, 1e-9)
	assert.InDelta(t, 0.8, byKey["CLT_003@2023-02"].TotalTons, 1e-9)
	assert.Len(t, byKey, 5)

	assert.Equal(t, []string{"CLT_001", "CLT_002", "CLT_003"}, res.Customers())
}

func TestAggregate_TonsKeepFullPrecision(t *testing.T) {
	table := &core.Table{
		Columns: []string{"CLIENTE_ANONIMO", "ANIO", "MES", "VENTAS_KG"},
		Rows: [][]string{
			{"CLT_001", "2023", "1", "1.23456"},
			{"CLT_001", "2023", "1", "0.00004"},
		},
	}

	res, err := Aggregate(table, sampleMapping, core.Monthly)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)

	r := res.Records[0]
	assert.InDelta(t, 1.2346, r.TotalKg, 1e-12)
	assert.InDelta(t, 0.0012346, r.TotalTons, 1e-15)
	assert.InDelta(t, 0.0006173, r.AvgTons, 1e-15)
	assert.InDelta(t, 0.0012, r.DisplayTons(), 1e-15)

	single := &core.Table{Columns: table.Columns, Rows: table.Rows[:1]}
	res, err = Aggregate(single, sampleMapping, core.Monthly)
	require.NoError(t, err)
	assert.InDelta(t, 0.00123456, res.Records[0].TotalTons, 1e-15, "kg total is not rounded before conversion")
}

func TestAggregate_ColumnsAndOrder(t *testing.T) {
	table := testutil.SampleSales()
	table.Rows = append(table.Rows, []string{"CLT_001", "2023", "1", "500"})

	res, err := Aggregate(table, sampleMapping, core.Monthly)
	require.NoError(t, err)

	first := res.Records[0]
	assert.Equal(t, "CLT_001", first.CustomerID)
	assert.Equal(t, "2023-01", first.Period.String())
	assert.InDelta(t, 1500, first.TotalKg, 1e-9)
	assert.InDelta(t, 750, first.AvgKg, 1e-9)
	assert.Equal(t, 2, first.PurchaseCount)
	assert.InDelta(t, 1.5, first.TotalTons, 1e-9)
	assert.InDelta(t, 0.75, first.AvgTons, 1e-9)

	for i := 1; i < len(res.Records); i++ {
		prev, cur := res.Records[i-1], res.Records[i]
		if prev.CustomerID == cur.CustomerID {
			assert.True(t, prev.Period.Before(cur.Period))
		} else {
			assert.Less(t, prev.CustomerID, cur.CustomerID)
		}
	}
}

func TestAggregate_Granularities(t *testing.T) {
	tests := []struct {
		name string
		span core.Span
		want map[string]float64
	}{
		{
			name: "quarter",
			span: core.Quarterly,
			want: map[string]float64{"CLT_001@2023Q1": 2.2, "CLT_002@2023Q1": 1.5, "CLT_003@2023Q1": 0.8, "CLT_002@2024Q1": 2.0},
		},
		{
			name: "year",
			span: core.Yearly,
			want: map[string]float64{"CLT_001@2023": 2.2, "CLT_002@2023": 1.5, "CLT_003@2023": 0.8, "CLT_002@2024": 2.0},
		},
		{
			name: "two months",
			span: core.Span{Unit: core.UnitMonth, N: 2},
			want: map[string]float64{
				"CLT_001@2023-01-01/2023-02-28": 2.2,
				"CLT_002@2023-01-01/2023-02-28": 1.5,
				"CLT_003@2023-01-01/2023-02-28": 0.8,
				"CLT_002@2024-01-01/2024-02-29": 2.0,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Aggregate(testutil.SampleSales(), sampleMapping, tt.span)
			require.NoError(t, err)
			got := make(map[string]float64)
			for k, r := range keyed(res.Records) {
				got[k] = r.TotalTons
			}
			require.Len(t, got, len(tt.want))
			for k, v := range tt.want {
				assert.InDelta(t, v, got[k], 1e-9, k)
			}
			assert.True(t, res.Validation.Valid)
		})
	}
}

func TestAggregate_SingleDateColumn(t *testing.T) {
	table := &core.Table{
		Columns: []string{"customer", "fecha", "kg"},
		Rows: [][]string{
			{"A", "2023-01-15", "10"},
			{"A", "01/20/2023", "5,5"},
			{"A", "2023-02-01 08:30:00", "1"},
			{"B", "2023-02", "7"},
		},
	}
	mapping := core.SchemaMapping{CustomerCol: "customer", DateCol: "fecha", QuantityCol: "kg"}

	res, err := Aggregate(table, mapping, core.Monthly)
	require.NoError(t, err)
	byKey := keyed(res.Records)
	assert.InDelta(t, 15.5, byKey["A@2023-01"].TotalKg, 1e-9)
	assert.InDelta(t, 1, byKey["A@2023-02"].TotalKg, 1e-9)
	assert.InDelta(t, 7, byKey["B@2023-02"].TotalKg, 1e-9)
}

func TestAggregate_SkipsBadRowsAndFlagsMismatch(t *testing.T) {
	table := &core.Table{
		Columns: []string{"customer", "fecha", "kg"},
		Rows: [][]string{
			{"A", "2023-01-15", "100"},
			{"", "2023-01-15", "50"},
			{"A", "not a date", "50"},
			{"A", "2023-01-16", "abc"},
			{"A", "2023-01-17", "-4"},
		},
	}
	mapping := core.SchemaMapping{CustomerCol: "customer", DateCol: "fecha", QuantityCol: "kg"}

	res, err := Aggregate(table, mapping, core.Monthly)
	require.NoError(t, err, "mismatch is advisory")
	require.Len(t, res.Records, 1)
	assert.Equal(t, Skipped{Customer: 1, Quantity: 2, Date: 1}, res.Skipped)
	assert.False(t, res.Validation.Valid)
	assert.InDelta(t, 200, res.Validation.OriginalTotal, 1e-9)
	assert.InDelta(t, 100, res.Validation.AggregatedTotal, 1e-9)
	assert.InDelta(t, -100, res.Validation.Difference, 1e-9)
}

func TestAggregate_UnresolvableDate(t *testing.T) {
	tests := []struct {
		name    string
		table   *core.Table
		mapping core.SchemaMapping
	}{
		{
			name:    "date columns absent",
			table:   &core.Table{Columns: []string{"c", "q"}, Rows: [][]string{{"A", "1"}}},
			mapping: core.SchemaMapping{CustomerCol: "c", DateCol: "d", QuantityCol: "q"},
		},
		{
			name:    "split columns absent",
			table:   &core.Table{Columns: []string{"c", "q"}, Rows: [][]string{{"A", "1"}}},
			mapping: core.SchemaMapping{CustomerCol: "c", DateCol: "y", YearCol: "y", MonthCol: "m", QuantityCol: "q"},
		},
		{
			name:    "no row parses",
			table:   &core.Table{Columns: []string{"c", "d", "q"}, Rows: [][]string{{"A", "soon", "1"}, {"B", "later", "2"}}},
			mapping: core.SchemaMapping{CustomerCol: "c", DateCol: "d", QuantityCol: "q"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Aggregate(tt.table, tt.mapping, core.Monthly)
			var dateErr *core.UnresolvableDateError
			require.Error(t, err)
			assert.True(t, errors.As(err, &dateErr))
		})
	}
}

func TestAggregate_DoesNotMutateInput(t *testing.T) {
	table := testutil.SampleSales()
	before := fmt.Sprint(table.Rows)
	_, err := Aggregate(table, sampleMapping, core.Quarterly)
	require.NoError(t, err)
	assert.Equal(t, before, fmt.Sprint(table.Rows))
}

func TestAggregate_PreservesTotalsOnRandomTables(t *testing.T) {
	spans := []core.Span{core.Monthly, core.Quarterly, core.Yearly, {Unit: core.UnitWeek, N: 2}, {Unit: core.UnitDay, N: 1}}
	rng := rand.New(rand.NewPCG(42, 7))

	for trial := 0; trial < 25; trial++ {
		table := &core.Table{Columns: []string{"cliente", "fecha", "ventas_kg"}}
		n := 1 + rng.IntN(300)
		for i := 0; i < n; i++ {
			table.Rows = append(table.Rows, []string{
				fmt.Sprintf("C%02d", rng.IntN(12)),
				fmt.Sprintf("%04d-%02d-%02d", 2021+rng.IntN(3), 1+rng.IntN(12), 1+rng.IntN(28)),
				fmt.Sprintf("%d.%02d", rng.IntN(5000), rng.IntN(100)),
			})
		}
		mapping := core.SchemaMapping{CustomerCol: "cliente", DateCol: "fecha", QuantityCol: "ventas_kg"}

		for _, span := range spans {
			res, err := Aggregate(table, mapping, span)
			require.NoError(t, err)
			assert.True(t, res.Validation.Valid, "trial %d span %s: %+v", trial, span, res.Validation)

			seen := make(map[string]bool)
			count := 0
			for _, r := range res.Records {
				key := r.CustomerID + "@" + r.Period.String()
				assert.False(t, seen[key], "duplicate group %s", key)
				seen[key] = true
				count += r.PurchaseCount
			}
			assert.Equal(t, n, count)
		}
	}
}
