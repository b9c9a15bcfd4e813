package testutil

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/churnwatch/pkg/core"
)

// SampleSales is a five row split year/month dataset: three customers,
// 6500 kg in total, CLT_002 buying 1500 kg in 2023-01 and 2000 kg in 2024-01.
func SampleSales() *core.Table {
	return &core.Table{
		Source:  "sample.csv",
		Columns: []string{"CLIENTE_ANONIMO", "ANIO", "MES", "VENTAS_KG"},
		Rows: [][]string{
			{"CLT_001", "2023", "1", "1000"},
			{"CLT_002", "2023", "1", "1500"},
			{"CLT_001", "2023", "2", "1200"},
			{"CLT_003", "2023", "2", "800"},
			{"CLT_002", "2024", "1", "2000"},
		},
	}
}

// MonthlySeries builds a single-date table where each customer buys the
// given kilograms on the first of consecutive months starting at 2023-01.
// A zero quantity means no purchase that month.
func MonthlySeries(series map[string][]float64) *core.Table {
	t := &core.Table{
		Source:  "series.csv",
		Columns: []string{"customer", "fecha", "cantidad"},
	}
	for customer, kgs := range series {
		for i, kg := range kgs {
			if kg == 0 {
				continue
			}
			month := 1 + i%12
			year := 2023 + i/12
			t.Rows = append(t.Rows, []string{
				customer,
				fmt.Sprintf("%04d-%02d-01", year, month),
				fmt.Sprintf("%g", kg),
			})
		}
	}
	return t
}

// Portfolio is a two year monthly dataset of 26 customers: 20 that keep
// buying every month and 6 that stop after the first year. It trains a
// churn model with both classes present.
func Portfolio() *core.Table {
	series := make(map[string][]float64)
	for c := 0; c < 20; c++ {
		kg := make([]float64, 24)
		for m := range kg {
			kg[m] = float64(1000 + 500*((c+m)%3))
		}
		series[fmt.Sprintf("ACT%02d", c)] = kg
	}
	for c := 0; c < 6; c++ {
		kg := make([]float64, 24)
		for m := 0; m < 12; m++ {
			kg[m] = float64(2000 + 1000*((c+m)%2))
		}
		series[fmt.Sprintf("LAP%02d", c)] = kg
	}
	t := MonthlySeries(series)
	t.Source = "portfolio.csv"
	return t
}

// WriteCSV writes table as a CSV file under dir and returns its path.
func WriteCSV(t testing.TB, dir, name string, table *core.Table) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	if err := w.Write(table.Columns); err != nil {
		t.Fatalf("write header: %v", err)
	}
	if err := w.WriteAll(table.Rows); err != nil {
		t.Fatalf("write rows: %v", err)
	}
	return path
}
