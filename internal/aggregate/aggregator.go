// Package aggregate groups raw sales rows into per-customer, per-period totals.
package aggregate

import (
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/leapstack-labs/churnwatch/pkg/core"
	"github.com/shopspring/decimal"
)

// TolerancePct is the largest relative gap, in percent, between the source
// total and the aggregated total that still counts as preserved.
const TolerancePct = 0.01

var (
	kgPerTon = decimal.NewFromInt(1000)
	hundred  = decimal.NewFromInt(100)
)

// Validation compares the source quantity total with the aggregated total.
// It is advisory: a mismatch is reported, never returned as an error.
type Validation struct {
	Valid           bool    `json:"valid"`
	OriginalTotal   float64 `json:"original_total"`
	AggregatedTotal float64 `json:"aggregated_total"`
	Difference      float64 `json:"difference"`
	Tolerance       float64 `json:"tolerance"`
}

// Skipped counts rows left out of the aggregation, by cause.
type Skipped struct {
	Customer int `json:"customer"`
	Quantity int `json:"quantity"`
	Date     int `json:"date"`
}

// Total returns the number of skipped rows.
func (s Skipped) Total() int {
	return s.Customer + s.Quantity + s.Date
}

// Result is the output of one aggregation.
type Result struct {
	Span       core.Span               `json:"-"`
	Records    []core.AggregatedRecord `json:"records"`
	Validation Validation              `json:"validation"`
	Rows       int                     `json:"rows"`
	Skipped    Skipped                 `json:"skipped"`
}

// Customers returns the sorted customer IDs present in the result.
func (r *Result) Customers() []string {
	var out []string
	for i, rec := range r.Records {
		if i == 0 || rec.CustomerID != r.Records[i-1].CustomerID {
			out = append(out, rec.CustomerID)
		}
	}
	return out
}

// Aggregator groups sales rows by customer and period.
type Aggregator struct {
	logger *slog.Logger
}

// New creates an Aggregator. A nil logger discards output.
func New(logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Aggregator{logger: logger}
}

// Aggregate runs an aggregation with a discarding logger.
func Aggregate(t *core.Table, m core.SchemaMapping, span core.Span) (*Result, error) {
	return New(nil).Aggregate(t, m, span)
}

type groupKey struct {
	customer string
	index    int64
}

type group struct {
	total decimal.Decimal
	count int
}

// Aggregate sums the quantity column per (customer, period). The input table
// is not modified. Records come back ordered by customer, then period.
func (a *Aggregator) Aggregate(t *core.Table, m core.SchemaMapping, span core.Span) (*Result, error) {
	if !span.Valid() {
		return nil, &core.InvalidGranularityError{Value: span.String(), Reason: "span must be positive"}
	}

	dateOf, err := resolveDate(t, m)
	if err != nil {
		return nil, err
	}
	custCol := t.Index(m.CustomerCol)
	qtyCol := t.Index(m.QuantityCol)

	res := &Result{Span: span, Rows: t.Len()}
	original := decimal.Zero
	groups := make(map[groupKey]*group)
	datedRows := 0

	for i := range t.Rows {
		qty, ok := parseQuantity(t.Cell(i, qtyCol))
		if !ok {
			res.Skipped.Quantity++
			continue
		}
		original = original.Add(qty)

		customer := t.Cell(i, custCol)
		if customer == "" {
			res.Skipped.Customer++
			continue
		}

		at, err := dateOf(i)
		if err != nil {
			res.Skipped.Date++
			a.logger.Debug("skipping row without a usable date", "row", i+1, "error", err)
			continue
		}
		datedRows++

		key := groupKey{customer: customer, index: span.PeriodOf(at).Index}
		g := groups[key]
		if g == nil {
			g = &group{}
			groups[key] = g
		}
		g.total = g.total.Add(qty)
		g.count++
	}

	if datedRows == 0 && res.Skipped.Date > 0 {
		return nil, &core.UnresolvableDateError{
			Mapping: m,
			Reason:  "no row has a parseable date in column " + m.DateCol,
		}
	}

	aggregated := decimal.Zero
	res.Records = make([]core.AggregatedRecord, 0, len(groups))
	for key, g := range groups {
		aggregated = aggregated.Add(g.total)
		totalKg := g.total
		avgKg := g.total.Div(decimal.NewFromInt(int64(g.count)))
		res.Records = append(res.Records, core.AggregatedRecord{
			CustomerID:    key.customer,
			Period:        core.Period{Span: span, Index: key.index},
			TotalKg:       totalKg.InexactFloat64(),
			AvgKg:         avgKg.InexactFloat64(),
			PurchaseCount: g.count,
			TotalTons:     totalKg.Div(kgPerTon).InexactFloat64(),
			AvgTons:       avgKg.Div(kgPerTon).InexactFloat64(),
		})
	}
	sort.Slice(res.Records, func(i, j int) bool {
		x, y := res.Records[i], res.Records[j]
		if x.CustomerID != y.CustomerID {
			return x.CustomerID < y.CustomerID
		}
		return x.Period.Before(y.Period)
	})

	res.Validation = validate(original, aggregated)
	if !res.Validation.Valid {
		a.logger.Warn("aggregated total does not match source total",
			"original", res.Validation.OriginalTotal,
			"aggregated", res.Validation.AggregatedTotal,
			"difference", res.Validation.Difference,
			"skipped_rows", res.Skipped.Total())
	}
	a.logger.Debug("aggregation complete",
		"span", span.String(),
		"rows", res.Rows,
		"records", len(res.Records),
		"skipped", res.Skipped.Total())

	return res, nil
}

func validate(original, aggregated decimal.Decimal) Validation {
	diff := aggregated.Sub(original)
	tolerance := original.Abs().Mul(decimal.NewFromFloat(TolerancePct)).Div(hundred)
	return Validation{
		Valid:           diff.Abs().LessThanOrEqual(tolerance),
		OriginalTotal:   original.InexactFloat64(),
		AggregatedTotal: aggregated.InexactFloat64(),
		Difference:      diff.InexactFloat64(),
		Tolerance:       tolerance.InexactFloat64(),
	}
}

// resolveDate returns a per-row date accessor. Split year/month columns are
// preferred; a single date column is the fallback.
func resolveDate(t *core.Table, m core.SchemaMapping) (func(int) (time.Time, error), error) {
	if m.Split() {
		yi, mi := t.Index(m.YearCol), t.Index(m.MonthCol)
		if yi >= 0 && mi >= 0 {
			return func(row int) (time.Time, error) {
				return parseYearMonth(t.Cell(row, yi), t.Cell(row, mi))
			}, nil
		}
	}
	if di := t.Index(m.DateCol); di >= 0 && !m.Split() {
		return func(row int) (time.Time, error) {
			return parseDate(t.Cell(row, di))
		}, nil
	}
	return nil, &core.UnresolvableDateError{
		Mapping: m,
		Reason:  "neither year/month columns nor a date column are present",
	}
}

// parseQuantity reads a non-negative decimal. A lone comma is accepted as
// the decimal separator.
func parseQuantity(s string) (decimal.Decimal, bool) {
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil && strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		d, err = decimal.NewFromString(strings.Replace(s, ",", ".", 1))
	}
	if err != nil || d.IsNegative() {
		return decimal.Zero, false
	}
	return d, true
}
