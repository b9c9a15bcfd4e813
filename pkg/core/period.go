package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Unit is the calendar unit a Span counts in.
type Unit int

// Span units.
const (
	UnitDay Unit = iota + 1
	UnitWeek
	UnitMonth
)

// Span is a calendar aligned bucket width: N days, weeks or months.
// Quarters and years are month spans of 3 and 12.
type Span struct {
	Unit Unit `json:"unit"`
	N    int  `json:"n"`
}

// Named spans.
var (
	Monthly   = Span{Unit: UnitMonth, N: 1}
	Quarterly = Span{Unit: UnitMonth, N: 3}
	Yearly    = Span{Unit: UnitMonth, N: 12}
)

// weekEpoch is a Monday; day and week buckets count from it.
var weekEpoch = time.Date(1970, time.January, 5, 0, 0, 0, 0, time.UTC)

const secondsPerDay = 24 * 60 * 60

// Valid reports whether the span can bucket dates.
func (s Span) Valid() bool {
	return s.N > 0 && s.Unit >= UnitDay && s.Unit <= UnitMonth
}

// IsMonthly reports whether the span is exactly one calendar month.
func (s Span) IsMonthly() bool {
	return s == Monthly
}

// String renders the span in offset-alias form (M, Q, Y, 2W, 3D).
func (s Span) String() string {
	switch s {
	case Monthly:
		return "M"
	case Quarterly:
		return "Q"
	case Yearly:
		return "Y"
	}
	var unit string
	switch s.Unit {
	case UnitDay:
		unit = "D"
	case UnitWeek:
		unit = "W"
	case UnitMonth:
		unit = "M"
	default:
		return "invalid"
	}
	if s.N == 1 {
		return unit
	}
	return strconv.Itoa(s.N) + unit
}

// ParseSpan parses an offset alias such as "W", "2W", "D", "3M", "Q" or "Y".
// "A" is accepted as an alias for "Y".
func ParseSpan(s string) (Span, error) {
	raw := strings.ToUpper(strings.TrimSpace(s))
	if raw == "" {
		return Span{}, &InvalidGranularityError{Value: s, Reason: "empty custom span"}
	}

	i := 0
	for i < len(raw) && raw[i] >= '0' && raw[i] <= '9' {
		i++
	}
	n := 1
	if i > 0 {
		v, err := strconv.Atoi(raw[:i])
		if err != nil || v <= 0 {
			return Span{}, &InvalidGranularityError{Value: s, Reason: "multiplier must be a positive integer"}
		}
		n = v
	}

	var span Span
	switch raw[i:] {
	case "D":
		span = Span{Unit: UnitDay, N: n}
	case "W":
		span = Span{Unit: UnitWeek, N: n}
	case "M", "MS":
		span = Span{Unit: UnitMonth, N: n}
	case "Q", "QS":
		span = Span{Unit: UnitMonth, N: 3 * n}
	case "Y", "YS", "A", "AS":
		span = Span{Unit: UnitMonth, N: 12 * n}
	default:
		return Span{}, &InvalidGranularityError{Value: s, Reason: "unknown unit"}
	}
	return span, nil
}

// ParseGranularity resolves a granularity selector to a Span.
// name is one of month, quarter, year or custom; custom requires customSpan.
func ParseGranularity(name, customSpan string) (Span, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "month", "monthly", "m":
		return Monthly, nil
	case "quarter", "quarterly", "q":
		return Quarterly, nil
	case "year", "yearly", "annual", "y":
		return Yearly, nil
	case "custom":
		if strings.TrimSpace(customSpan) == "" {
			return Span{}, &InvalidGranularityError{Value: name, Reason: "custom granularity requires a span"}
		}
		return ParseSpan(customSpan)
	default:
		return Span{}, &InvalidGranularityError{Value: name, Reason: "expected month, quarter, year or custom"}
	}
}

// Period is one bucket of a Span. Index counts buckets from a fixed epoch,
// so periods of the same span order and subtract as integers.
type Period struct {
	Span  Span
	Index int64
}

// PeriodOf returns the bucket of span that contains t.
func (s Span) PeriodOf(t time.Time) Period {
	switch s.Unit {
	case UnitMonth:
		m := int64(t.Year())*12 + int64(t.Month()-1)
		return Period{Span: s, Index: floorDiv(m, int64(s.N))}
	case UnitWeek:
		return Period{Span: s, Index: floorDiv(daysSinceEpoch(t), 7*int64(s.N))}
	default:
		return Period{Span: s, Index: floorDiv(daysSinceEpoch(t), int64(s.N))}
	}
}

// IsZero reports whether p is the zero Period.
func (p Period) IsZero() bool {
	return p.Span == Span{}
}

// Start returns the first day of the period.
func (p Period) Start() time.Time {
	switch p.Span.Unit {
	case UnitMonth:
		m := p.Index * int64(p.Span.N)
		y := floorDiv(m, 12)
		return time.Date(int(y), time.Month(m-y*12+1), 1, 0, 0, 0, 0, time.UTC)
	case UnitWeek:
		return weekEpoch.AddDate(0, 0, int(p.Index*7*int64(p.Span.N)))
	default:
		return weekEpoch.AddDate(0, 0, int(p.Index*int64(p.Span.N)))
	}
}

// End returns the last day of the period.
func (p Period) End() time.Time {
	return p.Next().Start().AddDate(0, 0, -1)
}

// Next returns the following period.
func (p Period) Next() Period {
	return Period{Span: p.Span, Index: p.Index + 1}
}

// Since returns how many periods separate earlier from p.
func (p Period) Since(earlier Period) int {
	return int(p.Index - earlier.Index)
}

// Before reports whether p precedes o.
func (p Period) Before(o Period) bool {
	return p.Index < o.Index
}

// Compare returns -1, 0 or 1 ordering p against o.
func (p Period) Compare(o Period) int {
	switch {
	case p.Index < o.Index:
		return -1
	case p.Index > o.Index:
		return 1
	default:
		return 0
	}
}

// String returns the canonical period key: 2023-01, 2023Q1, 2023,
// 2023-01-02, or a start/end date range for other spans.
func (p Period) String() string {
	if p.IsZero() {
		return ""
	}
	start := p.Start()
	switch p.Span {
	case Monthly:
		return start.Format("2006-01")
	case Quarterly:
		return fmt.Sprintf("%dQ%d", start.Year(), (int(start.Month())-1)/3+1)
	case Yearly:
		return strconv.Itoa(start.Year())
	case Span{Unit: UnitDay, N: 1}:
		return start.Format("2006-01-02")
	}
	return start.Format("2006-01-02") + "/" + p.End().Format("2006-01-02")
}

// MarshalText encodes the period as its canonical key.
func (p Period) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func daysSinceEpoch(t time.Time) int64 {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return (d.Unix() - weekEpoch.Unix()) / secondsPerDay
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
