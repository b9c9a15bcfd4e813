package aggregate

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// dateLayouts are tried in order for single-column dates. Numeric dates are
// month first.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"1/2/2006",
	"1-2-2006",
	"1/2/06",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01",
	"2006/01",
	"200601",
}

func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty date")
	}
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported date format: %s", value)
}

// parseYearMonth builds the first day of the month from split columns.
// Values may carry a fractional zero ("2023.0") when read from typed sources.
func parseYearMonth(year, month string) (time.Time, error) {
	y, err := parseWhole(year)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid year %q: %w", year, err)
	}
	m, err := parseWhole(month)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid month %q: %w", month, err)
	}
	if m < 1 || m > 12 {
		return time.Time{}, fmt.Errorf("month %d out of range", m)
	}
	if y < 1 || y > 9999 {
		return time.Time{}, fmt.Errorf("year %d out of range", y)
	}
	return time.Date(y, time.Month(m), 1, 0, 0, 0, 0, time.UTC), nil
}

func parseWhole(s string) (int, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, errors.New("not a whole number")
	}
	return int(f), nil
}
