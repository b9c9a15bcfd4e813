package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel errors.
var (
	// ErrNoPriorAggregation is returned by steps that need aggregated data
	// when none has been produced yet.
	ErrNoPriorAggregation = errors.New("no aggregated data available, aggregate the data first")

	// ErrConflictingRules is returned when both risk thresholds are given.
	ErrConflictingRules = errors.New("only one of percentage or value threshold may be set")
)

// MissingRole describes one role the schema detector could not resolve.
type MissingRole struct {
	Role     Role     `json:"role"`
	Keywords []string `json:"keywords"`
}

// Message renders the role failure for display.
func (m MissingRole) Message() string {
	label := string(m.Role)
	if label != "" {
		label = strings.ToUpper(label[:1]) + label[1:]
	}
	return fmt.Sprintf("%s field not found (looks for: %s)", label, strings.Join(m.Keywords, ", "))
}

// MissingRoleError lists every unresolved role and the available columns.
type MissingRoleError struct {
	Missing   []MissingRole
	Available []string
}

func (e *MissingRoleError) Error() string {
	return fmt.Sprintf("%s; available columns: %s",
		strings.Join(e.Messages(), "; "), strings.Join(e.Available, ", "))
}

// Messages returns one line per missing role.
func (e *MissingRoleError) Messages() []string {
	out := make([]string, 0, len(e.Missing))
	for _, m := range e.Missing {
		out = append(out, m.Message())
	}
	return out
}

// UnresolvableDateError is returned when no row can yield a date.
type UnresolvableDateError struct {
	Mapping SchemaMapping
	Reason  string
}

func (e *UnresolvableDateError) Error() string {
	if e.Reason != "" {
		return "could not derive a date: " + e.Reason
	}
	return "could not derive a date from the dataset"
}

// InvalidGranularityError is returned for an unknown period selector or span.
type InvalidGranularityError struct {
	Value  string
	Reason string
}

func (e *InvalidGranularityError) Error() string {
	return fmt.Sprintf("invalid period %q: %s", e.Value, e.Reason)
}

// MonthlyRequiredError is returned when churn prediction runs on a
// non-monthly aggregation.
type MonthlyRequiredError struct {
	Span Span
}

func (e *MonthlyRequiredError) Error() string {
	return fmt.Sprintf("monthly aggregation required for churn prediction (current period: %s)", e.Span)
}

// SingleClassLabelError is returned when the churn labels cannot support a
// stratified train/test split.
type SingleClassLabelError struct {
	Counts map[int]int
}

func (e *SingleClassLabelError) Error() string {
	classes := make([]int, 0, len(e.Counts))
	for c := range e.Counts {
		classes = append(classes, c)
	}
	sort.Ints(classes)
	parts := make([]string, 0, len(classes))
	for _, c := range classes {
		parts = append(parts, fmt.Sprintf("class %d: %d", c, e.Counts[c]))
	}
	if len(classes) < 2 {
		return fmt.Sprintf("churn labels contain a single class (%s); adjust the inactivity threshold or provide more history",
			strings.Join(parts, ", "))
	}
	return fmt.Sprintf("churn labels are too imbalanced to stratify (%s); each class needs at least 2 rows",
		strings.Join(parts, ", "))
}

// UnknownCustomerError is returned when a customer ID has no aggregated data.
type UnknownCustomerError struct {
	CustomerID string
}

func (e *UnknownCustomerError) Error() string {
	return fmt.Sprintf("no data for customer %s", e.CustomerID)
}
