// Package schema infers which columns of a sales table hold the customer,
// the date and the purchased quantity.
package schema

import (
	"strings"
	"unicode"

	"github.com/leapstack-labs/churnwatch/pkg/core"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Rule binds a role to the keywords that identify it in a column name.
type Rule struct {
	Role     core.Role
	Keywords []string
}

// DefaultRules are evaluated in order; keywords match as substrings.
var DefaultRules = []Rule{
	{Role: core.RoleCustomer, Keywords: []string{"cliente", "clt", "customer", "client"}},
	{Role: core.RoleDate, Keywords: []string{"fecha", "date", "anio", "mes", "year", "month"}},
	{Role: core.RoleQuantity, Keywords: []string{"ventas_kg", "cantidad", "kg", "quantity", "sales"}},
}

// splitPairs are exact year/month column names that form a split date.
var splitPairs = [][2]string{
	{"anio", "mes"},
	{"ano", "mes"},
	{"year", "month"},
}

// Detector resolves a SchemaMapping from column names.
type Detector struct {
	rules []Rule
	caser cases.Caser
}

// New creates a Detector. With no rules it uses DefaultRules.
func New(rules ...Rule) *Detector {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &Detector{rules: rules, caser: cases.Fold()}
}

// Detect resolves a mapping using DefaultRules.
func Detect(columns []string) (core.SchemaMapping, error) {
	return New().Detect(columns)
}

// Detect binds each role to the first column, in source order, whose folded
// name contains one of the role's keywords. A year/month column pair takes
// precedence for the date role. Every unresolved role is reported at once.
func (d *Detector) Detect(columns []string) (core.SchemaMapping, error) {
	folded := make([]string, len(columns))
	for i, c := range columns {
		folded[i] = d.fold(c)
	}

	var mapping core.SchemaMapping
	var missing []core.MissingRole

	yearCol, monthCol := findSplit(columns, folded)

	for _, rule := range d.rules {
		if rule.Role == core.RoleDate && yearCol != "" {
			mapping.DateCol = yearCol
			mapping.YearCol = yearCol
			mapping.MonthCol = monthCol
			continue
		}

		col := firstMatch(columns, folded, rule.Keywords)
		if col == "" {
			missing = append(missing, core.MissingRole{Role: rule.Role, Keywords: rule.Keywords})
			continue
		}
		switch rule.Role {
		case core.RoleCustomer:
			mapping.CustomerCol = col
		case core.RoleDate:
			mapping.DateCol = col
		case core.RoleQuantity:
			mapping.QuantityCol = col
		}
	}

	if len(missing) > 0 {
		return core.SchemaMapping{}, &core.MissingRoleError{
			Missing:   missing,
			Available: append([]string(nil), columns...),
		}
	}
	return mapping, nil
}

// fold lowercases a column name and strips diacritics.
func (d *Detector) fold(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	s, _, err := transform.String(t, name)
	if err != nil {
		s = name
	}
	return d.caser.String(strings.TrimSpace(s))
}

func firstMatch(columns, folded []string, keywords []string) string {
	for i, name := range folded {
		for _, kw := range keywords {
			if strings.Contains(name, kw) {
				return columns[i]
			}
		}
	}
	return ""
}

func findSplit(columns, folded []string) (string, string) {
	for _, pair := range splitPairs {
		yi, mi := -1, -1
		for i, name := range folded {
			if name == pair[0] && yi < 0 {
				yi = i
			}
			if name == pair[1] && mi < 0 {
				mi = i
			}
		}
		if yi >= 0 && mi >= 0 {
			return columns[yi], columns[mi]
		}
	}
	return "", ""
}
