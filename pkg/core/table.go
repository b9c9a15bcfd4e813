package core

import (
	"sort"
	"strings"
)

// Table is a raw tabular dataset as read from a CSV or XLSX file.
// Cells are kept as text; typing happens during aggregation.
type Table struct {
	Source  string     `json:"source"`
	Columns []string   `json:"columns"`
	Types   []string   `json:"types,omitempty"` // inferred source types, diagnostics only
	Rows    [][]string `json:"-"`
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Index returns the position of the named column, or -1.
func (t *Table) Index(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Cell returns the trimmed value at row i, column col. Short rows yield "".
func (t *Table) Cell(i, col int) string {
	if col < 0 || i < 0 || i >= len(t.Rows) || col >= len(t.Rows[i]) {
		return ""
	}
	return strings.TrimSpace(t.Rows[i][col])
}

// Distinct returns the sorted set of non-empty values of a column.
func (t *Table) Distinct(name string) []string {
	col := t.Index(name)
	if col < 0 {
		return nil
	}
	seen := make(map[string]struct{})
	for i := range t.Rows {
		if v := t.Cell(i, col); v != "" {
			seen[v] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
