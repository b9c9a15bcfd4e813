package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/leapstack-labs/churnwatch/pkg/core"
	"github.com/xuri/excelize/v2"
)

// XLSXReader reads the first worksheet of an XLSX workbook. The first row
// is the header.
type XLSXReader struct{}

// NewXLSXReader creates an XLSXReader.
func NewXLSXReader() *XLSXReader {
	return &XLSXReader{}
}

// Read returns the raw cell values of the first sheet. Date-formatted cells
// hold serial numbers in the workbook and are returned as ISO dates.
func (r *XLSXReader) Read(ctx context.Context, path string) (*core.Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	sheet := sheets[0]
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return &core.Table{}, nil
	}

	dates := newDateCells(f, sheet)
	table := &core.Table{Columns: make([]string, len(rows[0]))}
	for i, h := range rows[0] {
		table.Columns[i] = strings.TrimSpace(h)
	}
	for n, raw := range rows[1:] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if blank(raw) {
			continue
		}
		row := make([]string, len(table.Columns))
		copy(row, raw)
		for col, v := range row {
			if iso, ok := dates.convert(col+1, n+2, v); ok {
				row[col] = iso
			}
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// dateCells turns date-styled serial numbers into ISO strings. Style lookups
// are cached by style index.
type dateCells struct {
	f        *excelize.File
	sheet    string
	date1904 bool
	styles   map[int]bool
}

func newDateCells(f *excelize.File, sheet string) *dateCells {
	d := &dateCells{f: f, sheet: sheet, styles: make(map[int]bool)}
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		d.date1904 = *props.Date1904
	}
	return d
}

func (d *dateCells) convert(col, row int, value string) (string, bool) {
	serial, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return "", false
	}
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return "", false
	}
	idx, err := d.f.GetCellStyle(d.sheet, cell)
	if err != nil || !d.isDateStyle(idx) {
		return "", false
	}
	t, err := excelize.ExcelDateToTime(serial, d.date1904)
	if err != nil {
		return "", false
	}
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
		return t.Format("2006-01-02"), true
	}
	return t.Format("2006-01-02 15:04:05"), true
}

func (d *dateCells) isDateStyle(idx int) bool {
	if idx == 0 {
		return false
	}
	if ok, seen := d.styles[idx]; seen {
		return ok
	}
	ok := false
	if style, err := d.f.GetStyle(idx); err == nil && style != nil {
		ok = isDateNumFmt(style.NumFmt)
		if style.CustomNumFmt != nil {
			ok = isDateFormatCode(*style.CustomNumFmt)
		}
	}
	d.styles[idx] = ok
	return ok
}

// isDateNumFmt reports whether a built-in number format id renders a date.
func isDateNumFmt(id int) bool {
	switch {
	case id >= 14 && id <= 17, id == 22:
		return true
	case id >= 27 && id <= 36, id >= 50 && id <= 58:
		return true
	}
	return false
}

// isDateFormatCode reports whether a custom format code contains day or
// year tokens outside quoted literals and brackets.
func isDateFormatCode(code string) bool {
	inQuote, inBracket := false, false
	for _, c := range strings.ToLower(code) {
		switch {
		case c == '"':
			inQuote = !inQuote
		case inQuote:
		case c == '[':
			inBracket = true
		case c == ']':
			inBracket = false
		case inBracket:
		case c == 'd', c == 'y':
			return true
		}
	}
	return false
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
