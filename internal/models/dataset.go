// Package models contains domain types for the campaign insights service.
package models

import (
	"fmt"
	"strings"
)

// Dataset is the merged table: ordered column names and string cells.
type Dataset struct {
	Columns []string   `json:"columns" msgpack:"columns"`
	Rows    [][]string `json:"rows" msgpack:"rows"`
}

// naValues mirrors the markers pandas treats as NaN when reading tabular files.
var naValues = map[string]struct{}{
	"":         {},
	"#N/A":     {},
	"#N/A N/A": {},
	"#NA":      {},
	"-1.#IND":  {},
	"-1.#QNAN": {},
	"-NaN":     {},
	"-nan":     {},
	"1.#IND":   {},
	"1.#QNAN":  {},
	"<NA>":     {},
	"N/A":      {},
	"NA":       {},
	"NULL":     {},
	"NaN":      {},
	"None":     {},
	"n/a":      {},
	"nan":      {},
	"null":     {},
}

// IsMissing reports whether a raw cell value counts as a missing value. The
// cell must match a marker exactly; whitespace is data.
func IsMissing(v string) bool {
	_, ok := naValues[v]
	return ok
}

// RowCount returns the number of data rows.
func (d *Dataset) RowCount() int {
	if d == nil {
		return 0
	}
	return len(d.Rows)
}

// ColumnIndex returns the position of name, or -1.
func (d *Dataset) ColumnIndex(name string) int {
	for i, c := range d.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// SameColumns reports whether cols matches the dataset columns by name and order.
func (d *Dataset) SameColumns(cols []string) bool {
	if len(cols) != len(d.Columns) {
		return false
	}
	for i := range cols {
		if cols[i] != d.Columns[i] {
			return false
		}
	}
	return true
}

// FirstMissing returns the row and column of the first missing cell.
func (d *Dataset) FirstMissing() (row, col int, found bool) {
	for r, cells := range d.Rows {
		if len(cells) < len(d.Columns) {
			return r, len(cells), true
		}
		for c, v := range cells {
			if IsMissing(v) {
				return r, c, true
			}
		}
	}
	return 0, 0, false
}

// Head returns a dataset holding at most the first n rows.
func (d *Dataset) Head(n int) *Dataset {
	if n > len(d.Rows) {
		n = len(d.Rows)
	}
	return &Dataset{Columns: d.Columns, Rows: d.Rows[:n]}
}

// Select projects the dataset onto cols in the given order.
func (d *Dataset) Select(cols []string) (*Dataset, error) {
	idx := make([]int, len(cols))
	for i, c := range cols {
		j := d.ColumnIndex(c)
		if j < 0 {
			return nil, fmt.Errorf("column %q not in dataset", c)
		}
		idx[i] = j
	}

	rows := make([][]string, len(d.Rows))
	for r, cells := range d.Rows {
		out := make([]string, len(idx))
		for i, j := range idx {
			out[i] = cells[j]
		}
		rows[r] = out
	}
	return &Dataset{Columns: append([]string(nil), cols...), Rows: rows}, nil
}

// Page returns rows for a 1-based page.
func (d *Dataset) Page(page, pageSize int) [][]string {
	if page < 1 || pageSize < 1 {
		return [][]string{}
	}
	start := (page - 1) * pageSize
	if start >= len(d.Rows) {
		return [][]string{}
	}
	end := start + pageSize
	if end > len(d.Rows) {
		end = len(d.Rows)
	}
	return d.Rows[start:end]
}

// String renders the dataset as a fixed-width text table without an index
// column, the way a dataframe prints.
func (d *Dataset) String() string {
	widths := make([]int, len(d.Columns))
	for i, c := range d.Columns {
		widths[i] = len(c)
	}
	for _, row := range d.Rows {
		for i, v := range row {
			if i < len(widths) && len(v) > widths[i] {
				widths[i] = len(v)
			}
		}
	}

	var sb strings.Builder
	writeRow := func(cells []string) {
		for i := range widths {
			v := ""
			if i < len(cells) {
				v = cells[i]
			}
			if i > 0 {
				sb.WriteString("  ")
			}
			sb.WriteString(fmt.Sprintf("%*s", widths[i], v))
		}
		sb.WriteString("\n")
	}
	writeRow(d.Columns)
	for _, row := range d.Rows {
		writeRow(row)
	}
	return strings.TrimRight(sb.String(), "\n")
}
