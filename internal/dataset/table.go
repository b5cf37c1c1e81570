// Package dataset turns raw shot sheets into estimation-ready panels: recoding
// the spreadsheet columns, scaling covariates, deriving lagged choices and
// grouping records by shooter.
package dataset

import (
	"math"
	"strconv"
	"strings"

	"kickchoice/internal/errors"
)

// Row is one record keyed by column header
type Row map[string]string

// RawTable is a header row plus string cells, as read from a sheet or CSV
type RawTable struct {
	Headers []string
	Rows    []Row
}

// NewRawTable builds a table from a header row and positional records.
// Headers are trimmed; cells beyond the header are ignored.
func NewRawTable(headers []string, records [][]string) *RawTable {
	t := &RawTable{Headers: make([]string, len(headers))}
	for i, h := range headers {
		t.Headers[i] = strings.TrimSpace(h)
	}
	t.Rows = make([]Row, 0, len(records))
	for _, rec := range records {
		row := make(Row, len(t.Headers))
		for j, cell := range rec {
			if j < len(t.Headers) {
				row[t.Headers[j]] = strings.TrimSpace(cell)
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// Len returns the number of rows
func (t *RawTable) Len() int {
	return len(t.Rows)
}

// HasColumn reports whether the header row contains name
func (t *RawTable) HasColumn(name string) bool {
	for _, h := range t.Headers {
		if h == name {
			return true
		}
	}
	return false
}

// Clone returns a deep copy
func (t *RawTable) Clone() *RawTable {
	c := &RawTable{Headers: append([]string(nil), t.Headers...), Rows: make([]Row, len(t.Rows))}
	for i, row := range t.Rows {
		r := make(Row, len(row))
		for k, v := range row {
			r[k] = v
		}
		c.Rows[i] = r
	}
	return c
}

// addColumn appends name to the header row unless it is already present
func (t *RawTable) addColumn(name string) {
	if !t.HasColumn(name) {
		t.Headers = append(t.Headers, name)
	}
}

// Records returns the table as positional records in header order
func (t *RawTable) Records() [][]string {
	out := make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		rec := make([]string, len(t.Headers))
		for j, h := range t.Headers {
			rec[j] = row[h]
		}
		out[i] = rec
	}
	return out
}

// Float parses one numeric column. Empty or unparsable cells are errors.
func (t *RawTable) Float(col string) ([]float64, error) {
	if !t.HasColumn(col) {
		return nil, errors.Wrapf(errors.ErrDataInvalid, "column %q not found", col)
	}
	out := make([]float64, len(t.Rows))
	for i, row := range t.Rows {
		v, ok := parseNumber(row[col])
		if !ok {
			return nil, errors.Wrapf(errors.ErrDataInvalid, "row %d column %q: %q is not a number", i+1, col, row[col])
		}
		out[i] = v
	}
	return out, nil
}

// parseNumber accepts plain and decimal-comma numbers
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN(), false
	}
	if !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return math.NaN(), false
	}
	return v, true
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
