package domain

import (
	"fmt"
	"time"
)

// FeatureMatrix is an ordered sequence of feature rows sharing one column
// schema. Every row has exactly len(Columns) values, in column order.
// Dates carries the bar date for each row, parallel to Rows.
type FeatureMatrix struct {
	Columns []string
	Rows    [][]float64
	Dates   []time.Time
}

func (m *FeatureMatrix) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Rows)
}

// ColumnIndex returns the position of name in the schema, or -1.
func (m *FeatureMatrix) ColumnIndex(name string) int {
	if m == nil {
		return -1
	}
	for i, c := range m.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Column returns a copy of the named column's values.
func (m *FeatureMatrix) Column(name string) ([]float64, error) {
	idx := m.ColumnIndex(name)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrSchema, name)
	}
	out := make([]float64, len(m.Rows))
	for i := range m.Rows {
		out[i] = m.Rows[i][idx]
	}
	return out, nil
}

// Slice returns a view of rows [i, j). The backing rows are shared;
// the core never mutates matrix rows after construction.
func (m *FeatureMatrix) Slice(i, j int) *FeatureMatrix {
	if m == nil {
		return nil
	}
	if i < 0 {
		i = 0
	}
	if j > len(m.Rows) {
		j = len(m.Rows)
	}
	if i >= j {
		return &FeatureMatrix{Columns: m.Columns}
	}
	out := &FeatureMatrix{Columns: m.Columns, Rows: m.Rows[i:j]}
	if len(m.Dates) == len(m.Rows) {
		out.Dates = m.Dates[i:j]
	}
	return out
}

// Select builds a new matrix containing exactly the named columns, in the
// given order. Unknown names yield ErrSchemaMismatch.
func (m *FeatureMatrix) Select(names []string) (*FeatureMatrix, error) {
	if m == nil {
		return nil, ErrSchemaMismatch
	}
	idx := make([]int, len(names))
	for i, name := range names {
		pos := m.ColumnIndex(name)
		if pos < 0 {
			return nil, fmt.Errorf("%w: column %q not present", ErrSchemaMismatch, name)
		}
		idx[i] = pos
	}
	rows := make([][]float64, len(m.Rows))
	for r := range m.Rows {
		row := make([]float64, len(idx))
		for c, pos := range idx {
			row[c] = m.Rows[r][pos]
		}
		rows[r] = row
	}
	out := &FeatureMatrix{Columns: append([]string(nil), names...), Rows: rows}
	if len(m.Dates) == len(m.Rows) {
		out.Dates = append([]time.Time(nil), m.Dates...)
	}
	return out, nil
}
