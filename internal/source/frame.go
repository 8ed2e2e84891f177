package source

import (
	"strings"

	"metaquery/internal/timeseries"
)

// ColumnName builds the canonical column id for a symbol and optional field.
func ColumnName(symbol string, field *string) string {
	if field == nil {
		return symbol
	}
	return symbol + ":" + *field
}

// Frame is the column-addressable result of one batched fetch: a set of
// named columns, each an independent run of dated observations.
type Frame struct {
	columns map[string][]timeseries.Point
	order   []string
}

// NewFrame builds an empty frame.
func NewFrame() *Frame {
	return &Frame{columns: make(map[string][]timeseries.Point)}
}

// SetColumn stores a column, replacing any previous one with the same name.
func (f *Frame) SetColumn(name string, points []timeseries.Point) {
	if _, ok := f.columns[name]; !ok {
		f.order = append(f.order, name)
	}
	f.columns[name] = points
}

// Column returns a column by exact name.
func (f *Frame) Column(name string) ([]timeseries.Point, bool) {
	pts, ok := f.columns[name]
	return pts, ok
}

// Columns lists column names in insertion order.
func (f *Frame) Columns() []string {
	return append([]string(nil), f.order...)
}

// Resolve finds the column for a symbol and optional field. Providers are
// inconsistent about column naming, so it tries symbol:field, then symbol
// alone (some providers ignore the field), then a case-insensitive match on
// either (some providers normalize case in responses). Exact matches always
// win over case variants. It returns the points and the actual column name
// matched.
func (f *Frame) Resolve(symbol string, field *string) ([]timeseries.Point, string, bool) {
	candidates := []string{ColumnName(symbol, field), ColumnName(symbol, nil)}
	for _, candidate := range candidates {
		if pts, ok := f.columns[candidate]; ok {
			return pts, candidate, true
		}
	}
	for _, candidate := range candidates {
		for _, name := range f.order {
			if strings.EqualFold(name, candidate) {
				return f.columns[name], name, true
			}
		}
	}
	return nil, "", false
}
