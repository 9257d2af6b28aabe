package models

import (
	"math"
	"strings"
)

// Column is a named, ordered sequence of scalar values. A value is one of
// nil, string, bool, int, int64, float64 or time.Time.
type Column struct {
	Name   string `json:"name"`
	Values []any  `json:"values"`
}

// Dataset is an in-memory columnar table. It is treated as immutable once
// loaded.
type Dataset struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// RowCount returns the length of the first column. Callers that need to
// detect ragged input should compare every column themselves.
func (d *Dataset) RowCount() int {
	if d == nil || len(d.Columns) == 0 {
		return 0
	}
	return len(d.Columns[0].Values)
}

// ColumnNames returns the column names in dataset order.
func (d *Dataset) ColumnNames() []string {
	if d == nil {
		return nil
	}
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}

// nullTokens are string cell values treated as missing.
var nullTokens = map[string]struct{}{
	"":     {},
	"null": {},
	"none": {},
	"nan":  {},
	"n/a":  {},
	"na":   {},
}

// IsNullValue reports whether v counts as a missing cell.
func IsNullValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		_, ok := nullTokens[strings.ToLower(strings.TrimSpace(t))]
		return ok
	case *string:
		return t == nil || IsNullValue(*t)
	case float64:
		return math.IsNaN(t)
	case float32:
		return math.IsNaN(float64(t))
	default:
		return false
	}
}
