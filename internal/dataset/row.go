package dataset

import "strings"

// Row is one record of a delimited table: an ordered column -> value mapping.
//
// Rows are values; With returns a modified copy and never mutates the receiver.
type Row struct {
	cols []string
	vals map[string]string
}

// NewRow pairs columns with values. Missing trailing values are stored as "".
func NewRow(cols []string, values []string) Row {
	r := Row{
		cols: make([]string, len(cols)),
		vals: make(map[string]string, len(cols)),
	}
	copy(r.cols, cols)
	for i, c := range cols {
		v := ""
		if i < len(values) {
			v = values[i]
		}
		r.vals[c] = v
	}
	return r
}

// Columns returns the row's keys in insertion order.
func (r Row) Columns() []string {
	out := make([]string, len(r.cols))
	copy(out, r.cols)
	return out
}

// Get returns the value for col and whether the row has that column.
func (r Row) Get(col string) (string, bool) {
	v, ok := r.vals[col]
	return v, ok
}

// Value returns the value for col, or "" when absent.
func (r Row) Value(col string) string {
	return r.vals[col]
}

// Has reports whether the row carries col.
func (r Row) Has(col string) bool {
	_, ok := r.vals[col]
	return ok
}

// With returns a copy of r with col set to value. New columns are appended.
func (r Row) With(col, value string) Row {
	out := Row{
		cols: make([]string, len(r.cols), len(r.cols)+1),
		vals: make(map[string]string, len(r.vals)+1),
	}
	copy(out.cols, r.cols)
	for k, v := range r.vals {
		out.vals[k] = v
	}
	if _, ok := out.vals[col]; !ok {
		out.cols = append(out.cols, col)
	}
	out.vals[col] = value
	return out
}

// Values returns the row's values laid out by header. Columns the row lacks are "".
func (r Row) Values(header []string) []string {
	out := make([]string, len(header))
	for i, col := range header {
		out[i] = r.vals[col]
	}
	return out
}

// FindColumn locates name in header case-insensitively, ignoring surrounding spaces,
// and returns the header's own spelling.
func FindColumn(header []string, name string) (string, bool) {
	want := strings.TrimSpace(name)
	for _, col := range header {
		if strings.EqualFold(strings.TrimSpace(col), want) {
			return col, true
		}
	}
	return "", false
}
