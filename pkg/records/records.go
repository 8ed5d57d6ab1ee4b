// Package records defines the generic record shape shared by the parser and
// the transformers.
package records

// Record is one decoded input object. Values are string, int64, float64, bool,
// nil, or nested []any / map[string]any.
type Record map[string]any

// Present reports whether field exists and is not JSON null.
func (r Record) Present(field string) bool {
	v, ok := r[field]
	return ok && v != nil
}

// String returns the field as a string when it holds one.
func (r Record) String(field string) (string, bool) {
	s, ok := r[field].(string)
	return s, ok
}

// Missing returns the subset of fields that are absent or null, in order.
func (r Record) Missing(fields ...string) []string {
	var out []string
	for _, f := range fields {
		if !r.Present(f) {
			out = append(out, f)
		}
	}
	return out
}
