package index

import (
	"fmt"
	"sort"
)

// Filter restricts a search to records whose metadata matches. The zero value
// (nil or empty map) matches every record.
//
// Each top-level key names a metadata field (wire spelling, see
// [Metadata.Field]) and maps to either a literal value (equality) or an
// operator object {"$eq": value}. Multiple keys AND together. The special key
// "$or" maps to a list of sub-filters of which at least one must match:
//
//	Filter{"source": "handbook.pdf"}
//	Filter{"pageNumber": Filter{"$eq": 3}}
//	Filter{"$or": []Filter{{"source": "a.pdf"}, {"documentTitle": "a.pdf"}}}
//
// Filters typically arrive as decoded JSON, so alternative lists may be []any
// and operator objects map[string]any; both are accepted anywhere a Filter or
// value is expected.
type Filter map[string]any

// Clause is one normalized top-level constraint of a Filter, produced by
// [Filter.Clauses]. Exactly one of the two shapes is populated: an $or group
// (IsOr true, alternatives in Or) or a field equality (Field, Value).
type Clause struct {
	// IsOr marks an $or group. It distinguishes an empty group from an
	// equality clause.
	IsOr bool
	// Or holds the alternative sub-filters of an $or group.
	Or []Filter
	// Field is the metadata field name of an equality clause.
	Field string
	// Value is the required field value, with any {"$eq": v} wrapper removed.
	Value any
}

// Clauses normalizes the filter into its top-level constraints in
// deterministic (sorted-key) order. It returns an error for unknown field
// names, operator objects other than {"$eq": v}, and malformed $or values.
func (f Filter) Clauses() ([]Clause, error) {
	if len(f) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]Clause, 0, len(keys))
	for _, key := range keys {
		want := f[key]

		if key == "$or" {
			alts, err := orAlternatives(want)
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, Clause{IsOr: true, Or: alts})
			continue
		}

		if _, ok := (Metadata{}).Field(key); !ok {
			return nil, fmt.Errorf("index: unknown filter field %q", key)
		}
		if op, isOp := operatorObject(want); isOp {
			eq, ok := op["$eq"]
			if !ok || len(op) != 1 {
				return nil, fmt.Errorf("index: field %q supports only the $eq operator", key)
			}
			want = eq
		}
		clauses = append(clauses, Clause{Field: key, Value: want})
	}
	return clauses, nil
}

// Validate reports whether the filter is well-formed, recursing into $or
// groups. A valid filter never causes Matches to reject a record for a
// structural reason.
func (f Filter) Validate() error {
	clauses, err := f.Clauses()
	if err != nil {
		return err
	}
	for _, c := range clauses {
		if !c.IsOr {
			continue
		}
		if len(c.Or) == 0 {
			return fmt.Errorf("index: $or requires at least one alternative")
		}
		for _, alt := range c.Or {
			if err := alt.Validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Matches reports whether m satisfies the filter. Malformed clauses match
// nothing; call Validate first to surface them as errors instead.
func (f Filter) Matches(m Metadata) bool {
	clauses, err := f.Clauses()
	if err != nil {
		return false
	}
	for _, c := range clauses {
		if c.IsOr {
			anyMatch := false
			for _, alt := range c.Or {
				if alt.Matches(m) {
					anyMatch = true
					break
				}
			}
			if !anyMatch {
				return false
			}
			continue
		}

		got, ok := m.Field(c.Field)
		if !ok {
			return false
		}
		if !equalValue(got, c.Value) {
			return false
		}
	}
	return true
}

// orAlternatives normalizes the value of an $or key into a slice of Filters.
// JSON decoding yields []any of map[string]any; hand-built filters may use
// []Filter or []map[string]any directly.
func orAlternatives(v any) ([]Filter, error) {
	switch alts := v.(type) {
	case []Filter:
		return alts, nil
	case []map[string]any:
		out := make([]Filter, len(alts))
		for i, m := range alts {
			out[i] = Filter(m)
		}
		return out, nil
	case []any:
		out := make([]Filter, 0, len(alts))
		for _, raw := range alts {
			switch sub := raw.(type) {
			case Filter:
				out = append(out, sub)
			case map[string]any:
				out = append(out, Filter(sub))
			default:
				return nil, fmt.Errorf("index: $or alternatives must be objects, got %T", raw)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("index: $or must hold a list of filters, got %T", v)
	}
}

// operatorObject reports whether v is an operator object such as
// {"$eq": value}, i.e. a non-empty map whose keys all start with '$'.
func operatorObject(v any) (map[string]any, bool) {
	var m map[string]any
	switch sub := v.(type) {
	case Filter:
		m = map[string]any(sub)
	case map[string]any:
		m = sub
	default:
		return nil, false
	}
	if len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if len(k) == 0 || k[0] != '$' {
			return nil, false
		}
	}
	return m, true
}

// equalValue compares a metadata field value against a filter value. JSON
// numbers decode as float64, so numeric comparisons normalize to float64.
func equalValue(got, want any) bool {
	switch g := got.(type) {
	case string:
		w, ok := want.(string)
		return ok && g == w
	case int:
		switch w := want.(type) {
		case int:
			return g == w
		case int64:
			return int64(g) == w
		case float64:
			return float64(g) == w
		}
		return false
	case float64:
		switch w := want.(type) {
		case int:
			return g == float64(w)
		case float64:
			return g == w
		}
		return false
	case bool:
		w, ok := want.(bool)
		return ok && g == w
	default:
		return false
	}
}
