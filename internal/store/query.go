package store

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Op is a filter comparison operator.
type Op string

// Supported operators.
const (
	OpEqual        Op = "=="
	OpNotEqual     Op = "!="
	OpLess         Op = "<"
	OpLessEqual    Op = "<="
	OpGreater      Op = ">"
	OpGreaterEqual Op = ">="
	OpIn           Op = "in"
)

// Filter restricts a query or conditions a write. Field may be a dotted path.
// A document missing the field matches only OpNotEqual.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Where is shorthand for building a Filter.
func Where(field string, op Op, value any) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

// Validate checks the operator and value shape.
func (f Filter) Validate() error {
	if f.Field == "" {
		return fmt.Errorf("%w: empty field", ErrInvalidQuery)
	}
	switch f.Op {
	case OpEqual, OpNotEqual, OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
		return nil
	case OpIn:
		if _, ok := InValues(f.Value); !ok {
			return fmt.Errorf("%w: %q requires a slice value", ErrInvalidQuery, f.Op)
		}
		return nil
	default:
		return fmt.Errorf("%w: unsupported operator %q", ErrInvalidQuery, f.Op)
	}
}

// Query selects documents within one collection.
type Query struct {
	Filters    []Filter
	OrderBy    string
	Descending bool
	Limit      int
}

// Validate checks every filter of the query.
func (q Query) Validate() error {
	for _, f := range q.Filters {
		if err := f.Validate(); err != nil {
			return err
		}
	}
	if q.Limit < 0 {
		return fmt.Errorf("%w: negative limit", ErrInvalidQuery)
	}
	return nil
}

// InValues expands the value of an OpIn filter into a slice of any.
func InValues(v any) ([]any, bool) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = normalize(rv.Index(i).Interface())
	}
	return out, true
}

// Matches reports whether fields satisfies every filter.
func Matches(fields Fields, filters []Filter) bool {
	for _, f := range filters {
		if !matchOne(fields, f) {
			return false
		}
	}
	return true
}

func matchOne(fields Fields, f Filter) bool {
	got, ok := fields.Lookup(f.Field)
	if !ok {
		return f.Op == OpNotEqual
	}
	switch f.Op {
	case OpEqual:
		return equal(got, f.Value)
	case OpNotEqual:
		return !equal(got, f.Value)
	case OpIn:
		values, _ := InValues(f.Value)
		for _, v := range values {
			if equal(got, v) {
				return true
			}
		}
		return false
	}

	c, comparable := Compare(got, f.Value)
	if !comparable {
		return false
	}
	switch f.Op {
	case OpLess:
		return c < 0
	case OpLessEqual:
		return c <= 0
	case OpGreater:
		return c > 0
	case OpGreaterEqual:
		return c >= 0
	}
	return false
}

// Compare orders two scalar values of the same kind. Numbers compare
// numerically, strings byte-wise, and false sorts before true.
func Compare(a, b any) (int, bool) {
	a, b = normalize(a), normalize(b)
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	if sa, ok := a.(string); ok {
		sb, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(sa, sb), true
	}
	if ba, ok := a.(bool); ok {
		bb, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case ba == bb:
			return 0, true
		case !ba:
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

func equal(a, b any) bool {
	if c, ok := Compare(a, b); ok {
		return c == 0
	}
	return reflect.DeepEqual(normalize(a), normalize(b))
}

// normalize maps named string types (such as domain statuses) onto string.
func normalize(v any) any {
	rv := reflect.ValueOf(v)
	if rv.IsValid() && rv.Kind() == reflect.String {
		return rv.String()
	}
	return v
}

// Apply filters, orders, and limits docs in place for engines that evaluate
// queries client-side. Documents missing the OrderBy field are excluded.
func Apply(docs []Document, q Query) []Document {
	out := docs[:0]
	for _, d := range docs {
		if !Matches(d.Fields, q.Filters) {
			continue
		}
		if q.OrderBy != "" {
			if _, ok := d.Fields.Lookup(q.OrderBy); !ok {
				continue
			}
		}
		out = append(out, d)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if q.OrderBy != "" {
			a, _ := out[i].Fields.Lookup(q.OrderBy)
			b, _ := out[j].Fields.Lookup(q.OrderBy)
			if c, ok := Compare(a, b); ok && c != 0 {
				if q.Descending {
					return c > 0
				}
				return c < 0
			}
		}
		return out[i].ID < out[j].ID
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}
