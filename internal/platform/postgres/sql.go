package postgres

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/phrazzld/vendorflow/internal/store"
)

var fieldPart = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// args accumulates positional query parameters.
type args []any

func (a *args) add(v any) string {
	*a = append(*a, v)
	return fmt.Sprintf("$%d", len(*a))
}

// jsonPath renders a dotted field as a jsonb path literal such as '{metadata,taskId}'.
// Field segments are restricted to identifiers so they can be inlined safely.
func jsonPath(field string) (string, error) {
	parts := strings.Split(field, ".")
	for _, p := range parts {
		if !fieldPart.MatchString(p) {
			return "", fmt.Errorf("%w: field %q", store.ErrInvalidQuery, field)
		}
	}
	return "'{" + strings.Join(parts, ",") + "}'", nil
}

func toJSON(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	return string(raw), nil
}

// predicate compiles one filter into a SQL boolean expression over data.
func predicate(f store.Filter, a *args) (string, error) {
	if err := f.Validate(); err != nil {
		return "", err
	}
	path, err := jsonPath(f.Field)
	if err != nil {
		return "", err
	}
	value := "data #> " + path
	text := "data #>> " + path

	switch f.Op {
	case store.OpEqual, store.OpNotEqual:
		j, err := toJSON(f.Value)
		if err != nil {
			return "", err
		}
		if f.Op == store.OpEqual {
			return fmt.Sprintf("(%s) = %s::jsonb", value, a.add(j)), nil
		}
		return fmt.Sprintf("(%s) IS DISTINCT FROM %s::jsonb", value, a.add(j)), nil

	case store.OpIn:
		values, _ := store.InValues(f.Value)
		j, err := toJSON(values)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s::jsonb @> (%s)", a.add(j), value), nil
	}

	op := string(f.Op)
	switch v := scalar(f.Value).(type) {
	case string:
		return fmt.Sprintf("(jsonb_typeof(%s) = 'string' AND (%s) COLLATE \"C\" %s %s::text)",
			value, text, op, a.add(v)), nil
	case float64:
		return fmt.Sprintf("(jsonb_typeof(%s) = 'number' AND (%s)::numeric %s %s::numeric)",
			value, text, op, a.add(v)), nil
	default:
		return "", fmt.Errorf("%w: operator %s needs a string or number", store.ErrInvalidQuery, f.Op)
	}
}

// scalar normalizes named strings and integer kinds for range comparisons.
func scalar(v any) any {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	default:
		return v
	}
}

// where compiles filters into a conjunction. The returned string is empty
// when there are no filters.
func where(filters []store.Filter, a *args) (string, error) {
	clauses := make([]string, 0, len(filters))
	for _, f := range filters {
		p, err := predicate(f, a)
		if err != nil {
			return "", err
		}
		clauses = append(clauses, p)
	}
	return strings.Join(clauses, " AND "), nil
}

// selectQuery builds the SELECT for a store.Query.
func selectQuery(collection string, q store.Query) (string, args, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}

	var a args
	var sb strings.Builder
	sb.WriteString("SELECT id, data FROM documents WHERE collection = ")
	sb.WriteString(a.add(collection))

	cond, err := where(q.Filters, &a)
	if err != nil {
		return "", nil, err
	}
	if cond != "" {
		sb.WriteString(" AND ")
		sb.WriteString(cond)
	}

	if q.OrderBy != "" {
		path, err := jsonPath(q.OrderBy)
		if err != nil {
			return "", nil, err
		}
		dir := "ASC"
		if q.Descending {
			dir = "DESC"
		}
		fmt.Fprintf(&sb, " AND data #> %s IS NOT NULL ORDER BY data #> %s %s, id ASC", path, path, dir)
	} else {
		sb.WriteString(" ORDER BY id ASC")
	}

	if q.Limit > 0 {
		sb.WriteString(" LIMIT ")
		sb.WriteString(a.add(q.Limit))
	}

	return sb.String(), a, nil
}

// updateQuery builds the UPDATE for a write. DeleteField keys are removed
// after the patch is merged.
func updateQuery(w store.Write) (string, args, error) {
	set, remove := store.SplitUpdate(w.Fields)
	patch, err := toJSON(set)
	if err != nil {
		return "", nil, err
	}

	var a args
	expr := "(data || " + a.add(patch) + "::jsonb)"
	for _, k := range remove {
		expr += " - " + a.add(k) + "::text"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "UPDATE documents SET data = %s, updated_at = NOW() WHERE collection = %s AND id = %s",
		expr, a.add(w.Collection), a.add(w.ID))

	cond, err := where(w.Conditions, &a)
	if err != nil {
		return "", nil, err
	}
	if cond != "" {
		sb.WriteString(" AND ")
		sb.WriteString(cond)
	}
	return sb.String(), a, nil
}
