package store

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Collection names used by the application.
const (
	CollectionVendors    = "vendors"
	CollectionTasks      = "tasks"
	CollectionActivities = "activities"
)

// TimeLayout is the persisted timestamp format. It is fixed width and UTC so
// that lexical order equals chronological order on every engine.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// Fields is a schemaless document body.
type Fields map[string]any

// Document is a stored document and its identifier.
type Document struct {
	ID     string
	Fields Fields
}

type deleteField struct{}

// DeleteField, used as a value in an update, removes the field from the document.
var DeleteField any = deleteField{}

// IsDeleteField reports whether v is the DeleteField sentinel.
func IsDeleteField(v any) bool {
	_, ok := v.(deleteField)
	return ok
}

// NewID returns a fresh document identifier.
func NewID() string {
	return uuid.NewString()
}

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a TimeLayout string. RFC 3339 values are accepted too.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(TimeLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// Lookup resolves a dotted path such as "metadata.taskId".
func (f Fields) Lookup(path string) (any, bool) {
	var cur any = map[string]any(f)
	for _, part := range strings.Split(path, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// String returns the string at key, or "".
func (f Fields) String(key string) string {
	s, _ := f[key].(string)
	return s
}

// Float returns the numeric value at key, or 0.
func (f Fields) Float(key string) float64 {
	n, _ := toFloat(f[key])
	return n
}

// Int returns the numeric value at key truncated to int, or 0.
func (f Fields) Int(key string) int {
	return int(f.Float(key))
}

// Bool returns the boolean at key, or false.
func (f Fields) Bool(key string) bool {
	b, _ := f[key].(bool)
	return b
}

// Time returns the parsed timestamp at key, or the zero time.
func (f Fields) Time(key string) time.Time {
	s := f.String(key)
	if s == "" {
		return time.Time{}
	}
	t, err := ParseTime(s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Map returns the nested object at key, or nil.
func (f Fields) Map(key string) map[string]any {
	m, _ := asMap(f[key])
	return m
}

// Clone returns a deep copy of f using its JSON representation, which also
// normalizes numbers to float64 the way every engine returns them.
func (f Fields) Clone() (Fields, error) {
	if f == nil {
		return Fields{}, nil
	}
	raw, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	out := Fields{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SplitUpdate separates assignments from DeleteField removals.
func SplitUpdate(fields Fields) (set Fields, remove []string) {
	set = Fields{}
	for k, v := range fields {
		if IsDeleteField(v) {
			remove = append(remove, k)
			continue
		}
		set[k] = v
	}
	return set, remove
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Fields:
		return m, true
	default:
		return nil, false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
