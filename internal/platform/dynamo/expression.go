package dynamo

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/phrazzld/vendorflow/internal/store"
)

// Attribute layout.
const (
	attrPartition = "pk"
	attrSort      = "sk"
	attrData      = "data"
)

// expr accumulates placeholder names and values for one request.
type expr struct {
	names  map[string]string
	values map[string]types.AttributeValue
}

func newExpr() *expr {
	return &expr{
		names:  map[string]string{"#d": attrData, "#pk": attrPartition},
		values: map[string]types.AttributeValue{},
	}
}

// path renders a dotted document field as a data-relative attribute path.
func (e *expr) path(field string) string {
	parts := strings.Split(field, ".")
	out := make([]string, 0, len(parts)+1)
	out = append(out, "#d")
	for _, p := range parts {
		key := fmt.Sprintf("#n%d", len(e.names))
		for existing, name := range e.names {
			if name == p && strings.HasPrefix(existing, "#n") {
				key = existing
				break
			}
		}
		e.names[key] = p
		out = append(out, key)
	}
	return strings.Join(out, ".")
}

func (e *expr) value(v any) (string, error) {
	av, err := attributevalue.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	key := fmt.Sprintf(":v%d", len(e.values))
	e.values[key] = av
	return key, nil
}

// condition compiles one filter into a ConditionExpression fragment.
func (e *expr) condition(f store.Filter) (string, error) {
	if err := f.Validate(); err != nil {
		return "", err
	}
	p := e.path(f.Field)

	switch f.Op {
	case store.OpIn:
		values, _ := store.InValues(f.Value)
		if len(values) == 0 {
			return "", fmt.Errorf("%w: empty in list", store.ErrInvalidQuery)
		}
		keys := make([]string, len(values))
		for i, v := range values {
			k, err := e.value(v)
			if err != nil {
				return "", err
			}
			keys[i] = k
		}
		return fmt.Sprintf("%s IN (%s)", p, strings.Join(keys, ", ")), nil
	case store.OpNotEqual:
		k, err := e.value(f.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(attribute_not_exists(%s) OR %s <> %s)", p, p, k), nil
	}

	ops := map[store.Op]string{
		store.OpEqual:        "=",
		store.OpLess:         "<",
		store.OpLessEqual:    "<=",
		store.OpGreater:      ">",
		store.OpGreaterEqual: ">=",
	}
	k, err := e.value(f.Value)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s %s", p, ops[f.Op], k), nil
}

// conditions joins filters with AND, prefixed by the existence guard.
func (e *expr) conditions(guard string, filters []store.Filter) (string, error) {
	parts := []string{guard}
	for _, f := range filters {
		c, err := e.condition(f)
		if err != nil {
			return "", err
		}
		parts = append(parts, c)
	}
	return strings.Join(parts, " AND "), nil
}

// update compiles fields into an UpdateExpression over the data map.
// Keys are visited in sorted order so expressions are stable.
func (e *expr) update(fields store.Fields) (string, error) {
	set, remove := store.SplitUpdate(fields)

	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	sort.Strings(remove)

	var sets []string
	for _, k := range keys {
		v, err := e.value(set[k])
		if err != nil {
			return "", err
		}
		sets = append(sets, fmt.Sprintf("%s = %s", e.path(k), v))
	}
	var removes []string
	for _, k := range remove {
		removes = append(removes, e.path(k))
	}

	var out []string
	if len(sets) > 0 {
		out = append(out, "SET "+strings.Join(sets, ", "))
	}
	if len(removes) > 0 {
		out = append(out, "REMOVE "+strings.Join(removes, ", "))
	}
	if len(out) == 0 {
		return "", fmt.Errorf("%w: empty update", store.ErrInvalidEntity)
	}
	return strings.Join(out, " "), nil
}

// valuesOrNil returns nil for an empty value map; DynamoDB rejects empty maps.
func (e *expr) valuesOrNil() map[string]types.AttributeValue {
	if len(e.values) == 0 {
		return nil
	}
	return e.values
}

// namesFor returns only the placeholders that appear in the expressions;
// DynamoDB rejects unused names.
func (e *expr) namesFor(expressions ...string) map[string]string {
	joined := strings.Join(expressions, " ")
	out := map[string]string{}
	for k, v := range e.names {
		if containsToken(joined, k) {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func containsToken(s, token string) bool {
	for i := 0; ; {
		j := strings.Index(s[i:], token)
		if j < 0 {
			return false
		}
		end := i + j + len(token)
		if end == len(s) || !isTokenChar(s[end]) {
			return true
		}
		i = end
	}
}

func isTokenChar(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
