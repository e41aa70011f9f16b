package nodes

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

var (
	ErrInvalidRule       = errors.New("invalid condition rule")
	ErrUnknownComparison = errors.New("unknown comparison operator")
	ErrUnknownLogic      = errors.New("unknown logical operator")
)

// Comparison operators accepted by condition rules.
const (
	OpEquals      = "equals"
	OpNotEquals   = "not_equals"
	OpGreaterThan = "greater_than"
	OpLessThan    = "less_than"
	OpContains    = "contains"
	OpStartsWith  = "starts_with"
	OpEndsWith    = "ends_with"
	OpIsEmpty     = "is_empty"
	OpIsNotEmpty  = "is_not_empty"
)

type Rule struct {
	Field    string
	Operator string
	Value    any
}

// RuleSet combines rules with AND or OR. An empty AND set holds, an empty OR set does not.
type RuleSet struct {
	Logic       string
	Rules       []Rule
	DefaultPath string
}

func parseRuleSet(config map[string]any) (RuleSet, error) {
	set := RuleSet{Logic: "AND"}

	if op, ok := config["operator"].(string); ok && op != "" {
		set.Logic = strings.ToUpper(op)
	}

	if set.Logic != "AND" && set.Logic != "OR" {
		return set, fmt.Errorf("%w: %s", ErrUnknownLogic, set.Logic)
	}

	set.DefaultPath, _ = config["defaultPath"].(string)

	raw, _ := config["rules"].([]any)

	for i, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			return set, fmt.Errorf("%w: rule %d is not an object", ErrInvalidRule, i)
		}

		field, _ := m["field"].(string)
		operator, _ := m["operator"].(string)

		if field == "" || operator == "" {
			return set, fmt.Errorf("%w: rule %d needs field and operator", ErrInvalidRule, i)
		}

		set.Rules = append(set.Rules, Rule{Field: field, Operator: operator, Value: m["value"]})
	}

	return set, nil
}

// Sources a rule field can resolve against.
type Sources struct {
	Input     any
	Variables map[string]any
	Data      any
}

// Evaluate applies every rule and folds the results with the set's logic.
func (s RuleSet) Evaluate(src Sources) (bool, error) {
	if len(s.Rules) == 0 {
		return s.Logic == "AND", nil
	}

	for _, rule := range s.Rules {
		ok, err := rule.Evaluate(src)
		if err != nil {
			return false, err
		}

		if s.Logic == "OR" && ok {
			return true, nil
		}

		if s.Logic == "AND" && !ok {
			return false, nil
		}
	}

	return s.Logic == "AND", nil
}

func (r Rule) Evaluate(src Sources) (bool, error) {
	actual := resolveField(r.Field, src)

	switch r.Operator {
	case OpEquals:
		return looseEqual(actual, r.Value), nil
	case OpNotEquals:
		return !looseEqual(actual, r.Value), nil
	case OpGreaterThan, OpLessThan:
		a, okA := toNumber(actual)
		b, okB := toNumber(r.Value)

		if !okA || !okB {
			return false, nil
		}

		if r.Operator == OpGreaterThan {
			return a > b, nil
		}

		return a < b, nil
	case OpContains:
		return contains(actual, r.Value), nil
	case OpStartsWith:
		return actual != nil && strings.HasPrefix(fmt.Sprint(actual), fmt.Sprint(r.Value)), nil
	case OpEndsWith:
		return actual != nil && strings.HasSuffix(fmt.Sprint(actual), fmt.Sprint(r.Value)), nil
	case OpIsEmpty:
		return isEmpty(actual), nil
	case OpIsNotEmpty:
		return !isEmpty(actual), nil
	default:
		return false, fmt.Errorf("%w: %s", ErrUnknownComparison, r.Operator)
	}
}

// resolveField reads "input.a.b", "variables.a", "vars.a", "data.a" or a bare
// path, which reads from the current data.
func resolveField(field string, src Sources) any {
	root, rest, _ := strings.Cut(field, ".")

	switch root {
	case "input":
		return lookupPath(src.Input, rest)
	case "variables", "vars":
		return lookupPath(src.Variables, rest)
	case "data":
		return lookupPath(src.Data, rest)
	default:
		return lookupPath(src.Data, field)
	}
}

func lookupPath(value any, path string) any {
	if path == "" {
		return value
	}

	for _, part := range strings.Split(path, ".") {
		switch v := value.(type) {
		case map[string]any:
			value = v[part]
		case []any:
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || i >= len(v) {
				return nil
			}

			value = v[i]
		default:
			return nil
		}
	}

	return value
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)

		return f, err == nil
	default:
		return 0, false
	}
}

func looseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	if x, ok := toNumber(a); ok {
		if y, ok := toNumber(b); ok {
			return x == y
		}
	}

	if reflect.DeepEqual(a, b) {
		return true
	}

	return fmt.Sprint(a) == fmt.Sprint(b)
}

func contains(haystack, needle any) bool {
	switch h := haystack.(type) {
	case nil:
		return false
	case string:
		return strings.Contains(h, fmt.Sprint(needle))
	case []any:
		for _, item := range h {
			if looseEqual(item, needle) {
				return true
			}
		}

		return false
	case map[string]any:
		_, ok := h[fmt.Sprint(needle)]

		return ok
	default:
		return strings.Contains(fmt.Sprint(h), fmt.Sprint(needle))
	}
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []any:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	default:
		return false
	}
}
