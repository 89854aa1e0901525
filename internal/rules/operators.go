package rules

import (
	"fmt"
	"reflect"
	"strings"
)

func evaluateLeaf(c Condition, ctx map[string]interface{}) (bool, error) {
	left, ok := resolveField(ctx, c.Field)
	if !ok {
		left = nil
	}
	if c.Function != "" {
		resolved, err := applyFunction(c.Function, left, nil)
		if err != nil {
			return false, err
		}
		left = resolved
	}

	right, rightOK := resolveValue(ctx, c.Value)
	if !rightOK {
		right = nil
	}

	switch c.Operator {
	case "==":
		return equal(left, right), nil
	case "===":
		return strictEqual(left, right), nil
	case "!=":
		return !equal(left, right), nil
	case "!==":
		return !strictEqual(left, right), nil
	case "<":
		return toFloat(left) < toFloat(right), nil
	case "<=":
		return toFloat(left) <= toFloat(right), nil
	case ">":
		return toFloat(left) > toFloat(right), nil
	case ">=":
		return toFloat(left) >= toFloat(right), nil
	case "in":
		return membership(left, right), nil
	case "not_in":
		return !membership(left, right), nil
	case "contains":
		return strings.Contains(toString(left), toString(right)), nil
	case "not_contains":
		return !strings.Contains(toString(left), toString(right)), nil
	case "starts_with":
		return strings.HasPrefix(toString(left), toString(right)), nil
	case "ends_with":
		return strings.HasSuffix(toString(left), toString(right)), nil
	case "between":
		return between(left, right), nil
	case "matches":
		return safeMatch(toString(right), toString(left)), nil
	default:
		return false, fmt.Errorf("rules: unknown operator %q", c.Operator)
	}
}

func equal(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == b
	}
	if af, aok := asNumber(a); aok {
		if bf, bok := asNumber(b); bok {
			return af == bf
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func strictEqual(a, b interface{}) bool {
	return reflect.TypeOf(a) == reflect.TypeOf(b) && equal(a, b)
}

func asNumber(v interface{}) (float64, bool) {
	switch v.(type) {
	case int, int64, float32, float64:
		return toFloat(v), true
	default:
		return 0, false
	}
}

func membership(needle, haystack interface{}) bool {
	list, ok := haystack.([]interface{})
	if !ok {
		return false
	}
	for _, item := range list {
		if equal(needle, item) {
			return true
		}
	}
	return false
}

func between(value, bounds interface{}) bool {
	list, ok := bounds.([]interface{})
	if !ok || len(list) != 2 {
		return false
	}
	lo, hi := toFloat(list[0]), toFloat(list[1])
	if lo > hi {
		lo, hi = hi, lo
	}
	v := toFloat(value)
	return v >= lo && v <= hi
}
