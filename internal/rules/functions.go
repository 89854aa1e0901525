package rules

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"
)

// applyFunction evaluates one of the closed set of named functions
// against a resolved value. Unknown function names are rejected rather
// than silently passed through.
func applyFunction(name string, value interface{}, args []interface{}) (interface{}, error) {
	switch name {
	case "now":
		return time.Now().Unix(), nil
	case "date":
		return time.Now().Format("2006-01-02"), nil
	case "abs":
		return math.Abs(toFloat(value)), nil
	case "min":
		return math.Min(toFloat(value), toFloat(firstArg(args))), nil
	case "max":
		return math.Max(toFloat(value), toFloat(firstArg(args))), nil
	case "round":
		return math.Round(toFloat(value)), nil
	case "floor":
		return math.Floor(toFloat(value)), nil
	case "ceil":
		return math.Ceil(toFloat(value)), nil
	case "length":
		return length(value), nil
	case "lowercase":
		return strings.ToLower(toString(value)), nil
	case "uppercase":
		return strings.ToUpper(toString(value)), nil
	case "trim":
		return strings.TrimSpace(toString(value)), nil
	case "random":
		return rand.Float64(), nil
	case "randomInt":
		lo, hi := int64(toFloat(value)), int64(toFloat(firstArg(args)))
		if lo > hi {
			lo, hi = hi, lo
		}
		if lo == hi {
			return lo, nil
		}
		return lo + rand.Int63n(hi-lo+1), nil
	default:
		return nil, fmt.Errorf("rules: unknown function %q", name)
	}
}

func firstArg(args []interface{}) interface{} {
	if len(args) == 0 {
		return nil
	}
	return args[0]
}

func length(v interface{}) int {
	switch x := v.(type) {
	case string:
		return len(x)
	case []interface{}:
		return len(x)
	case map[string]interface{}:
		return len(x)
	default:
		return 0
	}
}

func toFloat(v interface{}) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int64:
		return float64(x)
	default:
		return 0
	}
}

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
