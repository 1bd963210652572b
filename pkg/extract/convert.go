package extract

import (
	"fmt"
	"strconv"
	"strings"
)

// Conversion turns a matched query value into its typed form. Matched
// values are strings for XML and CSV sources and already-typed values
// (string, float64, bool, nested structures) for JSON sources.
type Conversion func(value any) (any, error)

// String converts the matched value to its string form.
func String(value any) (any, error) {
	if s, ok := value.(string); ok {
		return s, nil
	}
	return fmt.Sprint(value), nil
}

// Int converts the matched value to an int.
func Int(value any) (any, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("cannot convert %q to int", v)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("cannot convert %T to int", value)
	}
}

// Float converts the matched value to a float64.
func Float(value any) (any, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("cannot convert %q to float", v)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("cannot convert %T to float", value)
	}
}

// Bool converts the matched value to a bool.
func Bool(value any) (any, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("cannot convert %q to bool", v)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("cannot convert %T to bool", value)
	}
}
