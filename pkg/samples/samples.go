// Package samples adapts sampled parameter matrices to pipeline runs: a
// named parameter list plus a value matrix becomes a sequence of per-run
// field maps, and collapsed result maps become numeric columns for
// statistical analysis.
package samples

import (
	"fmt"
)

// Maps pairs each row of the value matrix with the parameter names,
// producing one initial field map per pipeline run.
func Maps(names []string, values [][]float64) ([]map[string]any, error) {
	maps := make([]map[string]any, 0, len(values))
	for i, row := range values {
		if len(row) != len(names) {
			return nil, fmt.Errorf("sample %d has %d values for %d names", i, len(row), len(names))
		}
		fields := make(map[string]any, len(names))
		for j, name := range names {
			fields[name] = row[j]
		}
		maps = append(maps, fields)
	}
	return maps, nil
}

// Column extracts one numeric field from a slice of pipeline results. A
// list-valued field contributes the element at index; a scalar field is
// used directly.
func Column(results []map[string]any, field string, index int) ([]float64, error) {
	column := make([]float64, len(results))
	for i, result := range results {
		value, ok := result[field]
		if !ok {
			return nil, fmt.Errorf("result %d has no field %q", i, field)
		}
		if list, ok := value.([]any); ok {
			if index < 0 || index >= len(list) {
				return nil, fmt.Errorf("result %d field %q has %d values, index %d out of range",
					i, field, len(list), index)
			}
			value = list[index]
		}
		f, err := toFloat(value)
		if err != nil {
			return nil, fmt.Errorf("result %d field %q: %w", i, field, err)
		}
		column[i] = f
	}
	return column, nil
}

func toFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("value %v (%T) is not numeric", value, value)
	}
}
