package engine

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/hupe1980/mcpmesh/mcp"
)

// coerceArguments assembles the handler argument map from raw wire values.
// Every declared parameter is looked up by name: present values are coerced
// into the parameter's native shape, absent optional values get the kind's
// zero value (nil for reference shapes), and absent required values fail the
// invocation.
func coerceArguments(schema mcp.ToolInputSchema, args map[string]any) (map[string]any, error) {
	coerced := make(map[string]any, len(schema.Properties))

	for name, prop := range schema.Properties {
		raw, ok := args[name]
		if !ok {
			if prop.Required || contains(schema.Required, name) {
				return nil, fmt.Errorf("required parameter %q missing", name)
			}
			coerced[name] = zeroValue(prop.Type)
			continue
		}
		v, err := coerceValue(prop.Type, raw)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", name, err)
		}
		coerced[name] = v
	}

	return coerced, nil
}

// coerceValue converts one untyped wire value into the native shape of a
// parameter kind. There is one conversion path per kind; unconvertible
// values are errors rather than silent passthroughs.
func coerceValue(kind string, raw any) (any, error) {
	switch kind {
	case "string":
		switch v := raw.(type) {
		case string:
			return v, nil
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		case bool:
			return strconv.FormatBool(v), nil
		case json.Number:
			return v.String(), nil
		case nil:
			return "", nil
		default:
			return fmt.Sprintf("%v", v), nil
		}
	case "number", "integer":
		switch v := raw.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case json.Number:
			f, err := v.Float64()
			if err != nil {
				return nil, fmt.Errorf("cannot convert %q to number", v.String())
			}
			return f, nil
		case string:
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("cannot convert %q to number", v)
			}
			return f, nil
		default:
			return nil, fmt.Errorf("cannot convert %T to number", raw)
		}
	case "boolean":
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("cannot convert %q to boolean", v)
			}
			return b, nil
		default:
			return nil, fmt.Errorf("cannot convert %T to boolean", raw)
		}
	case "array":
		switch v := raw.(type) {
		case []any:
			return v, nil
		case nil:
			return []any(nil), nil
		default:
			return nil, fmt.Errorf("cannot convert %T to array", raw)
		}
	case "object":
		switch v := raw.(type) {
		case map[string]any:
			return v, nil
		case nil:
			return map[string]any(nil), nil
		default:
			return nil, fmt.Errorf("cannot convert %T to object", raw)
		}
	default:
		// Unknown kinds pass through untouched.
		return raw, nil
	}
}

// zeroValue substitutes an absent optional parameter: value shapes get the
// type's zero value, reference shapes an absent (nil) marker.
func zeroValue(kind string) any {
	switch kind {
	case "string":
		return ""
	case "number", "integer":
		return float64(0)
	case "boolean":
		return false
	case "array":
		return []any(nil)
	case "object":
		return map[string]any(nil)
	default:
		return nil
	}
}

func contains(list []string, name string) bool {
	for _, s := range list {
		if s == name {
			return true
		}
	}
	return false
}
