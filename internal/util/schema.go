// Package util holds internal helpers shared across packages, chiefly the
// reflection-based schema builder used to expose plain Go structs as tool
// parameter descriptions.
package util

import (
	"reflect"
	"strings"
	"time"

	"github.com/hupe1980/mcpmesh/mcp"
)

var timeType = reflect.TypeOf(time.Time{})

// CreateSchema derives a tool input schema from a Go struct using
// reflection. Field names come from json tags (falling back to the Go
// name), descriptions from a `description` tag. Pointer and omitempty
// fields are optional; everything else is required.
func CreateSchema(structType any) mcp.ToolInputSchema {
	schema := mcp.ToolInputSchema{
		Type:       "object",
		Properties: map[string]*mcp.ParameterSchema{},
	}

	t := reflect.TypeOf(structType)
	if t == nil {
		return schema
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return schema
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}

		fieldName := field.Name
		if jsonTag != "" {
			if name := strings.Split(jsonTag, ",")[0]; name != "" {
				fieldName = name
			}
		}

		prop := schemaForType(field.Type)
		prop.Description = field.Tag.Get("description")

		if !hasOmitEmpty(jsonTag) && field.Type.Kind() != reflect.Ptr {
			prop.Required = true
			schema.Required = append(schema.Required, fieldName)
		}

		schema.Properties[fieldName] = prop
	}

	return schema
}

// schemaForType maps a Go type onto a parameter kind using a fixed table:
// text kinds become string, numeric kinds number, booleans boolean,
// slice-shaped kinds array, date/time string, and anything else an object
// with a nested schema.
func schemaForType(t reflect.Type) *mcp.ParameterSchema {
	if t.Kind() == reflect.Ptr {
		return schemaForType(t.Elem())
	}
	if t == timeType {
		return &mcp.ParameterSchema{Type: "string"}
	}

	switch t.Kind() {
	case reflect.String:
		return &mcp.ParameterSchema{Type: "string"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return &mcp.ParameterSchema{Type: "number"}
	case reflect.Bool:
		return &mcp.ParameterSchema{Type: "boolean"}
	case reflect.Slice, reflect.Array:
		return &mcp.ParameterSchema{Type: "array", Items: schemaForType(t.Elem())}
	case reflect.Struct:
		nested := CreateSchema(reflect.New(t).Elem().Interface())
		return &mcp.ParameterSchema{Type: "object", Properties: nested.Properties}
	default:
		return &mcp.ParameterSchema{Type: "object"}
	}
}

// hasOmitEmpty checks if a JSON tag has the "omitempty" option.
func hasOmitEmpty(tag string) bool {
	parts := strings.Split(tag, ",")
	for _, part := range parts[1:] {
		if strings.TrimSpace(part) == "omitempty" {
			return true
		}
	}
	return false
}
