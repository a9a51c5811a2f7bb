// Package openai bridges the registry's function-descriptor surface to the
// OpenAI function-calling format: registered tools can be exported as chat
// completion tool parameters, and functions described in the OpenAI shape
// can be imported as external descriptors without schema inference.
package openai

import (
	"encoding/json"
	"fmt"

	"github.com/hupe1980/mcpmesh/mcp"
	"github.com/hupe1980/mcpmesh/tool"
	"github.com/openai/openai-go"
)

// ToolParam converts one descriptor into an OpenAI chat completion tool.
func ToolParam(d tool.Descriptor) openai.ChatCompletionToolParam {
	return openai.ChatCompletionToolParam{
		Type: "function",
		Function: openai.FunctionDefinitionParam{
			Name:        d.Name,
			Description: openai.String(d.Description),
			Parameters:  schemaMap(d.Schema),
		},
	}
}

// ToolParams exports every tool in the registry, typically fed straight
// into ChatCompletionNewParams.Tools.
func ToolParams(r *tool.Registry) []openai.ChatCompletionToolParam {
	descs := r.Descriptors()
	out := make([]openai.ChatCompletionToolParam, len(descs))
	for i, d := range descs {
		out[i] = ToolParam(d)
	}
	return out
}

// Descriptor imports an OpenAI-described function as an external descriptor.
// The schema is adopted verbatim; no inference happens.
func Descriptor(def openai.FunctionDefinitionParam, handler tool.Handler) (tool.Descriptor, error) {
	schema, err := schemaFromMap(def.Parameters)
	if err != nil {
		return tool.Descriptor{}, fmt.Errorf("adapter: import %q: %w", def.Name, err)
	}
	return tool.Descriptor{
		Name:        def.Name,
		Description: def.Description.Value,
		Schema:      schema,
		Handler:     handler,
	}, nil
}

// schemaMap renders a tool input schema as the generic JSON-schema map the
// SDK expects.
func schemaMap(schema mcp.ToolInputSchema) map[string]any {
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"type": "object"}
	}
	return m
}

func schemaFromMap(m map[string]any) (mcp.ToolInputSchema, error) {
	schema := mcp.ToolInputSchema{Type: "object"}
	if m == nil {
		return schema, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return schema, err
	}
	if err := json.Unmarshal(data, &schema); err != nil {
		return schema, err
	}
	if schema.Type == "" {
		schema.Type = "object"
	}
	return schema, nil
}
