// Package anthropic bridges the registry's function-descriptor surface to
// the Anthropic tool-use format: registered tools can be exported as
// Messages API tool parameters, and tools described in the Anthropic shape
// can be imported as external descriptors without schema inference.
package anthropic

import (
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
	"github.com/hupe1980/mcpmesh/mcp"
	"github.com/hupe1980/mcpmesh/tool"
)

// ToolParam converts one descriptor into an Anthropic tool parameter.
func ToolParam(d tool.Descriptor) anthropic.ToolUnionParam {
	inputSchema := anthropic.ToolInputSchemaParam{
		Type:       constant.Object("object"),
		Properties: propertiesMap(d.Schema),
		Required:   d.Schema.Required,
	}
	return anthropic.ToolUnionParamOfTool(inputSchema, d.Name)
}

// ToolParams exports every tool in the registry, typically fed straight
// into MessageNewParams.Tools.
func ToolParams(r *tool.Registry) []anthropic.ToolUnionParam {
	descs := r.Descriptors()
	out := make([]anthropic.ToolUnionParam, len(descs))
	for i, d := range descs {
		out[i] = ToolParam(d)
	}
	return out
}

// Descriptor imports an Anthropic-described tool as an external descriptor.
// The input schema is adopted verbatim; no inference happens.
func Descriptor(name, description string, inputSchema anthropic.ToolInputSchemaParam, handler tool.Handler) (tool.Descriptor, error) {
	schema := mcp.ToolInputSchema{Type: "object", Required: inputSchema.Required}
	if inputSchema.Properties != nil {
		data, err := json.Marshal(inputSchema.Properties)
		if err != nil {
			return tool.Descriptor{}, fmt.Errorf("adapter: import %q: %w", name, err)
		}
		if err := json.Unmarshal(data, &schema.Properties); err != nil {
			return tool.Descriptor{}, fmt.Errorf("adapter: import %q: %w", name, err)
		}
	}
	return tool.Descriptor{
		Name:        name,
		Description: description,
		Schema:      schema,
		Handler:     handler,
	}, nil
}

// propertiesMap renders the parameter schemas as the generic map shape the
// SDK expects.
func propertiesMap(schema mcp.ToolInputSchema) map[string]any {
	if len(schema.Properties) == 0 {
		return map[string]any{}
	}
	data, err := json.Marshal(schema.Properties)
	if err != nil {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{}
	}
	return m
}
