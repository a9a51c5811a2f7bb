package openai_test

import (
	"context"
	"testing"

	adapter "github.com/hupe1980/mcpmesh/adapter/openai"
	"github.com/hupe1980/mcpmesh/mcp"
	"github.com/hupe1980/mcpmesh/tool"
	"github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDescriptor() tool.Descriptor {
	return tool.Descriptor{
		Name:        "add",
		Description: "Add two numbers",
		Schema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]*mcp.ParameterSchema{
				"a": {Type: "number", Required: true},
				"b": {Type: "number", Required: true},
			},
			Required: []string{"a", "b"},
		},
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			return args["a"].(float64) + args["b"].(float64), nil
		},
	}
}

func TestToolParam(t *testing.T) {
	p := adapter.ToolParam(sampleDescriptor())

	assert.Equal(t, "add", p.Function.Name)
	assert.Equal(t, "Add two numbers", p.Function.Description.Value)
	assert.Equal(t, "object", p.Function.Parameters["type"])

	props, ok := p.Function.Parameters["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "a")
	assert.Contains(t, props, "b")
}

func TestToolParams(t *testing.T) {
	r := tool.NewRegistry()
	r.RegisterExternal(sampleDescriptor())

	params := adapter.ToolParams(r)
	require.Len(t, params, 1)
	assert.Equal(t, "add", params[0].Function.Name)
}

func TestDescriptor_RoundTrip(t *testing.T) {
	original := sampleDescriptor()
	p := adapter.ToolParam(original)

	imported, err := adapter.Descriptor(p.Function, original.Handler)
	require.NoError(t, err)

	assert.Equal(t, original.Name, imported.Name)
	assert.Equal(t, original.Description, imported.Description)
	assert.ElementsMatch(t, original.Schema.Required, imported.Schema.Required)
	require.Contains(t, imported.Schema.Properties, "a")
	assert.Equal(t, "number", imported.Schema.Properties["a"].Type)
}

func TestDescriptor_NilParameters(t *testing.T) {
	imported, err := adapter.Descriptor(openai.FunctionDefinitionParam{
		Name:        "bare",
		Description: openai.String("No parameters"),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "object", imported.Schema.Type)
	assert.Empty(t, imported.Schema.Properties)
}
