package tool

import (
	"context"

	"github.com/hupe1980/mcpmesh/internal/util"
	"github.com/hupe1980/mcpmesh/mcp"
)

// FunctionTool is a generic adapter that exposes a plain Go function as a
// tool. It holds the parameter schema, either handed in explicitly or
// inferred from an argument struct, and forwards calls to the wrapped
// function. A FunctionTool has no internal mutable state after construction
// and is safe for concurrent use by multiple goroutines.
type FunctionTool struct {
	name        string
	description string
	schema      mcp.ToolInputSchema
	fn          Handler
}

// NewFunctionTool constructs a FunctionTool from an explicit schema and
// function.
//
// Example:
//
//	sumTool := NewFunctionTool(
//	  "add",
//	  "Add two numbers",
//	  mcp.ToolInputSchema{
//	    Type: "object",
//	    Properties: map[string]*mcp.ParameterSchema{
//	      "a": {Type: "number", Required: true},
//	      "b": {Type: "number", Required: true},
//	    },
//	    Required: []string{"a", "b"},
//	  },
//	  func(ctx context.Context, args map[string]any) (any, error) {
//	    return args["a"].(float64) + args["b"].(float64), nil
//	  },
//	)
func NewFunctionTool(name, description string, schema mcp.ToolInputSchema, fn Handler) *FunctionTool {
	if schema.Type == "" {
		schema.Type = "object"
	}
	return &FunctionTool{
		name:        name,
		description: description,
		schema:      schema,
		fn:          fn,
	}
}

// NewFunctionToolFromStruct derives the parameter schema from a struct using
// reflection. Field kinds follow a fixed table: strings stay strings,
// integer and float kinds become number, booleans boolean, slices array,
// time.Time string, and nested structs object with a nested schema. Pointer
// and omitempty fields are optional.
//
// Example:
//
//	type AddArgs struct {
//	  A float64 `json:"a" description:"First addend"`
//	  B float64 `json:"b" description:"Second addend"`
//	}
//
//	sumTool := NewFunctionToolFromStruct("add", "Add two numbers", AddArgs{},
//	  func(ctx context.Context, args map[string]any) (any, error) {
//	    return args["a"].(float64) + args["b"].(float64), nil
//	  })
func NewFunctionToolFromStruct(name, description string, structType any, fn Handler) *FunctionTool {
	return NewFunctionTool(name, description, util.CreateSchema(structType), fn)
}

// Name returns the unique tool name used for routing.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the short natural language description exposed to peers.
func (t *FunctionTool) Description() string { return t.description }

// Schema returns the schema describing expected arguments.
func (t *FunctionTool) Schema() mcp.ToolInputSchema { return t.schema }

// Call invokes the underlying function.
func (t *FunctionTool) Call(ctx context.Context, args map[string]any) (any, error) {
	return t.fn(ctx, args)
}
