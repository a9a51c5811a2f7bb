// Package tool implements the handler registry that maps tool names onto
// schema-described, invocable bindings. Tools can be registered three ways:
// from a declarative Source walking its own capability list, from an
// externally described function (pre-built schema, no inference), or as a
// fully pre-built descriptor/handler pair. Duplicate names overwrite
// silently; that is documented behavior, not a defect.
package tool

import (
	"context"
	"fmt"

	"github.com/hupe1980/mcpmesh/mcp"
)

// Handler is the opaque callable behind a tool binding. Arguments arrive
// already coerced to the parameter's native shape; absent optional
// parameters carry the type's zero value (or nil for reference shapes).
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Tool is a named, schema-described operation. Implementations should be
// safe for concurrent use; the registry never serializes calls.
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description of what this tool
	// does, surfaced to peers via tools/list.
	Description() string

	// Schema describes the expected arguments.
	Schema() mcp.ToolInputSchema

	// Call executes the tool with coerced arguments.
	Call(ctx context.Context, args map[string]any) (any, error)
}

// Binding pairs a tool descriptor with its invocable implementation. A
// binding lives exactly as long as its registry entry.
type Binding struct {
	Tool    mcp.Tool
	Handler Handler
	// Source optionally records the owning instance the binding was
	// scanned from.
	Source any
}

// Descriptor is the narrow shape of an externally described function:
// name, description, pre-built schema and callable. It is consumed verbatim
// by RegisterExternal and produced symmetrically by the provider adapters so
// tools from this runtime can be exported to other hosts.
type Descriptor struct {
	Name        string
	Description string
	Schema      mcp.ToolInputSchema
	Handler     Handler
}

// Source is a declarative bundle of capabilities registered in one pass.
// Optional listing interfaces (ResourceSource, TemplateSource, PromptSource)
// are picked up when implemented.
type Source interface {
	Tools() []Tool
}

// ResourceSource additionally contributes listable resources.
type ResourceSource interface {
	Resources() []mcp.Resource
}

// TemplateSource additionally contributes resource URI templates.
type TemplateSource interface {
	ResourceTemplates() []mcp.ResourceTemplate
}

// PromptSource additionally contributes prompt templates.
type PromptSource interface {
	Prompts() []mcp.Prompt
}

// ToolError is a typed handler failure carrying a machine-readable code and
// optional structured details. Handlers return it when a bare message is not
// enough; the invocation engine recognizes the type and appends the
// marshaled error as a second, structured content item of the error result.
type ToolError struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError builds a coded ToolError. Details can be attached on the
// struct directly when a handler has them.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}
