// Package engine executes tool bindings against raw, untyped wire arguments
// and normalizes every outcome (value, failure, panic, cancellation) into a
// protocol result. A failure never escapes the engine as a Go error: the
// session layer always receives a well-formed CallToolResult, with tool-level
// problems flagged via IsError.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/hupe1980/mcpmesh/logging"
	"github.com/hupe1980/mcpmesh/mcp"
	"github.com/hupe1980/mcpmesh/tool"
)

// cancelledMessage is the fixed text reported when cooperative cancellation
// is observed before or after the handler ran.
const cancelledMessage = "Operation was cancelled"

// Options configures an Engine.
type Options struct {
	// Logger receives invocation diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Engine invokes tool bindings. It is stateless apart from its logger and
// safe for concurrent use.
type Engine struct {
	logger logging.Logger
}

// New constructs an Engine.
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Engine{logger: opts.Logger}
}

// Invoke executes one binding against raw named arguments.
//
// Declared parameters are coerced into their native shape; absent optional
// parameters receive the type's zero value (or nil for reference shapes).
// Cancellation is checked before and after the handler runs: a cancelled
// context yields an error result instead of invoking, and a cancellation
// observed afterwards discards any produced value. Handler failures and
// panics are captured and converted into error results; the engine assumes
// nothing about handler purity.
func (e *Engine) Invoke(ctx context.Context, binding tool.Binding, args map[string]any) (result *mcp.CallToolResult) {
	name := binding.Tool.Name

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("engine.invoke.panic", "tool", name, "panic", r)
			result = mcp.ErrorResult(fmt.Sprintf("%v", r), filteredStack())
		}
	}()

	coerced, err := coerceArguments(binding.Tool.InputSchema, args)
	if err != nil {
		e.logger.Warn("engine.invoke.arguments", "tool", name, "error", err.Error())
		return mcp.ErrorResult(err.Error())
	}

	if ctx.Err() != nil {
		return mcp.ErrorResult(cancelledMessage)
	}

	value, err := binding.Handler(ctx, coerced)

	if ctx.Err() != nil {
		// The handler may have produced a value anyway; cancellation wins.
		return mcp.ErrorResult(cancelledMessage)
	}
	if err != nil {
		e.logger.Error("engine.invoke.error", "tool", name, "error", err.Error())
		return errorResult(err)
	}

	res, err := normalize(value)
	if err != nil {
		e.logger.Error("engine.invoke.normalize", "tool", name, "error", err.Error())
		return mcp.ErrorResult(err.Error())
	}
	return res
}

// normalize maps a handler return value onto content items: a string becomes
// one text item, a string slice one item per element in order, nil an error
// result with text "null", structured values their canonical JSON text, and
// anything else its default textual representation.
func normalize(value any) (*mcp.CallToolResult, error) {
	switch v := value.(type) {
	case nil:
		return mcp.ErrorResult("null"), nil
	case *mcp.CallToolResult:
		if v == nil {
			return mcp.ErrorResult("null"), nil
		}
		return v, nil
	case mcp.Content:
		return &mcp.CallToolResult{Content: []mcp.Content{v}}, nil
	case []mcp.Content:
		return &mcp.CallToolResult{Content: v}, nil
	case string:
		return mcp.TextResult(v), nil
	case []string:
		content := make([]mcp.Content, len(v))
		for i, s := range v {
			content[i] = mcp.TextContent(s)
		}
		return &mcp.CallToolResult{Content: content}, nil
	case float64:
		return mcp.TextResult(strconv.FormatFloat(v, 'f', -1, 64)), nil
	case float32:
		return mcp.TextResult(strconv.FormatFloat(float64(v), 'f', -1, 32)), nil
	case bool:
		return mcp.TextResult(strconv.FormatBool(v)), nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return mcp.TextResult(fmt.Sprintf("%d", v)), nil
	case json.RawMessage:
		return mcp.TextResult(string(v)), nil
	case map[string]any, []any:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal result: %w", err)
		}
		return mcp.TextResult(string(data)), nil
	case error:
		return errorResult(v), nil
	default:
		if data, err := json.Marshal(v); err == nil {
			return mcp.TextResult(string(data)), nil
		}
		return mcp.TextResult(fmt.Sprintf("%v", v)), nil
	}
}

// errorResult renders a handler failure. A typed *tool.ToolError
// additionally carries its code and details as a second, structured content
// item so callers can branch without parsing the message.
func errorResult(err error) *mcp.CallToolResult {
	var toolErr *tool.ToolError
	if errors.As(err, &toolErr) {
		if data, merr := json.Marshal(toolErr); merr == nil {
			return mcp.ErrorResult(toolErr.Error(), string(data))
		}
	}
	return mcp.ErrorResult(err.Error())
}

// filteredStack returns the current backtrace with invocation-machinery
// frames (runtime internals and this package) stripped, keeping the trace
// focused on handler code.
func filteredStack() string {
	lines := strings.Split(string(debug.Stack()), "\n")
	var kept []string
	skipNext := false
	for _, line := range lines {
		if skipNext {
			skipNext = false
			continue
		}
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "runtime.") ||
			strings.HasPrefix(trimmed, "runtime/") ||
			strings.HasPrefix(trimmed, "panic(") ||
			strings.Contains(trimmed, "mcpmesh/engine.") {
			// Function line; drop its file/line companion too.
			skipNext = true
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}
