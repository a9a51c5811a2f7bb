package server_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"runtime"
	"testing"
	"time"

	"github.com/hupe1980/mcpmesh/jsonrpc"
	"github.com/hupe1980/mcpmesh/mcp"
	"github.com/hupe1980/mcpmesh/server"
	"github.com/hupe1980/mcpmesh/tool"
	"github.com/hupe1980/mcpmesh/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type notification struct {
	method string
	params json.RawMessage
}

type harness struct {
	session *server.Session
	conn    *jsonrpc.Conn
	notes   chan notification
}

// startSession wires a session and a raw peer connection over an in-memory
// pipe. Peer-bound notifications land on the notes channel.
func startSession(t *testing.T, registry *tool.Registry) *harness {
	t.Helper()

	srvT, cliT := transport.Pipe()
	sess := server.NewSession(srvT, registry)

	notes := make(chan notification, 32)
	conn := jsonrpc.NewConn(cliT, func(_ context.Context, method string, params json.RawMessage) (any, error) {
		notes <- notification{method: method, params: params}
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = sess.Serve(ctx, nil) }()
	go func() { _ = conn.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		_ = conn.Close()
	})

	return &harness{session: sess, conn: conn, notes: notes}
}

func (h *harness) initialize(t *testing.T) mcp.InitializeResult {
	t.Helper()

	var result mcp.InitializeResult
	err := h.conn.Call(context.Background(), mcp.MethodInitialize, mcp.InitializeParams{
		ProtocolVersion: mcp.ProtocolVersion,
		ClientInfo:      mcp.Implementation{Name: "test-client", Version: "0.0.1"},
	}, &result)
	require.NoError(t, err)
	require.NoError(t, h.conn.Notify(context.Background(), mcp.NotificationInitialized, nil))
	return result
}

func (h *harness) callTool(t *testing.T, name string, args map[string]any) mcp.CallToolResult {
	t.Helper()

	var result mcp.CallToolResult
	err := h.conn.Call(context.Background(), mcp.MethodCallTool, mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	}, &result)
	require.NoError(t, err)
	return result
}

func (h *harness) nextNote(t *testing.T) notification {
	t.Helper()
	select {
	case n := <-h.notes:
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("expected a notification")
		return notification{}
	}
}

func newSlogLogger(s *server.Session) *slog.Logger {
	return slog.New(server.NewNotifyHandler(s, "app", slog.LevelInfo))
}

func addRegistry() *tool.Registry {
	r := tool.NewRegistry()
	r.AddTool(tool.NewFunctionTool("add", "Add two numbers", mcp.ToolInputSchema{
		Type: "object",
		Properties: map[string]*mcp.ParameterSchema{
			"a": {Type: "number", Required: true},
			"b": {Type: "number", Required: true},
		},
		Required: []string{"a", "b"},
	}, func(_ context.Context, args map[string]any) (any, error) {
		return args["a"].(float64) + args["b"].(float64), nil
	}))
	return r
}

func TestSession_Handshake(t *testing.T) {
	h := startSession(t, addRegistry())

	result := h.initialize(t)
	assert.Equal(t, mcp.ProtocolVersion, result.ProtocolVersion)
	require.NotNil(t, result.Capabilities.Tools)
	assert.True(t, result.Capabilities.Tools.ListChanged)
	assert.NotEmpty(t, result.ServerInfo.Name)
}

func TestSession_CallToolOverWire(t *testing.T) {
	h := startSession(t, addRegistry())
	h.initialize(t)

	var list mcp.ListToolsResult
	require.NoError(t, h.conn.Call(context.Background(), mcp.MethodListTools, nil, &list))
	require.Len(t, list.Tools, 1)
	assert.Equal(t, "add", list.Tools[0].Name)

	result := h.callTool(t, "add", map[string]any{"a": 2, "b": 3})
	require.False(t, result.IsError)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "5", result.Content[0].Text)
}

func TestSession_BeforeHandshake(t *testing.T) {
	h := startSession(t, addRegistry())

	// Listings degrade to empty snapshots.
	var list mcp.ListToolsResult
	require.NoError(t, h.conn.Call(context.Background(), mcp.MethodListTools, nil, &list))
	assert.Empty(t, list.Tools)

	// Invocations are rejected as tool-level errors.
	result := h.callTool(t, "add", map[string]any{"a": 1, "b": 2})
	require.True(t, result.IsError)
	assert.Equal(t, "Session not initialized", result.Content[0].Text)
}

func TestSession_UnknownTool(t *testing.T) {
	h := startSession(t, addRegistry())
	h.initialize(t)

	result := h.callTool(t, "does-not-exist", nil)
	require.True(t, result.IsError)
	assert.Equal(t, "Tool does-not-exist not found", result.Content[0].Text)

	// The session survives; the next call on the same connection works.
	result = h.callTool(t, "add", map[string]any{"a": 1, "b": 1})
	assert.False(t, result.IsError)
}

func TestSession_MissingRequiredParameter(t *testing.T) {
	h := startSession(t, addRegistry())
	h.initialize(t)

	result := h.callTool(t, "add", map[string]any{"a": 1})
	require.True(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, `required parameter "b" missing`)
}

func TestSession_Ping(t *testing.T) {
	h := startSession(t, addRegistry())

	// Ping works in every state, handshake or not.
	require.NoError(t, h.conn.Call(context.Background(), mcp.MethodPing, nil, nil))
}

func TestSession_UnknownMethod(t *testing.T) {
	h := startSession(t, addRegistry())
	h.initialize(t)

	err := h.conn.Call(context.Background(), "bogus/method", nil, nil)
	rpcErr := &jsonrpc.Error{}
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, jsonrpc.CodeMethodNotFound, rpcErr.Code)
}

func TestSession_ListResourcesAndPrompts(t *testing.T) {
	r := addRegistry()
	r.AddResource(mcp.Resource{Name: "readme", URI: "file:///README.md"})
	r.AddResourceTemplate(mcp.ResourceTemplate{Name: "logs", URITemplate: "file:///logs/{date}.log"})
	r.AddPrompt(mcp.Prompt{Name: "greeting"})

	h := startSession(t, r)
	h.initialize(t)

	var resources mcp.ListResourcesResult
	require.NoError(t, h.conn.Call(context.Background(), mcp.MethodListResources, nil, &resources))
	require.Len(t, resources.Resources, 1)
	assert.Equal(t, "readme", resources.Resources[0].Name)

	var templates mcp.ListResourceTemplatesResult
	require.NoError(t, h.conn.Call(context.Background(), mcp.MethodListResourceTemplates, nil, &templates))
	require.Len(t, templates.Templates, 1)

	var prompts mcp.ListPromptsResult
	require.NoError(t, h.conn.Call(context.Background(), mcp.MethodListPrompts, nil, &prompts))
	require.Len(t, prompts.Prompts, 1)
}

func TestSession_DiagnosticsBufferedUntilInitialized(t *testing.T) {
	h := startSession(t, addRegistry())

	h.session.Log(mcp.LevelInfo, "startup", "first")
	h.session.Log(mcp.LevelWarning, "startup", "second")
	h.session.Log(mcp.LevelError, "startup", "third")

	// A full round trip proves nothing was pushed before the handshake.
	require.NoError(t, h.conn.Call(context.Background(), mcp.MethodPing, nil, nil))
	assert.Empty(t, h.notes)

	h.initialize(t)
	// The ping response follows the buffered notifications on the wire.
	require.NoError(t, h.conn.Call(context.Background(), mcp.MethodPing, nil, nil))

	want := []string{"first", "second", "third"}
	for _, data := range want {
		n := h.nextNote(t)
		assert.Equal(t, mcp.NotificationLoggingMessage, n.method)
		var p mcp.LoggingMessageParams
		require.NoError(t, json.Unmarshal(n.params, &p))
		assert.Equal(t, data, p.Data)
	}

	// Post-handshake entries are forwarded immediately.
	h.session.Log(mcp.LevelInfo, "runtime", "fourth")
	n := h.nextNote(t)
	var p mcp.LoggingMessageParams
	require.NoError(t, json.Unmarshal(n.params, &p))
	assert.Equal(t, "fourth", p.Data)
}

func TestSession_SetLevelFilters(t *testing.T) {
	h := startSession(t, addRegistry())
	h.initialize(t)

	require.NoError(t, h.conn.Call(context.Background(), mcp.MethodSetLevel, mcp.SetLevelParams{Level: mcp.LevelWarning}, nil))

	h.session.Log(mcp.LevelDebug, "noisy", "dropped")
	h.session.Log(mcp.LevelError, "noisy", "kept")

	n := h.nextNote(t)
	var p mcp.LoggingMessageParams
	require.NoError(t, json.Unmarshal(n.params, &p))
	assert.Equal(t, "kept", p.Data)
	assert.Equal(t, mcp.LevelError, p.Level)
}

func TestSession_ToolListChangedNotification(t *testing.T) {
	r := addRegistry()
	h := startSession(t, r)

	// Mutations before the handshake stay quiet.
	r.AddTool(tool.NewFunctionTool("early", "too early", mcp.ToolInputSchema{}, func(_ context.Context, _ map[string]any) (any, error) {
		return "x", nil
	}))
	require.NoError(t, h.conn.Call(context.Background(), mcp.MethodPing, nil, nil))
	assert.Empty(t, h.notes)

	h.initialize(t)
	require.NoError(t, h.conn.Call(context.Background(), mcp.MethodPing, nil, nil))
	for len(h.notes) > 0 {
		<-h.notes
	}

	r.AddTool(tool.NewFunctionTool("late", "after handshake", mcp.ToolInputSchema{}, func(_ context.Context, _ map[string]any) (any, error) {
		return "y", nil
	}))

	n := h.nextNote(t)
	assert.Equal(t, mcp.NotificationToolListChanged, n.method)
}

func TestSession_ServeReleasesWatcher(t *testing.T) {
	before := runtime.NumGoroutine()

	// Sessions served with a background context must not park a watcher
	// goroutine forever once the transport ends.
	for i := 0; i < 20; i++ {
		srvT, cliT := transport.Pipe()
		sess := server.NewSession(srvT, tool.NewRegistry())

		done := make(chan error, 1)
		go func() { done <- sess.Serve(context.Background(), nil) }()

		require.NoError(t, cliT.Close())
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("serve never returned after transport close")
		}
	}

	require.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before+2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNotifyHandler(t *testing.T) {
	h := startSession(t, addRegistry())
	h.initialize(t)
	require.NoError(t, h.conn.Call(context.Background(), mcp.MethodPing, nil, nil))
	for len(h.notes) > 0 {
		<-h.notes
	}

	logger := newSlogLogger(h.session)
	logger.Info("tool registered", "tool", "add")

	n := h.nextNote(t)
	require.Equal(t, mcp.NotificationLoggingMessage, n.method)
	var p mcp.LoggingMessageParams
	require.NoError(t, json.Unmarshal(n.params, &p))
	assert.Equal(t, mcp.LevelInfo, p.Level)
	assert.Equal(t, "app", p.Logger)

	data, ok := p.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "tool registered", data["message"])

	logger.Error("it broke")
	n = h.nextNote(t)
	require.NoError(t, json.Unmarshal(n.params, &p))
	assert.Equal(t, mcp.LevelError, p.Level)
	data, ok = p.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "it broke", data["error"])
}
