// Package server implements the server role of the protocol session layer:
// a method router bound to a handler registry and invocation engine, the
// host supervisor that runs a session with bounded start/stop, and the
// diagnostics bridge forwarding log entries to the peer.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/mcpmesh/engine"
	"github.com/hupe1980/mcpmesh/jsonrpc"
	"github.com/hupe1980/mcpmesh/logging"
	"github.com/hupe1980/mcpmesh/mcp"
	"github.com/hupe1980/mcpmesh/tool"
)

// Session states. Transitions are monotonic: Unhandshaked -> Active -> Closed.
const (
	StateUnhandshaked int32 = iota
	StateActive
	StateClosed
)

// Options configures a server session.
type Options struct {
	// ServerInfo identifies this server during the handshake.
	ServerInfo mcp.Implementation
	// Engine executes tool bindings. A default engine is built when nil.
	Engine *engine.Engine
	// Logger receives local (non-forwarded) diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Session is one server-side protocol session over a single transport. It
// owns the handshake state and routes the method surface to the registry and
// engine. A session is terminal once closed and never reused across
// reconnects.
type Session struct {
	conn     *jsonrpc.Conn
	registry *tool.Registry
	engine   *engine.Engine
	logger   logging.Logger

	serverInfo mcp.Implementation

	state atomic.Int32

	mu         sync.Mutex
	clientInfo mcp.Implementation
	clientCaps mcp.ClientCapabilities
	minLevel   mcp.LoggingLevel

	diag    *diagnostics
	unwatch func()
}

// NewSession binds a transport to a registry. The session does not process
// messages until Serve runs.
func NewSession(transport jsonrpc.Transport, registry *tool.Registry, optFns ...func(o *Options)) *Session {
	opts := Options{
		ServerInfo: mcp.Implementation{Name: "mcpmesh", Version: "0.1.0"},
		Logger:     logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Engine == nil {
		opts.Engine = engine.New(func(o *engine.Options) { o.Logger = opts.Logger })
	}

	s := &Session{
		registry:   registry,
		engine:     opts.Engine,
		logger:     opts.Logger,
		serverInfo: opts.ServerInfo,
		minLevel:   mcp.LevelDebug,
	}
	s.conn = jsonrpc.NewConn(transport, s.handle)
	s.diag = newDiagnostics(s.sendLogNotification)

	s.unwatch = registry.OnChange(func() {
		if s.State() != StateActive {
			return
		}
		// Send failures surface on the next request; the notification is
		// best effort.
		_ = s.conn.Notify(context.Background(), mcp.NotificationToolListChanged, nil)
	})

	return s
}

// State returns the current session state snapshot.
func (s *Session) State() int32 { return s.state.Load() }

// Serve processes messages in transport delivery order until the transport
// fails or ctx is cancelled. The ready callback, when non-nil, fires once
// before the first blocking read; the supervisor uses it to bound startup.
func (s *Session) Serve(ctx context.Context, ready func()) error {
	// Cancelled when Run returns so the watcher never outlives the session.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		_ = s.conn.Close()
	}()

	if ready != nil {
		ready()
	}

	err := s.conn.Run(ctx)
	s.state.Store(StateClosed)
	s.unwatch()
	s.logger.Info("session.closed")
	return err
}

// Log submits a structured entry to the diagnostics bridge: buffered before
// the handshake completes, forwarded as notifications/message afterwards.
// Entries below the peer-configured minimum severity are dropped. Sending
// never fails the caller.
func (s *Session) Log(level mcp.LoggingLevel, loggerName string, data any) {
	s.mu.Lock()
	minLevel := s.minLevel
	s.mu.Unlock()
	if level.Severity() < minLevel.Severity() {
		return
	}
	if s.State() == StateClosed {
		// Pending diagnostics are dropped on close.
		return
	}
	s.diag.log(mcp.LoggingMessageParams{Level: level, Logger: loggerName, Data: data})
}

func (s *Session) sendLogNotification(p mcp.LoggingMessageParams) error {
	return s.conn.Notify(context.Background(), mcp.NotificationLoggingMessage, p)
}

// handle routes one inbound request or notification.
func (s *Session) handle(ctx context.Context, method string, params json.RawMessage) (any, error) {
	switch method {
	case mcp.MethodInitialize:
		return s.handleInitialize(params)
	case mcp.NotificationInitialized:
		s.logger.Debug("session.handshake.complete")
		s.diag.activate()
		return nil, nil
	case mcp.MethodPing:
		return struct{}{}, nil
	case mcp.MethodListTools:
		return s.handleListTools(), nil
	case mcp.MethodCallTool:
		return s.handleCallTool(ctx, params), nil
	case mcp.MethodListResources:
		return s.handleListResources(), nil
	case mcp.MethodListResourceTemplates:
		return s.handleListTemplates(), nil
	case mcp.MethodListPrompts:
		return s.handleListPrompts(), nil
	case mcp.MethodSetLevel:
		return s.handleSetLevel(params)
	default:
		return nil, &jsonrpc.Error{
			Code:    jsonrpc.CodeMethodNotFound,
			Message: fmt.Sprintf("method %q not found", method),
		}
	}
}

func (s *Session) handleInitialize(params json.RawMessage) (any, error) {
	var p mcp.InitializeParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: err.Error()}
		}
	}

	s.mu.Lock()
	s.clientInfo = p.ClientInfo
	s.clientCaps = p.Capabilities
	s.mu.Unlock()

	s.state.CompareAndSwap(StateUnhandshaked, StateActive)
	s.logger.Info("session.initialized", "client", p.ClientInfo.Name, "version", p.ClientInfo.Version)

	return mcp.InitializeResult{
		ProtocolVersion: mcp.ProtocolVersion,
		Capabilities: mcp.ServerCapabilities{
			Logging: map[string]any{},
			Tools:   &mcp.ToolsCapability{ListChanged: true},
		},
		ServerInfo: s.serverInfo,
	}, nil
}

func (s *Session) handleListTools() mcp.ListToolsResult {
	// Before the handshake the listing degrades to an empty snapshot
	// rather than failing, tolerating permissive peers.
	if s.State() != StateActive {
		return mcp.ListToolsResult{Tools: []mcp.Tool{}}
	}
	tools := s.registry.Tools()
	if tools == nil {
		tools = []mcp.Tool{}
	}
	return mcp.ListToolsResult{Tools: tools}
}

func (s *Session) handleCallTool(ctx context.Context, params json.RawMessage) *mcp.CallToolResult {
	if s.State() != StateActive {
		return mcp.ErrorResult("Session not initialized")
	}

	var p mcp.CallToolParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid tool call: %v", err))
	}

	binding, ok := s.registry.Lookup(p.Name)
	if !ok {
		// Unknown names are an ordinary tool-level error, not a protocol
		// failure.
		return mcp.ErrorResult(fmt.Sprintf("Tool %s not found", p.Name))
	}

	s.logger.Debug("session.tool.call", "tool", p.Name)
	return s.engine.Invoke(ctx, binding, p.Arguments)
}

func (s *Session) handleListResources() mcp.ListResourcesResult {
	if s.State() != StateActive {
		return mcp.ListResourcesResult{Resources: []mcp.Resource{}}
	}
	res := s.registry.Resources()
	if res == nil {
		res = []mcp.Resource{}
	}
	return mcp.ListResourcesResult{Resources: res}
}

func (s *Session) handleListTemplates() mcp.ListResourceTemplatesResult {
	if s.State() != StateActive {
		return mcp.ListResourceTemplatesResult{Templates: []mcp.ResourceTemplate{}}
	}
	tpl := s.registry.ResourceTemplates()
	if tpl == nil {
		tpl = []mcp.ResourceTemplate{}
	}
	return mcp.ListResourceTemplatesResult{Templates: tpl}
}

func (s *Session) handleListPrompts() mcp.ListPromptsResult {
	if s.State() != StateActive {
		return mcp.ListPromptsResult{Prompts: []mcp.Prompt{}}
	}
	prompts := s.registry.Prompts()
	if prompts == nil {
		prompts = []mcp.Prompt{}
	}
	return mcp.ListPromptsResult{Prompts: prompts}
}

func (s *Session) handleSetLevel(params json.RawMessage) (any, error) {
	var p mcp.SetLevelParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: err.Error()}
	}
	s.mu.Lock()
	s.minLevel = p.Level
	s.mu.Unlock()
	s.logger.Debug("session.loglevel", "level", string(p.Level))
	return struct{}{}, nil
}
