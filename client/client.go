// Package client implements the client role of the protocol session layer:
// it drives the handshake, keeps a tool-list cache refreshed on
// list_changed notifications, gates outbound invocations through a local
// authorization predicate and routes peer diagnostics to the local logger.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hupe1980/mcpmesh/jsonrpc"
	"github.com/hupe1980/mcpmesh/logging"
	"github.com/hupe1980/mcpmesh/mcp"
)

// Authorizer decides locally whether a tool call may leave the process.
// Returning false short-circuits the call with an isError result; nothing
// reaches the transport.
type Authorizer func(name string, args map[string]any) bool

// Options configures a Client.
type Options struct {
	// ClientInfo identifies this client during the handshake.
	ClientInfo mcp.Implementation
	// Capabilities advertised in the initialize request.
	Capabilities mcp.ClientCapabilities
	// Authorize gates CallTool. Defaults to allowing everything.
	Authorize Authorizer
	// Logger is the local diagnostics sink; peer notifications/message
	// entries are routed here. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Client is the client side of one protocol session. Create it with New,
// connect it with Connect, and discard it after Close; a client is not
// reusable across reconnects.
type Client struct {
	clientInfo   mcp.Implementation
	capabilities mcp.ClientCapabilities
	authorize    Authorizer
	logger       logging.Logger

	conn *jsonrpc.Conn

	mu         sync.Mutex
	connected  bool
	serverInfo mcp.Implementation
	serverCaps mcp.ServerCapabilities
	tools      []mcp.Tool
}

// New constructs an unconnected client.
func New(optFns ...func(o *Options)) *Client {
	opts := Options{
		ClientInfo: mcp.Implementation{Name: "mcpmesh-client", Version: "0.1.0"},
		Authorize:  func(string, map[string]any) bool { return true },
		Logger:     logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Client{
		clientInfo:   opts.ClientInfo,
		capabilities: opts.Capabilities,
		authorize:    opts.Authorize,
		logger:       opts.Logger,
	}
}

// Connect performs the handshake over the given transport: initialize,
// notifications/initialized, then one asynchronous tool-list fetch. The
// message loop runs until the transport fails or Close is called; peer
// termination fails in-flight calls with a transport error and there is no
// automatic reconnect.
func (c *Client) Connect(ctx context.Context, transport jsonrpc.Transport) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return fmt.Errorf("client: already connected")
	}
	c.conn = jsonrpc.NewConn(transport, c.handle)
	c.connected = true
	c.mu.Unlock()

	go func() {
		if err := c.conn.Run(context.Background()); err != nil {
			c.logger.Debug("client.loop.exit", "error", err.Error())
		}
	}()

	var result mcp.InitializeResult
	err := c.conn.Call(ctx, mcp.MethodInitialize, mcp.InitializeParams{
		ProtocolVersion: mcp.ProtocolVersion,
		Capabilities:    c.capabilities,
		ClientInfo:      c.clientInfo,
	}, &result)
	if err != nil {
		_ = c.conn.Close()
		return fmt.Errorf("client: initialize: %w", err)
	}

	c.mu.Lock()
	c.serverInfo = result.ServerInfo
	c.serverCaps = result.Capabilities
	c.mu.Unlock()

	if err := c.conn.Notify(ctx, mcp.NotificationInitialized, nil); err != nil {
		_ = c.conn.Close()
		return fmt.Errorf("client: initialized notification: %w", err)
	}

	go c.refreshTools(context.Background())

	c.logger.Info("client.connected", "server", result.ServerInfo.Name, "version", result.ServerInfo.Version)
	return nil
}

// ServerInfo returns the peer identity recorded at handshake.
func (c *Client) ServerInfo() mcp.Implementation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverInfo
}

// GetTools re-fetches the tool list from the peer and replaces the cache.
// There is no staleness guarantee between calls.
func (c *Client) GetTools(ctx context.Context) ([]mcp.Tool, error) {
	var result mcp.ListToolsResult
	if err := c.conn.Call(ctx, mcp.MethodListTools, struct{}{}, &result); err != nil {
		return nil, fmt.Errorf("client: list tools: %w", err)
	}
	c.mu.Lock()
	c.tools = result.Tools
	c.mu.Unlock()
	return result.Tools, nil
}

// Tools returns the cached tool list without contacting the peer.
func (c *Client) Tools() []mcp.Tool {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]mcp.Tool, len(c.tools))
	copy(out, c.tools)
	return out
}

// CallTool invokes a named tool on the peer. The local authorization
// predicate is evaluated first; a veto yields an isError result with text
// "Permission Denied." without contacting the peer. Otherwise the peer's
// result is returned verbatim.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	if !c.authorize(name, args) {
		c.logger.Warn("client.tool.denied", "tool", name)
		return mcp.ErrorResult("Permission Denied."), nil
	}

	var result mcp.CallToolResult
	err := c.conn.Call(ctx, mcp.MethodCallTool, mcp.CallToolParams{Name: name, Arguments: args}, &result)
	if err != nil {
		return nil, fmt.Errorf("client: call tool %q: %w", name, err)
	}
	return &result, nil
}

// Ping checks peer liveness.
func (c *Client) Ping(ctx context.Context) error {
	return c.conn.Call(ctx, mcp.MethodPing, struct{}{}, nil)
}

// SetLogLevel asks the peer to forward diagnostics at or above level.
func (c *Client) SetLogLevel(ctx context.Context, level mcp.LoggingLevel) error {
	return c.conn.Call(ctx, mcp.MethodSetLevel, mcp.SetLevelParams{Level: level}, nil)
}

// Close tears the session down, failing in-flight calls.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// handle reacts to unsolicited peer notifications.
func (c *Client) handle(_ context.Context, method string, params json.RawMessage) (any, error) {
	switch method {
	case mcp.NotificationToolListChanged:
		go c.refreshTools(context.Background())
		return nil, nil
	case mcp.NotificationLoggingMessage:
		var p mcp.LoggingMessageParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, nil
		}
		c.routeLog(p)
		return nil, nil
	default:
		return nil, &jsonrpc.Error{
			Code:    jsonrpc.CodeMethodNotFound,
			Message: fmt.Sprintf("method %q not found", method),
		}
	}
}

func (c *Client) refreshTools(ctx context.Context) {
	if _, err := c.GetTools(ctx); err != nil {
		c.logger.Debug("client.tools.refresh_failed", "error", err.Error())
	}
}

// routeLog maps a peer diagnostics notification onto the local sink.
func (c *Client) routeLog(p mcp.LoggingMessageParams) {
	msg := "server.message"
	args := []any{"logger", p.Logger, "data", p.Data}
	switch {
	case p.Level.Severity() >= mcp.LevelError.Severity():
		c.logger.Error(msg, args...)
	case p.Level == mcp.LevelWarning:
		c.logger.Warn(msg, args...)
	case p.Level == mcp.LevelDebug:
		c.logger.Debug(msg, args...)
	default:
		c.logger.Info(msg, args...)
	}
}
