// Package mcpmesh provides a high-level façade over the protocol session
// layer, handler registry and invocation engine, enabling rapid construction
// of tool servers. Most applications interact with this package by:
//  1. Creating a Server via New() (optionally overriding identity and logger)
//  2. Registering tools (function adapters, declarative sources, external
//     descriptors or pre-built bindings)
//  3. Serving over stdio (ServeStdio) or HTTP/SSE (SSEHandler)
//
// The façade delegates session handling to the server package while keeping
// setup ergonomics concise. Defaults are safe for local development; hosts
// typically supply a structured logger and identity.
package mcpmesh

import (
	"context"

	"github.com/hupe1980/mcpmesh/jsonrpc"
	"github.com/hupe1980/mcpmesh/logging"
	"github.com/hupe1980/mcpmesh/mcp"
	"github.com/hupe1980/mcpmesh/server"
	"github.com/hupe1980/mcpmesh/tool"
	"github.com/hupe1980/mcpmesh/transport"
)

// Options configures the Server façade.
type Options struct {
	// Name and Version identify this server during the handshake.
	Name    string
	Version string
	// Logger receives local diagnostics (defaults to NoOp logger if nil).
	Logger logging.Logger
}

// Server is the high-level façade aggregating the registry and the session
// machinery behind simple serve entry points.
type Server struct {
	opts     Options
	registry *tool.Registry
}

// New creates a new Server with optional overrides.
func New(optFns ...func(o *Options)) *Server {
	opts := Options{
		Name:    "mcpmesh",
		Version: "0.1.0",
		Logger:  logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	registry := tool.NewRegistry(func(o *tool.RegistryOptions) {
		o.Logger = opts.Logger
	})

	return &Server{opts: opts, registry: registry}
}

// Registry exposes the underlying handler registry.
func (s *Server) Registry() *tool.Registry { return s.registry }

// AddTool registers a Tool implementation.
func (s *Server) AddTool(t tool.Tool) { s.registry.AddTool(t) }

// AddFunction registers a plain Go function under an explicit schema.
func (s *Server) AddFunction(name, description string, schema mcp.ToolInputSchema, fn tool.Handler) {
	s.registry.AddTool(tool.NewFunctionTool(name, description, schema, fn))
}

// RegisterSource walks a declarative capability source.
func (s *Server) RegisterSource(source tool.Source) { s.registry.RegisterSource(source) }

// RegisterExternal adapts a pre-described external function verbatim.
func (s *Server) RegisterExternal(d tool.Descriptor) { s.registry.RegisterExternal(d) }

// NewSession binds a transport to this server's registry and identity. The
// returned session implements server.Runnable and can be supervised by a
// server.Host.
func (s *Server) NewSession(t jsonrpc.Transport) *server.Session {
	return server.NewSession(t, s.registry, func(o *server.Options) {
		o.ServerInfo = mcp.Implementation{Name: s.opts.Name, Version: s.opts.Version}
		o.Logger = s.opts.Logger
	})
}

// ServeStdio serves one session over the process's stdin/stdout, blocking
// until the stream ends or ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	return s.NewSession(transport.NewStdio()).Serve(ctx, nil)
}

// SSEHandler returns an http.Handler serving one protocol session per SSE
// connection, with submissions arriving on the announced POST endpoint.
func (s *Server) SSEHandler(optFns ...func(o *transport.SSEHandlerOptions)) *transport.SSEHandler {
	return transport.NewSSEHandler(func(t *transport.SSEServerTransport) {
		sess := s.NewSession(t)
		go func() {
			if err := sess.Serve(context.Background(), nil); err != nil {
				s.logger().Debug("sse.session.exit", "error", err.Error())
			}
		}()
	}, optFns...)
}

func (s *Server) logger() logging.Logger { return s.opts.Logger }
