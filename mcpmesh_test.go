package mcpmesh_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hupe1980/mcpmesh"
	"github.com/hupe1980/mcpmesh/client"
	"github.com/hupe1980/mcpmesh/mcp"
	"github.com/hupe1980/mcpmesh/tool"
	"github.com/hupe1980/mcpmesh/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer() *mcpmesh.Server {
	s := mcpmesh.New(func(o *mcpmesh.Options) {
		o.Name = "calc"
		o.Version = "1.2.3"
	})
	s.AddFunction("add", "Add two numbers", mcp.ToolInputSchema{
		Type: "object",
		Properties: map[string]*mcp.ParameterSchema{
			"a": {Type: "number", Required: true},
			"b": {Type: "number", Required: true},
		},
		Required: []string{"a", "b"},
	}, func(_ context.Context, args map[string]any) (any, error) {
		return args["a"].(float64) + args["b"].(float64), nil
	})
	return s
}

func TestServer_SessionOverPipe(t *testing.T) {
	s := newServer()

	srvT, cliT := transport.Pipe()
	sess := s.NewSession(srvT)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = sess.Serve(ctx, nil) }()
	t.Cleanup(cancel)

	c := client.New()
	require.NoError(t, c.Connect(context.Background(), cliT))
	t.Cleanup(func() { _ = c.Close() })

	assert.Equal(t, "calc", c.ServerInfo().Name)
	assert.Equal(t, "1.2.3", c.ServerInfo().Version)

	result, err := c.CallTool(context.Background(), "add", map[string]any{"a": 2, "b": 3})
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Equal(t, "5", result.Content[0].Text)
}

func TestServer_SSEHandlerEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s := newServer()
	srv := httptest.NewServer(s.SSEHandler())
	t.Cleanup(srv.Close)

	sseT := transport.NewSSEClient(srv.URL)
	require.NoError(t, sseT.Start(ctx))

	c := client.New()
	require.NoError(t, c.Connect(ctx, sseT))
	t.Cleanup(func() { _ = c.Close() })

	tools, err := c.GetTools(ctx)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "add", tools[0].Name)

	result, err := c.CallTool(ctx, "add", map[string]any{"a": 40, "b": 2})
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Equal(t, "42", result.Content[0].Text)
}

type calcSource struct{}

func (calcSource) Tools() []tool.Tool {
	return []tool.Tool{
		tool.NewFunctionTool("negate", "Negate a number", mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]*mcp.ParameterSchema{
				"x": {Type: "number", Required: true},
			},
			Required: []string{"x"},
		}, func(_ context.Context, args map[string]any) (any, error) {
			return -args["x"].(float64), nil
		}),
	}
}

func TestServer_RegisterSource(t *testing.T) {
	s := newServer()
	s.RegisterSource(calcSource{})

	names := make([]string, 0, 2)
	for _, tl := range s.Registry().Tools() {
		names = append(names, tl.Name)
	}
	assert.ElementsMatch(t, []string{"add", "negate"}, names)
}
