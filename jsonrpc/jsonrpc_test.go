package jsonrpc_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hupe1980/mcpmesh/jsonrpc"
	"github.com/hupe1980/mcpmesh/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoParams struct {
	Message string `json:"message"`
}

func startPair(t *testing.T, serverHandler, clientHandler jsonrpc.Handler) (client, server *jsonrpc.Conn) {
	t.Helper()

	srvT, cliT := transport.Pipe()
	server = jsonrpc.NewConn(srvT, serverHandler)
	client = jsonrpc.NewConn(cliT, clientHandler)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = server.Run(ctx) }()
	go func() { _ = client.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		_ = client.Close()
		_ = server.Close()
	})

	return client, server
}

func TestConn_CallRoundTrip(t *testing.T) {
	client, _ := startPair(t, func(_ context.Context, method string, params json.RawMessage) (any, error) {
		require.Equal(t, "echo", method)
		var p echoParams
		require.NoError(t, json.Unmarshal(params, &p))
		return echoParams{Message: p.Message}, nil
	}, nil)

	var result echoParams
	err := client.Call(context.Background(), "echo", echoParams{Message: "hi"}, &result)
	require.NoError(t, err)
	assert.Equal(t, "hi", result.Message)
}

func TestConn_CallConcurrent(t *testing.T) {
	client, _ := startPair(t, func(_ context.Context, _ string, params json.RawMessage) (any, error) {
		var p echoParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return p, nil
	}, nil)

	const n = 16
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			var result echoParams
			want := fmt.Sprintf("msg-%d", i)
			if err := client.Call(context.Background(), "echo", echoParams{Message: want}, &result); err != nil {
				errs <- err
				return
			}
			if result.Message != want {
				errs <- fmt.Errorf("got %q, want %q", result.Message, want)
				return
			}
			errs <- nil
		}(i)
	}
	for i := 0; i < n; i++ {
		assert.NoError(t, <-errs)
	}
}

func TestConn_HandlerErrorPropagates(t *testing.T) {
	client, _ := startPair(t, func(_ context.Context, _ string, _ json.RawMessage) (any, error) {
		return nil, &jsonrpc.Error{Code: jsonrpc.CodeMethodNotFound, Message: "method \"nope\" not found"}
	}, nil)

	err := client.Call(context.Background(), "nope", nil, nil)
	require.Error(t, err)

	rpcErr := &jsonrpc.Error{}
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, jsonrpc.CodeMethodNotFound, rpcErr.Code)
}

func TestConn_PlainErrorBecomesInternal(t *testing.T) {
	client, _ := startPair(t, func(_ context.Context, _ string, _ json.RawMessage) (any, error) {
		return nil, errors.New("boom")
	}, nil)

	err := client.Call(context.Background(), "anything", nil, nil)
	rpcErr := &jsonrpc.Error{}
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, jsonrpc.CodeInternalError, rpcErr.Code)
	assert.Equal(t, "boom", rpcErr.Message)
}

func TestConn_Notify(t *testing.T) {
	got := make(chan string, 1)
	client, _ := startPair(t, func(_ context.Context, method string, _ json.RawMessage) (any, error) {
		got <- method
		return nil, nil
	}, nil)

	require.NoError(t, client.Notify(context.Background(), "heads-up", nil))

	select {
	case method := <-got:
		assert.Equal(t, "heads-up", method)
	case <-time.After(time.Second):
		t.Fatal("notification never dispatched")
	}
}

func TestConn_NilHandlerRejectsRequests(t *testing.T) {
	client, _ := startPair(t, nil, nil)

	err := client.Call(context.Background(), "anything", nil, nil)
	rpcErr := &jsonrpc.Error{}
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, jsonrpc.CodeMethodNotFound, rpcErr.Code)
}

func TestConn_UnparseableFrameKeepsSessionAlive(t *testing.T) {
	srvT, cliT := transport.Pipe()
	server := jsonrpc.NewConn(srvT, func(_ context.Context, _ string, _ json.RawMessage) (any, error) {
		return "pong", nil
	})
	go func() { _ = server.Run(context.Background()) }()
	t.Cleanup(func() { _ = server.Close() })

	ctx := context.Background()
	require.NoError(t, cliT.Send(ctx, []byte("this is not json")))

	// The parse error is answered at the protocol boundary...
	data, err := cliT.Receive(ctx)
	require.NoError(t, err)
	var msg jsonrpc.Message
	require.NoError(t, json.Unmarshal(data, &msg))
	require.NotNil(t, msg.Error)
	assert.Equal(t, jsonrpc.CodeParseError, msg.Error.Code)

	// ...and the connection still serves the next request.
	require.NoError(t, cliT.Send(ctx, []byte(`{"jsonrpc":"2.0","id":"1","method":"ping"}`)))
	data, err = cliT.Receive(ctx)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, json.RawMessage(`"pong"`), msg.Result)
}

func TestConn_CallAfterCloseFails(t *testing.T) {
	srvT, cliT := transport.Pipe()
	_ = srvT
	client := jsonrpc.NewConn(cliT, nil)

	done := make(chan struct{})
	go func() {
		_ = client.Run(context.Background())
		close(done)
	}()

	require.NoError(t, client.Close())
	<-done

	err := client.Call(context.Background(), "anything", nil, nil)
	assert.ErrorIs(t, err, jsonrpc.ErrClosed)
}
