// Package jsonrpc implements the JSON-RPC 2.0 substrate the protocol session
// layer is built on: given a message-oriented duplex transport it provides
// outbound calls with request/response correlation, fire-and-forget
// notifications and a dispatch loop routing inbound requests to a handler.
// Messages are processed strictly in transport delivery order.
package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Version is the fixed JSON-RPC protocol version marker.
const Version = "2.0"

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// ErrClosed is returned by Call and Notify after the connection shut down.
var ErrClosed = errors.New("jsonrpc: connection closed")

// Transport is the duplex message stream a Conn runs on. Send and Receive
// carry one complete JSON-RPC message per call; framing is the transport's
// concern.
type Transport interface {
	Send(ctx context.Context, msg []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// Message is the uniform JSON-RPC envelope for requests, responses and
// notifications. A request has Method and ID, a notification has Method
// only, a response has ID plus Result or Error.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC error object. It implements the error interface so
// callers can surface it directly.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Handler processes one inbound request or notification and returns the
// result value to serialize. Returning a *Error propagates it verbatim;
// any other error is reported as an internal error. Notifications discard
// both return values.
type Handler func(ctx context.Context, method string, params json.RawMessage) (any, error)

// Conn multiplexes calls, notifications and inbound dispatch over a single
// transport. Safe for concurrent use; inbound messages are dispatched
// sequentially from the read loop.
type Conn struct {
	transport Transport
	handler   Handler

	mu      sync.Mutex
	pending map[string]chan *Message
	closed  bool
	err     error
}

// NewConn wraps a transport. The handler may be nil for pure-client
// connections; inbound requests then receive a method-not-found error.
func NewConn(transport Transport, handler Handler) *Conn {
	return &Conn{
		transport: transport,
		handler:   handler,
		pending:   map[string]chan *Message{},
	}
}

// Call sends a request and blocks until the matching response, a transport
// failure or context cancellation. A non-nil result is unmarshaled from the
// response payload.
func (c *Conn) Call(ctx context.Context, method string, params, result any) error {
	id := uuid.NewString()
	rawID, err := json.Marshal(id)
	if err != nil {
		return err
	}

	ch := make(chan *Message, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return c.closeErr()
	}
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.send(ctx, &Message{JSONRPC: Version, ID: rawID, Method: method}, params); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case resp, ok := <-ch:
		if !ok {
			return c.closeErr()
		}
		if resp.Error != nil {
			return resp.Error
		}
		if result != nil && len(resp.Result) > 0 {
			return json.Unmarshal(resp.Result, result)
		}
		return nil
	}
}

// Notify sends a request without an id; no response is expected.
func (c *Conn) Notify(ctx context.Context, method string, params any) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return c.closeErr()
	}
	c.mu.Unlock()
	return c.send(ctx, &Message{JSONRPC: Version, Method: method}, params)
}

func (c *Conn) send(ctx context.Context, msg *Message, params any) error {
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal params for %q: %w", msg.Method, err)
		}
		msg.Params = raw
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.transport.Send(ctx, data)
}

// Run reads and dispatches messages until the transport fails or ctx is
// cancelled. It always shuts the connection down before returning, failing
// any in-flight calls.
func (c *Conn) Run(ctx context.Context) error {
	defer c.shutdown()
	for {
		data, err := c.transport.Receive(ctx)
		if err != nil {
			c.mu.Lock()
			c.err = err
			c.mu.Unlock()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			// Unparseable frame: report at the protocol boundary, keep
			// the session alive.
			c.respondError(ctx, nil, &Error{Code: CodeParseError, Message: err.Error()})
			continue
		}

		switch {
		case msg.Method != "":
			c.dispatch(ctx, &msg)
		case msg.ID != nil:
			c.settle(&msg)
		}
	}
}

// Close tears down the underlying transport; Run returns shortly after.
func (c *Conn) Close() error {
	return c.transport.Close()
}

func (c *Conn) dispatch(ctx context.Context, msg *Message) {
	isNotification := msg.ID == nil

	if c.handler == nil {
		if !isNotification {
			c.respondError(ctx, msg.ID, &Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("method %q not found", msg.Method)})
		}
		return
	}

	result, err := c.handler(ctx, msg.Method, msg.Params)
	if isNotification {
		return
	}
	if err != nil {
		rpcErr := &Error{}
		if !errors.As(err, &rpcErr) {
			rpcErr = &Error{Code: CodeInternalError, Message: err.Error()}
		}
		c.respondError(ctx, msg.ID, rpcErr)
		return
	}

	raw, err := json.Marshal(result)
	if err != nil {
		c.respondError(ctx, msg.ID, &Error{Code: CodeInternalError, Message: err.Error()})
		return
	}
	resp := &Message{JSONRPC: Version, ID: msg.ID, Result: raw}
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	_ = c.transport.Send(ctx, data)
}

func (c *Conn) respondError(ctx context.Context, id json.RawMessage, rpcErr *Error) {
	resp := &Message{JSONRPC: Version, ID: id, Error: rpcErr}
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	_ = c.transport.Send(ctx, data)
}

// settle routes a response to the goroutine waiting in Call.
func (c *Conn) settle(msg *Message) {
	var id string
	if err := json.Unmarshal(msg.ID, &id); err != nil {
		return
	}
	c.mu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if ok {
		ch <- msg
	}
}

// shutdown marks the connection closed and wakes every pending call.
func (c *Conn) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

func (c *Conn) closeErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return fmt.Errorf("%w: %w", ErrClosed, c.err)
	}
	return ErrClosed
}
