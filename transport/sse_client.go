package transport

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// SSEClient is the peer side of an SSE session: it consumes the push channel
// opened by a GET request and submits messages by POSTing to the endpoint
// announced as the stream's first event.
type SSEClient struct {
	baseURL    string
	httpClient *http.Client

	inbound chan []byte
	ready   chan struct{}
	done    chan struct{}

	mu      sync.Mutex
	postURL string
	body    io.Closer
	closed  bool
}

// SSEClientOptions configures an SSEClient.
type SSEClientOptions struct {
	// HTTPClient performs the stream GET and submission POSTs.
	// Defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// NewSSEClient prepares a client transport for the given stream URL. The
// connection is not opened until Start.
func NewSSEClient(streamURL string, optFns ...func(o *SSEClientOptions)) *SSEClient {
	opts := SSEClientOptions{HTTPClient: http.DefaultClient}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &SSEClient{
		baseURL:    streamURL,
		httpClient: opts.HTTPClient,
		inbound:    make(chan []byte, 16),
		ready:      make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start opens the event stream and blocks until the server announces the
// submission endpoint (or ctx expires).
func (c *SSEClient) Start(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("transport: open SSE stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return fmt.Errorf("transport: open SSE stream: unexpected status %d", resp.StatusCode)
	}

	c.mu.Lock()
	c.body = resp.Body
	c.mu.Unlock()

	go c.readLoop(resp.Body)

	select {
	case <-c.ready:
		return nil
	case <-c.done:
		return fmt.Errorf("transport: SSE stream closed before endpoint announcement")
	case <-ctx.Done():
		_ = c.Close()
		return ctx.Err()
	}
}

// readLoop parses the event stream: the first endpoint event resolves the
// POST target, message events feed Receive.
func (c *SSEClient) readLoop(body io.ReadCloser) {
	defer c.shutdown()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var event string
	var data bytes.Buffer
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			c.handleEvent(event, data.String())
			event = ""
			data.Reset()
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
}

func (c *SSEClient) handleEvent(event, data string) {
	switch event {
	case "endpoint":
		base, err := url.Parse(c.baseURL)
		if err != nil {
			return
		}
		ref, err := url.Parse(data)
		if err != nil {
			return
		}
		c.mu.Lock()
		if c.postURL == "" {
			c.postURL = base.ResolveReference(ref).String()
			close(c.ready)
		}
		c.mu.Unlock()
	case "message":
		select {
		case c.inbound <- []byte(data):
		case <-c.done:
		}
	}
}

// Send POSTs one message to the announced endpoint, expecting 202.
func (c *SSEClient) Send(ctx context.Context, msg []byte) error {
	c.mu.Lock()
	postURL := c.postURL
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if postURL == "" {
		return fmt.Errorf("transport: SSE endpoint not announced yet")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, postURL, bytes.NewReader(msg))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("transport: submit message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("transport: submit message: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// Receive delivers the next pushed message event.
func (c *SSEClient) Receive(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-c.inbound:
		return msg, nil
	case <-c.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close tears the stream down. Safe to call more than once.
func (c *SSEClient) Close() error {
	c.shutdown()
	return nil
}

func (c *SSEClient) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.body != nil {
		_ = c.body.Close()
	}
	close(c.done)
}
