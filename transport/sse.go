package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/hupe1980/mcpmesh/logging"
)

// notEstablishedBody is the response body for submissions arriving before
// the endpoint announcement went out.
const notEstablishedBody = "SSE connection not established"

// SSEServerTransport is the server side of one SSE session: a push channel
// streaming events to the peer plus a side-channel accepting POSTed
// submissions. Each session is keyed by a generated id; the first pushed
// event announces the callback endpoint carrying that id. A transport is
// terminal once closed and never reused.
type SSEServerTransport struct {
	sessionID string
	endpoint  string

	w       http.ResponseWriter
	flusher http.Flusher

	inbound chan []byte
	done    chan struct{}

	mu      sync.Mutex
	started bool
	closed  bool
}

// NewSSEServerTransport wraps a streaming response. The endpoint is the URL
// path peers POST submissions to; the generated session id is appended as a
// query parameter in the announcement.
func NewSSEServerTransport(endpoint string, w http.ResponseWriter) (*SSEServerTransport, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("transport: response writer does not support streaming")
	}
	return &SSEServerTransport{
		sessionID: uuid.NewString(),
		endpoint:  endpoint,
		w:         w,
		flusher:   flusher,
		inbound:   make(chan []byte, 16),
		done:      make(chan struct{}),
	}, nil
}

// SessionID returns the generated session key.
func (t *SSEServerTransport) SessionID() string { return t.sessionID }

// Done is closed when the transport shuts down.
func (t *SSEServerTransport) Done() <-chan struct{} { return t.done }

// Start writes the stream headers and announces the callback endpoint as the
// first pushed event. Submissions are rejected until this has happened.
func (t *SSEServerTransport) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if t.started {
		return fmt.Errorf("transport: SSE session already started")
	}

	h := t.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")

	if _, err := fmt.Fprintf(t.w, "event: endpoint\ndata: %s?sessionId=%s\n\n", t.endpoint, t.sessionID); err != nil {
		return err
	}
	t.flusher.Flush()
	t.started = true
	return nil
}

// HandlePostMessage accepts one submission from the side channel: 202 on
// success, 400 with the error embedded on content-type or parse failure,
// 500 before the endpoint announcement.
func (t *SSEServerTransport) HandlePostMessage(w http.ResponseWriter, r *http.Request) {
	t.mu.Lock()
	started := t.started
	closed := t.closed
	t.mu.Unlock()

	if !started || closed {
		http.Error(w, notEstablishedBody, http.StatusInternalServerError)
		return
	}
	ct := r.Header.Get("Content-Type")
	if mediaType, _, err := mime.ParseMediaType(ct); err != nil || mediaType != "application/json" {
		http.Error(w, fmt.Sprintf("Invalid content type: %s", ct), http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, fmt.Sprintf("Error reading body: %v", err), http.StatusBadRequest)
		return
	}
	if !json.Valid(body) {
		http.Error(w, "Error parsing message: invalid JSON", http.StatusBadRequest)
		return
	}

	select {
	case t.inbound <- body:
		w.WriteHeader(http.StatusAccepted)
	case <-t.done:
		http.Error(w, notEstablishedBody, http.StatusInternalServerError)
	case <-r.Context().Done():
	}
}

// Send pushes one message event to the peer. Sends after close are silently
// dropped.
func (t *SSEServerTransport) Send(_ context.Context, msg []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	if !t.started {
		return fmt.Errorf("transport: SSE session not started")
	}
	if _, err := fmt.Fprintf(t.w, "event: message\ndata: %s\n\n", msg); err != nil {
		return err
	}
	t.flusher.Flush()
	return nil
}

// Receive delivers the next accepted submission.
func (t *SSEServerTransport) Receive(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-t.inbound:
		return msg, nil
	case <-t.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close is idempotent; it stops the push channel and unblocks Receive.
func (t *SSEServerTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.done)
	return nil
}

// SSEHandler multiplexes SSE sessions over HTTP: GET establishes a session
// stream, POST submits a message to an established session. Every new
// session is handed to the OnSession hook, which is expected to start
// serving it (typically by launching a protocol session) and return.
type SSEHandler struct {
	messageEndpoint string
	onSession       func(t *SSEServerTransport)
	logger          logging.Logger

	sessions sync.Map // session id -> *SSEServerTransport
}

// SSEHandlerOptions configures an SSEHandler.
type SSEHandlerOptions struct {
	// MessageEndpoint is the announced POST path. Defaults to "/message".
	MessageEndpoint string
	// Logger receives connection diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger
}

// NewSSEHandler builds a handler calling onSession for every new stream.
func NewSSEHandler(onSession func(t *SSEServerTransport), optFns ...func(o *SSEHandlerOptions)) *SSEHandler {
	opts := SSEHandlerOptions{
		MessageEndpoint: "/message",
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &SSEHandler{
		messageEndpoint: opts.MessageEndpoint,
		onSession:       onSession,
		logger:          opts.Logger,
	}
}

// ServeHTTP routes stream establishment (GET) and submissions (POST).
func (h *SSEHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.serveSSE(w, r)
	case http.MethodPost:
		h.handleMessage(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *SSEHandler) serveSSE(w http.ResponseWriter, r *http.Request) {
	t, err := NewSSEServerTransport(h.messageEndpoint, w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := t.Start(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.sessions.Store(t.SessionID(), t)
	defer h.sessions.Delete(t.SessionID())

	h.logger.Info("sse.session.open", "session_id", t.SessionID())
	if h.onSession != nil {
		h.onSession(t)
	}

	select {
	case <-t.Done():
	case <-r.Context().Done():
		_ = t.Close()
	}
	h.logger.Info("sse.session.close", "session_id", t.SessionID())
}

func (h *SSEHandler) handleMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	v, ok := h.sessions.Load(sessionID)
	if !ok {
		http.Error(w, notEstablishedBody, http.StatusInternalServerError)
		return
	}
	v.(*SSEServerTransport).HandlePostMessage(w, r)
}
