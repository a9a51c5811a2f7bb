package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hupe1980/mcpmesh/mcp"
)

// diagnostics buffers outbound log notifications until the handshake
// completes, then drains the buffer in original order and sends later
// entries immediately. Send failures are swallowed: diagnostics must never
// crash the host. A single lock covers both append and drain so ordering is
// preserved even when entries race the activation.
type diagnostics struct {
	mu     sync.Mutex
	active bool
	buf    []mcp.LoggingMessageParams
	send   func(mcp.LoggingMessageParams) error
}

func newDiagnostics(send func(mcp.LoggingMessageParams) error) *diagnostics {
	return &diagnostics{send: send}
}

// log forwards an entry, or buffers it while the handshake is pending.
func (d *diagnostics) log(p mcp.LoggingMessageParams) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.active {
		d.buf = append(d.buf, p)
		return
	}
	_ = d.send(p)
}

// activate marks the handshake complete and drains the buffer in order.
func (d *diagnostics) activate() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active {
		return
	}
	d.active = true
	for _, p := range d.buf {
		_ = d.send(p)
	}
	d.buf = nil
}

// NotifyHandler is a slog.Handler forwarding records to the session's peer
// as notifications/message, so host applications can route ordinary
// structured logging through the diagnostics bridge.
type NotifyHandler struct {
	session *Session
	name    string
	level   slog.Leveler
	attrs   []slog.Attr
}

// NewNotifyHandler builds a handler for the given session. The name is
// reported as the notification's logger field.
func NewNotifyHandler(session *Session, name string, level slog.Leveler) *NotifyHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &NotifyHandler{session: session, name: name, level: level}
}

// Enabled implements slog.Handler.
func (h *NotifyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle converts one record into a notification payload: the message under
// "error" for error records (plain "message" otherwise) with remaining
// attributes under "details".
func (h *NotifyHandler) Handle(_ context.Context, rec slog.Record) error {
	details := map[string]any{}
	for _, a := range h.attrs {
		details[a.Key] = a.Value.Any()
	}
	rec.Attrs(func(a slog.Attr) bool {
		details[a.Key] = a.Value.Any()
		return true
	})

	data := map[string]any{}
	if rec.Level >= slog.LevelError {
		data["error"] = rec.Message
	} else {
		data["message"] = rec.Message
	}
	if len(details) > 0 {
		data["details"] = details
	}

	h.session.Log(levelFromSlog(rec.Level), h.name, data)
	return nil
}

// WithAttrs implements slog.Handler.
func (h *NotifyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := *h
	nh.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &nh
}

// WithGroup implements slog.Handler. Groups are flattened; the group name
// is dropped.
func (h *NotifyHandler) WithGroup(string) slog.Handler { return h }

func levelFromSlog(level slog.Level) mcp.LoggingLevel {
	switch {
	case level >= slog.LevelError:
		return mcp.LevelError
	case level >= slog.LevelWarn:
		return mcp.LevelWarning
	case level >= slog.LevelInfo:
		return mcp.LevelInfo
	default:
		return mcp.LevelDebug
	}
}
