// Package transport provides the duplex message-stream implementations a
// protocol session runs on: a generic reader/writer pair (server stdio,
// in-memory pipes), a child-process stdio transport, and the SSE
// push-channel/POST-side-channel pair for HTTP peers. All transports carry
// one complete JSON message per Send/Receive; framing is owned here.
package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"sync"
)

// ErrClosed is returned by Send and Receive once a transport is closed.
var ErrClosed = errors.New("transport: closed")

// Transport is a duplex message stream with independent read and write
// halves. Implementations must allow Send and Receive to proceed
// concurrently; Close unblocks a pending Receive.
type Transport interface {
	Send(ctx context.Context, msg []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// IO is a newline-framed transport over an arbitrary reader/writer pair.
// It backs the server side of stdio serving and the in-memory pipes used
// in tests.
type IO struct {
	reader *bufio.Reader
	writer io.Writer

	mu      sync.Mutex
	closers []io.Closer
	closed  bool
}

// NewIO builds a transport from a read half and a write half. Any of the
// halves implementing io.Closer is closed on Close.
func NewIO(r io.Reader, w io.Writer) *IO {
	t := &IO{reader: bufio.NewReader(r), writer: w}
	if c, ok := r.(io.Closer); ok {
		t.closers = append(t.closers, c)
	}
	if c, ok := w.(io.Closer); ok {
		t.closers = append(t.closers, c)
	}
	return t
}

// NewStdio returns an IO transport over the process's own stdin/stdout,
// the conventional server side of a stdio session.
func NewStdio() *IO {
	return NewIO(os.Stdin, os.Stdout)
}

// Send writes one newline-terminated message.
func (t *IO) Send(_ context.Context, msg []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if _, err := t.writer.Write(append(bytes.TrimRight(msg, "\n"), '\n')); err != nil {
		return err
	}
	return nil
}

// Receive blocks until the next newline-terminated message arrives or the
// read half fails. Closing the transport unblocks it with an error. Blank
// lines are skipped.
func (t *IO) Receive(_ context.Context) ([]byte, error) {
	for {
		line, err := t.reader.ReadBytes('\n')
		line = bytes.TrimRight(line, "\r\n")
		if len(line) > 0 {
			// A final unterminated frame before EOF is still delivered.
			return line, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// Close shuts both halves down. Safe to call more than once.
func (t *IO) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	var errs []error
	for _, c := range t.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Pipe returns two connected in-memory transports, one per peer. Useful for
// exercising a client and a server session in the same process.
func Pipe() (*IO, *IO) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	return NewIO(ar, aw), NewIO(br, bw)
}
