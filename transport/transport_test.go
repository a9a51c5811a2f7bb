package transport

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIO_RoundTrip(t *testing.T) {
	a, b := Pipe()
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})

	ctx := context.Background()

	// Pipe is synchronous; Send blocks until the peer reads.
	go func() { _ = a.Send(ctx, []byte(`{"jsonrpc":"2.0"}`)) }()
	data, err := b.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"jsonrpc":"2.0"}`, string(data))

	// And the other direction.
	go func() { _ = b.Send(ctx, []byte("pong")) }()
	data, err = a.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(data))
}

func TestIO_SkipsBlankLines(t *testing.T) {
	a, b := Pipe()
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})

	ctx := context.Background()
	go func() {
		_ = a.Send(ctx, []byte(""))
		_ = a.Send(ctx, []byte("frame"))
	}()

	data, err := b.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "frame", string(data))
}

func TestIO_ReceiveAfterClose(t *testing.T) {
	a, b := Pipe()
	require.NoError(t, a.Close())

	_, err := b.Receive(context.Background())
	require.Error(t, err)

	err = a.Send(context.Background(), []byte("late"))
	require.Error(t, err)
}

func TestIO_FinalUnterminatedFrame(t *testing.T) {
	pr, pw := io.Pipe()
	tr := NewIO(pr, io.Discard)
	t.Cleanup(func() { _ = tr.Close() })

	go func() {
		_, _ = pw.Write([]byte("last frame without newline"))
		_ = pw.Close()
	}()

	data, err := tr.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "last frame without newline", string(data))

	_, err = tr.Receive(context.Background())
	assert.Error(t, err)
}
