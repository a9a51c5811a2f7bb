package transport

import (
	"context"
	"io"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcess_RoundTrip(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a line-echoing child")
	}

	// cat echoes stdin back on stdout line by line.
	p := NewProcess("cat", nil, func(o *ProcessOptions) {
		o.Stderr = io.Discard
	})

	ctx := context.Background()
	require.NoError(t, p.Start(ctx))
	t.Cleanup(func() { _ = p.Close() })

	require.NoError(t, p.Send(ctx, []byte(`{"jsonrpc":"2.0","method":"ping"}`)))
	data, err := p.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"jsonrpc":"2.0","method":"ping"}`, string(data))
}

func TestProcess_SendBeforeStart(t *testing.T) {
	p := NewProcess("cat", nil)

	err := p.Send(context.Background(), []byte("early"))
	assert.ErrorIs(t, err, ErrClosed)
	_, err = p.Receive(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestProcess_CloseUnblocksReceive(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a line-echoing child")
	}

	p := NewProcess("cat", nil)
	require.NoError(t, p.Start(context.Background()))

	done := make(chan error, 1)
	go func() {
		_, err := p.Receive(context.Background())
		done <- err
	}()

	require.NoError(t, p.Close())
	assert.Error(t, <-done)

	// Close is idempotent.
	require.NoError(t, p.Close())
}

func TestProcess_StartMissingBinary(t *testing.T) {
	p := NewProcess("definitely-not-a-real-binary-mcpmesh", nil)
	assert.Error(t, p.Start(context.Background()))
}

func TestProcess_DoubleStart(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a line-echoing child")
	}

	p := NewProcess("cat", nil)
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(func() { _ = p.Close() })

	assert.Error(t, p.Start(context.Background()))
}
