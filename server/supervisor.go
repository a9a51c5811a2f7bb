package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/mcpmesh/logging"
)

// ErrStartTimeout is returned by Host.Start when the session run-loop never
// signals readiness within the configured bound.
var ErrStartTimeout = errors.New("server: session start timed out")

// Runnable is the run-loop a Host supervises. Serve must call ready before
// its first blocking wait and return when ctx is cancelled.
type Runnable interface {
	Serve(ctx context.Context, ready func()) error
}

// HostOptions configures a Host.
type HostOptions struct {
	// StartTimeout bounds the wait for the readiness signal. Default 5s.
	StartTimeout time.Duration
	// StopTimeout bounds the wait for run-loop exit on Stop. Default 5s.
	StopTimeout time.Duration
	// Logger receives supervisor diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Host runs a session on its own goroutine with deterministic,
// timeout-bounded start and stop. Start never leaves a half-started session
// behind; Stop bounds shutdown latency regardless of handler behavior,
// trading complete cleanup for caller liveness.
type Host struct {
	runnable     Runnable
	startTimeout time.Duration
	stopTimeout  time.Duration
	logger       logging.Logger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan error

	stopOnce sync.Once
}

// NewHost supervises the given run-loop.
func NewHost(runnable Runnable, optFns ...func(o *HostOptions)) *Host {
	opts := HostOptions{
		StartTimeout: 5 * time.Second,
		StopTimeout:  5 * time.Second,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Host{
		runnable:     runnable,
		startTimeout: opts.StartTimeout,
		stopTimeout:  opts.StopTimeout,
		logger:       opts.Logger,
	}
}

// Start launches the run-loop and blocks until it signals readiness. If the
// signal does not arrive within the start timeout the loop is torn down
// completely and ErrStartTimeout is returned.
func (h *Host) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return fmt.Errorf("server: host already started")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	h.cancel = cancel
	h.done = done
	h.started = true
	h.mu.Unlock()

	ready := make(chan struct{})
	var readyOnce sync.Once

	go func() {
		done <- h.runnable.Serve(runCtx, func() {
			readyOnce.Do(func() { close(ready) })
		})
	}()

	select {
	case <-ready:
		h.logger.Debug("host.started")
		return nil
	case err := <-done:
		// The run-loop is already gone; just release the slot.
		cancel()
		h.mu.Lock()
		h.started = false
		h.mu.Unlock()
		return fmt.Errorf("server: session exited before ready: %w", err)
	case <-time.After(h.startTimeout):
		h.teardown()
		return ErrStartTimeout
	case <-ctx.Done():
		h.teardown()
		return ctx.Err()
	}
}

// Stop signals cancellation and waits up to the stop timeout for the
// run-loop to exit. Only the first call has effect. A lapsed wait is
// recorded and resources are released anyway rather than hanging the caller.
func (h *Host) Stop() {
	h.stopOnce.Do(func() {
		h.mu.Lock()
		started := h.started
		h.mu.Unlock()
		if !started {
			return
		}

		h.cancel()
		select {
		case <-h.done:
			h.logger.Debug("host.stopped")
		case <-time.After(h.stopTimeout):
			h.logger.Warn("host.stop.timeout", "timeout", h.stopTimeout)
		}
	})
}

// teardown cancels the run-loop and waits briefly for it to unwind; used on
// failed starts so no half-started session survives.
func (h *Host) teardown() {
	h.cancel()
	select {
	case <-h.done:
	case <-time.After(h.stopTimeout):
		h.logger.Warn("host.teardown.timeout", "timeout", h.stopTimeout)
	}
	h.mu.Lock()
	h.started = false
	h.mu.Unlock()
}
