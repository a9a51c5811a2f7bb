package transport

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
)

// Process is a transport over a child process's redirected stdio: the
// child's stdout is the read half, its stdin the write half. Stderr is
// redirected to the parent's stderr but never parsed. Teardown kills the
// child outright and waits for it to exit before releasing the pipes;
// graceful shutdown is the session layer's business, not the transport's.
type Process struct {
	command string
	args    []string
	env     map[string]string
	stderr  io.Writer

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader

	mu      sync.Mutex
	started bool
	closed  bool
}

// ProcessOptions configures a Process transport.
type ProcessOptions struct {
	// Env entries are appended verbatim to the inherited environment.
	Env map[string]string
	// Stderr receives the child's stderr. Defaults to os.Stderr.
	Stderr io.Writer
}

// NewProcess prepares a child-process transport. Command and arguments are
// passed through verbatim; the child is not spawned until Start.
func NewProcess(command string, args []string, optFns ...func(o *ProcessOptions)) *Process {
	opts := ProcessOptions{Stderr: os.Stderr}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Process{
		command: command,
		args:    args,
		env:     opts.Env,
		stderr:  opts.Stderr,
	}
}

// Start spawns the child with redirected stdio.
func (p *Process) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return fmt.Errorf("transport: process already started")
	}

	cmd := exec.CommandContext(ctx, p.command, p.args...)
	cmd.Env = os.Environ()
	for k, v := range p.env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Stderr = p.stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("transport: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("transport: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("transport: start %q: %w", p.command, err)
	}

	p.cmd = cmd
	p.stdin = stdin
	p.stdout = bufio.NewReader(stdout)
	p.started = true
	return nil
}

// Send writes one newline-terminated message to the child's stdin.
func (p *Process) Send(_ context.Context, msg []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started || p.closed {
		return ErrClosed
	}
	_, err := p.stdin.Write(append(bytes.TrimRight(msg, "\n"), '\n'))
	return err
}

// Receive blocks until the child emits the next line on stdout. Blank lines
// are skipped. Killing the child (Close) unblocks it with an error.
func (p *Process) Receive(_ context.Context) ([]byte, error) {
	p.mu.Lock()
	if !p.started || p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	r := p.stdout
	p.mu.Unlock()

	for {
		line, err := r.ReadBytes('\n')
		line = bytes.TrimRight(line, "\r\n")
		if len(line) > 0 {
			return line, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// Close forcibly terminates the child and waits for it to exit before
// releasing the handles. Safe to call more than once.
func (p *Process) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || !p.started {
		p.closed = true
		return nil
	}
	p.closed = true

	_ = p.stdin.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	_ = p.cmd.Wait()
	return nil
}
