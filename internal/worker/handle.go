package worker

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"log/slog"
	"os/exec"
	"sync"

	"murmur/internal/logging"
	"murmur/internal/protocol"
)

var commandContext = exec.CommandContext

// Event is one element of a command's response stream: a progress update, the
// terminal response envelope, or a stream failure. Exactly one of the fields
// is set; an Event with Response or Err set is always the last on the stream.
type Event struct {
	Progress *protocol.ProgressEvent
	Response *protocol.ResponseEnvelope
	Err      error
}

// Handle owns one external worker process and mediates one command/response
// exchange at a time. A handle is not a pool: callers needing parallelism run
// one handle per concurrent slot.
type Handle struct {
	python string
	args   []string
	logger *slog.Logger

	mu         sync.Mutex
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	stdout     *bufio.Scanner
	stderr     *boundedBuffer
	inFlight   bool
	terminated bool
	waitOnce   *sync.Once
	waitErr    error
}

// Option configures a Handle.
type Option func(*Handle)

// WithLogger attaches a logger for process lifecycle events.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handle) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHandle constructs a handle that launches python with the given
// arguments (worker script plus any extra flags).
func NewHandle(python string, args []string, opts ...Option) *Handle {
	h := &Handle{
		python: python,
		args:   append([]string(nil), args...),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Start launches the worker process. A handle whose process has exited or
// been terminated is relaunched, so the same handle services commands across
// worker restarts. It fails with LaunchFailedError when the configured
// executable is missing or not executable.
func (h *Handle) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cmd != nil && !h.terminated {
		return nil
	}
	if h.inFlight {
		// The prior exchange still owns the stream; its reader finishes first.
		return ErrProcessAlreadyRunning
	}

	cmd := commandContext(ctx, h.python, h.args...) //nolint:gosec
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &LaunchFailedError{Command: h.python, Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &LaunchFailedError{Command: h.python, Err: err}
	}
	stderr := newBoundedBuffer(4096)
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return &LaunchFailedError{Command: h.python, Err: err}
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	h.cmd = cmd
	h.stdin = stdin
	h.stdout = scanner
	h.stderr = stderr
	h.terminated = false
	h.waitOnce = new(sync.Once)

	h.logger.Debug("worker process started",
		logging.String(logging.FieldComponent, "worker"),
		logging.Int("pid", cmd.Process.Pid),
	)
	return nil
}

// Running reports whether the handle currently owns a live process.
func (h *Handle) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cmd != nil && !h.terminated
}

// Send writes the encoded command to the worker and returns a stream of
// decoded events. The stream yields zero or more progress events and ends
// with exactly one terminal event (response envelope or error). It fails
// immediately with ErrProcessAlreadyRunning while a prior exchange is open,
// and with ErrNotStarted before Start.
func (h *Handle) Send(ctx context.Context, cmd protocol.Command) (<-chan Event, error) {
	encoded, err := protocol.EncodeCommand(cmd)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	if h.cmd == nil || h.terminated {
		h.mu.Unlock()
		return nil, ErrNotStarted
	}
	if h.inFlight {
		h.mu.Unlock()
		return nil, ErrProcessAlreadyRunning
	}
	h.inFlight = true
	stdin := h.stdin
	scanner := h.stdout
	h.mu.Unlock()

	if _, err := stdin.Write(encoded); err != nil {
		h.clearInFlight()
		// The pipe is dead; reap the process so the next Start relaunches.
		h.Terminate()
		return nil, h.terminatedError()
	}

	events := make(chan Event, 16)
	watchDone := make(chan struct{})

	// Cancellation is cooperative: killing the process unblocks the scanner,
	// and the reader reports the context error as the terminal event.
	go func() {
		select {
		case <-ctx.Done():
			h.Terminate()
		case <-watchDone:
		}
	}()

	go h.readStream(ctx, scanner, events, watchDone)
	return events, nil
}

func (h *Handle) readStream(ctx context.Context, scanner *bufio.Scanner, events chan<- Event, watchDone chan<- struct{}) {
	defer close(events)
	defer close(watchDone)
	defer h.clearInFlight()

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		msg, err := protocol.DecodeLine(line)
		if err != nil {
			// The protocol is out of sync; the process cannot be trusted for
			// further exchanges.
			h.Terminate()
			events <- Event{Err: err}
			return
		}
		switch m := msg.(type) {
		case *protocol.ProgressEvent:
			events <- Event{Progress: m}
		case *protocol.ResponseEnvelope:
			events <- Event{Response: m}
			return
		}
	}

	// Stream ended without a terminal envelope: the process exited or was
	// terminated. Reap it so a later Start relaunches, and prefer the context
	// error when the caller cancelled.
	h.Terminate()
	if ctx.Err() != nil {
		events <- Event{Err: ctx.Err()}
		return
	}
	events <- Event{Err: h.terminatedError()}
}

// Terminate requests process shutdown. It is idempotent and safe to call
// concurrently with a live Send; the open stream will end with a
// ProcessTerminatedError.
func (h *Handle) Terminate() {
	h.mu.Lock()
	cmd := h.cmd
	stdin := h.stdin
	once := h.waitOnce
	alreadyTerminated := h.terminated
	h.terminated = cmd != nil
	h.mu.Unlock()

	if cmd == nil || alreadyTerminated {
		return
	}
	if stdin != nil {
		_ = stdin.Close()
	}
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	h.wait(cmd, once)

	h.logger.Debug("worker process terminated",
		logging.String(logging.FieldComponent, "worker"),
	)
}

func (h *Handle) clearInFlight() {
	h.mu.Lock()
	h.inFlight = false
	h.mu.Unlock()
}

// wait reaps the process at most once. The once travels with the cmd it
// guards so a relaunched handle never waits on the wrong process.
func (h *Handle) wait(cmd *exec.Cmd, once *sync.Once) {
	once.Do(func() {
		h.waitErr = cmd.Wait()
	})
}

func (h *Handle) terminatedError() error {
	h.mu.Lock()
	cmd := h.cmd
	stderr := h.stderr
	once := h.waitOnce
	h.mu.Unlock()

	exitCode := -1
	if cmd != nil {
		h.wait(cmd, once)
		if cmd.ProcessState != nil {
			exitCode = cmd.ProcessState.ExitCode()
		}
	}
	detail := ""
	if stderr != nil {
		detail = stderr.String()
	}
	return &ProcessTerminatedError{ExitCode: exitCode, Stderr: detail}
}

// boundedBuffer retains the tail of writes up to a fixed size, for
// diagnostics when the process dies unexpectedly.
type boundedBuffer struct {
	mu    sync.Mutex
	limit int
	data  []byte
}

func newBoundedBuffer(limit int) *boundedBuffer {
	return &boundedBuffer{limit: limit}
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append(b.data, p...)
	if len(b.data) > b.limit {
		b.data = b.data[len(b.data)-b.limit:]
	}
	return len(p), nil
}

func (b *boundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(bytes.TrimSpace(b.data))
}
