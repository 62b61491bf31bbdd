package bridge

import (
	"context"
	"log/slog"
	"sync"

	"murmur/internal/config"
	"murmur/internal/logging"
	"murmur/internal/protocol"
	"murmur/internal/services"
	"murmur/internal/worker"
)

// CommandStreamer is the worker handle contract the bridge depends on.
type CommandStreamer interface {
	Start(ctx context.Context) error
	Send(ctx context.Context, cmd protocol.Command) (<-chan worker.Event, error)
	Terminate()
}

// ProgressFunc receives republished progress events for the in-flight
// command.
type ProgressFunc func(protocol.ProgressEvent)

// State is the bridge's observable execution state. It is reset to idle on
// every command's completion so the next command may start.
type State struct {
	Busy     bool
	Progress float64
	LastErr  error
}

// Bridge is the stable façade translating domain operations into worker
// commands and response envelopes into typed results. A bridge services at
// most one command at a time; concurrent callers are rejected, not queued.
type Bridge struct {
	handle  CommandStreamer
	logger  *slog.Logger
	sampler *logging.ProgressSampler

	mu       sync.Mutex
	state    State
	observer ProgressFunc
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger attaches a logger for command lifecycle events.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logging.NewComponentLogger(logger, "bridge")
		}
	}
}

// WithHandle overrides the worker handle (used in tests and by the scheduler
// to share termination control).
func WithHandle(handle CommandStreamer) Option {
	return func(b *Bridge) {
		if handle != nil {
			b.handle = handle
		}
	}
}

// New constructs a bridge that launches the worker configured in cfg.
func New(cfg *config.Config, opts ...Option) *Bridge {
	b := &Bridge{
		logger:  logging.NewNop(),
		sampler: logging.NewProgressSampler(5),
	}
	if cfg != nil {
		b.handle = worker.NewHandle(cfg.Worker.Python, cfg.WorkerArgs())
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// OnProgress registers the observer for subsequent commands. Passing nil
// removes the current observer.
func (b *Bridge) OnProgress(fn ProgressFunc) {
	b.mu.Lock()
	b.observer = fn
	b.mu.Unlock()
}

// Snapshot returns the current bridge state.
func (b *Bridge) Snapshot() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Terminate shuts down the underlying worker process.
func (b *Bridge) Terminate() {
	if b.handle != nil {
		b.handle.Terminate()
	}
}

// ExecuteCommand sends one command through the worker handle and blocks
// until its terminal envelope. On success it returns the envelope's data
// payload (nil when the worker sent none). Failures are typed: PythonError
// for explicit worker failures, InvalidResponseError for protocol
// violations, worker.ErrProcessAlreadyRunning when a command is already in
// flight.
func (b *Bridge) ExecuteCommand(ctx context.Context, cmd protocol.Command) (map[string]any, error) {
	b.mu.Lock()
	if b.state.Busy {
		b.mu.Unlock()
		return nil, worker.ErrProcessAlreadyRunning
	}
	b.state.Busy = true
	b.state.Progress = 0
	b.mu.Unlock()

	data, err := b.execute(ctx, cmd)

	b.mu.Lock()
	b.state.Busy = false
	b.state.Progress = 0
	b.state.LastErr = err
	b.mu.Unlock()

	return data, err
}

func (b *Bridge) execute(ctx context.Context, cmd protocol.Command) (map[string]any, error) {
	ctx = services.WithCommand(ctx, cmd.Name)
	logger := logging.WithContext(ctx, b.logger)

	if err := b.handle.Start(ctx); err != nil {
		return nil, err
	}

	events, err := b.handle.Send(ctx, cmd)
	if err != nil {
		return nil, err
	}

	b.sampler.Reset()
	logger.Debug("command dispatched", logging.String(logging.FieldEventType, "command_start"))

	for event := range events {
		switch {
		case event.Progress != nil:
			b.publishProgress(*event.Progress)
			if b.sampler.ShouldLog(event.Progress.Progress*100, event.Progress.Status) {
				logger.Debug("command progress",
					logging.Float64("progress", event.Progress.Progress),
					logging.String("status", event.Progress.Status),
				)
			}
		case event.Response != nil:
			return b.resolve(logger, event.Response)
		case event.Err != nil:
			logger.Error("command stream failed",
				logging.Error(event.Err),
				logging.String(logging.FieldEventType, "command_failure"),
			)
			return nil, event.Err
		}
	}

	// The stream closed without a terminal event; treat as a protocol
	// violation.
	return nil, protocol.NewInvalidResponse("stream ended without terminal envelope", nil)
}

func (b *Bridge) resolve(logger *slog.Logger, envelope *protocol.ResponseEnvelope) (map[string]any, error) {
	if !envelope.Success {
		code := envelope.Code
		if code == "" {
			code = DefaultErrorCode
		}
		err := &PythonError{Message: envelope.Error, Code: code}
		logger.Warn("worker reported failure",
			logging.String("code", code),
			logging.String("message", envelope.Error),
			logging.String(logging.FieldEventType, "command_failure"),
		)
		return nil, err
	}
	logger.Debug("command completed", logging.String(logging.FieldEventType, "command_complete"))
	return envelope.Data, nil
}

func (b *Bridge) publishProgress(event protocol.ProgressEvent) {
	b.mu.Lock()
	b.state.Progress = event.Progress
	observer := b.observer
	b.mu.Unlock()
	if observer != nil {
		observer(event)
	}
}
