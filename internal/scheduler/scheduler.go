package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"murmur/internal/batch"
	"murmur/internal/bridge"
	"murmur/internal/config"
	"murmur/internal/logging"
	"murmur/internal/protocol"
	"murmur/internal/semaphore"
	"murmur/internal/services"
	"murmur/internal/worker"
)

// ErrBatchActive indicates a batch run is already in progress on this
// scheduler.
var ErrBatchActive = errors.New("batch already running")

// Runner executes one transcription job against a worker process. Each
// scheduler slot gets its own runner so jobs never share a process.
type Runner interface {
	Transcribe(ctx context.Context, req bridge.TranscribeRequest) (*bridge.TranscribeResult, error)
	OnProgress(fn bridge.ProgressFunc)
	Terminate()
}

// RunnerFactory builds a fresh runner for a scheduler slot.
type RunnerFactory func() Runner

// ProgressFunc receives task-level progress updates during a batch run.
type ProgressFunc func(task *batch.Task)

// Scheduler drains pending tasks through a bounded pool of worker
// processes, admitting tasks in queue order.
type Scheduler struct {
	cfg       *config.Config
	store     *batch.Store
	logger    *slog.Logger
	newRunner RunnerFactory

	mu        sync.Mutex
	running   bool
	cancelled bool
	cancel    context.CancelFunc
	gate      chan struct{}
	active    map[string]Runner
	observer  ProgressFunc

	// Snapshot of the current run's tasks, updated on every notify so the
	// overall ratio can be read without touching task structs owned by
	// other goroutines.
	runTasks  []*batch.Task
	snapshots map[string]*batch.Task
}

// Option customizes scheduler construction.
type Option func(*Scheduler)

// WithLogger attaches a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRunnerFactory overrides how per-slot runners are built.
func WithRunnerFactory(factory RunnerFactory) Option {
	return func(s *Scheduler) {
		if factory != nil {
			s.newRunner = factory
		}
	}
}

// New builds a scheduler over the given task store.
func New(cfg *config.Config, store *batch.Store, opts ...Option) *Scheduler {
	s := &Scheduler{
		cfg:    cfg,
		store:  store,
		logger: logging.NewNop(),
		active: make(map[string]Runner),
	}
	gate := make(chan struct{})
	close(gate)
	s.gate = gate
	for _, opt := range opts {
		opt(s)
	}
	if s.newRunner == nil {
		s.newRunner = func() Runner {
			return bridge.New(cfg, bridge.WithLogger(s.logger))
		}
	}
	return s
}

// OnTaskProgress registers a callback invoked after each task state or
// progress change.
func (s *Scheduler) OnTaskProgress(fn ProgressFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observer = fn
}

// Progress returns the overall completion ratio of the current (or most
// recent) batch run, 0 when no run has started.
func (s *Scheduler) Progress() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return batch.AggregateProgress(s.runTasks)
}

// Running reports whether a batch run is in progress.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Paused reports whether admission of new tasks is currently suspended.
func (s *Scheduler) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused()
}

func (s *Scheduler) paused() bool {
	select {
	case <-s.gate:
		return false
	default:
		return true
	}
}

// Pause suspends admission of new tasks. Tasks already running continue to
// completion.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused() {
		return
	}
	s.gate = make(chan struct{})
	s.logger.Info("batch paused", logging.String(logging.FieldComponent, "scheduler"))
}

// Resume lifts a pause and lets admission continue.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.paused() {
		return
	}
	close(s.gate)
	s.logger.Info("batch resumed", logging.String(logging.FieldComponent, "scheduler"))
}

// CancelAll aborts the batch run: pending tasks are marked cancelled and
// running tasks have their worker processes terminated. Safe to call when no
// run is active, and idempotent.
func (s *Scheduler) CancelAll(ctx context.Context) error {
	s.mu.Lock()
	s.cancelled = true
	cancel := s.cancel
	runners := make([]Runner, 0, len(s.active))
	for _, runner := range s.active {
		runners = append(runners, runner)
	}
	// A paused run must still observe cancellation.
	if s.paused() {
		close(s.gate)
	}
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, runner := range runners {
		runner.Terminate()
	}

	pending, err := s.store.List(ctx, batch.StatusPending)
	if err != nil {
		return fmt.Errorf("list pending tasks: %w", err)
	}
	for _, task := range pending {
		task.SetCancelled()
		if err := s.store.Update(ctx, task); err != nil {
			return fmt.Errorf("cancel task %s: %w", task.ID, err)
		}
		s.notify(task)
	}
	s.logger.Info("batch cancelled",
		logging.String(logging.FieldComponent, "scheduler"),
		slog.Int("pending_cancelled", len(pending)),
		slog.Int("running_terminated", len(runners)))
	return nil
}

// CanStart reports whether a batch run may begin and how many tasks it would
// process.
func (s *Scheduler) CanStart(ctx context.Context) (int, error) {
	if s.Running() {
		return 0, ErrBatchActive
	}
	pending, err := s.store.List(ctx, batch.StatusPending)
	if err != nil {
		return 0, err
	}
	return len(pending), nil
}

// ProcessBatch runs every pending task to a terminal state and returns the
// final batch summary. Tasks are admitted in queue order, at most
// MaxConcurrent at a time. A task failure never stops the batch.
func (s *Scheduler) ProcessBatch(ctx context.Context) (batch.Summary, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return batch.Summary{}, ErrBatchActive
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancelled = false
	s.cancel = cancel
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		s.running = false
		s.cancel = nil
		s.mu.Unlock()
	}()

	tasks, err := s.store.List(runCtx, batch.StatusPending)
	if err != nil {
		return batch.Summary{}, fmt.Errorf("load pending tasks: %w", err)
	}
	if len(tasks) == 0 {
		return batch.Summary{}, nil
	}

	s.mu.Lock()
	s.runTasks = make([]*batch.Task, 0, len(tasks))
	s.snapshots = make(map[string]*batch.Task, len(tasks))
	for _, task := range tasks {
		snap := *task
		s.runTasks = append(s.runTasks, &snap)
		s.snapshots[task.ID] = &snap
	}
	s.mu.Unlock()

	limit := s.cfg.Batch.MaxConcurrent
	if limit < 1 {
		limit = 1
	}
	s.logger.Info("batch started",
		logging.String(logging.FieldComponent, "scheduler"),
		slog.Int("tasks", len(tasks)),
		slog.Int("max_concurrent", limit))

	slots := semaphore.New(limit)
	var group errgroup.Group

	for i, task := range tasks {
		if err := s.awaitAdmission(runCtx, slots); err != nil {
			s.cancelRemaining(context.WithoutCancel(ctx), tasks[i:])
			break
		}
		group.Go(func() error {
			defer slots.Release()
			s.runTask(runCtx, task)
			return nil
		})
	}
	_ = group.Wait()

	summary := s.runSummary()
	s.logger.Info("batch finished",
		logging.String(logging.FieldComponent, "scheduler"),
		slog.Int("completed", summary.Completed),
		slog.Int("failed", summary.Failed),
		slog.Int("cancelled", summary.Cancelled))
	return summary, nil
}

// awaitAdmission waits for a free slot and then for a resume if the run is
// paused. The slot is claimed first so a pause issued while the pool is full
// still holds the next task at the gate.
func (s *Scheduler) awaitAdmission(ctx context.Context, slots *semaphore.Semaphore) error {
	if err := slots.Acquire(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	gate := s.gate
	s.mu.Unlock()
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		slots.Release()
		return ctx.Err()
	}
}

// cancelRemaining marks every task not yet dispatched as cancelled when the
// run stops early.
func (s *Scheduler) cancelRemaining(ctx context.Context, remaining []*batch.Task) {
	for _, task := range remaining {
		if task.Status != batch.StatusPending {
			continue
		}
		task.SetCancelled()
		if err := s.store.Update(ctx, task); err != nil {
			s.logger.Warn("mark task cancelled", logging.Error(err))
			continue
		}
		s.notify(task)
	}
}

func (s *Scheduler) runTask(ctx context.Context, task *batch.Task) {
	runner := s.newRunner()
	s.mu.Lock()
	s.active[task.ID] = runner
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.active, task.ID)
		s.mu.Unlock()
		runner.Terminate()
	}()

	logger := s.logger.With(
		logging.String(logging.FieldComponent, "scheduler"),
		logging.String(logging.FieldTaskID, task.ID))

	// Terminal states must persist even after the run context is cancelled.
	storeCtx := context.WithoutCancel(ctx)

	// The task may have been cancelled or removed since the run started.
	if s.wasCancelled() {
		return
	}
	if current, err := s.store.GetByID(storeCtx, task.ID); err != nil || current.Status != batch.StatusPending {
		if err == nil {
			s.notify(current)
		}
		return
	}

	task.SetRunning()
	if err := s.store.Update(storeCtx, task); err != nil {
		logger.Warn("persist running state", logging.Error(err))
	}
	s.notify(task)
	logger.Info("task started", slog.String("input", task.InputFile))

	runner.OnProgress(func(event protocol.ProgressEvent) {
		task.Progress = event.Progress
		if err := s.store.Update(storeCtx, task); err != nil {
			logger.Warn("persist progress", logging.Error(err))
		}
		s.notify(task)
	})

	taskCtx := services.WithTaskID(ctx, task.ID)
	_, err := runner.Transcribe(taskCtx, bridge.TranscribeRequest{
		InputFile: task.InputFile,
		OutputDir: task.OutputDir,
		Model:     task.Options.Model,
		Formats:   task.Options.Formats,
		Language:  task.Options.Language,
	})
	switch {
	case err == nil:
		task.SetCompleted()
		logger.Info("task completed")
	case s.wasCancelled() || ctx.Err() != nil:
		task.SetFailed("cancelled while running", batch.CancelledCode)
		logger.Info("task cancelled mid-run")
	default:
		task.SetFailed(err.Error(), errorCode(err))
		attrs := []any{logging.Error(err), slog.String("code", task.ErrorCode)}
		if hint := services.Details(err).Hint; hint != "" {
			attrs = append(attrs, logging.String(logging.FieldErrorHint, hint))
		}
		logger.Error("task failed", attrs...)
	}
	if err := s.store.Update(storeCtx, task); err != nil {
		logger.Warn("persist terminal state", logging.Error(err))
	}
	s.notify(task)
}

func (s *Scheduler) wasCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

func (s *Scheduler) notify(task *batch.Task) {
	s.mu.Lock()
	if snap, ok := s.snapshots[task.ID]; ok {
		snap.Status = task.Status
		snap.Progress = task.Progress
	}
	observer := s.observer
	s.mu.Unlock()
	if observer != nil {
		observer(task)
	}
}

// runSummary counts the current run's tasks from the snapshot, so the result
// covers exactly the tasks this run owned rather than the whole store.
func (s *Scheduler) runSummary() batch.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return batch.Summarize(s.runTasks)
}

// errorCode maps a job error onto the code recorded with the failed task.
func errorCode(err error) string {
	var pyErr *bridge.PythonError
	if errors.As(err, &pyErr) {
		if pyErr.Code != "" {
			return pyErr.Code
		}
		return bridge.DefaultErrorCode
	}
	var invalid *protocol.InvalidResponseError
	if errors.As(err, &invalid) {
		return "INVALID_RESPONSE"
	}
	var terminated *worker.ProcessTerminatedError
	if errors.As(err, &terminated) {
		return "PROCESS_TERMINATED"
	}
	var launch *worker.LaunchFailedError
	if errors.As(err, &launch) {
		return "LAUNCH_FAILED"
	}
	if errors.Is(err, services.ErrValidation) {
		return "VALIDATION_ERROR"
	}
	return bridge.DefaultErrorCode
}
