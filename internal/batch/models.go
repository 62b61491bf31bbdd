package batch

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle of a batch task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// CancelledCode is the error code recorded on tasks that were terminated by
// a batch-level cancel.
const CancelledCode = "CANCELLED"

var allStatuses = []Status{
	StatusPending,
	StatusRunning,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// ValidStatus reports whether the given string names a known status.
func ValidStatus(value string) bool {
	_, ok := statusSet[Status(strings.TrimSpace(strings.ToLower(value)))]
	return ok
}

// IsTerminal reports whether a task in this status will not run again
// without an explicit retry.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Options carries the processing options for one task.
type Options struct {
	Model    string
	Formats  []string
	Language string
}

// Task represents one unit of batch work: a single transcription job and its
// lifecycle state. Status, progress, error, and timestamps are mutated only
// by the scheduler once the task starts running.
type Task struct {
	ID          string
	InputFile   string
	OutputDir   string
	Options     Options
	Status      Status
	Progress    float64
	ErrorMsg    string
	ErrorCode   string
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// NewTask constructs a pending task with a fresh identifier.
func NewTask(inputFile, outputDir string, opts Options) *Task {
	return &Task{
		ID:        uuid.NewString(),
		InputFile: inputFile,
		OutputDir: outputDir,
		Options:   opts,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

// SetRunning transitions the task into the running state.
func (t *Task) SetRunning() {
	now := time.Now().UTC()
	t.Status = StatusRunning
	t.Progress = 0
	t.ErrorMsg = ""
	t.ErrorCode = ""
	t.StartedAt = &now
	t.CompletedAt = nil
}

// SetCompleted marks the task complete.
func (t *Task) SetCompleted() {
	now := time.Now().UTC()
	t.Status = StatusCompleted
	t.Progress = 1
	t.CompletedAt = &now
}

// SetFailed marks the task failed with the given message and code.
func (t *Task) SetFailed(message, code string) {
	now := time.Now().UTC()
	t.Status = StatusFailed
	t.ErrorMsg = strings.TrimSpace(message)
	t.ErrorCode = code
	t.CompletedAt = &now
}

// SetCancelled marks a task cancelled before it was admitted.
func (t *Task) SetCancelled() {
	now := time.Now().UTC()
	t.Status = StatusCancelled
	t.ErrorMsg = "cancelled before dispatch"
	t.ErrorCode = CancelledCode
	t.CompletedAt = &now
}

// ResetForRetry returns a failed or cancelled task to the pending state with
// progress and error cleared.
func (t *Task) ResetForRetry() {
	t.Status = StatusPending
	t.Progress = 0
	t.ErrorMsg = ""
	t.ErrorCode = ""
	t.StartedAt = nil
	t.CompletedAt = nil
}

// Summary aggregates task counts per lifecycle state.
type Summary struct {
	Total     int
	Pending   int
	Running   int
	Completed int
	Failed    int
	Cancelled int
}

// Summarize computes counts over a task collection.
func Summarize(tasks []*Task) Summary {
	summary := Summary{Total: len(tasks)}
	for _, task := range tasks {
		switch task.Status {
		case StatusPending:
			summary.Pending++
		case StatusRunning:
			summary.Running++
		case StatusCompleted:
			summary.Completed++
		case StatusFailed:
			summary.Failed++
		case StatusCancelled:
			summary.Cancelled++
		}
	}
	return summary
}

// AggregateProgress computes overall completion for a task collection:
// (completed count + in-flight progress fractions) / total. Cancelled and
// failed tasks count as consumed slots so the ratio stays monotone while a
// batch drains.
func AggregateProgress(tasks []*Task) float64 {
	if len(tasks) == 0 {
		return 0
	}
	var sum float64
	for _, task := range tasks {
		switch task.Status {
		case StatusCompleted, StatusFailed, StatusCancelled:
			sum++
		case StatusRunning:
			sum += task.Progress
		}
	}
	return sum / float64(len(tasks))
}
