package worker

import (
	"errors"
	"fmt"
)

// ErrProcessAlreadyRunning is returned when a command is sent while a prior
// command on the same handle has not yet produced its terminal envelope. This
// indicates a caller bug, not a transient condition.
var ErrProcessAlreadyRunning = errors.New("worker process already running a command")

// ErrNotStarted is returned when Send is called before Start.
var ErrNotStarted = errors.New("worker process not started")

// LaunchFailedError reports that the worker process could not be launched,
// typically because the executable is missing or not executable.
type LaunchFailedError struct {
	Command string
	Err     error
}

func (e *LaunchFailedError) Error() string {
	return fmt.Sprintf("launch worker %s: %v", e.Command, e.Err)
}

func (e *LaunchFailedError) Unwrap() error { return e.Err }

// ProcessTerminatedError reports that the worker process exited before a
// terminal envelope was read. Partial output is discarded.
type ProcessTerminatedError struct {
	ExitCode int
	Stderr   string
}

func (e *ProcessTerminatedError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("worker process terminated before responding (exit code %d): %s", e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("worker process terminated before responding (exit code %d)", e.ExitCode)
}
