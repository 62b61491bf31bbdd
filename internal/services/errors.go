package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrDependency    = errors.New("dependency missing")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// ErrorDetails carries the user-facing portions of a failure: the message to
// display and a recovery hint appropriate for the error class.
type ErrorDetails struct {
	Message string
	Hint    string
}

// Details extracts user-facing details from an error, attaching a recovery
// hint based on the sentinel marker the error was wrapped with.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	details := ErrorDetails{Message: strings.TrimSpace(err.Error())}
	switch {
	case errors.Is(err, ErrDependency):
		details.Hint = "install the missing dependency and run `murmur deps` to verify"
	case errors.Is(err, ErrConfiguration):
		details.Hint = "check the configuration file (murmur config show)"
	case errors.Is(err, ErrValidation):
		details.Hint = "correct the input and retry"
	case errors.Is(err, ErrNotFound):
		details.Hint = "verify the path exists and is readable"
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrTransient):
		details.Hint = "retry the task"
	case errors.Is(err, ErrExternalTool):
		details.Hint = "check the worker log output for details"
	}
	return details
}

// IsSetupError reports whether the error is an environment or configuration
// problem rather than a per-task data error.
func IsSetupError(err error) bool {
	return errors.Is(err, ErrDependency) || errors.Is(err, ErrConfiguration)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
