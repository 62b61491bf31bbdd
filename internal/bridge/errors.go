package bridge

import "fmt"

// DefaultErrorCode is used when a failure envelope omits a machine-readable
// code.
const DefaultErrorCode = "EXECUTION_ERROR"

// PythonError reports a failure the worker explicitly signalled in its
// terminal envelope. The code is surfaced verbatim so callers can branch on
// stable strings.
type PythonError struct {
	Message string
	Code    string
}

func (e *PythonError) Error() string {
	return fmt.Sprintf("worker error [%s]: %s", e.Code, e.Message)
}
