package tool

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedTool is returned when no descriptor is registered under the
	// requested name.
	ErrUnsupportedTool = errors.New("unsupported tool")

	// ErrInvalidArguments is the sentinel wrapped by every *ValidationError.
	ErrInvalidArguments = errors.New("invalid arguments")

	// ErrExecutorFailure is the sentinel wrapped by every *ExecutorError.
	ErrExecutorFailure = errors.New("executor failure")
)

// Error codes used for categorisation in logs and exported payloads.
const (
	CodeUnsupported = "UNSUPPORTED_TOOL"
	CodeValidation  = "VALIDATION_ERROR"
	CodeExecution   = "EXECUTION_ERROR"
)

// ValidationError reports the first argument that failed validation.
type ValidationError struct {
	Tool     string `json:"tool"`
	Param    string `json:"param"`
	Expected string `json:"expected"`
	// Actual is the shape that was supplied, or "missing".
	Actual string `json:"actual"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Actual == "missing" {
		return fmt.Sprintf("tool error [%s] in %s: required parameter %q is missing", CodeValidation, e.Tool, e.Param)
	}
	return fmt.Sprintf("tool error [%s] in %s: parameter %q expected %s, got %s", CodeValidation, e.Tool, e.Param, e.Expected, e.Actual)
}

// Unwrap makes errors.Is(err, ErrInvalidArguments) hold.
func (e *ValidationError) Unwrap() error { return ErrInvalidArguments }

// ExecutorError wraps an error raised by a tool's executor.
type ExecutorError struct {
	Tool string `json:"tool"`
	Err  error  `json:"-"`
}

// Error implements the error interface.
func (e *ExecutorError) Error() string {
	return fmt.Sprintf("tool error [%s] in %s: %v", CodeExecution, e.Tool, e.Err)
}

// Unwrap exposes both the sentinel and the executor's own error.
func (e *ExecutorError) Unwrap() []error { return []error{ErrExecutorFailure, e.Err} }

func unsupported(name string) error {
	return fmt.Errorf("%w: %q [%s]", ErrUnsupportedTool, name, CodeUnsupported)
}
