// File: api/errors.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Common error types shared by the scheduler and reactor layers.

package api

import "fmt"

// Sentinel errors used across the module.
var (
	// ErrNoReactor is returned by wait/sleep calls on an executor that has
	// no event loop attached.
	ErrNoReactor = fmt.Errorf("executor has no reactor")

	// ErrTaskLimit indicates the task arena reached MaxTasks.
	ErrTaskLimit = fmt.Errorf("task limit exceeded")

	// ErrEventLimit indicates an event index past the last PollEvents count.
	ErrEventLimit = fmt.Errorf("event index out of range")

	// ErrRuntimeClosed indicates use of a runtime after Cleanup.
	ErrRuntimeClosed = fmt.Errorf("runtime is closed")

	// ErrLoopClosed indicates use of an event loop after Close.
	ErrLoopClosed = fmt.Errorf("event loop is closed")

	// ErrGroupClosed indicates use of a task group after Cleanup.
	ErrGroupClosed = fmt.Errorf("task group is closed")

	// ErrGroupCancelled is returned by TaskGroup.Run when the group did not
	// complete all children.
	ErrGroupCancelled = fmt.Errorf("task group cancelled")

	// ErrCancelled is the result recorded for a hard-cancelled task.
	ErrCancelled = fmt.Errorf("task cancelled")

	// ErrSourceExists indicates a conflicting (ident, filter) registration
	// held by another task.
	ErrSourceExists = fmt.Errorf("event source already registered")

	// ErrNotSupported indicates a facility unavailable on this platform.
	ErrNotSupported = fmt.Errorf("operation not supported")
)

// ErrorCode classifies structured scheduler/reactor errors.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeScheduler
	ErrCodeReactor
	ErrCodeInvariant
	ErrCodeOS
)

// Error is a structured error with a code and optional context values.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if len(e.Context) == 0 {
		return msg
	}
	return fmt.Sprintf("%s (context: %+v)", msg, e.Context)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithContext attaches a context value to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithCause attaches an underlying error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}
