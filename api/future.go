// File: api/future.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Poll contract: the single interface between lowered async state machines
// and the executors that drive them.

package api

// Poll is the outcome of advancing a future one step.
// The zero value is Pending.
type Poll struct {
	// Done reports whether the future resolved.
	Done bool
	// Value carries the result when Done is true.
	Value any
}

// Pending returns a Poll indicating the future has not resolved yet.
func Pending() Poll {
	return Poll{}
}

// Ready returns a resolved Poll carrying v.
func Ready(v any) Poll {
	return Poll{Done: true, Value: v}
}

// Future is a possibly-incomplete computation advanced by repeated polling.
//
// A future must never be polled again after returning a Poll with Done set;
// the executors in this module enforce that by retiring completed tasks from
// rotation.
type Future interface {
	// Poll advances the future one step. A future that cannot make progress
	// returns Pending; before doing so it should arm a wakeup through cx,
	// and it must re-arm on every subsequent poll until the condition fires.
	Poll(cx Context) Poll
}

// PollFunc adapts a plain function to the Future interface.
type PollFunc func(cx Context) Poll

// Poll implements Future.
func (f PollFunc) Poll(cx Context) Poll {
	return f(cx)
}

// Context is the bridge a future's state machine uses to suspend itself on
// external conditions. It is only valid for the duration of one Poll call.
type Context interface {
	// TaskID returns the id of the task being polled.
	TaskID() int64

	// WaitReadable parks the current task until fd is readable.
	// Returns ErrNoReactor on an executor without an event loop.
	WaitReadable(fd int) error

	// WaitWritable parks the current task until fd is writable.
	// Returns ErrNoReactor on an executor without an event loop.
	WaitWritable(fd int) error

	// Sleep parks the current task for at least ms milliseconds.
	// Returns ErrNoReactor on an executor without an event loop.
	Sleep(ms int64) error
}
