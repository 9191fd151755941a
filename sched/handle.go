// File: sched/handle.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Caller-facing reference to a spawned task's eventual result.

package sched

// JoinHandle refers to a spawned task by id. It never holds the task node
// itself, so querying after the runtime freed the node is safe and simply
// reports nothing.
type JoinHandle struct {
	id int64
	rt *Runtime
}

// ID returns the task id this handle refers to.
func (h *JoinHandle) ID() int64 { return h.id }

// Status reports the task's scheduling state. ok is false once the runtime
// no longer tracks the id.
func (h *JoinHandle) Status() (Status, bool) {
	return h.rt.TaskStatus(h.id)
}

// Done reports whether the task reached a terminal state.
func (h *JoinHandle) Done() bool {
	s, ok := h.rt.TaskStatus(h.id)
	return ok && s.Terminal()
}

// Result returns the stored result. ok is false until the task reaches a
// terminal state or after the runtime freed it.
func (h *JoinHandle) Result() (any, bool) {
	return h.rt.TaskResult(h.id)
}

// Err returns the task's result if it is an error: a cancelled task reports
// ErrCancelled, a completed one whatever error value it resolved with.
func (h *JoinHandle) Err() error {
	v, ok := h.rt.TaskResult(h.id)
	if !ok {
		return nil
	}
	if err, isErr := v.(error); isErr {
		return err
	}
	return nil
}
