// File: api/executor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Executor contract shared by the plain runtime and the reactor runtime.

package api

// Executor abstracts a single-threaded cooperative scheduler. TaskGroup is
// written against this surface so it drives a plain Runtime and a
// ReactorRuntime identically.
type Executor interface {
	// SpawnFuture wraps f in a task, enqueues it, and returns its id.
	SpawnFuture(f Future) (int64, error)

	// CancelTask removes a task from rotation without polling it again.
	CancelTask(id int64)

	// TaskResult reports the stored result of a task by id. ok is false if
	// the id is unknown or the task has not completed.
	TaskResult(id int64) (value any, ok bool)

	// RunUntil drives the scheduler until done reports true or no runnable
	// or waitable work remains. done is re-evaluated between poll steps.
	RunUntil(done func() bool) error
}
