// File: sched/task.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Task records and scheduling states.

package sched

import "github.com/momentics/vais-async/api"

// Status is the scheduling state of a task.
//
// Pending, Ready and Running cycle as a task suspends and resumes;
// Completed and Cancelled are terminal.
type Status uint8

const (
	// StatusPending marks a task parked on an event source or held in a
	// group backlog.
	StatusPending Status = iota
	// StatusReady marks a task sitting in the ready queue.
	StatusReady
	// StatusRunning marks the task currently inside Poll (at most one),
	// or, at group level, a child admitted into the executor.
	StatusRunning
	// StatusCompleted marks a resolved task; its result is stored.
	StatusCompleted
	// StatusCancelled marks a task abandoned without resolving.
	StatusCancelled
)

// String returns a short name for the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusReady:
		return "ready"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	}
	return "invalid"
}

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// TaskNode is the scheduling record wrapping one future. Nodes live in the
// runtime's id-keyed arena; the ready queue holds ids, never pointers.
type TaskNode struct {
	id     int64
	fut    api.Future
	status Status
	result any

	// parked is set by the context when the task armed an event source
	// during the current poll; a parked task is not requeued.
	parked bool

	// timer is the id of the task's pending sleep registration, if any.
	timer int64
}

// ID returns the task id.
func (n *TaskNode) ID() int64 { return n.id }

// Status returns the task's scheduling state.
func (n *TaskNode) Status() Status { return n.status }
