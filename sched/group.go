// File: sched/group.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Structured concurrency: bounded fan-out over a cohort of child tasks with
// fail-fast cancellation.

package sched

import (
	"github.com/eapache/queue"

	"github.com/momentics/vais-async/api"
)

// GroupOptions configures a TaskGroup.
type GroupOptions struct {
	// MaxConcurrency caps how many children are admitted into the executor
	// at once; 0 means unbounded. Children over the cap wait in a FIFO
	// backlog and are admitted as running slots free.
	MaxConcurrency int

	// CancelOnError makes the first failed child cancel all siblings.
	// A child is failed when its result is a non-nil error value.
	CancelOnError bool
}

// groupEntry tracks one child in stable spawn order.
type groupEntry struct {
	fut    api.Future
	task   int64 // executor task id, 0 until admitted
	status Status
	result any
}

// TaskGroup tracks a cohort of children spawned into an executor, enforcing
// a concurrency cap and a cancellation policy. All methods must be called
// from the goroutine driving the executor.
type TaskGroup struct {
	ex   api.Executor
	opts GroupOptions

	entries   []*groupEntry
	backlog   *queue.Queue // child indices awaiting admission, FIFO
	completed int
	cancelled bool
	closed    bool
}

// NewTaskGroup creates a group over ex.
func NewTaskGroup(ex api.Executor, opts GroupOptions) *TaskGroup {
	return &TaskGroup{
		ex:      ex,
		opts:    opts,
		backlog: queue.New(),
	}
}

// Spawn adds a child and returns its spawn-order index. The child enters
// the executor immediately if a running slot is free, otherwise it waits in
// the backlog.
func (g *TaskGroup) Spawn(f api.Future) (int, error) {
	if g.closed {
		return 0, api.ErrGroupClosed
	}
	if g.cancelled {
		return 0, api.ErrGroupCancelled
	}
	idx := len(g.entries)
	g.entries = append(g.entries, &groupEntry{fut: f, status: StatusPending})
	if g.opts.MaxConcurrency == 0 || g.running() < g.opts.MaxConcurrency {
		if err := g.admit(idx); err != nil {
			g.entries = g.entries[:idx]
			return 0, err
		}
	} else {
		g.backlog.Add(idx)
	}
	return idx, nil
}

// SpawnFunc is Spawn for a bare poll function.
func (g *TaskGroup) SpawnFunc(fn api.PollFunc) (int, error) {
	return g.Spawn(fn)
}

// Run drives the executor until every child completed or the group was
// cancelled. It returns nil on full success and ErrGroupCancelled otherwise
// (including children left unresolvable when the executor ran out of work).
func (g *TaskGroup) Run() error {
	if g.closed {
		return api.ErrGroupClosed
	}
	err := g.ex.RunUntil(func() bool {
		g.reap()
		return g.cancelled || g.completed == len(g.entries)
	})
	if err != nil {
		return err
	}
	g.reap()
	if g.cancelled || g.completed != len(g.entries) {
		return api.ErrGroupCancelled
	}
	return nil
}

// Cancel marks the group cancelled and abandons every not-yet-completed
// child. This is a hard cancel: abandoned children are simply never polled
// again; no cleanup runs inside them.
func (g *TaskGroup) Cancel() {
	g.CancelRemaining()
}

// CancelRemaining abandons all children that have not completed yet,
// including the backlog.
func (g *TaskGroup) CancelRemaining() {
	if g.closed || g.cancelled {
		return
	}
	g.cancelled = true
	for _, e := range g.entries {
		switch e.status {
		case StatusRunning:
			g.ex.CancelTask(e.task)
			e.status = StatusCancelled
			e.result = api.ErrCancelled
		case StatusPending:
			e.status = StatusCancelled
			e.result = api.ErrCancelled
		}
	}
	for g.backlog.Length() > 0 {
		g.backlog.Remove()
	}
}

// reap folds executor completions into group state, applies the fail-fast
// policy and admits backlogged children into freed slots.
func (g *TaskGroup) reap() {
	for _, e := range g.entries {
		if e.status != StatusRunning {
			continue
		}
		v, ok := g.ex.TaskResult(e.task)
		if !ok {
			continue
		}
		e.status = StatusCompleted
		e.result = v
		g.completed++
		if err, isErr := v.(error); isErr && err != nil && g.opts.CancelOnError {
			g.CancelRemaining()
			return
		}
		g.admitNext()
	}
}

// admit hands child idx to the executor.
func (g *TaskGroup) admit(idx int) error {
	e := g.entries[idx]
	id, err := g.ex.SpawnFuture(e.fut)
	if err != nil {
		return err
	}
	e.task = id
	e.fut = nil
	e.status = StatusRunning
	return nil
}

// admitNext admits backlogged children while running slots are free.
func (g *TaskGroup) admitNext() {
	for g.backlog.Length() > 0 {
		if g.opts.MaxConcurrency != 0 && g.running() >= g.opts.MaxConcurrency {
			return
		}
		idx := g.backlog.Remove().(int)
		e := g.entries[idx]
		if e.status != StatusPending {
			continue
		}
		if err := g.admit(idx); err != nil {
			e.status = StatusCompleted
			e.result = err
			g.completed++
			// a failed admission is a failed child, same fail-fast rules
			if g.opts.CancelOnError {
				g.CancelRemaining()
				return
			}
		}
	}
}

func (g *TaskGroup) running() int {
	n := 0
	for _, e := range g.entries {
		if e.status == StatusRunning {
			n++
		}
	}
	return n
}

// Total reports how many children were spawned.
func (g *TaskGroup) Total() int { return len(g.entries) }

// Completed reports how many children resolved (successfully or with an
// error result); cancelled children do not count.
func (g *TaskGroup) Completed() int { return g.completed }

// IsDone reports whether every child resolved; vacuously true for an empty
// group, agreeing with Run's nil verdict on one.
func (g *TaskGroup) IsDone() bool {
	return g.completed == len(g.entries)
}

// IsCancelled reports whether the group was cancelled.
func (g *TaskGroup) IsCancelled() bool { return g.cancelled }

// Result returns child i's stored result; ok is false while the child is
// still pending or running, or if i is out of range.
func (g *TaskGroup) Result(i int) (any, bool) {
	if i < 0 || i >= len(g.entries) {
		return nil, false
	}
	e := g.entries[i]
	if !e.status.Terminal() {
		return nil, false
	}
	return e.result, true
}

// HasError reports whether child i resolved to a non-nil error value or was
// cancelled.
func (g *TaskGroup) HasError(i int) bool {
	v, ok := g.Result(i)
	if !ok {
		return false
	}
	err, isErr := v.(error)
	return isErr && err != nil
}

// TaskStatus reports child i's group-level state in spawn order: Pending in
// the backlog, Running while admitted, then Completed or Cancelled.
func (g *TaskGroup) TaskStatus(i int) (Status, bool) {
	if i < 0 || i >= len(g.entries) {
		return 0, false
	}
	return g.entries[i].status, true
}

// Cleanup frees all child entries exactly once. Further use of the group
// fails with ErrGroupClosed.
func (g *TaskGroup) Cleanup() error {
	if g.closed {
		return api.ErrGroupClosed
	}
	g.closed = true
	g.entries = nil
	g.backlog = queue.New()
	return nil
}
