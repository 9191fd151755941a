// File: sched/runtime.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Single-threaded FIFO/round-robin executor without I/O awareness.

package sched

import (
	"github.com/eapache/queue"

	"github.com/momentics/vais-async/api"
	"github.com/momentics/vais-async/control"
)

// MaxTasks bounds the task arena. The original runtime treats this as a
// soft guideline; here exceeding it is a typed scheduler error.
const MaxTasks = 1024

// Runtime is a single-threaded cooperative executor. Ready tasks are served
// FIFO: spawn order determines first-poll order, and a task that returns
// Pending without parking goes back to the tail, so no task starves but
// none gets a priority boost either.
//
// Runtime has no event loop: a future that can never resolve without
// reactor support busy-loops the scheduler forever.
type Runtime struct {
	tasks   map[int64]*TaskNode
	ready   *queue.Queue // task ids, FIFO
	nextID  int64
	current int64
	closed  bool

	// onTerminal, when set, observes every task reaching a terminal state.
	// ReactorRuntime hooks it to release the task's event sources so a task
	// completing with undelivered registrations cannot stall termination.
	onTerminal func(id int64)

	spawned   int64
	completed int64
	polls     int64
	wakeups   int64
}

// NewRuntime creates an empty runtime.
func NewRuntime() *Runtime {
	return &Runtime{
		tasks: make(map[int64]*TaskNode),
		ready: queue.New(),
	}
}

// Spawn wraps f in a task, appends it to the ready queue tail and returns a
// handle to its eventual result. O(1).
func (rt *Runtime) Spawn(f api.Future) (*JoinHandle, error) {
	id, err := rt.SpawnFuture(f)
	if err != nil {
		return nil, err
	}
	return &JoinHandle{id: id, rt: rt}, nil
}

// SpawnFunc is Spawn for a bare poll function.
func (rt *Runtime) SpawnFunc(fn api.PollFunc) (*JoinHandle, error) {
	return rt.Spawn(fn)
}

// SpawnFuture implements api.Executor.
func (rt *Runtime) SpawnFuture(f api.Future) (int64, error) {
	if rt.closed {
		return 0, api.ErrRuntimeClosed
	}
	if len(rt.tasks) >= MaxTasks {
		return 0, api.ErrTaskLimit
	}
	rt.nextID++
	id := rt.nextID
	rt.tasks[id] = &TaskNode{id: id, fut: f, status: StatusReady}
	rt.ready.Add(id)
	rt.spawned++
	return id, nil
}

// step polls the head of the ready queue once. Reports false when the queue
// holds no runnable task.
func (rt *Runtime) step(cx api.Context) bool {
	for rt.ready.Length() > 0 {
		id := rt.ready.Remove().(int64)
		n, ok := rt.tasks[id]
		if !ok || n.status != StatusReady {
			continue // cancelled or stale entry, skip lazily
		}
		n.status = StatusRunning
		n.parked = false
		rt.current = id
		res := n.fut.Poll(cx)
		rt.current = 0
		rt.polls++

		switch {
		case res.Done:
			n.status = StatusCompleted
			n.result = res.Value
			n.fut = nil // completed futures are never polled again
			rt.completed++
			if rt.onTerminal != nil {
				rt.onTerminal(id)
			}
		case n.parked:
			n.status = StatusPending
		default:
			n.status = StatusReady
			rt.ready.Add(id)
		}
		return true
	}
	return false
}

// Run drives the scheduler until the ready queue is empty.
func (rt *Runtime) Run() {
	cx := &baseCtx{rt: rt}
	for rt.step(cx) {
	}
}

// RunUntil implements api.Executor: it steps the scheduler until done
// reports true or the ready queue empties.
func (rt *Runtime) RunUntil(done func() bool) error {
	cx := &baseCtx{rt: rt}
	for !done() {
		if !rt.step(cx) {
			return nil
		}
	}
	return nil
}

// BlockOn drives f to completion synchronously and returns its result.
// Unrelated queued tasks are advanced as well: draining the whole queue
// buys the progress guarantee at the cost of strict isolation.
func (rt *Runtime) BlockOn(f api.Future) (any, error) {
	h, err := rt.Spawn(f)
	if err != nil {
		return nil, err
	}
	if err := rt.RunUntil(h.Done); err != nil {
		return nil, err
	}
	v, ok := h.Result()
	if !ok {
		return nil, api.NewError(api.ErrCodeScheduler, "block_on: future did not resolve")
	}
	return v, nil
}

// CancelTask implements api.Executor: a hard, non-cooperative cancel. The
// task is dropped from rotation and never polled again; no cleanup runs
// inside the abandoned future.
func (rt *Runtime) CancelTask(id int64) {
	n, ok := rt.tasks[id]
	if !ok || n.status.Terminal() {
		return
	}
	n.status = StatusCancelled
	n.result = api.ErrCancelled
	n.fut = nil
	if rt.onTerminal != nil {
		rt.onTerminal(id)
	}
}

// TaskResult implements api.Executor. ok is false until the task reaches a
// terminal state; unknown ids are safe and report false.
func (rt *Runtime) TaskResult(id int64) (any, bool) {
	n, ok := rt.tasks[id]
	if !ok || !n.status.Terminal() {
		return nil, false
	}
	return n.result, true
}

// TaskStatus reports the scheduling state of a task by id.
func (rt *Runtime) TaskStatus(id int64) (Status, bool) {
	n, ok := rt.tasks[id]
	if !ok {
		return 0, false
	}
	return n.status, true
}

// CurrentTask returns the id of the task being polled, 0 outside a poll.
func (rt *Runtime) CurrentTask() int64 { return rt.current }

// Pending reports how many tasks are in the arena, any state.
func (rt *Runtime) Pending() int { return len(rt.tasks) }

// wake moves a parked task back to the ready queue tail.
func (rt *Runtime) wake(id int64) {
	n, ok := rt.tasks[id]
	if !ok || n.status != StatusPending {
		return
	}
	n.status = StatusReady
	rt.ready.Add(id)
	rt.wakeups++
}

// park marks the current task as waiting on an external source.
func (rt *Runtime) park() {
	if n, ok := rt.tasks[rt.current]; ok {
		n.parked = true
	}
}

// Cleanup frees the task arena exactly once. Further use of the runtime
// fails with ErrRuntimeClosed.
func (rt *Runtime) Cleanup() error {
	if rt.closed {
		return api.ErrRuntimeClosed
	}
	rt.closed = true
	rt.tasks = nil
	rt.ready = queue.New()
	return nil
}

// SnapshotMetrics publishes scheduler counters into mr.
func (rt *Runtime) SnapshotMetrics(mr *control.MetricsRegistry) {
	mr.Set("sched.tasks", len(rt.tasks))
	mr.Set("sched.ready", rt.ready.Length())
	mr.Set("sched.spawned", rt.spawned)
	mr.Set("sched.completed", rt.completed)
	mr.Set("sched.polls", rt.polls)
	mr.Set("sched.wakeups", rt.wakeups)
}

// RegisterProbes wires debug probes for runtime introspection.
func (rt *Runtime) RegisterProbes(dp *control.DebugProbes) {
	dp.RegisterProbe("sched.queue_depth", func() any {
		return rt.ready.Length()
	})
	dp.RegisterProbe("sched.statuses", func() any {
		counts := make(map[string]int)
		for _, n := range rt.tasks {
			counts[n.status.String()]++
		}
		return counts
	})
}

// baseCtx is the poll context of a reactor-less runtime: wait and sleep
// calls have nothing to park on.
type baseCtx struct {
	rt *Runtime
}

func (c *baseCtx) TaskID() int64 { return c.rt.current }

func (c *baseCtx) WaitReadable(int) error { return api.ErrNoReactor }

func (c *baseCtx) WaitWritable(int) error { return api.ErrNoReactor }

func (c *baseCtx) Sleep(int64) error { return api.ErrNoReactor }
