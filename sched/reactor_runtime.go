// File: sched/reactor_runtime.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Runtime composed with an event loop: tasks suspend on fd readiness and
// timers instead of busy-requeueing.

package sched

import (
	"github.com/momentics/vais-async/api"
	"github.com/momentics/vais-async/control"
	"github.com/momentics/vais-async/reactor"
)

// ReactorRuntime extends Runtime's loop with readiness multiplexing: when
// the ready queue empties while the event loop still tracks sources, the
// scheduler blocks in PollEvents (bounded by the nearest pending timer)
// instead of terminating, and re-enqueues tasks as their events fire.
type ReactorRuntime struct {
	rt   *Runtime
	loop *reactor.EventLoop

	// timer ids are independent of task ids
	timerSeq int64
}

// NewReactorRuntime creates a runtime bound to a fresh event loop.
func NewReactorRuntime() (*ReactorRuntime, error) {
	loop, err := reactor.NewEventLoop()
	if err != nil {
		return nil, err
	}
	rt := NewRuntime()
	// a task leaving rotation drops its undelivered registrations, keeping
	// the empty-queue/empty-source termination condition reachable
	rt.onTerminal = loop.DeregisterTask
	return &ReactorRuntime{rt: rt, loop: loop}, nil
}

// Runtime exposes the underlying plain runtime.
func (rr *ReactorRuntime) Runtime() *Runtime { return rr.rt }

// Loop exposes the event loop. Only its Wake method is safe to call from
// outside the scheduling goroutine.
func (rr *ReactorRuntime) Loop() *reactor.EventLoop { return rr.loop }

// Spawn wraps f in a task and enqueues it.
func (rr *ReactorRuntime) Spawn(f api.Future) (*JoinHandle, error) {
	return rr.rt.Spawn(f)
}

// SpawnFunc is Spawn for a bare poll function.
func (rr *ReactorRuntime) SpawnFunc(fn api.PollFunc) (*JoinHandle, error) {
	return rr.rt.Spawn(fn)
}

// SpawnFuture implements api.Executor.
func (rr *ReactorRuntime) SpawnFuture(f api.Future) (int64, error) {
	return rr.rt.SpawnFuture(f)
}

// CancelTask implements api.Executor. Event sources the task still holds are
// released through the runtime's terminal hook.
func (rr *ReactorRuntime) CancelTask(id int64) {
	rr.rt.CancelTask(id)
}

// TaskResult implements api.Executor.
func (rr *ReactorRuntime) TaskResult(id int64) (any, bool) {
	return rr.rt.TaskResult(id)
}

// Run drives the scheduler until the ready queue and the source list are
// both empty.
func (rr *ReactorRuntime) Run() error {
	return rr.RunUntil(func() bool { return false })
}

// RunUntil implements api.Executor: it alternates ready-queue draining with
// reactor waits until done reports true or no work remains.
func (rr *ReactorRuntime) RunUntil(done func() bool) error {
	cx := &reactorCtx{rr: rr}
	for {
		for !done() {
			if !rr.rt.step(cx) {
				break
			}
		}
		if done() {
			return nil
		}
		if rr.loop.SourceCount() == 0 {
			return nil
		}
		n, err := rr.loop.PollEvents(rr.loop.NextTimerDue())
		if err != nil {
			return err
		}
		// Woken tasks are appended in the order the OS reported them;
		// that order is not deterministic across runs.
		for i := 0; i < n; i++ {
			ev, evErr := rr.loop.Event(i)
			if evErr != nil {
				break
			}
			if task, ok := rr.loop.TaskFor(ev.Ident, ev.Filter); ok {
				rr.rt.wake(task)
			}
		}
	}
}

// BlockOn drives f to completion, advancing unrelated queued tasks and
// reactor events along the way, and returns its result.
func (rr *ReactorRuntime) BlockOn(f api.Future) (any, error) {
	h, err := rr.rt.Spawn(f)
	if err != nil {
		return nil, err
	}
	if err := rr.RunUntil(h.Done); err != nil {
		return nil, err
	}
	v, ok := h.Result()
	if !ok {
		return nil, api.NewError(api.ErrCodeScheduler, "block_on: future did not resolve")
	}
	return v, nil
}

// WaitReadable parks the current task until fd is readable. Valid only
// during a poll; the future must call it again on every subsequent poll
// until the readiness actually fires (one-shot sources).
func (rr *ReactorRuntime) WaitReadable(fd int) error {
	task := rr.rt.current
	if task == 0 {
		return api.NewError(api.ErrCodeInvariant, "wait_readable outside a poll")
	}
	if err := rr.loop.RegisterRead(fd, task); err != nil {
		return err
	}
	rr.rt.park()
	return nil
}

// WaitWritable parks the current task until fd is writable.
func (rr *ReactorRuntime) WaitWritable(fd int) error {
	task := rr.rt.current
	if task == 0 {
		return api.NewError(api.ErrCodeInvariant, "wait_writable outside a poll")
	}
	if err := rr.loop.RegisterWrite(fd, task); err != nil {
		return err
	}
	rr.rt.park()
	return nil
}

// SleepMS parks the current task for at least ms milliseconds. Repeat calls
// while the timer is still pending are no-ops, so a future may re-invoke it
// on every poll.
func (rr *ReactorRuntime) SleepMS(ms int64) error {
	task := rr.rt.current
	if task == 0 {
		return api.NewError(api.ErrCodeInvariant, "sleep outside a poll")
	}
	n := rr.rt.tasks[task]
	if n.timer != 0 && rr.loop.Armed(n.timer, reactor.FilterTimer) {
		rr.rt.park()
		return nil
	}
	rr.timerSeq++
	id := rr.timerSeq
	if err := rr.loop.RegisterTimer(id, ms, task); err != nil {
		return err
	}
	n.timer = id
	rr.rt.park()
	return nil
}

// Cleanup tears down the runtime and closes the event loop, each exactly
// once.
func (rr *ReactorRuntime) Cleanup() error {
	rtErr := rr.rt.Cleanup()
	loopErr := rr.loop.Close()
	if rtErr != nil {
		return rtErr
	}
	return loopErr
}

// SnapshotMetrics publishes scheduler and reactor counters into mr.
func (rr *ReactorRuntime) SnapshotMetrics(mr *control.MetricsRegistry) {
	rr.rt.SnapshotMetrics(mr)
	mr.Set("reactor.sources", rr.loop.SourceCount())
	mr.Set("reactor.next_timer_ms", rr.loop.NextTimerDue())
}

// reactorCtx is the poll context handed to futures under ReactorRuntime.
type reactorCtx struct {
	rr *ReactorRuntime
}

func (c *reactorCtx) TaskID() int64 { return c.rr.rt.current }

func (c *reactorCtx) WaitReadable(fd int) error { return c.rr.WaitReadable(fd) }

func (c *reactorCtx) WaitWritable(fd int) error { return c.rr.WaitWritable(fd) }

func (c *reactorCtx) Sleep(ms int64) error { return c.rr.SleepMS(ms) }
