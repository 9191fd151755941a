// File: sched/scoped.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Scoped-resource discipline over a task group: run and cleanup are
// guaranteed to execute together on every exit path.

package sched

import "github.com/momentics/vais-async/api"

// ScopedTask wraps a TaskGroup so that its children are always either
// observed to completion or cancelled, and the group is always freed.
// Typical use:
//
//	st := sched.NewScopedTask(rt, sched.GroupOptions{CancelOnError: true})
//	defer st.Close()
//	st.Spawn(...)
//	if err := st.Run(); err != nil { ... }
type ScopedTask struct {
	g   *TaskGroup
	ran bool
}

// NewScopedTask creates a scoped group over ex.
func NewScopedTask(ex api.Executor, opts GroupOptions) *ScopedTask {
	return &ScopedTask{g: NewTaskGroup(ex, opts)}
}

// Group exposes the underlying group for accessors.
func (s *ScopedTask) Group() *TaskGroup { return s.g }

// Spawn adds a child, as TaskGroup.Spawn.
func (s *ScopedTask) Spawn(f api.Future) (int, error) {
	return s.g.Spawn(f)
}

// SpawnFunc is Spawn for a bare poll function.
func (s *ScopedTask) SpawnFunc(fn api.PollFunc) (int, error) {
	return s.g.SpawnFunc(fn)
}

// Run drives the group to completion or cancellation.
func (s *ScopedTask) Run() error {
	s.ran = true
	return s.g.Run()
}

// Close cancels any children left unobserved and frees the group. Safe in a
// defer alongside an early error return: if Run never executed, remaining
// children are cancelled rather than leaked.
func (s *ScopedTask) Close() error {
	if !s.ran {
		s.g.CancelRemaining()
	}
	return s.g.Cleanup()
}

// Scope runs fn with a fresh group and guarantees run-or-cancel plus
// cleanup on every exit path. If fn returns an error the group is cancelled
// and that error is returned; otherwise the group is driven to completion
// and Run's verdict is returned.
func Scope(ex api.Executor, opts GroupOptions, fn func(g *TaskGroup) error) (err error) {
	g := NewTaskGroup(ex, opts)
	defer func() {
		if cerr := g.Cleanup(); err == nil {
			err = cerr
		}
	}()
	if err = fn(g); err != nil {
		g.CancelRemaining()
		return err
	}
	return g.Run()
}
