// Package control
// Author: momentics <momentics@gmail.com>
//
// Metrics and debug introspection layer of the vais-async core.
//
// Provides:
//   - A thread-safe metrics registry the scheduler and reactor publish
//     counters into (tasks spawned/completed, polls, wakeups, outstanding
//     sources)
//   - A debug probe registry for on-demand state dumps
//
// The scheduler itself is single-threaded; only these observation surfaces
// are safe to read concurrently.
package control
