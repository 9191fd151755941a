// Package sched
// Author: momentics <momentics@gmail.com>
//
// Single-threaded cooperative scheduler core of vais-async.
//
// Runtime drives futures round-robin over a FIFO ready queue with no I/O
// awareness; ReactorRuntime composes a Runtime with a reactor.EventLoop so
// tasks can suspend on fd readiness and timers; TaskGroup and ScopedTask add
// structured concurrency: bounded admission, fail-fast cancellation and
// guaranteed cleanup over a cohort of children.
//
// Exactly one future executes inside Poll at a time. Suspension happens only
// at the poll boundary; a future that neither completes nor parks itself
// keeps the scheduler busy-looping, which is a correctness requirement on
// futures, not something the core polices.
package sched
