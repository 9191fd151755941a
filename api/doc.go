// Package api
// Author: momentics <momentics@gmail.com>
//
// Contracts for the vais-async cooperative scheduling core.
//
// The package defines the poll contract consumed by every executor in this
// module (Future, Poll, PollFunc), the Context bridge a suspended future
// uses to arm readiness and timer wakeups, the Executor surface TaskGroup
// builds on, and the shared error taxonomy.
//
// Implementations live in the reactor and sched packages; api itself has no
// platform dependencies.
package api
