// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the readiness event loop of the vais-async core:
// a platform-neutral EventLoop multiplexing fd readiness and one-shot timer
// events over epoll (Linux), kqueue (macOS) or IOCP (Windows), with a
// self-pipe waker for cross-thread interruption of a blocking poll.
//
// The loop tracks registrations as (ident, filter, task-id) sources in an
// arena slice; tasks are referenced by stable integer handles, never by
// pointer. All sources are one-shot: a fired source is consumed by TaskFor
// and must be re-registered by its task on the next poll.
package reactor
