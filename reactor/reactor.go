// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Platform-neutral event loop over one-shot readiness and timer sources.

package reactor

import (
	"time"

	"github.com/momentics/vais-async/api"
)

// Filter identifies the kind of condition an event source waits for.
// The values match the kqueue-style constants of the Vais C runtime so
// event traces line up across implementations.
type Filter int32

const (
	FilterRead  Filter = -1
	FilterWrite Filter = -2
	FilterTimer Filter = -7
)

// String returns a short name for the filter.
func (f Filter) String() string {
	switch f {
	case FilterRead:
		return "read"
	case FilterWrite:
		return "write"
	case FilterTimer:
		return "timer"
	}
	return "invalid"
}

// MaxEvents is the size of the reusable event buffer. A readiness burst
// larger than this drains over multiple PollEvents calls; no event is lost,
// only deferred.
const MaxEvents = 64

// Event is one ready condition reported by PollEvents. Ident is a file
// descriptor for read/write filters and a caller-supplied timer id for
// timer filters.
type Event struct {
	Ident  int64
	Filter Filter
}

// source is one registration in the arena. task is a scheduler handle, not
// a pointer; the scheduler maps it back to its own task record.
type source struct {
	ident    int64
	filter   Filter
	task     int64
	deadline int64 // monotonic ms, timer sources only
	active   bool
}

// backend is the normalized OS multiplexer surface. Platform differences
// (edge- vs level-triggered defaults, completion-based I/O on Windows) stay
// behind this interface and never reach the scheduler.
type backend interface {
	addRead(fd int64) error
	addWrite(fd int64) error
	addTimer(id, delayMs int64) error
	removeFd(fd int64, f Filter) error
	removeTimer(id int64) error

	// wait blocks up to timeoutMs (<0 blocks indefinitely) and fills evs.
	wait(evs []Event, timeoutMs int64) (int, error)

	// wake interrupts a blocked wait. Safe to call from any goroutine.
	wake() error

	// wakeIdent is the sentinel ident wake events carry.
	wakeIdent() int64

	close() error
}

// EventLoop multiplexes fd readiness and timer expirations into wakeup
// decisions. All methods except Wake must be called from the goroutine
// driving the loop.
type EventLoop struct {
	be      backend
	sources []source
	events  [MaxEvents]Event
	nready  int
	closed  bool
}

// NewEventLoop creates an event loop on the platform backend.
func NewEventLoop() (*EventLoop, error) {
	be, err := newBackend()
	if err != nil {
		return nil, err
	}
	return &EventLoop{be: be}, nil
}

// RegisterRead arms a one-shot readiness watch for fd on behalf of task.
// Re-arming by the same task while the source is still pending is a no-op;
// a conflicting registration by another task fails with ErrSourceExists.
func (l *EventLoop) RegisterRead(fd int, task int64) error {
	return l.register(int64(fd), FilterRead, task, 0)
}

// RegisterWrite arms a one-shot writability watch for fd on behalf of task.
func (l *EventLoop) RegisterWrite(fd int, task int64) error {
	return l.register(int64(fd), FilterWrite, task, 0)
}

// RegisterTimer arms a one-shot timer keyed by the caller-supplied id.
func (l *EventLoop) RegisterTimer(id, delayMs, task int64) error {
	return l.register(id, FilterTimer, task, delayMs)
}

func (l *EventLoop) register(ident int64, f Filter, task, delayMs int64) error {
	if l.closed {
		return api.ErrLoopClosed
	}
	if i := l.find(ident, f); i >= 0 {
		if l.sources[i].task == task {
			return nil // already armed by this task
		}
		return api.ErrSourceExists
	}

	var err error
	switch f {
	case FilterRead:
		err = l.be.addRead(ident)
	case FilterWrite:
		err = l.be.addWrite(ident)
	case FilterTimer:
		err = l.be.addTimer(ident, delayMs)
	default:
		return api.NewError(api.ErrCodeInvariant, "invalid filter").
			WithContext("filter", int32(f))
	}
	if err != nil {
		return api.NewError(api.ErrCodeReactor, "register failed").
			WithContext("ident", ident).
			WithContext("filter", f.String()).
			WithCause(err)
	}

	s := source{ident: ident, filter: f, task: task, active: true}
	if f == FilterTimer {
		s.deadline = nowMS() + delayMs
	}
	for i := range l.sources {
		if !l.sources[i].active {
			l.sources[i] = s
			return nil
		}
	}
	l.sources = append(l.sources, s)
	return nil
}

// Deregister removes a pending registration, used on cancellation paths.
func (l *EventLoop) Deregister(ident int64, f Filter) error {
	if l.closed {
		return api.ErrLoopClosed
	}
	i := l.find(ident, f)
	if i < 0 {
		return nil
	}
	l.sources[i].active = false
	if f == FilterTimer {
		return l.be.removeTimer(ident)
	}
	return l.be.removeFd(ident, f)
}

// DeregisterTask removes every pending registration held by task.
func (l *EventLoop) DeregisterTask(task int64) {
	if l.closed {
		return
	}
	for i := range l.sources {
		if l.sources[i].active && l.sources[i].task == task {
			s := &l.sources[i]
			s.active = false
			if s.filter == FilterTimer {
				_ = l.be.removeTimer(s.ident)
			} else {
				_ = l.be.removeFd(s.ident, s.filter)
			}
		}
	}
}

// PollEvents blocks up to timeoutMs (<0 blocks until an event or Wake) for
// ready sources and returns how many landed in the event buffer. Waker
// events are consumed here and never reported.
func (l *EventLoop) PollEvents(timeoutMs int64) (int, error) {
	if l.closed {
		return 0, api.ErrLoopClosed
	}
	var raw [MaxEvents]Event
	n, err := l.be.wait(raw[:], timeoutMs)
	if err != nil {
		return 0, api.NewError(api.ErrCodeReactor, "poll failed").WithCause(err)
	}
	out := 0
	for i := 0; i < n; i++ {
		if raw[i].Ident == l.be.wakeIdent() && raw[i].Filter == FilterRead {
			continue // self-pipe token
		}
		l.events[out] = raw[i]
		out++
	}
	l.nready = out
	return out, nil
}

// Event returns the i-th event of the last PollEvents batch.
func (l *EventLoop) Event(i int) (Event, error) {
	if i < 0 || i >= l.nready {
		return Event{}, api.ErrEventLimit
	}
	return l.events[i], nil
}

// TaskFor maps a ready event back to its waiting task, consuming the
// one-shot source. The scan is linear in registered sources; acceptable
// under the bounded MaxEvents/MaxTasks regime.
func (l *EventLoop) TaskFor(ident int64, f Filter) (int64, bool) {
	i := l.find(ident, f)
	if i < 0 {
		return 0, false
	}
	s := &l.sources[i]
	s.active = false
	if f == FilterTimer {
		_ = l.be.removeTimer(ident)
	} else {
		_ = l.be.removeFd(ident, f)
	}
	return s.task, true
}

// Armed reports whether a registration for (ident, filter) is pending.
func (l *EventLoop) Armed(ident int64, f Filter) bool {
	return !l.closed && l.find(ident, f) >= 0
}

// SourceCount reports how many registrations are outstanding.
func (l *EventLoop) SourceCount() int {
	n := 0
	for i := range l.sources {
		if l.sources[i].active {
			n++
		}
	}
	return n
}

// NextTimerDue returns milliseconds until the nearest pending timer, 0 if
// one is already due, or -1 if no timer is pending.
func (l *EventLoop) NextTimerDue() int64 {
	due := int64(-1)
	now := nowMS()
	for i := range l.sources {
		s := &l.sources[i]
		if !s.active || s.filter != FilterTimer {
			continue
		}
		d := s.deadline - now
		if d < 0 {
			d = 0
		}
		if due < 0 || d < due {
			due = d
		}
	}
	return due
}

// Wake interrupts a blocked PollEvents promptly. This is the only method
// safe to call from outside the loop's owning goroutine.
func (l *EventLoop) Wake() error {
	if l.closed {
		return api.ErrLoopClosed
	}
	return l.be.wake()
}

// Close releases the multiplexer handle, the waker pipe and all sources.
// A second call fails with ErrLoopClosed.
func (l *EventLoop) Close() error {
	if l.closed {
		return api.ErrLoopClosed
	}
	l.closed = true
	l.sources = nil
	l.nready = 0
	return l.be.close()
}

func (l *EventLoop) find(ident int64, f Filter) int {
	for i := range l.sources {
		if l.sources[i].active && l.sources[i].ident == ident && l.sources[i].filter == f {
			return i
		}
	}
	return -1
}

var bootTime = time.Now()

// nowMS returns monotonic milliseconds since process start.
func nowMS() int64 {
	return time.Since(bootTime).Milliseconds()
}
