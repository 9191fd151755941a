//go:build windows
// +build windows

// File: reactor/reactor_windows.go
// Author: momentics <momentics@gmail.com>
//
// Windows IOCP backend. Readiness is normalized onto completion packets:
// handles are associated with the port keyed by fd, timers post a packet on
// expiry, and Wake posts a sentinel-key packet. Wait performs one blocking
// dequeue then drains with a zero timeout.

package reactor

import (
	"fmt"
	"time"

	"golang.org/x/sys/windows"
)

// sentinel completion key and event ident for waker packets
const (
	wakeKey   = ^uintptr(0)
	wakeToken = int64(-1)
)

type iocpBackend struct {
	port      windows.Handle
	fdFilters map[int64]Filter
	timers    map[int64]*time.Timer
}

// newBackend constructs the IOCP backend.
func newBackend() (backend, error) {
	port, err := windows.CreateIoCompletionPort(windows.InvalidHandle, 0, 0, 1)
	if err != nil {
		return nil, fmt.Errorf("create iocp: %w", err)
	}
	return &iocpBackend{
		port:      port,
		fdFilters: make(map[int64]Filter),
		timers:    make(map[int64]*time.Timer),
	}, nil
}

func (b *iocpBackend) addRead(fd int64) error {
	return b.addFd(fd, FilterRead)
}

func (b *iocpBackend) addWrite(fd int64) error {
	return b.addFd(fd, FilterWrite)
}

func (b *iocpBackend) addFd(fd int64, f Filter) error {
	// Association fails if the handle is already bound to the port; that is
	// the normal case after the first registration.
	_, _ = windows.CreateIoCompletionPort(windows.Handle(fd), b.port, uintptr(fd), 0)
	b.fdFilters[fd] = f
	return nil
}

func (b *iocpBackend) addTimer(id, delayMs int64) error {
	if delayMs < 0 {
		delayMs = 0
	}
	port := b.port
	b.timers[id] = time.AfterFunc(time.Duration(delayMs)*time.Millisecond, func() {
		_ = windows.PostQueuedCompletionStatus(port, 0, uintptr(id), nil)
	})
	return nil
}

func (b *iocpBackend) removeFd(fd int64, _ Filter) error {
	delete(b.fdFilters, fd)
	return nil
}

func (b *iocpBackend) removeTimer(id int64) error {
	if t, ok := b.timers[id]; ok {
		t.Stop()
		delete(b.timers, id)
	}
	return nil
}

func (b *iocpBackend) wait(evs []Event, timeoutMs int64) (int, error) {
	max := len(evs)
	if max > MaxEvents {
		max = MaxEvents
	}
	first := uint32(windows.INFINITE)
	if timeoutMs >= 0 {
		first = uint32(timeoutMs)
	}

	count := 0
	for i := 0; i < max; i++ {
		var qty uint32
		var key uintptr
		var ov *windows.Overlapped
		timeout := first
		if i > 0 {
			timeout = 0 // drain whatever is already queued
		}
		err := windows.GetQueuedCompletionStatus(b.port, &qty, &key, &ov, timeout)
		if err != nil {
			if ov == nil {
				break // timeout
			}
			return count, fmt.Errorf("iocp dequeue: %w", err)
		}

		switch {
		case key == wakeKey:
			evs[count] = Event{Ident: wakeToken, Filter: FilterRead}
			count++
		default:
			ident := int64(key)
			if _, ok := b.timers[ident]; ok {
				evs[count] = Event{Ident: ident, Filter: FilterTimer}
				count++
			} else if f, ok := b.fdFilters[ident]; ok {
				evs[count] = Event{Ident: ident, Filter: f}
				count++
			}
			// unknown keys (cancelled timers in flight) are dropped
		}
	}
	return count, nil
}

func (b *iocpBackend) wake() error {
	return windows.PostQueuedCompletionStatus(b.port, 0, wakeKey, nil)
}

func (b *iocpBackend) wakeIdent() int64 {
	return wakeToken
}

func (b *iocpBackend) close() error {
	for id, t := range b.timers {
		t.Stop()
		delete(b.timers, id)
	}
	return windows.CloseHandle(b.port)
}
