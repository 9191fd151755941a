//go:build darwin
// +build darwin

// File: reactor/reactor_darwin.go
// Author: momentics <momentics@gmail.com>
//
// macOS kqueue(2) backend. EVFILT_TIMER carries the delay in milliseconds
// directly; fd and timer sources are armed EV_ONESHOT.

package reactor

import (
	"fmt"

	"golang.org/x/sys/unix"
)

type kqueueBackend struct {
	kq    int
	pipeR int
	pipeW int

	raw [MaxEvents]unix.Kevent_t
}

// newBackend constructs the kqueue backend with its self-pipe waker.
func newBackend() (backend, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, fmt.Errorf("kqueue: %w", err)
	}
	p := make([]int, 2)
	if err := unix.Pipe(p); err != nil {
		unix.Close(kq)
		return nil, fmt.Errorf("waker pipe: %w", err)
	}
	_ = unix.SetNonblock(p[0], true)
	_ = unix.SetNonblock(p[1], true)
	b := &kqueueBackend{kq: kq, pipeR: p[0], pipeW: p[1]}

	// persistent read watch on the waker pipe
	change := unix.Kevent_t{
		Ident:  uint64(b.pipeR),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_ADD,
	}
	if _, err := unix.Kevent(kq, []unix.Kevent_t{change}, nil, nil); err != nil {
		b.close()
		return nil, fmt.Errorf("waker register: %w", err)
	}
	return b, nil
}

func (b *kqueueBackend) addRead(fd int64) error {
	return b.change(uint64(fd), unix.EVFILT_READ, unix.EV_ADD|unix.EV_ONESHOT, 0)
}

func (b *kqueueBackend) addWrite(fd int64) error {
	return b.change(uint64(fd), unix.EVFILT_WRITE, unix.EV_ADD|unix.EV_ONESHOT, 0)
}

func (b *kqueueBackend) addTimer(id, delayMs int64) error {
	if delayMs < 1 {
		delayMs = 1
	}
	return b.change(uint64(id), unix.EVFILT_TIMER, unix.EV_ADD|unix.EV_ONESHOT, delayMs)
}

func (b *kqueueBackend) removeFd(fd int64, f Filter) error {
	filter := int16(unix.EVFILT_READ)
	if f == FilterWrite {
		filter = unix.EVFILT_WRITE
	}
	err := b.change(uint64(fd), filter, unix.EV_DELETE, 0)
	if err == unix.ENOENT {
		return nil // one-shot already consumed by the kernel
	}
	return err
}

func (b *kqueueBackend) removeTimer(id int64) error {
	err := b.change(uint64(id), unix.EVFILT_TIMER, unix.EV_DELETE, 0)
	if err == unix.ENOENT {
		return nil
	}
	return err
}

func (b *kqueueBackend) change(ident uint64, filter int16, flags uint16, data int64) error {
	ev := unix.Kevent_t{Ident: ident, Filter: filter, Flags: flags, Data: data}
	_, err := unix.Kevent(b.kq, []unix.Kevent_t{ev}, nil, nil)
	return err
}

func (b *kqueueBackend) wait(evs []Event, timeoutMs int64) (int, error) {
	max := len(evs)
	if max > MaxEvents {
		max = MaxEvents
	}
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		t := unix.NsecToTimespec(timeoutMs * 1_000_000)
		ts = &t
	}

	n, err := unix.Kevent(b.kq, nil, b.raw[:max], ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("kevent wait: %w", err)
	}

	for i := 0; i < n; i++ {
		ev := &b.raw[i]
		switch ev.Filter {
		case unix.EVFILT_TIMER:
			evs[i] = Event{Ident: int64(ev.Ident), Filter: FilterTimer}
		case unix.EVFILT_WRITE:
			evs[i] = Event{Ident: int64(ev.Ident), Filter: FilterWrite}
		default:
			if int(ev.Ident) == b.pipeR {
				b.drainWaker()
			}
			evs[i] = Event{Ident: int64(ev.Ident), Filter: FilterRead}
		}
	}
	return n, nil
}

func (b *kqueueBackend) drainWaker() {
	var buf [16]byte
	for {
		n, err := unix.Read(b.pipeR, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

func (b *kqueueBackend) wake() error {
	_, err := unix.Write(b.pipeW, []byte{1})
	if err == unix.EAGAIN {
		return nil
	}
	return err
}

func (b *kqueueBackend) wakeIdent() int64 {
	return int64(b.pipeR)
}

func (b *kqueueBackend) close() error {
	_ = unix.Close(b.pipeR)
	_ = unix.Close(b.pipeW)
	return unix.Close(b.kq)
}
