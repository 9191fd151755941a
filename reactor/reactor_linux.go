//go:build linux
// +build linux

// File: reactor/reactor_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux epoll(7) backend. Timers are timerfds mapped to caller timer ids;
// the waker is a non-blocking self-pipe registered persistently.

package reactor

import (
	"fmt"

	"golang.org/x/sys/unix"
)

type epollBackend struct {
	epfd  int
	pipeR int
	pipeW int

	// armed event bits per fd; read and write watches on one fd share a
	// single epoll registration, so the bits must be OR-ed, not replaced
	fdMasks map[int64]uint32

	// timer id <-> timerfd mapping, one-shot entries
	timerFds map[int64]int
	timerIds map[int]int64

	raw [MaxEvents]unix.EpollEvent
}

// newBackend constructs the epoll backend with its self-pipe waker.
func newBackend() (backend, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("waker pipe: %w", err)
	}
	b := &epollBackend{
		epfd:     epfd,
		pipeR:    p[0],
		pipeW:    p[1],
		fdMasks:  make(map[int64]uint32),
		timerFds: make(map[int64]int),
		timerIds: make(map[int]int64),
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(b.pipeR)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, b.pipeR, &ev); err != nil {
		b.close()
		return nil, fmt.Errorf("waker register: %w", err)
	}
	return b, nil
}

func (b *epollBackend) addRead(fd int64) error {
	return b.addFd(fd, unix.EPOLLIN)
}

func (b *epollBackend) addWrite(fd int64) error {
	return b.addFd(fd, unix.EPOLLOUT)
}

func (b *epollBackend) addFd(fd int64, bit uint32) error {
	mask := b.fdMasks[fd] | bit
	ev := unix.EpollEvent{Events: mask | unix.EPOLLONESHOT, Fd: int32(fd)}
	err := unix.EpollCtl(b.epfd, unix.EPOLL_CTL_ADD, int(fd), &ev)
	if err == unix.EEXIST {
		// already known to epoll, from the other filter or from a previous
		// one-shot firing
		err = unix.EpollCtl(b.epfd, unix.EPOLL_CTL_MOD, int(fd), &ev)
	}
	if err != nil {
		return fmt.Errorf("epoll ctl add fd %d: %w", fd, err)
	}
	b.fdMasks[fd] = mask
	return nil
}

func (b *epollBackend) addTimer(id, delayMs int64) error {
	tfd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_NONBLOCK|unix.TFD_CLOEXEC)
	if err != nil {
		return fmt.Errorf("timerfd create: %w", err)
	}
	if delayMs < 1 {
		delayMs = 1 // zero would disarm the timerfd
	}
	spec := unix.ItimerSpec{Value: unix.NsecToTimespec(delayMs * 1_000_000)}
	if err := unix.TimerfdSettime(tfd, 0, &spec, nil); err != nil {
		unix.Close(tfd)
		return fmt.Errorf("timerfd settime: %w", err)
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLONESHOT, Fd: int32(tfd)}
	if err := unix.EpollCtl(b.epfd, unix.EPOLL_CTL_ADD, tfd, &ev); err != nil {
		unix.Close(tfd)
		return fmt.Errorf("epoll ctl add timer %d: %w", id, err)
	}
	b.timerFds[id] = tfd
	b.timerIds[tfd] = id
	return nil
}

func (b *epollBackend) removeFd(fd int64, f Filter) error {
	bit := uint32(unix.EPOLLIN)
	if f == FilterWrite {
		bit = unix.EPOLLOUT
	}
	mask := b.fdMasks[fd] &^ bit
	if mask != 0 {
		// the other filter stays armed; the MOD also re-enables a
		// registration disabled by a one-shot firing
		b.fdMasks[fd] = mask
		ev := unix.EpollEvent{Events: mask | unix.EPOLLONESHOT, Fd: int32(fd)}
		if err := unix.EpollCtl(b.epfd, unix.EPOLL_CTL_MOD, int(fd), &ev); err != nil {
			return fmt.Errorf("epoll ctl mod fd %d: %w", fd, err)
		}
		return nil
	}
	delete(b.fdMasks, fd)
	err := unix.EpollCtl(b.epfd, unix.EPOLL_CTL_DEL, int(fd), nil)
	if err != nil && err != unix.ENOENT && err != unix.EBADF {
		return fmt.Errorf("epoll ctl del fd %d: %w", fd, err)
	}
	return nil
}

func (b *epollBackend) removeTimer(id int64) error {
	tfd, ok := b.timerFds[id]
	if !ok {
		return nil
	}
	delete(b.timerFds, id)
	delete(b.timerIds, tfd)
	_ = unix.EpollCtl(b.epfd, unix.EPOLL_CTL_DEL, tfd, nil)
	return unix.Close(tfd)
}

func (b *epollBackend) wait(evs []Event, timeoutMs int64) (int, error) {
	max := len(evs)
	if max > MaxEvents {
		max = MaxEvents
	}
	timeout := -1
	if timeoutMs >= 0 {
		timeout = int(timeoutMs)
	}

	n, err := unix.EpollWait(b.epfd, b.raw[:max], timeout)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil // interrupted by signal
		}
		return 0, fmt.Errorf("epoll wait: %w", err)
	}

	for i := 0; i < n; i++ {
		fd := int(b.raw[i].Fd)
		switch {
		case fd == b.pipeR:
			b.drainWaker()
			evs[i] = Event{Ident: int64(fd), Filter: FilterRead}
		default:
			if id, ok := b.timerIds[fd]; ok {
				// drain the expiration counter before reporting
				var buf [8]byte
				_, _ = unix.Read(fd, buf[:])
				evs[i] = Event{Ident: id, Filter: FilterTimer}
				break
			}
			f := FilterRead
			if b.raw[i].Events&unix.EPOLLOUT != 0 {
				f = FilterWrite
			}
			evs[i] = Event{Ident: int64(fd), Filter: f}
		}
	}
	return n, nil
}

func (b *epollBackend) drainWaker() {
	var buf [16]byte
	for {
		n, err := unix.Read(b.pipeR, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

func (b *epollBackend) wake() error {
	_, err := unix.Write(b.pipeW, []byte{1})
	if err == unix.EAGAIN {
		return nil // pipe full, a wakeup is already pending
	}
	return err
}

func (b *epollBackend) wakeIdent() int64 {
	return int64(b.pipeR)
}

func (b *epollBackend) close() error {
	for id := range b.timerFds {
		_ = b.removeTimer(id)
	}
	_ = unix.Close(b.pipeR)
	_ = unix.Close(b.pipeW)
	return unix.Close(b.epfd)
}
