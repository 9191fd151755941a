//go:build linux || darwin
// +build linux darwin

// File: reactor/loop_test.go
// Author: momentics <momentics@gmail.com>
//
// EventLoop contract: one-shot re-arm, waker latency, timers, teardown.

package reactor

import (
	"errors"
	"os"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/vais-async/api"
)

func newLoop(t *testing.T) *EventLoop {
	t.Helper()
	l, err := NewEventLoop()
	if err != nil {
		t.Fatalf("new event loop: %v", err)
	}
	return l
}

func TestEventLoop_WakeUnblocksPoll(t *testing.T) {
	l := newLoop(t)
	defer l.Close()

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = l.Wake()
	}()

	start := time.Now()
	n, err := l.PollEvents(5000)
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if n != 0 {
		t.Errorf("waker token leaked into events: n=%d", n)
	}
	if elapsed > 500*time.Millisecond {
		t.Errorf("wake took %v, expected prompt return", elapsed)
	}
}

func TestEventLoop_TimerFires(t *testing.T) {
	l := newLoop(t)
	defer l.Close()

	if err := l.RegisterTimer(1, 20, 7); err != nil {
		t.Fatalf("register timer: %v", err)
	}
	if l.SourceCount() != 1 {
		t.Fatalf("source count = %d, want 1", l.SourceCount())
	}

	start := time.Now()
	n, err := l.PollEvents(2000)
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if n != 1 {
		t.Fatalf("events = %d, want 1", n)
	}
	ev, err := l.Event(0)
	if err != nil {
		t.Fatal(err)
	}
	if ev.Ident != 1 || ev.Filter != FilterTimer {
		t.Errorf("event = %+v, want timer id 1", ev)
	}
	if elapsed < 15*time.Millisecond {
		t.Errorf("timer fired after %v, want >= ~20ms", elapsed)
	}

	task, ok := l.TaskFor(ev.Ident, ev.Filter)
	if !ok || task != 7 {
		t.Errorf("TaskFor = (%d, %v), want (7, true)", task, ok)
	}
	if l.SourceCount() != 0 {
		t.Errorf("source not consumed: count = %d", l.SourceCount())
	}
}

func TestEventLoop_OneShotRequiresRearm(t *testing.T) {
	l := newLoop(t)
	defer l.Close()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	defer w.Close()
	fd := int(r.Fd())

	if err := l.RegisterRead(fd, 3); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := w.Write([]byte{1}); err != nil {
		t.Fatal(err)
	}

	n, err := l.PollEvents(2000)
	if err != nil || n != 1 {
		t.Fatalf("first poll: n=%d err=%v", n, err)
	}
	ev, _ := l.Event(0)
	if task, ok := l.TaskFor(ev.Ident, ev.Filter); !ok || task != 3 {
		t.Fatalf("TaskFor = (%d, %v)", task, ok)
	}

	// second readiness without re-arm must not wake anyone
	if _, err := w.Write([]byte{2}); err != nil {
		t.Fatal(err)
	}
	n, err = l.PollEvents(50)
	if err != nil {
		t.Fatalf("second poll: %v", err)
	}
	if n != 0 {
		t.Fatalf("fired without re-registration: n=%d", n)
	}

	// after re-arm the pending data fires again
	if err := l.RegisterRead(fd, 3); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	n, err = l.PollEvents(2000)
	if err != nil || n != 1 {
		t.Fatalf("third poll: n=%d err=%v", n, err)
	}
}

func TestEventLoop_DuplicateRegistration(t *testing.T) {
	l := newLoop(t)
	defer l.Close()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	defer w.Close()
	fd := int(r.Fd())

	if err := l.RegisterRead(fd, 1); err != nil {
		t.Fatalf("register: %v", err)
	}
	// same task re-arming while pending is a no-op
	if err := l.RegisterRead(fd, 1); err != nil {
		t.Errorf("re-arm by same task: %v", err)
	}
	if l.SourceCount() != 1 {
		t.Errorf("source count = %d, want 1", l.SourceCount())
	}
	// a different task may not steal the registration
	if err := l.RegisterRead(fd, 2); !errors.Is(err, api.ErrSourceExists) {
		t.Errorf("conflicting register = %v, want ErrSourceExists", err)
	}
}

func TestEventLoop_ReadAndWriteSameFd(t *testing.T) {
	l := newLoop(t)
	defer l.Close()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])
	fd := fds[0]

	if err := l.RegisterRead(fd, 1); err != nil {
		t.Fatalf("register read: %v", err)
	}
	if err := l.RegisterWrite(fd, 2); err != nil {
		t.Fatalf("register write: %v", err)
	}
	if l.SourceCount() != 2 {
		t.Fatalf("source count = %d, want 2", l.SourceCount())
	}

	// an idle socket is writable but not readable
	n, err := l.PollEvents(2000)
	if err != nil || n != 1 {
		t.Fatalf("first poll: n=%d err=%v", n, err)
	}
	ev, _ := l.Event(0)
	if ev.Ident != int64(fd) || ev.Filter != FilterWrite {
		t.Fatalf("event = %+v, want write on fd %d", ev, fd)
	}
	if task, ok := l.TaskFor(ev.Ident, ev.Filter); !ok || task != 2 {
		t.Fatalf("TaskFor = (%d, %v), want (2, true)", task, ok)
	}

	// consuming the write watch must leave the read watch armed
	if _, err := unix.Write(fds[1], []byte{9}); err != nil {
		t.Fatal(err)
	}
	n, err = l.PollEvents(2000)
	if err != nil || n != 1 {
		t.Fatalf("second poll: n=%d err=%v", n, err)
	}
	ev, _ = l.Event(0)
	if ev.Ident != int64(fd) || ev.Filter != FilterRead {
		t.Fatalf("event = %+v, want read on fd %d", ev, fd)
	}
	if task, ok := l.TaskFor(ev.Ident, ev.Filter); !ok || task != 1 {
		t.Fatalf("TaskFor = (%d, %v), want (1, true)", task, ok)
	}
}

func TestEventLoop_Deregister(t *testing.T) {
	l := newLoop(t)
	defer l.Close()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	defer w.Close()
	fd := int(r.Fd())

	if err := l.RegisterRead(fd, 1); err != nil {
		t.Fatal(err)
	}
	if err := l.Deregister(int64(fd), FilterRead); err != nil {
		t.Fatalf("deregister: %v", err)
	}
	if l.SourceCount() != 0 {
		t.Fatalf("source count = %d after deregister", l.SourceCount())
	}

	if _, err := w.Write([]byte{1}); err != nil {
		t.Fatal(err)
	}
	n, err := l.PollEvents(50)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("deregistered fd fired: n=%d", n)
	}
}

func TestEventLoop_NextTimerDue(t *testing.T) {
	l := newLoop(t)
	defer l.Close()

	if due := l.NextTimerDue(); due != -1 {
		t.Errorf("due = %d with no timers, want -1", due)
	}
	if err := l.RegisterTimer(1, 50, 1); err != nil {
		t.Fatal(err)
	}
	due := l.NextTimerDue()
	if due < 0 || due > 50 {
		t.Errorf("due = %d, want within [0, 50]", due)
	}
}

func TestEventLoop_CloseExactlyOnce(t *testing.T) {
	l := newLoop(t)
	if err := l.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := l.Close(); !errors.Is(err, api.ErrLoopClosed) {
		t.Errorf("second close = %v, want ErrLoopClosed", err)
	}
	if _, err := l.PollEvents(0); !errors.Is(err, api.ErrLoopClosed) {
		t.Errorf("poll after close = %v, want ErrLoopClosed", err)
	}
	if err := l.RegisterTimer(1, 10, 1); !errors.Is(err, api.ErrLoopClosed) {
		t.Errorf("register after close = %v, want ErrLoopClosed", err)
	}
	if err := l.Wake(); !errors.Is(err, api.ErrLoopClosed) {
		t.Errorf("wake after close = %v, want ErrLoopClosed", err)
	}
}
