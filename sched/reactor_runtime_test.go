//go:build linux || darwin
// +build linux darwin

// File: sched/reactor_runtime_test.go
// Author: momentics <momentics@gmail.com>
//
// ReactorRuntime contract: timer suspension, fd readiness wakeups, group
// fail-fast over reactor-parked children.

package sched

import (
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/momentics/vais-async/api"
)

func newReactorRuntime(t *testing.T) *ReactorRuntime {
	t.Helper()
	rr, err := NewReactorRuntime()
	if err != nil {
		t.Fatalf("new reactor runtime: %v", err)
	}
	return rr
}

// sleeper resolves with v after parking on a delayMs timer once.
func sleeper(delayMs int64, v any) api.PollFunc {
	slept := false
	return func(cx api.Context) api.Poll {
		if !slept {
			slept = true
			if err := cx.Sleep(delayMs); err != nil {
				return api.Ready(err)
			}
			return api.Pending()
		}
		return api.Ready(v)
	}
}

func TestReactorRuntime_EndToEnd(t *testing.T) {
	rr := newReactorRuntime(t)
	defer rr.Cleanup()

	h1, err := rr.SpawnFunc(func(api.Context) api.Poll { return api.Ready(1) })
	if err != nil {
		t.Fatal(err)
	}
	yielded := false
	h2, err := rr.SpawnFunc(func(api.Context) api.Poll {
		if !yielded {
			yielded = true
			return api.Pending()
		}
		return api.Ready(2)
	})
	if err != nil {
		t.Fatal(err)
	}
	h3, err := rr.SpawnFunc(sleeper(10, 3))
	if err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	if err := rr.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	elapsed := time.Since(start)

	for i, h := range []*JoinHandle{h1, h2, h3} {
		v, ok := h.Result()
		if !ok || v != i+1 {
			t.Errorf("task %d: result=%v ok=%v, want %d", i+1, v, ok, i+1)
		}
	}
	if elapsed < 10*time.Millisecond {
		t.Errorf("run returned after %v, timer task needs >= 10ms", elapsed)
	}
}

func TestReactorRuntime_WaitReadable(t *testing.T) {
	rr := newReactorRuntime(t)
	defer rr.Cleanup()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	defer w.Close()
	fd := int(r.Fd())

	waiting := false
	h, err := rr.SpawnFunc(func(cx api.Context) api.Poll {
		if !waiting {
			waiting = true
			if werr := cx.WaitReadable(fd); werr != nil {
				return api.Ready(werr)
			}
			return api.Pending()
		}
		var buf [1]byte
		if _, rerr := r.Read(buf[:]); rerr != nil {
			return api.Ready(rerr)
		}
		return api.Ready(buf[0])
	})
	if err != nil {
		t.Fatal(err)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = w.Write([]byte{42})
	}()

	start := time.Now()
	if err := rr.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	elapsed := time.Since(start)

	v, ok := h.Result()
	if !ok || v != byte(42) {
		t.Errorf("result = %v ok=%v, want byte 42", v, ok)
	}
	if elapsed < 15*time.Millisecond {
		t.Errorf("run returned after %v, writer fires at 20ms", elapsed)
	}
}

func TestReactorRuntime_SequentialSleeps(t *testing.T) {
	rr := newReactorRuntime(t)
	defer rr.Cleanup()

	// each fired timer is consumed, so the second Sleep arms a fresh one
	polls := 0
	h, err := rr.SpawnFunc(func(cx api.Context) api.Poll {
		polls++
		if polls <= 2 {
			if err := cx.Sleep(5); err != nil {
				return api.Ready(err)
			}
			return api.Pending()
		}
		return api.Ready("done")
	})
	if err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	if err := rr.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Error("two 5ms sleeps finished early")
	}
	if v, ok := h.Result(); !ok || v != "done" {
		t.Errorf("result = %v ok=%v", v, ok)
	}
	if polls != 3 {
		t.Errorf("polls = %d, want 3", polls)
	}
}

func TestReactorRuntime_CompletedTaskReleasesSources(t *testing.T) {
	rr := newReactorRuntime(t)
	defer rr.Cleanup()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	defer w.Close()
	fd := int(r.Fd())

	// wait-with-timeout: fd readiness raced against a timer. Nothing is ever
	// written, so the timer wins and the fd registration goes undelivered.
	armed := false
	h, err := rr.SpawnFunc(func(cx api.Context) api.Poll {
		if !armed {
			armed = true
			if werr := cx.WaitReadable(fd); werr != nil {
				return api.Ready(werr)
			}
			if serr := cx.Sleep(10); serr != nil {
				return api.Ready(serr)
			}
			return api.Pending()
		}
		return api.Ready("timed out")
	})
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- rr.Run() }()
	select {
	case rerr := <-done:
		if rerr != nil {
			t.Fatalf("run: %v", rerr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run hung: completed task left its fd source registered")
	}

	if v, ok := h.Result(); !ok || v != "timed out" {
		t.Errorf("result = %v ok=%v", v, ok)
	}
	if rr.Loop().SourceCount() != 0 {
		t.Errorf("source count = %d after completion, want 0", rr.Loop().SourceCount())
	}
}

func TestReactorRuntime_BlockOn(t *testing.T) {
	rr := newReactorRuntime(t)
	defer rr.Cleanup()

	start := time.Now()
	v, err := rr.BlockOn(sleeper(10, "slept"))
	if err != nil {
		t.Fatalf("block_on: %v", err)
	}
	if v != "slept" {
		t.Errorf("result = %v", v)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Error("block_on returned before the timer elapsed")
	}
}

func TestReactorRuntime_GroupFailFastCancelsTimers(t *testing.T) {
	rr := newReactorRuntime(t)
	defer rr.Cleanup()

	g := NewTaskGroup(rr, GroupOptions{CancelOnError: true})
	boom := fmt.Errorf("early failure")

	if _, err := g.SpawnFunc(sleeper(5, boom)); err != nil {
		t.Fatal(err)
	}
	// sibling sleeps far longer; fail-fast must not wait for it
	if _, err := g.SpawnFunc(sleeper(5000, "slow")); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	err := g.Run()
	elapsed := time.Since(start)

	if !errors.Is(err, api.ErrGroupCancelled) {
		t.Fatalf("run = %v, want ErrGroupCancelled", err)
	}
	if elapsed > time.Second {
		t.Errorf("fail-fast took %v, sibling timer leaked into the wait", elapsed)
	}
	if !g.HasError(0) || g.Completed() != 1 {
		t.Errorf("completed = %d, HasError(0)=%v", g.Completed(), g.HasError(0))
	}
	if s, _ := g.TaskStatus(1); s != StatusCancelled {
		t.Errorf("sibling status = %v, want cancelled", s)
	}
	// the cancelled sibling's timer left the source list
	if rr.Loop().SourceCount() != 0 {
		t.Errorf("source count = %d after cancel, want 0", rr.Loop().SourceCount())
	}
}

func TestReactorRuntime_CleanupExactlyOnce(t *testing.T) {
	rr := newReactorRuntime(t)
	if err := rr.Cleanup(); err != nil {
		t.Fatalf("first cleanup: %v", err)
	}
	if err := rr.Cleanup(); err == nil {
		t.Error("second cleanup succeeded, want error")
	}
}
