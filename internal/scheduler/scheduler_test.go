package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func countingDrain(calls *atomic.Int64) DrainFunc {
	return func(context.Context) (int, int, int, error) {
		calls.Add(1)
		return 0, 0, 0, nil
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestNew_InvalidArgs(t *testing.T) {
	t.Parallel()

	if _, err := New(0, countingDrain(&atomic.Int64{})); err == nil {
		t.Fatalf("expected error for zero interval")
	}
	if _, err := New(-time.Second, countingDrain(&atomic.Int64{})); err == nil {
		t.Fatalf("expected error for negative interval")
	}
	if _, err := New(time.Second, nil); err == nil {
		t.Fatalf("expected error for nil drain func")
	}
}

func TestStartStop(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	s, err := New(10*time.Millisecond, countingDrain(&calls))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	if s.IsRunning() {
		t.Fatalf("expected not running before Start")
	}
	if !s.Start() {
		t.Fatalf("expected Start to succeed")
	}
	if s.Start() {
		t.Fatalf("expected second Start to be rejected")
	}
	if !s.IsRunning() {
		t.Fatalf("expected running after Start")
	}

	// The first drain is immediate; further ones follow the ticker.
	waitFor(t, time.Second, func() bool { return calls.Load() >= 2 })

	if !s.Stop() {
		t.Fatalf("expected Stop to succeed")
	}
	if s.Stop() {
		t.Fatalf("expected second Stop to be rejected")
	}
	if s.IsRunning() {
		t.Fatalf("expected not running after Stop")
	}

	// No further drains after Stop returned.
	after := calls.Load()
	time.Sleep(50 * time.Millisecond)
	if calls.Load() != after {
		t.Fatalf("drain ran after Stop: %d -> %d", after, calls.Load())
	}
}

func TestRestart(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	s, err := New(10*time.Millisecond, countingDrain(&calls))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	if !s.Start() {
		t.Fatalf("expected Start to succeed")
	}
	waitFor(t, time.Second, func() bool { return calls.Load() >= 1 })
	if !s.Stop() {
		t.Fatalf("expected Stop to succeed")
	}

	before := calls.Load()
	if !s.Start() {
		t.Fatalf("expected restart to succeed")
	}
	waitFor(t, time.Second, func() bool { return calls.Load() > before })
	if !s.Stop() {
		t.Fatalf("expected Stop to succeed")
	}
}

func TestDrainPanicIsRecovered(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	s, err := New(10*time.Millisecond, func(context.Context) (int, int, int, error) {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		return 0, 0, 0, nil
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	if !s.Start() {
		t.Fatalf("expected Start to succeed")
	}
	defer s.Stop()

	// The loop survives the panicking first cycle and keeps ticking.
	waitFor(t, time.Second, func() bool { return calls.Load() >= 2 })
}

func TestDrainErrorKeepsTicking(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	s, err := New(10*time.Millisecond, func(context.Context) (int, int, int, error) {
		calls.Add(1)
		return 0, 0, 0, errors.New("storage offline")
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	if !s.Start() {
		t.Fatalf("expected Start to succeed")
	}
	defer s.Stop()

	waitFor(t, time.Second, func() bool { return calls.Load() >= 2 })
}
