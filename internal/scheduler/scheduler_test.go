package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedulerDispatch(t *testing.T) {
	s := New(Config{
		Enabled:       true,
		TickInterval:  50 * time.Millisecond,
		MaxConcurrent: 3,
		LockPath:      t.TempDir() + "/test.lock",
	}, nil)

	cron, _ := ParseCron("* * * * *")
	var received atomic.Int32
	done := make(chan struct{})
	s.Register(&Job{
		Name:     "test-job",
		Cron:     cron,
		Category: CategoryDefault,
		Func: func(ctx context.Context, now time.Time) error {
			received.Add(1)
			close(done)
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.tick(ctx, time.Now())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job was not dispatched in time")
	}

	if received.Load() != 1 {
		t.Errorf("expected 1 dispatch, got %d", received.Load())
	}
}

func TestSchedulerSkipsWithoutActiveSession(t *testing.T) {
	s := New(Config{
		Enabled:       true,
		TickInterval:  50 * time.Millisecond,
		MaxConcurrent: 3,
		LockPath:      t.TempDir() + "/test.lock",
	}, func() bool { return false })

	cron, _ := ParseCron("* * * * *")
	var received atomic.Int32
	s.Register(&Job{
		Name:                  "gated-job",
		Cron:                  cron,
		Category:              CategoryConsolidation,
		RequiresActiveSession: true,
		Func: func(ctx context.Context, now time.Time) error {
			received.Add(1)
			return nil
		},
	})

	s.tick(context.Background(), time.Now())
	time.Sleep(50 * time.Millisecond)

	if received.Load() != 0 {
		t.Errorf("expected job gated by active-session check not to run, got %d", received.Load())
	}
}

func TestSchedulerLockPreventsOverlap(t *testing.T) {
	lockPath := t.TempDir() + "/overlap.lock"

	s1 := New(Config{Enabled: true, TickInterval: 50 * time.Millisecond, MaxConcurrent: 5, LockPath: lockPath}, nil)
	s2 := New(Config{Enabled: true, TickInterval: 50 * time.Millisecond, MaxConcurrent: 5, LockPath: lockPath}, nil)

	cron, _ := ParseCron("* * * * *")
	noop := func(ctx context.Context, now time.Time) error { return nil }
	s1.Register(&Job{Name: "overlap-1", Cron: cron, Category: CategoryDefault, Func: noop})
	s2.Register(&Job{Name: "overlap-2", Cron: cron, Category: CategoryDefault, Func: noop})

	acquired, err := s1.lock.TryLock()
	if err != nil || !acquired {
		t.Fatal("s1 should acquire lock")
	}

	acquired2, err := s2.lock.TryLock()
	if err != nil {
		t.Fatal("unexpected error on s2 lock:", err)
	}
	if acquired2 {
		t.Error("s2 should NOT acquire lock while s1 holds it")
		s2.lock.Unlock()
	}

	s1.lock.Unlock()

	acquired3, err := s2.lock.TryLock()
	if err != nil {
		t.Fatal("unexpected error on s2 retry:", err)
	}
	if !acquired3 {
		t.Error("s2 should acquire lock after s1 released")
	}
	s2.lock.Unlock()
}

func TestSemaphoreConcurrencyLimit(t *testing.T) {
	sem := NewSemaphore(2)

	if !sem.TryAcquire() {
		t.Error("first acquire should succeed")
	}
	if !sem.TryAcquire() {
		t.Error("second acquire should succeed")
	}
	if sem.TryAcquire() {
		t.Error("third acquire should fail (cap=2)")
	}
	if sem.Available() != 0 {
		t.Errorf("Available() = %d, want 0", sem.Available())
	}

	sem.Release()
	if sem.Available() != 1 {
		t.Errorf("Available() = %d, want 1", sem.Available())
	}
	if !sem.TryAcquire() {
		t.Error("acquire after release should succeed")
	}
}

func TestSchedulerNonMatchingJobNotDispatched(t *testing.T) {
	s := New(Config{
		Enabled:       true,
		TickInterval:  50 * time.Millisecond,
		MaxConcurrent: 5,
		LockPath:      t.TempDir() + "/test.lock",
	}, nil)

	// Job that only runs at midnight.
	cron, _ := ParseCron("0 0 * * *")
	var received atomic.Int32
	s.Register(&Job{Name: "midnight-only", Cron: cron, Category: CategoryDefault, Func: func(ctx context.Context, now time.Time) error {
		received.Add(1)
		return nil
	}})

	// Tick at noon — should NOT dispatch.
	noon := time.Date(2026, 2, 15, 12, 30, 0, 0, time.UTC)
	s.tick(context.Background(), noon)

	time.Sleep(100 * time.Millisecond)

	if received.Load() != 0 {
		t.Errorf("expected 0 dispatches at noon, got %d", received.Load())
	}
}
