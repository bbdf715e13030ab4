package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SyncInterval = time.Hour // loop effectively driven by commands only
	cfg.RefreshCooldown = 50 * time.Millisecond
	cfg.InitialBackoff = 10 * time.Millisecond
	cfg.MaxBackoff = 100 * time.Millisecond
	return cfg
}

func startScheduler(t *testing.T, cfg Config, syncFn SyncFunc) (*Scheduler, *Handle, func()) {
	t.Helper()
	s := NewScheduler(cfg, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		s.Run(ctx, syncFn)
		close(stopped)
	}()
	return s, s.Handle(), func() {
		cancel()
		<-stopped
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
	t.Fatal("condition not met before timeout")
}

func TestConfigNextSyncDelayJitterBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SyncInterval = 60 * time.Second
	cfg.JitterFraction = 0.1

	for i := 0; i < 100; i++ {
		delay := cfg.NextSyncDelay()
		if delay < 54*time.Second || delay > 66*time.Second {
			t.Fatalf("delay %v outside [54s, 66s]", delay)
		}
	}
}

func TestConfigBackoffDelay(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialBackoff = 5 * time.Second
	cfg.MaxBackoff = 300 * time.Second
	cfg.BackoffMultiplier = 2.0

	tests := []struct {
		failures int
		want     time.Duration
	}{
		{0, 0},
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 20 * time.Second},
		{10, 300 * time.Second}, // capped
	}
	for _, tt := range tests {
		if got := cfg.BackoffDelay(tt.failures); got != tt.want {
			t.Errorf("BackoffDelay(%d) = %v, want %v", tt.failures, got, tt.want)
		}
	}
}

func TestConfigBackoffNonDecreasing(t *testing.T) {
	cfg := DefaultConfig()
	prev := time.Duration(0)
	for failures := 1; failures <= 20; failures++ {
		delay := cfg.BackoffDelay(failures)
		if delay < prev {
			t.Fatalf("backoff decreased at %d failures: %v < %v", failures, delay, prev)
		}
		if delay > cfg.MaxBackoff {
			t.Fatalf("backoff %v above cap %v", delay, cfg.MaxBackoff)
		}
		prev = delay
	}
}

func TestStateRecording(t *testing.T) {
	var s State
	s.ConsecutiveFailures = 5

	s.recordSuccess()
	if s.ConsecutiveFailures != 0 || s.LastSync == nil || s.LastError != "" {
		t.Errorf("after success: %+v", s)
	}

	s.recordFailure("boom")
	if s.ConsecutiveFailures != 1 || s.LastError != "boom" || s.LastAttempt == nil {
		t.Errorf("after failure: %+v", s)
	}
}

func TestStateCooldown(t *testing.T) {
	var s State
	cooldown := 50 * time.Millisecond

	if s.InCooldown(cooldown) {
		t.Error("fresh state should not be in cooldown")
	}
	s.recordRefresh()
	if !s.InCooldown(cooldown) {
		t.Error("should be in cooldown right after refresh")
	}
	time.Sleep(60 * time.Millisecond)
	if s.InCooldown(cooldown) {
		t.Error("cooldown should have elapsed")
	}
}

func TestSchedulerInitialSyncAndSyncNow(t *testing.T) {
	var count atomic.Int32
	_, handle, stop := startScheduler(t, testConfig(), func(context.Context) error {
		count.Add(1)
		return nil
	})
	defer stop()

	waitFor(t, time.Second, func() bool { return count.Load() >= 1 })

	if err := handle.SyncNow(); err != nil {
		t.Fatalf("SyncNow() error = %v", err)
	}
	waitFor(t, time.Second, func() bool { return count.Load() >= 2 })
}

func TestSchedulerRefreshCooldown(t *testing.T) {
	var count atomic.Int32
	cfg := testConfig()
	cfg.RefreshCooldown = time.Hour // cooldown never elapses during the test

	_, handle, stop := startScheduler(t, cfg, func(context.Context) error {
		count.Add(1)
		return nil
	})
	defer stop()

	waitFor(t, time.Second, func() bool { return count.Load() == 1 }) // initial sync

	// First refresh starts the cooldown and syncs.
	if err := handle.Refresh(false); err != nil {
		t.Fatal(err)
	}
	waitFor(t, time.Second, func() bool { return count.Load() == 2 })

	// Second non-forced refresh inside cooldown is a no-op.
	if err := handle.Refresh(false); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	if count.Load() != 2 {
		t.Errorf("cooldown refresh ran a sync: count = %d", count.Load())
	}

	// Forced refresh bypasses the cooldown.
	if err := handle.Refresh(true); err != nil {
		t.Fatal(err)
	}
	waitFor(t, time.Second, func() bool { return count.Load() == 3 })
}

func TestSchedulerPauseResume(t *testing.T) {
	var count atomic.Int32
	cfg := testConfig()
	cfg.SyncInterval = 30 * time.Millisecond
	cfg.JitterFraction = 0

	_, handle, stop := startScheduler(t, cfg, func(context.Context) error {
		count.Add(1)
		return nil
	})
	defer stop()

	waitFor(t, time.Second, func() bool { return count.Load() >= 1 })

	if err := handle.Pause(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, time.Second, func() bool { return handle.IsPaused() })

	base := count.Load()
	time.Sleep(120 * time.Millisecond)
	if count.Load() != base {
		t.Errorf("paused scheduler ran %d syncs", count.Load()-base)
	}

	if err := handle.Resume(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, time.Second, func() bool { return count.Load() > base })
}

func TestSchedulerBackoffOnFailure(t *testing.T) {
	var count atomic.Int32
	cfg := testConfig()
	cfg.SyncInterval = 20 * time.Millisecond
	cfg.JitterFraction = 0

	s, _, stop := startScheduler(t, cfg, func(context.Context) error {
		if n := count.Add(1); n < 3 {
			return fmt.Errorf("failure %d", n)
		}
		return nil
	})
	defer stop()

	waitFor(t, 2*time.Second, func() bool {
		return count.Load() >= 3 && s.StateSnapshot().ConsecutiveFailures == 0
	})

	snap := s.StateSnapshot()
	if snap.LastSync == nil || snap.LastError != "" {
		t.Errorf("state after recovery: %+v", snap)
	}
}

func TestSchedulerRefusesAfterMaxFailures(t *testing.T) {
	var count atomic.Int32
	cfg := testConfig()
	cfg.SyncInterval = 10 * time.Millisecond
	cfg.JitterFraction = 0
	cfg.MaxConsecutiveFailures = 2

	s, handle, stop := startScheduler(t, cfg, func(context.Context) error {
		count.Add(1)
		return errors.New("always fails")
	})
	defer stop()

	waitFor(t, 2*time.Second, func() bool {
		return s.StateSnapshot().ConsecutiveFailures >= 2
	})

	base := count.Load()
	// Commands are still processed, but sync is refused.
	if err := handle.SyncNow(); err != nil {
		t.Fatalf("SyncNow() after ceiling error = %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if count.Load() != base {
		t.Errorf("sync ran past the failure ceiling")
	}
	if !errors.Is(handle.Pause(), nil) {
		t.Error("commands should still be accepted")
	}
}

func TestSchedulerSurvivesPanic(t *testing.T) {
	var count atomic.Int32
	s, handle, stop := startScheduler(t, testConfig(), func(context.Context) error {
		if count.Add(1) == 1 {
			panic("simulated sync panic")
		}
		return nil
	})
	defer stop()

	waitFor(t, time.Second, func() bool {
		snap := s.StateSnapshot()
		return snap.ConsecutiveFailures == 1 && snap.LastError == "panic: simulated sync panic"
	})

	// Scheduler is still alive and can sync again.
	if err := handle.SyncNow(); err != nil {
		t.Fatalf("SyncNow() after panic error = %v", err)
	}
	waitFor(t, time.Second, func() bool {
		return s.StateSnapshot().ConsecutiveFailures == 0
	})
}

func TestSchedulerStop(t *testing.T) {
	s := NewScheduler(testConfig(), zerolog.Nop())
	handle := s.Handle()

	stopped := make(chan struct{})
	go func() {
		s.Run(context.Background(), func(context.Context) error { return nil })
		close(stopped)
	}()

	waitFor(t, time.Second, func() bool { return handle.Stop() == nil })

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}

	if err := handle.SyncNow(); !errors.Is(err, ErrSchedulerStopped) {
		t.Errorf("SyncNow() after stop = %v, want ErrSchedulerStopped", err)
	}
}

func TestSchedulerExpectedWakeSet(t *testing.T) {
	cfg := testConfig()
	cfg.SyncInterval = 50 * time.Millisecond
	cfg.JitterFraction = 0

	s, _, stop := startScheduler(t, cfg, func(context.Context) error { return nil })
	defer stop()

	waitFor(t, time.Second, func() bool {
		return s.StateSnapshot().ExpectedWake != nil
	})
}
