// Package worker hosts the background sync scheduler.
package worker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// timeJumpThreshold detects system sleep/wake via wall-clock jumps: when the
// actual wake time differs from the expected one by more than this, the
// machine was suspended and we sync immediately.
const timeJumpThreshold = 60 * time.Second

// commandBuffer bounds the scheduler command channel.
const commandBuffer = 16

// ErrSchedulerStopped is returned by handle methods after the loop exited.
var ErrSchedulerStopped = errors.New("scheduler stopped")

// ErrCommandQueueFull is returned when the bounded command channel is full.
var ErrCommandQueueFull = errors.New("scheduler command queue full")

// Config holds scheduler tuning.
type Config struct {
	SyncInterval           time.Duration
	JitterFraction         float64 // fraction of SyncInterval, clamped to [0, 1]
	RefreshCooldown        time.Duration
	InitialBackoff         time.Duration
	MaxBackoff             time.Duration
	BackoffMultiplier      float64
	MaxConsecutiveFailures int
}

// DefaultConfig returns the standard scheduler tuning.
func DefaultConfig() Config {
	return Config{
		SyncInterval:           5 * time.Minute,
		JitterFraction:         0.1,
		RefreshCooldown:        30 * time.Second,
		InitialBackoff:         5 * time.Second,
		MaxBackoff:             5 * time.Minute,
		BackoffMultiplier:      2.0,
		MaxConsecutiveFailures: 10,
	}
}

// NextSyncDelay returns the jittered interval: interval + r, r uniform in
// [-frac*interval, +frac*interval].
func (c Config) NextSyncDelay() time.Duration {
	frac := c.JitterFraction
	if frac < 0 {
		frac = 0
	} else if frac > 1 {
		frac = 1
	}
	base := c.SyncInterval.Seconds()
	jitter := (rand.Float64()*2 - 1) * base * frac
	return time.Duration((base + jitter) * float64(time.Second))
}

// BackoffDelay returns min(initial * multiplier^(failures-1), max).
func (c Config) BackoffDelay(consecutiveFailures int) time.Duration {
	if consecutiveFailures <= 0 {
		return 0
	}
	delay := c.InitialBackoff.Seconds() * math.Pow(c.BackoffMultiplier, float64(consecutiveFailures-1))
	if max := c.MaxBackoff.Seconds(); delay > max {
		delay = max
	}
	return time.Duration(delay * float64(time.Second))
}

// State is the scheduler's observable state.
type State struct {
	Paused              bool
	ConsecutiveFailures int
	LastSync            *time.Time
	LastAttempt         *time.Time
	LastError           string
	// lastRefresh carries a monotonic reading for cooldown arithmetic.
	lastRefresh time.Time
	// ExpectedWake is the instant the loop expects to resume at; used for
	// sleep/wake detection.
	ExpectedWake *time.Time
}

// InCooldown reports whether a manual refresh happened within cooldown.
func (s *State) InCooldown(cooldown time.Duration) bool {
	return !s.lastRefresh.IsZero() && time.Since(s.lastRefresh) < cooldown
}

func (s *State) recordSuccess() {
	now := time.Now()
	s.ConsecutiveFailures = 0
	s.LastSync = &now
	s.LastAttempt = &now
	s.LastError = ""
}

func (s *State) recordFailure(message string) {
	now := time.Now()
	s.ConsecutiveFailures++
	s.LastAttempt = &now
	s.LastError = message
}

func (s *State) recordRefresh() {
	s.lastRefresh = time.Now()
}

type commandKind int

const (
	cmdSyncNow commandKind = iota
	cmdRefresh
	cmdPause
	cmdResume
	cmdStop
)

type command struct {
	kind  commandKind
	force bool
}

// SyncFunc runs one full sync cycle. Errors are recorded as failures; panics
// are caught by the scheduler and recorded as failures too.
type SyncFunc func(ctx context.Context) error

// Scheduler drives periodic calendar sync on a single cooperative loop:
// jittered interval, cooldown after manual refresh, exponential backoff on
// failure, sleep/wake detection, and panic isolation around the sync call.
type Scheduler struct {
	config   Config
	log      zerolog.Logger
	commands chan command
	done     chan struct{}

	mu    sync.RWMutex
	state State
}

// NewScheduler creates a scheduler.
func NewScheduler(config Config, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		config:   config,
		log:      log.With().Str("component", "scheduler").Logger(),
		commands: make(chan command, commandBuffer),
		done:     make(chan struct{}),
	}
}

// Handle returns a clone-safe command handle.
func (s *Scheduler) Handle() *Handle {
	return &Handle{scheduler: s}
}

// StateSnapshot returns a copy of the current state.
func (s *Scheduler) StateSnapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Run executes the scheduler loop until Stop, channel closure, or context
// cancellation. An initial sync runs immediately.
func (s *Scheduler) Run(ctx context.Context, syncFn SyncFunc) {
	defer close(s.done)

	s.log.Info().
		Dur("interval", s.config.SyncInterval).
		Dur("cooldown", s.config.RefreshCooldown).
		Msg("scheduler started")

	s.doSync(ctx, syncFn)

	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		delay := s.nextDelay()
		s.log.Debug().Dur("delay", delay).Msg("scheduling next sync")

		expectedWake := time.Now().Add(delay)
		s.mu.Lock()
		s.state.ExpectedWake = &expectedWake
		s.mu.Unlock()

		timer.Reset(delay)

		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info().Msg("scheduler stopping: context cancelled")
			return

		case <-timer.C:
			now := time.Now()
			s.mu.RLock()
			expected := s.state.ExpectedWake
			paused := s.state.Paused
			s.mu.RUnlock()

			if expected != nil {
				// Round(0) strips the monotonic reading so the wall clocks are compared.
				if diff := now.Round(0).Sub(expected.Round(0)); diff > timeJumpThreshold || diff < -timeJumpThreshold {
					s.log.Info().
						Time("expected_wake", *expected).
						Time("actual_wake", now).
						Msg("detected system sleep/wake, syncing immediately")
					s.mu.Lock()
					s.state.ExpectedWake = nil
					s.mu.Unlock()
					s.doSync(ctx, syncFn)
					continue
				}
			}

			if paused {
				s.log.Debug().Msg("scheduler paused, skipping sync")
				continue
			}
			s.doSync(ctx, syncFn)

		case cmd, ok := <-s.commands:
			if !ok {
				timer.Stop()
				s.log.Info().Msg("scheduler stopping: command channel closed")
				return
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			switch cmd.kind {
			case cmdSyncNow:
				s.doSync(ctx, syncFn)
			case cmdRefresh:
				s.mu.RLock()
				inCooldown := s.state.InCooldown(s.config.RefreshCooldown)
				s.mu.RUnlock()
				if cmd.force || !inCooldown {
					s.mu.Lock()
					s.state.recordRefresh()
					s.mu.Unlock()
					s.doSync(ctx, syncFn)
				} else {
					s.log.Debug().Msg("refresh skipped: in cooldown")
				}
			case cmdPause:
				s.log.Info().Msg("scheduler paused")
				s.mu.Lock()
				s.state.Paused = true
				s.mu.Unlock()
			case cmdResume:
				s.log.Info().Msg("scheduler resumed")
				s.mu.Lock()
				s.state.Paused = false
				s.mu.Unlock()
			case cmdStop:
				s.log.Info().Msg("scheduler stopping")
				return
			}
		}
	}
}

// nextDelay selects the sleep before the next cycle: backoff when failing,
// the longer of remaining cooldown and jittered interval after a manual
// refresh, otherwise the jittered interval.
func (s *Scheduler) nextDelay() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state.ConsecutiveFailures > 0 {
		backoff := s.config.BackoffDelay(s.state.ConsecutiveFailures)
		s.log.Debug().
			Int("failures", s.state.ConsecutiveFailures).
			Dur("backoff", backoff).
			Msg("using backoff delay")
		return backoff
	}

	if s.state.InCooldown(s.config.RefreshCooldown) {
		remaining := s.config.RefreshCooldown - time.Since(s.state.lastRefresh)
		next := s.config.NextSyncDelay()
		if remaining > next {
			return remaining
		}
		return next
	}

	return s.config.NextSyncDelay()
}

// doSync invokes the sync closure with panic isolation. Once the failure
// ceiling is reached, sync is refused but commands keep flowing.
func (s *Scheduler) doSync(ctx context.Context, syncFn SyncFunc) {
	s.mu.RLock()
	failures := s.state.ConsecutiveFailures
	s.mu.RUnlock()

	if failures >= s.config.MaxConsecutiveFailures {
		s.log.Error().
			Int("failures", failures).
			Int("max", s.config.MaxConsecutiveFailures).
			Msg("max consecutive failures reached, refusing sync")
		return
	}

	start := time.Now()
	err := runIsolated(ctx, syncFn)
	elapsed := time.Since(start)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state.recordFailure(err.Error())
		s.log.Warn().Err(err).Dur("sync_duration", elapsed).Msg("sync failed")
		return
	}
	s.state.recordSuccess()
	s.log.Info().Dur("sync_duration", elapsed).Msg("sync completed")
}

// runIsolated converts a panic inside the sync closure into an error so one
// bad cycle cannot tear down the scheduler.
func runIsolated(ctx context.Context, syncFn SyncFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return syncFn(ctx)
}

// Handle sends commands to a running scheduler and reads its state. Safe to
// copy and share across goroutines.
type Handle struct {
	scheduler *Scheduler
}

func (h *Handle) send(cmd command) error {
	select {
	case <-h.scheduler.done:
		return ErrSchedulerStopped
	default:
	}
	select {
	case h.scheduler.commands <- cmd:
		return nil
	case <-h.scheduler.done:
		return ErrSchedulerStopped
	default:
		return ErrCommandQueueFull
	}
}

// SyncNow triggers an immediate sync.
func (h *Handle) SyncNow() error { return h.send(command{kind: cmdSyncNow}) }

// Refresh triggers a sync; without force it is a no-op inside the cooldown.
func (h *Handle) Refresh(force bool) error {
	return h.send(command{kind: cmdRefresh, force: force})
}

// Pause stops sync invocations; commands are still processed.
func (h *Handle) Pause() error { return h.send(command{kind: cmdPause}) }

// Resume re-enables sync invocations.
func (h *Handle) Resume() error { return h.send(command{kind: cmdResume}) }

// Stop terminates the scheduler loop.
func (h *Handle) Stop() error { return h.send(command{kind: cmdStop}) }

// IsPaused reports the paused flag.
func (h *Handle) IsPaused() bool { return h.scheduler.StateSnapshot().Paused }

// State returns a snapshot of the scheduler state.
func (h *Handle) State() State { return h.scheduler.StateSnapshot() }
