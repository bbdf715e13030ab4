// Package notification fires desktop notifications ahead of meetings, with
// snooze and per-(event, lead) deduplication.
package notification

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"nextmeeting_server/core/domain"
	"nextmeeting_server/core/port/out"
)

// Config for the notification engine.
type Config struct {
	// LeadMinutes are the minutes before an event start at which a
	// notification fires.
	LeadMinutes []uint32
	// Timeout is how long a notification stays on screen.
	Timeout time.Duration
	// Enabled turns the engine on.
	Enabled bool
	// MaxSentHashes caps the dedup set before it is pruned.
	MaxSentHashes int
}

// DefaultConfig returns the standard lead times.
func DefaultConfig() Config {
	return Config{
		LeadMinutes:   []uint32{15, 5, 1},
		Timeout:       10 * time.Second,
		Enabled:       true,
		MaxSentHashes: 1000,
	}
}

// Engine checks meetings against lead times and dispatches notifications.
// It owns the snooze state; the server status response reads through it.
type Engine struct {
	mu       sync.RWMutex
	config   Config
	notifier out.Notifier
	log      zerolog.Logger

	sent         map[string]struct{}
	snoozedUntil *time.Time
}

// NewEngine creates a notification engine.
func NewEngine(config Config, notifier out.Notifier, log zerolog.Logger) *Engine {
	if config.MaxSentHashes <= 0 {
		config.MaxSentHashes = 1000
	}
	return &Engine{
		config:   config,
		notifier: notifier,
		log:      log.With().Str("component", "notify").Logger(),
		sent:     make(map[string]struct{}),
	}
}

// Hash identifies one (event, start, lead) notification.
func Hash(eventID string, start time.Time, leadMinutes uint32) string {
	h := sha256.New()
	h.Write([]byte(eventID))

	var ts [8]byte
	binary.LittleEndian.PutUint64(ts[:], uint64(start.Unix()))
	h.Write(ts[:])

	var lead [4]byte
	binary.LittleEndian.PutUint32(lead[:], leadMinutes)
	h.Write(lead[:])

	return hex.EncodeToString(h.Sum(nil))
}

// CheckAndNotify scans meetings at now and fires every due, unsent
// notification. Returns how many were sent. Suppressed wholesale while
// snoozed; all-day meetings never notify.
func (e *Engine) CheckAndNotify(ctx context.Context, meetings []domain.MeetingView, now time.Time) int {
	if !e.config.Enabled {
		return 0
	}
	if e.IsSnoozed(now) {
		e.log.Debug().Msg("notifications snoozed, skipping check")
		return 0
	}

	sent := 0
	for i := range meetings {
		m := &meetings[i]
		if m.IsAllDay {
			continue
		}
		for _, lead := range e.config.LeadMinutes {
			notifyAt := m.StartLocal.Add(-time.Duration(lead) * time.Minute)
			// Window is [start - lead, start).
			if now.Before(notifyAt) || !now.Before(m.StartLocal) {
				continue
			}

			hash := Hash(m.ID, m.StartLocal, lead)
			e.mu.Lock()
			_, already := e.sent[hash]
			e.mu.Unlock()
			if already {
				continue
			}

			if e.send(ctx, m, lead) {
				e.mu.Lock()
				e.sent[hash] = struct{}{}
				e.mu.Unlock()
				sent++
			}
		}
	}
	return sent
}

func (e *Engine) send(ctx context.Context, m *domain.MeetingView, lead uint32) bool {
	var title string
	switch {
	case lead == 0:
		title = fmt.Sprintf("Meeting starting now: %s", m.Title)
	case lead == 1:
		title = fmt.Sprintf("Meeting in 1 minute: %s", m.Title)
	default:
		title = fmt.Sprintf("Meeting in %d minutes: %s", lead, m.Title)
	}

	n := out.Notification{
		Title:   title,
		Body:    fmt.Sprintf("Starts at %s", m.StartLocal.Format("15:04")),
		Urgency: out.UrgencyForLead(lead),
		Timeout: e.config.Timeout,
	}

	if err := e.notifier.Notify(ctx, n); err != nil {
		e.log.Error().Err(err).Str("title", m.Title).Msg("failed to send notification")
		return false
	}
	e.log.Info().Str("title", m.Title).Uint32("lead_minutes", lead).Msg("notification sent")
	return true
}

// Snooze suppresses notifications for minutes from now. Zero clears it.
func (e *Engine) Snooze(minutes uint32, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if minutes == 0 {
		e.snoozedUntil = nil
		e.log.Info().Msg("snooze cleared")
		return
	}
	until := now.Add(time.Duration(minutes) * time.Minute)
	e.snoozedUntil = &until
	e.log.Info().Time("until", until).Uint32("minutes", minutes).Msg("notifications snoozed")
}

// IsSnoozed reports whether the snooze is active at now.
func (e *Engine) IsSnoozed(now time.Time) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snoozedUntil != nil && now.Before(*e.snoozedUntil)
}

// SnoozedUntil returns the snooze deadline, nil when inactive or elapsed.
func (e *Engine) SnoozedUntil() *time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.snoozedUntil == nil || !time.Now().Before(*e.snoozedUntil) {
		return nil
	}
	until := *e.snoozedUntil
	return &until
}

// Cleanup prunes the sent-set once it exceeds the configured bound.
// Meetings still inside their window will re-hash and fire again.
func (e *Engine) Cleanup() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.sent) > e.config.MaxSentHashes {
		e.log.Debug().Int("size", len(e.sent)).Msg("clearing notification dedup set")
		e.sent = make(map[string]struct{})
	}
}

// SentCount returns the dedup set size.
func (e *Engine) SentCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.sent)
}
