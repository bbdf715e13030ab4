// Package cache provides the per-provider TTL cache for meeting views.
// Expiry runs on the monotonic clock; updated-at is wall-clock for display.
package cache

import (
	"sort"
	"time"

	"nextmeeting_server/core/domain"
)

// Entry holds one provider's cached meetings.
type Entry struct {
	Meetings  []domain.MeetingView
	UpdatedAt time.Time
	ETag      string
	// expiresAt keeps the monotonic reading of time.Now().Add(ttl).
	expiresAt time.Time
}

// IsExpired reports whether the entry passed its TTL.
func (e *Entry) IsExpired() bool {
	return !time.Now().Before(e.expiresAt)
}

// TimeUntilExpiry returns the remaining TTL, zero when expired.
func (e *Entry) TimeUntilExpiry() time.Duration {
	remaining := time.Until(e.expiresAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// EventCache stores meetings per provider-defined key (typically the
// provider name or provider:calendar-id). It is owned by the sync task and
// not shared, so it carries no lock of its own.
type EventCache struct {
	defaultTTL time.Duration
	entries    map[string]*Entry
}

// New creates a cache with the given default TTL.
func New(defaultTTL time.Duration) *EventCache {
	return &EventCache{
		defaultTTL: defaultTTL,
		entries:    make(map[string]*Entry),
	}
}

// DefaultTTL returns the default TTL.
func (c *EventCache) DefaultTTL() time.Duration { return c.defaultTTL }

// Get returns the entry for key even when expired.
func (c *EventCache) Get(key string) *Entry {
	return c.entries[key]
}

// GetValid returns the entry only when it has not expired.
func (c *EventCache) GetValid(key string) *Entry {
	entry := c.entries[key]
	if entry == nil || entry.IsExpired() {
		return nil
	}
	return entry
}

// IsValid reports whether key exists and has not expired.
func (c *EventCache) IsValid(key string) bool {
	return c.GetValid(key) != nil
}

// Insert replaces or creates the entry with the default TTL. The previous
// ETag, if any, is discarded.
func (c *EventCache) Insert(key string, meetings []domain.MeetingView) {
	c.InsertWithTTL(key, meetings, c.defaultTTL)
}

// InsertWithTTL replaces or creates the entry with a specific TTL.
func (c *EventCache) InsertWithTTL(key string, meetings []domain.MeetingView, ttl time.Duration) {
	c.entries[key] = &Entry{
		Meetings:  meetings,
		UpdatedAt: time.Now(),
		expiresAt: time.Now().Add(ttl),
	}
}

// InsertWithETag replaces or creates the entry, recording the ETag for the
// next conditional fetch.
func (c *EventCache) InsertWithETag(key string, meetings []domain.MeetingView, etag string) {
	c.entries[key] = &Entry{
		Meetings:  meetings,
		UpdatedAt: time.Now(),
		ETag:      etag,
		expiresAt: time.Now().Add(c.defaultTTL),
	}
}

// Remove deletes and returns the entry for key.
func (c *EventCache) Remove(key string) *Entry {
	entry := c.entries[key]
	delete(c.entries, key)
	return entry
}

// Clear drops every entry.
func (c *EventCache) Clear() {
	c.entries = make(map[string]*Entry)
}

// EvictExpired removes expired entries and returns how many were dropped.
func (c *EventCache) EvictExpired() int {
	evicted := 0
	for key, entry := range c.entries {
		if entry.IsExpired() {
			delete(c.entries, key)
			evicted++
		}
	}
	return evicted
}

// ExtendTTL pushes out the expiry of key without touching its data.
func (c *EventCache) ExtendTTL(key string, ttl time.Duration) {
	if entry := c.entries[key]; entry != nil {
		entry.expiresAt = time.Now().Add(ttl)
	}
}

// GetETag returns the recorded ETag for key, empty when absent or expired.
func (c *EventCache) GetETag(key string) string {
	if entry := c.GetValid(key); entry != nil {
		return entry.ETag
	}
	return ""
}

// AllMeetings merges every valid entry's meetings, ascending by start time.
func (c *EventCache) AllMeetings() []domain.MeetingView {
	var meetings []domain.MeetingView
	for _, entry := range c.entries {
		if entry.IsExpired() {
			continue
		}
		meetings = append(meetings, entry.Meetings...)
	}
	sort.SliceStable(meetings, func(i, j int) bool {
		return meetings[i].StartLocal.Before(meetings[j].StartLocal)
	})
	return meetings
}

// NextExpiry returns the shortest remaining TTL across valid entries.
func (c *EventCache) NextExpiry() (time.Duration, bool) {
	var min time.Duration
	found := false
	for _, entry := range c.entries {
		if entry.IsExpired() {
			continue
		}
		remaining := entry.TimeUntilExpiry()
		if !found || remaining < min {
			min = remaining
			found = true
		}
	}
	return min, found
}

// Len returns the number of entries, expired included.
func (c *EventCache) Len() int { return len(c.entries) }

// Keys returns all cache keys.
func (c *EventCache) Keys() []string {
	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	return keys
}
