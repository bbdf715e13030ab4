// Package out defines outbound ports (driven ports) for the daemon.
package out

import (
	"context"
	"time"

	"nextmeeting_server/core/domain"
	"nextmeeting_server/pkg/apperr"
)

// =============================================================================
// Calendar Provider Port (Google Calendar, CalDAV)
// =============================================================================

// DefaultPollInterval is the sync interval a provider suggests unless it
// knows better.
const DefaultPollInterval = 60 * time.Second

// ErrMutationUnsupported is returned by providers that cannot mutate events.
var ErrMutationUnsupported = apperr.BadRequest("event mutation is not supported by this provider")

// CalendarProvider is the capability contract every calendar backend
// implements. Error and mock providers are first-class implementations.
type CalendarProvider interface {
	// Name returns the stable identifier (e.g. "google:work", "caldav") used
	// as cache key prefix and status label.
	Name() string

	// FetchEvents retrieves events for the options' time window, expanding
	// recurrences and honoring conditional tokens where the backend can.
	// Pagination is handled internally.
	FetchEvents(ctx context.Context, opts FetchOptions) (*FetchResult, error)

	// ListCalendars returns the calendars visible to the account.
	ListCalendars(ctx context.Context) ([]CalendarInfo, error)

	// Status reports current provider health.
	Status(ctx context.Context) ProviderStatus

	// RefreshAuth refreshes credentials. Idempotent; a no-op where the
	// backend has nothing to refresh.
	RefreshAuth(ctx context.Context) error

	// IsAuthenticated reports whether the provider holds usable credentials.
	IsAuthenticated() bool

	// MutateEvent applies action to an event. Providers without mutation
	// support return ErrMutationUnsupported.
	MutateEvent(ctx context.Context, calendarID, eventID string, action domain.MutationAction) error

	// SuggestedPollInterval hints how often the scheduler should sync.
	SuggestedPollInterval() time.Duration
}

// FetchOptions parameterizes a fetch.
type FetchOptions struct {
	// TimeWindow bounds the query. Zero value means the default window
	// (now - 12h to now + 48h).
	TimeWindow domain.TimeWindow
	// MaxResults caps the number of events across pages. Zero means no cap.
	MaxResults int
	// IfNoneMatch carries the ETag or sync token from the previous fetch.
	IfNoneMatch string
	// ExpandRecurring expands recurring events into instances.
	ExpandRecurring bool
	// CalendarIDs restricts the fetch to a calendar subset. Empty means all.
	CalendarIDs []string
}

// FetchResult is the outcome of a fetch.
type FetchResult struct {
	Events      []domain.RawEvent
	SyncToken   string
	NotModified bool
}

// NotModified builds the conditional-fetch shortcut result.
func NotModified() *FetchResult {
	return &FetchResult{NotModified: true}
}

// CalendarInfo describes one calendar.
type CalendarInfo struct {
	ID          string
	Name        string
	Description string
	IsPrimary   bool
	Timezone    string
	Color       string
}

// ProviderStatus reports provider health.
type ProviderStatus struct {
	Name            string
	IsAuthenticated bool
	LastSync        *time.Time
	Error           string
	CalendarCount   int
}

// =============================================================================
// Desktop Notification Port
// =============================================================================

// Urgency of a desktop notification, on platforms that support it.
type Urgency int

const (
	UrgencyLow Urgency = iota
	UrgencyNormal
	UrgencyCritical
)

// UrgencyForLead derives urgency from the remaining lead time in minutes.
func UrgencyForLead(leadMinutes uint32) Urgency {
	switch {
	case leadMinutes <= 1:
		return UrgencyCritical
	case leadMinutes <= 5:
		return UrgencyNormal
	default:
		return UrgencyLow
	}
}

// Notification is one desktop notification.
type Notification struct {
	Title   string
	Body    string
	Urgency Urgency
	Timeout time.Duration
}

// Notifier is the desktop notification capability the core invokes.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
