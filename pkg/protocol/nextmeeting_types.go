package protocol

import (
	"time"

	"nextmeeting_server/core/domain"
)

// ProtocolVersion is the wire protocol version. Receivers log a warning on
// mismatch but keep parsing; minor shape additions must remain readable.
const ProtocolVersion = "1"

// Envelope wraps every wire message with versioning and request correlation.
type Envelope[T any] struct {
	ProtocolVersion string `json:"protocol_version"`
	RequestID       string `json:"request_id"`
	Payload         T      `json:"payload"`
}

// NewEnvelope creates an envelope carrying the current protocol version.
func NewEnvelope[T any](requestID string, payload T) Envelope[T] {
	return Envelope[T]{
		ProtocolVersion: ProtocolVersion,
		RequestID:       requestID,
		Payload:         payload,
	}
}

// IsCompatible reports whether the envelope carries the supported version.
func (e *Envelope[T]) IsCompatible() bool {
	return e.ProtocolVersion == ProtocolVersion
}

// Request type tags.
const (
	RequestPing        = "ping"
	RequestStatus      = "status"
	RequestGetMeetings = "get_meetings"
	RequestRefresh     = "refresh"
	RequestSnooze      = "snooze"
	RequestMutateEvent = "mutate_event"
	RequestShutdown    = "shutdown"
)

// MutationAction mutates a provider event.
type MutationAction = domain.MutationAction

const (
	MutationDecline = domain.MutationDecline
	MutationDelete  = domain.MutationDelete
)

// Request is a client request. Type selects the variant; only that variant's
// fields are meaningful.
type Request struct {
	Type string `json:"type"`

	// get_meetings
	Filter *MeetingsFilter `json:"filter,omitempty"`

	// refresh
	Force bool `json:"force,omitempty"`

	// snooze
	Minutes uint32 `json:"minutes,omitempty"`

	// mutate_event
	Provider   string         `json:"provider,omitempty"`
	CalendarID string         `json:"calendar_id,omitempty"`
	EventID    string         `json:"event_id,omitempty"`
	Action     MutationAction `json:"action,omitempty"`
}

// NewPing creates a ping request.
func NewPing() Request { return Request{Type: RequestPing} }

// NewStatus creates a status request.
func NewStatus() Request { return Request{Type: RequestStatus} }

// NewGetMeetings creates a get_meetings request with an optional filter.
func NewGetMeetings(filter *MeetingsFilter) Request {
	return Request{Type: RequestGetMeetings, Filter: filter}
}

// NewRefresh creates a refresh request.
func NewRefresh(force bool) Request { return Request{Type: RequestRefresh, Force: force} }

// NewSnooze creates a snooze request. Zero minutes clears the snooze.
func NewSnooze(minutes uint32) Request { return Request{Type: RequestSnooze, Minutes: minutes} }

// NewMutateEvent creates a mutate_event request.
func NewMutateEvent(provider, calendarID, eventID string, action MutationAction) Request {
	return Request{
		Type:       RequestMutateEvent,
		Provider:   provider,
		CalendarID: calendarID,
		EventID:    eventID,
		Action:     action,
	}
}

// NewShutdown creates a shutdown request.
func NewShutdown() Request { return Request{Type: RequestShutdown} }

// MeetingsFilter is a declarative predicate bundle evaluated server-side.
// Application order: ended non-all-day meetings are dropped first, then the
// predicates, then privacy rewriting, then Limit.
type MeetingsFilter struct {
	TodayOnly        bool     `json:"today_only,omitempty"`
	Limit            int      `json:"limit,omitempty"`
	SkipAllDay       bool     `json:"skip_all_day,omitempty"`
	IncludeTitles    []string `json:"include_titles,omitempty"`
	ExcludeTitles    []string `json:"exclude_titles,omitempty"`
	IncludeCalendars []string `json:"include_calendars,omitempty"`
	ExcludeCalendars []string `json:"exclude_calendars,omitempty"`
	WithinMinutes    int      `json:"within_minutes,omitempty"`
	WorkHours        string   `json:"work_hours,omitempty"` // "HH:MM-HH:MM"
	OnlyWithLink     bool     `json:"only_with_link,omitempty"`
	Privacy          bool     `json:"privacy,omitempty"`
	PrivacyTitle     string   `json:"privacy_title,omitempty"`
	SkipDeclined     bool     `json:"skip_declined,omitempty"`
	SkipTentative    bool     `json:"skip_tentative,omitempty"`
	SkipPending      bool     `json:"skip_pending,omitempty"`
	SkipWithoutGuest bool     `json:"skip_without_guests,omitempty"`
}

// Response type tags.
const (
	ResponsePong     = "pong"
	ResponseOk       = "ok"
	ResponseStatus   = "status"
	ResponseMeetings = "meetings"
	ResponseError    = "error"
)

// Response is a server response. Type selects the variant.
type Response struct {
	Type string `json:"type"`

	// meetings
	Meetings []domain.MeetingView `json:"meetings,omitempty"`

	// status
	UptimeSeconds uint64           `json:"uptime_seconds,omitempty"`
	LastSync      *time.Time       `json:"last_sync,omitempty"`
	Providers     []ProviderStatus `json:"providers,omitempty"`
	SnoozedUntil  *time.Time       `json:"snoozed_until,omitempty"`

	// error
	Code    ErrorCode `json:"code,omitempty"`
	Message string    `json:"message,omitempty"`
}

// NewPong creates a pong response.
func NewPong() Response { return Response{Type: ResponsePong} }

// NewOk creates a generic success response.
func NewOk() Response { return Response{Type: ResponseOk} }

// NewMeetings creates a meetings response.
func NewMeetings(meetings []domain.MeetingView) Response {
	if meetings == nil {
		meetings = []domain.MeetingView{}
	}
	return Response{Type: ResponseMeetings, Meetings: meetings}
}

// NewStatusResponse creates a status response.
func NewStatusResponse(uptime time.Duration, lastSync, snoozedUntil *time.Time, providers []ProviderStatus) Response {
	return Response{
		Type:          ResponseStatus,
		UptimeSeconds: uint64(uptime.Seconds()),
		LastSync:      lastSync,
		Providers:     providers,
		SnoozedUntil:  snoozedUntil,
	}
}

// NewError creates an error response.
func NewError(code ErrorCode, message string) Response {
	return Response{Type: ResponseError, Code: code, Message: message}
}

// IsSuccess reports whether the response is not an error.
func (r *Response) IsSuccess() bool { return r.Type != ResponseError }

// ProviderStatus is per-provider health surfaced in the status response.
type ProviderStatus struct {
	Name       string     `json:"name"`
	Healthy    bool       `json:"healthy"`
	LastFetch  *time.Time `json:"last_fetch,omitempty"`
	Error      string     `json:"error,omitempty"`
	EventCount int        `json:"event_count"`
}

// ErrorCode is the closed protocol error set.
type ErrorCode string

const (
	ErrInternalError        ErrorCode = "internal_error"
	ErrInvalidRequest       ErrorCode = "invalid_request"
	ErrTimeout              ErrorCode = "timeout"
	ErrAuthenticationFailed ErrorCode = "authentication_failed"
	ErrProviderError        ErrorCode = "provider_error"
	ErrRateLimited          ErrorCode = "rate_limited"
	ErrNotFound             ErrorCode = "not_found"
	ErrShuttingDown         ErrorCode = "shutting_down"
)

// IsRetryable reports whether a client may usefully retry the request.
func (c ErrorCode) IsRetryable() bool {
	switch c {
	case ErrTimeout, ErrProviderError, ErrRateLimited:
		return true
	default:
		return false
	}
}

// Description returns a human-readable summary for the code.
func (c ErrorCode) Description() string {
	switch c {
	case ErrInternalError:
		return "An internal error occurred"
	case ErrInvalidRequest:
		return "The request was invalid"
	case ErrTimeout:
		return "The request timed out"
	case ErrAuthenticationFailed:
		return "Authentication failed"
	case ErrProviderError:
		return "Calendar provider returned an error"
	case ErrRateLimited:
		return "Rate limited by calendar provider"
	case ErrNotFound:
		return "Requested resource not found"
	case ErrShuttingDown:
		return "Server is shutting down"
	default:
		return "Unknown error"
	}
}
