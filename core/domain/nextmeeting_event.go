// Package domain holds the canonical calendar event model shared by
// providers, the sync pipeline, and the wire protocol.
package domain

import (
	"strings"
	"time"
)

// ResponseStatus is the user's reply to an event invitation.
type ResponseStatus string

const (
	ResponseAccepted    ResponseStatus = "accepted"
	ResponseDeclined    ResponseStatus = "declined"
	ResponseTentative   ResponseStatus = "tentative"
	ResponseNeedsAction ResponseStatus = "needs_action"
	ResponseUnknown     ResponseStatus = "unknown"
)

// ParseResponseStatus maps provider strings (Google style camelCase included)
// onto the closed set.
func ParseResponseStatus(s string) ResponseStatus {
	switch strings.ToLower(s) {
	case "accepted":
		return ResponseAccepted
	case "declined":
		return ResponseDeclined
	case "tentative":
		return ResponseTentative
	case "needsaction", "needs_action", "needs-action":
		return ResponseNeedsAction
	default:
		return ResponseUnknown
	}
}

// LinkKind classifies a meeting link by service.
type LinkKind string

const (
	LinkGoogleMeet LinkKind = "google_meet"
	LinkZoom       LinkKind = "zoom"
	LinkZoomGov    LinkKind = "zoom_gov"
	LinkTeams      LinkKind = "teams"
	LinkJitsi      LinkKind = "jitsi"
	LinkWebex      LinkKind = "webex"
	LinkChime      LinkKind = "chime"
	LinkYouTube    LinkKind = "youtube"
	// LinkCalendar marks a calendar deep link, not a conference.
	LinkCalendar LinkKind = "calendar"
	LinkOther    LinkKind = "other"
)

// IsVideoConference reports whether the kind joins a live meeting.
// Calendar deep links, plain URLs, and broadcast links do not.
func (k LinkKind) IsVideoConference() bool {
	switch k {
	case LinkCalendar, LinkOther, LinkYouTube:
		return false
	default:
		return true
	}
}

// DisplayName returns a human-readable service name.
func (k LinkKind) DisplayName() string {
	switch k {
	case LinkGoogleMeet:
		return "Google Meet"
	case LinkZoom:
		return "Zoom"
	case LinkZoomGov:
		return "Zoom (Gov)"
	case LinkTeams:
		return "Microsoft Teams"
	case LinkJitsi:
		return "Jitsi"
	case LinkWebex:
		return "Cisco Webex"
	case LinkChime:
		return "Amazon Chime"
	case LinkYouTube:
		return "YouTube"
	case LinkCalendar:
		return "Calendar"
	default:
		return "Link"
	}
}

// MutationAction is a change a client can request on a provider event.
type MutationAction string

const (
	MutationDecline MutationAction = "decline"
	MutationDelete  MutationAction = "delete"
)

// EventLink is a meeting link extracted from an event, with credentials
// where the service encodes them in the URL.
type EventLink struct {
	Kind      LinkKind `json:"kind"`
	URL       string   `json:"url"`
	MeetingID string   `json:"meeting_id,omitempty"`
	Passcode  string   `json:"passcode,omitempty"`
}

// Attendee is an event participant as reported by the provider.
type Attendee struct {
	Email          string         `json:"email"`
	DisplayName    string         `json:"display_name,omitempty"`
	Organizer      bool           `json:"organizer,omitempty"`
	Optional       bool           `json:"optional,omitempty"`
	Resource       bool           `json:"resource,omitempty"`
	IsSelf         bool           `json:"is_self,omitempty"`
	ResponseStatus ResponseStatus `json:"response_status"`
}

// ConferenceEntryPoint is one way to join the conference attached to an event.
type ConferenceEntryPoint struct {
	Type        string `json:"type"` // video, phone, sip, more
	URI         string `json:"uri"`
	MeetingCode string `json:"meeting_code,omitempty"`
	Passcode    string `json:"passcode,omitempty"`
}

// ConferenceData is the provider's structured conference block.
type ConferenceData struct {
	SolutionName string                 `json:"solution_name,omitempty"`
	EntryPoints  []ConferenceEntryPoint `json:"entry_points,omitempty"`
}

// RawEvent is the provider-faithful record before normalization.
// Invariant: Start <= End.
type RawEvent struct {
	ID                  string
	Start               EventTime
	End                 EventTime
	Summary             string
	Description         string
	Location            string
	CalendarID          string
	SourceTimezone      string // IANA identifier
	Status              string // provider status string, e.g. "confirmed", "cancelled"
	IsRecurringInstance bool
	RecurringEventID    string
	Attendees           []Attendee
	Conference          *ConferenceData
	DeepLink            string // URL to open the event in the provider UI
	ETag                string
	Created             time.Time
	Updated             time.Time
	Extra               map[string]string
}

// IsCancelled reports whether the provider marked the event cancelled.
func (r *RawEvent) IsCancelled() bool {
	return strings.EqualFold(r.Status, "cancelled")
}

// SelfResponseStatus returns the current user's reply, if the attendee list
// identifies them.
func (r *RawEvent) SelfResponseStatus() ResponseStatus {
	for _, a := range r.Attendees {
		if a.IsSelf {
			return a.ResponseStatus
		}
	}
	return ResponseUnknown
}

// OtherAttendeeCount counts non-self, non-resource attendees.
func (r *RawEvent) OtherAttendeeCount() int {
	n := 0
	for _, a := range r.Attendees {
		if !a.IsSelf && !a.Resource {
			n++
		}
	}
	return n
}

// NoTitle is the display title for events without a summary.
const NoTitle = "(No title)"

// NormalizedEvent is the canonical event view produced by the normalizer.
// Invariants: Links holds URL-unique entries with video-conference links
// ordered before calendar/other links.
type NormalizedEvent struct {
	ID                  string         `json:"id"`
	Title               string         `json:"title"`
	Start               EventTime      `json:"start"`
	End                 EventTime      `json:"end"`
	SourceTimezone      string         `json:"source_timezone,omitempty"`
	Links               []EventLink    `json:"links"`
	RawLocation         string         `json:"raw_location,omitempty"`
	RawDescription      string         `json:"raw_description,omitempty"`
	CalendarID          string         `json:"calendar_id"`
	CalendarURL         string         `json:"calendar_url,omitempty"`
	IsRecurringInstance bool           `json:"is_recurring_instance,omitempty"`
	UserResponseStatus  ResponseStatus `json:"user_response_status"`
	OtherAttendeeCount  int            `json:"other_attendee_count"`
	Attendees           []Attendee     `json:"attendees,omitempty"`
}

// IsAllDay reports whether the event is an all-day event.
func (e *NormalizedEvent) IsAllDay() bool { return e.Start.IsAllDay() }

// PrimaryLink returns the first video-conference link, or the first link.
func (e *NormalizedEvent) PrimaryLink() *EventLink {
	for i := range e.Links {
		if e.Links[i].Kind.IsVideoConference() {
			return &e.Links[i]
		}
	}
	if len(e.Links) > 0 {
		return &e.Links[0]
	}
	return nil
}

// SecondaryLinks returns every link except the primary.
func (e *NormalizedEvent) SecondaryLinks() []EventLink {
	primary := e.PrimaryLink()
	if primary == nil {
		return nil
	}
	var rest []EventLink
	for _, l := range e.Links {
		if l.URL != primary.URL {
			rest = append(rest, l)
		}
	}
	return rest
}

// HasVideoLink reports whether any link is a video conference.
func (e *NormalizedEvent) HasVideoLink() bool {
	for _, l := range e.Links {
		if l.Kind.IsVideoConference() {
			return true
		}
	}
	return false
}

// IsOngoingAt reports whether start <= now < end in UTC.
func (e *NormalizedEvent) IsOngoingAt(now time.Time) bool {
	now = now.UTC()
	return !e.Start.UTC().After(now) && now.Before(e.End.UTC())
}

// DurationMinutes returns the event length in minutes.
func (e *NormalizedEvent) DurationMinutes() int {
	return int(e.End.UTC().Sub(e.Start.UTC()) / time.Minute)
}
