package domain

import "time"

// MeetingView is the display-time projection of a normalized event that the
// daemon serves to clients. Times are in the user's local zone.
type MeetingView struct {
	ID                 string         `json:"id"`
	ProviderName       string         `json:"provider_name"`
	Title              string         `json:"title"`
	StartLocal         time.Time      `json:"start_local"`
	EndLocal           time.Time      `json:"end_local"`
	IsAllDay           bool           `json:"is_all_day"`
	IsOngoing          bool           `json:"is_ongoing"`
	PrimaryLink        *EventLink     `json:"primary_link,omitempty"`
	SecondaryLinks     []EventLink    `json:"secondary_links,omitempty"`
	CalendarURL        string         `json:"calendar_url,omitempty"`
	CalendarID         string         `json:"calendar_id"`
	UserResponseStatus ResponseStatus `json:"user_response_status"`
	OtherAttendeeCount int            `json:"other_attendee_count"`
	Location           string         `json:"location,omitempty"`
	Description        string         `json:"description,omitempty"`
	Attendees          []Attendee     `json:"attendees,omitempty"`
}

// NewMeetingView projects a normalized event into loc at the given instant.
func NewMeetingView(event *NormalizedEvent, providerName string, now time.Time, loc *time.Location) MeetingView {
	view := MeetingView{
		ID:                 event.ID,
		ProviderName:       providerName,
		Title:              event.Title,
		StartLocal:         event.Start.In(loc),
		EndLocal:           event.End.In(loc),
		IsAllDay:           event.IsAllDay(),
		IsOngoing:          event.IsOngoingAt(now),
		SecondaryLinks:     event.SecondaryLinks(),
		CalendarURL:        event.CalendarURL,
		CalendarID:         event.CalendarID,
		UserResponseStatus: event.UserResponseStatus,
		OtherAttendeeCount: event.OtherAttendeeCount,
		Location:           event.RawLocation,
		Description:        event.RawDescription,
		Attendees:          event.Attendees,
	}
	if primary := event.PrimaryLink(); primary != nil {
		link := *primary
		view.PrimaryLink = &link
	}
	return view
}

// MinutesUntilStart returns whole minutes from now until the meeting starts.
// Negative once the meeting has started.
func (m *MeetingView) MinutesUntilStart(now time.Time) int {
	return int(m.StartLocal.Sub(now) / time.Minute)
}

// HasEnded reports whether the meeting is over at now.
func (m *MeetingView) HasEnded(now time.Time) bool {
	return !m.EndLocal.After(now)
}
