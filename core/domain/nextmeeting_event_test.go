package domain

import (
	"testing"
	"time"
)

func TestLinkKindIsVideoConference(t *testing.T) {
	video := []LinkKind{LinkGoogleMeet, LinkZoom, LinkZoomGov, LinkTeams, LinkJitsi, LinkWebex, LinkChime}
	for _, kind := range video {
		if !kind.IsVideoConference() {
			t.Errorf("%s should be a video conference", kind)
		}
	}
	for _, kind := range []LinkKind{LinkCalendar, LinkOther, LinkYouTube} {
		if kind.IsVideoConference() {
			t.Errorf("%s should not be a video conference", kind)
		}
	}
}

func TestParseResponseStatus(t *testing.T) {
	tests := []struct {
		in   string
		want ResponseStatus
	}{
		{"accepted", ResponseAccepted},
		{"ACCEPTED", ResponseAccepted},
		{"declined", ResponseDeclined},
		{"tentative", ResponseTentative},
		{"needsAction", ResponseNeedsAction},
		{"NEEDS-ACTION", ResponseNeedsAction},
		{"needs_action", ResponseNeedsAction},
		{"", ResponseUnknown},
		{"whatever", ResponseUnknown},
	}
	for _, tt := range tests {
		if got := ParseResponseStatus(tt.in); got != tt.want {
			t.Errorf("ParseResponseStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func newEvent(id string) NormalizedEvent {
	start := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	return NormalizedEvent{
		ID:         id,
		Title:      "Event",
		Start:      NewDateTime(start),
		End:        NewDateTime(start.Add(time.Hour)),
		CalendarID: "primary",
	}
}

func TestNormalizedEventPrimaryLink(t *testing.T) {
	event := newEvent("1")
	if event.PrimaryLink() != nil {
		t.Error("event without links has no primary link")
	}

	event.Links = []EventLink{
		{Kind: LinkCalendar, URL: "https://cal.example.com/e/1"},
		{Kind: LinkZoom, URL: "https://zoom.us/j/1"},
	}
	primary := event.PrimaryLink()
	if primary == nil || primary.Kind != LinkZoom {
		t.Errorf("primary = %+v, want the video link", primary)
	}

	secondary := event.SecondaryLinks()
	if len(secondary) != 1 || secondary[0].Kind != LinkCalendar {
		t.Errorf("secondary = %+v", secondary)
	}

	// Only non-video links: the first one is primary.
	event.Links = []EventLink{{Kind: LinkOther, URL: "https://example.com"}}
	primary = event.PrimaryLink()
	if primary == nil || primary.Kind != LinkOther {
		t.Errorf("primary = %+v, want the first link", primary)
	}
}

func TestNormalizedEventOngoing(t *testing.T) {
	event := newEvent("1")
	start := event.Start.UTC()

	if event.IsOngoingAt(start.Add(-time.Minute)) {
		t.Error("not ongoing before start")
	}
	if !event.IsOngoingAt(start) {
		t.Error("ongoing at start (inclusive)")
	}
	if !event.IsOngoingAt(start.Add(30 * time.Minute)) {
		t.Error("ongoing mid-meeting")
	}
	if event.IsOngoingAt(start.Add(time.Hour)) {
		t.Error("end is exclusive")
	}
}

func TestNormalizedEventDuration(t *testing.T) {
	event := newEvent("1")
	if got := event.DurationMinutes(); got != 60 {
		t.Errorf("DurationMinutes() = %d, want 60", got)
	}
}

func TestNewMeetingView(t *testing.T) {
	event := newEvent("1")
	event.Links = []EventLink{
		{Kind: LinkZoom, URL: "https://zoom.us/j/1"},
		{Kind: LinkOther, URL: "https://docs.example.com"},
	}
	event.OtherAttendeeCount = 2
	event.UserResponseStatus = ResponseAccepted

	now := event.Start.UTC().Add(30 * time.Minute)
	view := NewMeetingView(&event, "google:work", now, time.UTC)

	if view.ProviderName != "google:work" || view.ID != "1" {
		t.Errorf("view = %+v", view)
	}
	if !view.IsOngoing {
		t.Error("view should be ongoing at now")
	}
	if view.PrimaryLink == nil || view.PrimaryLink.Kind != LinkZoom {
		t.Errorf("PrimaryLink = %+v", view.PrimaryLink)
	}
	if len(view.SecondaryLinks) != 1 {
		t.Errorf("SecondaryLinks = %+v", view.SecondaryLinks)
	}
	if view.OtherAttendeeCount != 2 || view.UserResponseStatus != ResponseAccepted {
		t.Errorf("view status fields = %+v", view)
	}
}

func TestMeetingViewMinutesUntilStart(t *testing.T) {
	event := newEvent("1")
	view := NewMeetingView(&event, "p", time.Now().UTC(), time.UTC)

	at := view.StartLocal.Add(-10 * time.Minute)
	if got := view.MinutesUntilStart(at); got != 10 {
		t.Errorf("MinutesUntilStart() = %d, want 10", got)
	}
	if view.HasEnded(view.EndLocal.Add(-time.Second)) {
		t.Error("not ended just before end")
	}
	if !view.HasEnded(view.EndLocal) {
		t.Error("ended exactly at end")
	}
}

func TestRawEventHelpers(t *testing.T) {
	raw := RawEvent{
		Status: "Cancelled",
		Attendees: []Attendee{
			{Email: "me@x.com", IsSelf: true, ResponseStatus: ResponseDeclined},
			{Email: "a@x.com", ResponseStatus: ResponseAccepted},
			{Email: "room@x.com", Resource: true},
		},
	}
	if !raw.IsCancelled() {
		t.Error("case-insensitive cancelled check failed")
	}
	if raw.SelfResponseStatus() != ResponseDeclined {
		t.Errorf("SelfResponseStatus() = %q", raw.SelfResponseStatus())
	}
	if raw.OtherAttendeeCount() != 1 {
		t.Errorf("OtherAttendeeCount() = %d, want 1", raw.OtherAttendeeCount())
	}
}
