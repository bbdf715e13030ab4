package links

import (
	"strings"
	"testing"

	"nextmeeting_server/core/domain"
)

func TestUnwrapSafeLink(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"wrapped zoom link",
			"https://nam01.safelinks.protection.outlook.com/?url=https%3A%2F%2Fzoom.us%2Fj%2F123456789&data=abc123",
			"https://zoom.us/j/123456789",
		},
		{
			"wrapped meet link with params",
			"https://eur01.safelinks.protection.outlook.com/?url=https%3A%2F%2Fmeet.google.com%2Fabc-defg-hij%3Fauthuser%3D0&data=xyz&sdata=qrs",
			"https://meet.google.com/abc-defg-hij?authuser=0",
		},
		{
			"non-safelink unchanged",
			"https://zoom.us/j/123456789",
			"https://zoom.us/j/123456789",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UnwrapSafeLink(tt.in); got != tt.want {
				t.Errorf("UnwrapSafeLink(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestUnwrapSafeLinkIdempotent(t *testing.T) {
	wrapped := "https://nam01.safelinks.protection.outlook.com/?url=https%3A%2F%2Fzoom.us%2Fj%2F42"
	once := UnwrapSafeLink(wrapped)
	twice := UnwrapSafeLink(once)
	if once != twice {
		t.Errorf("unwrap not idempotent: %q != %q", once, twice)
	}
}

func TestDetectZoom(t *testing.T) {
	d := NewDetector()

	tests := []struct {
		name          string
		url           string
		wantKind      domain.LinkKind
		wantURL       string
		wantMeetingID string
		wantPasscode  string
	}{
		{
			"standard join link",
			"https://zoom.us/j/123456789",
			domain.LinkZoom, "https://zoom.us/j/123456789", "123456789", "",
		},
		{
			"with passcode",
			"https://zoom.us/j/123456789?pwd=abc123XYZ",
			domain.LinkZoom, "https://zoom.us/j/123456789?pwd=abc123XYZ", "123456789", "abc123XYZ",
		},
		{
			"join format with confno",
			"https://zoom.us/join?confno=987654321&pwd=secret",
			domain.LinkZoom, "https://zoom.us/j/987654321?pwd=secret", "987654321", "secret",
		},
		{
			"personal room",
			"https://zoom.us/my/johndoe",
			domain.LinkZoom, "https://zoom.us/j/johndoe", "johndoe", "",
		},
		{
			"subdomain with tracking params",
			"https://company.zoom.us/j/123456789?pwd=ABC&utm_source=x",
			domain.LinkZoom, "https://zoom.us/j/123456789?pwd=ABC", "123456789", "ABC",
		},
		{
			"zoomgov",
			"https://example.zoomgov.com/j/123456789",
			domain.LinkZoomGov, "https://zoomgov.com/j/123456789", "123456789", "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			link := d.Detect(tt.url)
			if link.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", link.Kind, tt.wantKind)
			}
			if link.URL != tt.wantURL {
				t.Errorf("URL = %q, want %q", link.URL, tt.wantURL)
			}
			if link.MeetingID != tt.wantMeetingID {
				t.Errorf("MeetingID = %q, want %q", link.MeetingID, tt.wantMeetingID)
			}
			if link.Passcode != tt.wantPasscode {
				t.Errorf("Passcode = %q, want %q", link.Passcode, tt.wantPasscode)
			}
		})
	}
}

func TestDetectMeet(t *testing.T) {
	d := NewDetector()

	link := d.Detect("https://meet.google.com/abc-defg-hij?authuser=0&hs=179")
	if link.Kind != domain.LinkGoogleMeet {
		t.Errorf("Kind = %q, want google_meet", link.Kind)
	}
	if link.URL != "https://meet.google.com/abc-defg-hij" {
		t.Errorf("URL = %q, want query stripped", link.URL)
	}
	if link.MeetingID != "abc-defg-hij" {
		t.Errorf("MeetingID = %q", link.MeetingID)
	}

	trailing := d.Detect("https://meet.google.com/xyz-uvwx-rst/")
	if trailing.MeetingID != "xyz-uvwx-rst" {
		t.Errorf("MeetingID = %q, want xyz-uvwx-rst", trailing.MeetingID)
	}
}

func TestDetectTeamsKeptIntact(t *testing.T) {
	d := NewDetector()
	url := "https://teams.microsoft.com/l/meetup-join/19%3ameeting_abc123@thread.v2/0?context=%7b%22Tid%22%3a%22xyz%22%7d"
	link := d.Detect(url)
	if link.Kind != domain.LinkTeams {
		t.Errorf("Kind = %q, want teams", link.Kind)
	}
	if link.URL != url {
		t.Errorf("Teams URL was rewritten: %q", link.URL)
	}

	if d.Detect("https://teams.live.com/meet/abc123").Kind != domain.LinkTeams {
		t.Error("teams.live.com should classify as teams")
	}
}

func TestDetectJitsi(t *testing.T) {
	d := NewDetector()
	link := d.Detect("https://meet.jit.si/TestRoom?config.startWithAudioMuted=true")
	if link.Kind != domain.LinkJitsi {
		t.Errorf("Kind = %q, want jitsi", link.Kind)
	}
	if link.URL != "https://meet.jit.si/TestRoom" {
		t.Errorf("URL = %q, want query stripped", link.URL)
	}
	if link.MeetingID != "TestRoom" {
		t.Errorf("MeetingID = %q", link.MeetingID)
	}
}

func TestDetectOther(t *testing.T) {
	d := NewDetector()

	link := d.Detect("not-a-valid-url")
	if link.Kind != domain.LinkOther || link.URL != "not-a-valid-url" {
		t.Errorf("malformed input = %+v", link)
	}

	if d.Detect("https://www.youtube.com/watch?v=abc").Kind != domain.LinkYouTube {
		t.Error("youtube should classify as youtube")
	}
}

func TestDetectIdempotent(t *testing.T) {
	d := NewDetector()
	inputs := []string{
		"https://company.zoom.us/j/123456789?pwd=ABC&utm_source=x",
		"https://meet.google.com/abc-defg-hij?authuser=0",
		"https://meet.jit.si/Room?x=1",
		"https://example.com/page",
	}
	for _, in := range inputs {
		once := d.Detect(in)
		twice := d.Detect(once.URL)
		if once.URL != twice.URL || once.Kind != twice.Kind {
			t.Errorf("normalize not idempotent for %q: %+v vs %+v", in, once, twice)
		}
	}
}

func TestExtractFromText(t *testing.T) {
	d := NewDetector()

	text := `
		Primary: https://meet.google.com/abc-defg-hij
		Backup: https://zoom.us/j/999888777
		Docs: https://docs.google.com/document/d/abc123
	`
	found := d.ExtractFromText(text)
	if len(found) != 3 {
		t.Fatalf("len = %d, want 3", len(found))
	}
	if !found[0].Kind.IsVideoConference() || !found[1].Kind.IsVideoConference() {
		t.Error("video conference links should sort first")
	}
	if found[2].Kind.IsVideoConference() {
		t.Error("docs link should sort last")
	}
}

func TestExtractFromTextDeduplicates(t *testing.T) {
	d := NewDetector()
	text := "Click here: https://zoom.us/j/123\nOr here: https://zoom.us/j/123"
	found := d.ExtractFromText(text)
	if len(found) != 1 {
		t.Errorf("len = %d, want 1", len(found))
	}
}

func TestExtractFromTextUnwrapsSafeLinks(t *testing.T) {
	d := NewDetector()
	text := "Join: https://nam01.safelinks.protection.outlook.com/?url=https%3A%2F%2Fzoom.us%2Fj%2F123456789"
	found := d.ExtractFromText(text)
	if len(found) != 1 {
		t.Fatalf("len = %d, want 1", len(found))
	}
	if found[0].Kind != domain.LinkZoom || !strings.Contains(found[0].URL, "zoom.us") {
		t.Errorf("link = %+v", found[0])
	}
}

func TestExtractFromTextEmpty(t *testing.T) {
	d := NewDetector()
	if found := d.ExtractFromText(""); len(found) != 0 {
		t.Errorf("empty text produced %d links", len(found))
	}
	if found := d.ExtractFromText("no urls in here"); len(found) != 0 {
		t.Errorf("plain text produced %d links", len(found))
	}
}

func TestClassifySolution(t *testing.T) {
	tests := []struct {
		name     string
		solution string
		uri      string
		want     domain.LinkKind
	}{
		// "Zoom Meeting" contains "meet": zoom must win.
		{"zoom beats meet substring", "Zoom Meeting", "https://zoom.us/j/1", domain.LinkZoom},
		{"jitsi beats meet substring", "Jitsi Meet", "https://meet.jit.si/x", domain.LinkJitsi},
		{"google meet", "Google Meet", "https://meet.google.com/abc", domain.LinkGoogleMeet},
		{"teams", "Microsoft Teams", "https://teams.microsoft.com/x", domain.LinkTeams},
		{"solution name wins over uri", "Zoom Meeting", "https://meet.google.com/abc", domain.LinkZoom},
		{"empty name falls back to uri", "", "https://meet.google.com/abc", domain.LinkGoogleMeet},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifySolution(tt.solution, tt.uri); got != tt.want {
				t.Errorf("ClassifySolution(%q, %q) = %q, want %q", tt.solution, tt.uri, got, tt.want)
			}
		})
	}
}
