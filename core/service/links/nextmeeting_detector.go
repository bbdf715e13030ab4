// Package links extracts, unwraps, classifies, and normalizes meeting URLs
// found in calendar event text and conference data.
package links

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"nextmeeting_server/core/domain"
)

var (
	urlRegex = regexp.MustCompile(`https?://[^\s<>"'\)\]]+`)

	// Outlook SafeLinks wrap the original URL in a redirect through
	// safelinks.protection.outlook.com, encoded in the url query parameter.
	safelinkRegex = regexp.MustCompile(`https?://[^/]*safelinks\.protection\.outlook\.com/?\?[^?]*url=([^&]+)`)

	zoomRegex    = regexp.MustCompile(`https?://([^/]*\.)?zoom\.us/`)
	zoomGovRegex = regexp.MustCompile(`https?://([^/]*\.)?zoomgov\.com/`)
	meetRegex    = regexp.MustCompile(`https?://meet\.google\.com/`)
	teamsRegex   = regexp.MustCompile(`https?://teams\.(microsoft\.com|live\.com)/`)
	jitsiRegex   = regexp.MustCompile(`https?://meet\.jit\.si/`)
	webexRegex   = regexp.MustCompile(`https?://([^/]*\.)?webex\.com/`)
	chimeRegex   = regexp.MustCompile(`https?://([^/]*\.)?chime\.aws/`)
	youtubeRegex = regexp.MustCompile(`https?://(www\.)?(youtube\.com|youtu\.be)/`)
)

// Detector classifies and normalizes meeting URLs.
type Detector struct{}

// NewDetector creates a detector.
func NewDetector() *Detector { return &Detector{} }

// ExtractURLs returns the raw URLs found in text, unclassified.
func (d *Detector) ExtractURLs(text string) []string {
	return urlRegex.FindAllString(text, -1)
}

// Detect unwraps SafeLinks, classifies the service, and normalizes the URL.
func (d *Detector) Detect(rawURL string) domain.EventLink {
	unwrapped := UnwrapSafeLink(rawURL)

	switch {
	case zoomGovRegex.MatchString(unwrapped):
		return normalizeZoom(unwrapped, true)
	case zoomRegex.MatchString(unwrapped):
		return normalizeZoom(unwrapped, false)
	case meetRegex.MatchString(unwrapped):
		return normalizeFirstSegment(unwrapped, domain.LinkGoogleMeet, "https://meet.google.com/%s")
	case teamsRegex.MatchString(unwrapped):
		// Teams links are long and signed; keep intact.
		return domain.EventLink{Kind: domain.LinkTeams, URL: strings.TrimSpace(unwrapped)}
	case jitsiRegex.MatchString(unwrapped):
		return normalizeFirstSegment(unwrapped, domain.LinkJitsi, "https://meet.jit.si/%s")
	case webexRegex.MatchString(unwrapped):
		return domain.EventLink{Kind: domain.LinkWebex, URL: unwrapped}
	case chimeRegex.MatchString(unwrapped):
		return domain.EventLink{Kind: domain.LinkChime, URL: unwrapped}
	case youtubeRegex.MatchString(unwrapped):
		return domain.EventLink{Kind: domain.LinkYouTube, URL: unwrapped}
	default:
		return domain.EventLink{Kind: domain.LinkOther, URL: unwrapped}
	}
}

// ExtractFromText extracts, classifies, and deduplicates all links in text.
// Video-conference links sort first; insertion order is otherwise preserved.
func (d *Detector) ExtractFromText(text string) []domain.EventLink {
	seen := make(map[string]struct{})
	var found []domain.EventLink

	for _, raw := range d.ExtractURLs(text) {
		link := d.Detect(raw)
		if _, dup := seen[link.URL]; dup {
			continue
		}
		seen[link.URL] = struct{}{}
		found = append(found, link)
	}

	SortLinks(found)
	return found
}

// SortLinks orders video-conference links before the rest, stable otherwise.
func SortLinks(found []domain.EventLink) {
	sort.SliceStable(found, func(i, j int) bool {
		return found[i].Kind.IsVideoConference() && !found[j].Kind.IsVideoConference()
	})
}

// Dedup removes links whose normalized URL already appeared, preserving order.
func Dedup(found []domain.EventLink) []domain.EventLink {
	seen := make(map[string]struct{}, len(found))
	out := found[:0]
	for _, link := range found {
		if _, dup := seen[link.URL]; dup {
			continue
		}
		seen[link.URL] = struct{}{}
		out = append(out, link)
	}
	return out
}

// ClassifySolution maps a conference solution name to a link kind. An
// explicit solution name wins over URL sniffing; zoom is checked before meet
// ("Zoom Meeting" matches both) and jitsi before the generic "meet".
func ClassifySolution(solutionName, uri string) domain.LinkKind {
	name := strings.ToLower(solutionName)
	switch {
	case strings.Contains(name, "zoom"):
		if strings.Contains(name, "gov") || zoomGovRegex.MatchString(uri) {
			return domain.LinkZoomGov
		}
		return domain.LinkZoom
	case strings.Contains(name, "teams"):
		return domain.LinkTeams
	case strings.Contains(name, "jitsi"):
		return domain.LinkJitsi
	case strings.Contains(name, "webex"):
		return domain.LinkWebex
	case strings.Contains(name, "chime"):
		return domain.LinkChime
	case strings.Contains(name, "meet"):
		return domain.LinkGoogleMeet
	}
	return NewDetector().Detect(uri).Kind
}

// UnwrapSafeLink decodes the original URL out of an Outlook SafeLink.
// Non-SafeLink URLs pass through unchanged, which makes the unwrap idempotent.
func UnwrapSafeLink(rawURL string) string {
	matches := safelinkRegex.FindStringSubmatch(rawURL)
	if len(matches) < 2 {
		return rawURL
	}
	decoded, err := url.QueryUnescape(matches[1])
	if err != nil {
		return rawURL
	}
	return decoded
}

// normalizeZoom extracts the meeting id from /j/, /my/, /w/, /wc/ paths or a
// confno query parameter, the passcode from pwd or passcode, and emits the
// canonical https://{host}/j/{id}[?pwd=...] form with tracking params removed.
func normalizeZoom(rawURL string, gov bool) domain.EventLink {
	kind := domain.LinkZoom
	host := "zoom.us"
	if gov {
		kind = domain.LinkZoomGov
		host = "zoomgov.com"
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return domain.EventLink{Kind: kind, URL: rawURL}
	}

	var meetingID, passcode string
	for key, values := range parsed.Query() {
		if len(values) == 0 {
			continue
		}
		switch key {
		case "pwd", "passcode":
			passcode = values[0]
		case "confno":
			meetingID = values[0]
		}
	}

	segments := splitPath(parsed.Path)
	if len(segments) >= 2 && meetingID == "" {
		switch segments[0] {
		case "j", "my", "w", "wc":
			meetingID = segments[1]
		}
	}

	if meetingID == "" {
		// Keep the original when the meeting id cannot be recovered.
		return domain.EventLink{Kind: kind, URL: rawURL, Passcode: passcode}
	}

	normalized := fmt.Sprintf("https://%s/j/%s", host, meetingID)
	if passcode != "" {
		normalized += "?pwd=" + passcode
	}
	return domain.EventLink{Kind: kind, URL: normalized, MeetingID: meetingID, Passcode: passcode}
}

// normalizeFirstSegment keeps the first path segment as the meeting id and
// strips query parameters. Used for Meet codes and Jitsi room names.
func normalizeFirstSegment(rawURL string, kind domain.LinkKind, format string) domain.EventLink {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return domain.EventLink{Kind: kind, URL: rawURL}
	}

	segments := splitPath(parsed.Path)
	if len(segments) == 0 {
		return domain.EventLink{Kind: kind, URL: rawURL}
	}

	return domain.EventLink{
		Kind:      kind,
		URL:       fmt.Sprintf(format, segments[0]),
		MeetingID: segments[0],
	}
}

func splitPath(path string) []string {
	var segments []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}
