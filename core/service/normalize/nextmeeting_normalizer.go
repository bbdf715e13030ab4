// Package normalize turns provider-faithful raw events into the canonical
// normalized view served to clients.
package normalize

import (
	"nextmeeting_server/core/domain"
	"nextmeeting_server/core/service/links"
)

// Normalizer transforms raw events into normalized events.
type Normalizer struct {
	detector *links.Detector
}

// New creates a normalizer.
func New() *Normalizer {
	return &Normalizer{detector: links.NewDetector()}
}

// NormalizeAll normalizes a batch, dropping cancelled events. Surviving event
// IDs are always a subset of the input IDs.
func (n *Normalizer) NormalizeAll(raw []domain.RawEvent) []domain.NormalizedEvent {
	out := make([]domain.NormalizedEvent, 0, len(raw))
	for i := range raw {
		if event, ok := n.Normalize(&raw[i]); ok {
			out = append(out, event)
		}
	}
	return out
}

// Normalize transforms one raw event. Returns false for cancelled events.
func (n *Normalizer) Normalize(raw *domain.RawEvent) (domain.NormalizedEvent, bool) {
	if raw.IsCancelled() {
		return domain.NormalizedEvent{}, false
	}

	title := raw.Summary
	if title == "" {
		title = domain.NoTitle
	}

	return domain.NormalizedEvent{
		ID:                  raw.ID,
		Title:               title,
		Start:               raw.Start,
		End:                 raw.End,
		SourceTimezone:      raw.SourceTimezone,
		Links:               n.aggregateLinks(raw),
		RawLocation:         raw.Location,
		RawDescription:      raw.Description,
		CalendarID:          raw.CalendarID,
		CalendarURL:         raw.DeepLink,
		IsRecurringInstance: raw.IsRecurringInstance,
		UserResponseStatus:  raw.SelfResponseStatus(),
		OtherAttendeeCount:  raw.OtherAttendeeCount(),
		Attendees:           raw.Attendees,
	}, true
}

// aggregateLinks fuses link sources in priority order: structured conference
// video entry points, then URLs from the location, then the description. The
// calendar deep link is appended only when no video link was found.
func (n *Normalizer) aggregateLinks(raw *domain.RawEvent) []domain.EventLink {
	var found []domain.EventLink

	if raw.Conference != nil {
		for _, ep := range raw.Conference.EntryPoints {
			if ep.Type != "video" || ep.URI == "" {
				continue
			}
			link := n.detector.Detect(ep.URI)
			link.Kind = links.ClassifySolution(raw.Conference.SolutionName, ep.URI)
			if link.MeetingID == "" {
				link.MeetingID = ep.MeetingCode
			}
			if link.Passcode == "" {
				link.Passcode = ep.Passcode
			}
			found = append(found, link)
		}
	}

	found = append(found, n.detector.ExtractFromText(raw.Location)...)
	found = append(found, n.detector.ExtractFromText(raw.Description)...)

	hasVideo := false
	for _, l := range found {
		if l.Kind.IsVideoConference() {
			hasVideo = true
			break
		}
	}
	if !hasVideo && raw.DeepLink != "" {
		found = append(found, domain.EventLink{Kind: domain.LinkCalendar, URL: raw.DeepLink})
	}

	found = links.Dedup(found)
	links.SortLinks(found)
	return found
}
