package google

import (
	"time"

	"google.golang.org/api/calendar/v3"

	"nextmeeting_server/core/domain"
)

// convertEvent maps a calendar/v3 event onto the provider-faithful record.
func convertEvent(event *calendar.Event, calendarID string) domain.RawEvent {
	raw := domain.RawEvent{
		ID:                  event.Id,
		Summary:             event.Summary,
		Description:         event.Description,
		Location:            event.Location,
		CalendarID:          calendarID,
		Status:              event.Status,
		DeepLink:            event.HtmlLink,
		ETag:                event.Etag,
		IsRecurringInstance: event.RecurringEventId != "",
		RecurringEventID:    event.RecurringEventId,
	}

	raw.Start, raw.SourceTimezone = convertEventTime(event.Start)
	raw.End, _ = convertEventTime(event.End)
	if raw.End.IsZero() {
		raw.End = raw.Start
	}

	if event.Created != "" {
		if t, err := time.Parse(time.RFC3339, event.Created); err == nil {
			raw.Created = t
		}
	}
	if event.Updated != "" {
		if t, err := time.Parse(time.RFC3339, event.Updated); err == nil {
			raw.Updated = t
		}
	}

	for _, attendee := range event.Attendees {
		raw.Attendees = append(raw.Attendees, domain.Attendee{
			Email:          attendee.Email,
			DisplayName:    attendee.DisplayName,
			Organizer:      attendee.Organizer,
			Optional:       attendee.Optional,
			Resource:       attendee.Resource,
			IsSelf:         attendee.Self,
			ResponseStatus: domain.ParseResponseStatus(attendee.ResponseStatus),
		})
	}

	if event.ConferenceData != nil {
		conference := &domain.ConferenceData{}
		if event.ConferenceData.ConferenceSolution != nil {
			conference.SolutionName = event.ConferenceData.ConferenceSolution.Name
		}
		for _, ep := range event.ConferenceData.EntryPoints {
			passcode := ep.Passcode
			if passcode == "" {
				passcode = ep.Password
			}
			conference.EntryPoints = append(conference.EntryPoints, domain.ConferenceEntryPoint{
				Type:        ep.EntryPointType,
				URI:         ep.Uri,
				MeetingCode: ep.MeetingCode,
				Passcode:    passcode,
			})
		}
		raw.Conference = conference
	}

	return raw
}

// convertEventTime maps an EventDateTime: a DateTime string becomes a UTC
// instant, a bare Date an all-day value.
func convertEventTime(edt *calendar.EventDateTime) (domain.EventTime, string) {
	if edt == nil {
		return domain.EventTime{}, ""
	}
	if edt.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, edt.DateTime); err == nil {
			return domain.NewDateTime(t), edt.TimeZone
		}
		return domain.EventTime{}, edt.TimeZone
	}
	if edt.Date != "" {
		if t, err := time.Parse("2006-01-02", edt.Date); err == nil {
			return domain.NewAllDay(t), edt.TimeZone
		}
	}
	return domain.EventTime{}, edt.TimeZone
}
