package caldav

import (
	"errors"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/teambition/rrule-go"

	"nextmeeting_server/core/domain"
)

// parseICS extracts RawEvents from one ICS payload. VEVENTs with
// status=cancelled are skipped. When expand is set, recurring events are
// expanded into instances overlapping [windowStart, windowEnd).
func parseICS(data, calendarID, selfEmail string, expand bool, windowStart, windowEnd time.Time) ([]domain.RawEvent, error) {
	cal, err := ical.NewDecoder(strings.NewReader(data)).Decode()
	if err != nil {
		return nil, err
	}

	var events []domain.RawEvent
	for _, comp := range cal.Children {
		if comp.Name != ical.CompEvent {
			continue
		}

		event, rruleText, ok := parseVEvent(comp, calendarID, selfEmail)
		if !ok {
			continue
		}

		if expand && rruleText != "" {
			events = append(events, expandRecurring(event, rruleText, exdates(comp), windowStart, windowEnd)...)
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

func parseVEvent(comp *ical.Component, calendarID, selfEmail string) (domain.RawEvent, string, bool) {
	event := domain.RawEvent{CalendarID: calendarID}

	uid := comp.Props.Get(ical.PropUID)
	if uid == nil {
		return event, "", false
	}
	event.ID = uid.Value

	if summary := comp.Props.Get(ical.PropSummary); summary != nil {
		event.Summary = summary.Value
	}
	if desc := comp.Props.Get(ical.PropDescription); desc != nil {
		event.Description = desc.Value
	}
	if location := comp.Props.Get(ical.PropLocation); location != nil {
		event.Location = location.Value
	}
	if status := comp.Props.Get(ical.PropStatus); status != nil {
		event.Status = status.Value
		if strings.EqualFold(status.Value, "cancelled") {
			return event, "", false
		}
	}
	if urlProp := comp.Props.Get(ical.PropURL); urlProp != nil {
		event.DeepLink = urlProp.Value
	}

	dtstart := comp.Props.Get(ical.PropDateTimeStart)
	if dtstart == nil {
		return event, "", false
	}
	start, allDay, err := parseICSTime(dtstart)
	if err != nil {
		return event, "", false
	}
	if allDay {
		event.Start = domain.NewAllDay(start)
	} else {
		event.Start = domain.NewDateTime(start)
	}
	if tzid := dtstart.Params.Get("TZID"); tzid != "" {
		event.SourceTimezone = tzid
	}

	end := start
	if dtend := comp.Props.Get(ical.PropDateTimeEnd); dtend != nil {
		if parsed, _, err := parseICSTime(dtend); err == nil {
			end = parsed
		}
	} else if durProp := comp.Props.Get(ical.PropDuration); durProp != nil {
		if dur, err := parseICSDuration(durProp.Value); err == nil {
			end = start.Add(dur)
		}
	} else if allDay {
		end = start.Add(24 * time.Hour)
	}
	if allDay {
		event.End = domain.NewAllDay(end)
	} else {
		event.End = domain.NewDateTime(end)
	}

	if recurrenceID := comp.Props.Get(ical.PropRecurrenceID); recurrenceID != nil {
		event.IsRecurringInstance = true
		event.RecurringEventID = event.ID
	}

	for _, prop := range comp.Props.Values(ical.PropAttendee) {
		event.Attendees = append(event.Attendees, parseAttendee(prop, selfEmail, false))
	}
	if organizer := comp.Props.Get(ical.PropOrganizer); organizer != nil {
		event.Attendees = append(event.Attendees, parseAttendee(*organizer, selfEmail, true))
	}

	var rruleText string
	if rruleProp := comp.Props.Get(ical.PropRecurrenceRule); rruleProp != nil {
		rruleText = rruleProp.Value
	}
	return event, rruleText, true
}

func parseAttendee(prop ical.Prop, selfEmail string, organizer bool) domain.Attendee {
	email := strings.TrimPrefix(strings.TrimPrefix(prop.Value, "mailto:"), "MAILTO:")
	attendee := domain.Attendee{
		Email:          email,
		DisplayName:    prop.Params.Get("CN"),
		Organizer:      organizer,
		ResponseStatus: domain.ParseResponseStatus(prop.Params.Get(ical.ParamParticipationStatus)),
	}
	if role := prop.Params.Get("ROLE"); strings.EqualFold(role, "OPT-PARTICIPANT") {
		attendee.Optional = true
	}
	if cutype := prop.Params.Get("CUTYPE"); strings.EqualFold(cutype, "RESOURCE") || strings.EqualFold(cutype, "ROOM") {
		attendee.Resource = true
	}
	if selfEmail != "" && strings.EqualFold(email, selfEmail) {
		attendee.IsSelf = true
	}
	return attendee
}

// expandRecurring materializes instances of a recurring event overlapping
// the window, preserving the event duration.
func expandRecurring(base domain.RawEvent, rruleText string, skip []time.Time, windowStart, windowEnd time.Time) []domain.RawEvent {
	opt, err := rrule.StrToROption(rruleText)
	if err != nil {
		return []domain.RawEvent{base}
	}
	opt.Dtstart = base.Start.UTC()

	rule, err := rrule.NewRRule(*opt)
	if err != nil {
		return []domain.RawEvent{base}
	}

	duration := base.End.UTC().Sub(base.Start.UTC())
	skipSet := make(map[string]struct{}, len(skip))
	for _, t := range skip {
		skipSet[t.UTC().Format(icsTimeLayout)] = struct{}{}
	}

	var instances []domain.RawEvent
	for _, occurrence := range rule.Between(windowStart.UTC(), windowEnd.UTC(), true) {
		if _, skipped := skipSet[occurrence.UTC().Format(icsTimeLayout)]; skipped {
			continue
		}
		instance := base
		instance.ID = base.ID + "_" + occurrence.UTC().Format(icsTimeLayout)
		instance.IsRecurringInstance = true
		instance.RecurringEventID = base.ID
		if base.Start.IsAllDay() {
			instance.Start = domain.NewAllDay(occurrence)
			instance.End = domain.NewAllDay(occurrence.Add(duration))
		} else {
			instance.Start = domain.NewDateTime(occurrence)
			instance.End = domain.NewDateTime(occurrence.Add(duration))
		}
		instances = append(instances, instance)
	}
	return instances
}

func exdates(comp *ical.Component) []time.Time {
	var dates []time.Time
	for _, prop := range comp.Props.Values(ical.PropExceptionDates) {
		for _, part := range strings.Split(prop.Value, ",") {
			if t, _, err := parseICSTimeString(strings.TrimSpace(part)); err == nil {
				dates = append(dates, t)
			}
		}
	}
	return dates
}

func parseICSTime(prop *ical.Prop) (time.Time, bool, error) {
	return parseICSTimeString(prop.Value)
}

// parseICSTimeString handles the three iCalendar time shapes: date,
// floating local time, and UTC instant.
func parseICSTimeString(value string) (time.Time, bool, error) {
	value = strings.TrimSpace(value)
	switch {
	case len(value) == 8:
		t, err := time.Parse("20060102", value)
		return t, true, err
	case strings.HasSuffix(value, "Z"):
		t, err := time.Parse(icsTimeLayout, value)
		return t.UTC(), false, err
	default:
		t, err := time.ParseInLocation("20060102T150405", value, time.Local)
		return t, false, err
	}
}

// parseICSDuration parses an RFC 5545 duration (PnDTnHnMnS subset).
func parseICSDuration(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	negative := false
	if strings.HasPrefix(value, "-") {
		negative = true
		value = value[1:]
	}
	value = strings.TrimPrefix(value, "+")
	if !strings.HasPrefix(value, "P") {
		return 0, errInvalidDuration
	}

	var total time.Duration
	var number int
	inTime := false
	for _, r := range value[1:] {
		switch {
		case r >= '0' && r <= '9':
			number = number*10 + int(r-'0')
		case r == 'T':
			inTime = true
		case r == 'W':
			total += time.Duration(number) * 7 * 24 * time.Hour
			number = 0
		case r == 'D':
			total += time.Duration(number) * 24 * time.Hour
			number = 0
		case r == 'H' && inTime:
			total += time.Duration(number) * time.Hour
			number = 0
		case r == 'M' && inTime:
			total += time.Duration(number) * time.Minute
			number = 0
		case r == 'S' && inTime:
			total += time.Duration(number) * time.Second
			number = 0
		default:
			return 0, errInvalidDuration
		}
	}
	if negative {
		total = -total
	}
	return total, nil
}

var errInvalidDuration = errors.New("invalid iCalendar duration")
