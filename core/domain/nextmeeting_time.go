package domain

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// EventTime is the start or end of a calendar event: either a concrete
// instant (stored in UTC) or a calendar date for all-day events. All-day
// values order as midnight UTC of their date.
type EventTime struct {
	t      time.Time
	allDay bool
}

// NewDateTime creates an EventTime from an instant. The value is stored in UTC.
func NewDateTime(t time.Time) EventTime {
	return EventTime{t: t.UTC()}
}

// NewAllDay creates an all-day EventTime from the date portion of t.
func NewAllDay(t time.Time) EventTime {
	y, m, d := t.Date()
	return EventTime{t: time.Date(y, m, d, 0, 0, 0, 0, time.UTC), allDay: true}
}

// NewAllDayDate creates an all-day EventTime from a calendar date.
func NewAllDayDate(year int, month time.Month, day int) EventTime {
	return EventTime{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC), allDay: true}
}

// IsAllDay reports whether this is an all-day value.
func (e EventTime) IsAllDay() bool { return e.allDay }

// IsZero reports whether the value is unset.
func (e EventTime) IsZero() bool { return e.t.IsZero() }

// UTC returns the instant used for ordering: the stored instant, or midnight
// UTC for all-day values.
func (e EventTime) UTC() time.Time { return e.t }

// Date returns the calendar date in UTC.
func (e EventTime) Date() (int, time.Month, int) { return e.t.Date() }

// In projects the value into loc for display. All-day values map to local
// midnight of their date.
func (e EventTime) In(loc *time.Location) time.Time {
	if e.allDay {
		y, m, d := e.t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	}
	return e.t.In(loc)
}

// Before reports whether e orders before other.
func (e EventTime) Before(other EventTime) bool { return e.t.Before(other.t) }

// After reports whether e orders after other.
func (e EventTime) After(other EventTime) bool { return e.t.After(other.t) }

// Equal reports whether both values denote the same instant and shape.
func (e EventTime) Equal(other EventTime) bool {
	return e.allDay == other.allDay && e.t.Equal(other.t)
}

const allDayLayout = "2006-01-02"

type eventTimeJSON struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func (e EventTime) MarshalJSON() ([]byte, error) {
	if e.allDay {
		return json.Marshal(eventTimeJSON{Type: "date", Value: e.t.Format(allDayLayout)})
	}
	return json.Marshal(eventTimeJSON{Type: "datetime", Value: e.t.Format(time.RFC3339)})
}

func (e *EventTime) UnmarshalJSON(data []byte) error {
	var raw eventTimeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Type {
	case "date":
		t, err := time.ParseInLocation(allDayLayout, raw.Value, time.UTC)
		if err != nil {
			return fmt.Errorf("invalid all-day date %q: %w", raw.Value, err)
		}
		*e = EventTime{t: t, allDay: true}
	case "datetime":
		t, err := time.Parse(time.RFC3339, raw.Value)
		if err != nil {
			return fmt.Errorf("invalid datetime %q: %w", raw.Value, err)
		}
		*e = EventTime{t: t.UTC()}
	default:
		return fmt.Errorf("unknown event time type %q", raw.Type)
	}
	return nil
}

// TimeWindow is a half-open interval [Start, End) in UTC.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewTimeWindow builds a window, rejecting inverted bounds.
func NewTimeWindow(start, end time.Time) (TimeWindow, error) {
	if start.After(end) {
		return TimeWindow{}, fmt.Errorf("time window start %s after end %s", start, end)
	}
	return TimeWindow{Start: start.UTC(), End: end.UTC()}, nil
}

// DefaultTimeWindow is the fetch window used when a caller passes none:
// 12 hours back to 48 hours ahead of now.
func DefaultTimeWindow(now time.Time) TimeWindow {
	return TimeWindow{Start: now.UTC().Add(-12 * time.Hour), End: now.UTC().Add(48 * time.Hour)}
}

// Duration returns End - Start.
func (w TimeWindow) Duration() time.Duration { return w.End.Sub(w.Start) }

// Contains reports whether t falls inside the half-open interval.
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Overlaps reports whether an event spanning [eventStart, eventEnd) touches
// the window: event-start < window-end and event-end > window-start.
func (w TimeWindow) Overlaps(eventStart, eventEnd time.Time) bool {
	return eventStart.Before(w.End) && eventEnd.After(w.Start)
}

// OverlapsEvent applies Overlaps to event times.
func (w TimeWindow) OverlapsEvent(start, end EventTime) bool {
	return w.Overlaps(start.UTC(), end.UTC())
}
