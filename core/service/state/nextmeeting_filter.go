// Package state holds the shared server state read by every request and
// written by the sync task, plus the pure meeting filter evaluation.
package state

import (
	"strings"
	"time"

	"nextmeeting_server/core/domain"
	"nextmeeting_server/pkg/protocol"
)

// ApplyFilter evaluates a filter against meetings at the given instant.
// Ended non-all-day meetings are dropped first, then the enumerated
// predicates, then privacy rewriting (after filtering, so counts stay
// honest), then the limit.
func ApplyFilter(meetings []domain.MeetingView, filter *protocol.MeetingsFilter, now time.Time) []domain.MeetingView {
	out := make([]domain.MeetingView, 0, len(meetings))
	for _, m := range meetings {
		if !m.IsAllDay && m.HasEnded(now) {
			continue
		}
		out = append(out, m)
	}

	if filter == nil {
		return out
	}

	out = retain(out, func(m *domain.MeetingView) bool {
		if filter.SkipAllDay && m.IsAllDay {
			return false
		}
		if len(filter.IncludeTitles) > 0 && !anySubstring(m.Title, filter.IncludeTitles) {
			return false
		}
		if len(filter.ExcludeTitles) > 0 && anySubstring(m.Title, filter.ExcludeTitles) {
			return false
		}
		if filter.TodayOnly {
			y1, m1, d1 := m.StartLocal.Date()
			y2, m2, d2 := now.Date()
			if y1 != y2 || m1 != m2 || d1 != d2 {
				return false
			}
		}
		if filter.SkipDeclined && m.UserResponseStatus == domain.ResponseDeclined {
			return false
		}
		if filter.SkipTentative && m.UserResponseStatus == domain.ResponseTentative {
			return false
		}
		if filter.SkipPending && m.UserResponseStatus == domain.ResponseNeedsAction {
			return false
		}
		if filter.SkipWithoutGuest && m.OtherAttendeeCount == 0 {
			return false
		}
		if len(filter.IncludeCalendars) > 0 && !anySubstring(m.CalendarID, filter.IncludeCalendars) {
			return false
		}
		if len(filter.ExcludeCalendars) > 0 && anySubstring(m.CalendarID, filter.ExcludeCalendars) {
			return false
		}
		if filter.WithinMinutes > 0 {
			if m.IsAllDay {
				return false
			}
			mins := m.MinutesUntilStart(now)
			if mins < 0 || mins > filter.WithinMinutes {
				return false
			}
		}
		if filter.OnlyWithLink && m.PrimaryLink == nil {
			return false
		}
		if filter.WorkHours != "" {
			if start, end, ok := ParseWorkHours(filter.WorkHours); ok && !m.IsAllDay {
				t := minuteOfDay(m.StartLocal)
				if t < start || t > end {
					return false
				}
			}
		}
		return true
	})

	if filter.Privacy {
		title := filter.PrivacyTitle
		if title == "" {
			title = "Busy"
		}
		for i := range out {
			out[i].Title = title
		}
	}

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

// ParseWorkHours parses an "HH:MM-HH:MM" specification into start and end
// minutes of the day.
func ParseWorkHours(spec string) (startMin, endMin int, ok bool) {
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	start, ok1 := parseClock(strings.TrimSpace(parts[0]))
	end, ok2 := parseClock(strings.TrimSpace(parts[1]))
	if !ok1 || !ok2 {
		return 0, 0, false
	}
	return start, end, true
}

func parseClock(s string) (int, bool) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

func anySubstring(value string, patterns []string) bool {
	lower := strings.ToLower(value)
	for _, p := range patterns {
		if strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

func retain(meetings []domain.MeetingView, keep func(*domain.MeetingView) bool) []domain.MeetingView {
	out := meetings[:0]
	for i := range meetings {
		if keep(&meetings[i]) {
			out = append(out, meetings[i])
		}
	}
	return out
}
