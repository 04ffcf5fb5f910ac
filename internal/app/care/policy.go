package care

import (
	"sort"
	"time"
)

// MemberReminderLimit caps how many reminders the member card shows.
const MemberReminderLimit = 3

// IsExpired reports whether a due date has passed. A reminder with no due
// date never expires; a dated one expires only once its local calendar day
// is strictly before today's, so it stays live through the whole due day.
func IsExpired(dueDate *time.Time, now time.Time, loc *time.Location) bool {
	if dueDate == nil {
		return false
	}
	due := dueDate.In(loc)
	today := now.In(loc)
	dueDay := time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, loc)
	nowDay := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, loc)
	return dueDay.Before(nowDay)
}

// CompactForMember shapes a member's reminders for display: expired entries
// drop out unless includeExpired is set, dated reminders come first in due
// order, undated ones follow, and the result is capped at
// MemberReminderLimit. includeExpired lifts the cap as well so the full
// record stays reachable.
func CompactForMember(reminders []Reminder, now time.Time, loc *time.Location, includeExpired bool) []Reminder {
	var dated, undated []Reminder
	for _, r := range reminders {
		if !includeExpired && IsExpired(r.DueDate, now, loc) {
			continue
		}
		if r.DueDate != nil {
			dated = append(dated, r)
		} else {
			undated = append(undated, r)
		}
	}
	sort.SliceStable(dated, func(i, j int) bool {
		return dated[i].DueDate.Before(*dated[j].DueDate)
	})

	out := append(dated, undated...)
	if !includeExpired && len(out) > MemberReminderLimit {
		out = out[:MemberReminderLimit]
	}
	return out
}

// ForCalendar selects the reminders that surface on the calendar: dated and
// not yet expired, with no cap.
func ForCalendar(reminders []Reminder, now time.Time, loc *time.Location) []Reminder {
	var out []Reminder
	for _, r := range reminders {
		if r.DueDate == nil || IsExpired(r.DueDate, now, loc) {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DueDate.Before(*out[j].DueDate)
	})
	return out
}
