package calendar

import (
	"fmt"
	"time"

	"github.com/parishcare/project/internal/app/members"
)

func milestoneTitle(parsed members.ParsedName, suffix string) string {
	if parsed.FirstName != "" && parsed.LastName != "" {
		return fmt.Sprintf("%s %s. %s", parsed.FirstName, parsed.LastName[:1], suffix)
	}
	if parsed.FullName != "" {
		return parsed.FullName + " " + suffix
	}
	return suffix
}

// yearlyOccurrences projects an anchor date onto each year the window
// touches, at local midnight.
func yearlyOccurrences(anchor, from, to time.Time, loc *time.Location) []time.Time {
	a := anchor.In(loc)
	var out []time.Time
	for year := from.In(loc).Year(); year <= to.In(loc).Year(); year++ {
		// A Feb 29 anchor rolls over to Mar 1 in non-leap years.
		at := time.Date(year, a.Month(), a.Day(), 0, 0, 0, 0, loc)
		if at.Before(from) || at.After(to) {
			continue
		}
		out = append(out, at)
	}
	return out
}

// DeriveMilestones produces birthday and anniversary events for every member
// inside the window. Titles and names come from the member records at call
// time, so a renamed member is reflected immediately.
func DeriveMilestones(list []members.Member, from, to time.Time, loc *time.Location) []Event {
	var events []Event
	for _, m := range list {
		parsed := members.ParseName(m.Name)

		if m.Birthday != nil {
			for _, at := range yearlyOccurrences(*m.Birthday, from, to, loc) {
				age := members.Age(m.Birthday, at)
				events = append(events, Event{
					ID:          fmt.Sprintf("birthday-%s-%d", m.ID, at.Year()),
					Kind:        KindMemberMilestone,
					Title:       milestoneTitle(parsed, "Birthday"),
					Description: fmt.Sprintf("Turning %d", age),
					Date:        at,
					AllDay:      true,
					MemberID:    m.ID,
					MemberName:  parsed.FullName,
				})
			}
		}

		if m.Anniversary != nil {
			for _, at := range yearlyOccurrences(*m.Anniversary, from, to, loc) {
				events = append(events, Event{
					ID:         fmt.Sprintf("anniversary-%s-%d", m.ID, at.Year()),
					Kind:       KindMemberMilestone,
					Title:      milestoneTitle(parsed, "Anniversary"),
					Date:       at,
					AllDay:     true,
					MemberID:   m.ID,
					MemberName: parsed.FullName,
				})
			}
		}
	}
	return events
}
