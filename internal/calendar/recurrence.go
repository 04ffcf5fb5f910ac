package calendar

import (
	"fmt"
	"log"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/parishcare/project/internal/app/gatherings"
)

var rruleWeekdays = [7]rrule.Weekday{
	rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA,
}

func seriesRule(g gatherings.Gathering, loc *time.Location) (*rrule.RRule, error) {
	rec := g.Recurrence
	weekdays := make([]rrule.Weekday, 0, len(rec.DaysOfWeek))
	for _, day := range rec.DaysOfWeek {
		if day < 0 || day > 6 {
			return nil, fmt.Errorf("day of week %d out of range", day)
		}
		weekdays = append(weekdays, rruleWeekdays[day])
	}

	opt := rrule.ROption{
		Freq:      rrule.WEEKLY,
		Dtstart:   g.Date.In(loc),
		Byweekday: weekdays,
	}
	if rec.EndCondition == gatherings.EndsOn && rec.EndsOn != nil {
		// Until is compared against occurrence starts, so push it to the end
		// of the local day to keep the final occurrence.
		end := rec.EndsOn.In(loc)
		opt.Until = time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, 0, loc)
	}
	return rrule.NewRRule(opt)
}

func gatheringEvent(g gatherings.Gathering, id string, date time.Time) Event {
	event := Event{
		ID:          id,
		Kind:        KindCommunityGathering,
		Title:       g.Title,
		Description: g.Description,
		Location:    g.Location,
		Date:        date,
		AllDay:      g.AllDay,
		SeriesID:    g.ParentSeriesID,
	}
	if g.IsSeries() {
		event.SeriesID = g.ID
	}
	if g.EndDate != nil {
		end := date.Add(g.EndDate.Sub(g.Date))
		event.EndDate = &end
	}
	return event
}

// ExpandGatherings turns gathering rows into concrete events inside the
// window. Series heads are expanded occurrence by occurrence; an exception
// replaces its occurrence, and a cancelled exception removes it outright.
func ExpandGatherings(list []gatherings.Gathering, from, to time.Time, loc *time.Location) []Event {
	type occurrenceKey struct {
		seriesID string
		at       int64
	}
	overridden := make(map[occurrenceKey]bool)
	for _, g := range list {
		if g.IsException() && g.OriginalDate != nil {
			overridden[occurrenceKey{g.ParentSeriesID, g.OriginalDate.UnixMilli()}] = true
		}
	}

	var events []Event
	for _, g := range list {
		switch {
		case g.IsException():
			if g.Cancelled {
				continue
			}
			if g.Date.Before(from) || g.Date.After(to) {
				continue
			}
			events = append(events, gatheringEvent(g, g.ID, g.Date))

		case g.IsSeries():
			rule, err := seriesRule(g, loc)
			if err != nil {
				log.Printf("calendar: skipping series %s: %v", g.ID, err)
				continue
			}
			for _, at := range rule.Between(from, to, true) {
				if overridden[occurrenceKey{g.ID, at.UnixMilli()}] {
					continue
				}
				id := fmt.Sprintf("%s@%d", g.ID, at.UnixMilli())
				events = append(events, gatheringEvent(g, id, at))
			}

		default:
			if g.Date.Before(from) || g.Date.After(to) {
				continue
			}
			events = append(events, gatheringEvent(g, g.ID, g.Date))
		}
	}
	return events
}
