package calendar

import (
	"time"

	ics "github.com/arran4/golang-ical"
)

// ExportICS renders events as an iCalendar document for subscription feeds.
func ExportICS(events []Event, name string, now time.Time) string {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//parishcare//calendar//EN")
	cal.SetName(name)
	cal.SetXWRCalName(name)

	for _, event := range events {
		entry := cal.AddEvent(event.ID)
		entry.SetDtStampTime(now)
		if event.AllDay {
			entry.SetAllDayStartAt(event.Date)
			entry.SetAllDayEndAt(event.Date.AddDate(0, 0, 1))
		} else {
			entry.SetStartAt(event.Date)
			if event.EndDate != nil {
				entry.SetEndAt(*event.EndDate)
			} else {
				entry.SetEndAt(event.Date.Add(time.Hour))
			}
		}
		entry.SetSummary(event.Title)
		if event.Description != "" {
			entry.SetDescription(event.Description)
		}
		if event.Location != "" {
			entry.SetLocation(event.Location)
		}
	}
	return cal.Serialize()
}
