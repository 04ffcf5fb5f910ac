// Package calendar aggregates gatherings, member milestones, and care
// reminders into one event feed, applies the viewer's filters, and exports
// the result as JSON or iCalendar.
package calendar

import "time"

// Kind tags the source of a calendar event.
type Kind string

const (
	KindCommunityGathering Kind = "community-gathering"
	KindMemberMilestone    Kind = "member-milestone"
	KindCareReminder       Kind = "care-reminder"
	KindCareUpdate         Kind = "care-update"
	KindLiturgicalEvent    Kind = "liturgical-event"
)

// Kinds lists every event kind in display order.
var Kinds = []Kind{
	KindCommunityGathering,
	KindMemberMilestone,
	KindCareReminder,
	KindCareUpdate,
	KindLiturgicalEvent,
}

// Event is one entry on the aggregated calendar. Member fields are set only
// for member-derived kinds and carry the name as of aggregation time.
type Event struct {
	ID          string     `json:"id"`
	Kind        Kind       `json:"kind"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Location    string     `json:"location,omitempty"`
	Date        time.Time  `json:"date"`
	EndDate     *time.Time `json:"endDate,omitempty"`
	AllDay      bool       `json:"allDay,omitempty"`
	MemberID    string     `json:"memberId,omitempty"`
	MemberName  string     `json:"memberName,omitempty"`
	SeriesID    string     `json:"seriesId,omitempty"`
}
