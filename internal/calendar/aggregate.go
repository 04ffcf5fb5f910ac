package calendar

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/parishcare/project/internal/app/care"
	"github.com/parishcare/project/internal/app/gatherings"
	"github.com/parishcare/project/internal/app/members"
)

// Aggregate filters and orders a flat event list. It is pure: visibility,
// member scope, search, and date range only ever remove events, and the
// result is sorted ascending by date with input order preserved on ties.
func Aggregate(events []Event, filters Filters) []Event {
	search := strings.ToLower(strings.TrimSpace(filters.Search))

	var out []Event
	for _, event := range events {
		if filters.Visibility != nil && !filters.Visibility[event.Kind] {
			continue
		}
		if filters.MemberID != "" && event.MemberID != filters.MemberID {
			continue
		}
		if search != "" {
			// Title and description are matched independently; a term must
			// sit wholly inside one field.
			title := strings.ToLower(event.Title)
			description := strings.ToLower(event.Description)
			if !strings.Contains(title, search) && !strings.Contains(description, search) {
				continue
			}
		}
		if filters.From != nil && event.Date.Before(*filters.From) {
			continue
		}
		if filters.To != nil && event.Date.After(*filters.To) {
			continue
		}
		out = append(out, event)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

// MemberSource lists members for milestone derivation and name lookup.
type MemberSource interface {
	List(ctx context.Context) ([]members.Member, error)
}

// GatheringSource lists gathering rows for expansion.
type GatheringSource interface {
	List(ctx context.Context) ([]gatherings.Gathering, error)
}

// ReminderSource lists the dated reminders for the calendar.
type ReminderSource interface {
	CalendarReminders(ctx context.Context, includeExpired bool) ([]care.Reminder, error)
}

// Builder assembles the full event list from the three sources.
type Builder struct {
	Members    MemberSource
	Gatherings GatheringSource
	Reminders  ReminderSource
	Location   *time.Location
}

// Build collects every event in the window: expanded gatherings, derived
// milestones, and dated reminders. Member names on reminder events are
// resolved from the current member records, not stored copies.
func (b *Builder) Build(ctx context.Context, from, to time.Time, includeExpired bool) ([]Event, error) {
	memberList, err := b.Members.List(ctx)
	if err != nil {
		return nil, err
	}
	gatheringList, err := b.Gatherings.List(ctx)
	if err != nil {
		return nil, err
	}
	reminders, err := b.Reminders.CalendarReminders(ctx, includeExpired)
	if err != nil {
		return nil, err
	}

	namesByID := make(map[string]string, len(memberList))
	for _, m := range memberList {
		namesByID[m.ID] = members.ParseName(m.Name).FullName
	}

	events := ExpandGatherings(gatheringList, from, to, b.Location)
	events = append(events, DeriveMilestones(memberList, from, to, b.Location)...)
	for _, r := range reminders {
		if r.DueDate == nil || r.DueDate.Before(from) || r.DueDate.After(to) {
			continue
		}
		events = append(events, Event{
			ID:         "reminder-" + r.ID,
			Kind:       KindCareReminder,
			Title:      r.Text,
			Date:       *r.DueDate,
			MemberID:   r.MemberID,
			MemberName: namesByID[r.MemberID],
		})
	}
	return events, nil
}
