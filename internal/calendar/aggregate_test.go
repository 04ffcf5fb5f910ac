package calendar

import (
	"testing"
	"time"
)

func ts(day int, hour int) time.Time {
	return time.Date(2024, time.January, day, hour, 0, 0, 0, time.UTC)
}

func sampleEvents() []Event {
	return []Event{
		{ID: "g1", Kind: KindCommunityGathering, Title: "Prayer Meeting", Date: ts(10, 19)},
		{ID: "m1", Kind: KindMemberMilestone, Title: "John S. Birthday", MemberID: "member-john", MemberName: "John Smith", Date: ts(12, 0)},
		{ID: "r1", Kind: KindCareReminder, Title: "Call John back", Description: "about the hospital visit", MemberID: "member-john", Date: ts(8, 9)},
		{ID: "u1", Kind: KindCareUpdate, Title: "Note updated", MemberID: "member-anna", Date: ts(9, 9)},
	}
}

func TestAggregateDefaultsHideCareUpdates(t *testing.T) {
	got := Aggregate(sampleEvents(), DefaultFilters())
	for _, event := range got {
		if event.Kind == KindCareUpdate {
			t.Fatal("care updates must be hidden by default")
		}
	}
	if len(got) != 3 {
		t.Fatalf("got %d events, want 3", len(got))
	}
}

func TestAggregateSortsAscending(t *testing.T) {
	got := Aggregate(sampleEvents(), DefaultFilters())
	for i := 1; i < len(got); i++ {
		if got[i].Date.Before(got[i-1].Date) {
			t.Fatalf("events out of order: %s before %s", got[i].ID, got[i-1].ID)
		}
	}
}

func TestAggregateVisibilityOnlyRemoves(t *testing.T) {
	all := DefaultFilters()
	narrowed := all
	narrowed.Visibility = map[Kind]bool{KindMemberMilestone: true}

	full := Aggregate(sampleEvents(), all)
	narrow := Aggregate(sampleEvents(), narrowed)
	if len(narrow) >= len(full) {
		t.Fatalf("narrowing visibility produced %d events, full view has %d", len(narrow), len(full))
	}
	for _, event := range narrow {
		if event.Kind != KindMemberMilestone {
			t.Fatalf("unexpected kind %s after narrowing", event.Kind)
		}
	}
}

func TestAggregateSearch(t *testing.T) {
	filters := DefaultFilters()
	filters.Search = "  JoHn "

	got := Aggregate(sampleEvents(), filters)
	if len(got) != 2 {
		t.Fatalf("search for john returned %d events, want 2", len(got))
	}
	for _, event := range got {
		if event.ID != "m1" && event.ID != "r1" {
			t.Fatalf("unexpected event %s in search results", event.ID)
		}
	}
}

func TestAggregateSearchDoesNotSpanFields(t *testing.T) {
	events := []Event{{
		ID:          "g1",
		Kind:        KindCommunityGathering,
		Title:       "Parish",
		Description: "Picnic",
		Date:        time.Date(2024, time.June, 1, 10, 0, 0, 0, time.UTC),
	}}

	filters := DefaultFilters()
	filters.Search = "parish p"
	if got := Aggregate(events, filters); len(got) != 0 {
		t.Fatalf("term spanning title and description matched %d events, want 0", len(got))
	}

	filters.Search = "parish"
	if got := Aggregate(events, filters); len(got) != 1 {
		t.Fatal("title-only term must still match")
	}
	filters.Search = "picnic"
	if got := Aggregate(events, filters); len(got) != 1 {
		t.Fatal("description-only term must still match")
	}
}

func TestAggregateMemberScope(t *testing.T) {
	filters := DefaultFilters()
	filters.MemberID = "member-john"

	got := Aggregate(sampleEvents(), filters)
	for _, event := range got {
		if event.MemberID != "member-john" {
			t.Fatalf("event %s leaked into member scope", event.ID)
		}
	}
	if len(got) != 2 {
		t.Fatalf("member scope returned %d events, want 2", len(got))
	}
}

func TestAggregateDateRangeInclusive(t *testing.T) {
	filters := DefaultFilters()
	from := ts(8, 9)
	to := ts(10, 19)
	filters.From = &from
	filters.To = &to

	got := Aggregate(sampleEvents(), filters)
	ids := map[string]bool{}
	for _, event := range got {
		ids[event.ID] = true
	}
	if !ids["r1"] || !ids["g1"] {
		t.Fatal("range endpoints must be inclusive")
	}
	if ids["m1"] {
		t.Fatal("event past the range end leaked through")
	}
}

func TestFiltersPatch(t *testing.T) {
	base := DefaultFilters()
	base.Search = "john"

	if got := base.Apply(Patch{}); got.Search != "john" || !got.Visibility[KindCommunityGathering] {
		t.Fatal("empty patch must leave filters unchanged")
	}

	member := "member-1"
	got := base.Apply(Patch{MemberID: &member})
	if got.MemberID != "member-1" || got.Search != "john" {
		t.Fatalf("partial patch wrong: %+v", got)
	}

	got = base.Apply(Patch{Visibility: map[Kind]bool{KindCareReminder: true}})
	if got.Visibility[KindCommunityGathering] {
		t.Fatal("visibility patch must replace the map wholesale")
	}
	if !got.Visibility[KindCareReminder] {
		t.Fatal("visibility patch lost its own entry")
	}

	empty := ""
	got = got.Apply(Patch{Search: &empty})
	if got.Search != "" {
		t.Fatal("patch must be able to clear the search")
	}

	show := true
	got = got.Apply(Patch{ShowCompleted: &show})
	if !got.ShowCompleted {
		t.Fatal("patch must be able to turn on completed reminders")
	}
}
