package calendar

import (
	"testing"
	"time"

	"github.com/parishcare/project/internal/app/members"
)

func TestDeriveMilestones(t *testing.T) {
	birthday := time.Date(1980, time.April, 20, 0, 0, 0, 0, time.UTC)
	anniversary := time.Date(2005, time.April, 2, 0, 0, 0, 0, time.UTC)
	member := members.Member{
		ID:          "m1",
		Name:        "SMITH, JOHN",
		Birthday:    &birthday,
		Anniversary: &anniversary,
	}

	from := time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, time.April, 30, 23, 59, 0, 0, time.UTC)

	got := DeriveMilestones([]members.Member{member}, from, to, time.UTC)
	if len(got) != 2 {
		t.Fatalf("got %d milestones, want birthday and anniversary", len(got))
	}

	byID := map[string]Event{}
	for _, event := range got {
		byID[event.ID] = event
	}

	bd, ok := byID["birthday-m1-2024"]
	if !ok {
		t.Fatal("birthday event missing")
	}
	if bd.Title != "John S. Birthday" {
		t.Errorf("birthday title = %q, want John S. Birthday", bd.Title)
	}
	if bd.Description != "Turning 44" {
		t.Errorf("birthday description = %q, want Turning 44", bd.Description)
	}
	if bd.MemberName != "John Smith" {
		t.Errorf("memberName = %q, want John Smith", bd.MemberName)
	}

	an, ok := byID["anniversary-m1-2024"]
	if !ok {
		t.Fatal("anniversary event missing")
	}
	if an.Title != "John S. Anniversary" {
		t.Errorf("anniversary title = %q", an.Title)
	}
}

func TestDeriveMilestonesWindow(t *testing.T) {
	birthday := time.Date(1980, time.April, 20, 0, 0, 0, 0, time.UTC)
	member := members.Member{ID: "m1", Name: "SMITH, JOHN", Birthday: &birthday}

	from := time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC)

	got := DeriveMilestones([]members.Member{member}, from, to, time.UTC)
	if len(got) != 1 {
		t.Fatalf("got %d milestones, want only the 2025 birthday", len(got))
	}
	if got[0].Date.Year() != 2025 {
		t.Errorf("milestone year = %d, want 2025", got[0].Date.Year())
	}
}

func TestDeriveMilestonesSkipsUnknownDates(t *testing.T) {
	member := members.Member{ID: "m1", Name: "SMITH, JOHN"}
	from := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC)

	if got := DeriveMilestones([]members.Member{member}, from, to, time.UTC); len(got) != 0 {
		t.Fatalf("member without dates produced %d milestones", len(got))
	}
}

func TestYearlyOccurrencesLeapDay(t *testing.T) {
	anchor := time.Date(2000, time.February, 29, 0, 0, 0, 0, time.UTC)
	from := time.Date(2023, time.February, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2023, time.March, 31, 0, 0, 0, 0, time.UTC)

	got := yearlyOccurrences(anchor, from, to, time.UTC)
	if len(got) != 1 {
		t.Fatalf("got %d occurrences, want 1", len(got))
	}
	want := time.Date(2023, time.March, 1, 0, 0, 0, 0, time.UTC)
	if !got[0].Equal(want) {
		t.Fatalf("leap-day anchor landed on %v, want rollover to %v", got[0], want)
	}
}
