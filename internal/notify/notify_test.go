package notify

import (
	"testing"
	"time"
)

func TestPublishReachesSubscribers(t *testing.T) {
	c := NewCenter()
	c.Now = func() time.Time { return time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC) }
	c.NewID = func() string { return "n-1" }

	ch, cancel := c.Subscribe()
	defer cancel()

	c.Error("Unable to add care note. Please try again.")

	select {
	case n := <-ch:
		if n.Level != LevelError || n.Message == "" || n.ID != "n-1" {
			t.Fatalf("unexpected notification: %+v", n)
		}
	default:
		t.Fatal("no notification delivered")
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	c := NewCenter()
	ch, cancel := c.Subscribe()
	cancel()

	c.Success("Care reminder added")

	select {
	case n := <-ch:
		t.Fatalf("notification after cancel: %+v", n)
	default:
	}
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	c := NewCenter()
	ch, cancel := c.Subscribe()
	defer cancel()

	for i := 0; i < cap(ch)+5; i++ {
		c.Success("Member updated")
	}
	// The publisher must have returned; backlog stays at channel capacity.
	if len(ch) != cap(ch) {
		t.Fatalf("expected full channel, got %d of %d", len(ch), cap(ch))
	}
}
