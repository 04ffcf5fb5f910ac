package livefeed

import (
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

type fakeConn struct {
	handlers map[string]nats.MsgHandler
}

func newFakeConn() *fakeConn {
	return &fakeConn{handlers: make(map[string]nats.MsgHandler)}
}

func (f *fakeConn) Subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error) {
	f.handlers[subject] = handler
	return nil, nil
}

func (f *fakeConn) fire(subject string) {
	if handler, ok := f.handlers[subject]; ok {
		handler(&nats.Msg{Subject: subject})
	}
}

func woken(t *testing.T, h *Handle) bool {
	t.Helper()
	select {
	case <-h.Wake():
		return true
	case <-time.After(100 * time.Millisecond):
		return false
	}
}

func TestRegistrySharesSubscriptions(t *testing.T) {
	conn := newFakeConn()
	registry := NewRegistry(conn)

	first, err := registry.Subscribe("care.change.*.careNotes.m1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	second, err := registry.Subscribe("care.change.*.careNotes.m1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if got := registry.ActiveSubjects(); got != 1 {
		t.Fatalf("active subjects = %d, want one shared subscription", got)
	}

	conn.fire("care.change.*.careNotes.m1")
	if !woken(t, first) || !woken(t, second) {
		t.Fatal("both handles must wake on a change")
	}

	first.Close()
	if got := registry.ActiveSubjects(); got != 1 {
		t.Fatalf("active subjects = %d, subscription must outlive one close", got)
	}
	second.Close()
	if got := registry.ActiveSubjects(); got != 0 {
		t.Fatalf("active subjects = %d, want 0 after last close", got)
	}
}

func TestRegistryCoalescesWakes(t *testing.T) {
	conn := newFakeConn()
	registry := NewRegistry(conn)

	h, err := registry.Subscribe("subject")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer h.Close()

	conn.fire("subject")
	conn.fire("subject")
	conn.fire("subject")

	if !woken(t, h) {
		t.Fatal("handle not woken")
	}
	select {
	case <-h.Wake():
		t.Fatal("burst of changes must coalesce into one wake")
	default:
	}
}

func TestUserStreamsSupersede(t *testing.T) {
	conn := newFakeConn()
	registry := NewRegistry(conn)
	streams := NewUserStreams()

	first, _ := registry.Subscribe("subject")
	streams.Attach("user-1", first)

	second, _ := registry.Subscribe("subject")
	streams.Attach("user-1", second)

	select {
	case <-first.Done():
	case <-time.After(100 * time.Millisecond):
		t.Fatal("attaching a new stream must close the user's previous one")
	}
	select {
	case <-second.Done():
		t.Fatal("the replacement stream must stay open")
	default:
	}

	second.Close()
	streams.Detach("user-1", second)
}

func TestDebounce(t *testing.T) {
	wake := make(chan struct{}, 8)
	out, stop := Debounce(wake, 20*time.Millisecond)
	defer stop()

	wake <- struct{}{}
	wake <- struct{}{}
	wake <- struct{}{}

	select {
	case <-out:
	case <-time.After(time.Second):
		t.Fatal("debounced signal never fired")
	}
	select {
	case <-out:
		t.Fatal("burst must produce a single debounced fire")
	case <-time.After(50 * time.Millisecond):
	}
}
