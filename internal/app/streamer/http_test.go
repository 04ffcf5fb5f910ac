package streamer

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/parishcare/project/internal/app/care"
	"github.com/parishcare/project/internal/app/gatherings"
	"github.com/parishcare/project/internal/app/members"
	"github.com/parishcare/project/internal/calendar"
	"github.com/parishcare/project/internal/livefeed"
	"github.com/parishcare/project/internal/notify"
	"github.com/parishcare/project/internal/platform/auth"
)

type staticMembers []members.Member

func (s staticMembers) List(context.Context) ([]members.Member, error) { return s, nil }

type staticGatherings []gatherings.Gathering

func (s staticGatherings) List(context.Context) ([]gatherings.Gathering, error) { return s, nil }

type staticReminders []care.Reminder

func (s staticReminders) CalendarReminders(_ context.Context, includeExpired bool) ([]care.Reminder, error) {
	if includeExpired {
		return s, nil
	}
	var live []care.Reminder
	for _, r := range s {
		if !r.IsExpired {
			live = append(live, r)
		}
	}
	return live, nil
}

type nopConn struct{}

func (nopConn) Subscribe(string, nats.MsgHandler) (*nats.Subscription, error) { return nil, nil }

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()

	now := time.Date(2024, time.April, 10, 12, 0, 0, 0, time.UTC)
	birthday := time.Date(1980, time.April, 20, 0, 0, 0, 0, time.UTC)
	due := time.Date(2024, time.April, 15, 9, 0, 0, 0, time.UTC)
	done := time.Date(2024, time.April, 5, 9, 0, 0, 0, time.UTC)

	builder := &calendar.Builder{
		Members: staticMembers{
			{ID: "m1", Name: "SMITH, JOHN", Birthday: &birthday},
		},
		Gatherings: staticGatherings{
			{
				ID:    "g1",
				Title: "Sunday Service",
				Date:  time.Date(2024, time.April, 14, 10, 0, 0, 0, time.UTC),
			},
		},
		Reminders: staticReminders{
			{ID: "r1", MemberID: "m1", Text: "Call John", DueDate: &due},
			{ID: "r2", MemberID: "m1", Text: "Drop off meals", DueDate: &done, IsExpired: true},
		},
		Location: time.UTC,
	}

	tokens := auth.NewManager("test-secret", time.Hour)
	server := &Server{
		Tokens:   tokens,
		Builder:  builder,
		Registry: livefeed.NewRegistry(nopConn{}),
		Streams:  livefeed.NewUserStreams(),
		Location: time.UTC,
		Ready:    func() bool { return true },
		Now:      func() time.Time { return now },
	}

	token, err := tokens.Sign("user-1", "Pastor Kim", "kim@example.org")
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return server, token
}

func TestCalendarJSONRequiresAuth(t *testing.T) {
	server, _ := newTestServer(t)
	router := server.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/calendar/events", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 without a token", rec.Code)
	}
}

func decodeEvents(t *testing.T, body []byte) []calendar.Event {
	t.Helper()
	var resp struct {
		Events []calendar.Event `json:"events"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	return resp.Events
}

func TestCalendarJSONAggregates(t *testing.T) {
	server, token := newTestServer(t)
	router := server.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/calendar/events?token="+token, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	events := decodeEvents(t, rec.Body.Bytes())
	kinds := map[calendar.Kind]bool{}
	for _, event := range events {
		kinds[event.Kind] = true
	}
	if !kinds[calendar.KindCommunityGathering] || !kinds[calendar.KindMemberMilestone] || !kinds[calendar.KindCareReminder] {
		t.Fatalf("missing kinds in %v", kinds)
	}
	for i := 1; i < len(events); i++ {
		if events[i].Date.Before(events[i-1].Date) {
			t.Fatal("events not sorted ascending")
		}
	}
}

func TestCalendarJSONMemberScope(t *testing.T) {
	server, token := newTestServer(t)
	router := server.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/calendar/events?member_id=m1&token="+token, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	for _, event := range decodeEvents(t, rec.Body.Bytes()) {
		if event.MemberID != "m1" {
			t.Fatalf("event %s leaked into member scope", event.ID)
		}
	}
}

func TestCalendarJSONRejectsBadRange(t *testing.T) {
	server, token := newTestServer(t)
	router := server.Router()

	req := httptest.NewRequest(http.MethodGet,
		"/api/calendar/events?start=2024-05-01T00:00:00Z&end=2024-04-01T00:00:00Z&token="+token, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for inverted range", rec.Code)
	}
}

func TestCalendarICS(t *testing.T) {
	server, token := newTestServer(t)
	router := server.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/calendar.ics?token="+token, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Fatalf("content type = %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "BEGIN:VCALENDAR") || !strings.Contains(body, "Sunday Service") {
		t.Fatal("ICS body missing calendar content")
	}
}

func TestStreamSubjects(t *testing.T) {
	global := streamSubjects("")
	for _, subject := range global {
		if strings.Contains(subject, "careNotes") {
			t.Fatal("global stream must not subscribe to per-member notes")
		}
	}

	scoped := streamSubjects("m1")
	var notes, reminders bool
	for _, subject := range scoped {
		if strings.HasSuffix(subject, "careNotes.m1") {
			notes = true
		}
		if strings.HasSuffix(subject, "careReminders.m1") {
			reminders = true
		}
	}
	if !notes || !reminders {
		t.Fatalf("member stream missing scoped subjects: %v", scoped)
	}
}

func TestCalendarJSONShowCompleted(t *testing.T) {
	server, token := newTestServer(t)
	router := server.Router()

	hasExpired := func(events []calendar.Event) bool {
		for _, event := range events {
			if event.ID == "reminder-r2" {
				return true
			}
		}
		return false
	}

	req := httptest.NewRequest(http.MethodGet, "/api/calendar/events?token="+token, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if hasExpired(decodeEvents(t, rec.Body.Bytes())) {
		t.Fatal("expired reminder shown without show_completed")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/calendar/events?show_completed=1&token="+token, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if !hasExpired(decodeEvents(t, rec.Body.Bytes())) {
		t.Fatal("show_completed=1 must include expired reminders")
	}
}

// sseRecorder is a flushable, lock-guarded response writer for exercising
// the stream handler from another goroutine.
type sseRecorder struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	header http.Header
	code   int
}

func newSSERecorder() *sseRecorder { return &sseRecorder{header: http.Header{}} }

func (r *sseRecorder) Header() http.Header { return r.header }

func (r *sseRecorder) WriteHeader(code int) {
	r.mu.Lock()
	r.code = code
	r.mu.Unlock()
}

func (r *sseRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.Write(p)
}

func (r *sseRecorder) Flush() {}

func (r *sseRecorder) body() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.String()
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestStreamDeliversNotifications(t *testing.T) {
	server, token := newTestServer(t)
	center := notify.NewCenter()
	server.Notices = center
	router := server.Router()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events?token="+token, nil).WithContext(ctx)

	rec := newSSERecorder()
	done := make(chan struct{})
	go func() {
		router.ServeHTTP(rec, req)
		close(done)
	}()

	// The notice subscription is in place before the initial snapshot.
	waitFor(t, "initial snapshot", func() bool {
		return strings.Contains(rec.body(), "event: snapshot")
	})

	center.Error("Unable to save member")
	waitFor(t, "notification frame", func() bool {
		return strings.Contains(rec.body(), "event: notification") &&
			strings.Contains(rec.body(), "Unable to save member")
	})

	cancel()
	<-done
}
