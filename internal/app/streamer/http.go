// Package streamer serves the read side: the aggregated calendar as JSON,
// an iCalendar feed, and a server-sent-events stream that pushes a fresh
// snapshot whenever the underlying data changes.
package streamer

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/parishcare/project/internal/calendar"
	"github.com/parishcare/project/internal/contracts"
	"github.com/parishcare/project/internal/livefeed"
	"github.com/parishcare/project/internal/notify"
	"github.com/parishcare/project/internal/platform/auth"
	"github.com/parishcare/project/internal/platform/metrics"
	"github.com/parishcare/project/internal/sharding"
)

var (
	streamGauge = metrics.NewGauge(metrics.Opts{
		Name: "streamer_open_streams",
		Help: "SSE connections currently open.",
	})
	snapshotCounter = metrics.NewCounterVec(metrics.Opts{
		Name: "streamer_snapshots_total",
		Help: "Calendar snapshots pushed, by trigger.",
	}, []string{"trigger"})
)

func init() {
	metrics.Default.MustRegister(streamGauge, snapshotCounter)
}

// DefaultWindowMonths is how far ahead the calendar reaches when the client
// gives no explicit range.
const DefaultWindowMonths = 3

// Server bundles the read-side dependencies.
type Server struct {
	Tokens   auth.Manager
	Builder  *calendar.Builder
	Registry *livefeed.Registry
	Streams  *livefeed.UserStreams
	Notices  *notify.Center
	Location *time.Location
	Ready    func() bool
	Debounce time.Duration
	Now      func() time.Time
}

func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Method(http.MethodGet, "/metrics", metrics.DefaultHandler())

	r.Get("/events", s.handleStream)
	r.Get("/api/calendar/events", s.handleCalendarJSON)
	r.Get("/api/calendar.ics", s.handleCalendarICS)
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if s.Ready != nil && !s.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "service not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// authenticate accepts a bearer header or a token query parameter; calendar
// subscription clients cannot set headers.
func (s *Server) authenticate(r *http.Request) (auth.Claims, error) {
	token := auth.BearerToken(r.Header.Get("Authorization"))
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	return s.Tokens.Parse(token)
}

func (s *Server) window(r *http.Request) (time.Time, time.Time, error) {
	now := s.now().In(s.Location)
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.Location)
	to := from.AddDate(0, DefaultWindowMonths, 0).Add(-time.Millisecond)

	if raw := r.URL.Query().Get("start"); raw != "" {
		at, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("start must be RFC 3339")
		}
		from = at
	}
	if raw := r.URL.Query().Get("end"); raw != "" {
		at, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("end must be RFC 3339")
		}
		to = at
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("end is before start")
	}
	return from, to, nil
}

func filtersFrom(r *http.Request) calendar.Filters {
	filters := calendar.DefaultFilters()
	filters.MemberID = r.URL.Query().Get("member_id")
	filters.Search = r.URL.Query().Get("q")
	filters.ShowCompleted = r.URL.Query().Get("show_completed") == "1"

	if raw := r.URL.Query().Get("types"); raw != "" {
		visibility := make(map[calendar.Kind]bool, len(calendar.Kinds))
		for _, part := range strings.Split(raw, ",") {
			visibility[calendar.Kind(strings.TrimSpace(part))] = true
		}
		filters.Visibility = visibility
	}
	return filters
}

func (s *Server) snapshot(r *http.Request) ([]calendar.Event, error) {
	from, to, err := s.window(r)
	if err != nil {
		return nil, err
	}
	filters := filtersFrom(r)
	events, err := s.Builder.Build(r.Context(), from, to, filters.ShowCompleted)
	if err != nil {
		return nil, err
	}
	filters.From = &from
	filters.To = &to
	return calendar.Aggregate(events, filters), nil
}

func (s *Server) handleCalendarJSON(w http.ResponseWriter, r *http.Request) {
	if _, err := s.authenticate(r); err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid or expired token"})
		return
	}
	events, err := s.snapshot(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleCalendarICS(w http.ResponseWriter, r *http.Request) {
	if _, err := s.authenticate(r); err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid or expired token"})
		return
	}
	events, err := s.snapshot(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="calendar.ics"`)
	_, _ = w.Write([]byte(calendar.ExportICS(events, "Pastoral Care Calendar", s.now())))
}

// streamSubjects picks the change subjects a stream cares about. A
// member-scoped stream narrows the note and reminder subscriptions to that
// member; the calendar-wide collections always apply.
func streamSubjects(memberID string) []string {
	subjects := []string{
		sharding.SubscribeSubject(contracts.CollectionCalendarEvents, contracts.CollectionCalendarEvents),
		sharding.SubscribeSubject(contracts.CollectionMembers, contracts.CollectionMembers),
	}
	if memberID != "" {
		subjects = append(subjects,
			sharding.SubscribeSubject(contracts.CollectionCareNotes, memberID),
			sharding.SubscribeSubject(contracts.CollectionCareReminders, memberID),
			// Collection-wide reminder events, such as the nightly expiry sweep.
			sharding.SubscribeSubject(contracts.CollectionCareReminders, contracts.CollectionCareReminders),
		)
	} else {
		subjects = append(subjects,
			sharding.SubscribeSubject(contracts.CollectionCareReminders, "*"),
		)
	}
	return subjects
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	claims, err := s.authenticate(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid or expired token"})
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	handle, err := s.Registry.Subscribe(streamSubjects(r.URL.Query().Get("member_id"))...)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "subscribe failed"})
		return
	}
	s.Streams.Attach(claims.Subject, handle)
	defer func() {
		handle.Close()
		s.Streams.Detach(claims.Subject, handle)
	}()

	quiet := s.Debounce
	if quiet <= 0 {
		quiet = 250 * time.Millisecond
	}
	changes, stopDebounce := livefeed.Debounce(handle.Wake(), quiet)
	defer stopDebounce()

	// A nil channel blocks forever, so streams without a notice center just
	// never take that branch.
	var notices <-chan notify.Notification
	if s.Notices != nil {
		var cancelNotices func()
		notices, cancelNotices = s.Notices.Subscribe()
		defer cancelNotices()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	streamGauge.Inc()
	defer streamGauge.Dec()

	if !s.push(w, flusher, r, "initial") {
		return
	}

	keepAlive := time.NewTicker(25 * time.Second)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-handle.Done():
			// Superseded by a newer stream from the same user.
			fmt.Fprint(w, "event: superseded\ndata: {}\n\n")
			flusher.Flush()
			return
		case <-changes:
			if !s.push(w, flusher, r, "change") {
				return
			}
		case n := <-notices:
			payload, err := json.Marshal(n)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: notification\ndata: %s\n\n", payload)
			flusher.Flush()
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		}
	}
}

func (s *Server) push(w http.ResponseWriter, flusher http.Flusher, r *http.Request, trigger string) bool {
	events, err := s.snapshot(r)
	if err != nil {
		fmt.Fprintf(w, "event: error\ndata: %q\n\n", err.Error())
		flusher.Flush()
		return false
	}
	payload, err := json.Marshal(map[string]any{"events": events})
	if err != nil {
		return false
	}
	fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", payload)
	flusher.Flush()
	snapshotCounter.WithLabelValues(trigger).Inc()
	return true
}

func (s *Server) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
