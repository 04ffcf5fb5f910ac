// Package careapi exposes the mutating HTTP API: authentication, members,
// care notes and reminders, and community gatherings.
package careapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/parishcare/project/internal/app/care"
	"github.com/parishcare/project/internal/app/gatherings"
	"github.com/parishcare/project/internal/app/identity"
	"github.com/parishcare/project/internal/app/members"
	"github.com/parishcare/project/internal/notify"
	"github.com/parishcare/project/internal/platform/auth"
	"github.com/parishcare/project/internal/platform/metrics"
)

var requestCounter = metrics.NewCounterVec(metrics.Opts{
	Name: "careapi_http_requests_total",
	Help: "HTTP requests handled, by method and status.",
}, []string{"method", "status"})

func init() {
	metrics.Default.MustRegister(requestCounter)
}

type claimsKey struct{}

// ClaimsFromContext returns the authenticated claims, if any.
func ClaimsFromContext(ctx context.Context) (auth.Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(auth.Claims)
	return claims, ok
}

// Server bundles the services behind the care API.
type Server struct {
	Identity   *identity.Service
	Tokens     auth.Manager
	Members    *members.Service
	Care       *care.Service
	Gatherings *gatherings.Service
	Notices    *notify.Center
	Ready      func() bool
}

func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(countRequests)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Method(http.MethodGet, "/metrics", metrics.DefaultHandler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/refresh", s.handleRefresh)
		r.Post("/auth/logout", s.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Get("/members", s.handleListMembers)
			r.Post("/members", s.handleCreateMember)
			r.Patch("/members/{id}", s.handleUpdateMember)
			r.Delete("/members/{id}", s.handleDeleteMember)

			r.Get("/members/{id}/notes", s.handleListNotes)
			r.Post("/members/{id}/notes", s.handleCreateNote)
			r.Patch("/notes/{id}", s.handleUpdateNote)
			r.Delete("/notes/{id}", s.handleDeleteNote)

			r.Get("/members/{id}/reminders", s.handleListReminders)
			r.Post("/members/{id}/reminders", s.handleCreateReminder)
			r.Delete("/reminders/{id}", s.handleDeleteReminder)

			r.Get("/notifications", s.handleNotifications)

			r.Get("/gatherings", s.handleListGatherings)
			r.Post("/gatherings", s.handleCreateGathering)
			r.Patch("/gatherings/{id}", s.handleUpdateGathering)
			r.Delete("/gatherings/{id}", s.handleDeleteGathering)
		})
	})
	return r
}

func countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		requestCounter.WithLabelValues(r.Method, strconv.Itoa(ww.Status())).Inc()
	})
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.BearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := s.Tokens.Parse(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if s.Ready != nil && !s.Ready() {
		writeError(w, http.StatusServiceUnavailable, "service not ready")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type registerRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	resp, err := s.Identity.Register(r.Context(), req.Email, req.DisplayName, req.Password)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	resp, err := s.Identity.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	resp, err := s.Identity.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.Identity.Logout(r.Context(), req.RefreshToken); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func actorFrom(r *http.Request) (string, string) {
	claims, _ := ClaimsFromContext(r.Context())
	return claims.Subject, claims.ActorName()
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	list, err := s.Members.List(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": members.SortByName(list)})
}

func (s *Server) handleCreateMember(w http.ResponseWriter, r *http.Request) {
	var input members.Input
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	userID, name := actorFrom(r)
	member, err := s.Members.Create(r.Context(), members.Actor{UserID: userID, Name: name}, input)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, member)
}

func (s *Server) handleUpdateMember(w http.ResponseWriter, r *http.Request) {
	var input members.Input
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	userID, name := actorFrom(r)
	member, err := s.Members.Update(r.Context(), members.Actor{UserID: userID, Name: name}, chi.URLParam(r, "id"), input)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}

func (s *Server) handleDeleteMember(w http.ResponseWriter, r *http.Request) {
	userID, name := actorFrom(r)
	if err := s.Members.Delete(r.Context(), members.Actor{UserID: userID, Name: name}, chi.URLParam(r, "id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleListNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := s.Care.NotesForMember(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notes": notes})
}

type noteRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleCreateNote(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	userID, name := actorFrom(r)
	note, err := s.Care.CreateNote(r.Context(), care.Actor{UserID: userID, Name: name}, chi.URLParam(r, "id"), req.Content)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

func (s *Server) handleUpdateNote(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	userID, name := actorFrom(r)
	note, err := s.Care.UpdateNote(r.Context(), care.Actor{UserID: userID, Name: name}, chi.URLParam(r, "id"), req.Content)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

func (s *Server) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	userID, name := actorFrom(r)
	if err := s.Care.DeleteNote(r.Context(), care.Actor{UserID: userID, Name: name}, chi.URLParam(r, "id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleListReminders(w http.ResponseWriter, r *http.Request) {
	includeExpired := r.URL.Query().Get("all") == "1"
	reminders, err := s.Care.RemindersForMember(r.Context(), chi.URLParam(r, "id"), includeExpired)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reminders": reminders})
}

type reminderRequest struct {
	Text    string     `json:"text"`
	DueDate *time.Time `json:"dueDate"`
}

func (s *Server) handleCreateReminder(w http.ResponseWriter, r *http.Request) {
	var req reminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	userID, name := actorFrom(r)
	reminder, err := s.Care.CreateReminder(r.Context(), care.Actor{UserID: userID, Name: name}, chi.URLParam(r, "id"), req.Text, req.DueDate)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, reminder)
}

func (s *Server) handleDeleteReminder(w http.ResponseWriter, r *http.Request) {
	userID, name := actorFrom(r)
	if err := s.Care.DeleteReminder(r.Context(), care.Actor{UserID: userID, Name: name}, chi.URLParam(r, "id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleNotifications streams the operation notices the services publish
// (saved, deleted, failed) as server-sent events, one frame per notice.
func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	notices, cancel := s.Notices.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepAlive := time.NewTicker(25 * time.Second)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
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

func (s *Server) handleListGatherings(w http.ResponseWriter, r *http.Request) {
	list, err := s.Gatherings.List(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"gatherings": list})
}

func (s *Server) handleCreateGathering(w http.ResponseWriter, r *http.Request) {
	var input gatherings.Input
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	userID, name := actorFrom(r)
	g, err := s.Gatherings.Create(r.Context(), gatherings.Actor{UserID: userID, Name: name}, input)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func scopeParams(r *http.Request) (string, *time.Time, error) {
	scope := r.URL.Query().Get("scope")
	if scope == "" {
		scope = gatherings.ScopeAll
	}
	switch scope {
	case gatherings.ScopeThis, gatherings.ScopeFuture, gatherings.ScopeAll:
	default:
		return "", nil, errors.New("scope must be this, future, or all")
	}

	var occurrence *time.Time
	if raw := r.URL.Query().Get("occurrence"); raw != "" {
		at, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return "", nil, errors.New("occurrence must be RFC 3339")
		}
		occurrence = &at
	}
	return scope, occurrence, nil
}

func (s *Server) handleUpdateGathering(w http.ResponseWriter, r *http.Request) {
	scope, occurrence, err := scopeParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var input gatherings.Input
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	userID, name := actorFrom(r)
	g, err := s.Gatherings.Update(r.Context(), gatherings.Actor{UserID: userID, Name: name}, chi.URLParam(r, "id"), input, scope, occurrence)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleDeleteGathering(w http.ResponseWriter, r *http.Request) {
	scope, occurrence, err := scopeParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	userID, name := actorFrom(r)
	if err := s.Gatherings.Delete(r.Context(), gatherings.Actor{UserID: userID, Name: name}, chi.URLParam(r, "id"), scope, occurrence); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, members.ErrNotFound),
		errors.Is(err, care.ErrNotFound),
		errors.Is(err, gatherings.ErrNotFound),
		errors.Is(err, identity.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, identity.ErrInvalidCredentials),
		errors.Is(err, identity.ErrInvalidRefreshToken):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, identity.ErrInvalidEmail),
		errors.Is(err, identity.ErrInvalidPassword),
		errors.Is(err, identity.ErrRefreshTokenMissing),
		errors.Is(err, members.ErrNameRequired),
		errors.Is(err, care.ErrContentRequired),
		errors.Is(err, gatherings.ErrTitleRequired),
		errors.Is(err, gatherings.ErrInvalidRecurrence),
		errors.Is(err, gatherings.ErrOccurrenceRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
