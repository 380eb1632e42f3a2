// Package server exposes the submission history and live status over a
// local HTTP API.
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/formwatch/badge"
	"github.com/hazyhaar/formwatch/cycle"
	"github.com/hazyhaar/formwatch/track"
)

// Server serves the API.
type Server struct {
	tracker *track.Tracker
	anchor  cycle.Anchor
	// deadline is the weekly submission deadline shown to the user.
	deadline cycle.Anchor
	logger   *slog.Logger
	now      func() time.Time
}

// Config assembles a Server.
type Config struct {
	Tracker *track.Tracker
	// Anchor marks the start of the weekly cycle.
	Anchor cycle.Anchor
	// Deadline is the weekly wake-up treated as the due point.
	Deadline cycle.Anchor
	Logger   *slog.Logger
}

// New creates a Server.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{
		tracker:  cfg.Tracker,
		anchor:   cfg.Anchor,
		deadline: cfg.Deadline,
		logger:   cfg.Logger,
		now:      time.Now,
	}
}

// Router builds the chi handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/entries", s.handleListEntries)
		r.Post("/entries", s.handleManualAdd)
		r.Delete("/entries", s.handleClear)
		r.Get("/entries/{id}/export", s.handleExport)
		r.Delete("/entries/{id}", s.handleRemove)
		r.Get("/status", s.handleStatus)
		r.Get("/deadline", s.handleDeadline)
	})
	return r
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	entries := s.tracker.Entries(r.Context())
	if entries == nil {
		entries = []track.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleManualAdd(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.tracker.ManualAdd(r.Context())
	if !ok {
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.tracker.Clear(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.tracker.Remove(r.Context(), id) {
		http.Error(w, "entry not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entry, ok := s.tracker.Entry(r.Context(), id)
	if !ok {
		http.Error(w, "entry not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", track.ExportFilename(entry)))
	w.Write([]byte(track.ExportText(entry)))
}

type statusResponse struct {
	track.PendingStatus
	Badge badge.Badge `json:"badge"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.tracker.Status(r.Context())
	writeJSON(w, http.StatusOK, statusResponse{
		PendingStatus: st,
		Badge:         badge.ForState(st.State),
	})
}

type deadlineResponse struct {
	CycleStart string `json:"cycleStart"`
	Deadline   string `json:"deadline"`
	Remaining  string `json:"remaining"`
	Urgent     bool   `json:"urgent"`
}

// urgentWindow marks the final stretch before the deadline.
const urgentWindow = 24 * time.Hour

func (s *Server) handleDeadline(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	next := cycle.NextDeadline(s.deadline.Weekday, s.deadline.Hour, now)
	remaining := next.Sub(now)
	writeJSON(w, http.StatusOK, deadlineResponse{
		CycleStart: cycle.Start(s.anchor, now).Format(time.RFC3339),
		Deadline:   next.Format(time.RFC3339),
		Remaining:  remaining.Round(time.Second).String(),
		Urgent:     remaining <= urgentWindow,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Warn("server: encode response", "error", err)
	}
}
