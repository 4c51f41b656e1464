// Package server exposes the tutoring core over HTTP: ask, feedback,
// ingestion, comprehension stats, and a health probe.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"sensei/internal/comprehension"
	"sensei/internal/config"
	"sensei/internal/jobs"
	"sensei/internal/logging"
	"sensei/internal/store"
	"sensei/internal/tutor"
)

// Server is the HTTP front of the tutoring core.
type Server struct {
	cfg   *config.Config
	tutor *tutor.Tutor
	jobs  *jobs.Manager
	store *store.LocalStore
}

// New creates a server over the tutor, job manager, and store.
func New(cfg *config.Config, t *tutor.Tutor, m *jobs.Manager, s *store.LocalStore) *Server {
	return &Server{cfg: cfg, tutor: t, jobs: m, store: s}
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/ask", s.handleAsk)
		r.Post("/feedback", s.handleFeedback)
		r.Post("/ingest", s.handleIngest)
		r.Get("/comprehension/{learner}/{session}", s.handleComprehension)
	})

	return r
}

// ListenAndServe runs the server until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.API("Listening on %s", s.cfg.Server.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logging.API("%s %s -> %d (%s)", r.Method, r.URL.Path, ww.Status(), time.Since(start).Round(time.Millisecond))
	})
}

// =============================================================================
// HANDLERS
// =============================================================================

type askRequest struct {
	LearnerID string `json:"learner_id"`
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
}

type askResponse struct {
	*tutor.Answer
	NoMaterial bool   `json:"no_material,omitempty"`
	Message    string `json:"message,omitempty"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.LearnerID == "" || req.SessionID == "" || req.Question == "" {
		writeError(w, http.StatusBadRequest, "learner_id, session_id, and question are required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout())
	defer cancel()

	answer, err := s.tutor.Ask(ctx, req.LearnerID, req.SessionID, req.Question)
	if errors.Is(err, tutor.ErrNoMaterial) {
		// A designed terminal state, not a server failure.
		writeJSON(w, http.StatusOK, askResponse{
			NoMaterial: true,
			Message:    "The course material does not cover this question.",
		})
		return
	}
	if err != nil {
		logging.Get(logging.CategoryAPI).Error("Ask failed: %v", err)
		writeError(w, http.StatusBadGateway, "failed to answer the question")
		return
	}

	writeJSON(w, http.StatusOK, askResponse{Answer: answer})
}

type feedbackRequest struct {
	LearnerID string `json:"learner_id"`
	SessionID string `json:"session_id"`
	Reaction  string `json:"reaction"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.LearnerID == "" || req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "learner_id and session_id are required")
		return
	}

	record, err := s.tutor.RecordReaction(r.Context(), req.LearnerID, req.SessionID, req.Reaction)
	if errors.Is(err, comprehension.ErrUnknownReaction) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		logging.Get(logging.CategoryAPI).Error("Feedback failed: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to record reaction")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"score":            record.Score,
		"difficulty_level": record.Level.String(),
		"trend":            record.Trend,
	})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req jobs.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := s.jobs.Submit(r.Context(), req)
	if err != nil {
		if req.SessionID == "" {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		logging.Get(logging.CategoryAPI).Error("Ingest failed: %v", err)
		writeError(w, http.StatusInternalServerError, "ingestion failed")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleComprehension(w http.ResponseWriter, r *http.Request) {
	learner := chi.URLParam(r, "learner")
	session := chi.URLParam(r, "session")

	stats, err := s.tutor.Comprehension(r.Context(), learner, session)
	if err != nil {
		logging.Get(logging.CategoryAPI).Error("Comprehension lookup failed: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load comprehension record")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"name":    s.cfg.Name,
		"version": s.cfg.Version,
	})
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func (s *Server) requestTimeout() time.Duration {
	d, err := time.ParseDuration(s.cfg.Server.RequestTimeout)
	if err != nil || d <= 0 {
		return 180 * time.Second
	}
	return d
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Get(logging.CategoryAPI).Error("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
