package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/websum/internal/config"
	"github.com/JakeFAU/websum/internal/id/uuid"
	"github.com/JakeFAU/websum/internal/metrics"
	"github.com/JakeFAU/websum/internal/scheduler"
	"github.com/JakeFAU/websum/internal/store"
	"github.com/JakeFAU/websum/internal/websum"
)

const requestTimeout = 30 * time.Second

// JobService is the scheduler surface the handlers need.
type JobService interface {
	Submit(key, rawURL string) (string, error)
	Status(id string) (websum.Job, error)
	Cancel(id string) bool
	QueueStatus(key string) scheduler.QueueStatus
	Forget(id string) bool
}

// ReadinessCheck reports an error while a dependency is unavailable.
type ReadinessCheck func(ctx context.Context) error

// Option customises a Server.
type Option func(*Server)

// WithHistory lets status lookups fall back to persisted job history once the
// scheduler has evicted a job.
func WithHistory(repo store.HistoryRepository) Option {
	return func(s *Server) { s.history = repo }
}

// WithReadinessCheck adds a named check to /readyz.
func WithReadinessCheck(name string, check ReadinessCheck) Option {
	return func(s *Server) {
		if check != nil {
			s.checks = append(s.checks, namedCheck{name: name, check: check})
		}
	}
}

type namedCheck struct {
	name  string
	check ReadinessCheck
}

// Server wires HTTP handlers to the scheduler.
type Server struct {
	router  chi.Router
	jobs    JobService
	history store.HistoryRepository
	checks  []namedCheck
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(jobs JobService, cfg config.Config, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{jobs: jobs, logger: logger}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(timeoutMiddleware(requestTimeout))
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Post("/jobs", s.submitJob)
		r.Route("/jobs/{job_id}", func(r chi.Router) {
			r.Get("/", s.getJob)
			r.Post("/cancel", s.cancelJob)
		})
		r.Get("/conversations/{key}/queue", s.queueStatus)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	failed := map[string]string{}
	for _, c := range s.checks {
		if err := c.check(r.Context()); err != nil {
			failed[c.name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not ready", "checks": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type submitRequest struct {
	ConversationKey string `json:"conversation_key"`
	URL             string `json:"url"`
}

type submitResponse struct {
	JobID string          `json:"job_id"`
	State websum.JobState `json:"state"`
}

type rejectionResponse struct {
	Error  string            `json:"error"`
	Reason websum.QueueScope `json:"reason"`
	Limit  int               `json:"limit"`
}

func (s *Server) submitJob(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.ConversationKey = strings.TrimSpace(req.ConversationKey)
	req.URL = strings.TrimSpace(req.URL)
	if req.ConversationKey == "" {
		writeError(w, http.StatusBadRequest, "conversation_key required")
		return
	}
	if err := validateURL(req.URL); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	jobID, err := s.jobs.Submit(req.ConversationKey, req.URL)
	var full *websum.QueueFullError
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, submitResponse{JobID: jobID, State: websum.JobQueued})
	case errors.As(err, &full):
		w.Header().Set("Retry-After", "30")
		writeJSON(w, http.StatusTooManyRequests, rejectionResponse{
			Error:  full.Error(),
			Reason: full.Scope,
			Limit:  full.Limit,
		})
	case errors.Is(err, websum.ErrSchedulerClosed):
		writeError(w, http.StatusServiceUnavailable, "shutting down")
	default:
		s.logger.Error("submit job failed", zap.Error(err), zap.String("request_id", RequestID(r.Context())))
		writeError(w, http.StatusInternalServerError, "submit failed")
	}
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobs.Status(jobID)
	if errors.Is(err, websum.ErrJobNotFound) {
		s.historyFallback(w, r, jobID)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "status lookup failed")
		return
	}
	if job.State.IsTerminal() && ackRequested(r) {
		s.jobs.Forget(jobID)
	}
	writeJSON(w, http.StatusOK, job)
}

// historyFallback answers for jobs the scheduler no longer retains.
func (s *Server) historyFallback(w http.ResponseWriter, r *http.Request, jobID string) {
	if s.history == nil || !uuid.Valid(jobID) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	rec, err := s.history.Get(r.Context(), jobID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		s.logger.Warn("history lookup failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "status lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, jobFromRecord(rec))
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	cancelled := s.jobs.Cancel(jobID)
	if !cancelled {
		if _, err := s.jobs.Status(jobID); errors.Is(err, websum.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"job_id": jobID, "cancelled": cancelled})
}

func (s *Server) queueStatus(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	writeJSON(w, http.StatusOK, s.jobs.QueueStatus(key))
}

func validateURL(raw string) error {
	if raw == "" {
		return errors.New("url required")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return errors.New("url must be an absolute http(s) URL")
	}
	return nil
}

func ackRequested(r *http.Request) bool {
	ack, err := strconv.ParseBool(r.URL.Query().Get("ack"))
	return err == nil && ack
}

func jobFromRecord(rec store.JobRecord) websum.Job {
	job := websum.Job{
		ID:              rec.ID,
		ConversationKey: rec.ConversationKey,
		URL:             rec.URL,
		State:           websum.JobState(rec.State),
		SubmittedAt:     rec.SubmittedAt,
	}
	if rec.StartedAt != nil {
		job.StartedAt = *rec.StartedAt
	}
	if rec.FinishedAt != nil {
		job.FinishedAt = *rec.FinishedAt
	}
	if rec.Locator != nil {
		job.Locator = *rec.Locator
	}
	if rec.ErrorMessage != nil {
		job.Error = *rec.ErrorMessage
	}
	return job
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
