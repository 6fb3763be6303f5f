// Package api exposes the bulkq orchestrator over HTTP: job submission and
// lifecycle operations for dashboard callers, the progress callback the
// worker posts to, and a WebSocket stream of lifecycle events.
//
// Callers are identified by the X-Account-ID header, which the API gateway
// in front of this service verifies. Every job route is scoped to that
// account; job ids cannot be probed across accounts.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mailscout/bulkq/orchestrator"
)

// OwnerHeader carries the verified account identifier set by the gateway.
const OwnerHeader = "X-Account-ID"

// API serves the bulkq HTTP surface.
type API struct {
	orc    *orchestrator.Orchestrator
	logger *slog.Logger

	// workerToken, when set, is the bearer token the worker must present
	// on the progress callback.
	workerToken string
}

// Option configures an API.
type Option func(*API)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) { a.logger = logger }
}

// WithWorkerToken requires the given bearer token on the worker progress
// callback. Empty disables the check (local development).
func WithWorkerToken(token string) Option {
	return func(a *API) { a.workerToken = token }
}

// New creates an API around an assembled orchestrator.
func New(orc *orchestrator.Orchestrator, opts ...Option) *API {
	a := &API{
		orc:    orc,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns the fully assembled http.Handler with all routes.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(a.logRequests)

	r.Get("/healthz", a.health)

	r.Route("/v1", func(r chi.Router) {
		// Dashboard surface, owner-scoped.
		r.Group(func(r chi.Router) {
			r.Use(a.requireOwner)
			r.Post("/jobs", a.submitJob)
			r.Get("/jobs", a.listJobs)
			r.Get("/jobs/{jobID}", a.getJob)
			r.Post("/jobs/{jobID}/dispatch", a.dispatchJob)
			r.Post("/jobs/{jobID}/stop", a.stopJob)
			r.Post("/jobs/{jobID}/resubmit", a.resubmitJob)
			r.Post("/jobs/{jobID}/pause", a.pauseJob)
			r.Post("/jobs/{jobID}/resume", a.resumeJob)
			r.Get("/queue/status", a.queueStatus)
			r.Get("/stream", a.handleStream)
		})

		// Worker callback, token-authenticated.
		r.Post("/jobs/{jobID}/progress", a.applyProgress)
	})

	return r
}

// health is the liveness probe.
func (a *API) health(w http.ResponseWriter, r *http.Request) {
	if err := a.orc.Store().Ping(r.Context()); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, errorBody{Error: "store unreachable"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requireOwner rejects requests missing the verified account header and
// stashes the owner in the request context.
func (a *API) requireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := r.Header.Get(OwnerHeader)
		if owner == "" {
			respondJSON(w, http.StatusUnauthorized, errorBody{Error: "missing " + OwnerHeader + " header"})
			return
		}
		next.ServeHTTP(w, r.WithContext(withOwner(r.Context(), owner)))
	})
}

// logRequests logs one line per request with the chi request id.
func (a *API) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		a.logger.Info("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
