package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/trbojevicstefan/taskwise/engine"
	"github.com/trbojevicstefan/taskwise/observability"
)

// UserHeader carries the user a request is scoped to.
const UserHeader = "X-User-ID"

// API wires the operator HTTP handlers to an Engine.
type API struct {
	eng      *engine.Engine
	recorder observability.Recorder
	logger   *slog.Logger
	health   func(ctx context.Context) error
	metrics  http.Handler
}

// Option configures the API.
type Option func(*API)

// WithRecorder records one RouteMetric per request.
func WithRecorder(r observability.Recorder) Option {
	return func(a *API) { a.recorder = r }
}

// WithLogger sets the logger for request failures.
func WithLogger(l *slog.Logger) Option {
	return func(a *API) { a.logger = l }
}

// WithHealthCheck sets the probe behind /healthz, typically the store's
// Ping.
func WithHealthCheck(fn func(ctx context.Context) error) Option {
	return func(a *API) { a.health = fn }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *API) { a.metrics = h }
}

// New creates an API for eng.
func New(eng *engine.Engine, opts ...Option) *API {
	a := &API{
		eng:      eng,
		recorder: observability.Nop{},
		logger:   slog.Default(),
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
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", a.healthz)
	if a.metrics != nil {
		r.Method(http.MethodGet, "/metrics", a.metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(a.routeMetrics)

		r.Get("/queue/snapshot", a.queueSnapshot)
		r.Get("/jobs/{jobID}", a.getJob)
		r.Get("/events/{eventID}", a.getEvent)
		r.Post("/events/{eventID}/dispatch", a.dispatchEvent)
	})

	return r
}
