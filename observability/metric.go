package observability

import (
	"context"
	"time"
)

// Job outcomes as recorded in JobMetric.Outcome.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeRetried   = "retried"
	OutcomeFailed    = "failed"
)

// JobMetric describes one job execution.
type JobMetric struct {
	JobID         string
	JobType       string
	UserID        string
	CorrelationID string
	Outcome       string
	Attempts      int
	Retried       bool
	Duration      time.Duration
	RecordedAt    time.Time
}

// RouteMetric describes one HTTP request served by the operator API.
type RouteMetric struct {
	Route      string
	Method     string
	StatusCode int
	UserID     string
	Duration   time.Duration
	RecordedAt time.Time
}

// ExternalCallMetric describes one call to a collaborator service.
type ExternalCallMetric struct {
	Provider   string
	Operation  string
	Outcome    string
	UserID     string
	Duration   time.Duration
	RecordedAt time.Time
}

// Recorder is a metrics sink. Implementations may block and may fail.
type Recorder interface {
	RecordJob(ctx context.Context, m JobMetric) error
	RecordRoute(ctx context.Context, m RouteMetric) error
	RecordExternalCall(ctx context.Context, m ExternalCallMetric) error
}

// Nop discards every metric.
type Nop struct{}

func (Nop) RecordJob(context.Context, JobMetric) error                   { return nil }
func (Nop) RecordRoute(context.Context, RouteMetric) error               { return nil }
func (Nop) RecordExternalCall(context.Context, ExternalCallMetric) error { return nil }
