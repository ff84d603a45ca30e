package observability

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name for taskwise metrics.
const meterName = "github.com/trbojevicstefan/taskwise"

// OTelRecorder records metrics as OpenTelemetry instruments.
//
// Instruments:
//   - taskwise.job.duration (Float64Histogram, s): job_type, outcome
//   - taskwise.job.executions (Int64Counter): job_type, outcome, retried
//   - taskwise.route.duration (Float64Histogram, s): route, method, status_code
//   - taskwise.external_call.duration (Float64Histogram, s): provider, operation, outcome
type OTelRecorder struct {
	jobDuration  metric.Float64Histogram
	jobCount     metric.Int64Counter
	routeLatency metric.Float64Histogram
	callLatency  metric.Float64Histogram
}

// NewOTelRecorder creates a recorder on the global MeterProvider.
func NewOTelRecorder() *OTelRecorder {
	return NewOTelRecorderWithMeter(otel.Meter(meterName))
}

// NewOTelRecorderWithMeter creates a recorder using the provided meter.
func NewOTelRecorderWithMeter(meter metric.Meter) *OTelRecorder {
	// On error the API returns noop instruments, so errors are ignored.
	jobDuration, _ := meter.Float64Histogram(
		"taskwise.job.duration",
		metric.WithDescription("Duration of job execution in seconds"),
		metric.WithUnit("s"),
	)
	jobCount, _ := meter.Int64Counter(
		"taskwise.job.executions",
		metric.WithDescription("Total number of job executions"),
		metric.WithUnit("{execution}"),
	)
	routeLatency, _ := meter.Float64Histogram(
		"taskwise.route.duration",
		metric.WithDescription("Duration of operator API requests in seconds"),
		metric.WithUnit("s"),
	)
	callLatency, _ := meter.Float64Histogram(
		"taskwise.external_call.duration",
		metric.WithDescription("Duration of collaborator calls in seconds"),
		metric.WithUnit("s"),
	)
	return &OTelRecorder{
		jobDuration:  jobDuration,
		jobCount:     jobCount,
		routeLatency: routeLatency,
		callLatency:  callLatency,
	}
}

func (r *OTelRecorder) RecordJob(ctx context.Context, m JobMetric) error {
	attrs := metric.WithAttributes(
		attribute.String("job_type", m.JobType),
		attribute.String("outcome", m.Outcome),
	)
	r.jobDuration.Record(ctx, m.Duration.Seconds(), attrs)
	r.jobCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("job_type", m.JobType),
		attribute.String("outcome", m.Outcome),
		attribute.Bool("retried", m.Retried),
	))
	return nil
}

func (r *OTelRecorder) RecordRoute(ctx context.Context, m RouteMetric) error {
	r.routeLatency.Record(ctx, m.Duration.Seconds(), metric.WithAttributes(
		attribute.String("route", m.Route),
		attribute.String("method", m.Method),
		attribute.String("status_code", strconv.Itoa(m.StatusCode)),
	))
	return nil
}

func (r *OTelRecorder) RecordExternalCall(ctx context.Context, m ExternalCallMetric) error {
	r.callLatency.Record(ctx, m.Duration.Seconds(), metric.WithAttributes(
		attribute.String("provider", m.Provider),
		attribute.String("operation", m.Operation),
		attribute.String("outcome", m.Outcome),
	))
	return nil
}
