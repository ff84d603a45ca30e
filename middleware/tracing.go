package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/trbojevicstefan/taskwise/job"
)

// tracerName is the instrumentation scope name for job tracing.
const tracerName = "github.com/trbojevicstefan/taskwise"

// Tracing returns middleware that wraps job execution in an OpenTelemetry
// span using the global TracerProvider.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer returns tracing middleware using the provided tracer.
//
// Span attributes: taskwise.job.id, taskwise.job.type, taskwise.job.attempt,
// taskwise.job.max_attempts, taskwise.user_id, taskwise.correlation_id.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		ctx, span := tracer.Start(ctx, "taskwise.job.execute",
			trace.WithAttributes(
				attribute.String("taskwise.job.id", j.ID.String()),
				attribute.String("taskwise.job.type", string(j.Type)),
				attribute.Int("taskwise.job.attempt", j.Attempts),
				attribute.Int("taskwise.job.max_attempts", j.MaxAttempts),
				attribute.String("taskwise.user_id", j.UserID),
				attribute.String("taskwise.correlation_id", j.CorrelationID),
			),
			trace.WithSpanKind(trace.SpanKindConsumer),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		return err
	}
}
