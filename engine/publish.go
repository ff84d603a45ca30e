package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/trbojevicstefan/taskwise"
	"github.com/trbojevicstefan/taskwise/event"
	"github.com/trbojevicstefan/taskwise/id"
	"github.com/trbojevicstefan/taskwise/job"
)

// Publication is what a producer gets back from Publish.
type Publication struct {
	EventID id.EventID   `json:"eventId"`
	Async   bool         `json:"async"`
	JobID   *id.JobID    `json:"jobId,omitempty"`
	Status  event.Status `json:"status"`
	// Result is the handler result in sync mode and the type's empty
	// placeholder in async mode.
	Result json.RawMessage `json:"result"`
}

// PublishOption configures a single Publish call.
type PublishOption func(*publishOptions)

type publishOptions struct {
	correlationID string
}

// WithCorrelationID sets the event's correlation ID. Without it the
// context's correlation ID is used, or a new one is generated.
func WithCorrelationID(correlationID string) PublishOption {
	return func(o *publishOptions) { o.correlationID = correlationID }
}

// Publish records a domain event for userID.
//
// In async mode the event is stored queued, a dispatch job is enqueued
// and the worker is kicked; the returned result is a placeholder and the
// side effects may not have been applied yet. If enqueueing fails the
// event stays queued and the error is returned.
//
// In sync mode the event is stored processing and dispatched inline;
// handler errors are returned to the caller.
func (e *Engine) Publish(ctx context.Context, userID string, payload event.Payload, opts ...PublishOption) (*Publication, error) {
	if payload == nil {
		return nil, fmt.Errorf("%w: nil event payload", taskwise.ErrInvalidPayload)
	}
	typ := payload.EventType()
	if !typ.Valid() {
		return nil, fmt.Errorf("%w: %q", taskwise.ErrUnknownEventType, typ)
	}

	var o publishOptions
	for _, opt := range opts {
		opt(&o)
	}
	correlationID := correlationFor(ctx, o.correlationID)
	ctx = taskwise.WithCorrelationID(ctx, correlationID)

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", taskwise.ErrInvalidPayload, err)
	}

	ctx, span := e.startSpan(ctx, "taskwise.event.publish",
		attribute.String("taskwise.event.type", string(typ)),
		attribute.String("taskwise.user_id", userID),
		attribute.String("taskwise.correlation_id", correlationID),
		attribute.Bool("taskwise.async", e.async),
	)
	pub, err := e.publish(ctx, userID, typ, raw, correlationID)
	endSpan(span, err)
	return pub, err
}

func (e *Engine) publish(ctx context.Context, userID string, typ event.Type, raw json.RawMessage, correlationID string) (*Publication, error) {
	now := e.queue.Now()
	evt := &event.Event{
		Entity:        taskwise.Entity{CreatedAt: now, UpdatedAt: now},
		ID:            id.NewEventID(),
		Type:          typ,
		UserID:        userID,
		CorrelationID: correlationID,
		Payload:       raw,
		Status:        event.StatusQueued,
	}
	if !e.async {
		// Inserted unclaimed; Dispatch claims it right away.
		evt.Status = event.StatusProcessing
	}
	if err := e.events.InsertEvent(ctx, evt); err != nil {
		return nil, fmt.Errorf("taskwise: publish event: %w", err)
	}

	e.logger.Debug("domain event published",
		slog.String("event_id", evt.ID.String()),
		slog.String("event_type", string(typ)),
		slog.String("user_id", userID),
		slog.String("correlation_id", correlationID),
		slog.Bool("async", e.async),
	)

	if !e.async {
		out, err := e.Dispatch(ctx, evt.ID, userID)
		if err != nil {
			return nil, err
		}
		return &Publication{
			EventID: evt.ID,
			Status:  event.StatusHandled,
			Result:  out.Result,
		}, nil
	}

	var jobOpts []job.EnqueueOption
	jobOpts = append(jobOpts, job.WithCorrelationID(correlationID))
	if e.jobMaxAttempts > 0 {
		jobOpts = append(jobOpts, job.WithMaxAttempts(e.jobMaxAttempts))
	}
	j, err := e.queue.Enqueue(ctx, job.TypeDomainEventDispatch, userID,
		job.DispatchPayload{EventID: evt.ID.String()}, jobOpts...)
	if err != nil {
		e.logger.Error("enqueue dispatch job",
			slog.String("event_id", evt.ID.String()),
			slog.String("event_type", string(typ)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	e.kicker.Kick(ctx)

	placeholder, err := json.Marshal(event.Placeholder(typ))
	if err != nil {
		return nil, fmt.Errorf("taskwise: encode placeholder: %w", err)
	}
	return &Publication{
		EventID: evt.ID,
		Async:   true,
		JobID:   &j.ID,
		Status:  event.StatusQueued,
		Result:  placeholder,
	}, nil
}
