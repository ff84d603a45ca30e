package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/trbojevicstefan/taskwise"
	"github.com/trbojevicstefan/taskwise/event"
	"github.com/trbojevicstefan/taskwise/id"
	"github.com/trbojevicstefan/taskwise/job"
	mw "github.com/trbojevicstefan/taskwise/middleware"
)

// Outcome is the result of a Dispatch call.
type Outcome struct {
	EventID id.EventID `json:"eventId"`
	// Status is StatusHandled when this call ran the handler and
	// StatusAlreadyHandled when another dispatch did.
	Status string          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
}

// Dispatch applies the side effects of an event at most once
// effectively. A handled event returns its cached result without calling
// the handler. Otherwise the event is claimed atomically; losing the
// claim is not an error and yields StatusAlreadyHandled with whatever
// result is stored. Handler failures mark the event failed and are
// returned.
func (e *Engine) Dispatch(ctx context.Context, eventID id.EventID, userID string) (*Outcome, error) {
	ctx, span := e.startSpan(ctx, "taskwise.event.dispatch",
		attribute.String("taskwise.event.id", eventID.String()),
		attribute.String("taskwise.user_id", userID),
	)
	out, err := e.dispatch(ctx, eventID, userID)
	if out != nil {
		span.SetAttributes(attribute.String("taskwise.dispatch.status", out.Status))
	}
	endSpan(span, err)
	return out, err
}

func (e *Engine) dispatch(ctx context.Context, eventID id.EventID, userID string) (*Outcome, error) {
	evt, err := e.GetEvent(ctx, eventID, userID)
	if err != nil {
		return nil, err
	}
	if evt.Status == event.StatusHandled {
		return alreadyHandled(evt), nil
	}

	now := e.queue.Now()
	claim := event.Claim{Now: now, Token: uuid.NewString()}
	if e.leaseTimeout > 0 {
		until := now.Add(e.leaseTimeout)
		claim.LeaseUntil = &until
	}
	claimed, err := e.events.ClaimEvent(ctx, eventID, claim)
	if err != nil {
		return nil, fmt.Errorf("taskwise: claim event %s: %w", eventID, err)
	}
	if claimed == nil {
		current, err := e.events.GetEvent(ctx, eventID)
		if err != nil {
			return nil, err
		}
		e.logger.Debug("domain event claimed elsewhere",
			slog.String("event_id", eventID.String()),
			slog.String("status", string(current.Status)),
		)
		return alreadyHandled(current), nil
	}

	log := e.logger.With(
		slog.String("event_id", claimed.ID.String()),
		slog.String("event_type", string(claimed.Type)),
		slog.String("user_id", claimed.UserID),
		slog.String("correlation_id", claimed.CorrelationID),
	)
	ctx = taskwise.WithCorrelationID(ctx, claimed.CorrelationID)

	raw, herr := e.invoke(ctx, claimed)
	finishedAt := e.queue.Now()
	fin := event.Finalize{
		Token:     claim.Token,
		At:        finishedAt,
		ExpiresAt: finishedAt.Add(e.retention),
	}
	if herr != nil {
		fin.To = event.StatusFailed
		fin.Error = taskwise.NewFailure(herr)
		if err := e.events.FinalizeEvent(ctx, eventID, fin); err != nil {
			log.Error("record failed domain event", slog.String("error", err.Error()))
			return nil, errors.Join(herr, err)
		}
		log.Warn("domain event failed",
			slog.Int("attempt", claimed.Attempts),
			slog.String("error", herr.Error()),
		)
		return nil, herr
	}

	fin.To = event.StatusHandled
	fin.Result = raw
	if err := e.events.FinalizeEvent(ctx, eventID, fin); err != nil {
		if !errors.Is(err, taskwise.ErrInvalidState) {
			return nil, fmt.Errorf("taskwise: finalize event %s: %w", eventID, err)
		}
		// The lease expired mid-run and another dispatcher took over. The
		// effects are applied; report them rather than trigger a retry.
		log.Warn("domain event lease lost before finalize")
	} else {
		log.Info("domain event handled", slog.Int("attempt", claimed.Attempts))
	}
	return &Outcome{EventID: eventID, Status: StatusHandled, Result: raw}, nil
}

// invoke runs the handler for evt. A handler panic is returned as a
// *middleware.PanicError so the claimed event is still finalized.
func (e *Engine) invoke(ctx context.Context, evt *event.Event) (_ json.RawMessage, retErr error) {
	defer func() {
		if r := recover(); r != nil {
			retErr = &mw.PanicError{Value: r, Stack: string(debug.Stack())}
		}
	}()

	payload, err := event.Decode(evt.Type, evt.Payload)
	if err != nil {
		return nil, err
	}
	result, err := event.Invoke(ctx, e.handler, event.MetaOf(evt), payload)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("taskwise: encode event result: %w", err)
	}
	return raw, nil
}

func alreadyHandled(evt *event.Event) *Outcome {
	return &Outcome{EventID: evt.ID, Status: StatusAlreadyHandled, Result: evt.Result}
}

// handleDispatchJob is the worker handler for domain-event.dispatch jobs.
func (e *Engine) handleDispatchJob(ctx context.Context, j *job.Job) (any, error) {
	var p job.DispatchPayload
	if err := j.DecodePayload(&p); err != nil {
		return nil, job.Permanent(err)
	}
	eventID, err := id.ParseEventID(p.EventID)
	if err != nil {
		return nil, job.Permanent(fmt.Errorf("%w: event id %q: %v", taskwise.ErrInvalidPayload, p.EventID, err))
	}

	out, err := e.Dispatch(ctx, eventID, j.UserID)
	if err != nil {
		return nil, jobHandlerError(err)
	}
	return out, nil
}
