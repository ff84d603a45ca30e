package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/trbojevicstefan/taskwise"
	"github.com/trbojevicstefan/taskwise/event"
	"github.com/trbojevicstefan/taskwise/id"
	"github.com/trbojevicstefan/taskwise/job"
	mw "github.com/trbojevicstefan/taskwise/middleware"
	"github.com/trbojevicstefan/taskwise/observability"
	"github.com/trbojevicstefan/taskwise/worker"
)

const tracerName = "github.com/trbojevicstefan/taskwise/engine"

// DefaultRetention is how long terminal events are kept.
const DefaultRetention = 30 * 24 * time.Hour

// Dispatch statuses reported by Outcome.
const (
	StatusHandled        = "handled"
	StatusAlreadyHandled = "already_handled"
)

// Engine publishes domain events and dispatches them exactly once
// effectively, either inline or through the job queue.
type Engine struct {
	queue   *job.Queue
	events  event.Store
	handler event.Handler
	worker  *worker.Worker
	kicker  *worker.Kicker
	logger  *slog.Logger
	tracer  trace.Tracer

	async          bool
	retention      time.Duration
	leaseTimeout   time.Duration
	jobMaxAttempts int
	kickDisabled   bool
	recorder       observability.Recorder
	tracerProvider trace.TracerProvider
	mws            []mw.Middleware
	workerOpts     []worker.Option
}

// Option configures an Engine.
type Option func(*Engine)

// WithAsync selects deferred dispatch through the job queue.
func WithAsync(async bool) Option {
	return func(e *Engine) { e.async = async }
}

// WithRetention sets how long handled and failed events are kept.
func WithRetention(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.retention = d
		}
	}
}

// WithLeaseTimeout bounds an event claim. A crashed dispatcher's claim
// becomes reclaimable once it expires. Zero keeps claims forever.
func WithLeaseTimeout(d time.Duration) Option {
	return func(e *Engine) { e.leaseTimeout = d }
}

// WithJobMaxAttempts sets the attempt limit of dispatch jobs. Zero uses
// the queue default.
func WithJobMaxAttempts(n int) Option {
	return func(e *Engine) { e.jobMaxAttempts = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithTracerProvider sets the OTel TracerProvider used for dispatch and
// job spans. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) { e.tracerProvider = tp }
}

// WithKickDisabled stops Publish from nudging the worker in async mode.
func WithKickDisabled(disabled bool) Option {
	return func(e *Engine) { e.kickDisabled = disabled }
}

// WithRecorder sets the job metrics sink used by the engine's worker.
func WithRecorder(r observability.Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithMiddleware appends job middleware after the defaults.
func WithMiddleware(mws ...mw.Middleware) Option {
	return func(e *Engine) { e.mws = append(e.mws, mws...) }
}

// WithWorkerOptions passes extra options to the engine's worker.
func WithWorkerOptions(opts ...worker.Option) Option {
	return func(e *Engine) { e.workerOpts = append(e.workerOpts, opts...) }
}

// New creates an Engine. The engine owns a worker whose handler table
// routes domain-event.dispatch jobs back into Dispatch.
func New(queue *job.Queue, events event.Store, handler event.Handler, opts ...Option) (*Engine, error) {
	if queue == nil || events == nil {
		return nil, taskwise.ErrNoStore
	}
	if handler == nil {
		return nil, fmt.Errorf("%w: event handler", taskwise.ErrHandlerMissing)
	}

	e := &Engine{
		queue:     queue,
		events:    events,
		handler:   handler,
		logger:    slog.Default(),
		retention: DefaultRetention,
		recorder:  observability.Nop{},
	}
	for _, opt := range opts {
		opt(e)
	}

	tp := e.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	e.tracer = tp.Tracer(tracerName)

	// Default chain: correlation, tracing, logging, then user middleware.
	chain := []mw.Middleware{
		mw.Correlation(),
		mw.TracingWithTracer(tp.Tracer("github.com/trbojevicstefan/taskwise")),
		mw.Logging(e.logger),
	}
	chain = append(chain, e.mws...)

	workerOpts := []worker.Option{
		worker.WithMiddleware(chain...),
		worker.WithRecorder(e.recorder),
		worker.WithLogger(e.logger),
	}
	workerOpts = append(workerOpts, e.workerOpts...)

	w, err := worker.New(queue, worker.Handlers{
		job.TypeDomainEventDispatch: e.handleDispatchJob,
	}, workerOpts...)
	if err != nil {
		return nil, err
	}
	e.worker = w
	e.kicker = worker.NewKicker(w,
		worker.WithKickDisabled(e.kickDisabled),
		worker.WithKickLogger(e.logger),
	)
	return e, nil
}

// Worker returns the engine's job worker. Run it in a worker.Pool to
// drain the queue.
func (e *Engine) Worker() *worker.Worker { return e.worker }

// Kicker returns the kicker Publish uses in async mode.
func (e *Engine) Kicker() *worker.Kicker { return e.kicker }

// Queue returns the engine's job queue.
func (e *Engine) Queue() *job.Queue { return e.queue }

// Async reports whether Publish defers dispatch to the job queue.
func (e *Engine) Async() bool { return e.async }

// GetEvent returns an event. A non-empty userID hides other users'
// events behind taskwise.ErrEventNotFound.
func (e *Engine) GetEvent(ctx context.Context, eventID id.EventID, userID string) (*event.Event, error) {
	evt, err := e.events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if userID != "" && evt.UserID != userID {
		return nil, taskwise.ErrEventNotFound
	}
	return evt, nil
}

// GetJob returns a job, scoped like GetEvent.
func (e *Engine) GetJob(ctx context.Context, jobID id.JobID, userID string) (*job.Job, error) {
	return e.queue.Get(ctx, jobID, userID)
}

// Wait blocks until an in-flight kick finishes.
func (e *Engine) Wait() { e.kicker.Wait() }

// DecodeResult unmarshals a raw event result into T.
func DecodeResult[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("taskwise: decode event result: %w", err)
	}
	return v, nil
}

func (e *Engine) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func correlationFor(ctx context.Context, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if c := taskwise.CorrelationID(ctx); c != "" {
		return c
	}
	return uuid.NewString()
}

// jobHandlerError marks errors that retrying cannot fix as permanent.
func jobHandlerError(err error) error {
	if errors.Is(err, taskwise.ErrEventNotFound) ||
		errors.Is(err, taskwise.ErrTaskNotFound) ||
		errors.Is(err, taskwise.ErrInvalidPayload) ||
		errors.Is(err, taskwise.ErrUnknownEventType) {
		return job.Permanent(err)
	}
	return err
}
