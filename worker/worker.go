package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/trbojevicstefan/taskwise"
	"github.com/trbojevicstefan/taskwise/cluster"
	"github.com/trbojevicstefan/taskwise/job"
	"github.com/trbojevicstefan/taskwise/middleware"
	"github.com/trbojevicstefan/taskwise/observability"
)

// HandlerFunc executes one job and returns its result.
type HandlerFunc func(ctx context.Context, j *job.Job) (any, error)

// Handlers maps every job type to its handler.
type Handlers map[job.Type]HandlerFunc

// Execution describes one processed job.
type Execution struct {
	Job      *job.Job
	Outcome  string
	Err      error
	Duration time.Duration
}

// Summary aggregates a ProcessQueued run.
type Summary struct {
	Processed int
	Succeeded int
	Retried   int
	Failed    int
	// Backlog is set when this run sampled backlog health.
	Backlog *BacklogReport
}

// Worker claims and executes jobs.
type Worker struct {
	queue      *job.Queue
	handlers   Handlers
	mws        []middleware.Middleware
	chain      middleware.Middleware
	recorder   observability.Recorder
	logger     *slog.Logger
	gate       cluster.Gate
	thresholds Thresholds
	observer   BacklogObserver
}

// Option configures a Worker.
type Option func(*Worker)

// WithMiddleware appends middleware around every handler call. Panic
// recovery is always the innermost layer.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(w *Worker) { w.mws = append(w.mws, mws...) }
}

// WithRecorder sets the job metrics sink. Wrap slow or fallible sinks in
// observability.Detached.
func WithRecorder(r observability.Recorder) Option {
	return func(w *Worker) { w.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) { w.logger = l }
}

// WithBacklogGate sets the gate limiting backlog sampling. Defaults to a
// one-minute LocalGate.
func WithBacklogGate(g cluster.Gate) Option {
	return func(w *Worker) { w.gate = g }
}

// WithBacklogThresholds sets the queuedReady counts at which backlog is
// classified warn and critical.
func WithBacklogThresholds(warn, critical int64) Option {
	return func(w *Worker) { w.thresholds = Thresholds{Warn: warn, Critical: critical} }
}

// WithBacklogObserver receives every backlog sample.
func WithBacklogObserver(o BacklogObserver) Option {
	return func(w *Worker) { w.observer = o }
}

// New creates a Worker. It fails with taskwise.ErrHandlerMissing when any
// job type has no handler.
func New(queue *job.Queue, handlers Handlers, opts ...Option) (*Worker, error) {
	for _, typ := range job.Types() {
		if handlers[typ] == nil {
			return nil, fmt.Errorf("%w: job type %q", taskwise.ErrHandlerMissing, typ)
		}
	}

	w := &Worker{
		queue:      queue,
		handlers:   handlers,
		recorder:   observability.Nop{},
		logger:     slog.Default(),
		gate:       cluster.NewLocalGate(time.Minute),
		thresholds: DefaultThresholds,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.chain = middleware.Chain(append(w.mws, middleware.Recover(w.logger))...)
	return w, nil
}

// Queue returns the worker's queue.
func (w *Worker) Queue() *job.Queue { return w.queue }

// ProcessNext claims and executes one job. It returns nil when nothing
// is ready. The returned error is non-nil only for store failures.
func (w *Worker) ProcessNext(ctx context.Context) (*Execution, error) {
	j, err := w.queue.ClaimNext(ctx)
	if err != nil {
		return nil, err
	}
	if j == nil {
		return nil, nil
	}
	return w.execute(ctx, j)
}

func (w *Worker) execute(ctx context.Context, j *job.Job) (*Execution, error) {
	start := time.Now()
	exec := &Execution{Job: j}

	var result any
	handlerErr := w.chain(ctx, j, func(ctx context.Context) error {
		h, ok := w.handlers[j.Type]
		if !ok {
			return job.Permanent(fmt.Errorf("%w: %q", taskwise.ErrUnknownJobType, j.Type))
		}
		var err error
		result, err = h(ctx, j)
		return err
	})
	exec.Duration = time.Since(start)
	exec.Err = handlerErr

	var markErr error
	if handlerErr == nil {
		exec.Outcome = observability.OutcomeSucceeded
		markErr = w.queue.MarkSucceeded(ctx, j, result)
	} else {
		var outcome job.Outcome
		outcome, markErr = w.queue.MarkFailed(ctx, j, handlerErr)
		exec.Outcome = string(outcome)
		if outcome == "" {
			exec.Outcome = observability.OutcomeFailed
		}
		if outcome == job.OutcomeRetried {
			w.logger.Info("job scheduled for retry",
				slog.String("job_id", j.ID.String()),
				slog.String("job_type", string(j.Type)),
				slog.Int("attempt", j.Attempts),
				slog.Int("max_attempts", j.MaxAttempts),
				slog.Time("run_at", j.RunAt),
			)
		} else if markErr == nil {
			w.logger.Warn("job failed terminally",
				slog.String("job_id", j.ID.String()),
				slog.String("job_type", string(j.Type)),
				slog.Int("attempts", j.Attempts),
				slog.String("error", handlerErr.Error()),
			)
		}
	}

	w.recordJob(ctx, j, exec)

	if markErr != nil {
		if errors.Is(markErr, taskwise.ErrInvalidState) {
			// The lease expired and another worker owns the job now.
			w.logger.Warn("job finalized elsewhere",
				slog.String("job_id", j.ID.String()),
				slog.String("job_type", string(j.Type)),
			)
			return exec, nil
		}
		return exec, markErr
	}
	return exec, nil
}

// recordJob emits the job metric for exec. Sink failures are logged.
func (w *Worker) recordJob(ctx context.Context, j *job.Job, exec *Execution) {
	err := w.recorder.RecordJob(ctx, observability.JobMetric{
		JobID:         j.ID.String(),
		JobType:       string(j.Type),
		UserID:        j.UserID,
		CorrelationID: j.CorrelationID,
		Outcome:       exec.Outcome,
		Attempts:      j.Attempts,
		Retried:       j.Attempts > 1,
		Duration:      exec.Duration,
		RecordedAt:    w.queue.Now(),
	})
	if err != nil {
		w.logger.Warn("record job metric failed",
			slog.String("job_id", j.ID.String()),
			slog.String("job_type", string(j.Type)),
			slog.String("error", err.Error()),
		)
	}
}

// ProcessQueued executes up to maxJobs jobs, stopping early when the
// queue is empty, then samples backlog health if the gate allows.
func (w *Worker) ProcessQueued(ctx context.Context, maxJobs int) (Summary, error) {
	var sum Summary
	for sum.Processed < maxJobs {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		exec, err := w.ProcessNext(ctx)
		if err != nil {
			return sum, err
		}
		if exec == nil {
			break
		}
		sum.Processed++
		switch exec.Outcome {
		case observability.OutcomeSucceeded:
			sum.Succeeded++
		case observability.OutcomeRetried:
			sum.Retried++
		case observability.OutcomeFailed:
			sum.Failed++
		}
	}

	sum.Backlog = w.sampleBacklog(ctx)
	return sum, nil
}
