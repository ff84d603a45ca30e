package job

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/trbojevicstefan/taskwise"
	"github.com/trbojevicstefan/taskwise/backoff"
	"github.com/trbojevicstefan/taskwise/id"
)

// Snapshot is a point-in-time view of queue depth.
type Snapshot struct {
	QueuedReady   int64     `json:"queuedReady"`
	QueuedDelayed int64     `json:"queuedDelayed"`
	Running       int64     `json:"running"`
	FailedLast24h int64     `json:"failedLast24h"`
	CheckedAt     time.Time `json:"checkedAt"`
}

// Outcome describes what MarkFailed did with a job.
type Outcome string

const (
	// OutcomeRetried means the job was requeued with a later RunAt.
	OutcomeRetried Outcome = "retried"
	// OutcomeFailed means the job reached the terminal failed status.
	OutcomeFailed Outcome = "failed"
)

// Queue implements the job queue operations on top of a Store.
type Queue struct {
	store       Store
	backoff     backoff.Strategy
	now         func() time.Time
	logger      *slog.Logger
	lease       time.Duration
	maxAttempts int
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithBackoff sets the retry delay strategy. Defaults to linear 10s steps.
func WithBackoff(s backoff.Strategy) QueueOption {
	return func(q *Queue) { q.backoff = s }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) QueueOption {
	return func(q *Queue) { q.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) QueueOption {
	return func(q *Queue) { q.logger = l }
}

// WithLeaseTimeout sets how long a claimed job may run before the reaper
// treats it as abandoned. Zero disables leases.
func WithLeaseTimeout(d time.Duration) QueueOption {
	return func(q *Queue) { q.lease = d }
}

// WithDefaultMaxAttempts sets the attempt budget for jobs enqueued without
// WithMaxAttempts.
func WithDefaultMaxAttempts(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.maxAttempts = n
		}
	}
}

// NewQueue creates a Queue backed by s.
func NewQueue(s Store, opts ...QueueOption) *Queue {
	q := &Queue{
		store:       s,
		backoff:     backoff.DefaultStrategy(),
		now:         func() time.Time { return time.Now().UTC() },
		logger:      slog.Default(),
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Store returns the underlying job store.
func (q *Queue) Store() Store { return q.store }

// Now returns the queue's current time.
func (q *Queue) Now() time.Time { return q.now() }

// Enqueue persists a new queued job. payload is marshaled to JSON unless
// it is already a json.RawMessage.
func (q *Queue) Enqueue(ctx context.Context, typ Type, userID string, payload any, opts ...EnqueueOption) (*Job, error) {
	if !typ.Valid() {
		return nil, fmt.Errorf("%w: %q", taskwise.ErrUnknownJobType, typ)
	}

	o := EnqueueOptions{MaxAttempts: q.maxAttempts}
	for _, opt := range opts {
		opt(&o)
	}
	if o.MaxAttempts < 1 {
		o.MaxAttempts = 1
	}

	raw, err := marshalPayload(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", taskwise.ErrInvalidPayload, err)
	}

	now := q.now()
	runAt := now
	if !o.RunAt.IsZero() {
		runAt = o.RunAt.UTC()
	}
	correlationID := o.CorrelationID
	if correlationID == "" {
		correlationID = taskwise.CorrelationID(ctx)
	}
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	j := &Job{
		Entity:        taskwise.Entity{CreatedAt: now, UpdatedAt: now},
		ID:            id.NewJobID(),
		Type:          typ,
		UserID:        userID,
		CorrelationID: correlationID,
		Payload:       raw,
		Status:        StatusQueued,
		MaxAttempts:   o.MaxAttempts,
		RunAt:         runAt,
	}
	if err := q.store.InsertJob(ctx, j); err != nil {
		return nil, fmt.Errorf("taskwise: enqueue job: %w", err)
	}

	q.logger.Debug("job enqueued",
		slog.String("job_id", j.ID.String()),
		slog.String("job_type", string(j.Type)),
		slog.String("user_id", j.UserID),
		slog.String("correlation_id", j.CorrelationID),
	)
	return j, nil
}

// ClaimNext atomically claims the next eligible job. It returns nil when
// the queue has nothing ready.
func (q *Queue) ClaimNext(ctx context.Context) (*Job, error) {
	now := q.now()
	var leaseUntil *time.Time
	if q.lease > 0 {
		t := now.Add(q.lease)
		leaseUntil = &t
	}
	j, err := q.store.ClaimJob(ctx, now, leaseUntil)
	if err != nil {
		return nil, fmt.Errorf("taskwise: claim job: %w", err)
	}
	return j, nil
}

// MarkSucceeded moves a running job to succeeded and stores result.
// A stale worker whose job was reclaimed gets taskwise.ErrInvalidState.
func (q *Queue) MarkSucceeded(ctx context.Context, j *Job, result any) error {
	raw, err := marshalPayload(result)
	if err != nil {
		return fmt.Errorf("%w: result: %v", taskwise.ErrInvalidPayload, err)
	}
	now := q.now()
	err = q.store.TransitionJob(ctx, j.ID, Transition{
		From:           StatusRunning,
		To:             StatusSucceeded,
		ExpectAttempts: j.Attempts,
		At:             now,
		FinishedAt:     &now,
		Result:         raw,
		ClearError:     true,
	})
	if err != nil {
		return fmt.Errorf("taskwise: mark job %s succeeded: %w", j.ID, err)
	}
	j.Status = StatusSucceeded
	j.FinishedAt = &now
	j.LeaseExpiresAt = nil
	j.Result = raw
	j.Error = nil
	j.UpdatedAt = now
	return nil
}

// MarkFailed records cause on a running job. The job is requeued with
// RunAt = now + backoff(attempts) while attempts remain and cause is not
// permanent; otherwise it fails terminally.
func (q *Queue) MarkFailed(ctx context.Context, j *Job, cause error) (Outcome, error) {
	return q.markFailed(ctx, j, cause, nil)
}

func (q *Queue) markFailed(ctx context.Context, j *Job, cause error, leaseExpiredBy *time.Time) (Outcome, error) {
	now := q.now()
	failure := taskwise.NewFailure(cause)
	tr := Transition{
		From:           StatusRunning,
		ExpectAttempts: j.Attempts,
		LeaseExpiredBy: leaseExpiredBy,
		At:             now,
		Error:          failure,
	}

	outcome := OutcomeFailed
	if j.Attempts < j.MaxAttempts && !IsPermanent(cause) {
		delay := q.backoff.Delay(j.Attempts)
		if delay <= 0 {
			delay = time.Millisecond
		}
		runAt := now.Add(delay)
		tr.To = StatusQueued
		tr.RunAt = &runAt
		outcome = OutcomeRetried
	} else {
		tr.To = StatusFailed
		tr.FinishedAt = &now
	}

	if err := q.store.TransitionJob(ctx, j.ID, tr); err != nil {
		return "", fmt.Errorf("taskwise: mark job %s failed: %w", j.ID, err)
	}

	j.Status = tr.To
	j.Error = failure
	j.LeaseExpiresAt = nil
	j.UpdatedAt = now
	if tr.RunAt != nil {
		j.RunAt = *tr.RunAt
	}
	if tr.FinishedAt != nil {
		j.FinishedAt = tr.FinishedAt
	}
	return outcome, nil
}

// Snapshot returns the current queue depth. The four counts run
// concurrently and are not taken from a single consistent read.
func (q *Queue) Snapshot(ctx context.Context) (*Snapshot, error) {
	now := q.now()
	dayAgo := now.Add(-24 * time.Hour)
	snap := &Snapshot{CheckedAt: now}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		snap.QueuedReady, err = q.store.CountJobs(gctx, CountOpts{Status: StatusQueued, RunAtAtOrBefore: &now})
		return err
	})
	g.Go(func() (err error) {
		snap.QueuedDelayed, err = q.store.CountJobs(gctx, CountOpts{Status: StatusQueued, RunAtAfter: &now})
		return err
	})
	g.Go(func() (err error) {
		snap.Running, err = q.store.CountJobs(gctx, CountOpts{Status: StatusRunning})
		return err
	})
	g.Go(func() (err error) {
		snap.FailedLast24h, err = q.store.CountJobs(gctx, CountOpts{Status: StatusFailed, FinishedSince: &dayAgo})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("taskwise: queue snapshot: %w", err)
	}
	return snap, nil
}

// Get returns a job by ID. A non-empty userID scopes the lookup: a job
// owned by another user is reported as not found.
func (q *Queue) Get(ctx context.Context, jobID id.JobID, userID string) (*Job, error) {
	j, err := q.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if userID != "" && j.UserID != userID {
		return nil, taskwise.ErrJobNotFound
	}
	return j, nil
}

// ReapExpiredLeases sends every running job whose lease expired through
// the normal failure policy. It returns the number of jobs reaped.
func (q *Queue) ReapExpiredLeases(ctx context.Context, limit int) (int, error) {
	now := q.now()
	stale, err := q.store.ListJobs(ctx, ListOpts{
		Status:         StatusRunning,
		LeaseExpiredBy: &now,
		Limit:          limit,
	})
	if err != nil {
		return 0, fmt.Errorf("taskwise: list expired leases: %w", err)
	}

	reaped := 0
	for _, j := range stale {
		cause := fmt.Errorf("job lease expired at %s", j.LeaseExpiresAt.Format(time.RFC3339))
		outcome, err := q.markFailed(ctx, j, cause, &now)
		if err != nil {
			// Finalized or reclaimed since the list; nothing to reap.
			q.logger.Debug("lease reap skipped",
				slog.String("job_id", j.ID.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		reaped++
		q.logger.Warn("reaped job with expired lease",
			slog.String("job_id", j.ID.String()),
			slog.String("job_type", string(j.Type)),
			slog.Int("attempts", j.Attempts),
			slog.String("outcome", string(outcome)),
		)
	}
	return reaped, nil
}

func marshalPayload(v any) (json.RawMessage, error) {
	switch p := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	case []byte:
		return json.RawMessage(p), nil
	default:
		return json.Marshal(v)
	}
}
