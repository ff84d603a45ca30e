package job

import "time"

// DefaultMaxAttempts is the attempt budget of a job enqueued without
// WithMaxAttempts.
const DefaultMaxAttempts = 2

// EnqueueOptions configures a single enqueue call.
type EnqueueOptions struct {
	// MaxAttempts is the total number of attempts before the job fails
	// terminally.
	MaxAttempts int

	// RunAt schedules the job for later. Zero means now.
	RunAt time.Time

	// CorrelationID is propagated to logs and metrics. Empty means the
	// correlation ID from the context, or a fresh one.
	CorrelationID string
}

// EnqueueOption is a functional option for Queue.Enqueue.
type EnqueueOption func(*EnqueueOptions)

// WithMaxAttempts sets the total attempt budget.
func WithMaxAttempts(n int) EnqueueOption {
	return func(o *EnqueueOptions) {
		o.MaxAttempts = n
	}
}

// WithRunAt schedules the job for execution at a specific time.
func WithRunAt(t time.Time) EnqueueOption {
	return func(o *EnqueueOptions) {
		o.RunAt = t
	}
}

// WithCorrelationID sets the correlation ID of the job.
func WithCorrelationID(correlationID string) EnqueueOption {
	return func(o *EnqueueOptions) {
		o.CorrelationID = correlationID
	}
}
