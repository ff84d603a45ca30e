package job

import (
	"context"
	"encoding/json"
	"time"

	"github.com/trbojevicstefan/taskwise"
	"github.com/trbojevicstefan/taskwise/id"
)

// Transition describes one guarded status change of a job. The store
// applies it as a single conditional update that matches only when the
// job is still in From and still carries ExpectAttempts attempts; a
// mismatch yields taskwise.ErrInvalidState.
type Transition struct {
	// From is the status the job must currently have.
	From Status
	// To is the new status.
	To Status
	// ExpectAttempts guards against finalizing a job that was reclaimed
	// after its lease expired. Zero skips the check.
	ExpectAttempts int
	// LeaseExpiredBy additionally requires LeaseExpiresAt <= the given
	// time. Used by the lease reaper.
	LeaseExpiredBy *time.Time

	At         time.Time
	RunAt      *time.Time
	FinishedAt *time.Time
	Result     json.RawMessage
	Error      *taskwise.Failure
	// ClearError removes a previously stored error.
	ClearError bool
}

// CountOpts filters job count queries. Zero fields are ignored.
type CountOpts struct {
	Status Status
	// RunAtAtOrBefore keeps jobs with RunAt <= the given time.
	RunAtAtOrBefore *time.Time
	// RunAtAfter keeps jobs with RunAt > the given time.
	RunAtAfter *time.Time
	// FinishedSince keeps jobs with FinishedAt >= the given time.
	FinishedSince *time.Time
}

// ListOpts controls job list queries.
type ListOpts struct {
	Status Status
	// LeaseExpiredBy keeps jobs whose lease expired at or before the
	// given time.
	LeaseExpiredBy *time.Time
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
}

// Store defines the persistence contract for jobs. Every method is a
// single-document operation; none requires a multi-document transaction.
type Store interface {
	// InsertJob persists a new job.
	InsertJob(ctx context.Context, j *Job) error

	// ClaimJob atomically moves the most eligible queued job (RunAt <= now,
	// ordered by RunAt then CreatedAt) to running, sets StartedAt,
	// increments Attempts and sets LeaseExpiresAt to leaseUntil (nil for
	// no lease). Returns nil when no job is eligible.
	ClaimJob(ctx context.Context, now time.Time, leaseUntil *time.Time) (*Job, error)

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// TransitionJob applies a guarded status change.
	TransitionJob(ctx context.Context, jobID id.JobID, tr Transition) error

	// CountJobs returns the number of jobs matching opts.
	CountJobs(ctx context.Context, opts CountOpts) (int64, error)

	// ListJobs returns jobs matching opts ordered by CreatedAt.
	ListJobs(ctx context.Context, opts ListOpts) ([]*Job, error)
}
