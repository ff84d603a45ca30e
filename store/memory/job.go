package memory

import (
	"context"
	"slices"
	"time"

	"github.com/trbojevicstefan/taskwise"
	"github.com/trbojevicstefan/taskwise/id"
	"github.com/trbojevicstefan/taskwise/job"
)

func cloneJob(j *job.Job) *job.Job {
	cp := *j
	cp.Payload = slices.Clone(j.Payload)
	cp.Result = slices.Clone(j.Result)
	cp.StartedAt = cloneTime(j.StartedAt)
	cp.FinishedAt = cloneTime(j.FinishedAt)
	cp.LeaseExpiresAt = cloneTime(j.LeaseExpiresAt)
	if j.Error != nil {
		e := *j.Error
		cp.Error = &e
	}
	return &cp
}

// InsertJob persists a new job.
func (m *Store) InsertJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	if _, exists := m.jobs[key]; exists {
		return taskwise.ErrJobAlreadyExists
	}
	m.jobs[key] = cloneJob(j)
	return nil
}

// ClaimJob claims the queued job with the earliest RunAt, then CreatedAt,
// among those with RunAt <= now.
func (m *Store) ClaimJob(_ context.Context, now time.Time, leaseUntil *time.Time) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var next *job.Job
	for _, j := range m.jobs {
		if !j.Eligible(now) {
			continue
		}
		if next == nil || claimsBefore(j, next) {
			next = j
		}
	}
	if next == nil {
		return nil, nil
	}

	next.Status = job.StatusRunning
	next.Attempts++
	next.StartedAt = &now
	next.LeaseExpiresAt = cloneTime(leaseUntil)
	next.UpdatedAt = now
	return cloneJob(next), nil
}

func claimsBefore(a, b *job.Job) bool {
	if !a.RunAt.Equal(b.RunAt) {
		return a.RunAt.Before(b.RunAt)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID.String() < b.ID.String()
}

// GetJob retrieves a job by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, taskwise.ErrJobNotFound
	}
	return cloneJob(j), nil
}

// TransitionJob applies a guarded status change.
func (m *Store) TransitionJob(_ context.Context, jobID id.JobID, tr job.Transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return taskwise.ErrJobNotFound
	}
	if j.Status != tr.From || !tr.From.CanTransition(tr.To) {
		return taskwise.ErrInvalidState
	}
	if tr.ExpectAttempts != 0 && j.Attempts != tr.ExpectAttempts {
		return taskwise.ErrInvalidState
	}
	if tr.LeaseExpiredBy != nil && (j.LeaseExpiresAt == nil || j.LeaseExpiresAt.After(*tr.LeaseExpiredBy)) {
		return taskwise.ErrInvalidState
	}

	j.Status = tr.To
	j.UpdatedAt = tr.At
	j.LeaseExpiresAt = nil
	if tr.RunAt != nil {
		j.RunAt = *tr.RunAt
	}
	if tr.FinishedAt != nil {
		j.FinishedAt = cloneTime(tr.FinishedAt)
	}
	if tr.Result != nil {
		j.Result = slices.Clone(tr.Result)
	}
	if tr.Error != nil {
		e := *tr.Error
		j.Error = &e
	} else if tr.ClearError {
		j.Error = nil
	}
	return nil
}

// CountJobs returns the number of jobs matching opts.
func (m *Store) CountJobs(_ context.Context, opts job.CountOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, j := range m.jobs {
		if opts.Status != "" && j.Status != opts.Status {
			continue
		}
		if opts.RunAtAtOrBefore != nil && j.RunAt.After(*opts.RunAtAtOrBefore) {
			continue
		}
		if opts.RunAtAfter != nil && !j.RunAt.After(*opts.RunAtAfter) {
			continue
		}
		if opts.FinishedSince != nil && (j.FinishedAt == nil || j.FinishedAt.Before(*opts.FinishedSince)) {
			continue
		}
		n++
	}
	return n, nil
}

// ListJobs returns jobs matching opts ordered by CreatedAt.
func (m *Store) ListJobs(_ context.Context, opts job.ListOpts) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*job.Job
	for _, j := range m.jobs {
		if opts.Status != "" && j.Status != opts.Status {
			continue
		}
		if opts.LeaseExpiredBy != nil && (j.LeaseExpiresAt == nil || j.LeaseExpiresAt.After(*opts.LeaseExpiredBy)) {
			continue
		}
		out = append(out, cloneJob(j))
	}
	slices.SortFunc(out, func(a, b *job.Job) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}
