package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/trbojevicstefan/taskwise"
	"github.com/trbojevicstefan/taskwise/id"
	"github.com/trbojevicstefan/taskwise/job"
)

const jobColumns = `
	id, type, user_id, correlation_id, payload, status, attempts, max_attempts,
	run_at, started_at, finished_at, lease_expires_at, result, error,
	created_at, updated_at`

// InsertJob persists a new job.
func (s *Store) InsertJob(ctx context.Context, j *job.Job) error {
	failure, err := encodeFailure(j.Error)
	if err != nil {
		return fmt.Errorf("taskwise/postgres: encode job error: %w", err)
	}
	payload := []byte(j.Payload)
	if len(payload) == 0 {
		payload = []byte("null")
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO taskwise_jobs (`+jobColumns+`
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13, $14,
			$15, $16
		)`,
		j.ID.String(), string(j.Type), j.UserID, j.CorrelationID, payload,
		string(j.Status), j.Attempts, j.MaxAttempts,
		j.RunAt, j.StartedAt, j.FinishedAt, j.LeaseExpiresAt,
		nullJSON(j.Result), failure,
		j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return taskwise.ErrJobAlreadyExists
		}
		return fmt.Errorf("taskwise/postgres: insert job: %w", err)
	}
	return nil
}

// ClaimJob atomically claims the queued job with the earliest run_at, then
// created_at, among those with run_at <= now. Concurrent claimers skip
// rows locked by each other.
func (s *Store) ClaimJob(ctx context.Context, now time.Time, leaseUntil *time.Time) (*job.Job, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE taskwise_jobs
		SET status = 'running',
		    attempts = attempts + 1,
		    started_at = $1,
		    lease_expires_at = $2,
		    updated_at = $1
		WHERE id = (
			SELECT id FROM taskwise_jobs
			WHERE status = 'queued'
			  AND run_at <= $1
			ORDER BY run_at ASC, created_at ASC, id ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING `+jobColumns,
		now, leaseUntil,
	)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("taskwise/postgres: claim job: %w", err)
	}
	return j, nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM taskwise_jobs WHERE id = $1`,
		jobID.String(),
	)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, taskwise.ErrJobNotFound
		}
		return nil, fmt.Errorf("taskwise/postgres: get job: %w", err)
	}
	return j, nil
}

// TransitionJob applies a guarded status change in one conditional
// UPDATE.
func (s *Store) TransitionJob(ctx context.Context, jobID id.JobID, tr job.Transition) error {
	if !tr.From.CanTransition(tr.To) {
		return taskwise.ErrInvalidState
	}

	failure, err := encodeFailure(tr.Error)
	if err != nil {
		return fmt.Errorf("taskwise/postgres: encode job error: %w", err)
	}

	query := `
		UPDATE taskwise_jobs SET
			status = $3,
			updated_at = $4,
			lease_expires_at = NULL,
			run_at = COALESCE($5::timestamptz, run_at),
			finished_at = COALESCE($6::timestamptz, finished_at),
			result = COALESCE($7::jsonb, result),
			error = CASE
				WHEN $8::jsonb IS NOT NULL THEN $8::jsonb
				WHEN $9 THEN NULL
				ELSE error
			END
		WHERE id = $1 AND status = $2`
	args := []any{
		jobID.String(), string(tr.From), string(tr.To), tr.At,
		tr.RunAt, tr.FinishedAt, nullJSON(tr.Result), failure, tr.ClearError,
	}
	argIdx := len(args) + 1

	if tr.ExpectAttempts != 0 {
		query += fmt.Sprintf(" AND attempts = $%d", argIdx)
		args = append(args, tr.ExpectAttempts)
		argIdx++
	}
	if tr.LeaseExpiredBy != nil {
		query += fmt.Sprintf(" AND lease_expires_at IS NOT NULL AND lease_expires_at <= $%d", argIdx)
		args = append(args, *tr.LeaseExpiredBy)
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("taskwise/postgres: transition job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		ok, err := s.exists(ctx, "taskwise_jobs", jobID.String())
		if err != nil {
			return fmt.Errorf("taskwise/postgres: transition job: %w", err)
		}
		if !ok {
			return taskwise.ErrJobNotFound
		}
		return taskwise.ErrInvalidState
	}
	return nil
}

// CountJobs returns the number of jobs matching opts.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	query := `SELECT COUNT(*) FROM taskwise_jobs WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(opts.Status))
		argIdx++
	}
	if opts.RunAtAtOrBefore != nil {
		query += fmt.Sprintf(" AND run_at <= $%d", argIdx)
		args = append(args, *opts.RunAtAtOrBefore)
		argIdx++
	}
	if opts.RunAtAfter != nil {
		query += fmt.Sprintf(" AND run_at > $%d", argIdx)
		args = append(args, *opts.RunAtAfter)
		argIdx++
	}
	if opts.FinishedSince != nil {
		query += fmt.Sprintf(" AND finished_at >= $%d", argIdx)
		args = append(args, *opts.FinishedSince)
	}

	var count int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("taskwise/postgres: count jobs: %w", err)
	}
	return count, nil
}

// ListJobs returns jobs matching opts ordered by created_at.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM taskwise_jobs WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(opts.Status))
		argIdx++
	}
	if opts.LeaseExpiredBy != nil {
		query += fmt.Sprintf(" AND lease_expires_at IS NOT NULL AND lease_expires_at <= $%d", argIdx)
		args = append(args, *opts.LeaseExpiredBy)
		argIdx++
	}

	query += " ORDER BY created_at ASC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("taskwise/postgres: list jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// exists reports whether table has a row with the given id.
func (s *Store) exists(ctx context.Context, table, rowID string) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM `+table+` WHERE id = $1)`, rowID,
	).Scan(&ok)
	return ok, err
}

// scanJob scans a single job row.
func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j         job.Job
		idStr     string
		typeStr   string
		statusStr string
		payload   []byte
		result    []byte
		failure   []byte
	)
	err := row.Scan(
		&idStr, &typeStr, &j.UserID, &j.CorrelationID, &payload, &statusStr,
		&j.Attempts, &j.MaxAttempts,
		&j.RunAt, &j.StartedAt, &j.FinishedAt, &j.LeaseExpiresAt,
		&result, &failure,
		&j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	parsedID, err := id.ParseJobID(idStr)
	if err != nil {
		return nil, fmt.Errorf("taskwise/postgres: parse job id %q: %w", idStr, err)
	}
	j.ID = parsedID
	j.Type = job.Type(typeStr)
	j.Status = job.Status(statusStr)
	j.Payload = payload
	j.Result = result
	if j.Error, err = decodeFailure(failure); err != nil {
		return nil, fmt.Errorf("taskwise/postgres: decode job error: %w", err)
	}

	return &j, nil
}

// collectJobs collects all jobs from query rows.
func collectJobs(rows pgx.Rows) ([]*job.Job, error) {
	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("taskwise/postgres: scan job row: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("taskwise/postgres: iterate job rows: %w", err)
	}
	return jobs, nil
}
