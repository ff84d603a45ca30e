package postgres

import (
	"context"
	"fmt"
	"time"
)

// PurgeExpired deletes events past expires_at and terminal jobs finished
// before jobsFinishedBefore.
func (s *Store) PurgeExpired(ctx context.Context, now, jobsFinishedBefore time.Time) (int64, error) {
	events, err := s.pool.Exec(ctx,
		`DELETE FROM taskwise_domain_events WHERE expires_at IS NOT NULL AND expires_at <= $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("taskwise/postgres: purge events: %w", err)
	}

	jobs, err := s.pool.Exec(ctx, `
		DELETE FROM taskwise_jobs
		WHERE status IN ('succeeded', 'failed')
		  AND finished_at IS NOT NULL
		  AND finished_at < $1`,
		jobsFinishedBefore,
	)
	if err != nil {
		return events.RowsAffected(), fmt.Errorf("taskwise/postgres: purge jobs: %w", err)
	}

	return events.RowsAffected() + jobs.RowsAffected(), nil
}
