package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/trbojevicstefan/taskwise/observability"
)

// InsertMetric appends a metric record.
func (s *Store) InsertMetric(ctx context.Context, m *observability.Metric) error {
	var attrs []byte
	if len(m.Attributes) > 0 {
		var err error
		if attrs, err = json.Marshal(m.Attributes); err != nil {
			return fmt.Errorf("taskwise/postgres: encode metric attributes: %w", err)
		}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO taskwise_metrics (
			kind, name, outcome, user_id, correlation_id, duration_ms, attributes, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.Kind, m.Name, m.Outcome, m.UserID, m.CorrelationID, m.DurationMs, attrs, m.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("taskwise/postgres: insert metric: %w", err)
	}
	return nil
}
