package mongo

import (
	"context"
	"fmt"

	"github.com/trbojevicstefan/taskwise/observability"
)

// InsertMetric appends a metric record.
func (s *Store) InsertMetric(ctx context.Context, m *observability.Metric) error {
	if _, err := s.db.Collection(colMetrics).InsertOne(ctx, toMetricModel(m)); err != nil {
		return fmt.Errorf("taskwise/mongo: insert metric: %w", err)
	}
	return nil
}
