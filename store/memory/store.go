// Package memory provides a fully in-memory implementation of store.Full.
// It is safe for concurrent access and intended for unit tests and
// development. Records are copied on the way in and out so callers can
// mutate what they hold without racing the store.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/trbojevicstefan/taskwise/effects"
	"github.com/trbojevicstefan/taskwise/event"
	"github.com/trbojevicstefan/taskwise/job"
	"github.com/trbojevicstefan/taskwise/observability"
)

// Compile-time interface checks. store cannot be imported here without a
// cycle in tests, so each contract is checked separately.
var (
	_ job.Store                 = (*Store)(nil)
	_ event.Store               = (*Store)(nil)
	_ effects.PersonStore       = (*Store)(nil)
	_ effects.TaskStore         = (*Store)(nil)
	_ effects.BoardStore        = (*Store)(nil)
	_ observability.MetricStore = (*Store)(nil)
)

// Store is an in-memory store.Full.
type Store struct {
	mu sync.RWMutex

	jobs    map[string]*job.Job
	events  map[string]*event.Event
	people  map[string]*effects.Person
	tasks   map[string]*effects.Task
	board   map[string]*effects.BoardItem
	metrics []*observability.Metric
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs:   make(map[string]*job.Job),
		events: make(map[string]*event.Event),
		people: make(map[string]*effects.Person),
		tasks:  make(map[string]*effects.Task),
		board:  make(map[string]*effects.BoardItem),
	}
}

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// PurgeExpired removes events past expiresAt and terminal jobs finished
// before jobsFinishedBefore.
func (m *Store) PurgeExpired(_ context.Context, now, jobsFinishedBefore time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for key, e := range m.events {
		if e.ExpiresAt != nil && !e.ExpiresAt.After(now) {
			delete(m.events, key)
			n++
		}
	}
	for key, j := range m.jobs {
		if j.Status.Terminal() && j.FinishedAt != nil && j.FinishedAt.Before(jobsFinishedBefore) {
			delete(m.jobs, key)
			n++
		}
	}
	return n, nil
}

// Metrics returns a copy of every recorded metric.
func (m *Store) Metrics() []observability.Metric {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]observability.Metric, len(m.metrics))
	for i, metric := range m.metrics {
		out[i] = *metric
	}
	return out
}

// InsertMetric appends a metric record.
func (m *Store) InsertMetric(_ context.Context, metric *observability.Metric) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *metric
	m.metrics = append(m.metrics, &cp)
	return nil
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
