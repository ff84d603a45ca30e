package store

import (
	"context"
	"time"

	"github.com/trbojevicstefan/taskwise/effects"
	"github.com/trbojevicstefan/taskwise/event"
	"github.com/trbojevicstefan/taskwise/job"
	"github.com/trbojevicstefan/taskwise/observability"
)

// Store is the persistence interface of the queue and dispatch engine.
type Store interface {
	job.Store
	event.Store
	observability.MetricStore

	// Migrate creates or updates indexes and schema.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}

// ProductStore is the persistence interface of the side-effect handlers.
type ProductStore interface {
	effects.PersonStore
	effects.TaskStore
	effects.BoardStore
}

// Full is implemented by backends that host both the dispatcher and the
// product collections.
type Full interface {
	Store
	ProductStore
}

// Purger is implemented by backends without native TTL expiry. The worker
// pool calls it periodically.
type Purger interface {
	// PurgeExpired deletes events whose expiresAt passed and terminal jobs
	// finished before jobsFinishedBefore. It returns the number of
	// records removed.
	PurgeExpired(ctx context.Context, now, jobsFinishedBefore time.Time) (int64, error)
}
