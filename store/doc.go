// Package store defines the aggregate persistence interfaces.
//
// The composite [Store] covers the job queue, the domain event log and
// metric persistence:
//
//	type Store interface {
//	    job.Store
//	    event.Store
//	    observability.MetricStore
//
//	    Migrate(ctx context.Context) error
//	    Ping(ctx context.Context) error
//	    Close() error
//	}
//
// [ProductStore] covers the people, task and board collections the
// side-effect handlers write to. [Full] is both.
//
// # Available Backends
//
//   - store/memory: in-memory Full store for development and testing
//   - store/mongo: MongoDB Full store with TTL-based expiry
//   - store/postgres: PostgreSQL Full store using pgx/v5, expiring
//     records through [Purger]
//
// # Usage
//
//	s, err := mongo.New(ctx, "mongodb://localhost:27017", "taskwise")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	if err := s.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
package store
