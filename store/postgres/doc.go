// Package postgres implements store.Full on PostgreSQL using pgx/v5 with
// raw SQL. Jobs are claimed with FOR UPDATE SKIP LOCKED; events with a
// single conditional UPDATE. Schema changes ship as embedded SQL
// migrations applied by Migrate.
//
// PostgreSQL has no TTL indexes, so expired events and old terminal jobs
// are removed by PurgeExpired, which worker.Pool calls periodically.
package postgres
