// Package worker executes queued jobs.
//
// A [Worker] claims one job at a time, routes it by type through the
// middleware chain to its handler, and records the outcome on the queue
// and the metrics recorder. Handler errors and panics never escape
// [Worker.ProcessNext]; only store failures do.
//
// Three callers drive a Worker:
//
//   - [Worker.ProcessQueued] drains up to N jobs and samples backlog
//     health at most once per interval.
//   - [Kicker] runs one job in the background right after an enqueue,
//     collapsing concurrent kicks into one.
//   - [Pool] polls on a fixed interval with N goroutines and reaps jobs
//     whose lease expired.
package worker
