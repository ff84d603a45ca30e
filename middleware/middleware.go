package middleware

import (
	"context"

	"github.com/trbojevicstefan/taskwise/job"
)

// Handler is the terminal function that executes job logic.
type Handler func(ctx context.Context) error

// Middleware wraps a Handler with cross-cutting logic.
// It receives the current context, the job being executed, and the
// next handler to call.
type Middleware func(ctx context.Context, j *job.Job, next Handler) error

// Chain composes multiple middleware into a single Middleware.
// The first middleware in the list is the outermost wrapper.
//
//	Chain(logging, recover) executes as logging → recover → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) error {
				return mw(ctx, j, prev)
			}
		}
		return h(ctx)
	}
}

// Correlation returns middleware that stores the job's correlation ID on
// the context so handlers and downstream logs can read it back with
// taskwise.CorrelationID.
func Correlation() Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		return next(withCorrelation(ctx, j))
	}
}
