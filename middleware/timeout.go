package middleware

import (
	"context"
	"time"

	"github.com/trbojevicstefan/taskwise/job"
)

// Timeout returns middleware that bounds each handler call. A zero d
// makes it a pass-through. Handlers should return once ctx is done.
func Timeout(d time.Duration) Middleware {
	return func(ctx context.Context, _ *job.Job, next Handler) error {
		if d <= 0 {
			return next(ctx)
		}
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return next(ctx)
	}
}
