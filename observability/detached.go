package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultDetachTimeout bounds each detached recording.
const DefaultDetachTimeout = 5 * time.Second

// Detached runs every recording on its own goroutine, detached from the
// caller's cancellation, bounded by a timeout. Errors and panics are
// logged and never returned.
type Detached struct {
	next    Recorder
	logger  *slog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewDetached wraps next. A nil next records nothing.
func NewDetached(next Recorder, logger *slog.Logger) *Detached {
	if next == nil {
		next = Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Detached{next: next, logger: logger, timeout: DefaultDetachTimeout}
}

// WithTimeout sets the per-recording timeout and returns d.
func (d *Detached) WithTimeout(timeout time.Duration) *Detached {
	if timeout > 0 {
		d.timeout = timeout
	}
	return d
}

// RecordJob records m in the background. It always returns nil.
func (d *Detached) RecordJob(ctx context.Context, m JobMetric) error {
	d.run(ctx, "job", func(ctx context.Context) error { return d.next.RecordJob(ctx, m) })
	return nil
}

// RecordRoute records m in the background. It always returns nil.
func (d *Detached) RecordRoute(ctx context.Context, m RouteMetric) error {
	d.run(ctx, "route", func(ctx context.Context) error { return d.next.RecordRoute(ctx, m) })
	return nil
}

// RecordExternalCall records m in the background. It always returns nil.
func (d *Detached) RecordExternalCall(ctx context.Context, m ExternalCallMetric) error {
	d.run(ctx, "external_call", func(ctx context.Context) error { return d.next.RecordExternalCall(ctx, m) })
	return nil
}

// Wait blocks until every recording started so far has finished.
func (d *Detached) Wait() {
	d.wg.Wait()
}

func (d *Detached) run(parent context.Context, kind string, fn func(context.Context) error) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), d.timeout)
		defer cancel()

		err := func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return fn(ctx)
		}()
		if err != nil {
			d.logger.Warn("metrics recording failed",
				slog.String("metric_kind", kind),
				slog.String("error", err.Error()),
			)
		}
	}()
}
