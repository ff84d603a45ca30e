package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Kicker processes one job in the background right after an enqueue, for
// deployments without a polling process. Concurrent kicks collapse into
// the one in flight. Kicks carry no completion guarantee: errors and
// panics are logged, never returned.
type Kicker struct {
	worker   *Worker
	disabled bool
	timeout  time.Duration
	logger   *slog.Logger

	inFlight atomic.Bool
	wg       sync.WaitGroup
}

// KickerOption configures a Kicker.
type KickerOption func(*Kicker)

// WithKickDisabled turns Kick into a no-op.
func WithKickDisabled(disabled bool) KickerOption {
	return func(k *Kicker) { k.disabled = disabled }
}

// WithKickTimeout bounds each background run. Defaults to 30s.
func WithKickTimeout(d time.Duration) KickerOption {
	return func(k *Kicker) {
		if d > 0 {
			k.timeout = d
		}
	}
}

// WithKickLogger sets the logger.
func WithKickLogger(l *slog.Logger) KickerOption {
	return func(k *Kicker) { k.logger = l }
}

// NewKicker creates a Kicker driving w.
func NewKicker(w *Worker, opts ...KickerOption) *Kicker {
	k := &Kicker{worker: w, timeout: 30 * time.Second, logger: w.logger}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Kick starts a background run unless kicks are disabled or one is
// already in flight. It reports whether a run started.
func (k *Kicker) Kick(ctx context.Context) bool {
	if k.disabled {
		return false
	}
	if !k.inFlight.CompareAndSwap(false, true) {
		return false
	}

	k.wg.Add(1)
	go func() {
		defer k.wg.Done()
		defer k.inFlight.Store(false)
		defer func() {
			if r := recover(); r != nil {
				k.logger.Error("job kick panicked", slog.String("panic", fmt.Sprint(r)))
			}
		}()

		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), k.timeout)
		defer cancel()

		if _, err := k.worker.ProcessNext(runCtx); err != nil {
			k.logger.Warn("job kick failed", slog.String("error", err.Error()))
		}
	}()
	return true
}

// Wait blocks until the in-flight run, if any, finishes.
func (k *Kicker) Wait() {
	k.wg.Wait()
}
