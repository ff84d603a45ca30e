package cluster

import (
	"context"
	"sync"
	"time"
)

// Gate grants the right to perform a periodic action at most once per
// interval.
type Gate interface {
	// Allow reports whether the caller may act now. A true result starts
	// a new interval.
	Allow(ctx context.Context) (bool, error)
}

// LocalGate is an in-process Gate.
type LocalGate struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	now      func() time.Time
}

// NewLocalGate creates a gate opening once per interval. A zero interval
// always allows.
func NewLocalGate(interval time.Duration) *LocalGate {
	return &LocalGate{interval: interval, now: time.Now}
}

// WithClock overrides the time source and returns g.
func (g *LocalGate) WithClock(now func() time.Time) *LocalGate {
	g.now = now
	return g
}

// Allow implements Gate.
func (g *LocalGate) Allow(_ context.Context) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if !g.last.IsZero() && now.Sub(g.last) < g.interval {
		return false, nil
	}
	g.last = now
	return true, nil
}
