// Package backoff provides the retry delay strategies used when a job
// fails and still has attempts left. All strategies are stateless and
// safe for concurrent use.
package backoff

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"time"
)

// Strategy computes the delay before a job becomes eligible again.
type Strategy interface {
	// Delay returns how long to wait after the given number of attempts
	// have been consumed. attempts is 1 after the first failure.
	Delay(attempts int) time.Duration
}

// Func adapts an ordinary function to a Strategy.
type Func func(attempts int) time.Duration

// Delay calls f(attempts).
func (f Func) Delay(attempts int) time.Duration { return f(attempts) }

// ──────────────────────────────────────────────────
// Constant
// ──────────────────────────────────────────────────

// Constant always returns the same delay regardless of attempt number.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// ──────────────────────────────────────────────────
// Linear
// ──────────────────────────────────────────────────

// Linear increases the delay linearly with the attempt count.
// Delay = min(Step * attempts, Max). A zero Max means uncapped.
type Linear struct {
	Step time.Duration
	Max  time.Duration
}

// NewLinear creates a linear backoff strategy.
func NewLinear(step, maxDelay time.Duration) *Linear {
	return &Linear{Step: step, Max: maxDelay}
}

// Delay returns Step * attempts, capped at Max.
func (l *Linear) Delay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := l.Step * time.Duration(attempts)
	if l.Max > 0 && d > l.Max {
		return l.Max
	}
	return d
}

// ──────────────────────────────────────────────────
// ExponentialWithJitter (equal jitter)
// ──────────────────────────────────────────────────

// ExponentialWithJitter doubles the base each attempt and keeps the upper
// half of it plus a random share of the rest, so the delay never drops to
// zero while concurrent retries still spread out.
// Delay ∈ [base/2, base] with base = min(Initial * 2^(attempts-1), Max).
type ExponentialWithJitter struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponentialWithJitter creates an exponential backoff with jitter.
func NewExponentialWithJitter(initial, maxDelay time.Duration) *ExponentialWithJitter {
	return &ExponentialWithJitter{Initial: initial, Max: maxDelay}
}

// Delay returns a random duration in [base/2, base].
func (e *ExponentialWithJitter) Delay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	base := float64(e.Initial) * math.Pow(2, float64(attempts-1))
	if e.Max > 0 && base > float64(e.Max) {
		base = float64(e.Max)
	}
	half := base / 2
	return time.Duration(half + rand.Float64()*half) //nolint:gosec // jitter intentionally uses non-crypto rand
}

// ──────────────────────────────────────────────────
// Default / parsing
// ──────────────────────────────────────────────────

// DefaultStrategy returns the strategy used by job queues when none is
// configured: linear, ten seconds per consumed attempt.
func DefaultStrategy() Strategy {
	return NewLinear(10*time.Second, 0)
}

// Parse builds a strategy from a "kind:duration" spec such as
// "linear:10s", "constant:30s" or "exponential:5s". An empty spec returns
// DefaultStrategy.
func Parse(spec string) (Strategy, error) {
	if strings.TrimSpace(spec) == "" {
		return DefaultStrategy(), nil
	}

	kind, raw, ok := strings.Cut(spec, ":")
	if !ok {
		return nil, fmt.Errorf("backoff: parse %q: expected kind:duration", spec)
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return nil, fmt.Errorf("backoff: parse %q: %w", spec, err)
	}
	if d <= 0 {
		return nil, fmt.Errorf("backoff: parse %q: duration must be positive", spec)
	}

	switch strings.ToLower(kind) {
	case "linear":
		return NewLinear(d, 0), nil
	case "constant":
		return NewConstant(d), nil
	case "exponential":
		return NewExponentialWithJitter(d, 30*time.Minute), nil
	default:
		return nil, fmt.Errorf("backoff: parse %q: unknown kind %q", spec, kind)
	}
}
