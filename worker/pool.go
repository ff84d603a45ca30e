package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Purger removes expired records. Backends without native TTL expiry
// implement it.
type Purger interface {
	PurgeExpired(ctx context.Context, now, jobsFinishedBefore time.Time) (int64, error)
}

// Pool runs a set of polling goroutines over a Worker, plus background
// loops that reap expired job leases and purge expired records.
type Pool struct {
	worker       *Worker
	logger       *slog.Logger
	concurrency  int
	batchSize    int
	pollInterval time.Duration

	reapInterval  time.Duration
	purger        Purger
	purgeInterval time.Duration
	jobRetention  time.Duration

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolConcurrency sets the number of polling goroutines.
func WithPoolConcurrency(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithBatchSize sets how many jobs each poll processes at most.
func WithBatchSize(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithPollInterval sets how long an idle goroutine sleeps between polls.
func WithPollInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.pollInterval = d }
}

// WithReapInterval sets how often expired job leases are reaped. A zero
// value disables the reaper.
func WithReapInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.reapInterval = d }
}

// WithPurger enables periodic purging of expired events and of terminal
// jobs older than jobRetention.
func WithPurger(pg Purger, interval, jobRetention time.Duration) PoolOption {
	return func(p *Pool) {
		p.purger = pg
		p.purgeInterval = interval
		p.jobRetention = jobRetention
	}
}

// WithPoolLogger sets the logger.
func WithPoolLogger(l *slog.Logger) PoolOption {
	return func(p *Pool) { p.logger = l }
}

// NewPool creates a worker pool.
func NewPool(w *Worker, opts ...PoolOption) *Pool {
	p := &Pool{
		worker:       w,
		logger:       w.logger,
		concurrency:  1,
		batchSize:    10,
		pollInterval: time.Second,
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the worker goroutines. It returns immediately.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true
	p.ctx, p.cancel = context.WithCancel(context.Background())

	p.logger.Info("worker pool starting",
		slog.Int("concurrency", p.concurrency),
		slog.Int("batch_size", p.batchSize),
		slog.Duration("poll_interval", p.pollInterval),
	)

	for range p.concurrency {
		p.wg.Add(1)
		go p.pollLoop()
	}

	if p.reapInterval > 0 {
		p.wg.Add(1)
		go p.every(p.reapInterval, p.reapExpiredLeases)
	}

	if p.purger != nil && p.purgeInterval > 0 {
		p.wg.Add(1)
		go p.every(p.purgeInterval, p.purgeExpired)
	}

	return nil
}

// Stop signals all goroutines to stop and waits for them to finish. If
// ctx ends first, in-flight jobs are cancelled.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.logger.Info("worker pool stopping")
	close(p.stopCh)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out, cancelling active jobs")
		p.cancel()
		p.wg.Wait()
	}
	p.cancel()
	return nil
}

// pollLoop is run by each polling goroutine.
func (p *Pool) pollLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		sum, err := p.worker.ProcessQueued(p.ctx, p.batchSize)
		if err != nil {
			p.logger.Error("process queued jobs", slog.String("error", err.Error()))
			p.sleep()
			continue
		}
		if sum.Processed < p.batchSize {
			p.sleep()
		}
	}
}

func (p *Pool) every(interval time.Duration, fn func()) {
	defer p.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			fn()
		}
	}
}

func (p *Pool) reapExpiredLeases() {
	n, err := p.worker.queue.ReapExpiredLeases(p.ctx, 100)
	if err != nil {
		p.logger.Error("reap expired leases", slog.String("error", err.Error()))
		return
	}
	if n > 0 {
		p.logger.Info("reaped expired job leases", slog.Int("count", n))
	}
}

func (p *Pool) purgeExpired() {
	now := p.worker.queue.Now()
	n, err := p.purger.PurgeExpired(p.ctx, now, now.Add(-p.jobRetention))
	if err != nil {
		p.logger.Error("purge expired records", slog.String("error", err.Error()))
		return
	}
	if n > 0 {
		p.logger.Info("purged expired records", slog.Int64("count", n))
	}
}

func (p *Pool) sleep() {
	select {
	case <-time.After(p.pollInterval):
	case <-p.stopCh:
	}
}
