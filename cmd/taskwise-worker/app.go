package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"

	"github.com/trbojevicstefan/taskwise/api"
	"github.com/trbojevicstefan/taskwise/cluster"
	"github.com/trbojevicstefan/taskwise/config"
	"github.com/trbojevicstefan/taskwise/effects"
	"github.com/trbojevicstefan/taskwise/engine"
	"github.com/trbojevicstefan/taskwise/job"
	"github.com/trbojevicstefan/taskwise/observability"
	"github.com/trbojevicstefan/taskwise/store"
	"github.com/trbojevicstefan/taskwise/store/memory"
	"github.com/trbojevicstefan/taskwise/store/mongo"
	"github.com/trbojevicstefan/taskwise/store/postgres"
	"github.com/trbojevicstefan/taskwise/worker"
)

// app holds the wired components of one worker process.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    store.Full
	engine   *engine.Engine
	pool     *worker.Pool
	server   *http.Server
	recorder *observability.Detached
	registry *prometheus.Registry

	closers []func(context.Context) error
}

// openStore connects the configured backend. The returned purger is nil
// for backends with native expiry.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Full, worker.Purger, error) {
	switch cfg.Store.Driver {
	case "memory":
		s := memory.New()
		return s, s, nil
	case "mongo":
		s, err := mongo.New(ctx, cfg.Store.MongoURI, cfg.Store.MongoDatabase,
			mongo.WithLogger(logger),
			mongo.WithJobRetention(cfg.JobRetention()),
		)
		if err != nil {
			return nil, nil, err
		}
		return s, nil, nil
	case "postgres":
		s, err := postgres.New(ctx, cfg.Store.PostgresURL, postgres.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// backlogGate shares backlog sampling across processes when Redis is
// configured.
func (a *app) backlogGate() cluster.Gate {
	interval := a.cfg.Worker.BacklogLogInterval
	if a.cfg.Redis.Addr == "" {
		return cluster.NewLocalGate(interval)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	a.closers = append(a.closers, func(context.Context) error { return client.Close() })
	return cluster.NewRedisGate(client, cluster.DefaultGateKey, interval)
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	tp := sdktrace.NewTracerProvider()
	mp := sdkmetric.NewMeterProvider()
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	a.closers = append(a.closers, tp.Shutdown, mp.Shutdown)

	st, purger, err := openStore(ctx, cfg, logger)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.store = st
	a.closers = append(a.closers, func(context.Context) error { return st.Close() })

	if err := st.Migrate(ctx); err != nil {
		a.close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	prom := observability.NewPrometheusRecorder(a.registry)
	a.recorder = observability.NewDetached(observability.Multi(
		prom,
		observability.NewOTelRecorder(),
		observability.NewStoreRecorder(st),
	), logger)

	strategy, err := cfg.Backoff()
	if err != nil {
		a.close()
		return nil, err
	}
	queue := job.NewQueue(st,
		job.WithBackoff(strategy),
		job.WithLogger(logger),
		job.WithLeaseTimeout(cfg.Worker.JobLeaseTimeout),
		job.WithDefaultMaxAttempts(cfg.Dispatch.JobMaxAttempts),
	)

	handlers := effects.New(st, st, st,
		effects.WithRecorder(a.recorder),
		effects.WithLogger(logger),
	)

	a.engine, err = engine.New(queue, st, handlers,
		engine.WithAsync(cfg.Dispatch.AsyncEnabled),
		engine.WithRetention(cfg.EventRetention()),
		engine.WithLeaseTimeout(cfg.Dispatch.EventLeaseTimeout),
		engine.WithJobMaxAttempts(cfg.Dispatch.JobMaxAttempts),
		engine.WithKickDisabled(cfg.Worker.DisableKick),
		engine.WithLogger(logger),
		engine.WithTracerProvider(tp),
		engine.WithRecorder(a.recorder),
		engine.WithWorkerOptions(
			worker.WithBacklogGate(a.backlogGate()),
			worker.WithBacklogThresholds(cfg.Worker.BacklogWarn, cfg.Worker.BacklogCritical),
			worker.WithBacklogObserver(prom),
		),
	)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("build engine: %w", err)
	}

	poolOpts := []worker.PoolOption{
		worker.WithPoolConcurrency(cfg.Worker.Concurrency),
		worker.WithBatchSize(cfg.Worker.BatchSize),
		worker.WithPollInterval(cfg.Worker.PollInterval),
		worker.WithReapInterval(cfg.Worker.JobLeaseTimeout / 2),
		worker.WithPoolLogger(logger),
	}
	if purger != nil {
		poolOpts = append(poolOpts, worker.WithPurger(purger, cfg.Worker.PurgeInterval, cfg.JobRetention()))
	}
	a.pool = worker.NewPool(a.engine.Worker(), poolOpts...)

	a.server = &http.Server{
		Addr: cfg.Server.Addr,
		Handler: api.New(a.engine,
			api.WithRecorder(a.recorder),
			api.WithLogger(logger),
			api.WithHealthCheck(st.Ping),
			api.WithMetricsHandler(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})),
		).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// run starts the pool and the HTTP server and blocks until ctx ends or
// the server fails, then shuts both down.
func (a *app) run(ctx context.Context) error {
	if err := a.pool.Start(ctx); err != nil {
		return fmt.Errorf("start pool: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("operator api listening", slog.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if err := a.pool.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("pool stop: %w", err))
		}
		a.engine.Wait()
		a.recorder.Wait()
		return errors.Join(errs...)
	})
	return g.Wait()
}

// close releases resources in reverse acquisition order.
func (a *app) close() {
	ctx := context.Background()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("close resource", "error", err)
		}
	}
	a.closers = nil
}
