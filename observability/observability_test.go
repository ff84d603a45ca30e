package observability_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/trbojevicstefan/taskwise/observability"
)

// spyRecorder counts calls and optionally fails or panics.
type spyRecorder struct {
	mu       sync.Mutex
	jobs     []observability.JobMetric
	routes   int
	calls    int
	err      error
	panicMsg string
	ctxErr   error
}

func (s *spyRecorder) RecordJob(ctx context.Context, m observability.JobMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctxErr = ctx.Err()
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	s.jobs = append(s.jobs, m)
	return s.err
}

func (s *spyRecorder) RecordRoute(context.Context, observability.RouteMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes++
	return s.err
}

func (s *spyRecorder) RecordExternalCall(context.Context, observability.ExternalCallMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.err
}

func TestDetached_SurvivesCanceledCaller(t *testing.T) {
	spy := &spyRecorder{}
	d := observability.NewDetached(spy, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := d.RecordJob(ctx, observability.JobMetric{JobType: "domain-event.dispatch"}); err != nil {
		t.Fatalf("RecordJob: %v", err)
	}
	d.Wait()

	if len(spy.jobs) != 1 {
		t.Fatalf("expected 1 recorded job, got %d", len(spy.jobs))
	}
	if spy.ctxErr != nil {
		t.Errorf("recording context should not inherit cancellation, got %v", spy.ctxErr)
	}
}

func TestDetached_SwallowsErrorsAndPanics(t *testing.T) {
	failing := observability.NewDetached(&spyRecorder{err: errors.New("sink down")}, slog.Default())
	if err := failing.RecordRoute(context.Background(), observability.RouteMetric{}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	failing.Wait()

	panicking := observability.NewDetached(&spyRecorder{panicMsg: "boom"}, slog.Default())
	if err := panicking.RecordJob(context.Background(), observability.JobMetric{}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	panicking.Wait()
}

func TestMulti_CallsEveryRecorder(t *testing.T) {
	a := &spyRecorder{err: errors.New("a failed")}
	b := &spyRecorder{}
	m := observability.Multi(a, nil, b)

	err := m.RecordExternalCall(context.Background(), observability.ExternalCallMetric{Provider: "calendar"})
	if err == nil {
		t.Fatal("expected joined error")
	}
	if a.calls != 1 || b.calls != 1 {
		t.Errorf("calls = %d/%d, want 1/1", a.calls, b.calls)
	}
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestOTelRecorder_RecordJob(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	r := observability.NewOTelRecorderWithMeter(mp.Meter("test"))

	_ = r.RecordJob(context.Background(), observability.JobMetric{
		JobType:  "domain-event.dispatch",
		Outcome:  observability.OutcomeSucceeded,
		Duration: 120 * time.Millisecond,
	})
	_ = r.RecordJob(context.Background(), observability.JobMetric{
		JobType:  "domain-event.dispatch",
		Outcome:  observability.OutcomeRetried,
		Retried:  true,
		Duration: 80 * time.Millisecond,
	})

	rm := collectMetrics(t, reader)

	dur := findMetric(rm, "taskwise.job.duration")
	if dur == nil {
		t.Fatal("taskwise.job.duration metric not found")
	}
	hist, ok := dur.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("expected Histogram[float64] data type")
	}
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	if count != 2 {
		t.Errorf("expected 2 duration observations, got %d", count)
	}

	execs := findMetric(rm, "taskwise.job.executions")
	if execs == nil {
		t.Fatal("taskwise.job.executions metric not found")
	}
	sum, ok := execs.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("expected Sum[int64] data type")
	}
	if len(sum.DataPoints) != 2 {
		t.Errorf("expected 2 attribute sets, got %d", len(sum.DataPoints))
	}
}

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := observability.NewPrometheusRecorder(reg)

	_ = r.RecordJob(context.Background(), observability.JobMetric{JobType: "domain-event.dispatch", Outcome: "failed"})
	_ = r.RecordJob(context.Background(), observability.JobMetric{JobType: "domain-event.dispatch", Outcome: "failed"})
	_ = r.RecordRoute(context.Background(), observability.RouteMetric{Route: "/v1/queue/snapshot", Method: "GET", StatusCode: 200})
	r.ObserveBacklog(150, 3, 2, 1, 1)

	count, err := testutil.GatherAndCount(reg, "taskwise_job_executions_total")
	if err != nil {
		t.Fatalf("GatherAndCount: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 series, got %d", count)
	}

	count, err = testutil.GatherAndCount(reg, "taskwise_queue_jobs")
	if err != nil {
		t.Fatalf("GatherAndCount: %v", err)
	}
	if count != 4 {
		t.Errorf("expected 4 queue state series, got %d", count)
	}
}

type memMetrics struct {
	mu   sync.Mutex
	rows []*observability.Metric
}

func (m *memMetrics) InsertMetric(_ context.Context, metric *observability.Metric) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, metric)
	return nil
}

func TestStoreRecorder(t *testing.T) {
	ms := &memMetrics{}
	r := observability.NewStoreRecorder(ms)

	err := r.RecordJob(context.Background(), observability.JobMetric{
		JobID:    "job_1",
		JobType:  "domain-event.dispatch",
		Outcome:  observability.OutcomeRetried,
		Attempts: 1,
		Retried:  true,
		Duration: 1500 * time.Microsecond,
	})
	if err != nil {
		t.Fatalf("RecordJob: %v", err)
	}
	_ = r.RecordExternalCall(context.Background(), observability.ExternalCallMetric{Provider: "calendar", Operation: "list"})

	if len(ms.rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(ms.rows))
	}
	job := ms.rows[0]
	if job.Kind != observability.KindJob || job.Name != "domain-event.dispatch" {
		t.Errorf("unexpected job row %+v", job)
	}
	if job.DurationMs != 1.5 {
		t.Errorf("DurationMs = %v, want 1.5", job.DurationMs)
	}
	if job.Attributes["retried"] != "true" {
		t.Errorf("retried attribute = %q", job.Attributes["retried"])
	}
	if job.RecordedAt.IsZero() {
		t.Error("RecordedAt should be stamped")
	}
	if ms.rows[1].Name != "calendar.list" {
		t.Errorf("external call name = %q", ms.rows[1].Name)
	}
}
