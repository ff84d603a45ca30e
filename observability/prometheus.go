package observability

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder exposes metrics as Prometheus collectors. It also
// tracks queue backlog gauges fed by the worker's backlog sampler.
type PrometheusRecorder struct {
	jobExecutions *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	externalCalls *prometheus.CounterVec
	queueDepth    *prometheus.GaugeVec
	backlogLevel  prometheus.Gauge
}

// NewPrometheusRecorder registers its collectors with reg. Use
// prometheus.DefaultRegisterer to expose them on promhttp.Handler().
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		jobExecutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskwise_job_executions_total",
				Help: "Total number of job executions.",
			},
			[]string{"job_type", "outcome"},
		),
		jobDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "taskwise_job_duration_seconds",
				Help:    "Duration of job execution.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"job_type"},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskwise_http_requests_total",
				Help: "Total number of operator API requests.",
			},
			[]string{"route", "method", "code"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "taskwise_http_request_duration_seconds",
				Help:    "Duration of operator API requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		externalCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskwise_external_calls_total",
				Help: "Total number of collaborator calls.",
			},
			[]string{"provider", "operation", "outcome"},
		),
		queueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "taskwise_queue_jobs",
				Help: "Jobs by queue state at the last backlog sample.",
			},
			[]string{"state"},
		),
		backlogLevel: factory.NewGauge(prometheus.GaugeOpts{
			Name: "taskwise_queue_backlog_level",
			Help: "Backlog severity at the last sample: 0 ok, 1 warn, 2 critical.",
		}),
	}
}

func (r *PrometheusRecorder) RecordJob(_ context.Context, m JobMetric) error {
	r.jobExecutions.WithLabelValues(m.JobType, m.Outcome).Inc()
	r.jobDuration.WithLabelValues(m.JobType).Observe(m.Duration.Seconds())
	return nil
}

func (r *PrometheusRecorder) RecordRoute(_ context.Context, m RouteMetric) error {
	r.httpRequests.WithLabelValues(m.Route, m.Method, strconv.Itoa(m.StatusCode)).Inc()
	r.httpDuration.WithLabelValues(m.Route).Observe(m.Duration.Seconds())
	return nil
}

func (r *PrometheusRecorder) RecordExternalCall(_ context.Context, m ExternalCallMetric) error {
	r.externalCalls.WithLabelValues(m.Provider, m.Operation, m.Outcome).Inc()
	return nil
}

// ObserveBacklog publishes a queue sample. level is 0 ok, 1 warn,
// 2 critical.
func (r *PrometheusRecorder) ObserveBacklog(queuedReady, queuedDelayed, running, failedLast24h int64, level int) {
	r.queueDepth.WithLabelValues("queued_ready").Set(float64(queuedReady))
	r.queueDepth.WithLabelValues("queued_delayed").Set(float64(queuedDelayed))
	r.queueDepth.WithLabelValues("running").Set(float64(running))
	r.queueDepth.WithLabelValues("failed_24h").Set(float64(failedLast24h))
	r.backlogLevel.Set(float64(level))
}
