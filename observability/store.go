package observability

import (
	"context"
	"strconv"
	"time"
)

// Metric kinds stored by StoreRecorder.
const (
	KindJob          = "job"
	KindRoute        = "route"
	KindExternalCall = "external_call"
)

// Metric is the persisted form of any recorded metric.
type Metric struct {
	Kind          string            `json:"kind"`
	Name          string            `json:"name"`
	Outcome       string            `json:"outcome,omitempty"`
	UserID        string            `json:"userId,omitempty"`
	CorrelationID string            `json:"correlationId,omitempty"`
	DurationMs    float64           `json:"durationMs"`
	Attributes    map[string]string `json:"attributes,omitempty"`
	RecordedAt    time.Time         `json:"recordedAt"`
}

// MetricStore persists metric records.
type MetricStore interface {
	InsertMetric(ctx context.Context, m *Metric) error
}

// StoreRecorder persists every metric through a MetricStore.
type StoreRecorder struct {
	store MetricStore
	now   func() time.Time
}

// NewStoreRecorder creates a recorder writing to s.
func NewStoreRecorder(s MetricStore) *StoreRecorder {
	return &StoreRecorder{store: s, now: func() time.Time { return time.Now().UTC() }}
}

func (r *StoreRecorder) RecordJob(ctx context.Context, m JobMetric) error {
	return r.store.InsertMetric(ctx, &Metric{
		Kind:          KindJob,
		Name:          m.JobType,
		Outcome:       m.Outcome,
		UserID:        m.UserID,
		CorrelationID: m.CorrelationID,
		DurationMs:    durationMs(m.Duration),
		Attributes: map[string]string{
			"jobId":    m.JobID,
			"attempts": strconv.Itoa(m.Attempts),
			"retried":  strconv.FormatBool(m.Retried),
		},
		RecordedAt: r.stamp(m.RecordedAt),
	})
}

func (r *StoreRecorder) RecordRoute(ctx context.Context, m RouteMetric) error {
	return r.store.InsertMetric(ctx, &Metric{
		Kind:       KindRoute,
		Name:       m.Route,
		Outcome:    strconv.Itoa(m.StatusCode),
		UserID:     m.UserID,
		DurationMs: durationMs(m.Duration),
		Attributes: map[string]string{"method": m.Method},
		RecordedAt: r.stamp(m.RecordedAt),
	})
}

func (r *StoreRecorder) RecordExternalCall(ctx context.Context, m ExternalCallMetric) error {
	return r.store.InsertMetric(ctx, &Metric{
		Kind:       KindExternalCall,
		Name:       m.Provider + "." + m.Operation,
		Outcome:    m.Outcome,
		UserID:     m.UserID,
		DurationMs: durationMs(m.Duration),
		RecordedAt: r.stamp(m.RecordedAt),
	})
}

func (r *StoreRecorder) stamp(t time.Time) time.Time {
	if t.IsZero() {
		return r.now()
	}
	return t
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
