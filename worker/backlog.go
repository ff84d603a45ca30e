package worker

import (
	"context"
	"log/slog"

	"github.com/trbojevicstefan/taskwise/job"
)

// Severity classifies queue backlog.
type Severity string

const (
	SeverityOK       Severity = "ok"
	SeverityWarn     Severity = "warn"
	SeverityCritical Severity = "critical"
)

// Level returns 0 for ok, 1 for warn and 2 for critical.
func (s Severity) Level() int {
	switch s {
	case SeverityWarn:
		return 1
	case SeverityCritical:
		return 2
	}
	return 0
}

// Thresholds are the queuedReady counts at which backlog becomes warn and
// critical.
type Thresholds struct {
	Warn     int64
	Critical int64
}

// DefaultThresholds are used when none are configured.
var DefaultThresholds = Thresholds{Warn: 100, Critical: 500}

// ClassifyBacklog grades queuedReady against t.
func ClassifyBacklog(queuedReady int64, t Thresholds) Severity {
	switch {
	case t.Critical > 0 && queuedReady >= t.Critical:
		return SeverityCritical
	case t.Warn > 0 && queuedReady >= t.Warn:
		return SeverityWarn
	}
	return SeverityOK
}

// BacklogReport is one backlog sample.
type BacklogReport struct {
	Snapshot *job.Snapshot
	Severity Severity
}

// BacklogObserver receives backlog samples. PrometheusRecorder
// implements it.
type BacklogObserver interface {
	ObserveBacklog(queuedReady, queuedDelayed, running, failedLast24h int64, level int)
}

// sampleBacklog takes a queue snapshot when the gate allows. Failures are
// logged; backlog health never fails job processing.
func (w *Worker) sampleBacklog(ctx context.Context) *BacklogReport {
	ok, err := w.gate.Allow(ctx)
	if err != nil {
		w.logger.Warn("backlog gate unavailable", slog.String("error", err.Error()))
		return nil
	}
	if !ok {
		return nil
	}

	snap, err := w.queue.Snapshot(ctx)
	if err != nil {
		w.logger.Warn("backlog snapshot failed", slog.String("error", err.Error()))
		return nil
	}

	sev := ClassifyBacklog(snap.QueuedReady, w.thresholds)
	attrs := []any{
		slog.String("severity", string(sev)),
		slog.Int64("queued_ready", snap.QueuedReady),
		slog.Int64("queued_delayed", snap.QueuedDelayed),
		slog.Int64("running", snap.Running),
		slog.Int64("failed_last_24h", snap.FailedLast24h),
	}
	switch sev {
	case SeverityCritical:
		w.logger.Error("job backlog critical", attrs...)
	case SeverityWarn:
		w.logger.Warn("job backlog elevated", attrs...)
	default:
		w.logger.Info("job backlog", attrs...)
	}

	if w.observer != nil {
		w.observer.ObserveBacklog(snap.QueuedReady, snap.QueuedDelayed, snap.Running, snap.FailedLast24h, sev.Level())
	}
	return &BacklogReport{Snapshot: snap, Severity: sev}
}
