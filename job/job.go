package job

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/trbojevicstefan/taskwise"
	"github.com/trbojevicstefan/taskwise/id"
)

// Type names a kind of job. The set is closed: every Type must be listed
// in Types and have a registered worker handler.
type Type string

const (
	// TypeDomainEventDispatch dispatches a persisted domain event.
	// Payload: DispatchPayload.
	TypeDomainEventDispatch Type = "domain-event.dispatch"
)

// Types returns every known job type.
func Types() []Type {
	return []Type{TypeDomainEventDispatch}
}

// Valid reports whether t is a known job type.
func (t Type) Valid() bool {
	for _, known := range Types() {
		if t == known {
			return true
		}
	}
	return false
}

// DispatchPayload is the payload of a TypeDomainEventDispatch job.
type DispatchPayload struct {
	EventID string `json:"eventId"`
}

// Status represents the lifecycle state of a job.
type Status string

const (
	// StatusQueued means the job waits for RunAt and a free worker.
	StatusQueued Status = "queued"
	// StatusRunning means a worker has claimed the job.
	StatusRunning Status = "running"
	// StatusSucceeded means the handler returned without error.
	StatusSucceeded Status = "succeeded"
	// StatusFailed means the job will never run again.
	StatusFailed Status = "failed"
)

// transitions lists the legal edges of the job state machine.
var transitions = map[Status][]Status{
	StatusQueued:  {StatusRunning},
	StatusRunning: {StatusSucceeded, StatusQueued, StatusFailed},
}

// CanTransition reports whether the state machine allows s → to.
func (s Status) CanTransition(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Job represents a unit of deferred work.
type Job struct {
	taskwise.Entity

	ID             id.JobID          `json:"id"`
	Type           Type              `json:"type"`
	UserID         string            `json:"userId"`
	CorrelationID  string            `json:"correlationId"`
	Payload        json.RawMessage   `json:"payload"`
	Status         Status            `json:"status"`
	Attempts       int               `json:"attempts"`
	MaxAttempts    int               `json:"maxAttempts"`
	RunAt          time.Time         `json:"runAt"`
	StartedAt      *time.Time        `json:"startedAt,omitempty"`
	FinishedAt     *time.Time        `json:"finishedAt,omitempty"`
	LeaseExpiresAt *time.Time        `json:"leaseExpiresAt,omitempty"`
	Result         json.RawMessage   `json:"result,omitempty"`
	Error          *taskwise.Failure `json:"error,omitempty"`
}

// Eligible reports whether a queued job may be claimed at now.
func (j *Job) Eligible(now time.Time) bool {
	return j.Status == StatusQueued && !j.RunAt.After(now)
}

// DecodePayload unmarshals the job payload into v.
func (j *Job) DecodePayload(v any) error {
	if len(j.Payload) == 0 {
		return fmt.Errorf("%w: job %s has no payload", taskwise.ErrInvalidPayload, j.ID)
	}
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("%w: job %s: %v", taskwise.ErrInvalidPayload, j.ID, err)
	}
	return nil
}
