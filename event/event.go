package event

import (
	"encoding/json"
	"time"

	"github.com/trbojevicstefan/taskwise"
	"github.com/trbojevicstefan/taskwise/id"
)

// Type names a kind of domain event.
type Type string

const (
	TypeTaskStatusChanged Type = "task.status.changed"
	TypeMeetingIngested   Type = "meeting.ingested"
	TypeBoardItemUpdated  Type = "board.item.updated"
)

// Types returns every known event type.
func Types() []Type {
	return []Type{TypeTaskStatusChanged, TypeMeetingIngested, TypeBoardItemUpdated}
}

// Valid reports whether t is a known event type.
func (t Type) Valid() bool {
	switch t {
	case TypeTaskStatusChanged, TypeMeetingIngested, TypeBoardItemUpdated:
		return true
	}
	return false
}

// Status represents the lifecycle state of a domain event.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusHandled    Status = "handled"
	StatusFailed     Status = "failed"
)

var transitions = map[Status][]Status{
	StatusQueued:     {StatusProcessing},
	StatusProcessing: {StatusProcessing, StatusHandled, StatusFailed},
	StatusFailed:     {StatusProcessing},
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

// Terminal reports whether the status sets expiresAt.
func (s Status) Terminal() bool {
	return s == StatusHandled || s == StatusFailed
}

// Event is a persisted fact awaiting or having received dispatch.
type Event struct {
	taskwise.Entity

	ID             id.EventID        `json:"id"`
	Type           Type              `json:"type"`
	UserID         string            `json:"userId"`
	CorrelationID  string            `json:"correlationId"`
	Payload        json.RawMessage   `json:"payload"`
	Status         Status            `json:"status"`
	Attempts       int               `json:"attempts"`
	ClaimToken     string            `json:"claimToken,omitempty"`
	ClaimedAt      *time.Time        `json:"claimedAt,omitempty"`
	LeaseExpiresAt *time.Time        `json:"leaseExpiresAt,omitempty"`
	HandledAt      *time.Time        `json:"handledAt,omitempty"`
	FailedAt       *time.Time        `json:"failedAt,omitempty"`
	Result         json.RawMessage   `json:"result,omitempty"`
	Error          *taskwise.Failure `json:"error,omitempty"`
	ExpiresAt      *time.Time        `json:"expiresAt,omitempty"`
}

// Claimable reports whether a dispatcher may claim e at now. Stores that
// cannot evaluate a Go predicate encode the same condition in their
// conditional update.
func Claimable(e *Event, now time.Time) bool {
	switch e.Status {
	case StatusQueued, StatusFailed:
		return true
	case StatusProcessing:
		if e.ClaimToken == "" {
			return true
		}
		return e.LeaseExpiresAt != nil && !e.LeaseExpiresAt.After(now)
	}
	return false
}

// Meta is the envelope information passed to handlers alongside the
// decoded payload.
type Meta struct {
	EventID       id.EventID
	Type          Type
	UserID        string
	CorrelationID string
	Attempt       int
}

// MetaOf returns the handler metadata of e.
func MetaOf(e *Event) Meta {
	return Meta{
		EventID:       e.ID,
		Type:          e.Type,
		UserID:        e.UserID,
		CorrelationID: e.CorrelationID,
		Attempt:       e.Attempts,
	}
}
