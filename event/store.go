package event

import (
	"context"
	"encoding/json"
	"time"

	"github.com/trbojevicstefan/taskwise"
	"github.com/trbojevicstefan/taskwise/id"
)

// Claim carries the values written by a successful claim.
type Claim struct {
	Now time.Time
	// Token identifies the claimant. Finalize succeeds only with the same
	// token.
	Token string
	// LeaseUntil bounds how long the claim is exclusive. Nil means the
	// claim never expires.
	LeaseUntil *time.Time
}

// Finalize moves a claimed event to a terminal status.
type Finalize struct {
	Token     string
	To        Status
	At        time.Time
	Result    json.RawMessage
	Error     *taskwise.Failure
	ExpiresAt time.Time
}

// Store defines the persistence contract for domain events.
type Store interface {
	// InsertEvent persists a new event.
	InsertEvent(ctx context.Context, e *Event) error

	// GetEvent retrieves an event by ID.
	GetEvent(ctx context.Context, eventID id.EventID) (*Event, error)

	// ClaimEvent atomically moves a Claimable event to processing, sets the
	// claim token, ClaimedAt and lease, increments Attempts and clears
	// ExpiresAt. It returns the claimed event, or nil when the event is
	// no longer claimable because another dispatcher holds or finished it.
	ClaimEvent(ctx context.Context, eventID id.EventID, c Claim) (*Event, error)

	// FinalizeEvent applies f when the event is still processing under
	// f.Token. Otherwise it returns taskwise.ErrInvalidState.
	FinalizeEvent(ctx context.Context, eventID id.EventID, f Finalize) error
}
