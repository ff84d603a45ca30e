package memory

import (
	"context"
	"slices"

	"github.com/trbojevicstefan/taskwise"
	"github.com/trbojevicstefan/taskwise/event"
	"github.com/trbojevicstefan/taskwise/id"
)

func cloneEvent(e *event.Event) *event.Event {
	cp := *e
	cp.Payload = slices.Clone(e.Payload)
	cp.Result = slices.Clone(e.Result)
	cp.ClaimedAt = cloneTime(e.ClaimedAt)
	cp.LeaseExpiresAt = cloneTime(e.LeaseExpiresAt)
	cp.HandledAt = cloneTime(e.HandledAt)
	cp.FailedAt = cloneTime(e.FailedAt)
	cp.ExpiresAt = cloneTime(e.ExpiresAt)
	if e.Error != nil {
		f := *e.Error
		cp.Error = &f
	}
	return &cp
}

// InsertEvent persists a new event.
func (m *Store) InsertEvent(_ context.Context, e *event.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := e.ID.String()
	if _, exists := m.events[key]; exists {
		return taskwise.ErrEventAlreadyExists
	}
	m.events[key] = cloneEvent(e)
	return nil
}

// GetEvent retrieves an event by ID.
func (m *Store) GetEvent(_ context.Context, eventID id.EventID) (*event.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.events[eventID.String()]
	if !ok {
		return nil, taskwise.ErrEventNotFound
	}
	return cloneEvent(e), nil
}

// ClaimEvent claims the event when event.Claimable holds.
func (m *Store) ClaimEvent(_ context.Context, eventID id.EventID, c event.Claim) (*event.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.events[eventID.String()]
	if !ok {
		return nil, taskwise.ErrEventNotFound
	}
	if !event.Claimable(e, c.Now) {
		return nil, nil
	}

	now := c.Now
	e.Status = event.StatusProcessing
	e.Attempts++
	e.ClaimToken = c.Token
	e.ClaimedAt = &now
	e.LeaseExpiresAt = cloneTime(c.LeaseUntil)
	e.ExpiresAt = nil
	e.UpdatedAt = now
	return cloneEvent(e), nil
}

// FinalizeEvent applies f when the event is processing under f.Token.
func (m *Store) FinalizeEvent(_ context.Context, eventID id.EventID, f event.Finalize) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.events[eventID.String()]
	if !ok {
		return taskwise.ErrEventNotFound
	}
	if e.Status != event.StatusProcessing || e.ClaimToken != f.Token || !e.Status.CanTransition(f.To) || !f.To.Terminal() {
		return taskwise.ErrInvalidState
	}

	at := f.At
	expires := f.ExpiresAt
	e.Status = f.To
	e.UpdatedAt = at
	e.LeaseExpiresAt = nil
	e.ExpiresAt = &expires
	switch f.To {
	case event.StatusHandled:
		e.HandledAt = &at
		e.Result = slices.Clone(f.Result)
		e.Error = nil
	case event.StatusFailed:
		e.FailedAt = &at
		if f.Error != nil {
			fe := *f.Error
			e.Error = &fe
		}
	}
	return nil
}
