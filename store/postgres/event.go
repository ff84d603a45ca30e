package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/trbojevicstefan/taskwise"
	"github.com/trbojevicstefan/taskwise/event"
	"github.com/trbojevicstefan/taskwise/id"
)

const eventColumns = `
	id, type, user_id, correlation_id, payload, status, attempts,
	claim_token, claimed_at, lease_expires_at, handled_at, failed_at,
	result, error, expires_at, created_at, updated_at`

// InsertEvent persists a new domain event.
func (s *Store) InsertEvent(ctx context.Context, e *event.Event) error {
	failure, err := encodeFailure(e.Error)
	if err != nil {
		return fmt.Errorf("taskwise/postgres: encode event error: %w", err)
	}
	payload := []byte(e.Payload)
	if len(payload) == 0 {
		payload = []byte("null")
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO taskwise_domain_events (`+eventColumns+`
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17
		)`,
		e.ID.String(), string(e.Type), e.UserID, e.CorrelationID, payload,
		string(e.Status), e.Attempts,
		e.ClaimToken, e.ClaimedAt, e.LeaseExpiresAt, e.HandledAt, e.FailedAt,
		nullJSON(e.Result), failure, e.ExpiresAt, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return taskwise.ErrEventAlreadyExists
		}
		return fmt.Errorf("taskwise/postgres: insert event: %w", err)
	}
	return nil
}

// GetEvent retrieves a domain event by ID.
func (s *Store) GetEvent(ctx context.Context, eventID id.EventID) (*event.Event, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM taskwise_domain_events WHERE id = $1`,
		eventID.String(),
	)

	e, err := scanEvent(row)
	if err != nil {
		if isNoRows(err) {
			return nil, taskwise.ErrEventNotFound
		}
		return nil, fmt.Errorf("taskwise/postgres: get event: %w", err)
	}
	return e, nil
}

// ClaimEvent moves a claimable event to processing in one conditional
// UPDATE. The WHERE clause mirrors event.Claimable.
func (s *Store) ClaimEvent(ctx context.Context, eventID id.EventID, c event.Claim) (*event.Event, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE taskwise_domain_events SET
			status = 'processing',
			attempts = attempts + 1,
			claim_token = $2,
			claimed_at = $3,
			lease_expires_at = $4,
			expires_at = NULL,
			updated_at = $3
		WHERE id = $1 AND (
			status IN ('queued', 'failed')
			OR (status = 'processing' AND claim_token = '')
			OR (status = 'processing' AND lease_expires_at IS NOT NULL AND lease_expires_at <= $3)
		)
		RETURNING `+eventColumns,
		eventID.String(), c.Token, c.Now, c.LeaseUntil,
	)

	e, err := scanEvent(row)
	if err != nil {
		if !isNoRows(err) {
			return nil, fmt.Errorf("taskwise/postgres: claim event: %w", err)
		}
		ok, err := s.exists(ctx, "taskwise_domain_events", eventID.String())
		if err != nil {
			return nil, fmt.Errorf("taskwise/postgres: claim event: %w", err)
		}
		if !ok {
			return nil, taskwise.ErrEventNotFound
		}
		return nil, nil
	}
	return e, nil
}

// FinalizeEvent records the terminal status of an event still held under
// f.Token.
func (s *Store) FinalizeEvent(ctx context.Context, eventID id.EventID, f event.Finalize) error {
	if !f.To.Terminal() || !event.StatusProcessing.CanTransition(f.To) {
		return taskwise.ErrInvalidState
	}

	var query string
	var args []any
	switch f.To {
	case event.StatusHandled:
		query = `
			UPDATE taskwise_domain_events SET
				status = $3, updated_at = $4, lease_expires_at = NULL, expires_at = $5,
				handled_at = $4, result = $6, error = NULL
			WHERE id = $1 AND status = 'processing' AND claim_token = $2`
		args = []any{eventID.String(), f.Token, string(f.To), f.At, f.ExpiresAt, nullJSON(f.Result)}
	default:
		failure, err := encodeFailure(f.Error)
		if err != nil {
			return fmt.Errorf("taskwise/postgres: encode event error: %w", err)
		}
		query = `
			UPDATE taskwise_domain_events SET
				status = $3, updated_at = $4, lease_expires_at = NULL, expires_at = $5,
				failed_at = $4, error = COALESCE($6::jsonb, error)
			WHERE id = $1 AND status = 'processing' AND claim_token = $2`
		args = []any{eventID.String(), f.Token, string(f.To), f.At, f.ExpiresAt, failure}
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("taskwise/postgres: finalize event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		ok, err := s.exists(ctx, "taskwise_domain_events", eventID.String())
		if err != nil {
			return fmt.Errorf("taskwise/postgres: finalize event: %w", err)
		}
		if !ok {
			return taskwise.ErrEventNotFound
		}
		return taskwise.ErrInvalidState
	}
	return nil
}

// scanEvent scans a single event row.
func scanEvent(row pgx.Row) (*event.Event, error) {
	var (
		e         event.Event
		idStr     string
		typeStr   string
		statusStr string
		payload   []byte
		result    []byte
		failure   []byte
	)
	err := row.Scan(
		&idStr, &typeStr, &e.UserID, &e.CorrelationID, &payload, &statusStr, &e.Attempts,
		&e.ClaimToken, &e.ClaimedAt, &e.LeaseExpiresAt, &e.HandledAt, &e.FailedAt,
		&result, &failure, &e.ExpiresAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	parsedID, err := id.ParseEventID(idStr)
	if err != nil {
		return nil, fmt.Errorf("taskwise/postgres: parse event id %q: %w", idStr, err)
	}
	e.ID = parsedID
	e.Type = event.Type(typeStr)
	e.Status = event.Status(statusStr)
	e.Payload = payload
	e.Result = result
	if e.Error, err = decodeFailure(failure); err != nil {
		return nil, fmt.Errorf("taskwise/postgres: decode event error: %w", err)
	}

	return &e, nil
}
