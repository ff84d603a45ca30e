package taskwise

import "errors"

var (
	// Store errors.
	ErrNoStore     = errors.New("taskwise: no store configured")
	ErrStoreClosed = errors.New("taskwise: store closed")

	// Not found errors.
	ErrJobNotFound   = errors.New("taskwise: job not found")
	ErrEventNotFound = errors.New("taskwise: event not found")
	ErrTaskNotFound  = errors.New("taskwise: task not found")

	// Conflict errors.
	ErrJobAlreadyExists   = errors.New("taskwise: job already exists")
	ErrEventAlreadyExists = errors.New("taskwise: event already exists")

	// State errors.
	ErrInvalidState = errors.New("taskwise: invalid state transition")

	// Routing errors.
	ErrUnknownJobType   = errors.New("taskwise: unknown job type")
	ErrUnknownEventType = errors.New("taskwise: unknown event type")
	ErrHandlerMissing   = errors.New("taskwise: handler missing")
	ErrInvalidPayload   = errors.New("taskwise: invalid payload")
)
