package event

import (
	"context"
	"fmt"

	"github.com/trbojevicstefan/taskwise"
)

// Handler applies the side effects of every event kind. Implementations
// must be idempotent with respect to their own effects: the engine only
// guarantees that a handled event is never dispatched again, not that a
// failed attempt left nothing behind.
type Handler interface {
	HandleTaskStatusChanged(ctx context.Context, meta Meta, p TaskStatusChanged) (TaskStatusChangedResult, error)
	HandleMeetingIngested(ctx context.Context, meta Meta, p MeetingIngested) (MeetingIngestedResult, error)
	HandleBoardItemUpdated(ctx context.Context, meta Meta, p BoardItemUpdated) (BoardItemUpdatedResult, error)
}

// Invoke routes p to the matching method of h and returns its result.
func Invoke(ctx context.Context, h Handler, meta Meta, p Payload) (any, error) {
	switch v := p.(type) {
	case TaskStatusChanged:
		return h.HandleTaskStatusChanged(ctx, meta, v)
	case *TaskStatusChanged:
		return h.HandleTaskStatusChanged(ctx, meta, *v)
	case MeetingIngested:
		return h.HandleMeetingIngested(ctx, meta, v)
	case *MeetingIngested:
		return h.HandleMeetingIngested(ctx, meta, *v)
	case BoardItemUpdated:
		return h.HandleBoardItemUpdated(ctx, meta, v)
	case *BoardItemUpdated:
		return h.HandleBoardItemUpdated(ctx, meta, *v)
	}
	return nil, fmt.Errorf("%w: %T", taskwise.ErrUnknownEventType, p)
}
