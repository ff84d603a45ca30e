package effects

import (
	"context"
	"fmt"
	"strings"

	"github.com/trbojevicstefan/taskwise"
	"github.com/trbojevicstefan/taskwise/event"
)

// HandleBoardItemUpdated copies recognized board-card edits onto the
// canonical task.
func (h *Handlers) HandleBoardItemUpdated(ctx context.Context, meta event.Meta, p event.BoardItemUpdated) (event.BoardItemUpdatedResult, error) {
	res := event.BoardItemUpdatedResult{TaskID: p.TaskID}
	if strings.TrimSpace(p.TaskID) == "" {
		return res, fmt.Errorf("%w: taskId is required", taskwise.ErrInvalidPayload)
	}

	patch := patchFromUpdates(p)
	if patch.Empty() {
		return res, nil
	}

	updated, err := h.tasks.UpdateTask(ctx, meta.UserID, p.TaskID, patch)
	if err != nil {
		return res, fmt.Errorf("update task %s: %w", p.TaskID, err)
	}
	res.Updated = updated
	return res, nil
}

func patchFromUpdates(p event.BoardItemUpdated) TaskPatch {
	var patch TaskPatch
	if u := p.TaskUpdates; u != nil {
		patch.Title = u.Title
		patch.Description = u.Description
		patch.Priority = u.Priority
		patch.DueAt = u.DueAt
		patch.Assignee = u.Assignee
		if u.AssigneeName != nil {
			name := strings.TrimSpace(*u.AssigneeName)
			key := NameKey(name)
			patch.AssigneeName = &name
			patch.AssigneeNameKey = &key
		}
		patch.Status = u.Status
	}
	if patch.Status == nil && p.StatusCategory != "" {
		status := p.StatusCategory
		patch.Status = &status
	}
	return patch
}
