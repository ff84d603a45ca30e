package effects

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/trbojevicstefan/taskwise"
	"github.com/trbojevicstefan/taskwise/event"
)

// HandleTaskStatusChanged moves every board placement of the matching
// tasks to the new status column.
func (h *Handlers) HandleTaskStatusChanged(ctx context.Context, meta event.Meta, p event.TaskStatusChanged) (event.TaskStatusChangedResult, error) {
	var res event.TaskStatusChangedResult

	taskID := strings.TrimSpace(p.TaskID)
	status := strings.TrimSpace(p.Status)
	if taskID == "" || status == "" {
		return res, fmt.Errorf("%w: taskId and status are required", taskwise.ErrInvalidPayload)
	}

	scope := SessionRef{Type: p.SourceSessionType, ID: p.SourceSessionID}
	matches, err := h.tasks.FindTasks(ctx, meta.UserID, taskID, scope)
	if err != nil {
		return res, fmt.Errorf("find tasks: %w", err)
	}
	res.MatchedTasks = len(matches)

	moved := 0
	for _, t := range matches {
		items, err := h.board.ListBoardItems(ctx, meta.UserID, t.ID)
		if err != nil {
			return res, fmt.Errorf("list board items for task %s: %w", t.ID, err)
		}
		for _, item := range items {
			if item.Status == status {
				continue
			}
			if err := h.board.UpdateBoardItemStatus(ctx, meta.UserID, item.ID, status); err != nil {
				return res, fmt.Errorf("move board item %s: %w", item.ID, err)
			}
			moved++
		}
	}

	h.logger.Debug("task status synchronized",
		slog.String("event_id", meta.EventID.String()),
		slog.String("task_id", taskID),
		slog.Int("matched_tasks", res.MatchedTasks),
		slog.Int("board_items_moved", moved),
	)
	return res, nil
}
