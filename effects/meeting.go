package effects

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/trbojevicstefan/taskwise"
	"github.com/trbojevicstefan/taskwise/event"
	"github.com/trbojevicstefan/taskwise/observability"
)

// HandleMeetingIngested upserts attendees as people, synchronizes the
// meeting's canonical tasks and ensures board cards for its top-level
// tasks.
func (h *Handlers) HandleMeetingIngested(ctx context.Context, meta event.Meta, p event.MeetingIngested) (event.MeetingIngestedResult, error) {
	var res event.MeetingIngestedResult

	meetingID := strings.TrimSpace(p.MeetingID)
	if meetingID == "" {
		return res, fmt.Errorf("%w: meetingId is required", taskwise.ErrInvalidPayload)
	}

	created, updated, err := h.upsertPeople(ctx, meta.UserID, meetingID, p.Attendees)
	if err != nil {
		return res, err
	}
	res.People = event.PeopleCounts{Created: created, Updated: updated}

	workspaceID, err := h.resolveWorkspace(ctx, meta.UserID, meetingID, p.WorkspaceID)
	if err != nil {
		return res, err
	}

	session := SessionRef{Type: SessionMeeting, ID: meetingID}
	topLevel, upserted, deleted, err := h.syncTasks(ctx, meta.UserID, workspaceID, session, p.ExtractedTasks)
	if err != nil {
		return res, err
	}
	res.Tasks = event.TaskCounts{Upserted: upserted, Deleted: deleted}

	if workspaceID != "" {
		for _, t := range topLevel {
			ok, err := h.board.EnsureBoardItem(ctx, &BoardItem{
				ID:          h.newID(),
				UserID:      meta.UserID,
				WorkspaceID: workspaceID,
				TaskID:      t.ID,
				Status:      t.Status,
				CreatedAt:   h.now(),
				UpdatedAt:   h.now(),
			})
			if err != nil {
				return res, fmt.Errorf("ensure board item for task %s: %w", t.ID, err)
			}
			if ok {
				res.BoardItemsCreated++
			}
		}
	}

	h.logger.Info("meeting ingested",
		slog.String("event_id", meta.EventID.String()),
		slog.String("meeting_id", meetingID),
		slog.String("workspace_id", workspaceID),
		slog.Int("people_created", res.People.Created),
		slog.Int("people_updated", res.People.Updated),
		slog.Int("tasks_upserted", res.Tasks.Upserted),
		slog.Int("tasks_deleted", res.Tasks.Deleted),
		slog.Int("board_items_created", res.BoardItemsCreated),
	)
	return res, nil
}

func (h *Handlers) upsertPeople(ctx context.Context, userID, meetingID string, attendees []event.Attendee) (created, updated int, err error) {
	seen := make(map[string]struct{}, len(attendees)*2)
	for _, a := range attendees {
		name := strings.TrimSpace(a.Name)
		email := NormalizeEmail(a.Email)
		nameKey := NameKey(name)
		if email == "" && nameKey == "" {
			continue
		}

		keys := make([]string, 0, 2)
		if email != "" {
			keys = append(keys, "email:"+email)
		}
		if nameKey != "" {
			keys = append(keys, "name:"+nameKey)
		}
		dup := false
		for _, k := range keys {
			if _, ok := seen[k]; ok {
				dup = true
			}
			seen[k] = struct{}{}
		}
		if dup {
			continue
		}

		var existing *Person
		if email != "" {
			if existing, err = h.people.FindPersonByEmail(ctx, userID, email); err != nil {
				return 0, 0, fmt.Errorf("find person by email: %w", err)
			}
		}
		if existing == nil && nameKey != "" {
			if existing, err = h.people.FindPersonByNameKey(ctx, userID, nameKey); err != nil {
				return 0, 0, fmt.Errorf("find person by name: %w", err)
			}
		}

		now := h.now()
		if existing == nil {
			if name == "" {
				name = email
				nameKey = NameKey(email)
			}
			err = h.people.InsertPerson(ctx, &Person{
				ID:               h.newID(),
				UserID:           userID,
				Name:             name,
				NameKey:          nameKey,
				Email:            email,
				SourceSessionIDs: []string{meetingID},
				CreatedAt:        now,
				UpdatedAt:        now,
			})
			if err != nil {
				return 0, 0, fmt.Errorf("insert person: %w", err)
			}
			created++
			continue
		}

		if mergePerson(existing, name, nameKey, email, meetingID) {
			existing.UpdatedAt = now
			if err = h.people.UpdatePerson(ctx, existing); err != nil {
				return 0, 0, fmt.Errorf("update person %s: %w", existing.ID, err)
			}
			updated++
		}
	}
	return created, updated, nil
}

// mergePerson folds an attendee sighting into p and reports whether p
// changed.
func mergePerson(p *Person, name, nameKey, email, meetingID string) bool {
	changed := false
	if p.Email == "" && email != "" {
		p.Email = email
		changed = true
	}
	if nameKey != "" && nameKey != p.NameKey && !slices.Contains(p.Aliases, name) {
		p.Aliases = append(p.Aliases, name)
		changed = true
	}
	if !slices.Contains(p.SourceSessionIDs, meetingID) {
		p.SourceSessionIDs = append(p.SourceSessionIDs, meetingID)
		changed = true
	}
	return changed
}

func (h *Handlers) resolveWorkspace(ctx context.Context, userID, meetingID, explicit string) (string, error) {
	if explicit != "" || h.workspaces == nil {
		return explicit, nil
	}

	start := time.Now()
	workspaceID, err := h.workspaces.ResolveWorkspace(ctx, userID, meetingID)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	rerr := h.recorder.RecordExternalCall(ctx, observability.ExternalCallMetric{
		Provider:   "workspace",
		Operation:  "resolve",
		Outcome:    outcome,
		UserID:     userID,
		Duration:   time.Since(start),
		RecordedAt: h.now(),
	})
	if rerr != nil {
		h.logger.Warn("record external call metric failed",
			slog.String("provider", "workspace"),
			slog.String("error", rerr.Error()),
		)
	}
	if err != nil {
		return "", fmt.Errorf("resolve workspace: %w", err)
	}
	return workspaceID, nil
}

// syncTasks upserts the meeting's tasks and deletes canonical tasks the
// meeting no longer mentions. It returns the synchronized top-level tasks.
func (h *Handlers) syncTasks(ctx context.Context, userID, workspaceID string, session SessionRef, extracted []event.ExtractedTask) (topLevel []*Task, upserted, deleted int, err error) {
	present := make(map[string]struct{})

	var upsert func(et event.ExtractedTask, parentID string, pos int) (*Task, error)
	upsert = func(et event.ExtractedTask, parentID string, pos int) (*Task, error) {
		sourceID := sourceTaskID(et, parentID, pos)
		if _, dup := present[sourceID]; dup {
			return nil, nil
		}
		present[sourceID] = struct{}{}

		stored, err := h.tasks.UpsertSessionTask(ctx, h.taskFromExtracted(et, userID, workspaceID, session, sourceID, parentID))
		if err != nil {
			return nil, fmt.Errorf("upsert task %s: %w", sourceID, err)
		}
		upserted++

		for i, sub := range et.Subtasks {
			if sub.SuggestedForOtherSession(session.ID) {
				continue
			}
			if _, err := upsert(sub, stored.ID, i); err != nil {
				return nil, err
			}
		}
		return stored, nil
	}

	for i, et := range extracted {
		if et.SuggestedForOtherSession(session.ID) {
			continue
		}
		stored, err := upsert(et, "", i)
		if err != nil {
			return nil, 0, 0, err
		}
		if stored != nil {
			topLevel = append(topLevel, stored)
		}
	}

	existing, err := h.tasks.ListSessionTasks(ctx, userID, session)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("list session tasks: %w", err)
	}
	var stale []string
	for _, t := range existing {
		if _, ok := present[t.SourceTaskID]; !ok {
			stale = append(stale, t.ID)
		}
	}
	if len(stale) > 0 {
		if deleted, err = h.tasks.DeleteTasks(ctx, userID, stale); err != nil {
			return nil, 0, 0, fmt.Errorf("delete stale tasks: %w", err)
		}
	}
	return topLevel, upserted, deleted, nil
}

func (h *Handlers) taskFromExtracted(et event.ExtractedTask, userID, workspaceID string, session SessionRef, sourceID, parentID string) *Task {
	now := h.now()
	status := strings.TrimSpace(et.Status)
	if status == "" {
		status = StatusTodo
	}
	assignee := strings.TrimSpace(et.AssigneeName)
	t := &Task{
		ID:                h.newID(),
		UserID:            userID,
		WorkspaceID:       workspaceID,
		Title:             strings.TrimSpace(et.Title),
		Description:       et.Description,
		Priority:          et.Priority,
		DueAt:             et.DueAt,
		Status:            status,
		AssigneeName:      assignee,
		AssigneeNameKey:   NameKey(assignee),
		SourceSessionType: session.Type,
		SourceSessionID:   session.ID,
		SourceTaskID:      sourceID,
		ParentID:          parentID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if et.ID != "" {
		t.AliasIDs = []string{et.ID}
	}
	return t
}

// sourceTaskID is the stable identity of an extracted task within its
// session: the extractor's ID when present, otherwise derived from the
// title and position.
func sourceTaskID(et event.ExtractedTask, parentID string, pos int) string {
	if id := strings.TrimSpace(et.ID); id != "" {
		return id
	}
	key := NameKey(et.Title)
	if key == "" {
		key = fmt.Sprintf("#%d", pos)
	}
	if parentID != "" {
		return parentID + "/" + key
	}
	return key
}
