package effects_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/trbojevicstefan/taskwise"
	"github.com/trbojevicstefan/taskwise/effects"
	"github.com/trbojevicstefan/taskwise/event"
	"github.com/trbojevicstefan/taskwise/id"
	"github.com/trbojevicstefan/taskwise/observability"
	"github.com/trbojevicstefan/taskwise/store/memory"
)

const userID = "user-1"

var fixedNow = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func meta(typ event.Type) event.Meta {
	return event.Meta{EventID: id.NewEventID(), Type: typ, UserID: userID, CorrelationID: "corr-1", Attempt: 1}
}

// boardSpy counts calls that reach the board store.
type boardSpy struct {
	effects.BoardStore
	mu    sync.Mutex
	calls int
}

func (b *boardSpy) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func (b *boardSpy) ListBoardItems(ctx context.Context, userID, taskID string) ([]*effects.BoardItem, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	return b.BoardStore.ListBoardItems(ctx, userID, taskID)
}

func (b *boardSpy) UpdateBoardItemStatus(ctx context.Context, userID, itemID, status string) error {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	return b.BoardStore.UpdateBoardItemStatus(ctx, userID, itemID, status)
}

// taskSpy counts UpdateTask calls.
type taskSpy struct {
	effects.TaskStore
	updates int
}

func (t *taskSpy) UpdateTask(ctx context.Context, userID, taskID string, patch effects.TaskPatch) (bool, error) {
	t.updates++
	return t.TaskStore.UpdateTask(ctx, userID, taskID, patch)
}

type staticResolver struct {
	workspaceID string
	err         error
	calls       int
}

func (r *staticResolver) ResolveWorkspace(context.Context, string, string) (string, error) {
	r.calls++
	return r.workspaceID, r.err
}

type callRecorder struct {
	observability.Nop
	calls []observability.ExternalCallMetric
}

func (r *callRecorder) RecordExternalCall(_ context.Context, m observability.ExternalCallMetric) error {
	r.calls = append(r.calls, m)
	return nil
}

func newHandlers(s *memory.Store, opts ...effects.Option) *effects.Handlers {
	opts = append([]effects.Option{effects.WithClock(func() time.Time { return fixedNow })}, opts...)
	return effects.New(s, s, s, opts...)
}

func meetingPayload() event.MeetingIngested {
	return event.MeetingIngested{
		MeetingID:   "meeting-1",
		WorkspaceID: "ws-1",
		Title:       "Weekly sync",
		Attendees: []event.Attendee{
			{Name: "Ana Lee", Email: "ana@example.com"},
			{Name: "Bob Stone", Email: "bob@example.com"},
		},
		ExtractedTasks: []event.ExtractedTask{
			{ID: "x-1", Title: "Draft plan", AssigneeName: "Ana Lee"},
			{ID: "x-2", Title: "Book venue", Priority: "high"},
			{
				ID:                  "x-3",
				Title:               "Close old ticket",
				CompletionSuggested: true,
				CompletionTargets:   []event.CompletionTarget{{SourceSessionID: "meeting-0", TaskID: "old"}},
			},
		},
	}
}

func TestMeetingIngested_SynchronizesPeopleTasksAndBoard(t *testing.T) {
	s := memory.New()
	h := newHandlers(s)
	ctx := context.Background()

	res, err := h.HandleMeetingIngested(ctx, meta(event.TypeMeetingIngested), meetingPayload())
	if err != nil {
		t.Fatalf("HandleMeetingIngested: %v", err)
	}
	want := event.MeetingIngestedResult{
		People:            event.PeopleCounts{Created: 2},
		Tasks:             event.TaskCounts{Upserted: 2},
		BoardItemsCreated: 2,
	}
	if res != want {
		t.Fatalf("result = %+v, want %+v", res, want)
	}

	tasks := s.Tasks(userID)
	if len(tasks) != 2 {
		t.Fatalf("stored %d tasks, want 2", len(tasks))
	}
	for _, task := range tasks {
		if task.SourceSessionType != effects.SessionMeeting || task.SourceSessionID != "meeting-1" {
			t.Errorf("task %s has session %s/%s", task.ID, task.SourceSessionType, task.SourceSessionID)
		}
		if task.WorkspaceID != "ws-1" || task.Status != effects.StatusTodo {
			t.Errorf("unexpected task %+v", task)
		}
		if task.SourceTaskID == "x-3" {
			t.Error("completion suggestion for another session must be excluded")
		}
		if task.SourceTaskID == "x-1" && task.AssigneeNameKey != "ana lee" {
			t.Errorf("AssigneeNameKey = %q", task.AssigneeNameKey)
		}
	}

	items := s.BoardItems(userID)
	if len(items) != 2 {
		t.Fatalf("stored %d board items, want 2", len(items))
	}
	for _, item := range items {
		if item.WorkspaceID != "ws-1" || item.Status != effects.StatusTodo {
			t.Errorf("unexpected board item %+v", item)
		}
	}
}

func TestMeetingIngested_ReingestIsIdempotent(t *testing.T) {
	s := memory.New()
	h := newHandlers(s)
	ctx := context.Background()
	p := meetingPayload()

	if _, err := h.HandleMeetingIngested(ctx, meta(event.TypeMeetingIngested), p); err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	firstIDs := map[string]string{}
	for _, task := range s.Tasks(userID) {
		firstIDs[task.SourceTaskID] = task.ID
	}

	res, err := h.HandleMeetingIngested(ctx, meta(event.TypeMeetingIngested), p)
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	want := event.MeetingIngestedResult{Tasks: event.TaskCounts{Upserted: 2}}
	if res != want {
		t.Fatalf("result = %+v, want %+v", res, want)
	}
	if n := len(s.People(userID)); n != 2 {
		t.Errorf("people = %d, want 2", n)
	}
	if n := len(s.BoardItems(userID)); n != 2 {
		t.Errorf("board items = %d, want 2", n)
	}
	for _, task := range s.Tasks(userID) {
		if firstIDs[task.SourceTaskID] != task.ID {
			t.Errorf("task %s changed ID on re-ingest", task.SourceTaskID)
		}
	}
}

func TestMeetingIngested_DeletesTasksNoLongerPresent(t *testing.T) {
	s := memory.New()
	h := newHandlers(s)
	ctx := context.Background()
	p := meetingPayload()

	if _, err := h.HandleMeetingIngested(ctx, meta(event.TypeMeetingIngested), p); err != nil {
		t.Fatalf("first ingest: %v", err)
	}

	p.ExtractedTasks = p.ExtractedTasks[:1]
	res, err := h.HandleMeetingIngested(ctx, meta(event.TypeMeetingIngested), p)
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if res.Tasks.Upserted != 1 || res.Tasks.Deleted != 1 {
		t.Fatalf("tasks = %+v, want upserted 1 deleted 1", res.Tasks)
	}
	tasks := s.Tasks(userID)
	if len(tasks) != 1 || tasks[0].SourceTaskID != "x-1" {
		t.Fatalf("remaining tasks %+v", tasks)
	}
}

func TestMeetingIngested_MergesPeople(t *testing.T) {
	s := memory.New()
	h := newHandlers(s)
	ctx := context.Background()

	if err := s.InsertPerson(ctx, &effects.Person{
		ID:      "p-1",
		UserID:  userID,
		Name:    "Ana Lee",
		NameKey: effects.NameKey("Ana Lee"),
	}); err != nil {
		t.Fatalf("InsertPerson: %v", err)
	}

	p := event.MeetingIngested{
		MeetingID: "meeting-2",
		Attendees: []event.Attendee{
			{Name: "ana  lee", Email: "Ana@Example.com"},
			{Name: "Ana Lee", Email: "ANA@example.com "},
			{Name: "Carl"},
			{Name: ""},
		},
	}
	res, err := h.HandleMeetingIngested(ctx, meta(event.TypeMeetingIngested), p)
	if err != nil {
		t.Fatalf("HandleMeetingIngested: %v", err)
	}
	if res.People != (event.PeopleCounts{Created: 1, Updated: 1}) {
		t.Fatalf("people = %+v, want created 1 updated 1", res.People)
	}
	if res.BoardItemsCreated != 0 {
		t.Errorf("no workspace, yet %d board items created", res.BoardItemsCreated)
	}

	merged, err := s.FindPersonByEmail(ctx, userID, "ana@example.com")
	if err != nil || merged == nil {
		t.Fatalf("FindPersonByEmail = %v, %v", merged, err)
	}
	if merged.ID != "p-1" || len(merged.SourceSessionIDs) != 1 || merged.SourceSessionIDs[0] != "meeting-2" {
		t.Errorf("unexpected merged person %+v", merged)
	}
}

func TestMeetingIngested_SubtasksLinkToParent(t *testing.T) {
	s := memory.New()
	h := newHandlers(s)
	ctx := context.Background()

	p := event.MeetingIngested{
		MeetingID:   "meeting-3",
		WorkspaceID: "ws-1",
		ExtractedTasks: []event.ExtractedTask{{
			Title: "Launch",
			Subtasks: []event.ExtractedTask{
				{Title: "Write copy"},
				{Title: "Elsewhere", CompletionSuggested: true, CompletionTargets: []event.CompletionTarget{{SourceSessionID: "meeting-9"}}},
			},
		}},
	}
	res, err := h.HandleMeetingIngested(ctx, meta(event.TypeMeetingIngested), p)
	if err != nil {
		t.Fatalf("HandleMeetingIngested: %v", err)
	}
	if res.Tasks.Upserted != 2 || res.BoardItemsCreated != 1 {
		t.Fatalf("result = %+v, want 2 upserted 1 board item", res)
	}

	var parent, child *effects.Task
	for _, task := range s.Tasks(userID) {
		if task.ParentID == "" {
			parent = task
		} else {
			child = task
		}
	}
	if parent == nil || child == nil || child.ParentID != parent.ID {
		t.Fatalf("parent=%+v child=%+v", parent, child)
	}
}

func TestMeetingIngested_ResolvesWorkspace(t *testing.T) {
	s := memory.New()
	resolver := &staticResolver{workspaceID: "ws-resolved"}
	rec := &callRecorder{}
	h := newHandlers(s, effects.WithWorkspaceResolver(resolver), effects.WithRecorder(rec))

	p := meetingPayload()
	p.WorkspaceID = ""
	res, err := h.HandleMeetingIngested(context.Background(), meta(event.TypeMeetingIngested), p)
	if err != nil {
		t.Fatalf("HandleMeetingIngested: %v", err)
	}
	if res.BoardItemsCreated != 2 || resolver.calls != 1 {
		t.Fatalf("board items=%d resolver calls=%d", res.BoardItemsCreated, resolver.calls)
	}
	for _, item := range s.BoardItems(userID) {
		if item.WorkspaceID != "ws-resolved" {
			t.Errorf("item workspace = %q", item.WorkspaceID)
		}
	}
	if len(rec.calls) != 1 || rec.calls[0].Provider != "workspace" || rec.calls[0].Outcome != "ok" {
		t.Errorf("external calls %+v", rec.calls)
	}
}

func TestMeetingIngested_ResolverError(t *testing.T) {
	boom := errors.New("directory unavailable")
	h := newHandlers(memory.New(), effects.WithWorkspaceResolver(&staticResolver{err: boom}))

	p := meetingPayload()
	p.WorkspaceID = ""
	if _, err := h.HandleMeetingIngested(context.Background(), meta(event.TypeMeetingIngested), p); !errors.Is(err, boom) {
		t.Fatalf("expected resolver error, got %v", err)
	}
}

type failingRecorder struct{ observability.Nop }

func (failingRecorder) RecordExternalCall(context.Context, observability.ExternalCallMetric) error {
	return errors.New("metrics sink down")
}

func TestMeetingIngested_RecorderErrorIsLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	s := memory.New()
	h := newHandlers(s,
		effects.WithWorkspaceResolver(&staticResolver{workspaceID: "ws-resolved"}),
		effects.WithRecorder(failingRecorder{}),
		effects.WithLogger(logger),
	)

	p := meetingPayload()
	p.WorkspaceID = ""
	res, err := h.HandleMeetingIngested(context.Background(), meta(event.TypeMeetingIngested), p)
	if err != nil {
		t.Fatalf("HandleMeetingIngested: %v", err)
	}
	if res.BoardItemsCreated != 2 {
		t.Errorf("board items = %d", res.BoardItemsCreated)
	}
	out := buf.String()
	if !strings.Contains(out, "record external call metric failed") || !strings.Contains(out, "metrics sink down") {
		t.Errorf("missing recorder warning in %q", out)
	}
}

func TestMeetingIngested_RequiresMeetingID(t *testing.T) {
	h := newHandlers(memory.New())
	_, err := h.HandleMeetingIngested(context.Background(), meta(event.TypeMeetingIngested), event.MeetingIngested{})
	if !errors.Is(err, taskwise.ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}

func seedTask(s *memory.Store, taskID string, aliases ...string) {
	s.PutTask(&effects.Task{
		ID:                taskID,
		UserID:            userID,
		Title:             "Draft plan",
		Status:            "todo",
		AliasIDs:          aliases,
		SourceSessionType: effects.SessionMeeting,
		SourceSessionID:   "meeting-1",
	})
}

func TestTaskStatusChanged_MovesBoardItems(t *testing.T) {
	s := memory.New()
	seedTask(s, "task-1", "x-1")
	s.PutBoardItem(&effects.BoardItem{ID: "b-1", UserID: userID, WorkspaceID: "ws-1", TaskID: "task-1", Status: "todo"})
	s.PutBoardItem(&effects.BoardItem{ID: "b-2", UserID: userID, WorkspaceID: "ws-2", TaskID: "task-1", Status: "done"})
	h := newHandlers(s)

	res, err := h.HandleTaskStatusChanged(context.Background(), meta(event.TypeTaskStatusChanged), event.TaskStatusChanged{
		TaskID:            "x-1",
		Status:            "done",
		SourceSessionType: effects.SessionMeeting,
		SourceSessionID:   "meeting-1",
	})
	if err != nil {
		t.Fatalf("HandleTaskStatusChanged: %v", err)
	}
	if res.MatchedTasks != 1 {
		t.Fatalf("MatchedTasks = %d, want 1", res.MatchedTasks)
	}
	for _, item := range s.BoardItems(userID) {
		if item.Status != "done" {
			t.Errorf("board item %s status = %s", item.ID, item.Status)
		}
	}
}

func TestTaskStatusChanged_NoMatchTouchesNothing(t *testing.T) {
	s := memory.New()
	seedTask(s, "task-1")
	spy := &boardSpy{BoardStore: s}
	h := effects.New(s, s, spy)

	res, err := h.HandleTaskStatusChanged(context.Background(), meta(event.TypeTaskStatusChanged), event.TaskStatusChanged{
		TaskID: "missing",
		Status: "done",
	})
	if err != nil {
		t.Fatalf("HandleTaskStatusChanged: %v", err)
	}
	if res.MatchedTasks != 0 || spy.count() != 0 {
		t.Fatalf("matched=%d board calls=%d", res.MatchedTasks, spy.count())
	}

	// Session scope excludes tasks from other sessions.
	res, _ = h.HandleTaskStatusChanged(context.Background(), meta(event.TypeTaskStatusChanged), event.TaskStatusChanged{
		TaskID:          "task-1",
		Status:          "done",
		SourceSessionID: "meeting-other",
	})
	if res.MatchedTasks != 0 {
		t.Errorf("MatchedTasks = %d for another session", res.MatchedTasks)
	}
}

func TestTaskStatusChanged_RequiresFields(t *testing.T) {
	h := newHandlers(memory.New())
	_, err := h.HandleTaskStatusChanged(context.Background(), meta(event.TypeTaskStatusChanged), event.TaskStatusChanged{TaskID: "t"})
	if !errors.Is(err, taskwise.ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}

func strPtr(s string) *string { return &s }

func TestBoardItemUpdated_AppliesRecognizedFields(t *testing.T) {
	s := memory.New()
	seedTask(s, "task-1")
	h := newHandlers(s)

	res, err := h.HandleBoardItemUpdated(context.Background(), meta(event.TypeBoardItemUpdated), event.BoardItemUpdated{
		TaskID:         "task-1",
		StatusCategory: "in_progress",
		TaskUpdates: &event.TaskUpdates{
			Title:        strPtr("Draft final plan"),
			AssigneeName: strPtr("  Bob Stone "),
		},
	})
	if err != nil {
		t.Fatalf("HandleBoardItemUpdated: %v", err)
	}
	if !res.Updated || res.TaskID != "task-1" {
		t.Fatalf("result = %+v", res)
	}

	task := s.Tasks(userID)[0]
	if task.Title != "Draft final plan" || task.AssigneeName != "Bob Stone" || task.AssigneeNameKey != "bob stone" || task.Status != "in_progress" {
		t.Errorf("unexpected task %+v", task)
	}
}

func TestBoardItemUpdated_ExplicitStatusWins(t *testing.T) {
	s := memory.New()
	seedTask(s, "task-1")
	h := newHandlers(s)

	_, err := h.HandleBoardItemUpdated(context.Background(), meta(event.TypeBoardItemUpdated), event.BoardItemUpdated{
		TaskID:         "task-1",
		StatusCategory: "in_progress",
		TaskUpdates:    &event.TaskUpdates{Status: strPtr("blocked")},
	})
	if err != nil {
		t.Fatalf("HandleBoardItemUpdated: %v", err)
	}
	if got := s.Tasks(userID)[0].Status; got != "blocked" {
		t.Errorf("Status = %q, want blocked", got)
	}
}

func TestBoardItemUpdated_NothingRecognized(t *testing.T) {
	s := memory.New()
	seedTask(s, "task-1")
	spy := &taskSpy{TaskStore: s}
	h := effects.New(s, spy, s)

	res, err := h.HandleBoardItemUpdated(context.Background(), meta(event.TypeBoardItemUpdated), event.BoardItemUpdated{
		TaskID:      "task-1",
		TaskUpdates: &event.TaskUpdates{},
	})
	if err != nil {
		t.Fatalf("HandleBoardItemUpdated: %v", err)
	}
	if res.Updated || res.TaskID != "task-1" || spy.updates != 0 {
		t.Fatalf("result=%+v store calls=%d", res, spy.updates)
	}
}

func TestBoardItemUpdated_UnknownTask(t *testing.T) {
	h := newHandlers(memory.New())
	_, err := h.HandleBoardItemUpdated(context.Background(), meta(event.TypeBoardItemUpdated), event.BoardItemUpdated{
		TaskID:         "missing",
		StatusCategory: "done",
	})
	if !errors.Is(err, taskwise.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestNameKey(t *testing.T) {
	tests := map[string]string{
		"  Ana   Lee ": "ana lee",
		"ana.lee":      "ana lee",
		"O'Brien":      "obrien",
		"":             "",
		"Zoë-Ann":      "zoë ann",
	}
	for in, want := range tests {
		if got := effects.NameKey(in); got != want {
			t.Errorf("NameKey(%q) = %q, want %q", in, got, want)
		}
	}
}
