package event_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/trbojevicstefan/taskwise"
	"github.com/trbojevicstefan/taskwise/event"
)

func TestStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from, to event.Status
		want     bool
	}{
		{event.StatusQueued, event.StatusProcessing, true},
		{event.StatusProcessing, event.StatusProcessing, true},
		{event.StatusProcessing, event.StatusHandled, true},
		{event.StatusProcessing, event.StatusFailed, true},
		{event.StatusFailed, event.StatusProcessing, true},
		{event.StatusHandled, event.StatusProcessing, false},
		{event.StatusHandled, event.StatusFailed, false},
		{event.StatusQueued, event.StatusHandled, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("%s → %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestDecode(t *testing.T) {
	p, err := event.Decode(event.TypeMeetingIngested, json.RawMessage(`{
		"meetingId": "m1",
		"attendees": [{"name": "Ana", "email": "ana@example.com"}],
		"extractedTasks": [{"id": "t1", "title": "Ship", "subtasks": [{"id": "t1a", "title": "Test"}]}]
	}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	m, ok := p.(event.MeetingIngested)
	if !ok {
		t.Fatalf("expected MeetingIngested, got %T", p)
	}
	if m.MeetingID != "m1" || len(m.Attendees) != 1 || len(m.ExtractedTasks[0].Subtasks) != 1 {
		t.Errorf("unexpected payload %+v", m)
	}
	if p.EventType() != event.TypeMeetingIngested {
		t.Errorf("EventType = %s", p.EventType())
	}
}

func TestDecode_Errors(t *testing.T) {
	if _, err := event.Decode(event.Type("user.deleted"), json.RawMessage(`{}`)); !errors.Is(err, taskwise.ErrUnknownEventType) {
		t.Errorf("expected ErrUnknownEventType, got %v", err)
	}
	if _, err := event.Decode(event.TypeTaskStatusChanged, json.RawMessage(`{"taskId":`)); !errors.Is(err, taskwise.ErrInvalidPayload) {
		t.Errorf("expected ErrInvalidPayload, got %v", err)
	}
	if _, err := event.Decode(event.TypeTaskStatusChanged, nil); !errors.Is(err, taskwise.ErrInvalidPayload) {
		t.Errorf("expected ErrInvalidPayload for empty payload, got %v", err)
	}
}

func TestBoardItemUpdated_DistinguishesAbsentFields(t *testing.T) {
	p, err := event.Decode(event.TypeBoardItemUpdated, json.RawMessage(`{"taskId":"t1","taskUpdates":{"title":""}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	u := p.(event.BoardItemUpdated).TaskUpdates
	if u == nil || u.Title == nil || *u.Title != "" {
		t.Fatalf("expected present empty title, got %+v", u)
	}
	if u.Description != nil || u.Status != nil {
		t.Errorf("absent fields must stay nil, got %+v", u)
	}
}

func TestPlaceholder(t *testing.T) {
	for _, typ := range event.Types() {
		if event.Placeholder(typ) == nil {
			t.Errorf("missing placeholder for %s", typ)
		}
	}
	raw, _ := json.Marshal(event.Placeholder(event.TypeMeetingIngested))
	want := `{"people":{"created":0,"updated":0},"tasks":{"upserted":0,"deleted":0},"boardItemsCreated":0}`
	if string(raw) != want {
		t.Errorf("placeholder = %s, want %s", raw, want)
	}
	if event.Placeholder(event.Type("nope")) != nil {
		t.Error("unknown type should have no placeholder")
	}
}

func TestSuggestedForOtherSession(t *testing.T) {
	tests := []struct {
		name string
		task event.ExtractedTask
		want bool
	}{
		{"plain", event.ExtractedTask{}, false},
		{"same session", event.ExtractedTask{CompletionSuggested: true, CompletionTargets: []event.CompletionTarget{{SourceSessionID: "m1"}}}, false},
		{"other session", event.ExtractedTask{CompletionSuggested: true, CompletionTargets: []event.CompletionTarget{{SourceSessionID: "m0"}}}, true},
		{"not suggested", event.ExtractedTask{CompletionTargets: []event.CompletionTarget{{SourceSessionID: "m0"}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.task.SuggestedForOtherSession("m1"); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

type recordingHandler struct {
	calls []event.Type
}

func (h *recordingHandler) HandleTaskStatusChanged(context.Context, event.Meta, event.TaskStatusChanged) (event.TaskStatusChangedResult, error) {
	h.calls = append(h.calls, event.TypeTaskStatusChanged)
	return event.TaskStatusChangedResult{MatchedTasks: 2}, nil
}

func (h *recordingHandler) HandleMeetingIngested(context.Context, event.Meta, event.MeetingIngested) (event.MeetingIngestedResult, error) {
	h.calls = append(h.calls, event.TypeMeetingIngested)
	return event.MeetingIngestedResult{}, nil
}

func (h *recordingHandler) HandleBoardItemUpdated(context.Context, event.Meta, event.BoardItemUpdated) (event.BoardItemUpdatedResult, error) {
	h.calls = append(h.calls, event.TypeBoardItemUpdated)
	return event.BoardItemUpdatedResult{}, errors.New("board offline")
}

func TestInvoke_RoutesByVariant(t *testing.T) {
	h := &recordingHandler{}
	ctx := context.Background()

	res, err := event.Invoke(ctx, h, event.Meta{}, event.TaskStatusChanged{TaskID: "t1", Status: "done"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if r := res.(event.TaskStatusChangedResult); r.MatchedTasks != 2 {
		t.Errorf("MatchedTasks = %d, want 2", r.MatchedTasks)
	}

	if _, err := event.Invoke(ctx, h, event.Meta{}, &event.MeetingIngested{MeetingID: "m1"}); err != nil {
		t.Fatalf("Invoke pointer variant: %v", err)
	}
	if _, err := event.Invoke(ctx, h, event.Meta{}, event.BoardItemUpdated{TaskID: "t1"}); err == nil {
		t.Fatal("expected handler error to propagate")
	}

	want := []event.Type{event.TypeTaskStatusChanged, event.TypeMeetingIngested, event.TypeBoardItemUpdated}
	if len(h.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", h.calls, want)
	}
	for i := range want {
		if h.calls[i] != want[i] {
			t.Errorf("calls[%d] = %s, want %s", i, h.calls[i], want[i])
		}
	}
}
