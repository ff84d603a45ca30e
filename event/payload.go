package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/trbojevicstefan/taskwise"
)

// Payload is the sealed sum type of event payloads. Only the variants in
// this package implement it.
type Payload interface {
	EventType() Type
	isPayload()
}

// TaskStatusChanged announces that a task moved to a new status.
type TaskStatusChanged struct {
	TaskID            string `json:"taskId"`
	Status            string `json:"status"`
	SourceSessionType string `json:"sourceSessionType,omitempty"`
	SourceSessionID   string `json:"sourceSessionId,omitempty"`
}

// MeetingIngested announces that a meeting transcript was processed.
type MeetingIngested struct {
	MeetingID      string          `json:"meetingId"`
	WorkspaceID    string          `json:"workspaceId,omitempty"`
	Title          string          `json:"title,omitempty"`
	Attendees      []Attendee      `json:"attendees"`
	ExtractedTasks []ExtractedTask `json:"extractedTasks"`
}

// Attendee is a meeting participant.
type Attendee struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// ExtractedTask is a task found in a meeting, possibly with subtasks.
type ExtractedTask struct {
	ID                  string             `json:"id"`
	Title               string             `json:"title"`
	Description         string             `json:"description,omitempty"`
	Priority            string             `json:"priority,omitempty"`
	DueAt               *time.Time         `json:"dueAt,omitempty"`
	AssigneeName        string             `json:"assigneeName,omitempty"`
	Status              string             `json:"status,omitempty"`
	CompletionSuggested bool               `json:"completionSuggested,omitempty"`
	CompletionTargets   []CompletionTarget `json:"completionTargets,omitempty"`
	Subtasks            []ExtractedTask    `json:"subtasks,omitempty"`
}

// CompletionTarget points at the session whose task a completion
// suggestion refers to.
type CompletionTarget struct {
	SourceType      string `json:"sourceType,omitempty"`
	SourceSessionID string `json:"sourceSessionId"`
	TaskID          string `json:"taskId,omitempty"`
}

// SuggestedForOtherSession reports whether t is a completion suggestion
// aimed at a session other than sessionID.
func (t ExtractedTask) SuggestedForOtherSession(sessionID string) bool {
	if !t.CompletionSuggested {
		return false
	}
	for _, target := range t.CompletionTargets {
		if target.SourceSessionID != "" && target.SourceSessionID != sessionID {
			return true
		}
	}
	return false
}

// BoardItemUpdated announces that a board card was edited and the
// canonical task should follow.
type BoardItemUpdated struct {
	TaskID         string       `json:"taskId"`
	StatusCategory string       `json:"statusCategory,omitempty"`
	TaskUpdates    *TaskUpdates `json:"taskUpdates,omitempty"`
}

// TaskUpdates carries the task fields edited on a board card. Nil fields
// were not edited.
type TaskUpdates struct {
	Title        *string    `json:"title,omitempty"`
	Description  *string    `json:"description,omitempty"`
	Priority     *string    `json:"priority,omitempty"`
	DueAt        *time.Time `json:"dueAt,omitempty"`
	Assignee     *Assignee  `json:"assignee,omitempty"`
	AssigneeName *string    `json:"assigneeName,omitempty"`
	Status       *string    `json:"status,omitempty"`
}

// Assignee identifies the person a task is assigned to.
type Assignee struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

func (TaskStatusChanged) EventType() Type { return TypeTaskStatusChanged }
func (MeetingIngested) EventType() Type   { return TypeMeetingIngested }
func (BoardItemUpdated) EventType() Type  { return TypeBoardItemUpdated }

func (TaskStatusChanged) isPayload() {}
func (MeetingIngested) isPayload()   {}
func (BoardItemUpdated) isPayload()  {}

// Decode unmarshals raw into the payload variant for typ.
func Decode(typ Type, raw json.RawMessage) (Payload, error) {
	switch typ {
	case TypeTaskStatusChanged:
		return decodeAs[TaskStatusChanged](typ, raw)
	case TypeMeetingIngested:
		return decodeAs[MeetingIngested](typ, raw)
	case TypeBoardItemUpdated:
		return decodeAs[BoardItemUpdated](typ, raw)
	}
	return nil, fmt.Errorf("%w: %q", taskwise.ErrUnknownEventType, typ)
}

func decodeAs[P Payload](typ Type, raw json.RawMessage) (Payload, error) {
	var p P
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: %s event has no payload", taskwise.ErrInvalidPayload, typ)
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", taskwise.ErrInvalidPayload, typ, err)
	}
	return p, nil
}
