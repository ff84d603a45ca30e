package effects

import (
	"context"
	"time"

	"github.com/trbojevicstefan/taskwise/event"
)

// Session types used for canonical task provenance.
const (
	SessionMeeting = "meeting"
)

// Default statuses.
const (
	StatusTodo = "todo"
)

// Person is a contact derived from meeting attendees.
type Person struct {
	ID               string    `json:"id"`
	UserID           string    `json:"userId"`
	Name             string    `json:"name"`
	NameKey          string    `json:"nameKey"`
	Email            string    `json:"email,omitempty"`
	Aliases          []string  `json:"aliases,omitempty"`
	SourceSessionIDs []string  `json:"sourceSessionIds,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Task is a canonical task record.
type Task struct {
	ID                string          `json:"id"`
	UserID            string          `json:"userId"`
	WorkspaceID       string          `json:"workspaceId,omitempty"`
	Title             string          `json:"title"`
	Description       string          `json:"description,omitempty"`
	Priority          string          `json:"priority,omitempty"`
	DueAt             *time.Time      `json:"dueAt,omitempty"`
	Status            string          `json:"status"`
	Assignee          *event.Assignee `json:"assignee,omitempty"`
	AssigneeName      string          `json:"assigneeName,omitempty"`
	AssigneeNameKey   string          `json:"assigneeNameKey,omitempty"`
	AliasIDs          []string        `json:"aliasIds,omitempty"`
	SourceSessionType string          `json:"sourceSessionType,omitempty"`
	SourceSessionID   string          `json:"sourceSessionId,omitempty"`
	SourceTaskID      string          `json:"sourceTaskId,omitempty"`
	ParentID          string          `json:"parentId,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// MatchesID reports whether taskID is t's primary or alias ID.
func (t *Task) MatchesID(taskID string) bool {
	if t.ID == taskID {
		return true
	}
	for _, alias := range t.AliasIDs {
		if alias == taskID {
			return true
		}
	}
	return false
}

// InSession reports whether t belongs to session. Empty fields of
// session match anything.
func (t *Task) InSession(session SessionRef) bool {
	if session.Type != "" && t.SourceSessionType != session.Type {
		return false
	}
	if session.ID != "" && t.SourceSessionID != session.ID {
		return false
	}
	return true
}

// BoardItem is the placement of a task on a workspace board.
type BoardItem struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	WorkspaceID string    `json:"workspaceId"`
	TaskID      string    `json:"taskId"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// SessionRef identifies the session a task came from.
type SessionRef struct {
	Type string
	ID   string
}

// TaskPatch lists the task fields to change. Nil fields are left alone.
type TaskPatch struct {
	Title           *string
	Description     *string
	Priority        *string
	DueAt           *time.Time
	Assignee        *event.Assignee
	AssigneeName    *string
	AssigneeNameKey *string
	Status          *string
}

// Empty reports whether the patch changes nothing.
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Priority == nil &&
		p.DueAt == nil && p.Assignee == nil && p.AssigneeName == nil &&
		p.AssigneeNameKey == nil && p.Status == nil
}

// Apply writes the patch onto t and reports whether anything changed.
func (p TaskPatch) Apply(t *Task) bool {
	changed := false
	set := func(dst *string, v *string) {
		if v != nil && *dst != *v {
			*dst = *v
			changed = true
		}
	}
	set(&t.Title, p.Title)
	set(&t.Description, p.Description)
	set(&t.Priority, p.Priority)
	set(&t.AssigneeName, p.AssigneeName)
	set(&t.AssigneeNameKey, p.AssigneeNameKey)
	set(&t.Status, p.Status)
	if p.DueAt != nil && (t.DueAt == nil || !t.DueAt.Equal(*p.DueAt)) {
		due := *p.DueAt
		t.DueAt = &due
		changed = true
	}
	if p.Assignee != nil && (t.Assignee == nil || *t.Assignee != *p.Assignee) {
		a := *p.Assignee
		t.Assignee = &a
		changed = true
	}
	return changed
}

// PersonStore persists people.
type PersonStore interface {
	// FindPersonByEmail returns nil when no person of userID has email
	// (compared case-insensitively).
	FindPersonByEmail(ctx context.Context, userID, email string) (*Person, error)
	// FindPersonByNameKey returns nil when no person of userID has the
	// normalized name key.
	FindPersonByNameKey(ctx context.Context, userID, nameKey string) (*Person, error)
	InsertPerson(ctx context.Context, p *Person) error
	UpdatePerson(ctx context.Context, p *Person) error
}

// TaskStore persists canonical tasks.
type TaskStore interface {
	// FindTasks returns the tasks of userID whose primary or alias ID is
	// taskID, restricted to session when its fields are set.
	FindTasks(ctx context.Context, userID, taskID string, session SessionRef) ([]*Task, error)
	// ListSessionTasks returns every canonical task synchronized from
	// session.
	ListSessionTasks(ctx context.Context, userID string, session SessionRef) ([]*Task, error)
	// UpsertSessionTask inserts or replaces the task identified by
	// (UserID, SourceSessionType, SourceSessionID, SourceTaskID) and
	// returns the stored record. An existing record keeps its ID and
	// CreatedAt.
	UpsertSessionTask(ctx context.Context, t *Task) (*Task, error)
	// DeleteTasks removes tasks by primary ID and returns how many existed.
	DeleteTasks(ctx context.Context, userID string, taskIDs []string) (int, error)
	// UpdateTask applies patch to the task with primary or alias ID
	// taskID. It returns taskwise.ErrTaskNotFound when no task matches and
	// false when the patch changed nothing.
	UpdateTask(ctx context.Context, userID, taskID string, patch TaskPatch) (bool, error)
}

// BoardStore persists board placements.
type BoardStore interface {
	ListBoardItems(ctx context.Context, userID, taskID string) ([]*BoardItem, error)
	UpdateBoardItemStatus(ctx context.Context, userID, itemID, status string) error
	// EnsureBoardItem inserts item unless (UserID, WorkspaceID, TaskID)
	// already has a placement. It reports whether a placement was created.
	EnsureBoardItem(ctx context.Context, item *BoardItem) (bool, error)
}

// WorkspaceResolver finds the workspace a user's meeting tasks belong to
// when the event does not name one. An empty result means no board.
type WorkspaceResolver interface {
	ResolveWorkspace(ctx context.Context, userID, meetingID string) (string, error)
}
