package mongo

import (
	"fmt"
	"time"

	"github.com/trbojevicstefan/taskwise"
	"github.com/trbojevicstefan/taskwise/effects"
	"github.com/trbojevicstefan/taskwise/event"
	"github.com/trbojevicstefan/taskwise/id"
	"github.com/trbojevicstefan/taskwise/job"
	"github.com/trbojevicstefan/taskwise/observability"
)

// ── Failure ───────────────────────────────────────────────────────

type failureModel struct {
	Message string `bson:"message"`
	Stack   string `bson:"stack,omitempty"`
}

func toFailureModel(f *taskwise.Failure) *failureModel {
	if f == nil {
		return nil
	}
	return &failureModel{Message: f.Message, Stack: f.Stack}
}

func fromFailureModel(m *failureModel) *taskwise.Failure {
	if m == nil {
		return nil
	}
	return &taskwise.Failure{Message: m.Message, Stack: m.Stack}
}

// ── Job model ─────────────────────────────────────────────────────

type jobModel struct {
	ID             string        `bson:"_id"`
	Type           string        `bson:"type"`
	UserID         string        `bson:"userId"`
	CorrelationID  string        `bson:"correlationId"`
	Payload        []byte        `bson:"payload"`
	Status         string        `bson:"status"`
	Attempts       int           `bson:"attempts"`
	MaxAttempts    int           `bson:"maxAttempts"`
	RunAt          time.Time     `bson:"runAt"`
	StartedAt      *time.Time    `bson:"startedAt,omitempty"`
	FinishedAt     *time.Time    `bson:"finishedAt,omitempty"`
	LeaseExpiresAt *time.Time    `bson:"leaseExpiresAt,omitempty"`
	Result         []byte        `bson:"result,omitempty"`
	Error          *failureModel `bson:"error,omitempty"`
	CreatedAt      time.Time     `bson:"createdAt"`
	UpdatedAt      time.Time     `bson:"updatedAt"`
}

func toJobModel(j *job.Job) *jobModel {
	return &jobModel{
		ID:             j.ID.String(),
		Type:           string(j.Type),
		UserID:         j.UserID,
		CorrelationID:  j.CorrelationID,
		Payload:        j.Payload,
		Status:         string(j.Status),
		Attempts:       j.Attempts,
		MaxAttempts:    j.MaxAttempts,
		RunAt:          j.RunAt,
		StartedAt:      j.StartedAt,
		FinishedAt:     j.FinishedAt,
		LeaseExpiresAt: j.LeaseExpiresAt,
		Result:         j.Result,
		Error:          toFailureModel(j.Error),
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
	}
}

func fromJobModel(m *jobModel) (*job.Job, error) {
	jobID, err := id.ParseJobID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("taskwise/mongo: parse job id %q: %w", m.ID, err)
	}
	return &job.Job{
		Entity:         taskwise.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:             jobID,
		Type:           job.Type(m.Type),
		UserID:         m.UserID,
		CorrelationID:  m.CorrelationID,
		Payload:        m.Payload,
		Status:         job.Status(m.Status),
		Attempts:       m.Attempts,
		MaxAttempts:    m.MaxAttempts,
		RunAt:          m.RunAt,
		StartedAt:      m.StartedAt,
		FinishedAt:     m.FinishedAt,
		LeaseExpiresAt: m.LeaseExpiresAt,
		Result:         m.Result,
		Error:          fromFailureModel(m.Error),
	}, nil
}

// ── Event model ───────────────────────────────────────────────────

type eventModel struct {
	ID             string        `bson:"_id"`
	Type           string        `bson:"type"`
	UserID         string        `bson:"userId"`
	CorrelationID  string        `bson:"correlationId"`
	Payload        []byte        `bson:"payload"`
	Status         string        `bson:"status"`
	Attempts       int           `bson:"attempts"`
	ClaimToken     string        `bson:"claimToken,omitempty"`
	ClaimedAt      *time.Time    `bson:"claimedAt,omitempty"`
	LeaseExpiresAt *time.Time    `bson:"leaseExpiresAt,omitempty"`
	HandledAt      *time.Time    `bson:"handledAt,omitempty"`
	FailedAt       *time.Time    `bson:"failedAt,omitempty"`
	Result         []byte        `bson:"result,omitempty"`
	Error          *failureModel `bson:"error,omitempty"`
	ExpiresAt      *time.Time    `bson:"expiresAt,omitempty"`
	CreatedAt      time.Time     `bson:"createdAt"`
	UpdatedAt      time.Time     `bson:"updatedAt"`
}

func toEventModel(e *event.Event) *eventModel {
	return &eventModel{
		ID:             e.ID.String(),
		Type:           string(e.Type),
		UserID:         e.UserID,
		CorrelationID:  e.CorrelationID,
		Payload:        e.Payload,
		Status:         string(e.Status),
		Attempts:       e.Attempts,
		ClaimToken:     e.ClaimToken,
		ClaimedAt:      e.ClaimedAt,
		LeaseExpiresAt: e.LeaseExpiresAt,
		HandledAt:      e.HandledAt,
		FailedAt:       e.FailedAt,
		Result:         e.Result,
		Error:          toFailureModel(e.Error),
		ExpiresAt:      e.ExpiresAt,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

func fromEventModel(m *eventModel) (*event.Event, error) {
	eventID, err := id.ParseEventID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("taskwise/mongo: parse event id %q: %w", m.ID, err)
	}
	return &event.Event{
		Entity:         taskwise.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:             eventID,
		Type:           event.Type(m.Type),
		UserID:         m.UserID,
		CorrelationID:  m.CorrelationID,
		Payload:        m.Payload,
		Status:         event.Status(m.Status),
		Attempts:       m.Attempts,
		ClaimToken:     m.ClaimToken,
		ClaimedAt:      m.ClaimedAt,
		LeaseExpiresAt: m.LeaseExpiresAt,
		HandledAt:      m.HandledAt,
		FailedAt:       m.FailedAt,
		Result:         m.Result,
		Error:          fromFailureModel(m.Error),
		ExpiresAt:      m.ExpiresAt,
	}, nil
}

// ── Product models ────────────────────────────────────────────────

type personModel struct {
	ID               string    `bson:"_id"`
	UserID           string    `bson:"userId"`
	Name             string    `bson:"name"`
	NameKey          string    `bson:"nameKey"`
	Email            string    `bson:"email,omitempty"`
	Aliases          []string  `bson:"aliases,omitempty"`
	SourceSessionIDs []string  `bson:"sourceSessionIds,omitempty"`
	CreatedAt        time.Time `bson:"createdAt"`
	UpdatedAt        time.Time `bson:"updatedAt"`
}

func toPersonModel(p *effects.Person) *personModel {
	return &personModel{
		ID:               p.ID,
		UserID:           p.UserID,
		Name:             p.Name,
		NameKey:          p.NameKey,
		Email:            effects.NormalizeEmail(p.Email),
		Aliases:          p.Aliases,
		SourceSessionIDs: p.SourceSessionIDs,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}

func (m *personModel) person() *effects.Person {
	return &effects.Person{
		ID:               m.ID,
		UserID:           m.UserID,
		Name:             m.Name,
		NameKey:          m.NameKey,
		Email:            m.Email,
		Aliases:          m.Aliases,
		SourceSessionIDs: m.SourceSessionIDs,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

type assigneeModel struct {
	ID    string `bson:"id,omitempty"`
	Name  string `bson:"name,omitempty"`
	Email string `bson:"email,omitempty"`
}

type taskModel struct {
	ID                string         `bson:"_id"`
	UserID            string         `bson:"userId"`
	WorkspaceID       string         `bson:"workspaceId,omitempty"`
	Title             string         `bson:"title"`
	Description       string         `bson:"description,omitempty"`
	Priority          string         `bson:"priority,omitempty"`
	DueAt             *time.Time     `bson:"dueAt,omitempty"`
	Status            string         `bson:"status"`
	Assignee          *assigneeModel `bson:"assignee,omitempty"`
	AssigneeName      string         `bson:"assigneeName,omitempty"`
	AssigneeNameKey   string         `bson:"assigneeNameKey,omitempty"`
	AliasIDs          []string       `bson:"aliasIds,omitempty"`
	SourceSessionType string         `bson:"sourceSessionType,omitempty"`
	SourceSessionID   string         `bson:"sourceSessionId,omitempty"`
	SourceTaskID      string         `bson:"sourceTaskId,omitempty"`
	ParentID          string         `bson:"parentId,omitempty"`
	CreatedAt         time.Time      `bson:"createdAt"`
	UpdatedAt         time.Time      `bson:"updatedAt"`
}

func toAssigneeModel(a *event.Assignee) *assigneeModel {
	if a == nil {
		return nil
	}
	return &assigneeModel{ID: a.ID, Name: a.Name, Email: a.Email}
}

func toTaskModel(t *effects.Task) *taskModel {
	return &taskModel{
		ID:                t.ID,
		UserID:            t.UserID,
		WorkspaceID:       t.WorkspaceID,
		Title:             t.Title,
		Description:       t.Description,
		Priority:          t.Priority,
		DueAt:             t.DueAt,
		Status:            t.Status,
		Assignee:          toAssigneeModel(t.Assignee),
		AssigneeName:      t.AssigneeName,
		AssigneeNameKey:   t.AssigneeNameKey,
		AliasIDs:          t.AliasIDs,
		SourceSessionType: t.SourceSessionType,
		SourceSessionID:   t.SourceSessionID,
		SourceTaskID:      t.SourceTaskID,
		ParentID:          t.ParentID,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
	}
}

func (m *taskModel) task() *effects.Task {
	t := &effects.Task{
		ID:                m.ID,
		UserID:            m.UserID,
		WorkspaceID:       m.WorkspaceID,
		Title:             m.Title,
		Description:       m.Description,
		Priority:          m.Priority,
		DueAt:             m.DueAt,
		Status:            m.Status,
		AssigneeName:      m.AssigneeName,
		AssigneeNameKey:   m.AssigneeNameKey,
		AliasIDs:          m.AliasIDs,
		SourceSessionType: m.SourceSessionType,
		SourceSessionID:   m.SourceSessionID,
		SourceTaskID:      m.SourceTaskID,
		ParentID:          m.ParentID,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
	if m.Assignee != nil {
		t.Assignee = &event.Assignee{ID: m.Assignee.ID, Name: m.Assignee.Name, Email: m.Assignee.Email}
	}
	return t
}

type boardItemModel struct {
	ID          string    `bson:"_id"`
	UserID      string    `bson:"userId"`
	WorkspaceID string    `bson:"workspaceId"`
	TaskID      string    `bson:"taskId"`
	Status      string    `bson:"status"`
	CreatedAt   time.Time `bson:"createdAt"`
	UpdatedAt   time.Time `bson:"updatedAt"`
}

func (m *boardItemModel) item() *effects.BoardItem {
	return &effects.BoardItem{
		ID:          m.ID,
		UserID:      m.UserID,
		WorkspaceID: m.WorkspaceID,
		TaskID:      m.TaskID,
		Status:      m.Status,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// ── Metric model ──────────────────────────────────────────────────

type metricModel struct {
	Kind          string            `bson:"kind"`
	Name          string            `bson:"name"`
	Outcome       string            `bson:"outcome,omitempty"`
	UserID        string            `bson:"userId,omitempty"`
	CorrelationID string            `bson:"correlationId,omitempty"`
	DurationMs    float64           `bson:"durationMs"`
	Attributes    map[string]string `bson:"attributes,omitempty"`
	RecordedAt    time.Time         `bson:"recordedAt"`
}

func toMetricModel(m *observability.Metric) *metricModel {
	return &metricModel{
		Kind:          m.Kind,
		Name:          m.Name,
		Outcome:       m.Outcome,
		UserID:        m.UserID,
		CorrelationID: m.CorrelationID,
		DurationMs:    m.DurationMs,
		Attributes:    m.Attributes,
		RecordedAt:    m.RecordedAt,
	}
}
