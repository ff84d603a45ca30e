package memory

import (
	"context"
	"slices"
	"strings"

	"github.com/trbojevicstefan/taskwise"
	"github.com/trbojevicstefan/taskwise/effects"
)

func clonePerson(p *effects.Person) *effects.Person {
	cp := *p
	cp.Aliases = slices.Clone(p.Aliases)
	cp.SourceSessionIDs = slices.Clone(p.SourceSessionIDs)
	return &cp
}

func cloneTask(t *effects.Task) *effects.Task {
	cp := *t
	cp.AliasIDs = slices.Clone(t.AliasIDs)
	cp.DueAt = cloneTime(t.DueAt)
	if t.Assignee != nil {
		a := *t.Assignee
		cp.Assignee = &a
	}
	return &cp
}

// ── People ─────────────────────────────────────────

// FindPersonByEmail returns the person of userID with email, or nil.
func (m *Store) FindPersonByEmail(_ context.Context, userID, email string) (*effects.Person, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.people {
		if p.UserID == userID && p.Email != "" && strings.EqualFold(p.Email, email) {
			return clonePerson(p), nil
		}
	}
	return nil, nil
}

// FindPersonByNameKey returns the person of userID with nameKey, or nil.
func (m *Store) FindPersonByNameKey(_ context.Context, userID, nameKey string) (*effects.Person, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.people {
		if p.UserID == userID && p.NameKey == nameKey {
			return clonePerson(p), nil
		}
	}
	return nil, nil
}

// InsertPerson persists a new person.
func (m *Store) InsertPerson(_ context.Context, p *effects.Person) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.people[p.ID] = clonePerson(p)
	return nil
}

// UpdatePerson replaces an existing person.
func (m *Store) UpdatePerson(_ context.Context, p *effects.Person) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.people[p.ID]; !ok {
		return taskwise.ErrInvalidState
	}
	m.people[p.ID] = clonePerson(p)
	return nil
}

// People returns a copy of every person of userID.
func (m *Store) People(userID string) []*effects.Person {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*effects.Person
	for _, p := range m.people {
		if p.UserID == userID {
			out = append(out, clonePerson(p))
		}
	}
	return out
}

// ── Tasks ──────────────────────────────────────────

// FindTasks returns the tasks of userID matching taskID within session.
func (m *Store) FindTasks(_ context.Context, userID, taskID string, session effects.SessionRef) ([]*effects.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*effects.Task
	for _, t := range m.tasks {
		if t.UserID == userID && t.MatchesID(taskID) && t.InSession(session) {
			out = append(out, cloneTask(t))
		}
	}
	return out, nil
}

// ListSessionTasks returns the tasks synchronized from session.
func (m *Store) ListSessionTasks(_ context.Context, userID string, session effects.SessionRef) ([]*effects.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*effects.Task
	for _, t := range m.tasks {
		if t.UserID == userID && t.SourceSessionType == session.Type && t.SourceSessionID == session.ID {
			out = append(out, cloneTask(t))
		}
	}
	return out, nil
}

// UpsertSessionTask inserts or replaces a session task.
func (m *Store) UpsertSessionTask(_ context.Context, t *effects.Task) (*effects.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := cloneTask(t)
	for _, existing := range m.tasks {
		if existing.UserID == t.UserID &&
			existing.SourceSessionType == t.SourceSessionType &&
			existing.SourceSessionID == t.SourceSessionID &&
			existing.SourceTaskID == t.SourceTaskID {
			stored.ID = existing.ID
			stored.CreatedAt = existing.CreatedAt
			break
		}
	}
	m.tasks[stored.ID] = stored
	return cloneTask(stored), nil
}

// DeleteTasks removes tasks by primary ID.
func (m *Store) DeleteTasks(_ context.Context, userID string, taskIDs []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, taskID := range taskIDs {
		if t, ok := m.tasks[taskID]; ok && t.UserID == userID {
			delete(m.tasks, taskID)
			n++
		}
	}
	return n, nil
}

// UpdateTask applies patch to every task of userID matching taskID.
func (m *Store) UpdateTask(_ context.Context, userID, taskID string, patch effects.TaskPatch) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	found, changed := false, false
	for _, t := range m.tasks {
		if t.UserID != userID || !t.MatchesID(taskID) {
			continue
		}
		found = true
		if patch.Apply(t) {
			changed = true
		}
	}
	if !found {
		return false, taskwise.ErrTaskNotFound
	}
	return changed, nil
}

// Tasks returns a copy of every task of userID.
func (m *Store) Tasks(userID string) []*effects.Task {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*effects.Task
	for _, t := range m.tasks {
		if t.UserID == userID {
			out = append(out, cloneTask(t))
		}
	}
	return out
}

// PutTask stores t as-is. Intended for seeding tests.
func (m *Store) PutTask(t *effects.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.ID] = cloneTask(t)
}

// ── Board ──────────────────────────────────────────

// ListBoardItems returns the placements of taskID.
func (m *Store) ListBoardItems(_ context.Context, userID, taskID string) ([]*effects.BoardItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*effects.BoardItem
	for _, item := range m.board {
		if item.UserID == userID && item.TaskID == taskID {
			cp := *item
			out = append(out, &cp)
		}
	}
	return out, nil
}

// UpdateBoardItemStatus moves a placement to status.
func (m *Store) UpdateBoardItemStatus(_ context.Context, userID, itemID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.board[itemID]
	if !ok || item.UserID != userID {
		return taskwise.ErrInvalidState
	}
	item.Status = status
	return nil
}

// EnsureBoardItem inserts item unless its task already has a placement
// in the workspace.
func (m *Store) EnsureBoardItem(_ context.Context, item *effects.BoardItem) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.board {
		if existing.UserID == item.UserID && existing.WorkspaceID == item.WorkspaceID && existing.TaskID == item.TaskID {
			return false, nil
		}
	}
	cp := *item
	m.board[item.ID] = &cp
	return true, nil
}

// BoardItems returns a copy of every placement of userID.
func (m *Store) BoardItems(userID string) []*effects.BoardItem {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*effects.BoardItem
	for _, item := range m.board {
		if item.UserID == userID {
			cp := *item
			out = append(out, &cp)
		}
	}
	return out
}

// PutBoardItem stores item as-is. Intended for seeding tests.
func (m *Store) PutBoardItem(item *effects.BoardItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *item
	m.board[item.ID] = &cp
}
