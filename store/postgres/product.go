package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/trbojevicstefan/taskwise"
	"github.com/trbojevicstefan/taskwise/effects"
)

// ── People ───────────────────────────────────────────────────────

// FindPersonByEmail returns the person of userID with email, or nil.
func (s *Store) FindPersonByEmail(ctx context.Context, userID, email string) (*effects.Person, error) {
	return s.findPerson(ctx,
		`SELECT doc FROM taskwise_people
		 WHERE user_id = $1 AND email = $2 AND email <> ''
		 ORDER BY created_at ASC LIMIT 1`,
		userID, effects.NormalizeEmail(email),
	)
}

// FindPersonByNameKey returns the person of userID with nameKey, or nil.
func (s *Store) FindPersonByNameKey(ctx context.Context, userID, nameKey string) (*effects.Person, error) {
	return s.findPerson(ctx,
		`SELECT doc FROM taskwise_people
		 WHERE user_id = $1 AND name_key = $2
		 ORDER BY created_at ASC LIMIT 1`,
		userID, nameKey,
	)
}

func (s *Store) findPerson(ctx context.Context, query string, args ...any) (*effects.Person, error) {
	var doc []byte
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&doc); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("taskwise/postgres: find person: %w", err)
	}
	var p effects.Person
	if err := json.Unmarshal(doc, &p); err != nil {
		return nil, fmt.Errorf("taskwise/postgres: decode person: %w", err)
	}
	return &p, nil
}

// InsertPerson persists a new person.
func (s *Store) InsertPerson(ctx context.Context, p *effects.Person) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("taskwise/postgres: encode person: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO taskwise_people (id, user_id, name_key, email, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.UserID, p.NameKey, effects.NormalizeEmail(p.Email), doc, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("taskwise/postgres: insert person: %w", err)
	}
	return nil
}

// UpdatePerson replaces an existing person.
func (s *Store) UpdatePerson(ctx context.Context, p *effects.Person) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("taskwise/postgres: encode person: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE taskwise_people SET name_key = $3, email = $4, doc = $5, updated_at = $6
		WHERE id = $1 AND user_id = $2`,
		p.ID, p.UserID, p.NameKey, effects.NormalizeEmail(p.Email), doc, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("taskwise/postgres: update person: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return taskwise.ErrInvalidState
	}
	return nil
}

// ── Tasks ────────────────────────────────────────────────────────

// FindTasks returns the tasks of userID matching taskID within session.
func (s *Store) FindTasks(ctx context.Context, userID, taskID string, session effects.SessionRef) ([]*effects.Task, error) {
	query := `SELECT doc FROM taskwise_tasks WHERE user_id = $1 AND (id = $2 OR $2 = ANY(alias_ids))`
	args := []any{userID, taskID}
	argIdx := 3

	if session.Type != "" {
		query += fmt.Sprintf(" AND source_session_type = $%d", argIdx)
		args = append(args, session.Type)
		argIdx++
	}
	if session.ID != "" {
		query += fmt.Sprintf(" AND source_session_id = $%d", argIdx)
		args = append(args, session.ID)
	}
	query += " ORDER BY created_at ASC"

	return s.queryTasks(ctx, query, args...)
}

// ListSessionTasks returns the tasks synchronized from session.
func (s *Store) ListSessionTasks(ctx context.Context, userID string, session effects.SessionRef) ([]*effects.Task, error) {
	return s.queryTasks(ctx, `
		SELECT doc FROM taskwise_tasks
		WHERE user_id = $1 AND source_session_type = $2 AND source_session_id = $3
		ORDER BY created_at ASC`,
		userID, session.Type, session.ID,
	)
}

func (s *Store) queryTasks(ctx context.Context, query string, args ...any) ([]*effects.Task, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("taskwise/postgres: find tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*effects.Task
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("taskwise/postgres: scan task row: %w", err)
		}
		t, err := decodeTask(doc)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("taskwise/postgres: iterate task rows: %w", err)
	}
	return tasks, nil
}

// UpsertSessionTask inserts or replaces a session task keyed by its
// source identity. An existing record keeps its ID and createdAt.
func (s *Store) UpsertSessionTask(ctx context.Context, t *effects.Task) (*effects.Task, error) {
	doc, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("taskwise/postgres: encode task: %w", err)
	}
	aliases := t.AliasIDs
	if aliases == nil {
		aliases = []string{}
	}

	var stored []byte
	err = s.pool.QueryRow(ctx, `
		INSERT INTO taskwise_tasks (
			id, user_id, alias_ids, source_session_type, source_session_id, source_task_id,
			doc, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, source_session_type, source_session_id, source_task_id)
			WHERE source_task_id <> ''
		DO UPDATE SET
			alias_ids = EXCLUDED.alias_ids,
			doc = EXCLUDED.doc || jsonb_build_object(
				'id', taskwise_tasks.id,
				'createdAt', taskwise_tasks.doc->'createdAt'
			),
			updated_at = EXCLUDED.updated_at
		RETURNING doc`,
		t.ID, t.UserID, aliases, t.SourceSessionType, t.SourceSessionID, t.SourceTaskID,
		doc, t.CreatedAt, t.UpdatedAt,
	).Scan(&stored)
	if err != nil {
		return nil, fmt.Errorf("taskwise/postgres: upsert task: %w", err)
	}
	return decodeTask(stored)
}

// DeleteTasks removes tasks by primary ID.
func (s *Store) DeleteTasks(ctx context.Context, userID string, taskIDs []string) (int, error) {
	if len(taskIDs) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM taskwise_tasks WHERE user_id = $1 AND id = ANY($2)`,
		userID, taskIDs,
	)
	if err != nil {
		return 0, fmt.Errorf("taskwise/postgres: delete tasks: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// UpdateTask applies patch to every task of userID matching taskID. The
// matching rows are locked for the read-modify-write.
func (s *Store) UpdateTask(ctx context.Context, userID, taskID string, patch effects.TaskPatch) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("taskwise/postgres: update task: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT doc FROM taskwise_tasks
		WHERE user_id = $1 AND (id = $2 OR $2 = ANY(alias_ids))
		FOR UPDATE`,
		userID, taskID,
	)
	if err != nil {
		return false, fmt.Errorf("taskwise/postgres: update task: %w", err)
	}
	docs, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return false, fmt.Errorf("taskwise/postgres: update task: %w", err)
	}
	if len(docs) == 0 {
		return false, taskwise.ErrTaskNotFound
	}

	changed := false
	for _, doc := range docs {
		t, err := decodeTask(doc)
		if err != nil {
			return false, err
		}
		if !patch.Apply(t) {
			continue
		}
		changed = true
		t.UpdatedAt = time.Now().UTC()
		updated, err := json.Marshal(t)
		if err != nil {
			return false, fmt.Errorf("taskwise/postgres: encode task: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE taskwise_tasks SET doc = $2, updated_at = $3 WHERE id = $1`,
			t.ID, updated, t.UpdatedAt,
		); err != nil {
			return false, fmt.Errorf("taskwise/postgres: update task: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("taskwise/postgres: update task commit: %w", err)
	}
	return changed, nil
}

func decodeTask(doc []byte) (*effects.Task, error) {
	var t effects.Task
	if err := json.Unmarshal(doc, &t); err != nil {
		return nil, fmt.Errorf("taskwise/postgres: decode task: %w", err)
	}
	return &t, nil
}

// ── Board ────────────────────────────────────────────────────────

// ListBoardItems returns the placements of taskID.
func (s *Store) ListBoardItems(ctx context.Context, userID, taskID string) ([]*effects.BoardItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, workspace_id, task_id, status, created_at, updated_at
		FROM taskwise_board_items
		WHERE user_id = $1 AND task_id = $2
		ORDER BY created_at ASC`,
		userID, taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("taskwise/postgres: list board items: %w", err)
	}
	defer rows.Close()

	var items []*effects.BoardItem
	for rows.Next() {
		var it effects.BoardItem
		if err := rows.Scan(&it.ID, &it.UserID, &it.WorkspaceID, &it.TaskID, &it.Status,
			&it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, fmt.Errorf("taskwise/postgres: scan board item row: %w", err)
		}
		items = append(items, &it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("taskwise/postgres: iterate board item rows: %w", err)
	}
	return items, nil
}

// UpdateBoardItemStatus moves a placement to status.
func (s *Store) UpdateBoardItemStatus(ctx context.Context, userID, itemID, status string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE taskwise_board_items SET status = $3, updated_at = NOW() WHERE id = $1 AND user_id = $2`,
		itemID, userID, status,
	)
	if err != nil {
		return fmt.Errorf("taskwise/postgres: update board item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return taskwise.ErrInvalidState
	}
	return nil
}

// EnsureBoardItem inserts item unless its task already has a placement
// in the workspace.
func (s *Store) EnsureBoardItem(ctx context.Context, item *effects.BoardItem) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO taskwise_board_items (id, user_id, workspace_id, task_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, workspace_id, task_id) DO NOTHING`,
		item.ID, item.UserID, item.WorkspaceID, item.TaskID, item.Status, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("taskwise/postgres: ensure board item: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
