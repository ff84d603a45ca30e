package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/trbojevicstefan/taskwise"
	"github.com/trbojevicstefan/taskwise/effects"
)

// ── People ───────────────────────────────────────────────────────

// FindPersonByEmail returns the person of userID with email, or nil.
func (s *Store) FindPersonByEmail(ctx context.Context, userID, email string) (*effects.Person, error) {
	return s.findPerson(ctx, bson.M{"userId": userID, "email": effects.NormalizeEmail(email)})
}

// FindPersonByNameKey returns the person of userID with nameKey, or nil.
func (s *Store) FindPersonByNameKey(ctx context.Context, userID, nameKey string) (*effects.Person, error) {
	return s.findPerson(ctx, bson.M{"userId": userID, "nameKey": nameKey})
}

func (s *Store) findPerson(ctx context.Context, filter bson.M) (*effects.Person, error) {
	var m personModel
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	if err := s.db.Collection(colPeople).FindOne(ctx, filter, opts).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("taskwise/mongo: find person: %w", err)
	}
	return m.person(), nil
}

// InsertPerson persists a new person.
func (s *Store) InsertPerson(ctx context.Context, p *effects.Person) error {
	if _, err := s.db.Collection(colPeople).InsertOne(ctx, toPersonModel(p)); err != nil {
		return fmt.Errorf("taskwise/mongo: insert person: %w", err)
	}
	return nil
}

// UpdatePerson replaces an existing person.
func (s *Store) UpdatePerson(ctx context.Context, p *effects.Person) error {
	res, err := s.db.Collection(colPeople).ReplaceOne(ctx,
		bson.M{"_id": p.ID, "userId": p.UserID}, toPersonModel(p))
	if err != nil {
		return fmt.Errorf("taskwise/mongo: update person: %w", err)
	}
	if res.MatchedCount == 0 {
		return taskwise.ErrInvalidState
	}
	return nil
}

// ── Tasks ────────────────────────────────────────────────────────

func taskIDFilter(userID, taskID string) bson.M {
	return bson.M{
		"userId": userID,
		"$or":    bson.A{bson.M{"_id": taskID}, bson.M{"aliasIds": taskID}},
	}
}

func (s *Store) findTasks(ctx context.Context, filter bson.M) ([]*effects.Task, error) {
	cursor, err := s.db.Collection(colTasks).Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("taskwise/mongo: find tasks: %w", err)
	}
	defer cursor.Close(ctx)

	var models []taskModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("taskwise/mongo: find tasks decode: %w", err)
	}
	tasks := make([]*effects.Task, len(models))
	for i := range models {
		tasks[i] = models[i].task()
	}
	return tasks, nil
}

// FindTasks returns the tasks of userID matching taskID within session.
func (s *Store) FindTasks(ctx context.Context, userID, taskID string, session effects.SessionRef) ([]*effects.Task, error) {
	filter := taskIDFilter(userID, taskID)
	if session.Type != "" {
		filter["sourceSessionType"] = session.Type
	}
	if session.ID != "" {
		filter["sourceSessionId"] = session.ID
	}
	return s.findTasks(ctx, filter)
}

// ListSessionTasks returns the tasks synchronized from session.
func (s *Store) ListSessionTasks(ctx context.Context, userID string, session effects.SessionRef) ([]*effects.Task, error) {
	return s.findTasks(ctx, bson.M{
		"userId":            userID,
		"sourceSessionType": session.Type,
		"sourceSessionId":   session.ID,
	})
}

// UpsertSessionTask inserts or replaces a session task keyed by its
// source identity. An existing record keeps its ID and createdAt.
func (s *Store) UpsertSessionTask(ctx context.Context, t *effects.Task) (*effects.Task, error) {
	m := toTaskModel(t)
	filter := bson.M{
		"userId":            m.UserID,
		"sourceSessionType": m.SourceSessionType,
		"sourceSessionId":   m.SourceSessionID,
		"sourceTaskId":      m.SourceTaskID,
	}

	set, err := toSetDocument(m, "_id", "createdAt")
	if err != nil {
		return nil, fmt.Errorf("taskwise/mongo: upsert task: %w", err)
	}
	update := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"_id": m.ID, "createdAt": m.CreatedAt},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var stored taskModel
	if err := s.db.Collection(colTasks).FindOneAndUpdate(ctx, filter, update, opts).Decode(&stored); err != nil {
		return nil, fmt.Errorf("taskwise/mongo: upsert task: %w", err)
	}
	return stored.task(), nil
}

// toSetDocument marshals v and drops the omitted keys, producing a $set
// document.
func toSetDocument(v any, omit ...string) (bson.M, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	for _, k := range omit {
		delete(doc, k)
	}
	return doc, nil
}

// DeleteTasks removes tasks by primary ID.
func (s *Store) DeleteTasks(ctx context.Context, userID string, taskIDs []string) (int, error) {
	if len(taskIDs) == 0 {
		return 0, nil
	}
	res, err := s.db.Collection(colTasks).DeleteMany(ctx, bson.M{"userId": userID, "_id": bson.M{"$in": taskIDs}})
	if err != nil {
		return 0, fmt.Errorf("taskwise/mongo: delete tasks: %w", err)
	}
	return int(res.DeletedCount), nil
}

// UpdateTask applies patch to every task of userID matching taskID.
func (s *Store) UpdateTask(ctx context.Context, userID, taskID string, patch effects.TaskPatch) (bool, error) {
	set := bson.M{}
	put := func(key string, v *string) {
		if v != nil {
			set[key] = *v
		}
	}
	put("title", patch.Title)
	put("description", patch.Description)
	put("priority", patch.Priority)
	put("assigneeName", patch.AssigneeName)
	put("assigneeNameKey", patch.AssigneeNameKey)
	put("status", patch.Status)
	if patch.DueAt != nil {
		set["dueAt"] = *patch.DueAt
	}
	if patch.Assignee != nil {
		set["assignee"] = toAssigneeModel(patch.Assignee)
	}
	if len(set) == 0 {
		return false, nil
	}

	res, err := s.db.Collection(colTasks).UpdateMany(ctx, taskIDFilter(userID, taskID), bson.M{"$set": set})
	if err != nil {
		return false, fmt.Errorf("taskwise/mongo: update task: %w", err)
	}
	if res.MatchedCount == 0 {
		return false, taskwise.ErrTaskNotFound
	}
	return res.ModifiedCount > 0, nil
}

// ── Board ────────────────────────────────────────────────────────

// ListBoardItems returns the placements of taskID.
func (s *Store) ListBoardItems(ctx context.Context, userID, taskID string) ([]*effects.BoardItem, error) {
	cursor, err := s.db.Collection(colBoardItems).Find(ctx, bson.M{"userId": userID, "taskId": taskID})
	if err != nil {
		return nil, fmt.Errorf("taskwise/mongo: list board items: %w", err)
	}
	defer cursor.Close(ctx)

	var models []boardItemModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("taskwise/mongo: list board items decode: %w", err)
	}
	items := make([]*effects.BoardItem, len(models))
	for i := range models {
		items[i] = models[i].item()
	}
	return items, nil
}

// UpdateBoardItemStatus moves a placement to status.
func (s *Store) UpdateBoardItemStatus(ctx context.Context, userID, itemID, status string) error {
	res, err := s.db.Collection(colBoardItems).UpdateOne(ctx,
		bson.M{"_id": itemID, "userId": userID},
		bson.M{"$set": bson.M{"status": status}, "$currentDate": bson.M{"updatedAt": true}},
	)
	if err != nil {
		return fmt.Errorf("taskwise/mongo: update board item: %w", err)
	}
	if res.MatchedCount == 0 {
		return taskwise.ErrInvalidState
	}
	return nil
}

// EnsureBoardItem inserts item unless its task already has a placement
// in the workspace.
func (s *Store) EnsureBoardItem(ctx context.Context, item *effects.BoardItem) (bool, error) {
	filter := bson.M{
		"userId":      item.UserID,
		"workspaceId": item.WorkspaceID,
		"taskId":      item.TaskID,
	}
	update := bson.M{"$setOnInsert": boardItemModel{
		ID:          item.ID,
		UserID:      item.UserID,
		WorkspaceID: item.WorkspaceID,
		TaskID:      item.TaskID,
		Status:      item.Status,
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
	}}

	res, err := s.db.Collection(colBoardItems).UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		if mongod.IsDuplicateKeyError(err) {
			// A concurrent ensure won the insert.
			return false, nil
		}
		return false, fmt.Errorf("taskwise/mongo: ensure board item: %w", err)
	}
	return res.UpsertedCount > 0, nil
}
