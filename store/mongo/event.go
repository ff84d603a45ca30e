package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/trbojevicstefan/taskwise"
	"github.com/trbojevicstefan/taskwise/event"
	"github.com/trbojevicstefan/taskwise/id"
)

// InsertEvent persists a new domain event.
func (s *Store) InsertEvent(ctx context.Context, e *event.Event) error {
	_, err := s.db.Collection(colEvents).InsertOne(ctx, toEventModel(e))
	if err != nil {
		if mongod.IsDuplicateKeyError(err) {
			return taskwise.ErrEventAlreadyExists
		}
		return fmt.Errorf("taskwise/mongo: insert event: %w", err)
	}
	return nil
}

// GetEvent retrieves a domain event by ID.
func (s *Store) GetEvent(ctx context.Context, eventID id.EventID) (*event.Event, error) {
	var m eventModel
	err := s.db.Collection(colEvents).FindOne(ctx, bson.M{"_id": eventID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, taskwise.ErrEventNotFound
		}
		return nil, fmt.Errorf("taskwise/mongo: get event: %w", err)
	}
	return fromEventModel(&m)
}

// ClaimEvent moves a claimable event to processing in one
// FindOneAndUpdate. The filter mirrors event.Claimable.
func (s *Store) ClaimEvent(ctx context.Context, eventID id.EventID, c event.Claim) (*event.Event, error) {
	filter := bson.M{
		"_id": eventID.String(),
		"$or": bson.A{
			bson.M{"status": bson.M{"$in": bson.A{string(event.StatusQueued), string(event.StatusFailed)}}},
			bson.M{"status": string(event.StatusProcessing), "claimToken": bson.M{"$in": bson.A{nil, ""}}},
			bson.M{"status": string(event.StatusProcessing), "leaseExpiresAt": bson.M{"$ne": nil, "$lte": c.Now}},
		},
	}
	update := bson.M{
		"$set": bson.M{
			"status":         string(event.StatusProcessing),
			"claimToken":     c.Token,
			"claimedAt":      c.Now,
			"leaseExpiresAt": c.LeaseUntil,
			"updatedAt":      c.Now,
		},
		"$inc":   bson.M{"attempts": 1},
		"$unset": bson.M{"expiresAt": ""},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var m eventModel
	err := s.db.Collection(colEvents).FindOneAndUpdate(ctx, filter, update, opts).Decode(&m)
	if err != nil {
		if !isNoDocuments(err) {
			return nil, fmt.Errorf("taskwise/mongo: claim event: %w", err)
		}
		ok, err := s.exists(ctx, colEvents, eventID.String())
		if err != nil {
			return nil, fmt.Errorf("taskwise/mongo: claim event: %w", err)
		}
		if !ok {
			return nil, taskwise.ErrEventNotFound
		}
		return nil, nil
	}
	return fromEventModel(&m)
}

// FinalizeEvent records the terminal status of an event still held under
// f.Token.
func (s *Store) FinalizeEvent(ctx context.Context, eventID id.EventID, f event.Finalize) error {
	if !f.To.Terminal() || !event.StatusProcessing.CanTransition(f.To) {
		return taskwise.ErrInvalidState
	}

	filter := bson.M{
		"_id":        eventID.String(),
		"status":     string(event.StatusProcessing),
		"claimToken": f.Token,
	}
	set := bson.M{
		"status":         string(f.To),
		"updatedAt":      f.At,
		"leaseExpiresAt": nil,
		"expiresAt":      f.ExpiresAt,
	}
	update := bson.M{"$set": set}
	switch f.To {
	case event.StatusHandled:
		set["handledAt"] = f.At
		set["result"] = []byte(f.Result)
		update["$unset"] = bson.M{"error": ""}
	case event.StatusFailed:
		set["failedAt"] = f.At
		if f.Error != nil {
			set["error"] = toFailureModel(f.Error)
		}
	}

	res, err := s.db.Collection(colEvents).UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("taskwise/mongo: finalize event: %w", err)
	}
	if res.MatchedCount == 0 {
		ok, err := s.exists(ctx, colEvents, eventID.String())
		if err != nil {
			return fmt.Errorf("taskwise/mongo: finalize event: %w", err)
		}
		if !ok {
			return taskwise.ErrEventNotFound
		}
		return taskwise.ErrInvalidState
	}
	return nil
}
