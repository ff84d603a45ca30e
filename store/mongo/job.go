package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/trbojevicstefan/taskwise"
	"github.com/trbojevicstefan/taskwise/id"
	"github.com/trbojevicstefan/taskwise/job"
)

// InsertJob persists a new job.
func (s *Store) InsertJob(ctx context.Context, j *job.Job) error {
	_, err := s.db.Collection(colJobs).InsertOne(ctx, toJobModel(j))
	if err != nil {
		if mongod.IsDuplicateKeyError(err) {
			return taskwise.ErrJobAlreadyExists
		}
		return fmt.Errorf("taskwise/mongo: insert job: %w", err)
	}
	return nil
}

// ClaimJob atomically claims the queued job with the earliest runAt, then
// createdAt, among those with runAt <= now.
func (s *Store) ClaimJob(ctx context.Context, now time.Time, leaseUntil *time.Time) (*job.Job, error) {
	filter := bson.M{
		"status": string(job.StatusQueued),
		"runAt":  bson.M{"$lte": now},
	}
	update := bson.M{
		"$set": bson.M{
			"status":         string(job.StatusRunning),
			"startedAt":      now,
			"leaseExpiresAt": leaseUntil,
			"updatedAt":      now,
		},
		"$inc": bson.M{"attempts": 1},
	}
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetSort(bson.D{
			{Key: "runAt", Value: 1},
			{Key: "createdAt", Value: 1},
			{Key: "_id", Value: 1},
		})

	var m jobModel
	err := s.db.Collection(colJobs).FindOneAndUpdate(ctx, filter, update, opts).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("taskwise/mongo: claim job: %w", err)
	}
	return fromJobModel(&m)
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	var m jobModel
	err := s.db.Collection(colJobs).FindOne(ctx, bson.M{"_id": jobID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, taskwise.ErrJobNotFound
		}
		return nil, fmt.Errorf("taskwise/mongo: get job: %w", err)
	}
	return fromJobModel(&m)
}

// TransitionJob applies a guarded status change in one conditional
// update.
func (s *Store) TransitionJob(ctx context.Context, jobID id.JobID, tr job.Transition) error {
	if !tr.From.CanTransition(tr.To) {
		return taskwise.ErrInvalidState
	}

	filter := bson.M{"_id": jobID.String(), "status": string(tr.From)}
	if tr.ExpectAttempts != 0 {
		filter["attempts"] = tr.ExpectAttempts
	}
	if tr.LeaseExpiredBy != nil {
		filter["leaseExpiresAt"] = bson.M{"$ne": nil, "$lte": *tr.LeaseExpiredBy}
	}

	set := bson.M{
		"status":         string(tr.To),
		"updatedAt":      tr.At,
		"leaseExpiresAt": nil,
	}
	if tr.RunAt != nil {
		set["runAt"] = *tr.RunAt
	}
	if tr.FinishedAt != nil {
		set["finishedAt"] = *tr.FinishedAt
	}
	if tr.Result != nil {
		set["result"] = []byte(tr.Result)
	}
	update := bson.M{"$set": set}
	if tr.Error != nil {
		set["error"] = toFailureModel(tr.Error)
	} else if tr.ClearError {
		update["$unset"] = bson.M{"error": ""}
	}

	res, err := s.db.Collection(colJobs).UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("taskwise/mongo: transition job: %w", err)
	}
	if res.MatchedCount == 0 {
		ok, err := s.exists(ctx, colJobs, jobID.String())
		if err != nil {
			return fmt.Errorf("taskwise/mongo: transition job: %w", err)
		}
		if !ok {
			return taskwise.ErrJobNotFound
		}
		return taskwise.ErrInvalidState
	}
	return nil
}

// CountJobs returns the number of jobs matching opts.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	filter := bson.M{}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}
	runAt := bson.M{}
	if opts.RunAtAtOrBefore != nil {
		runAt["$lte"] = *opts.RunAtAtOrBefore
	}
	if opts.RunAtAfter != nil {
		runAt["$gt"] = *opts.RunAtAfter
	}
	if len(runAt) > 0 {
		filter["runAt"] = runAt
	}
	if opts.FinishedSince != nil {
		filter["finishedAt"] = bson.M{"$gte": *opts.FinishedSince}
	}

	n, err := s.db.Collection(colJobs).CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("taskwise/mongo: count jobs: %w", err)
	}
	return n, nil
}

// ListJobs returns jobs matching opts ordered by createdAt.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	filter := bson.M{}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}
	if opts.LeaseExpiredBy != nil {
		filter["leaseExpiresAt"] = bson.M{"$ne": nil, "$lte": *opts.LeaseExpiredBy}
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}

	cursor, err := s.db.Collection(colJobs).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("taskwise/mongo: list jobs: %w", err)
	}
	defer cursor.Close(ctx)

	var models []jobModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("taskwise/mongo: list jobs decode: %w", err)
	}

	jobs := make([]*job.Job, 0, len(models))
	for i := range models {
		j, err := fromJobModel(&models[i])
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}
