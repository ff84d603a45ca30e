package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/trbojevicstefan/taskwise/store"
)

// Collection names.
const (
	colJobs       = "jobs"
	colEvents     = "domain_events"
	colPeople     = "people"
	colTasks      = "tasks"
	colBoardItems = "board_items"
	colMetrics    = "metrics"
)

// Default retention windows for TTL indexes.
const (
	DefaultJobRetention    = 30 * 24 * time.Hour
	DefaultMetricRetention = 90 * 24 * time.Hour
)

var _ store.Full = (*Store)(nil)

// Store is a MongoDB store.Full.
type Store struct {
	client          *mongod.Client
	db              *mongod.Database
	ownsClient      bool
	logger          *slog.Logger
	jobRetention    time.Duration
	metricRetention time.Duration
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithJobRetention sets how long finished jobs are kept. Zero disables
// job expiry.
func WithJobRetention(d time.Duration) Option {
	return func(s *Store) { s.jobRetention = d }
}

// WithMetricRetention sets how long metric records are kept. Zero
// disables metric expiry.
func WithMetricRetention(d time.Duration) Option {
	return func(s *Store) { s.metricRetention = d }
}

// New connects to uri and returns a Store over database. Close
// disconnects the client.
func New(ctx context.Context, uri, database string, opts ...Option) (*Store, error) {
	client, err := mongod.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("taskwise/mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("taskwise/mongo: ping: %w", err)
	}
	s := NewFromDatabase(client.Database(database), opts...)
	s.ownsClient = true
	return s, nil
}

// NewFromDatabase creates a Store over an existing database handle. The
// caller owns the client; Close never disconnects it.
func NewFromDatabase(db *mongod.Database, opts ...Option) *Store {
	s := &Store{
		client:          db.Client(),
		db:              db,
		logger:          slog.Default(),
		jobRetention:    DefaultJobRetention,
		metricRetention: DefaultMetricRetention,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Database returns the underlying database handle.
func (s *Store) Database() *mongod.Database { return s.db }

// Migrate creates indexes for all collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range s.migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("taskwise/mongo: migrate %s indexes: %w", col, err)
		}
	}
	s.logger.Debug("mongo indexes migrated", slog.String("database", s.db.Name()))
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("taskwise/mongo: ping: %w", err)
	}
	return nil
}

// Close disconnects the client when the Store created it.
func (s *Store) Close() error {
	if !s.ownsClient {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// ── helpers ──────────────────────────────────────────────────────

func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

// exists reports whether a document with _id exists in col.
func (s *Store) exists(ctx context.Context, col, docID string) (bool, error) {
	n, err := s.db.Collection(col).CountDocuments(ctx, bson.M{"_id": docID}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func ttlIndex(field string, after time.Duration) mongod.IndexModel {
	return mongod.IndexModel{
		Keys:    bson.D{{Key: field, Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(int32(after / time.Second)),
	}
}

func (s *Store) migrationIndexes() map[string][]mongod.IndexModel {
	idx := map[string][]mongod.IndexModel{
		colJobs: {
			// Claim order.
			{Keys: bson.D{
				{Key: "status", Value: 1},
				{Key: "runAt", Value: 1},
				{Key: "createdAt", Value: 1},
			}},
			// Lease reaper.
			{Keys: bson.D{
				{Key: "status", Value: 1},
				{Key: "leaseExpiresAt", Value: 1},
			}},
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
		colEvents: {
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
			ttlIndex("expiresAt", 0),
		},
		colPeople: {
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "email", Value: 1}}},
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "nameKey", Value: 1}}},
		},
		colTasks: {
			{
				Keys: bson.D{
					{Key: "userId", Value: 1},
					{Key: "sourceSessionType", Value: 1},
					{Key: "sourceSessionId", Value: 1},
					{Key: "sourceTaskId", Value: 1},
				},
				Options: options.Index().
					SetUnique(true).
					SetPartialFilterExpression(bson.M{"sourceTaskId": bson.M{"$exists": true}}),
			},
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "aliasIds", Value: 1}}},
		},
		colBoardItems: {
			{
				Keys: bson.D{
					{Key: "userId", Value: 1},
					{Key: "workspaceId", Value: 1},
					{Key: "taskId", Value: 1},
				},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "taskId", Value: 1}}},
		},
		colMetrics: {
			{Keys: bson.D{{Key: "kind", Value: 1}, {Key: "recordedAt", Value: -1}}},
		},
	}
	if s.jobRetention > 0 {
		idx[colJobs] = append(idx[colJobs], ttlIndex("finishedAt", s.jobRetention))
	} else {
		idx[colJobs] = append(idx[colJobs], mongod.IndexModel{Keys: bson.D{{Key: "finishedAt", Value: 1}}})
	}
	if s.metricRetention > 0 {
		idx[colMetrics] = append(idx[colMetrics], ttlIndex("recordedAt", s.metricRetention))
	}
	return idx
}
