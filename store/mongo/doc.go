// Package mongo implements store.Full on MongoDB using the official v2
// driver. Claims are single FindOneAndUpdate calls, so any number of
// processes can poll the same database.
//
// Terminal events and jobs expire through TTL indexes created by Migrate:
// events on expiresAt, jobs on finishedAt plus the configured job
// retention.
//
//	s, err := mongo.New(ctx, "mongodb://localhost:27017", "taskwise")
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//	if err := s.Migrate(ctx); err != nil {
//	    return err
//	}
//
// To share an existing client, use NewFromDatabase; the caller then owns
// the client lifecycle.
package mongo
