package taskwise

import (
	"errors"
	"time"
)

// Entity carries the timestamps shared by every persisted record.
type Entity struct {
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewEntity returns an Entity stamped with the current UTC time.
func NewEntity() Entity {
	now := time.Now().UTC()
	return Entity{CreatedAt: now, UpdatedAt: now}
}

// Failure is the serialized form of an error stored on a job or event
// record for diagnostics.
type Failure struct {
	Message string `json:"message"           bson:"message"`
	Stack   string `json:"stack,omitempty"   bson:"stack,omitempty"`
}

// stackTracer is implemented by errors that carry a captured stack, such
// as recovered handler panics.
type stackTracer interface {
	StackTrace() string
}

// NewFailure converts err into a Failure. The stack is filled when any
// error in the chain carries one.
func NewFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	f := &Failure{Message: err.Error()}
	var st stackTracer
	if errors.As(err, &st) {
		f.Stack = st.StackTrace()
	}
	return f
}
