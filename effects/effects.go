package effects

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/trbojevicstefan/taskwise/event"
	"github.com/trbojevicstefan/taskwise/observability"
)

var _ event.Handler = (*Handlers)(nil)

// Handlers applies domain event side effects.
type Handlers struct {
	people     PersonStore
	tasks      TaskStore
	board      BoardStore
	workspaces WorkspaceResolver
	recorder   observability.Recorder
	logger     *slog.Logger
	now        func() time.Time
	newID      func() string
}

// Option configures Handlers.
type Option func(*Handlers)

// WithWorkspaceResolver sets the fallback workspace lookup for meetings
// ingested without a workspace ID.
func WithWorkspaceResolver(r WorkspaceResolver) Option {
	return func(h *Handlers) { h.workspaces = r }
}

// WithRecorder records workspace resolver calls as external-call metrics.
func WithRecorder(r observability.Recorder) Option {
	return func(h *Handlers) { h.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handlers) { h.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(h *Handlers) { h.now = now }
}

// New creates Handlers over the given collaborator stores.
func New(people PersonStore, tasks TaskStore, board BoardStore, opts ...Option) *Handlers {
	h := &Handlers{
		people:   people,
		tasks:    tasks,
		board:    board,
		recorder: observability.Nop{},
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}
