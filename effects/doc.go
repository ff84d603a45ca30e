// Package effects implements event.Handler: the side effects applied when
// a domain event is dispatched.
//
// Handlers work against small collaborator interfaces ([PersonStore],
// [TaskStore], [BoardStore] and an optional [WorkspaceResolver]) so any
// backend that can answer them can host the product data. Every
// operation is written to converge: applying the same event twice leaves
// the same records behind, which keeps failed-then-retried dispatches
// safe.
package effects
