// Package event defines the persisted domain event, its status state
// machine, the closed set of event types with their typed payloads and
// results, the side-effect Handler contract, and the store contract used
// by the dispatch engine.
//
// # Event Lifecycle
//
//	queued ──claim──► processing ──► handled   (result cached, immutable)
//	                      │
//	                      └────────► failed ──claim──► processing …
//
// A processing event may be claimed again only when it carries no claim
// token (sync publish) or when its lease has expired. handled is final:
// every further dispatch returns the cached result.
//
// # Payloads
//
// [Payload] is a sealed sum type. Each variant maps to exactly one
// [Type] and one method on [Handler]; [Invoke] switches over the variants
// so a new event kind fails to compile until every handler supports it.
package event
