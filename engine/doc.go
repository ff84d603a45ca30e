// Package engine publishes domain events and dispatches them to an
// event.Handler with exactly-once-effective semantics.
//
// The engine sits above the job, event and worker packages: it owns a
// worker whose only handler routes domain-event.dispatch jobs back into
// Dispatch, and a kicker that nudges that worker after an async publish.
//
// # Dispatch Modes
//
// In sync mode Publish stores the event and dispatches it inline; the
// caller receives the real handler result or error. In async mode the
// event is stored queued, a dispatch job is enqueued, and the caller
// receives the event type's empty placeholder:
//
//	eng, err := engine.New(q, s, effects.New(s, s, s),
//	    engine.WithAsync(true),
//	    engine.WithRetention(30*24*time.Hour),
//	)
//	pub, err := eng.Publish(ctx, userID, event.TaskStatusChanged{
//	    TaskID: "t1",
//	    Status: "done",
//	})
//
// # Idempotence
//
// A handled event is never dispatched twice: Dispatch returns the cached
// result with status "already_handled". Concurrent dispatchers race on an
// atomic claim; the losers return without invoking the handler.
package engine
