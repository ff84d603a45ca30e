// Package taskwise provides the asynchronous job queue and idempotent
// domain-event dispatcher behind the taskwise meeting-notes pipeline.
//
// A write path (for example "a meeting was ingested") publishes a domain
// event. The engine either dispatches it immediately or persists it and
// enqueues a job that a polling worker picks up later. Delivery is
// at-least-once; effects are made idempotent by an atomic claim on the
// event record and a cached result once the event is handled.
//
// # Quick Start
//
//	s := memory.New()
//	q := job.NewQueue(s)
//	eng, err := engine.New(q, s, effects.New(s, s, s),
//	    engine.WithAsync(true),
//	)
//
//	pub, err := eng.Publish(ctx, userID, event.MeetingIngested{MeetingID: "m1"})
//
// # Architecture
//
// Each subsystem (job, event, effects, observability) defines its own
// store interface. Every backend (store/memory, store/mongo,
// store/postgres) implements all of them.
//
// All entity IDs are prefix-qualified TypeIDs ("job_…", "evt_…").
package taskwise
