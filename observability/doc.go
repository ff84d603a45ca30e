// Package observability records job, route and external-call metrics.
//
// Every sink implements [Recorder]. Sinks may fail; callers on the hot
// path wrap them in [Detached] so a broken sink never changes queue or
// dispatch behavior:
//
//	rec := observability.NewDetached(
//	    observability.Multi(otelRec, promRec, observability.NewStoreRecorder(store)),
//	    logger,
//	)
//
// Detached calls carry no ordering or completion guarantee relative to
// the caller. [Detached.Wait] blocks until in-flight recordings finish and
// exists for shutdown and tests.
package observability
