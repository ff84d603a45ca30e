// Package middleware provides composable middleware for job execution.
//
// A [Middleware] is a function that wraps a job handler. Middleware are
// composed into a chain using [Chain] and applied before each job executes.
// They are applied right-to-left: the first middleware in the slice is the
// outermost wrapper.
//
//	// correlation → logging → recover → handler
//	chain := middleware.Chain(
//	    middleware.Correlation(),
//	    middleware.Logging(logger),
//	    middleware.Recover(logger),
//	)
//
// # Built-in Middleware
//
//   - [Correlation] puts the job's correlation ID on the context
//   - [Logging] logs job type, attempt, duration and outcome
//   - [Recover] turns handler panics into a [*PanicError] carrying the stack
//   - [Timeout] cancels the handler context after a fixed duration
//   - [Tracing] wraps execution in an OpenTelemetry span
//
// Middleware MUST call next to continue the chain unless intentionally
// short-circuiting.
package middleware
