// Package job defines the job entity, its status state machine, the
// closed set of job types, the store contract, and the Queue service that
// implements enqueue, claim, mark-succeeded, mark-failed-with-retry and
// queue-depth snapshots on top of any Store.
//
// # Job Entity
//
// A [Job] is a durable unit of deferred work with its own retry policy:
//
//	queued → running → succeeded
//	queued → running → queued → running → …   (retry with backoff)
//	queued → running → failed                  (attempts exhausted or permanent error)
//
// Fields of note:
//   - Attempts: incremented exactly once per claim
//   - MaxAttempts: total attempts allowed (default 2)
//   - RunAt: earliest time the job may be claimed
//   - LeaseExpiresAt: when a running job is considered abandoned
//
// # Claim
//
// [Store.ClaimJob] is the correctness-critical primitive: a single atomic
// conditional update that moves the most eligible queued job (RunAt, then
// CreatedAt) to running. Two concurrent callers can never both claim the
// same job.
//
// # Queue
//
//	q := job.NewQueue(store, job.WithBackoff(backoff.NewLinear(10*time.Second, 0)))
//	j, err := q.Enqueue(ctx, job.TypeDomainEventDispatch, userID, payload)
//	claimed, err := q.ClaimNext(ctx)
package job
