// Package cluster coordinates work that only one of many pollers should
// do per interval.
//
// Any number of worker processes may poll the same store. Backlog
// sampling, which issues four count queries, should run at most once per
// interval across all of them. A [Gate] grants that right:
//
//   - [LocalGate] rate-limits within one process
//   - [RedisGate] rate-limits across processes with SET NX PX
//
// A gate that fails open (returns an error) never blocks job processing;
// callers log the error and skip the sample.
package cluster
