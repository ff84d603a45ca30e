// Package api serves the operator HTTP interface of a taskwise worker.
//
// Routes:
//
//	GET  /v1/queue/snapshot
//	GET  /v1/jobs/{jobID}
//	GET  /v1/events/{eventID}
//	POST /v1/events/{eventID}/dispatch
//	GET  /healthz
//	GET  /metrics
//
// An X-User-ID header scopes job and event lookups to that user; records
// of other users are reported as not found.
package api
