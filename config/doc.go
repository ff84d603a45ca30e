// Package config loads process configuration for the taskwise worker.
//
// Values come from defaults, an optional YAML file and TASKWISE_*
// environment variables, in increasing precedence. Nested keys map to
// environment names by replacing dots with underscores, so
// worker.poll_interval is read from TASKWISE_WORKER_POLL_INTERVAL.
package config
