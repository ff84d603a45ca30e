package middleware

import (
	"context"

	"github.com/trbojevicstefan/taskwise"
	"github.com/trbojevicstefan/taskwise/job"
)

func withCorrelation(ctx context.Context, j *job.Job) context.Context {
	if taskwise.CorrelationID(ctx) != "" {
		return ctx
	}
	return taskwise.WithCorrelationID(ctx, j.CorrelationID)
}
