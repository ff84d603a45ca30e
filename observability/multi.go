package observability

import (
	"context"
	"errors"
)

type multi []Recorder

// Multi fans every metric out to all recorders. Every recorder is called
// even when an earlier one fails; the errors are joined.
func Multi(recorders ...Recorder) Recorder {
	out := make(multi, 0, len(recorders))
	for _, r := range recorders {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func (m multi) RecordJob(ctx context.Context, metric JobMetric) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.RecordJob(ctx, metric))
	}
	return errors.Join(errs...)
}

func (m multi) RecordRoute(ctx context.Context, metric RouteMetric) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.RecordRoute(ctx, metric))
	}
	return errors.Join(errs...)
}

func (m multi) RecordExternalCall(ctx context.Context, metric ExternalCallMetric) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.RecordExternalCall(ctx, metric))
	}
	return errors.Join(errs...)
}
