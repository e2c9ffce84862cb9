package manager

import (
	"context"

	"github.com/cuemby/mantle/pkg/bulk"
	"github.com/cuemby/mantle/pkg/health"
)

// Health checks every configured service concurrently. Checks that never
// started because ctx ended are reported as unhealthy after the others.
func (m *Manager) Health(ctx context.Context) []health.Result {
	outcome := bulk.Execute(ctx, m.bulkOptions("health", 1), m.opts.Checkers,
		func(ctx context.Context, batch []health.Checker) (health.Result, error) {
			return batch[0].Check(ctx), nil
		})

	results := outcome.Results
	for _, f := range outcome.Failures {
		results = append(results, health.Result{
			Service: m.opts.Checkers[f.Index].Service(),
			Message: f.Err.Error(),
		})
	}
	return results
}
