package manager

import (
	"context"
	"fmt"

	"github.com/cuemby/mantle/pkg/bulk"
	"github.com/cuemby/mantle/pkg/types"
)

// SetDesiredConfiguration assigns configuration to every target node and
// re-enables it with a clean error count. Any failed batch fails the call;
// the components patched by the other batches are still returned.
func (m *Manager) SetDesiredConfiguration(ctx context.Context, groups, nodes []string, configuration string) ([]types.Component, error) {
	if configuration == "" {
		return nil, fmt.Errorf("configuration name is required")
	}
	targets, err := m.targets(ctx, groups, nodes)
	if err != nil {
		return nil, err
	}

	enabled := true
	patch := make([]types.Component, 0, len(targets))
	for _, id := range targets {
		patch = append(patch, types.Component{ID: id, DesiredConfig: configuration, ErrorCount: 0, Enabled: &enabled})
	}

	outcome := bulk.Execute(ctx, m.bulkOptions("desired-config", m.opts.ComponentBatchSize), patch, m.svc.PatchComponents)
	publishFailures(m, "desired-config", outcome)

	m.logger.Info().
		Str("configuration", configuration).
		Int("nodes", len(targets)).
		Int("failed_batches", len(outcome.Failures)).
		Msg("Desired configuration set")
	return bulk.Flatten(outcome.Results), outcome.Err()
}

// StopRetries makes the automation batcher give up on the target nodes by
// raising their error count to the retry policy. Nodes that already
// exhausted their retries are left alone.
func (m *Manager) StopRetries(ctx context.Context, groups, nodes []string) ([]types.Component, error) {
	targets, err := m.targets(ctx, groups, nodes)
	if err != nil {
		return nil, err
	}

	read := bulk.Execute(ctx, m.bulkOptions("components", m.opts.ComponentBatchSize), targets, m.svc.GetComponents)
	publishFailures(m, "components", read)
	if err := read.Err(); err != nil {
		return nil, fmt.Errorf("failed to read components: %w", err)
	}

	var patch []types.Component
	for _, c := range bulk.Flatten(read.Results) {
		if c.RetriesExhausted() || c.RetryPolicy <= 0 {
			continue
		}
		patch = append(patch, types.Component{ID: c.ID, ErrorCount: c.RetryPolicy, RetryPolicy: c.RetryPolicy})
	}
	if len(patch) == 0 {
		return []types.Component{}, nil
	}

	write := bulk.Execute(ctx, m.bulkOptions("stop-retries", m.opts.ComponentBatchSize), patch, m.svc.PatchComponents)
	publishFailures(m, "stop-retries", write)
	return bulk.Flatten(write.Results), write.Err()
}
