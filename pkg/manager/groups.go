package manager

import (
	"context"
	"fmt"

	"github.com/cuemby/mantle/pkg/bulk"
	"github.com/cuemby/mantle/pkg/log"
	"github.com/cuemby/mantle/pkg/types"
)

// AddGroupMembers adds every node to the group, one call per node. Nodes
// already in the group are skipped.
func (m *Manager) AddGroupMembers(ctx context.Context, label string, nodes []string) ([]string, error) {
	group, err := m.svc.GetGroup(ctx, label)
	if err != nil {
		return nil, fmt.Errorf("failed to get group %s: %w", label, err)
	}

	var missing []string
	for _, n := range unique(nodes) {
		if !group.HasMember(n) {
			missing = append(missing, n)
		}
	}

	outcome := bulk.Execute(ctx, m.bulkOptions("group-add", 1), missing,
		func(ctx context.Context, batch []string) (string, error) {
			return batch[0], m.svc.AddGroupMember(ctx, label, batch[0])
		})
	publishFailures(m, "group-add", outcome)

	logger := log.WithGroup(label)
	logger.Info().
		Int("added", len(outcome.Results)).
		Int("already_members", len(unique(nodes))-len(missing)).
		Int("failed", len(outcome.Failures)).
		Msg("Group members added")
	return outcome.Results, outcome.Err()
}

// ListGroups returns every group visible to the credential
func (m *Manager) ListGroups(ctx context.Context) ([]types.Group, error) {
	return m.svc.ListGroups(ctx)
}
