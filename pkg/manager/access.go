package manager

import (
	"context"
	"fmt"
	"strings"

	"github.com/cuemby/mantle/pkg/auth"
	"github.com/cuemby/mantle/pkg/bulk"
)

// DeniedError lists requested groups the caller may not operate on. The
// core never returns it; the CLI builds it when it decides to abort.
type DeniedError struct {
	Groups []string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("not authorized for groups: %s", strings.Join(e.Groups, ", "))
}

// GroupMembers resolves groups to the union of their member xnames, in
// first-seen order. A group that cannot be fetched fails the call.
func (m *Manager) GroupMembers(ctx context.Context, groups []string) ([]string, error) {
	groups = unique(groups)
	outcome := bulk.Execute(ctx, m.bulkOptions("group-members", 1), groups,
		func(ctx context.Context, batch []string) ([]string, error) {
			g, err := m.svc.GetGroup(ctx, batch[0])
			if err != nil {
				return nil, err
			}
			return g.Members, nil
		})
	if err := outcome.Err(); err != nil {
		return nil, fmt.Errorf("failed to resolve group members: %w", err)
	}
	return unique(outcome.Results...), nil
}

// targets returns the explicit nodes followed by the members of groups
func (m *Manager) targets(ctx context.Context, groups, nodes []string) ([]string, error) {
	if len(groups) == 0 {
		return unique(nodes), nil
	}
	members, err := m.GroupMembers(ctx, groups)
	if err != nil {
		return nil, err
	}
	return unique(nodes, members), nil
}

// AuthorizedGroups resolves the caller credential into group names
func (m *Manager) AuthorizedGroups(ctx context.Context) ([]string, error) {
	return m.resolver.ResolveAuthorizedGroups(ctx, m.opts.Token)
}

// CheckAccess returns the requested groups the caller is not entitled to.
// An empty result means fully authorized.
func (m *Manager) CheckAccess(ctx context.Context, requested []string) ([]string, error) {
	roles, err := auth.RolesFromToken(m.opts.Token)
	if err != nil {
		return nil, err
	}
	denied := m.resolver.Filters().DeniedGroups(requested, roles)

	if len(denied) > 0 {
		m.logger.Debug().Strs("denied", denied).Msg("Access check found unauthorized groups")
	}
	return denied, nil
}
