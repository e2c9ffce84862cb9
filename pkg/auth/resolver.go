package auth

import (
	"context"
	"fmt"
	"sort"

	"github.com/cuemby/mantle/pkg/log"
	"github.com/cuemby/mantle/pkg/types"
	"github.com/rs/zerolog"
)

// GroupLister lists every group visible to the configured credential
type GroupLister interface {
	ListGroups(ctx context.Context) ([]types.Group, error)
}

// Resolver turns a credential into the set of group names it may operate on
type Resolver struct {
	filters Filters
	groups  GroupLister
	logger  zerolog.Logger
}

// NewResolver creates a resolver using the given filters and group source
func NewResolver(filters Filters, groups GroupLister) *Resolver {
	return &Resolver{
		filters: filters,
		groups:  groups,
		logger:  log.WithComponent("auth"),
	}
}

// Filters returns the filter lists in use
func (r *Resolver) Filters() Filters {
	return r.filters
}

// ResolveAuthorizedGroups extracts roles from token and resolves them
func (r *Resolver) ResolveAuthorizedGroups(ctx context.Context, token string) ([]string, error) {
	roles, err := RolesFromToken(token)
	if err != nil {
		return nil, err
	}
	return r.ResolveFromRoles(ctx, roles)
}

// ResolveFromRoles filters roles down to real groups. When nothing is left
// the credential is administrator scoped and every visible group is returned.
func (r *Resolver) ResolveFromRoles(ctx context.Context, roles []string) ([]string, error) {
	groups := r.filters.AuthorizedGroups(roles)
	if len(groups) > 0 {
		return groups, nil
	}

	r.logger.Debug().Msg("No group roles in credential, listing all groups")

	all, err := r.groups.ListGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}

	seen := make(map[string]struct{}, len(all))
	labels := []string{}
	for _, g := range all {
		if _, ok := seen[g.Label]; ok || g.Label == "" {
			continue
		}
		seen[g.Label] = struct{}{}
		labels = append(labels, g.Label)
	}
	sort.Strings(labels)
	return labels, nil
}
