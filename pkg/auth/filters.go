package auth

import (
	"sort"
	"strings"
)

// DefaultAdminRole is the role that bypasses every group check
const DefaultAdminRole = "pa_admin"

// Filters holds the role names that are not real groups. The zero value
// filters nothing; use DefaultFilters for the stock deployment conventions.
type Filters struct {
	// AdminRole bypasses all access checks
	AdminRole string

	// IgnoredRoles are identity-provider sentinels attached to every user
	IgnoredRoles []string

	// Roles and SubRoles are node taxonomy tokens published as roles
	Roles    []string
	SubRoles []string

	// SiteWideAliases are blanket grants that do not name a sub-cluster
	SiteWideAliases []string

	// FoldCase matches the lists above ignoring case. Off by default, so a
	// real group named "compute" is not mistaken for the Compute role.
	FoldCase bool
}

// DefaultFilters returns the filter lists used by a stock deployment
func DefaultFilters() Filters {
	return Filters{
		AdminRole:       DefaultAdminRole,
		IgnoredRoles:    []string{"offline_access", "uma_authorization", "default-roles-shasta"},
		Roles:           []string{"Compute", "Service", "System", "Application", "Storage", "Management"},
		SubRoles:        []string{"Worker", "Master", "Storage", "UAN", "Gateway", "LNETRouter", "Visualization", "UserDefined"},
		SiteWideAliases: []string{"alps", "prealps", "alpsm", "alpse"},
	}
}

// IsAdmin reports whether roles contain the admin role
func (f Filters) IsAdmin(roles []string) bool {
	if f.AdminRole == "" {
		return false
	}
	for _, r := range roles {
		if r == f.AdminRole {
			return true
		}
	}
	return false
}

// AuthorizedGroups strips sentinels, the admin role, taxonomy tokens and
// site-wide aliases from roles. The result is deduplicated and sorted.
func (f Filters) AuthorizedGroups(roles []string) []string {
	drop := f.taxonomy()
	f.add(drop, f.IgnoredRoles...)
	if f.AdminRole != "" {
		f.add(drop, f.AdminRole)
	}
	return f.keep(roles, drop)
}

// RequestedGroups strips taxonomy tokens and site-wide aliases from the
// groups an operation targets.
func (f Filters) RequestedGroups(groups []string) []string {
	return f.keep(groups, f.taxonomy())
}

// DeniedGroups returns the requested groups the caller is not entitled to.
// An empty result means fully authorized. The caller decides whether to abort.
func (f Filters) DeniedGroups(requested, authorizedRoles []string) []string {
	if f.IsAdmin(authorizedRoles) {
		return []string{}
	}

	allowed := make(map[string]struct{})
	for _, g := range f.AuthorizedGroups(authorizedRoles) {
		allowed[g] = struct{}{}
	}

	denied := []string{}
	for _, g := range f.RequestedGroups(requested) {
		if _, ok := allowed[g]; !ok {
			denied = append(denied, g)
		}
	}
	return denied
}

// DeniedGroups applies DefaultFilters
func DeniedGroups(requested, authorizedRoles []string) []string {
	return DefaultFilters().DeniedGroups(requested, authorizedRoles)
}

func (f Filters) taxonomy() map[string]struct{} {
	set := make(map[string]struct{})
	f.add(set, f.Roles...)
	f.add(set, f.SubRoles...)
	f.add(set, f.SiteWideAliases...)
	return set
}

func (f Filters) key(name string) string {
	if f.FoldCase {
		return strings.ToLower(name)
	}
	return name
}

func (f Filters) add(set map[string]struct{}, names ...string) {
	for _, n := range names {
		set[f.key(n)] = struct{}{}
	}
}

func (f Filters) keep(names []string, drop map[string]struct{}) []string {
	seen := make(map[string]struct{}, len(names))
	out := []string{}
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := drop[f.key(n)]; ok {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
