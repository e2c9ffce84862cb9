package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/cuemby/mantle/pkg/types"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGroups struct {
	groups []types.Group
	err    error
	calls  int
}

func (f *fakeGroups) ListGroups(ctx context.Context) ([]types.Group, error) {
	f.calls++
	return f.groups, f.err
}

func signedToken(t *testing.T, roles []string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"preferred_username": "jdoe",
		"realm_access":       map[string]any{"roles": roles},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestResolveFromRolesReturnsFilteredGroups(t *testing.T) {
	lister := &fakeGroups{}
	r := NewResolver(DefaultFilters(), lister)

	groups, err := r.ResolveFromRoles(context.Background(), []string{"zinal", "Compute", "offline_access", "zinal", "eiger"})
	require.NoError(t, err)

	assert.Equal(t, []string{"eiger", "zinal"}, groups)
	assert.Equal(t, 0, lister.calls, "fallback must not run when groups remain")
}

func TestResolveFromRolesFallsBackToAllGroups(t *testing.T) {
	lister := &fakeGroups{groups: []types.Group{
		{Label: "zinal"}, {Label: "alps"}, {Label: "eiger"}, {Label: "zinal"}, {Label: ""},
	}}
	r := NewResolver(DefaultFilters(), lister)

	groups, err := r.ResolveFromRoles(context.Background(), []string{"pa_admin", "offline_access", "alps"})
	require.NoError(t, err)

	assert.Equal(t, []string{"alps", "eiger", "zinal"}, groups)
	assert.Equal(t, 1, lister.calls)
}

func TestResolveFromRolesPropagatesFallbackError(t *testing.T) {
	boom := errors.New("inventory unavailable")
	r := NewResolver(DefaultFilters(), &fakeGroups{err: boom})

	groups, err := r.ResolveFromRoles(context.Background(), nil)
	assert.Nil(t, groups)
	assert.ErrorIs(t, err, boom)
}

func TestResolveAuthorizedGroupsFromToken(t *testing.T) {
	r := NewResolver(DefaultFilters(), &fakeGroups{})

	groups, err := r.ResolveAuthorizedGroups(context.Background(), "Bearer "+signedToken(t, []string{"psi", "uma_authorization"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"psi"}, groups)
}

func TestParseToken(t *testing.T) {
	id, err := ParseToken(signedToken(t, []string{"a", "b"}))
	require.NoError(t, err)
	assert.Equal(t, "jdoe", id.Username)
	assert.Equal(t, []string{"a", "b"}, id.Roles)

	_, err = ParseToken("  ")
	assert.ErrorIs(t, err, ErrNoToken)

	_, err = ParseToken("not-a-jwt")
	assert.Error(t, err)
}
