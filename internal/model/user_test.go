package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProvider(t *testing.T) {
	p, ok := ParseProvider("GitHub")
	require.True(t, ok)
	assert.Equal(t, ProviderGitHub, p)

	_, ok = ParseProvider("gitlab")
	assert.False(t, ok)
}

func TestStringList_ScanValue(t *testing.T) {
	var l StringList
	require.NoError(t, l.Scan("admin, member,,viewer"))
	assert.Equal(t, StringList{"admin", "member", "viewer"}, l)

	v, err := l.Value()
	require.NoError(t, err)
	assert.Equal(t, "admin,member,viewer", v)

	require.NoError(t, l.Scan(nil))
	assert.Empty(t, l)

	assert.Error(t, l.Scan(42))
}

func TestUser_ExternalID(t *testing.T) {
	u := &User{}
	assert.Equal(t, "", u.ExternalID(ProviderGoogle))

	u.SetExternalID(ProviderGoogle, "g1")
	u.SetExternalID(ProviderGitHub, "42")
	assert.Equal(t, "g1", u.ExternalID(ProviderGoogle))
	assert.Equal(t, "42", u.ExternalID(ProviderGitHub))
}

func TestUser_AuthUser(t *testing.T) {
	tenant := "t1"
	u := &User{ID: "u1", TenantID: &tenant, Roles: StringList{"admin"}, Permissions: StringList{"projects:write"}}

	a := u.AuthUser()
	assert.Equal(t, "u1", a.ID)
	assert.Equal(t, "t1", a.TenantID)
	assert.True(t, a.HasAnyRole("viewer", "admin"))
	assert.False(t, a.HasAnyRole("owner"))

	// Mutating the projection must not touch the record.
	a.Roles[0] = "owner"
	assert.Equal(t, "admin", u.Roles[0])
}

func TestAuthUser_NoTenant(t *testing.T) {
	assert.False(t, AuthUser{ID: "u1"}.HasTenant())
}

func TestIsKnownRole(t *testing.T) {
	for _, r := range []string{RoleViewer, RoleMember, RoleAdmin, RoleOwner} {
		assert.True(t, IsKnownRole(r), r)
	}
	assert.False(t, IsKnownRole("superuser"))
	assert.False(t, IsKnownRole(""))
}
