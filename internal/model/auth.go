package model

// AuthUser is the request-scoped identity rebuilt from a verified token on
// every request. It is never persisted.
type AuthUser struct {
	ID          string   `json:"id"`
	TenantID    string   `json:"tenantId,omitempty"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// HasTenant reports whether a tenant claim is present.
func (a AuthUser) HasTenant() bool {
	return a.TenantID != ""
}

// HasAnyRole reports whether the role set intersects allowed.
// Plain set intersection: no hierarchy between roles.
func (a AuthUser) HasAnyRole(allowed ...string) bool {
	for _, want := range allowed {
		for _, have := range a.Roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// TokenPair is the credential bundle returned by register, login, refresh and
// the OAuth callback.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"` // access token lifetime, seconds
}

// Tenant roles. Authorization checks list the roles they admit; there is no
// ordering between them.
const (
	RoleViewer = "viewer"
	RoleMember = "member"
	RoleAdmin  = "admin"
	RoleOwner  = "owner"
)

var (
	// ReadRoles may read tenant resources.
	ReadRoles = []string{RoleViewer, RoleMember, RoleAdmin, RoleOwner}
	// WriteRoles may create and change tenant resources.
	WriteRoles = []string{RoleMember, RoleAdmin, RoleOwner}
)

// IsKnownRole reports whether role is one of the tenant roles.
func IsKnownRole(role string) bool {
	for _, r := range ReadRoles {
		if r == role {
			return true
		}
	}
	return false
}
