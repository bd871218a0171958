package auth

import (
	"strings"

	"github.com/sakif/mlvision/internal/apperror"
	"github.com/sakif/mlvision/internal/model"
)

// Guard turns a bearer token into a request identity and checks it against
// the roles a route allows.
type Guard struct {
	tokens *TokenService
}

// NewGuard creates a Guard that accepts access tokens signed by tokens.
func NewGuard(tokens *TokenService) *Guard {
	return &Guard{tokens: tokens}
}

// Authenticate decodes an access token into an AuthUser.
//
// Every failure (missing, malformed, expired, or a refresh/state token
// presented as access) is in the apperror.ErrUnauthorized category.
func (g *Guard) Authenticate(bearer string) (model.AuthUser, error) {
	if bearer == "" {
		return model.AuthUser{}, apperror.Unauthorized("missing bearer token")
	}

	claims, err := g.tokens.Decode(bearer, TokenTypeAccess)
	if err != nil {
		return model.AuthUser{}, err
	}
	return claims.AuthUser(), nil
}

// Authorize requires a tenant claim and at least one of allowed in the
// user's role set. An empty allowed list admits nobody.
func Authorize(u model.AuthUser, allowed ...string) (model.AuthUser, error) {
	if !u.HasTenant() {
		return model.AuthUser{}, apperror.New(apperror.ErrTenantRequired, "Tenant required")
	}
	if !u.HasAnyRole(allowed...) {
		return model.AuthUser{}, apperror.New(apperror.ErrInsufficientRole, "Insufficient role")
	}
	return u, nil
}

// BearerToken extracts the credential from an Authorization header value.
// The scheme is matched case-insensitively.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
