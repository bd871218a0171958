// Package auth provides the credential primitives of the service: password
// hashing, signed tokens, OAuth provider adapters and the request-time guard.
//
// TOKEN TYPES:
// Every token carries a "type" claim and is only accepted where that type is
// expected:
//
//	access               short-lived bearer credential for API calls
//	refresh              long-lived credential exchanged for a new pair
//	<provider>_oauth_state
//	                     round-trips through one provider's authorize page and
//	                     carries the redirect target plus a random nonce
//
// Tokens are stateless: validity is signature + issuer + expiry + type, with
// no server-side lookup and no revocation list.
//
// JWT STRUCTURE (three base64url parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header:    {"alg":"HS256","typ":"JWT"}
//	- Payload:   {"sub":"<user id>","type":"access","tenant_id":"...","roles":[...],"exp":...}
//	- Signature: HMAC(header+"."+payload, secret)
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/xid"

	"github.com/sakif/mlvision/internal/apperror"
	"github.com/sakif/mlvision/internal/model"
)

// TokenType discriminates what a token may be used for.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// StateTokenType returns the provider-scoped type tag of an OAuth state
// token, e.g. "google_oauth_state". A state minted for one provider never
// decodes as another's.
func StateTokenType(p model.Provider) TokenType {
	return TokenType(string(p) + "_oauth_state")
}

// MinSecretLength is the shortest accepted HMAC secret.
const MinSecretLength = 16

// Claims is the token payload.
type Claims struct {
	Type        TokenType `json:"type"`
	TenantID    string    `json:"tenant_id,omitempty"`
	Roles       []string  `json:"roles,omitempty"`
	Permissions []string  `json:"permissions,omitempty"`
	RedirectTo  string    `json:"redirect_to,omitempty"`
	Nonce       string    `json:"nonce,omitempty"`
	jwt.RegisteredClaims
}

// ClaimsFor builds access or refresh claims for an authenticated user.
func ClaimsFor(u model.AuthUser, typ TokenType) Claims {
	return Claims{
		Type:        typ,
		TenantID:    u.TenantID,
		Roles:       append([]string{}, u.Roles...),
		Permissions: append([]string{}, u.Permissions...),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: u.ID,
		},
	}
}

// AuthUser rebuilds the request identity from verified claims.
func (c *Claims) AuthUser() model.AuthUser {
	return model.AuthUser{
		ID:          c.Subject,
		TenantID:    c.TenantID,
		Roles:       append([]string{}, c.Roles...),
		Permissions: append([]string{}, c.Permissions...),
	}
}

// TokenConfig configures a TokenService.
type TokenConfig struct {
	Secret    string
	Algorithm string // HS256, HS384 or HS512
	Issuer    string
	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

// TokenService signs and verifies tokens with a shared HMAC secret.
// It holds only immutable configuration and is safe for concurrent use.
type TokenService struct {
	secret []byte
	method *jwt.SigningMethodHMAC
	issuer string
	now    func() time.Time
}

// NewTokenService validates cfg and returns a TokenService.
func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, fmt.Errorf("auth: JWT secret must be at least %d characters", MinSecretLength)
	}

	var method *jwt.SigningMethodHMAC
	switch cfg.Algorithm {
	case "", "HS256":
		method = jwt.SigningMethodHS256
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("auth: unsupported JWT algorithm %q", cfg.Algorithm)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &TokenService{
		secret: []byte(cfg.Secret),
		method: method,
		issuer: cfg.Issuer,
		now:    now,
	}, nil
}

// Encode stamps c with issuer, issued-at, expiry (now+ttl) and a unique ID,
// then signs it. A negative ttl yields an already-expired token.
func (s *TokenService) Encode(c Claims, ttl time.Duration) (string, error) {
	if c.Type == "" {
		return "", errors.New("auth: token type is required")
	}

	now := s.now()
	c.Issuer = s.issuer
	c.IssuedAt = jwt.NewNumericDate(now)
	c.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	c.ID = xid.New().String()

	signed, err := jwt.NewWithClaims(s.method, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Decode verifies a token and checks its type.
//
// Failures:
//   - apperror.ErrInvalidToken: bad signature, wrong algorithm, wrong issuer,
//     malformed, missing or past expiry (the jwt cause stays in the chain,
//     so errors.Is(err, jwt.ErrTokenExpired) distinguishes expiry)
//   - apperror.ErrWrongTokenType: valid token of another type
//
// Both are also apperror.ErrUnauthorized. Expiry is checked against the
// service clock with zero leeway.
func (s *TokenService) Decode(tokenStr string, expected TokenType) (*Claims, error) {
	if tokenStr == "" {
		return nil, apperror.New(apperror.ErrInvalidToken, "missing token")
	}

	var c Claims
	_, err := jwt.ParseWithClaims(
		tokenStr,
		&c,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
		jwt.WithLeeway(0),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperror.Wrap(apperror.ErrInvalidToken, "token expired", err)
		}
		return nil, apperror.Wrap(apperror.ErrInvalidToken, "invalid token", err)
	}

	if c.Type != expected {
		return nil, apperror.New(apperror.ErrWrongTokenType, "wrong token type")
	}

	if (expected == TokenTypeAccess || expected == TokenTypeRefresh) && c.Subject == "" {
		return nil, apperror.New(apperror.ErrInvalidToken, "token has no subject")
	}

	return &c, nil
}
