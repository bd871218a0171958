// Package service: authentication business logic.
//
// AuthService is the business logic layer for authentication. It sits between
// the HTTP handlers and the repository/auth utilities:
//
//	AuthHandler (HTTP) → AuthService (business rules) → UserRepository (DB)
//	                   ↘ TokenService (JWT), PasswordService, ProviderAdapter (OAuth)
//
// OAUTH FLOW (per provider):
//
//	AuthorizationURL ─► provider consent page ─► HandleCallback
//	                                               │
//	      state decode ─► code exchange ─► profile fetch ─► reconcile ─► tokens
//
// The only thing that survives the browser hop is the signed state token,
// which carries the redirect target and a nonce. Nothing is kept server-side.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sakif/mlvision/internal/apperror"
	"github.com/sakif/mlvision/internal/auth"
	"github.com/sakif/mlvision/internal/logger"
	"github.com/sakif/mlvision/internal/model"
	"github.com/sakif/mlvision/internal/repository"
)

// Password bounds, in bytes.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 128
)

// maxReconcileAttempts bounds how often a callback re-resolves the identity
// after the store reported a uniqueness race.
const maxReconcileAttempts = 3

var authOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "auth_outcomes_total",
	Help: "Authentication attempts by operation and outcome.",
}, []string{"operation", "outcome"})

var validate = validator.New(validator.WithRequiredStructEnabled())

// AuthConfig holds the token lifetimes and the frontend the OAuth flow
// redirects back to.
type AuthConfig struct {
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
	StateTTL    time.Duration
	FrontendURL string
}

// AuthService handles the authentication business logic.
//
// DEPENDENCIES (injected via NewAuthService):
//   - users      repository.UserRepository  → read/write user records
//   - tokens     *auth.TokenService         → sign/verify access, refresh and state tokens
//   - passwords  passwordHasher             → argon2id hashing, bcrypt legacy verify
//   - providers  auth.ProviderAdapter        → one per configured OAuth provider
//   - logger     *slog.Logger               → structured logging
//
// It keeps no mutable state and is safe for concurrent use.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords passwordHasher
	providers map[model.Provider]auth.ProviderAdapter
	cfg       AuthConfig
	frontend  *url.URL
	logger    *slog.Logger

	// dummyHash is verified against when there is no stored hash, so a
	// login for an unknown email costs as much as one with a wrong password.
	dummyHash string
}

// passwordHasher is the part of *auth.PasswordService the service uses.
type passwordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) bool
	NeedsRehash(hash string) bool
}

// NewAuthService creates an AuthService. Only the given providers are
// usable; requests for any other answer ProviderNotConfigured.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords passwordHasher,
	providers []auth.ProviderAdapter,
	cfg AuthConfig,
	logger *slog.Logger,
) (*AuthService, error) {
	frontend, err := url.Parse(strings.TrimRight(cfg.FrontendURL, "/"))
	if err != nil || frontend.Scheme == "" || frontend.Host == "" {
		return nil, fmt.Errorf("service/auth: frontend URL %q must be absolute", cfg.FrontendURL)
	}

	dummyHash, err := passwords.Hash("mlvision-login-timing-equalizer")
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing dummy password: %w", err)
	}

	byName := make(map[model.Provider]auth.ProviderAdapter, len(providers))
	for _, p := range providers {
		byName[p.Provider()] = p
	}

	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		providers: byName,
		cfg:       cfg,
		frontend:  frontend,
		logger:    logger,
		dummyHash: dummyHash,
	}, nil
}

// =========================================================================
// PASSWORD FLOW
// =========================================================================

// Register creates a password account and signs the user in.
func (s *AuthService) Register(ctx context.Context, email, password string) (*model.TokenPair, error) {
	email = strings.TrimSpace(email)
	if err := validateCredentials(email, password); err != nil {
		return nil, err
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		authOutcomes.WithLabelValues("register", "email_taken").Inc()
		return nil, apperror.New(apperror.ErrEmailAlreadyRegistered, "Email already registered")
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/auth: checking email: %w", err)
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{Email: email, PasswordHash: &hash, Active: true}
	if err := s.users.Create(ctx, user); err != nil {
		// Lost a race with a concurrent registration of the same address.
		if errors.Is(err, apperror.ErrConflict) {
			authOutcomes.WithLabelValues("register", "email_taken").Inc()
			return nil, apperror.Wrap(apperror.ErrEmailAlreadyRegistered, "Email already registered", err)
		}
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.log(ctx).InfoContext(ctx, "user registered", slog.String("user_id", user.ID))
	authOutcomes.WithLabelValues("register", "success").Inc()
	return s.issueTokens(user.AuthUser())
}

// Login verifies a password. Unknown email, an OAuth-only account, a wrong
// password and a disabled account all fail with the same InvalidCredentials.
func (s *AuthService) Login(ctx context.Context, email, password string) (*model.TokenPair, error) {
	invalid := apperror.New(apperror.ErrInvalidCredentials, "Invalid email or password")

	user, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.passwords.Verify(password, s.dummyHash)
			s.loginFailed(ctx, "unknown_email", "")
			return nil, invalid
		}
		return nil, fmt.Errorf("service/auth: looking up user: %w", err)
	}

	switch {
	case !user.HasPassword():
		s.passwords.Verify(password, s.dummyHash)
		s.loginFailed(ctx, "no_password", user.ID)
		return nil, invalid
	case !s.passwords.Verify(password, *user.PasswordHash):
		s.loginFailed(ctx, "wrong_password", user.ID)
		return nil, invalid
	case !user.Active:
		s.loginFailed(ctx, "disabled", user.ID)
		return nil, invalid
	}

	if s.passwords.NeedsRehash(*user.PasswordHash) {
		s.upgradeHash(ctx, user.ID, password)
	}

	authOutcomes.WithLabelValues("login", "success").Inc()
	return s.issueTokens(user.AuthUser())
}

// Refresh rotates a refresh token into a new pair. The user is read back
// from the store, so the new tokens carry the current tenant and roles and
// a deleted or disabled account can no longer refresh.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*model.TokenPair, error) {
	claims, err := s.tokens.Decode(refreshToken, auth.TokenTypeRefresh)
	if err != nil {
		authOutcomes.WithLabelValues("refresh", "rejected").Inc()
		return nil, err
	}

	user, err := s.users.GetByID(ctx, claims.Subject)
	switch {
	case errors.Is(err, apperror.ErrNotFound):
		s.refreshFailed(ctx, "unknown_user", claims.Subject)
		return nil, apperror.Wrap(apperror.ErrInvalidToken, "Refresh token no longer valid", err)
	case err != nil:
		return nil, fmt.Errorf("service/auth: loading user %s: %w", claims.Subject, err)
	case !user.Active:
		s.refreshFailed(ctx, "disabled", user.ID)
		return nil, apperror.New(apperror.ErrAccountDisabled, "Account is disabled")
	}

	authOutcomes.WithLabelValues("refresh", "success").Inc()
	return s.issueTokens(user.AuthUser())
}

// GetUserByID returns the stored record behind an authenticated identity.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, fmt.Errorf("service/auth: user ID must not be empty")
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}
	return user, nil
}

func (s *AuthService) loginFailed(ctx context.Context, reason, userID string) {
	authOutcomes.WithLabelValues("login", "rejected").Inc()
	s.log(ctx).WarnContext(ctx, "login rejected",
		slog.String("reason", reason),
		slog.String("user_id", userID),
	)
}

func (s *AuthService) refreshFailed(ctx context.Context, reason, userID string) {
	authOutcomes.WithLabelValues("refresh", "rejected").Inc()
	s.log(ctx).WarnContext(ctx, "refresh rejected",
		slog.String("reason", reason),
		slog.String("user_id", userID),
	)
}

// upgradeHash re-hashes a password stored with a legacy algorithm or
// outdated cost. Failure leaves the old hash in place.
func (s *AuthService) upgradeHash(ctx context.Context, userID, password string) {
	hash, err := s.passwords.Hash(password)
	if err == nil {
		err = s.users.UpdatePasswordHash(ctx, userID, hash)
	}
	if err != nil {
		s.log(ctx).WarnContext(ctx, "password rehash failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return
	}
	s.log(ctx).InfoContext(ctx, "password hash upgraded", slog.String("user_id", userID))
}

func (s *AuthService) issueTokens(user model.AuthUser) (*model.TokenPair, error) {
	access, err := s.tokens.Encode(auth.ClaimsFor(user, auth.TokenTypeAccess), s.cfg.AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing access token: %w", err)
	}
	refresh, err := s.tokens.Encode(auth.ClaimsFor(user, auth.TokenTypeRefresh), s.cfg.RefreshTTL)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing refresh token: %w", err)
	}

	return &model.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.cfg.AccessTTL / time.Second),
	}, nil
}

func validateCredentials(email, password string) error {
	if err := validate.Var(email, "required,email,max=254"); err != nil {
		return apperror.ValidationFailed("email", "A valid email address is required")
	}
	if len(password) < MinPasswordLength || len(password) > MaxPasswordLength {
		return apperror.ValidationFailed("password",
			fmt.Sprintf("Password must be between %d and %d bytes", MinPasswordLength, MaxPasswordLength))
	}
	return nil
}

// =========================================================================
// OAUTH FLOW
// =========================================================================

// CallbackParams are the query parameters a provider redirects back with.
type CallbackParams struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// AuthorizationURL resolves redirectTo against the frontend, signs it into
// a provider-scoped state token and returns the provider's consent URL.
func (s *AuthService) AuthorizationURL(ctx context.Context, provider model.Provider, redirectTo string) (string, error) {
	adapter, err := s.provider(provider)
	if err != nil {
		return "", err
	}

	target, err := s.resolveRedirect(provider, redirectTo)
	if err != nil {
		s.log(ctx).WarnContext(ctx, "redirect target rejected",
			slog.String("provider", provider.String()),
			slog.String("redirect_to", redirectTo),
		)
		return "", err
	}

	state, err := s.tokens.Encode(auth.Claims{
		Type:       auth.StateTokenType(provider),
		RedirectTo: target,
		Nonce:      uuid.NewString(),
	}, s.cfg.StateTTL)
	if err != nil {
		return "", fmt.Errorf("service/auth: issuing state token: %w", err)
	}

	return adapter.AuthorizationURL(state), nil
}

// HandleCallback completes the authorization-code flow and returns the
// frontend URL to redirect the browser to.
//
// Only a missing, forged, expired or wrong-provider state is returned as
// an error (InvalidOAuthState): without a trusted state there is no safe
// place to redirect to. Every later failure becomes a redirect whose
// fragment carries error, error_description and provider.
func (s *AuthService) HandleCallback(ctx context.Context, provider model.Provider, params CallbackParams) (string, error) {
	adapter, err := s.provider(provider)
	if err != nil {
		return "", err
	}

	target, err := s.decodeState(provider, params.State)
	if err != nil {
		authOutcomes.WithLabelValues("oauth_"+provider.String(), "invalid_state").Inc()
		s.log(ctx).WarnContext(ctx, "oauth state rejected",
			slog.String("provider", provider.String()),
			slog.String("error", err.Error()),
		)
		return "", err
	}

	fail := func(code, description string) (string, error) {
		authOutcomes.WithLabelValues("oauth_"+provider.String(), code).Inc()
		fragment := url.Values{"error": {code}, "provider": {provider.String()}}
		if description != "" {
			fragment.Set("error_description", description)
		}
		return withFragment(target, fragment), nil
	}

	if params.Error != "" {
		return fail(params.Error, params.ErrorDescription)
	}
	if params.Code == "" {
		return fail(callbackFailure(provider, apperror.New(apperror.ErrMissingAuthorizationCode, "Missing authorization code")))
	}

	user, err := s.authenticateWithProvider(ctx, adapter, params.Code)
	if err != nil {
		code, description := callbackFailure(provider, err)
		s.log(ctx).WarnContext(ctx, "oauth callback failed",
			slog.String("provider", provider.String()),
			slog.String("reason", code),
			slog.String("error", err.Error()),
		)
		return fail(code, description)
	}

	tokens, err := s.issueTokens(user.AuthUser())
	if err != nil {
		s.log(ctx).ErrorContext(ctx, "issuing tokens after oauth callback",
			slog.String("provider", provider.String()),
			slog.String("error", err.Error()),
		)
		return fail("server_error", "Unable to complete sign-in")
	}

	authOutcomes.WithLabelValues("oauth_"+provider.String(), "success").Inc()
	s.log(ctx).InfoContext(ctx, "user authenticated via oauth",
		slog.String("provider", provider.String()),
		slog.String("user_id", user.ID),
	)

	return withFragment(target, url.Values{
		"access_token":  {tokens.AccessToken},
		"refresh_token": {tokens.RefreshToken},
		"token_type":    {tokens.TokenType},
		"provider":      {provider.String()},
	}), nil
}

// authenticateWithProvider runs exchange → profile → reconcile.
func (s *AuthService) authenticateWithProvider(ctx context.Context, adapter auth.ProviderAdapter, code string) (*model.User, error) {
	token, err := adapter.ExchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}

	profile, err := adapter.FetchProfile(ctx, token)
	if err != nil {
		return nil, err
	}
	if profile.Email == "" || !profile.EmailVerified {
		return nil, apperror.New(apperror.ErrUnverifiedEmail,
			fmt.Sprintf("%s email must be verified", providerTitle(adapter.Provider())))
	}

	user, err := s.reconcile(ctx, adapter.Provider(), profile)
	if err != nil {
		return nil, err
	}
	if !user.Active {
		return nil, apperror.New(apperror.ErrAccountDisabled, "Account is disabled")
	}
	return user, nil
}

// reconcile maps a provider profile onto a local user:
//
//  1. a user already linked to this external ID
//  2. else the user with the same email, which gains the link
//  3. else a new user with no password
//
// Steps are check-then-act; the store's unique constraints catch the race
// and the whole resolution is retried.
func (s *AuthService) reconcile(ctx context.Context, provider model.Provider, profile *auth.ProviderProfile) (*model.User, error) {
	var lastErr error
	for attempt := 1; attempt <= maxReconcileAttempts; attempt++ {
		user, err := s.resolveIdentity(ctx, provider, profile)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, apperror.ErrConflict) || errors.Is(err, apperror.ErrAccountLinkConflict) {
			return nil, err
		}
		lastErr = err
		s.log(ctx).WarnContext(ctx, "identity reconciliation raced, retrying",
			slog.String("provider", provider.String()),
			slog.Int("attempt", attempt),
		)
	}
	return nil, fmt.Errorf("service/auth: reconciling identity: %w", lastErr)
}

func (s *AuthService) resolveIdentity(ctx context.Context, provider model.Provider, profile *auth.ProviderProfile) (*model.User, error) {
	user, err := s.users.GetByExternalID(ctx, provider, profile.ExternalID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/auth: looking up %s identity: %w", provider, err)
	}

	existing, err := s.users.GetByEmail(ctx, profile.Email)
	switch {
	case err == nil:
		linked, err := s.users.LinkExternalAccount(ctx, existing.ID, provider, profile.ExternalID)
		if err != nil {
			return nil, err
		}
		s.log(ctx).InfoContext(ctx, "provider linked to existing account",
			slog.String("provider", provider.String()),
			slog.String("user_id", linked.ID),
		)
		return linked, nil
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("service/auth: looking up email: %w", err)
	}

	created := &model.User{Email: profile.Email, Active: true}
	created.SetExternalID(provider, profile.ExternalID)
	if err := s.users.Create(ctx, created); err != nil {
		return nil, err
	}
	return created, nil
}

// callbackFailure maps an error from the exchange/profile/reconcile chain
// to the fragment error code shown to the frontend.
func callbackFailure(provider model.Provider, err error) (code, description string) {
	name := providerTitle(provider)
	switch {
	case errors.Is(err, apperror.ErrMissingAuthorizationCode):
		return "missing_code", fmt.Sprintf("%s did not return an authorization code", name)
	case errors.Is(err, apperror.ErrUpstreamExchangeFailed):
		return "exchange_failed", fmt.Sprintf("Failed to exchange %s authorization code", name)
	case errors.Is(err, apperror.ErrUpstreamProfileFailed):
		return "profile_failed", fmt.Sprintf("Failed to fetch %s profile", name)
	case errors.Is(err, apperror.ErrMalformedUpstreamResponse):
		return "profile_failed", fmt.Sprintf("Unexpected response from %s", name)
	case errors.Is(err, apperror.ErrUnverifiedEmail):
		return "unverified_email", fmt.Sprintf("%s email must be verified", name)
	case errors.Is(err, apperror.ErrAccountDisabled):
		return "account_disabled", "Account is disabled"
	case errors.Is(err, apperror.ErrAccountLinkConflict):
		return "account_link_conflict", fmt.Sprintf("This account is already linked to a different %s identity", name)
	default:
		return "server_error", "Unable to complete sign-in"
	}
}

func (s *AuthService) provider(p model.Provider) (auth.ProviderAdapter, error) {
	adapter, ok := s.providers[p]
	if !ok {
		return nil, apperror.New(apperror.ErrProviderNotConfigured,
			fmt.Sprintf("%s OAuth is not configured", providerTitle(p)))
	}
	return adapter, nil
}

// decodeState verifies a state token minted for provider and returns the
// redirect target it carries.
func (s *AuthService) decodeState(provider model.Provider, state string) (string, error) {
	if state == "" {
		return "", apperror.New(apperror.ErrInvalidOAuthState, "Missing OAuth state")
	}

	claims, err := s.tokens.Decode(state, auth.StateTokenType(provider))
	if err != nil {
		if errors.Is(err, apperror.ErrWrongTokenType) {
			return "", apperror.Wrap(apperror.ErrInvalidOAuthState, "Unexpected OAuth state", err)
		}
		return "", apperror.Wrap(apperror.ErrInvalidOAuthState, "Invalid OAuth state", err)
	}

	// Re-check the target: it was validated when signed, but the signing key
	// is shared with every other token type.
	if claims.RedirectTo == "" || !s.sameOrigin(claims.RedirectTo) {
		return "", apperror.New(apperror.ErrInvalidOAuthState, "Invalid redirect target")
	}
	return claims.RedirectTo, nil
}

// resolveRedirect applies the open-redirect guard. An empty target means
// the frontend's default callback page for provider; a path is joined to
// the frontend URL; an absolute URL must already point into the frontend.
func (s *AuthService) resolveRedirect(provider model.Provider, redirectTo string) (string, error) {
	target := strings.TrimSpace(redirectTo)
	if target == "" {
		target = "/auth/" + provider.String() + "/callback"
	}

	u, err := url.Parse(target)
	if err != nil {
		return "", apperror.New(apperror.ErrInvalidRedirectTarget, "Redirect target is not a valid URL")
	}

	if u.Scheme != "" || u.Host != "" {
		if !s.sameOrigin(target) {
			return "", apperror.New(apperror.ErrInvalidRedirectTarget,
				"Redirect target must point to the frontend origin")
		}
		return target, nil
	}

	// "//evil.example" and "/\evil.example" are host-relative in browsers.
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return "", apperror.New(apperror.ErrInvalidRedirectTarget, "Redirect target must be a path")
	}
	return s.frontend.String() + target, nil
}

// sameOrigin reports whether raw is an absolute URL on the frontend's
// scheme and host and under its base path.
func (s *AuthService) sameOrigin(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if !strings.EqualFold(u.Scheme, s.frontend.Scheme) || !strings.EqualFold(u.Host, s.frontend.Host) {
		return false
	}
	if u.User != nil {
		return false
	}
	base := s.frontend.Path
	return base == "" || u.Path == base || strings.HasPrefix(u.Path, base+"/")
}

// withFragment merges values into the URL fragment, keeping any existing
// fragment parameters that are not overwritten.
func withFragment(target string, values url.Values) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}

	merged, _ := url.ParseQuery(u.Fragment)
	if merged == nil {
		merged = url.Values{}
	}
	for k, v := range values {
		merged[k] = v
	}

	u.Fragment = ""
	u.RawFragment = ""
	return u.String() + "#" + merged.Encode()
}

func providerTitle(p model.Provider) string {
	switch p {
	case model.ProviderGoogle:
		return "Google"
	case model.ProviderGitHub:
		return "GitHub"
	default:
		return p.String()
	}
}

func (s *AuthService) log(ctx context.Context) *slog.Logger {
	return logger.FromContextOr(ctx, s.logger)
}
