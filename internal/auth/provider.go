package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/sakif/mlvision/internal/apperror"
	"github.com/sakif/mlvision/internal/model"
)

// maxUpstreamBody caps how much of a provider response we read.
const maxUpstreamBody = 1 << 20

// ProviderProfile is a provider's user normalized to what the identity store
// needs. It is transient: only ExternalID and Email are projected onto User.
type ProviderProfile struct {
	ExternalID    string
	Email         string
	EmailVerified bool
}

// ProviderAdapter is one OAuth provider's authorize/exchange/profile triad.
//
// Errors returned by ExchangeCode and FetchProfile are *apperror.AppError of
// kind ErrUpstreamExchangeFailed, ErrUpstreamProfileFailed or
// ErrMalformedUpstreamResponse. A timeout or connection failure is one of the
// first two; callers decide whether to retry.
type ProviderAdapter interface {
	Provider() model.Provider
	AuthorizationURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error)
	FetchProfile(ctx context.Context, token *oauth2.Token) (*ProviderProfile, error)
}

// ProviderConfig holds one provider's client credentials.
//
// AuthURL, TokenURL and APIBaseURL override the provider's public endpoints
// and are only set in tests.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	AuthURL    string
	TokenURL   string
	APIBaseURL string

	// HTTPClient carries the timeout and circuit breaker for all outbound
	// calls. Nil means a plain client with a 10s timeout.
	HTTPClient *http.Client
}

// Configured reports whether all client credentials are present.
func (c ProviderConfig) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RedirectURL != ""
}

func (c ProviderConfig) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

// oauthConfig builds the x/oauth2 config for c on top of the provider's
// default endpoint. Credentials always travel in the form body so the
// library never re-posts a single-use code with a second auth style.
func (c ProviderConfig) oauthConfig(endpoint oauth2.Endpoint, scopes []string) *oauth2.Config {
	if c.AuthURL != "" {
		endpoint.AuthURL = c.AuthURL
	}
	if c.TokenURL != "" {
		endpoint.TokenURL = c.TokenURL
	}
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURL,
		Scopes:       scopes,
		Endpoint:     endpoint,
	}
}

// exchangeCode trades an authorization code for provider tokens.
func exchangeCode(ctx context.Context, cfg *oauth2.Config, client *http.Client, p model.Provider, code string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, client)

	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		var urlErr *url.Error
		switch {
		case errors.As(err, &retrieveErr):
			return nil, apperror.Wrap(apperror.ErrUpstreamExchangeFailed,
				fmt.Sprintf("%s rejected the authorization code", p), err)
		case errors.As(err, &urlErr), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			return nil, apperror.Wrap(apperror.ErrUpstreamExchangeFailed,
				fmt.Sprintf("unable to reach %s token endpoint", p), err)
		default:
			return nil, apperror.Wrap(apperror.ErrMalformedUpstreamResponse,
				fmt.Sprintf("unexpected response from %s token endpoint", p), err)
		}
	}

	if tok.AccessToken == "" {
		return nil, apperror.New(apperror.ErrMalformedUpstreamResponse,
			fmt.Sprintf("%s token response has no access token", p))
	}
	return tok, nil
}

// getJSON performs an authenticated GET and decodes the body into dst.
func getJSON(ctx context.Context, client *http.Client, p model.Provider, endpoint string, tok *oauth2.Token, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return fmt.Errorf("auth: building %s request: %w", p, err)
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	req.Header.Set("Accept", "application/json")
	if p == model.ProviderGitHub {
		req.Header.Set("Accept", "application/vnd.github+json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return apperror.Wrap(apperror.ErrUpstreamProfileFailed,
			fmt.Sprintf("unable to reach %s profile endpoint", p), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxUpstreamBody))
		return apperror.Wrap(apperror.ErrUpstreamProfileFailed,
			fmt.Sprintf("failed to fetch %s profile", p),
			fmt.Errorf("%s returned status %d", endpoint, resp.StatusCode))
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxUpstreamBody)).Decode(dst); err != nil {
		return apperror.Wrap(apperror.ErrMalformedUpstreamResponse,
			fmt.Sprintf("unexpected %s profile payload", p), err)
	}
	return nil
}
