package auth

import (
	"context"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/sakif/mlvision/internal/apperror"
	"github.com/sakif/mlvision/internal/model"
)

const githubAPIBaseURL = "https://api.github.com"

// gitHubUser is the portion of GET /user we need.
// GitHub API docs: https://docs.github.com/en/rest/users/users#get-the-authenticated-user
type gitHubUser struct {
	ID    int64   `json:"id"`    // stable numeric ID
	Login string  `json:"login"` // username, may change
	Email *string `json:"email"` // public email, null when hidden
}

// gitHubEmail is one entry of GET /user/emails.
type gitHubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// GitHubProvider implements ProviderAdapter for GitHub.
//
// Scopes:
//   - "read:user"  — the public profile (ID, login)
//   - "user:email" — the email list, needed when the public email is hidden
type GitHubProvider struct {
	config  *oauth2.Config
	cfg     ProviderConfig
	apiBase string
}

// NewGitHubProvider creates a GitHubProvider.
//
// cfg.RedirectURL must match the "Authorization callback URL" of the OAuth
// App exactly, e.g. "http://localhost:8080/auth/github/callback".
func NewGitHubProvider(cfg ProviderConfig) *GitHubProvider {
	base := githubAPIBaseURL
	if cfg.APIBaseURL != "" {
		base = strings.TrimRight(cfg.APIBaseURL, "/")
	}
	return &GitHubProvider{
		config:  cfg.oauthConfig(github.Endpoint, []string{"read:user", "user:email"}),
		cfg:     cfg,
		apiBase: base,
	}
}

var _ ProviderAdapter = (*GitHubProvider)(nil)

func (p *GitHubProvider) Provider() model.Provider { return model.ProviderGitHub }

// AuthorizationURL returns GitHub's authorize URL; new GitHub accounts may be
// created from the consent page.
func (p *GitHubProvider) AuthorizationURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.SetAuthURLParam("allow_signup", "true"))
}

// ExchangeCode posts the code to GitHub's token endpoint.
func (p *GitHubProvider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	return exchangeCode(ctx, p.config, p.cfg.httpClient(), model.ProviderGitHub, code)
}

// FetchProfile reads /user and, when the public email is hidden, resolves one
// from /user/emails: the primary verified address, else any verified one.
// A public profile email is treated as verified. When no verified address
// exists the profile comes back with an empty Email and EmailVerified false.
func (p *GitHubProvider) FetchProfile(ctx context.Context, token *oauth2.Token) (*ProviderProfile, error) {
	client := p.cfg.httpClient()

	var user gitHubUser
	if err := getJSON(ctx, client, model.ProviderGitHub, p.apiBase+"/user", token, &user); err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, apperror.New(apperror.ErrMalformedUpstreamResponse, "GitHub returned a user without an ID")
	}

	profile := &ProviderProfile{ExternalID: strconv.FormatInt(user.ID, 10)}

	if user.Email != nil && *user.Email != "" {
		profile.Email = *user.Email
		profile.EmailVerified = true
		return profile, nil
	}

	var emails []gitHubEmail
	if err := getJSON(ctx, client, model.ProviderGitHub, p.apiBase+"/user/emails", token, &emails); err != nil {
		return nil, err
	}

	if email := pickGitHubEmail(emails); email != "" {
		profile.Email = email
		profile.EmailVerified = true
	}
	return profile, nil
}

// pickGitHubEmail prefers the primary verified address, then any verified
// one, else "".
func pickGitHubEmail(emails []gitHubEmail) string {
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email
		}
	}
	for _, e := range emails {
		if e.Verified {
			return e.Email
		}
	}
	return ""
}
