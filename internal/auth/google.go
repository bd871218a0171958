package auth

import (
	"context"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/sakif/mlvision/internal/apperror"
	"github.com/sakif/mlvision/internal/model"
)

const googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

// googleUserInfo is the OpenID Connect userinfo response.
type googleUserInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified *bool  `json:"email_verified"`
}

// GoogleProvider implements ProviderAdapter for Google sign-in.
type GoogleProvider struct {
	config      *oauth2.Config
	cfg         ProviderConfig
	userInfoURL string
}

// NewGoogleProvider requests "openid email profile" with offline access and
// the account chooser.
func NewGoogleProvider(cfg ProviderConfig) *GoogleProvider {
	userInfo := googleUserInfoURL
	if cfg.APIBaseURL != "" {
		userInfo = strings.TrimRight(cfg.APIBaseURL, "/") + "/v1/userinfo"
	}
	return &GoogleProvider{
		config:      cfg.oauthConfig(google.Endpoint, []string{"openid", "email", "profile"}),
		cfg:         cfg,
		userInfoURL: userInfo,
	}
}

var _ ProviderAdapter = (*GoogleProvider)(nil)

func (p *GoogleProvider) Provider() model.Provider { return model.ProviderGoogle }

// AuthorizationURL returns the consent page URL carrying state.
func (p *GoogleProvider) AuthorizationURL(state string) string {
	return p.config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
}

// ExchangeCode posts the code to Google's token endpoint.
func (p *GoogleProvider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	return exchangeCode(ctx, p.config, p.cfg.httpClient(), model.ProviderGoogle, code)
}

// FetchProfile reads the userinfo endpoint. A missing email_verified claim
// counts as verified; only an explicit false is rejected downstream.
func (p *GoogleProvider) FetchProfile(ctx context.Context, token *oauth2.Token) (*ProviderProfile, error) {
	var info googleUserInfo
	if err := getJSON(ctx, p.cfg.httpClient(), model.ProviderGoogle, p.userInfoURL, token, &info); err != nil {
		return nil, err
	}

	if info.Sub == "" || info.Email == "" {
		return nil, apperror.New(apperror.ErrMalformedUpstreamResponse, "unable to read Google profile")
	}

	return &ProviderProfile{
		ExternalID:    info.Sub,
		Email:         info.Email,
		EmailVerified: info.EmailVerified == nil || *info.EmailVerified,
	}, nil
}
