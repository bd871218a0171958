package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/mlvision/internal/apperror"
	"github.com/sakif/mlvision/internal/auth"
	"github.com/sakif/mlvision/internal/model"
	"github.com/sakif/mlvision/internal/service"
)

// AuthService is the slice of service.AuthService the HTTP layer calls.
type AuthService interface {
	Register(ctx context.Context, email, password string) (*model.TokenPair, error)
	Login(ctx context.Context, email, password string) (*model.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*model.TokenPair, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	AuthorizationURL(ctx context.Context, provider model.Provider, redirectTo string) (string, error)
	HandleCallback(ctx context.Context, provider model.Provider, params service.CallbackParams) (string, error)
}

var _ AuthService = (*service.AuthService)(nil)

// AuthHandler exposes password auth, token refresh and the OAuth redirect
// flow.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRegister / HandleLogin → credentials in, TokenPair out
//   - HandleRefresh                → refresh token in, new TokenPair out
//   - HandleMe                     → the caller's identity (RequireAuth)
//   - HandleAuthorizeURL           → consent URL as JSON, for SPAs
//   - HandleProviderLogin          → 302 to the consent page, for plain links
//   - HandleProviderCallback       → 302 back to the frontend with tokens
//     or an error in the URL fragment
//
// Tokens are only ever returned in JSON bodies or URL fragments. No cookies
// are set, so there is no ambient credential to forge requests with.
type AuthHandler struct {
	auth   AuthService
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(svc AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: svc, logger: logger}
}

type credentialsRequest struct {
	Email    string `json:"email"    validate:"required,max=254"`
	Password string `json:"password" validate:"required,max=128"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type authorizationURLResponse struct {
	AuthorizationURL string `json:"authorization_url"`
}

// meResponse is the token identity plus the stored profile fields a client
// needs to render an account page.
type meResponse struct {
	model.AuthUser
	Email     string   `json:"email"`
	Active    bool     `json:"active"`
	Providers []string `json:"providers"`
}

// HandleRegister creates a password account.
//
// HTTP: POST /api/v1/auth/register
// BODY: {"email": "...", "password": "..."}
// 201 → TokenPair, 409 email_already_registered, 400 validation_error
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, r, err)
		return
	}

	pair, err := h.auth.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, pair)
}

// HandleLogin verifies email and password.
//
// HTTP: POST /api/v1/auth/login
// 200 → TokenPair, 401 invalid_credentials
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, r, err)
		return
	}

	pair, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// HandleRefresh exchanges a refresh token for a new pair.
//
// HTTP: POST /api/v1/auth/refresh
// The token is read from ?refresh_token= when present, else from the body
// {"refresh_token": "..."}.
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("refresh_token")
	if token == "" {
		var req refreshRequest
		if err := decodeJSON(w, r, &req); err != nil {
			WriteError(w, r, err)
			return
		}
		token = req.RefreshToken
	}

	pair, err := h.auth.Refresh(r.Context(), token)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// HandleMe returns the authenticated caller.
//
// HTTP: GET /api/v1/auth/me
// Auth: Required. Tenant, roles and permissions come from the token, so a
// change made by an admin shows up once the user refreshes or signs in.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		WriteError(w, r, apperror.Unauthorized("authentication required"))
		return
	}

	stored, err := h.auth.GetUserByID(r.Context(), user.ID)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	resp := meResponse{
		AuthUser:  user,
		Email:     stored.Email,
		Active:    stored.Active,
		Providers: []string{},
	}
	for _, p := range model.Providers {
		if stored.ExternalID(p) != "" {
			resp.Providers = append(resp.Providers, p.String())
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleAuthorizeURL returns the provider consent URL for a SPA to navigate to.
//
// HTTP: GET /api/v1/auth/{provider}/authorize?redirect_to=/after/login
func (h *AuthHandler) HandleAuthorizeURL(w http.ResponseWriter, r *http.Request) {
	provider, err := providerParam(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	authURL, err := h.auth.AuthorizationURL(r.Context(), provider, r.URL.Query().Get("redirect_to"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, authorizationURLResponse{AuthorizationURL: authURL})
}

// HandleProviderLogin redirects the browser straight to the consent page.
//
// HTTP: GET /auth/{provider}/login?redirect_to=/after/login
func (h *AuthHandler) HandleProviderLogin(w http.ResponseWriter, r *http.Request) {
	provider, err := providerParam(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	authURL, err := h.auth.AuthorizationURL(r.Context(), provider, r.URL.Query().Get("redirect_to"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// HandleProviderCallback completes the OAuth flow.
//
// HTTP: GET /auth/{provider}/callback?code=...&state=...
//
// With a valid state the browser is always redirected to the frontend, with
// either tokens or an error in the fragment. A missing or invalid state is
// the one case answered with a 400 JSON body: there is no trusted target.
func (h *AuthHandler) HandleProviderCallback(w http.ResponseWriter, r *http.Request) {
	provider, err := providerParam(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	q := r.URL.Query()
	target, err := h.auth.HandleCallback(r.Context(), provider, service.CallbackParams{
		Code:             q.Get("code"),
		State:            q.Get("state"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	})
	if err != nil {
		WriteError(w, r, err)
		return
	}

	// The fragment carries tokens; keep it out of caches and referrers.
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Referrer-Policy", "no-referrer")
	http.Redirect(w, r, target, http.StatusFound)
}

func providerParam(r *http.Request) (model.Provider, error) {
	name := r.PathValue("provider")
	provider, ok := model.ParseProvider(name)
	if !ok {
		return "", apperror.NotFound("provider", name)
	}
	return provider, nil
}
