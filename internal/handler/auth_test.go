package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/mlvision/internal/apperror"
	"github.com/sakif/mlvision/internal/auth"
	"github.com/sakif/mlvision/internal/handler"
	"github.com/sakif/mlvision/internal/model"
	"github.com/sakif/mlvision/internal/service"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubAuthService records its inputs and returns canned results.
type stubAuthService struct {
	pair *model.TokenPair
	user *model.User
	url  string
	err  error

	gotEmail, gotPassword string
	gotRefresh            string
	gotProvider           model.Provider
	gotRedirect           string
	gotCallback           service.CallbackParams
}

func (s *stubAuthService) Register(_ context.Context, email, password string) (*model.TokenPair, error) {
	s.gotEmail, s.gotPassword = email, password
	return s.pair, s.err
}

func (s *stubAuthService) Login(_ context.Context, email, password string) (*model.TokenPair, error) {
	s.gotEmail, s.gotPassword = email, password
	return s.pair, s.err
}

func (s *stubAuthService) Refresh(_ context.Context, token string) (*model.TokenPair, error) {
	s.gotRefresh = token
	return s.pair, s.err
}

func (s *stubAuthService) GetUserByID(_ context.Context, _ string) (*model.User, error) {
	return s.user, s.err
}

func (s *stubAuthService) AuthorizationURL(_ context.Context, p model.Provider, redirectTo string) (string, error) {
	s.gotProvider, s.gotRedirect = p, redirectTo
	return s.url, s.err
}

func (s *stubAuthService) HandleCallback(_ context.Context, p model.Provider, params service.CallbackParams) (string, error) {
	s.gotProvider, s.gotCallback = p, params
	return s.url, s.err
}

var testPair = &model.TokenPair{AccessToken: "acc", RefreshToken: "ref", TokenType: "Bearer", ExpiresIn: 900}

func postJSON(target, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body handler.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Error
}

func TestHandleRegister(t *testing.T) {
	svc := &stubAuthService{pair: testPair}
	h := handler.NewAuthHandler(svc, discardLogger())

	rec := httptest.NewRecorder()
	h.HandleRegister(rec, postJSON("/api/v1/auth/register", `{"email":"a@example.com","password":"hunter22!"}`))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "a@example.com", svc.gotEmail)
	assert.Equal(t, "hunter22!", svc.gotPassword)

	var got model.TokenPair
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, *testPair, got)
}

func TestHandleRegister_EmailTaken(t *testing.T) {
	svc := &stubAuthService{err: apperror.New(apperror.ErrEmailAlreadyRegistered, "Email already registered")}
	h := handler.NewAuthHandler(svc, discardLogger())

	rec := httptest.NewRecorder()
	h.HandleRegister(rec, postJSON("/api/v1/auth/register", `{"email":"a@example.com","password":"hunter22!"}`))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "email_already_registered", errorCode(t, rec))
}

func TestHandleLogin(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"success", `{"email":"a@example.com","password":"pw"}`, nil, http.StatusOK, ""},
		{"bad credentials", `{"email":"a@example.com","password":"pw"}`,
			apperror.New(apperror.ErrInvalidCredentials, "Invalid email or password"), http.StatusUnauthorized, "invalid_credentials"},
		{"missing password", `{"email":"a@example.com"}`, nil, http.StatusBadRequest, "validation_error"},
		{"unknown field", `{"email":"a@example.com","password":"pw","role":"admin"}`, nil, http.StatusBadRequest, "validation_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handler.NewAuthHandler(&stubAuthService{pair: testPair, err: tt.err}, discardLogger())

			rec := httptest.NewRecorder()
			h.HandleLogin(rec, postJSON("/api/v1/auth/login", tt.body))

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, errorCode(t, rec))
			}
		})
	}
}

func TestHandleRefresh_QueryTakesPrecedence(t *testing.T) {
	svc := &stubAuthService{pair: testPair}
	h := handler.NewAuthHandler(svc, discardLogger())

	rec := httptest.NewRecorder()
	h.HandleRefresh(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh?refresh_token=from-query", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "from-query", svc.gotRefresh)
}

func TestHandleRefresh_Body(t *testing.T) {
	svc := &stubAuthService{pair: testPair}
	h := handler.NewAuthHandler(svc, discardLogger())

	rec := httptest.NewRecorder()
	h.HandleRefresh(rec, postJSON("/api/v1/auth/refresh", `{"refresh_token":"from-body"}`))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "from-body", svc.gotRefresh)
}

func TestHandleRefresh_WrongTokenType(t *testing.T) {
	svc := &stubAuthService{err: apperror.New(apperror.ErrWrongTokenType, "wrong token type")}
	h := handler.NewAuthHandler(svc, discardLogger())

	rec := httptest.NewRecorder()
	h.HandleRefresh(rec, postJSON("/api/v1/auth/refresh", `{"refresh_token":"an-access-token"}`))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "wrong_token_type", errorCode(t, rec))
}

func TestHandleMe(t *testing.T) {
	googleID := "g-1"
	svc := &stubAuthService{user: &model.User{ID: "u1", Email: "a@example.com", Active: true, GoogleID: &googleID}}
	h := handler.NewAuthHandler(svc, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req = req.WithContext(auth.WithAuthUser(req.Context(), model.AuthUser{
		ID: "u1", TenantID: "t1", Roles: []string{"member"}, Permissions: []string{},
	}))
	rec := httptest.NewRecorder()
	h.HandleMe(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		ID        string   `json:"id"`
		TenantID  string   `json:"tenantId"`
		Roles     []string `json:"roles"`
		Email     string   `json:"email"`
		Providers []string `json:"providers"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "u1", body.ID)
	assert.Equal(t, "t1", body.TenantID)
	assert.Equal(t, []string{"member"}, body.Roles)
	assert.Equal(t, "a@example.com", body.Email)
	assert.Equal(t, []string{"google"}, body.Providers)
}

func TestHandleMe_Anonymous(t *testing.T) {
	h := handler.NewAuthHandler(&stubAuthService{}, discardLogger())

	rec := httptest.NewRecorder()
	h.HandleMe(rec, httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
}

func TestHandleAuthorizeURL(t *testing.T) {
	svc := &stubAuthService{url: "https://accounts.google.com/o/oauth2/auth?state=s"}
	h := handler.NewAuthHandler(svc, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/google/authorize?redirect_to=/projects", nil)
	req.SetPathValue("provider", "google")
	rec := httptest.NewRecorder()
	h.HandleAuthorizeURL(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.ProviderGoogle, svc.gotProvider)
	assert.Equal(t, "/projects", svc.gotRedirect)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, svc.url, body["authorization_url"])
}

func TestHandleProviderLogin_Redirects(t *testing.T) {
	svc := &stubAuthService{url: "https://github.com/login/oauth/authorize?state=s"}
	h := handler.NewAuthHandler(svc, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/auth/github/login", nil)
	req.SetPathValue("provider", "github")
	rec := httptest.NewRecorder()
	h.HandleProviderLogin(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, svc.url, rec.Header().Get("Location"))
	assert.Equal(t, model.ProviderGitHub, svc.gotProvider)
}

func TestHandleProviderLogin_UnknownProvider(t *testing.T) {
	h := handler.NewAuthHandler(&stubAuthService{}, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/auth/facebook/login", nil)
	req.SetPathValue("provider", "facebook")
	rec := httptest.NewRecorder()
	h.HandleProviderLogin(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleProviderLogin_NotConfigured(t *testing.T) {
	svc := &stubAuthService{err: apperror.New(apperror.ErrProviderNotConfigured, "Google sign-in is not configured")}
	h := handler.NewAuthHandler(svc, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/auth/google/login", nil)
	req.SetPathValue("provider", "google")
	rec := httptest.NewRecorder()
	h.HandleProviderLogin(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "provider_not_configured", errorCode(t, rec))
}

func TestHandleProviderCallback_Redirects(t *testing.T) {
	svc := &stubAuthService{url: "https://app.example.com/auth/google/callback#access_token=acc"}
	h := handler.NewAuthHandler(svc, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=c1&state=s1", nil)
	req.SetPathValue("provider", "google")
	rec := httptest.NewRecorder()
	h.HandleProviderCallback(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, svc.url, rec.Header().Get("Location"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "no-referrer", rec.Header().Get("Referrer-Policy"))
	assert.Equal(t, service.CallbackParams{Code: "c1", State: "s1"}, svc.gotCallback)
}

func TestHandleProviderCallback_ForwardsProviderError(t *testing.T) {
	svc := &stubAuthService{url: "https://app.example.com/#error=access_denied"}
	h := handler.NewAuthHandler(svc, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/auth/github/callback?state=s1&error=access_denied&error_description=denied", nil)
	req.SetPathValue("provider", "github")
	rec := httptest.NewRecorder()
	h.HandleProviderCallback(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "access_denied", svc.gotCallback.Error)
	assert.Equal(t, "denied", svc.gotCallback.ErrorDescription)
}

func TestHandleProviderCallback_InvalidState(t *testing.T) {
	svc := &stubAuthService{err: apperror.Wrap(apperror.ErrInvalidOAuthState, "Invalid OAuth state",
		apperror.New(apperror.ErrInvalidToken, "token expired"))}
	h := handler.NewAuthHandler(svc, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=c1&state=forged", nil)
	req.SetPathValue("provider", "google")
	rec := httptest.NewRecorder()
	h.HandleProviderCallback(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, rec.Header().Get("Location"))
	assert.Equal(t, "invalid_oauth_state", errorCode(t, rec))
}
