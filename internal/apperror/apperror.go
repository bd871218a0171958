package apperror

import (
	"errors"
	"fmt"
)

// Categories. Handlers map these to transport status codes.
var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation error")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrUpstream     = errors.New("upstream failure")
	ErrUnavailable  = errors.New("unavailable")
)

// Auth failure kinds. Each one belongs to exactly one category above, so
// errors.Is matches both the kind and its category.
var (
	ErrInvalidCredentials        = errors.New("invalid credentials")
	ErrEmailAlreadyRegistered    = errors.New("email already registered")
	ErrInvalidToken              = errors.New("invalid token")
	ErrWrongTokenType            = errors.New("wrong token type")
	ErrInsufficientRole          = errors.New("insufficient role")
	ErrTenantRequired            = errors.New("tenant required")
	ErrInvalidOAuthState         = errors.New("invalid oauth state")
	ErrInvalidRedirectTarget     = errors.New("invalid redirect target")
	ErrProviderNotConfigured     = errors.New("provider not configured")
	ErrUpstreamExchangeFailed    = errors.New("upstream exchange failed")
	ErrUpstreamProfileFailed     = errors.New("upstream profile failed")
	ErrMalformedUpstreamResponse = errors.New("malformed upstream response")
	ErrMissingAuthorizationCode  = errors.New("missing authorization code")
	ErrUnverifiedEmail           = errors.New("unverified email")
	ErrAccountDisabled           = errors.New("account disabled")
	ErrAccountLinkConflict       = errors.New("account link conflict")
)

type kindInfo struct {
	category error
	code     string
}

var kinds = map[error]kindInfo{
	ErrInvalidCredentials:        {ErrUnauthorized, "invalid_credentials"},
	ErrEmailAlreadyRegistered:    {ErrConflict, "email_already_registered"},
	ErrInvalidToken:              {ErrUnauthorized, "invalid_token"},
	ErrWrongTokenType:            {ErrUnauthorized, "wrong_token_type"},
	ErrInsufficientRole:          {ErrForbidden, "insufficient_role"},
	ErrTenantRequired:            {ErrForbidden, "tenant_required"},
	ErrInvalidOAuthState:         {ErrValidation, "invalid_oauth_state"},
	ErrInvalidRedirectTarget:     {ErrValidation, "invalid_redirect_target"},
	ErrProviderNotConfigured:     {ErrUnavailable, "provider_not_configured"},
	ErrUpstreamExchangeFailed:    {ErrUpstream, "upstream_exchange_failed"},
	ErrUpstreamProfileFailed:     {ErrUpstream, "upstream_profile_failed"},
	ErrMalformedUpstreamResponse: {ErrUpstream, "malformed_upstream_response"},
	ErrMissingAuthorizationCode:  {ErrValidation, "missing_authorization_code"},
	ErrUnverifiedEmail:           {ErrForbidden, "unverified_email"},
	ErrAccountDisabled:           {ErrUnauthorized, "account_disabled"},
	ErrAccountLinkConflict:       {ErrConflict, "account_link_conflict"},
}

type AppError struct {
	Err     error  // category sentinel
	Kind    error  // optional: specific failure within the category
	Code    string // machine-readable code, e.g. "invalid_credentials"
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Cause   error  // Optional: underlying error, never shown to clients
}

func (e *AppError) Error() string {
	return e.Message
}

// Unwrap exposes the category, the kind and the cause to errors.Is/As.
func (e *AppError) Unwrap() []error {
	errs := make([]error, 0, 3)
	for _, err := range []error{e.Err, e.Kind, e.Cause} {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// WithCause returns a copy of e carrying cause.
func (e *AppError) WithCause(cause error) *AppError {
	cp := *e
	cp.Cause = cause
	return &cp
}

// New builds an AppError for one of the auth failure kinds. Unknown kinds
// are filed under no category and surface as internal errors.
func New(kind error, message string) *AppError {
	info := kinds[kind]
	return &AppError{
		Err:     info.category,
		Kind:    kind,
		Code:    info.code,
		Message: message,
	}
}

// Wrap is New with an underlying cause.
func Wrap(kind error, message string, cause error) *AppError {
	return New(kind, message).WithCause(cause)
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// ConflictOn reports a uniqueness violation on a single field.
func ConflictOn(field string, cause error) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s already in use", field),
		Field:   field,
		Cause:   cause,
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized returns an AppError for missing or unusable credentials.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}
