package auth

import (
	"context"
	"net/http"

	"github.com/sakif/mlvision/internal/apperror"
	"github.com/sakif/mlvision/internal/model"
)

// contextKey is an unexported type used for context keys in this package.
//
// context.WithValue uses any as the key type. A package-private type means
// only this package can create a key of type contextKey, so only this
// package can read or write the identity stored in the context.
type contextKey string

const authUserKey contextKey = "authUser"

// ErrorWriter renders a guard failure. The handler package supplies the one
// that knows the API's error body and status mapping.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// RequireAuth is a middleware that enforces authentication on protected routes.
//
// It reads the access token from the "Authorization: Bearer <token>" header,
// verifies it with the guard and stores the resulting AuthUser in the
// request context. A missing or unusable token stops the chain with the
// error rendered by onError.
//
// Chi applies middlewares in a chain: req → M1 → M2 → Handler → M2 → M1 → resp
func RequireAuth(guard *Guard, onError ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, _ := BearerToken(r.Header.Get("Authorization"))

			user, err := guard.Authenticate(token)
			if err != nil {
				onError(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAuthUser(r.Context(), user)))
		})
	}
}

// RequireRoles admits only users with a tenant and at least one of roles.
// It must run after RequireAuth; without an identity in the context the
// request is treated as unauthenticated.
func RequireRoles(onError ErrorWriter, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				onError(w, r, apperror.Unauthorized("authentication required"))
				return
			}

			if _, err := Authorize(user, roles...); err != nil {
				onError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithAuthUser returns a copy of ctx carrying user.
func WithAuthUser(ctx context.Context, user model.AuthUser) context.Context {
	return context.WithValue(ctx, authUserKey, user)
}

// UserFromContext retrieves the authenticated identity from the request context.
//
// Returns (AuthUser{}, false) if RequireAuth did not run for this request.
//
// Usage in handlers:
//
//	user, ok := auth.UserFromContext(r.Context())
//	if !ok {
//	    // anonymous request
//	}
func UserFromContext(ctx context.Context) (model.AuthUser, bool) {
	user, ok := ctx.Value(authUserKey).(model.AuthUser)
	return user, ok && user.ID != ""
}

// UserIDFromContext is a shorthand for the authenticated user's ID.
func UserIDFromContext(ctx context.Context) (string, bool) {
	user, ok := UserFromContext(ctx)
	return user.ID, ok
}
