package middleware

import (
	"log/slog"
	"net/http"

	"github.com/sakif/mlvision/internal/auth"
	"github.com/sakif/mlvision/internal/logger"
)

// Identify adds the authenticated user's ID to the request logger. It must
// run after auth.RequireAuth; the completion line written by Logger then
// carries user_id too.
func Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := auth.UserIDFromContext(r.Context()); ok {
			logger.With(r.Context(), slog.String("user_id", id))
		}
		next.ServeHTTP(w, r)
	})
}
