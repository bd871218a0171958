// Package logger builds the application's slog logger and carries a
// request-scoped logger through the context.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/mlvision/internal/auth"
)

type contextKey string

const loggerKey contextKey = "logger"

// New creates a logger writing to stdout. format is "json" or "text".
func New(level, format string) *slog.Logger {
	return NewWithWriter(level, format, os.Stdout)
}

// NewWithWriter creates a logger writing to w.
func NewWithWriter(level, format string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// ParseLevel maps debug|info|warn|error to a slog level. Anything else is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithRequest returns l annotated with the request ID assigned by chi and the
// authenticated user, when either is present in ctx.
func WithRequest(ctx context.Context, l *slog.Logger) *slog.Logger {
	if id := chimiddleware.GetReqID(ctx); id != "" {
		l = l.With(slog.String("request_id", id))
	}
	if userID, ok := auth.UserIDFromContext(ctx); ok {
		l = l.With(slog.String("user_id", userID))
	}
	return l
}

// scope holds the request logger. Middleware deeper in the chain can
// annotate it with With, and the change is visible to every holder of the
// context, including middleware that ran earlier.
type scope struct {
	l atomic.Pointer[slog.Logger]
}

// NewContext returns a copy of ctx carrying l.
func NewContext(ctx context.Context, l *slog.Logger) context.Context {
	sc := &scope{}
	sc.l.Store(l)
	return context.WithValue(ctx, loggerKey, sc)
}

// With adds attributes to the logger carried by ctx. It reports false when
// ctx has no logger.
func With(ctx context.Context, args ...any) bool {
	sc, ok := ctx.Value(loggerKey).(*scope)
	if !ok {
		return false
	}
	for {
		cur := sc.l.Load()
		if sc.l.CompareAndSwap(cur, cur.With(args...)) {
			return true
		}
	}
}

// FromContext returns the logger stored in ctx, or slog.Default() if none.
func FromContext(ctx context.Context) *slog.Logger {
	return FromContextOr(ctx, slog.Default())
}

// FromContextOr returns the logger stored in ctx, or fallback if none.
func FromContextOr(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if sc, ok := ctx.Value(loggerKey).(*scope); ok {
		if l := sc.l.Load(); l != nil {
			return l
		}
	}
	return fallback
}
