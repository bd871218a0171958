package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/mlvision/internal/auth"
	"github.com/sakif/mlvision/internal/logger"
	"github.com/sakif/mlvision/internal/model"
)

// newRouter mounts mw on a chi router so RouteContext is populated.
func newRouter(mws []func(http.Handler) http.Handler, pattern string, h http.HandlerFunc) *chi.Mux {
	r := chi.NewRouter()
	r.Use(mws...)
	r.Get(pattern, h)
	return r
}

func TestLogger_RequestScopedLogger(t *testing.T) {
	var buf bytes.Buffer
	base := logger.NewWithWriter("info", "json", &buf)

	router := newRouter(
		[]func(http.Handler) http.Handler{chimiddleware.RequestID, Logger(base)},
		"/projects/{id}",
		func(w http.ResponseWriter, r *http.Request) {
			logger.FromContext(r.Context()).Info("inside handler")
			w.WriteHeader(http.StatusTeapot)
		},
	)

	req := httptest.NewRequest(http.MethodGet, "/projects/p1?state=secret", nil)
	req.Header.Set(chimiddleware.RequestIDHeader, "req-42")
	router.ServeHTTP(httptest.NewRecorder(), req)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var inner, done map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &inner))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &done))

	assert.Equal(t, "inside handler", inner["msg"])
	assert.Equal(t, "req-42", inner["request_id"])

	assert.Equal(t, "request completed", done["msg"])
	assert.Equal(t, "WARN", done["level"])
	assert.Equal(t, "req-42", done["request_id"])
	assert.Equal(t, "/projects/p1", done["path"])
	assert.Equal(t, "/projects/{id}", done["route"])
	assert.EqualValues(t, http.StatusTeapot, done["status"])
	assert.NotContains(t, buf.String(), "secret")
}

func TestIdentify_AddsUserToCompletionLine(t *testing.T) {
	var buf bytes.Buffer
	authenticate := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(auth.WithAuthUser(r.Context(), model.AuthUser{ID: "user-7"})))
		})
	}

	router := newRouter(
		[]func(http.Handler) http.Handler{Logger(logger.NewWithWriter("info", "json", &buf)), authenticate, Identify},
		"/me",
		func(w http.ResponseWriter, r *http.Request) {
			logger.FromContext(r.Context()).Info("inside handler")
		},
	)
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/me", nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	for _, raw := range lines {
		var line map[string]any
		require.NoError(t, json.Unmarshal([]byte(raw), &line))
		assert.Equal(t, "user-7", line["user_id"], line["msg"])
	}
}

func TestIdentify_AnonymousRequest(t *testing.T) {
	var buf bytes.Buffer
	router := newRouter(
		[]func(http.Handler) http.Handler{Logger(logger.NewWithWriter("info", "json", &buf)), Identify},
		"/health",
		func(w http.ResponseWriter, r *http.Request) {},
	)
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.NotContains(t, line, "user_id")
}

func TestLogger_ServerErrorsLogAtErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	router := newRouter(
		[]func(http.Handler) http.Handler{Logger(logger.NewWithWriter("info", "json", &buf))},
		"/boom",
		func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		},
	)
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "ERROR", line["level"])
}

func TestResponseWriter_KeepsFirstStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := wrap(rec)

	_, _ = rw.Write([]byte("ok"))
	rw.WriteHeader(http.StatusInternalServerError)

	assert.Equal(t, http.StatusOK, rw.statusCode)
	assert.EqualValues(t, 2, rw.written)
}

func TestMetrics_LabelsByRoutePattern(t *testing.T) {
	router := newRouter(
		[]func(http.Handler) http.Handler{Metrics},
		"/metrics-test/{id}",
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		},
	)

	counter := httpRequestsTotal.WithLabelValues(http.MethodGet, "/metrics-test/{id}", "404")
	before := testutil.ToFloat64(counter)

	for _, id := range []string{"a", "b", "c"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics-test/"+id, nil))
	}

	assert.Equal(t, before+3, testutil.ToFloat64(counter))
	assert.Equal(t, float64(0), testutil.ToFloat64(httpRequestsInFlight))
}
