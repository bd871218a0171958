package httpclient

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig(name string) Config {
	cfg := DefaultConfig(name, 2*time.Second)
	cfg.Breaker.MinRequests = 3
	cfg.Breaker.Timeout = time.Second
	return cfg
}

func get(t *testing.T, c *http.Client, url string) (*http.Response, error) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, http.NoBody)
	require.NoError(t, err)
	return c.Do(req)
}

func TestBreaker_ClosedState_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	c := New(testConfig("test-closed"), testLogger())

	resp, err := get(t, c, server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"ok":true}`, string(body))
	assert.Equal(t, gobreaker.StateClosed, c.Transport.(*BreakerTransport).State())
}

func TestBreaker_ServerErrorStillReturnsResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"bad_gateway"}`))
	}))
	defer server.Close()

	c := New(testConfig("test-5xx-passthrough"), testLogger())

	resp, err := get(t, c, server.URL)
	require.NoError(t, err, "5xx must reach the caller as a response")
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, string(body), "bad_gateway")
}

func TestBreaker_TripsOnFailures(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := New(testConfig("test-trip"), testLogger())

	for i := 0; i < 3; i++ {
		resp, err := get(t, c, server.URL)
		require.NoError(t, err)
		resp.Body.Close()
	}

	assert.Equal(t, gobreaker.StateOpen, c.Transport.(*BreakerTransport).State())

	_, err := get(t, c, server.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(3), hits.Load(), "open breaker must not reach the upstream")
}

func TestBreaker_ClientErrorsDoNotTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	c := New(testConfig("test-4xx"), testLogger())

	for i := 0; i < 5; i++ {
		resp, err := get(t, c, server.URL)
		require.NoError(t, err)
		resp.Body.Close()
	}
	assert.Equal(t, gobreaker.StateClosed, c.Transport.(*BreakerTransport).State())
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	cfg := testConfig("test-timeout")
	cfg.Timeout = 50 * time.Millisecond
	c := New(cfg, testLogger())

	start := time.Now()
	_, err := get(t, c, server.URL)
	require.Error(t, err)

	var netErr net.Error
	require.True(t, errors.As(err, &netErr), "timeout must surface as net.Error, got %T", err)
	assert.True(t, netErr.Timeout())
	assert.Less(t, time.Since(start), time.Second)
}
