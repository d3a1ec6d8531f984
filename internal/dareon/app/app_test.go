package app_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dareon-io/dareon2/common/trace"
	"github.com/dareon-io/dareon2/internal/dareon/app"
	"github.com/dareon-io/dareon2/internal/dareon/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Database.URL = filepath.Join(dir, "app.db")
	cfg.Storage.Dir = filepath.Join(dir, "storage")
	cfg.Auth.JWTSecret = "test-secret"
	cfg.MasterKey = strings.Repeat("ab", 32)
	require.NoError(t, cfg.Validate())
	return cfg
}

func newApp(t *testing.T, cfg *config.Config) *app.App {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := app.New(context.Background(), cfg, logger)
	require.NoError(t, err)
	return a
}

func get(h http.Handler, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, vv := range header {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestApp_HealthAndStatus(t *testing.T) {
	a := newApp(t, testConfig(t))
	t.Cleanup(func() { _ = a.Close() })

	w := get(a.Handler(), "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var health struct {
		Status    string    `json:"status"`
		Timestamp time.Time `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "OK", health.Status)
	assert.WithinDuration(t, time.Now(), health.Timestamp, time.Minute)
	assert.NotEmpty(t, w.Header().Get(trace.Header), "every response carries a request id")

	w = get(a.Handler(), "/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status struct {
		Status    string `json:"status"`
		Version   string `json:"version"`
		UserCount int    `json:"user_count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "OK", status.Status)
	assert.NotEmpty(t, status.Version)
	assert.Equal(t, 0, status.UserCount)
}

func TestApp_RequestIDEchoed(t *testing.T) {
	a := newApp(t, testConfig(t))
	t.Cleanup(func() { _ = a.Close() })

	w := get(a.Handler(), "/health", http.Header{trace.Header: {"client-chosen-id"}})
	assert.Equal(t, "client-chosen-id", w.Header().Get(trace.Header))
}

func TestApp_APIRoutesRequireToken(t *testing.T) {
	a := newApp(t, testConfig(t))
	t.Cleanup(func() { _ = a.Close() })

	for _, path := range []string{"/api/files", "/api/ai/history", "/api/integrations", "/api/auth/me"} {
		w := get(a.Handler(), path, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestApp_GlobalLimitOnlyCoversAPI(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimit.GlobalRequests = 3
	a := newApp(t, cfg)
	t.Cleanup(func() { _ = a.Close() })

	for range cfg.RateLimit.GlobalRequests * 2 {
		require.Equal(t, http.StatusOK, get(a.Handler(), "/health", nil).Code)
	}
	for range cfg.RateLimit.GlobalRequests {
		require.Equal(t, http.StatusUnauthorized, get(a.Handler(), "/api/files", nil).Code)
	}
	w := get(a.Handler(), "/api/files", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestApp_ServeStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	a := newApp(t, testConfig(t))
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, ln) }()

	client := &http.Client{Transport: &http.Transport{}, Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	client.CloseIdleConnections()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	require.NoError(t, a.Close())
}
