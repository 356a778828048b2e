package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"keystone/config"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeRequestID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "valid UUID", input: "550e8400-e29b-41d4-a716-446655440000", expected: "550e8400-e29b-41d4-a716-446655440000"},
		{name: "with underscore", input: "req_abc_123", expected: "req_abc_123"},
		{name: "with special characters", input: "req<script>alert(1)</script>123", expected: "reqscriptalert1script123"},
		{name: "with newlines (log injection attempt)", input: "abc\n\rINFO: fake log", expected: "abcINFOfakelog"},
		{name: "empty string", input: "", expected: ""},
		{name: "too long (should truncate)", input: strings.Repeat("a", 100), expected: strings.Repeat("a", 64)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeRequestID(tt.input))
		})
	}
}

func TestRequestContextMiddleware(t *testing.T) {
	s, _ := newTestServer(t, testSettings())

	var seen RequestInfo
	s.APIRouter().HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		seen, _ = GetRequestInfo(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	t.Run("propagates supplied IDs", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/echo", nil)
		req.Header.Set(RequestIDHeader, "req-1")
		req.Header.Set(TraceIDHeader, "trace-1")
		rec := serve(s, req)

		assert.Equal(t, "req-1", rec.Header().Get(RequestIDHeader))
		assert.Equal(t, "trace-1", rec.Header().Get(TraceIDHeader))
		assert.Equal(t, RequestInfo{RequestID: "req-1", TraceID: "trace-1", Path: "/api/echo", Method: "GET"}, seen)
	})

	t.Run("generates missing IDs", func(t *testing.T) {
		rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/echo", nil))

		_, err := uuid.Parse(rec.Header().Get(RequestIDHeader))
		assert.NoError(t, err)
		_, err = uuid.Parse(rec.Header().Get(TraceIDHeader))
		assert.NoError(t, err)
		assert.NotEqual(t, rec.Header().Get(RequestIDHeader), rec.Header().Get(TraceIDHeader))
	})

	t.Run("replaces IDs that sanitize to nothing", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/echo", nil)
		req.Header.Set(RequestIDHeader, "<<>>")
		rec := serve(s, req)

		_, err := uuid.Parse(rec.Header().Get(RequestIDHeader))
		assert.NoError(t, err)
	})

	t.Run("applies to unmatched routes", func(t *testing.T) {
		rec := serve(s, httptest.NewRequest(http.MethodGet, "/missing", nil))
		assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	})
}

func TestCORS(t *testing.T) {
	t.Run("wildcard echoes origin with credentials", func(t *testing.T) {
		s, _ := newTestServer(t, testSettings())
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.Header.Set("Origin", "https://app.example.com")
		rec := serve(s, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("preflight", func(t *testing.T) {
		s, _ := newTestServer(t, testSettings())
		req := httptest.NewRequest(http.MethodOptions, "/api/users", nil)
		req.Header.Set("Origin", "https://app.example.com")
		req.Header.Set("Access-Control-Request-Method", "POST")
		req.Header.Set("Access-Control-Request-Headers", "content-type")
		rec := serve(s, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "PATCH")
		assert.Equal(t, "content-type", rec.Header().Get("Access-Control-Allow-Headers"))
	})

	t.Run("disallowed origin", func(t *testing.T) {
		settings := testSettings()
		settings.CORSAllowedOrigins = config.NewOrigins("https://admin.example.com")
		s, _ := newTestServer(t, settings)

		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		rec := serve(s, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	settings := testSettings()
	settings.RateLimitRPS = 1
	settings.RateLimitBurst = 2
	s, _ := newTestServer(t, settings)

	get := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.RemoteAddr = remote
		return serve(s, req)
	}

	require.Equal(t, http.StatusOK, get("10.0.0.1:1000").Code)
	require.Equal(t, http.StatusOK, get("10.0.0.1:1001").Code)

	rec := get("10.0.0.1:1002")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"detail":"Rate limit exceeded"}`, rec.Body.String())

	// Another client has its own bucket.
	assert.Equal(t, http.StatusOK, get("10.0.0.2:1000").Code)
}

func TestRateLimiter_Prune(t *testing.T) {
	rl := NewRateLimiter(10, 10)
	defer rl.Close()

	allowed, err := rl.Allow(context.Background(), "a")
	require.NoError(t, err)
	require.True(t, allowed)
	rl.prune(rl.limiters["a"].lastSeen.Add(1))

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Empty(t, rl.limiters)
}

func TestRateLimiter_CloseIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	require.NoError(t, rl.Close())
	assert.NoError(t, rl.Close())
}
