package middleware

import (
	"bytes"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
})

func TestLoggerRecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf, "", 0)

	handler := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/profile", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Contains(t, buf.String(), "GET /api/profile 418")
	assert.Contains(t, buf.String(), "15B")
}

func TestRequireToken(t *testing.T) {
	tests := []struct {
		name       string
		token      string
		header     string
		wantStatus int
	}{
		{"guard disabled", "", "", http.StatusOK},
		{"missing header", "s3cret", "", http.StatusUnauthorized},
		{"wrong scheme", "s3cret", "Basic s3cret", http.StatusUnauthorized},
		{"wrong token", "s3cret", "Bearer nope", http.StatusUnauthorized},
		{"valid token", "s3cret", "Bearer s3cret", http.StatusOK},
		{"lowercase scheme", "s3cret", "bearer s3cret", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/favorites", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			NewAuthMiddleware(tt.token).RequireToken(okHandler).ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestRequireTokenSetsClient(t *testing.T) {
	var client string
	handler := NewAuthMiddleware("s3cret").RequireToken(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client, _ = GetClientFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, tokenClient, client)
}

func newTestLimiter(t *testing.T, maxRequests int, enabled bool) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRateLimiter(client, RateLimitConfig{
		Prefix:      "test:",
		MaxRequests: maxRequests,
		Window:      time.Minute,
		Enabled:     enabled,
	}, log.New(io.Discard, "", 0)), mr
}

func TestRateLimiterBlocksAfterLimit(t *testing.T) {
	rl, mr := newTestLimiter(t, 3, true)
	handler := rl.Limit(okHandler)

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/screens/home", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/screens/home", nil)
	req.RemoteAddr = "10.0.0.1:6666"
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// another caller has its own window
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/screens/home", nil)
	req.RemoteAddr = "10.0.0.2:5555"
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.True(t, mr.Exists("test:ratelimit:ip:10.0.0.1"))
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	rl, _ := newTestLimiter(t, 1, true)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	allowed, err := rl.checkRateLimit(req.Context(), "ip:x")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = rl.checkRateLimit(req.Context(), "ip:x")
	require.NoError(t, err)
	assert.False(t, allowed)

	now = now.Add(2 * time.Minute)
	allowed, err = rl.checkRateLimit(req.Context(), "ip:x")
	require.NoError(t, err)
	assert.True(t, allowed, "old entries fall out of the window")
}

func TestRateLimiterDisabled(t *testing.T) {
	rl, mr := newTestLimiter(t, 1, false)
	handler := rl.Limit(okHandler)

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Empty(t, mr.Keys())
}

func TestRateLimiterFailsOpen(t *testing.T) {
	rl, mr := newTestLimiter(t, 1, true)
	mr.Close()

	rec := httptest.NewRecorder()
	rl.Limit(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
