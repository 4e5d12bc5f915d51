package server

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctxconfig/cac/internal/auth"
	"github.com/ctxconfig/cac/internal/ctxutil"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestRequestIDMiddlewareGeneratesIDWhenMissing(t *testing.T) {
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	})
	handler := requestIDMiddleware(inner)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	handler.ServeHTTP(rec, req)

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))
}

func TestRequestIDMiddlewarePreservesValidClientID(t *testing.T) {
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	})
	handler := requestIDMiddleware(inner)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "client-supplied-id")
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "client-supplied-id", seen)
}

func TestRequestIDMiddlewareRejectsInvalidClientID(t *testing.T) {
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	})
	handler := requestIDMiddleware(inner)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "bad\x01control-char")
	handler.ServeHTTP(rec, req)

	assert.NotEqual(t, "bad\x01control-char", seen)
}

func TestAuthMiddlewareSkipsNoAuthPaths(t *testing.T) {
	verifier, err := auth.NewAdminVerifier("super-secret")
	require.NoError(t, err)

	called := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})
	handler := authMiddleware(verifier, inner)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	handler.ServeHTTP(rec, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMiddlewareRejectsMissingBearer(t *testing.T) {
	verifier, err := auth.NewAdminVerifier("super-secret")
	require.NoError(t, err)

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := authMiddleware(verifier, inner)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/default-config", nil)
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddlewareAcceptsValidBearerAndSetsTenant(t *testing.T) {
	verifier, err := auth.NewAdminVerifier("super-secret")
	require.NoError(t, err)

	var tenant string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant = ctxutil.TenantFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := authMiddleware(verifier, inner)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/default-config", nil)
	req.Header.Set("Authorization", "Bearer super-secret")
	req.Header.Set("x-tenant", "acme")
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "acme", tenant)
}

func TestRecoveryMiddlewareCatchesPanic(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	handler := recoveryMiddleware(testLogger(), inner)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	assert.NotPanics(t, func() {
		handler.ServeHTTP(rec, req)
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCORSMiddlewareReflectsAllowedOrigin(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := corsMiddleware([]string{"https://allowed.example"}, inner)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://allowed.example")
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "https://allowed.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSMiddlewareIgnoresDisallowedOrigin(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := corsMiddleware([]string{"https://allowed.example"}, inner)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	handler.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSMiddlewareHandlesPreflight(t *testing.T) {
	called := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	handler := corsMiddleware([]string{"*"}, inner)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/context", nil)
	req.Header.Set("Origin", "https://anywhere.example")
	handler.ServeHTTP(rec, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestSecurityHeadersMiddlewareSetsHeaders(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := securityHeadersMiddleware(inner)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	body := `{"dimension": "region", "priority": 1, "unknown_field": true}`
	req := httptest.NewRequest(http.MethodPost, "/dimension", strings.NewReader(body))

	var target struct {
		Dimension string `json:"dimension"`
		Priority  int32  `json:"priority"`
	}
	err := decodeJSON(req, &target, 1024)
	assert.Error(t, err)
}

func TestDecodeJSONAcceptsKnownFields(t *testing.T) {
	body := `{"dimension": "region", "priority": 1}`
	req := httptest.NewRequest(http.MethodPost, "/dimension", strings.NewReader(body))

	var target struct {
		Dimension string `json:"dimension"`
		Priority  int32  `json:"priority"`
	}
	err := decodeJSON(req, &target, 1024)
	require.NoError(t, err)
	assert.Equal(t, "region", target.Dimension)
	assert.Equal(t, int32(1), target.Priority)
}

func TestRequestIDFromContextEmptyWhenUnset(t *testing.T) {
	assert.Empty(t, RequestIDFromContext(context.Background()))
}
