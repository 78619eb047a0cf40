package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/weatherhub/weatherhub/internal/model"
	"github.com/weatherhub/weatherhub/internal/service"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// ---------------------------------------------------------------------------
// RequestID middleware tests
// ---------------------------------------------------------------------------

func TestRequestIDGeneratesUUID(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if RequestIDFromContext(r.Context()) == "" {
			t.Error("expected non-empty request ID in context")
		}
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/test", nil))

	respID := rr.Header().Get(RequestIDHeader)
	if len(respID) != 36 {
		t.Errorf("expected UUID-length request ID, got %q (len=%d)", respID, len(respID))
	}
}

func TestRequestIDPreservesClientID(t *testing.T) {
	clientID := "my-custom-trace-id-123"

	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := RequestIDFromContext(r.Context()); id != clientID {
			t.Errorf("expected context ID %q, got %q", clientID, id)
		}
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set(RequestIDHeader, clientID)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if respID := rr.Header().Get(RequestIDHeader); respID != clientID {
		t.Errorf("expected response X-Request-ID %q, got %q", clientID, respID)
	}
}

func TestRequestIDFallsBackToCorrelationID(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Correlation-ID", "corr-42")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if got := rr.Header().Get(RequestIDHeader); got != "corr-42" {
		t.Errorf("expected correlation ID to be adopted, got %q", got)
	}
}

func TestRequestIDReplacesUnsafeClientID(t *testing.T) {
	tests := map[string]string{
		"oversized": strings.Repeat("x", maxRequestIDLen+1),
		"space":     "two words",
		"control":   "abc\x1bdef",
		"non-ascii": "trace-é",
	}
	for name, clientID := range tests {
		t.Run(name, func(t *testing.T) {
			handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

			req := httptest.NewRequest("GET", "/test", nil)
			req.Header.Set(RequestIDHeader, clientID)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if got := rr.Header().Get(RequestIDHeader); got == clientID || len(got) != 36 {
				t.Errorf("unsafe ID not replaced: %q", got)
			}
		})
	}
}

func TestRequestIDFromContext(t *testing.T) {
	if id := RequestIDFromContext(context.Background()); id != "" {
		t.Errorf("expected empty string, got %q", id)
	}
	if id := RequestIDFromContext(WithRequestID(context.Background(), "abc")); id != "abc" {
		t.Errorf("expected %q, got %q", "abc", id)
	}
}

// ---------------------------------------------------------------------------
// API key middleware tests
// ---------------------------------------------------------------------------

type fakeVerifier struct {
	err  error
	seen string
}

func (f *fakeVerifier) Verify(_ context.Context, token string) (*model.APIKey, *model.User, error) {
	f.seen = token
	if f.err != nil {
		return nil, nil, f.err
	}
	return &model.APIKey{ID: 3, KeyPrefix: "sk-abcdefgh", RemainingQuota: 9},
		&model.User{ID: 1, Username: "alice", Role: model.RoleUser, IsActive: true}, nil
}

func decodeErrorCode(t *testing.T, rr *httptest.ResponseRecorder) int {
	t.Helper()
	var resp model.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return resp.Error.Code
}

func TestRequireAPIKeyAttachesPrincipal(t *testing.T) {
	v := &fakeVerifier{}
	handler := RequireAPIKey(v, discardLogger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := GetAPIKey(r.Context())
		user := GetUser(r.Context())
		if key == nil || key.ID != 3 {
			t.Errorf("key = %+v", key)
		}
		if user == nil || user.Username != "alice" {
			t.Errorf("user = %+v", user)
		}
	}))

	req := httptest.NewRequest("GET", "/weather/data", nil)
	req.Header.Set("X-API-KEY", "sk-raw")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rr.Code)
	}
	if v.seen != "sk-raw" {
		t.Errorf("verifier saw %q", v.seen)
	}
}

func TestRequireAPIKeyErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{service.ErrUnauthorized, http.StatusUnauthorized},
		{service.ErrForbidden, http.StatusForbidden},
		{service.ErrQuotaExceeded, http.StatusTooManyRequests},
		{service.ErrMalformed, http.StatusBadRequest},
		{fmt.Errorf("consume quota: %w", context.DeadlineExceeded), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			handler := RequireAPIKey(&fakeVerifier{err: tt.err}, discardLogger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Error("handler should not be reached")
			}))
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, httptest.NewRequest("GET", "/weather/data", nil))

			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
			if code := decodeErrorCode(t, rr); code != tt.want {
				t.Errorf("body code = %d, want %d", code, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Session and role middleware tests
// ---------------------------------------------------------------------------

type fakeAuthenticator struct {
	user *model.User
	err  error
}

func (f *fakeAuthenticator) Authenticate(context.Context, string) (*model.User, error) {
	return f.user, f.err
}

func TestRequireSessionMissingHeader(t *testing.T) {
	handler := RequireSession(&fakeAuthenticator{}, discardLogger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be reached")
	}))

	for _, h := range []string{"", "Basic abc", "Bearer "} {
		req := httptest.NewRequest("GET", "/auth/me", nil)
		if h != "" {
			req.Header.Set("Authorization", h)
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%q: status = %d, want 401", h, rr.Code)
		}
		if rr.Header().Get("WWW-Authenticate") != "Bearer" {
			t.Errorf("%q: missing WWW-Authenticate", h)
		}
	}
}

func TestRequireSessionInactiveUser(t *testing.T) {
	handler := RequireSession(&fakeAuthenticator{err: service.ErrForbidden}, discardLogger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be reached")
	}))
	req := httptest.NewRequest("GET", "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rr.Code)
	}
}

func TestRequireRole(t *testing.T) {
	admin := &model.User{ID: 1, Username: "root", Role: model.RoleAdmin, IsActive: true}
	user := &model.User{ID: 2, Username: "joe", Role: model.RoleUser, IsActive: true}

	tests := []struct {
		name string
		user *model.User
		want int
	}{
		{"admin allowed", admin, http.StatusOK},
		{"user forbidden", user, http.StatusForbidden},
		{"anonymous", nil, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RequireRole(model.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			req := httptest.NewRequest("GET", "/admin/users", nil)
			if tt.user != nil {
				req = req.WithContext(WithUser(req.Context(), tt.user))
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestGetUserWithoutValue(t *testing.T) {
	if GetUser(context.Background()) != nil {
		t.Error("expected nil user")
	}
	if GetAPIKey(context.Background()) != nil {
		t.Error("expected nil key")
	}
}

// ---------------------------------------------------------------------------
// Rate limiting and logging
// ---------------------------------------------------------------------------

func TestRateLimitByHeaderSeparatesKeys(t *testing.T) {
	handler := RateLimitByHeader(APIKeyHeader, 1)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(key string) int {
		req := httptest.NewRequest("GET", "/weather/data", nil)
		req.Header.Set(APIKeyHeader, key)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	if got := send("a"); got != http.StatusOK {
		t.Fatalf("first a: %d", got)
	}
	if got := send("a"); got != http.StatusTooManyRequests {
		t.Errorf("second a: %d, want 429", got)
	}
	if got := send("b"); got != http.StatusOK {
		t.Errorf("first b: %d, want 200", got)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	handler := RateLimit(0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	for i := 0; i < 5; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest("POST", "/auth/login", nil))
		if rr.Code != http.StatusNoContent {
			t.Fatalf("request %d: %d", i, rr.Code)
		}
	}
}

func TestLoggerRecordsRoutePattern(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	r := chi.NewRouter()
	r.Use(Logger(logger))
	r.Get("/admin/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest("GET", "/admin/users/42", nil))

	out := buf.String()
	if !strings.Contains(out, "route=/admin/users/{id}") {
		t.Errorf("log line missing route pattern: %s", out)
	}
	if !strings.Contains(out, "status=418") || !strings.Contains(out, "level=WARN") {
		t.Errorf("log line missing status/level: %s", out)
	}
}
