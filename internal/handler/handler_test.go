package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/weatherhub/weatherhub/internal/model"
	"github.com/weatherhub/weatherhub/internal/openapi"
	"github.com/weatherhub/weatherhub/internal/server/middleware"
	"github.com/weatherhub/weatherhub/internal/service"
	"github.com/weatherhub/weatherhub/internal/store"
)

const (
	testJWTSecret = "test-secret-for-handler-tests"
	testPassword  = "supersecretpassword"
	testKeyPrefix = "sk-"
)

// stubCrawler returns canned records for any city.
type stubCrawler struct {
	records []model.WeatherRecord
	err     error
}

func (c *stubCrawler) CrawlRange(context.Context, string, time.Time, time.Time) ([]model.WeatherRecord, error) {
	return c.records, c.err
}

// testEnv holds shared state for handler integration tests.
type testEnv struct {
	store   *store.Store
	auth    *service.AuthService
	keys    *service.KeyService
	crawler *stubCrawler
	router  chi.Router
}

// newTestEnv creates a fresh environment with an in-memory store and a Chi
// router carrying the same auth middleware as the real server.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	s, err := store.NewStore("") // in-memory SQLite
	if err != nil {
		t.Fatalf("store.NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	codec, err := service.NewTokenCodec(testJWTSecret, "HS256", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	authSvc := service.NewAuthService(s, codec)
	keySvc := service.NewKeyService(s, testKeyPrefix)
	crawler := &stubCrawler{}
	weatherSvc := service.NewWeatherService(s, crawler, logger)
	verifier := service.NewCredentialVerifier(s)

	authH := NewAuthHandler(authSvc)
	adminH := NewAdminHandler(s, authSvc, keySvc, 100)
	agentH := NewAgentHandler(s, weatherSvc)
	weatherH := NewWeatherHandler(weatherSvc)
	sysH := NewSystemHandler(s, "test", []string{"data_get_range"}, openapi.Generate("http://localhost", "test"))

	r := chi.NewRouter()
	r.Get("/", sysH.Root)
	r.Get("/healthz", sysH.Health)
	r.Get("/readyz", sysH.Ready)
	r.Get("/mcp/tools", sysH.Tools)
	r.Get("/openapi.json", sysH.OpenAPI)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authH.Register)
		r.Post("/login", authH.Login)
		r.With(middleware.RequireSession(authSvc, logger)).Get("/me", authH.Me)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.RequireSession(authSvc, logger))
		r.Use(middleware.RequireRole(model.RoleAdmin))
		r.Get("/users", adminH.ListUsers)
		r.Post("/users", adminH.CreateUser)
		r.Get("/users/{id}", adminH.GetUser)
		r.Patch("/users/{id}", adminH.UpdateUser)
		r.Delete("/users/{id}", adminH.DeleteUser)
		r.Get("/api-keys", adminH.ListAPIKeys)
		r.Post("/api-keys", adminH.CreateAPIKey)
		r.Patch("/api-keys/{id}", adminH.UpdateAPIKey)
		r.Delete("/api-keys/{id}", adminH.DeleteAPIKey)
	})

	r.Route("/agent", func(r chi.Router) {
		r.Use(middleware.RequireSession(authSvc, logger))
		r.Use(middleware.RequireRole(model.RoleAdmin))
		r.Get("/configs", agentH.ListConfigs)
		r.Post("/configs", agentH.CreateConfig)
		r.Get("/configs/{key}", agentH.GetConfig)
		r.Put("/configs/{key}", agentH.UpdateConfig)
		r.Delete("/configs/{key}", agentH.DeleteConfig)
		r.Post("/trigger-crawler", agentH.TriggerCrawler)
	})

	r.Route("/weather", func(r chi.Router) {
		r.Use(middleware.RequireAPIKey(verifier, logger))
		r.Get("/data", weatherH.Data)
		r.Get("/stats", weatherH.Stats)
	})

	return &testEnv{
		store:   s,
		auth:    authSvc,
		keys:    keySvc,
		crawler: crawler,
		router:  r,
	}
}

// seedUser creates an active account with testPassword.
func (e *testEnv) seedUser(t *testing.T, username string, role model.Role) *model.User {
	t.Helper()
	u, err := e.auth.CreateUser(context.Background(), username, testPassword, role)
	if err != nil {
		t.Fatalf("seedUser: %v", err)
	}
	return u
}

// seedAdmin creates the default admin account and returns it with a session token.
func (e *testEnv) seedAdmin(t *testing.T) (*model.User, string) {
	t.Helper()
	u := e.seedUser(t, "admin", model.RoleAdmin)
	return u, e.login(t, u.Username)
}

func (e *testEnv) login(t *testing.T, username string) string {
	t.Helper()
	token, _, err := e.auth.Login(context.Background(), username, testPassword)
	if err != nil {
		t.Fatalf("login %s: %v", username, err)
	}
	return token
}

// seedKey issues an API key for u and returns the raw key.
func (e *testEnv) seedKey(t *testing.T, u *model.User, quota int64) (string, *model.APIKey) {
	t.Helper()
	key, raw, err := e.keys.Issue(context.Background(), u.ID, quota, "test")
	if err != nil {
		t.Fatalf("seedKey: %v", err)
	}
	return raw, key
}

// do executes an HTTP request against the test router and returns the recorder.
func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) doAuth(t *testing.T, token, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, method, path, body, "Authorization", "Bearer "+token)
}

func (e *testEnv) doAPIKey(t *testing.T, key, path string) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, "GET", path, nil, middleware.APIKeyHeader, key)
}

func toJSON(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		t.Fatalf("toJSON: %v", err)
	}
	return buf
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Errorf("status = %d, want %d; body = %s", rr.Code, want, rr.Body.String())
	}
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response: %v; body = %s", err, rr.Body.String())
	}
}

func errorMessage(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var resp model.ErrorResponse
	decodeJSON(t, rr, &resp)
	return resp.Error.Message
}
