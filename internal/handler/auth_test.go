package handler

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/weatherhub/weatherhub/internal/model"
	"github.com/weatherhub/weatherhub/internal/store"
)

func TestRegister(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "POST", "/auth/register", toJSON(t, map[string]string{
		"username": "alice",
		"password": testPassword,
		"role":     "admin",
	}))
	assertStatus(t, rr, http.StatusCreated)

	var u map[string]interface{}
	decodeJSON(t, rr, &u)
	if u["username"] != "alice" {
		t.Errorf("username = %v", u["username"])
	}
	if u["role"] != string(model.RoleUser) {
		t.Errorf("role = %v, want user regardless of request body", u["role"])
	}
	if _, ok := u["password_hash"]; ok {
		t.Error("password hash must not be serialized")
	}

	rr = env.do(t, "POST", "/auth/register", toJSON(t, map[string]string{
		"username": "alice",
		"password": testPassword,
	}))
	assertStatus(t, rr, http.StatusConflict)
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body string
	}{
		{"short username", `{"username":"ab","password":"supersecret"}`},
		{"short password", `{"username":"bob","password":"123"}`},
		{"invalid json", `{"username":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, "POST", "/auth/register", strings.NewReader(tt.body))
			assertStatus(t, rr, http.StatusBadRequest)
		})
	}
}

func TestLoginJSON(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "carol", model.RoleUser)

	rr := env.do(t, "POST", "/auth/login", toJSON(t, map[string]string{
		"username": "carol",
		"password": testPassword,
	}))
	assertStatus(t, rr, http.StatusOK)

	var tok model.TokenResponse
	decodeJSON(t, rr, &tok)
	if tok.AccessToken == "" || tok.TokenType != "bearer" {
		t.Errorf("token response = %+v", tok)
	}
	if tok.ExpiresIn < 3590 || tok.ExpiresIn > 3600 {
		t.Errorf("expires_in = %d, want about an hour", tok.ExpiresIn)
	}

	me := env.doAuth(t, tok.AccessToken, "GET", "/auth/me", nil)
	assertStatus(t, me, http.StatusOK)
	var u map[string]interface{}
	decodeJSON(t, me, &u)
	if u["username"] != "carol" {
		t.Errorf("me = %v", u)
	}
}

func TestLoginForm(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "dave", model.RoleUser)

	body := strings.NewReader("username=dave&password=" + testPassword)
	rr := env.do(t, "POST", "/auth/login", body, "Content-Type", "application/x-www-form-urlencoded")
	assertStatus(t, rr, http.StatusOK)
}

func TestLoginFailures(t *testing.T) {
	env := newTestEnv(t)
	u := env.seedUser(t, "erin", model.RoleUser)

	rr := env.do(t, "POST", "/auth/login", toJSON(t, map[string]string{
		"username": "erin",
		"password": "wrong-password",
	}))
	assertStatus(t, rr, http.StatusUnauthorized)

	rr = env.do(t, "POST", "/auth/login", toJSON(t, map[string]string{
		"username": "nobody",
		"password": testPassword,
	}))
	assertStatus(t, rr, http.StatusUnauthorized)

	rr = env.do(t, "POST", "/auth/login", toJSON(t, map[string]string{"username": "erin"}))
	assertStatus(t, rr, http.StatusBadRequest)

	inactive := false
	if _, err := env.store.UpdateUser(context.Background(), u.ID, store.UserPatch{IsActive: &inactive}); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	rr = env.do(t, "POST", "/auth/login", toJSON(t, map[string]string{
		"username": "erin",
		"password": testPassword,
	}))
	assertStatus(t, rr, http.StatusForbidden)
}

func TestMeRequiresToken(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/auth/me", nil)
	assertStatus(t, rr, http.StatusUnauthorized)
	if rr.Header().Get("WWW-Authenticate") != "Bearer" {
		t.Errorf("WWW-Authenticate = %q", rr.Header().Get("WWW-Authenticate"))
	}

	rr = env.doAuth(t, "not-a-token", "GET", "/auth/me", nil)
	assertStatus(t, rr, http.StatusUnauthorized)
}
