package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/weatherhub/weatherhub/internal/model"
	"github.com/weatherhub/weatherhub/internal/service"
)

// APIKeyHeader carries the opaque credential on quota-gated routes.
const APIKeyHeader = "X-API-KEY"

type contextKeyAuth string

const (
	apiKeyCtxKey contextKeyAuth = "api_key"
	userCtxKey   contextKeyAuth = "user"
)

// Verifier is implemented by service.CredentialVerifier.
type Verifier interface {
	Verify(ctx context.Context, token string) (*model.APIKey, *model.User, error)
}

// SessionAuthenticator is implemented by service.AuthService.
type SessionAuthenticator interface {
	Authenticate(ctx context.Context, token string) (*model.User, error)
}

// RequireAPIKey verifies the X-API-KEY header, consuming one unit of quota.
// On success the key and its owner are attached to the request context.
func RequireAPIKey(v Verifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, user, err := v.Verify(r.Context(), r.Header.Get(APIKeyHeader))
			if err != nil {
				status, msg := authErrorStatus(err)
				if status == http.StatusInternalServerError {
					logger.Error("api key verification failed", "error", err, "request_id", RequestIDFromContext(r.Context()))
				}
				writeAuthError(w, status, msg)
				return
			}

			ctx := context.WithValue(r.Context(), apiKeyCtxKey, key)
			ctx = context.WithValue(ctx, userCtxKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSession validates the Bearer session token and attaches the current
// user to the request context.
func RequireSession(auth SessionAuthenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || token == "" {
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeAuthError(w, http.StatusUnauthorized, "Authentication required. Provide a Bearer token.")
				return
			}

			user, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				status, msg := authErrorStatus(err)
				switch status {
				case http.StatusUnauthorized:
					w.Header().Set("WWW-Authenticate", "Bearer")
				case http.StatusInternalServerError:
					logger.Error("session authentication failed", "error", err, "request_id", RequestIDFromContext(r.Context()))
				}
				writeAuthError(w, status, msg)
				return
			}

			ctx := context.WithValue(r.Context(), userCtxKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects requests whose user does not hold role. It must be used
// after RequireSession or RequireAPIKey.
func RequireRole(role model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := GetUser(r.Context())
			if user == nil {
				writeAuthError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			if user.Role != role {
				writeAuthError(w, http.StatusForbidden, "Insufficient permissions: "+string(role)+" role required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetUser returns the authenticated user, or nil for unauthenticated requests.
func GetUser(ctx context.Context) *model.User {
	if u, ok := ctx.Value(userCtxKey).(*model.User); ok {
		return u
	}
	return nil
}

// GetAPIKey returns the verified API key, or nil when the request was not
// authenticated by key.
func GetAPIKey(ctx context.Context) *model.APIKey {
	if k, ok := ctx.Value(apiKeyCtxKey).(*model.APIKey); ok {
		return k
	}
	return nil
}

// WithUser returns a copy of ctx carrying u. Used by tests and in-process callers.
func WithUser(ctx context.Context, u *model.User) context.Context {
	return context.WithValue(ctx, userCtxKey, u)
}

func authErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized, "Invalid or missing credentials"
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "Credential or account is disabled"
	case errors.Is(err, service.ErrQuotaExceeded):
		return http.StatusTooManyRequests, "API key quota exhausted"
	case errors.Is(err, service.ErrMalformed):
		return http.StatusBadRequest, "Malformed credential"
	default:
		return http.StatusInternalServerError, "Authentication error"
	}
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(model.ErrorResponse{
		Error: model.ErrorDetail{Code: status, Message: message},
	})
}
