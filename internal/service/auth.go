package service

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/weatherhub/weatherhub/internal/model"
	"github.com/weatherhub/weatherhub/internal/store"
)

const (
	MinUsernameLen = 3
	MaxUsernameLen = 50
)

// AuthService handles registration, password login and session lookup.
type AuthService struct {
	store *store.Store
	codec *TokenCodec
}

func NewAuthService(s *store.Store, codec *TokenCodec) *AuthService {
	return &AuthService{store: s, codec: codec}
}

// Codec returns the token codec used for sessions.
func (s *AuthService) Codec() *TokenCodec {
	return s.codec
}

// ValidateUsername enforces the username length bounds.
func ValidateUsername(username string) error {
	n := utf8.RuneCountInString(username)
	if n < MinUsernameLen || n > MaxUsernameLen {
		return fmt.Errorf("%w: username must be %d-%d characters", ErrMalformed, MinUsernameLen, MaxUsernameLen)
	}
	return nil
}

// CreateUser validates input, hashes the password and persists a new active
// user. A taken username yields store.ErrConflict.
func (s *AuthService) CreateUser(ctx context.Context, username, password string, role model.Role) (*model.User, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrMalformed, role)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	u := &model.User{
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Register creates a self-service account. Public registration always yields
// the user role; admins are created by other admins or the CLI.
func (s *AuthService) Register(ctx context.Context, username, password string) (*model.User, error) {
	return s.CreateUser(ctx, username, password, model.RoleUser)
}

// Login checks the password and issues a session token.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, time.Time, error) {
	u, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", time.Time{}, ErrUnauthorized
		}
		return "", time.Time{}, fmt.Errorf("load user: %w", err)
	}
	if !CheckPassword(u.PasswordHash, password) {
		return "", time.Time{}, ErrUnauthorized
	}
	if !u.IsActive {
		return "", time.Time{}, ErrForbidden
	}
	return s.codec.Issue(u.Username, u.Role)
}

// Authenticate verifies a session token and loads the current state of its
// user. The role is taken from the database, not the token, so demotions take
// effect immediately.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*model.User, error) {
	claims, err := s.codec.Verify(token)
	if err != nil {
		return nil, err
	}
	u, err := s.store.GetUserByUsername(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !u.IsActive {
		return nil, ErrForbidden
	}
	return u, nil
}
