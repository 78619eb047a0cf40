package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/weatherhub/weatherhub/internal/model"
	"github.com/weatherhub/weatherhub/internal/store"
)

// keyDisplayChars is how many random characters follow the prefix in the
// stored display prefix.
const keyDisplayChars = 8

// GenerateAPIKey returns a fresh raw key of the form <prefix><64 hex chars>
// together with its display prefix.
func GenerateAPIKey(prefix string) (raw, displayPrefix string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("generate key: %w", err)
	}
	raw = prefix + hex.EncodeToString(b)
	return raw, raw[:len(prefix)+keyDisplayChars], nil
}

// KeyService issues API keys for existing users.
type KeyService struct {
	store  *store.Store
	prefix string
}

func NewKeyService(s *store.Store, prefix string) *KeyService {
	return &KeyService{store: s, prefix: prefix}
}

// Issue creates a key for userID with the given starting quota. The raw key
// is returned once and cannot be recovered later.
func (s *KeyService) Issue(ctx context.Context, userID, quota int64, description string) (*model.APIKey, string, error) {
	if quota < 0 {
		return nil, "", fmt.Errorf("%w: quota must not be negative", ErrMalformed)
	}
	if utf8.RuneCountInString(description) > model.MaxKeyDescriptionLen {
		return nil, "", fmt.Errorf("%w: description exceeds %d characters", ErrMalformed, model.MaxKeyDescriptionLen)
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, "", fmt.Errorf("user %d: %w", userID, store.ErrNotFound)
		}
		return nil, "", err
	}

	raw, display, err := GenerateAPIKey(s.prefix)
	if err != nil {
		return nil, "", err
	}
	key := &model.APIKey{
		UserID:         userID,
		KeyHash:        store.HashAPIKey(raw),
		KeyPrefix:      display,
		RemainingQuota: quota,
		IsActive:       true,
		Description:    description,
	}
	if err := s.store.CreateAPIKey(ctx, key); err != nil {
		return nil, "", err
	}
	return key, raw, nil
}
