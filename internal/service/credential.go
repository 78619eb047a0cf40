package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/weatherhub/weatherhub/internal/model"
	"github.com/weatherhub/weatherhub/internal/store"
	"github.com/weatherhub/weatherhub/internal/telemetry"
)

// CredentialStore is the slice of the store the verifier needs.
type CredentialStore interface {
	GetAPIKeyByHash(ctx context.Context, hash string) (*model.APIKey, error)
	GetUser(ctx context.Context, id int64) (*model.User, error)
	ConsumeQuota(ctx context.Context, id int64, now time.Time) (int64, error)
}

// CredentialVerifier authenticates API keys and charges one unit of quota per
// successful verification.
type CredentialVerifier struct {
	store CredentialStore
	now   func() time.Time
}

func NewCredentialVerifier(s CredentialStore) *CredentialVerifier {
	return &CredentialVerifier{store: s, now: time.Now}
}

// Verify resolves token to its key and owning user, then atomically consumes
// one unit of quota. The returned key reflects the post-decrement state.
//
// Errors: ErrUnauthorized for an unknown key, ErrForbidden for an inactive
// key or owner, ErrQuotaExceeded when no quota is left (including when a
// concurrent caller took the last unit).
func (v *CredentialVerifier) Verify(ctx context.Context, token string) (*model.APIKey, *model.User, error) {
	key, user, err := v.verify(ctx, token)
	telemetry.CredentialVerificationsTotal.WithLabelValues(resultLabel(err)).Inc()
	if err == nil {
		telemetry.QuotaConsumedTotal.Inc()
	}
	return key, user, err
}

func (v *CredentialVerifier) verify(ctx context.Context, token string) (*model.APIKey, *model.User, error) {
	if token == "" {
		return nil, nil, ErrUnauthorized
	}

	key, err := v.store.GetAPIKeyByHash(ctx, store.HashAPIKey(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrUnauthorized
		}
		return nil, nil, fmt.Errorf("load api key: %w", err)
	}

	if !key.IsActive {
		return nil, nil, ErrForbidden
	}
	if key.RemainingQuota <= 0 {
		return nil, nil, ErrQuotaExceeded
	}

	// A disabled owner must not burn quota, so check before decrementing.
	user, err := v.store.GetUser(ctx, key.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrForbidden
		}
		return nil, nil, fmt.Errorf("load key owner: %w", err)
	}
	if !user.IsActive {
		return nil, nil, ErrForbidden
	}

	now := v.now().UTC()
	remaining, err := v.store.ConsumeQuota(ctx, key.ID, now)
	if err != nil {
		if errors.Is(err, store.ErrQuotaExhausted) {
			return nil, nil, ErrQuotaExceeded
		}
		return nil, nil, fmt.Errorf("consume quota: %w", err)
	}

	key.RemainingQuota = remaining
	key.LastUsedAt = &now
	return key, user, nil
}
