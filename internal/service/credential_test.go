package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/weatherhub/weatherhub/internal/model"
	"github.com/weatherhub/weatherhub/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// seedKey creates an active user owning one key with the given quota and
// returns the raw key.
func seedKey(t *testing.T, s *store.Store, quota int64) (string, *model.APIKey, *model.User) {
	t.Helper()
	ctx := context.Background()
	u := &model.User{Username: "owner", PasswordHash: "x", Role: model.RoleUser, IsActive: true}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	key, raw, err := NewKeyService(s, "sk-").Issue(ctx, u.ID, quota, "test key")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return raw, key, u
}

func TestVerifyDecrementsQuota(t *testing.T) {
	s := newTestStore(t)
	raw, key, owner := seedKey(t, s, 2)
	v := NewCredentialVerifier(s)
	ctx := context.Background()

	for want := int64(1); want >= 0; want-- {
		got, user, err := v.Verify(ctx, raw)
		if err != nil {
			t.Fatalf("Verify: %v", err)
		}
		if got.ID != key.ID || user.ID != owner.ID {
			t.Errorf("got key %d user %d", got.ID, user.ID)
		}
		if got.RemainingQuota != want {
			t.Errorf("RemainingQuota = %d, want %d", got.RemainingQuota, want)
		}
		if got.LastUsedAt == nil {
			t.Error("LastUsedAt not set")
		}
	}

	if _, _, err := v.Verify(ctx, raw); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("third call: got %v, want ErrQuotaExceeded", err)
	}

	stored, _ := s.GetAPIKey(ctx, key.ID)
	if stored.RemainingQuota != 0 {
		t.Errorf("stored quota = %d, want 0", stored.RemainingQuota)
	}
}

func TestVerifyUnknownKey(t *testing.T) {
	s := newTestStore(t)
	seedKey(t, s, 5)
	v := NewCredentialVerifier(s)

	for _, tok := range []string{"", "sk-doesnotexist"} {
		if _, _, err := v.Verify(context.Background(), tok); !errors.Is(err, ErrUnauthorized) {
			t.Errorf("Verify(%q): got %v, want ErrUnauthorized", tok, err)
		}
	}
}

func TestVerifyInactiveKey(t *testing.T) {
	s := newTestStore(t)
	raw, key, _ := seedKey(t, s, 5)
	ctx := context.Background()

	inactive := false
	if _, err := s.UpdateAPIKey(ctx, key.ID, store.APIKeyPatch{IsActive: &inactive}); err != nil {
		t.Fatalf("UpdateAPIKey: %v", err)
	}

	v := NewCredentialVerifier(s)
	if _, _, err := v.Verify(ctx, raw); !errors.Is(err, ErrForbidden) {
		t.Fatalf("got %v, want ErrForbidden", err)
	}
	stored, _ := s.GetAPIKey(ctx, key.ID)
	if stored.RemainingQuota != 5 {
		t.Errorf("quota changed to %d", stored.RemainingQuota)
	}
}

func TestVerifyInactiveOwnerDoesNotConsume(t *testing.T) {
	s := newTestStore(t)
	raw, key, owner := seedKey(t, s, 5)
	ctx := context.Background()

	inactive := false
	if _, err := s.UpdateUser(ctx, owner.ID, store.UserPatch{IsActive: &inactive}); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}

	v := NewCredentialVerifier(s)
	if _, _, err := v.Verify(ctx, raw); !errors.Is(err, ErrForbidden) {
		t.Fatalf("got %v, want ErrForbidden", err)
	}
	stored, _ := s.GetAPIKey(ctx, key.ID)
	if stored.RemainingQuota != 5 {
		t.Errorf("quota changed to %d", stored.RemainingQuota)
	}
}

func TestVerifyZeroQuota(t *testing.T) {
	s := newTestStore(t)
	raw, _, _ := seedKey(t, s, 0)

	v := NewCredentialVerifier(s)
	if _, _, err := v.Verify(context.Background(), raw); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("got %v, want ErrQuotaExceeded", err)
	}
}

func TestVerifyConcurrentSingleUnit(t *testing.T) {
	s := newTestStore(t)
	raw, key, _ := seedKey(t, s, 1)
	v := NewCredentialVerifier(s)

	const callers = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		exceeded int
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, _, err := v.Verify(context.Background(), raw)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrQuotaExceeded):
				exceeded++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if ok != 1 {
		t.Errorf("successes = %d, want exactly 1", ok)
	}
	if exceeded != callers-1 {
		t.Errorf("quota exceeded = %d, want %d", exceeded, callers-1)
	}
	stored, _ := s.GetAPIKey(context.Background(), key.ID)
	if stored.RemainingQuota != 0 {
		t.Errorf("stored quota = %d, want 0", stored.RemainingQuota)
	}
}

// racingStore reports quota on lookup but loses the decrement, as when a
// concurrent caller takes the last unit between check and update.
type racingStore struct {
	key  model.APIKey
	user model.User
}

func (r *racingStore) GetAPIKeyByHash(context.Context, string) (*model.APIKey, error) {
	k := r.key
	return &k, nil
}

func (r *racingStore) GetUser(context.Context, int64) (*model.User, error) {
	u := r.user
	return &u, nil
}

func (r *racingStore) ConsumeQuota(context.Context, int64, time.Time) (int64, error) {
	return 0, store.ErrQuotaExhausted
}

func TestVerifyLostRaceIsQuotaExceeded(t *testing.T) {
	rs := &racingStore{
		key:  model.APIKey{ID: 1, UserID: 1, RemainingQuota: 1, IsActive: true},
		user: model.User{ID: 1, Username: "u", Role: model.RoleUser, IsActive: true},
	}
	v := NewCredentialVerifier(rs)
	if _, _, err := v.Verify(context.Background(), "sk-anything"); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("got %v, want ErrQuotaExceeded", err)
	}
}

func TestGenerateAPIKey(t *testing.T) {
	raw, display, err := GenerateAPIKey("sk-")
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}
	if len(raw) != 3+64 {
		t.Errorf("raw key length = %d", len(raw))
	}
	if display != raw[:11] {
		t.Errorf("display prefix = %q, want %q", display, raw[:11])
	}
	raw2, _, _ := GenerateAPIKey("sk-")
	if raw == raw2 {
		t.Error("keys should be random")
	}
}

func TestKeyServiceIssueValidation(t *testing.T) {
	s := newTestStore(t)
	_, _, owner := seedKey(t, s, 1)
	ks := NewKeyService(s, "sk-")
	ctx := context.Background()

	if _, _, err := ks.Issue(ctx, owner.ID, -1, ""); !errors.Is(err, ErrMalformed) {
		t.Errorf("negative quota: got %v", err)
	}
	if _, _, err := ks.Issue(ctx, 9999, 10, ""); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown user: got %v", err)
	}
	long := make([]rune, model.MaxKeyDescriptionLen+1)
	for i := range long {
		long[i] = 'x'
	}
	if _, _, err := ks.Issue(ctx, owner.ID, 10, string(long)); !errors.Is(err, ErrMalformed) {
		t.Errorf("long description: got %v", err)
	}
}
