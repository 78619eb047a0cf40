package model

import "time"

// APIKey is a quota-bearing credential owned by a user. The raw key is never
// stored; only a SHA-256 hash and a short prefix for identification are
// persisted.
type APIKey struct {
	ID             int64      `json:"id" db:"id"`
	UserID         int64      `json:"user_id" db:"user_id"`
	KeyHash        string     `json:"-" db:"key_hash"`            // SHA-256 hash, never expose
	KeyPrefix      string     `json:"key_prefix" db:"key_prefix"` // "sk-" plus the first 8 chars
	RemainingQuota int64      `json:"remaining_quota" db:"remaining_quota"`
	IsActive       bool       `json:"is_active" db:"is_active"`
	Description    string     `json:"description" db:"description"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	LastUsedAt     *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
}

// MaxKeyDescriptionLen bounds APIKey.Description.
const MaxKeyDescriptionLen = 200
