package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/weatherhub/weatherhub/internal/model"
)

// Dialect names the SQL backend behind a Store.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// Store persists users, API keys, settings and weather records. It is created
// once at startup and shared by every request; each method scopes its own
// transaction.
type Store struct {
	db      *sqlx.DB
	dialect Dialect
}

// NewStore creates a SQLite-backed store under dataDir. Pass empty string for
// in-memory.
func NewStore(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == "" {
		dsn = ":memory:?_journal_mode=WAL"
	} else {
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = filepath.Join(dataDir, "weatherhub.db") + "?_journal_mode=WAL&_busy_timeout=5000"
	}
	return Open(DialectSQLite, dsn)
}

// Open connects to the given dialect and runs migrations. PostgreSQL DSNs are
// passed to the pgx stdlib driver unchanged.
func Open(dialect Dialect, dsn string) (*Store, error) {
	driver := "sqlite"
	if dialect == DialectPostgres {
		driver = "pgx"
	}

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}

	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

		// Enable foreign keys (off by default in SQLite).
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	s := &Store{db: db, dialect: dialect}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate %s database: %w", dialect, err)
	}
	return s, nil
}

// NewWithDB wraps an existing connection without migrating it.
func NewWithDB(db *sqlx.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// Dialect reports which SQL backend the store talks to.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// DB exposes the connection pool for metrics collection.
func (s *Store) DB() *sql.DB {
	return s.db.DB
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// insertReturningID runs a named INSERT ending in RETURNING id. pgx does not
// implement LastInsertId, so both dialects go through RETURNING.
func (s *Store) insertReturningID(ctx context.Context, q string, arg interface{}) (int64, error) {
	query, args, err := sqlx.Named(q, arg)
	if err != nil {
		return 0, err
	}
	var id int64
	if err := s.db.GetContext(ctx, &id, s.db.Rebind(query), args...); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Store) execOne(ctx context.Context, q string, args ...interface{}) error {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(q), args...)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

// CreateUser inserts a new user. ID, CreatedAt and UpdatedAt are populated
// after a successful insert. A duplicate username yields ErrConflict.
func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	const q = `INSERT INTO users
		(username, password_hash, role, is_active, created_at, updated_at)
		VALUES
		(:username, :password_hash, :role, :is_active, :created_at, :updated_at)
		RETURNING id`

	id, err := s.insertReturningID(ctx, q, u)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}
	u.ID = id
	return nil
}

// GetUser returns a user by ID.
func (s *Store) GetUser(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	if err := s.db.GetContext(ctx, &u, s.db.Rebind("SELECT * FROM users WHERE id = ?"), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// GetUserByUsername returns a user by its unique username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	var u model.User
	if err := s.db.GetContext(ctx, &u, s.db.Rebind("SELECT * FROM users WHERE username = ?"), username); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user by username: %w", err)
	}
	return &u, nil
}

// ListUsers returns a page of users ordered by ID.
func (s *Store) ListUsers(ctx context.Context, offset, limit int) ([]model.User, error) {
	users := []model.User{}
	if err := s.db.SelectContext(ctx, &users,
		s.db.Rebind("SELECT * FROM users ORDER BY id LIMIT ? OFFSET ?"), limit, offset); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// HasAnyAdmin reports whether at least one admin account exists.
func (s *Store) HasAnyAdmin(ctx context.Context) (bool, error) {
	var count int
	if err := s.db.GetContext(ctx, &count,
		s.db.Rebind("SELECT COUNT(*) FROM users WHERE role = ?"), model.RoleAdmin); err != nil {
		return false, fmt.Errorf("count admins: %w", err)
	}
	return count > 0, nil
}

// UserPatch names the user columns an update changes. Nil fields keep the
// stored value, so concurrent updates to other columns are not overwritten.
type UserPatch struct {
	PasswordHash *string
	Role         *model.Role
	IsActive     *bool
}

const updateUserSQL = `UPDATE users
	SET password_hash = COALESCE(?, password_hash),
		role = COALESCE(?, role),
		is_active = COALESCE(?, is_active),
		updated_at = ?
	WHERE id = ?
	RETURNING *`

// UpdateUser applies p to the user and returns the stored row.
func (s *Store) UpdateUser(ctx context.Context, id int64, p UserPatch) (*model.User, error) {
	var role *string
	if p.Role != nil {
		r := string(*p.Role)
		role = &r
	}
	var u model.User
	err := s.db.GetContext(ctx, &u, s.db.Rebind(updateUserSQL),
		p.PasswordHash, role, p.IsActive, time.Now().UTC(), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return &u, nil
}

// DeleteUser removes a user. Their API keys are removed by the cascade.
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	err := s.execOne(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete user: %w", err)
	}
	return err
}

// ---------------------------------------------------------------------------
// API Key management
// ---------------------------------------------------------------------------

// CreateAPIKey inserts a new API key record. The key_hash must already be set
// (use HashAPIKey). The ID and CreatedAt fields are populated after insert.
func (s *Store) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	key.CreatedAt = time.Now().UTC()

	const q = `INSERT INTO api_keys
		(user_id, key_hash, key_prefix, remaining_quota, is_active, description, created_at)
		VALUES
		(:user_id, :key_hash, :key_prefix, :remaining_quota, :is_active, :description, :created_at)
		RETURNING id`

	id, err := s.insertReturningID(ctx, q, key)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert api key: %w", err)
	}
	key.ID = id
	return nil
}

// GetAPIKey returns an API key by ID.
func (s *Store) GetAPIKey(ctx context.Context, id int64) (*model.APIKey, error) {
	var key model.APIKey
	if err := s.db.GetContext(ctx, &key, s.db.Rebind("SELECT * FROM api_keys WHERE id = ?"), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get api key: %w", err)
	}
	return &key, nil
}

// GetAPIKeyByHash looks up an API key by its SHA-256 hash.
func (s *Store) GetAPIKeyByHash(ctx context.Context, hash string) (*model.APIKey, error) {
	var key model.APIKey
	if err := s.db.GetContext(ctx, &key, s.db.Rebind("SELECT * FROM api_keys WHERE key_hash = ?"), hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get api key by hash: %w", err)
	}
	return &key, nil
}

// ListAPIKeys returns a page of API keys, newest first. A non-zero userID
// restricts the result to that user's keys.
func (s *Store) ListAPIKeys(ctx context.Context, userID int64, offset, limit int) ([]model.APIKey, error) {
	q := "SELECT * FROM api_keys"
	var args []interface{}
	if userID != 0 {
		q += " WHERE user_id = ?"
		args = append(args, userID)
	}
	q += " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	keys := []model.APIKey{}
	if err := s.db.SelectContext(ctx, &keys, s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return keys, nil
}

// APIKeyPatch names the key columns an update changes. Nil fields keep the
// stored value; in particular remaining_quota is only written when set, so
// units taken by ConsumeQuota in the meantime stay consumed.
type APIKeyPatch struct {
	RemainingQuota *int64
	IsActive       *bool
	Description    *string
}

const updateAPIKeySQL = `UPDATE api_keys
	SET remaining_quota = COALESCE(?, remaining_quota),
		is_active = COALESCE(?, is_active),
		description = COALESCE(?, description)
	WHERE id = ?
	RETURNING *`

// UpdateAPIKey applies p to the key and returns the stored row.
func (s *Store) UpdateAPIKey(ctx context.Context, id int64, p APIKeyPatch) (*model.APIKey, error) {
	var key model.APIKey
	err := s.db.GetContext(ctx, &key, s.db.Rebind(updateAPIKeySQL),
		p.RemainingQuota, p.IsActive, p.Description, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update api key: %w", err)
	}
	return &key, nil
}

// RevokeAPIKeyByPrefix marks an active API key as inactive by its prefix.
func (s *Store) RevokeAPIKeyByPrefix(ctx context.Context, prefix string) error {
	err := s.execOne(ctx,
		"UPDATE api_keys SET is_active = FALSE WHERE key_prefix = ? AND is_active = TRUE", prefix)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("revoke api key by prefix: %w", err)
	}
	return err
}

// DeleteAPIKey removes an API key by ID.
func (s *Store) DeleteAPIKey(ctx context.Context, id int64) error {
	err := s.execOne(ctx, "DELETE FROM api_keys WHERE id = ?", id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete api key: %w", err)
	}
	return err
}

const consumeQuotaSQL = `UPDATE api_keys
	SET remaining_quota = remaining_quota - 1, last_used_at = ?
	WHERE id = ? AND is_active = TRUE AND remaining_quota > 0
	RETURNING remaining_quota`

// ConsumeQuota atomically takes one unit of quota from the key and stamps
// last_used_at. The guard and the decrement are a single statement, so
// concurrent callers can never drive the counter below zero. When no row
// matches, ErrQuotaExhausted is returned and nothing changes.
func (s *Store) ConsumeQuota(ctx context.Context, id int64, now time.Time) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin consume quota: %w", err)
	}
	defer tx.Rollback()

	var remaining int64
	if err := tx.GetContext(ctx, &remaining, s.db.Rebind(consumeQuotaSQL), now.UTC(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrQuotaExhausted
		}
		return 0, fmt.Errorf("consume quota: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit consume quota: %w", err)
	}
	return remaining, nil
}

// ---------------------------------------------------------------------------
// Settings
// ---------------------------------------------------------------------------

// CreateSetting inserts a new key/value row. A duplicate key yields ErrConflict.
func (s *Store) CreateSetting(ctx context.Context, st *model.Setting) error {
	now := time.Now().UTC()
	st.CreatedAt = now
	st.UpdatedAt = now

	const q = `INSERT INTO settings (key, value, description, created_at, updated_at)
		VALUES (:key, :value, :description, :created_at, :updated_at)
		RETURNING id`

	id, err := s.insertReturningID(ctx, q, st)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert setting: %w", err)
	}
	st.ID = id
	return nil
}

// GetSetting returns the setting stored under key.
func (s *Store) GetSetting(ctx context.Context, key string) (*model.Setting, error) {
	var st model.Setting
	if err := s.db.GetContext(ctx, &st, s.db.Rebind("SELECT * FROM settings WHERE key = ?"), key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get setting: %w", err)
	}
	return &st, nil
}

// ListSettings returns a page of settings ordered by key.
func (s *Store) ListSettings(ctx context.Context, offset, limit int) ([]model.Setting, error) {
	settings := []model.Setting{}
	if err := s.db.SelectContext(ctx, &settings,
		s.db.Rebind("SELECT * FROM settings ORDER BY key LIMIT ? OFFSET ?"), limit, offset); err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	return settings, nil
}

// UpdateSetting writes value and description for an existing key.
func (s *Store) UpdateSetting(ctx context.Context, st *model.Setting) error {
	st.UpdatedAt = time.Now().UTC()
	err := s.execOne(ctx,
		"UPDATE settings SET value = ?, description = ?, updated_at = ? WHERE key = ?",
		st.Value, st.Description, st.UpdatedAt, st.Key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("update setting: %w", err)
	}
	return err
}

// DeleteSetting removes the setting stored under key.
func (s *Store) DeleteSetting(ctx context.Context, key string) error {
	err := s.execOne(ctx, "DELETE FROM settings WHERE key = ?", key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete setting: %w", err)
	}
	return err
}

// SeedDefaultSettings inserts model.DefaultSettings rows whose keys are not
// present yet. It returns the number of rows created.
func (s *Store) SeedDefaultSettings(ctx context.Context) (int, error) {
	created := 0
	for _, def := range model.DefaultSettings() {
		st := def
		err := s.CreateSetting(ctx, &st)
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

// ---------------------------------------------------------------------------
// Utility
// ---------------------------------------------------------------------------

// HashAPIKey returns the hex-encoded SHA-256 hash of a raw API key string.
func HashAPIKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}
