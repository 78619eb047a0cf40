package store

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a requested resource does not exist in the store.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when an insert or update violates a unique constraint.
	ErrConflict = errors.New("already exists")

	// ErrQuotaExhausted is returned by ConsumeQuota when the conditional
	// decrement matched no row: the key has no quota left or was deactivated.
	ErrQuotaExhausted = errors.New("quota exhausted")
)

// isUniqueViolation reports whether err is a unique-constraint failure from
// either supported dialect.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique constraint") ||
		strings.Contains(lower, "duplicate key")
}
