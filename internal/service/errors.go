package service

import "errors"

// Verification errors. Handlers map them onto HTTP statuses; they are never
// retried.
var (
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrQuotaExceeded = errors.New("quota exceeded")
	ErrMalformed     = errors.New("malformed request")
)
