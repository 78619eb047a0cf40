package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/weatherhub/weatherhub/internal/model"
	"github.com/weatherhub/weatherhub/internal/telemetry"
)

const tokenIssuer = "weatherhub"

// SessionClaims is the payload of a session token. Subject carries the
// username.
type SessionClaims struct {
	Role model.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenCodec issues and verifies HMAC-signed session tokens. The algorithm
// is fixed at construction; tokens whose header names any other algorithm are
// rejected before the signature is looked at.
type TokenCodec struct {
	secret []byte
	method *jwt.SigningMethodHMAC
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenCodec returns a codec for one of HS256, HS384 or HS512.
func NewTokenCodec(secret, algorithm string, ttl time.Duration) (*TokenCodec, error) {
	if secret == "" {
		return nil, errors.New("token secret must not be empty")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token ttl must be positive, got %s", ttl)
	}

	var method *jwt.SigningMethodHMAC
	switch algorithm {
	case "HS256":
		method = jwt.SigningMethodHS256
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("unsupported token algorithm %q", algorithm)
	}

	return &TokenCodec{
		secret: []byte(secret),
		method: method,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Algorithm returns the configured JWS algorithm name.
func (c *TokenCodec) Algorithm() string {
	return c.method.Alg()
}

// TTL returns the lifetime of issued tokens.
func (c *TokenCodec) TTL() time.Duration {
	return c.ttl
}

// Issue signs a new session token for username.
func (c *TokenCodec) Issue(username string, role model.Role) (string, time.Time, error) {
	if username == "" {
		return "", time.Time{}, fmt.Errorf("%w: empty subject", ErrMalformed)
	}
	now := c.now()
	exp := now.Add(c.ttl)
	claims := SessionClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			Issuer:    tokenIssuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(c.method, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify checks the header algorithm, signature and expiry of tokenStr and
// returns its claims.
func (c *TokenCodec) Verify(tokenStr string) (*SessionClaims, error) {
	claims, err := c.verify(tokenStr)
	telemetry.TokenVerificationsTotal.WithLabelValues(resultLabel(err)).Inc()
	return claims, err
}

func (c *TokenCodec) verify(tokenStr string) (*SessionClaims, error) {
	if tokenStr == "" {
		return nil, ErrUnauthorized
	}

	// Compare the declared algorithm before trusting anything else in the
	// token, including "none" and asymmetric algorithms.
	unverified, _, err := jwt.NewParser().ParseUnverified(tokenStr, &SessionClaims{})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenUnverifiable) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if unverified.Method == nil || unverified.Method.Alg() != c.method.Alg() {
		return nil, ErrUnauthorized
	}

	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims,
		func(*jwt.Token) (interface{}, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrUnauthorized
	}

	if claims.Subject == "" {
		return nil, ErrUnauthorized
	}
	if !claims.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrMalformed, claims.Role)
	}
	return claims, nil
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return telemetry.ResultOK
	case errors.Is(err, ErrUnauthorized):
		return telemetry.ResultUnauthorized
	case errors.Is(err, ErrForbidden):
		return telemetry.ResultForbidden
	case errors.Is(err, ErrQuotaExceeded):
		return telemetry.ResultQuotaExceeded
	case errors.Is(err, ErrMalformed):
		return telemetry.ResultMalformed
	default:
		return telemetry.ResultError
	}
}
