// Package auth issues and verifies HS256 bearer tokens. Verification runs
// the fixed pipeline signature, expiry, revocation; role checks are left to
// the HTTP middleware.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"riskguard/internal/domain/fraud"
)

// Roles
const (
	RoleUser    = "user"
	RoleAdmin   = "admin"
	RoleService = "service"
)

// ErrRevocationUnavailable is returned when the revocation store cannot be read
var ErrRevocationUnavailable = errors.New("revocation check unavailable")

// Claims are the claims carried by an access token
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// UserID returns the token subject
func (c *Claims) UserID() string {
	return c.Subject
}

// Revocations is the subset of the token registry the authenticator needs
type Revocations interface {
	Track(ctx context.Context, token, userID string, expiresAt time.Time) error
	IsRevokedFor(ctx context.Context, token, userID string, issuedAt time.Time) (bool, error)
}

// Config configures an Authenticator
type Config struct {
	Secret    string
	Issuer    string
	AccessTTL time.Duration
}

// Authenticator issues and verifies access tokens
type Authenticator struct {
	secret      []byte
	issuer      string
	ttl         time.Duration
	revocations Revocations
	logger      *zap.Logger
	now         func() time.Time
}

// NewAuthenticator creates an authenticator. An empty secret is accepted
// here; every Issue and Verify then fails with a configuration error.
func NewAuthenticator(cfg Config, revocations Revocations, logger *zap.Logger) *Authenticator {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authenticator{
		secret:      []byte(cfg.Secret),
		issuer:      cfg.Issuer,
		ttl:         cfg.AccessTTL,
		revocations: revocations,
		logger:      logger,
		now:         time.Now,
	}
}

// Issue signs a new access token for userID and tracks it for bulk revocation
func (a *Authenticator) Issue(ctx context.Context, userID, role string) (string, *Claims, error) {
	if len(a.secret) == 0 {
		return "", nil, fraud.ConfigurationError(fraud.CodeJWTSecretMissing, "jwt secret not configured")
	}

	now := a.now()
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}

	if a.revocations != nil {
		if err := a.revocations.Track(ctx, signed, userID, claims.ExpiresAt.Time); err != nil {
			// untracked tokens are still caught by the per-user cutoff
			a.logger.Warn("failed to track issued token", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return signed, claims, nil
}

// Verify checks the signature, then expiry, then revocation
func (a *Authenticator) Verify(ctx context.Context, raw string) (*Claims, error) {
	if len(a.secret) == 0 {
		a.logger.Error("jwt secret not configured")
		return nil, fraud.ConfigurationError(fraud.CodeJWTSecretMissing, "jwt secret not configured")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenMalformed):
		return nil, fraud.ValidationError(fraud.CodeTokenMalformed, http.StatusUnauthorized, "malformed token", err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return nil, fraud.SecurityViolation(fraud.CodeTokenInvalid, http.StatusUnauthorized, "invalid token signature")
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, fraud.SecurityViolation(fraud.CodeTokenExpired, http.StatusUnauthorized, "token expired")
	default:
		return nil, fraud.SecurityViolation(fraud.CodeTokenInvalid, http.StatusUnauthorized, "invalid token")
	}

	if a.revocations != nil {
		var issuedAt time.Time
		if claims.IssuedAt != nil {
			// iat has second precision; round up so a token minted later in
			// the same second as a bulk revocation survives it
			issuedAt = claims.IssuedAt.Time.Add(time.Second - time.Nanosecond)
		}
		revoked, err := a.revocations.IsRevokedFor(ctx, raw, claims.Subject, issuedAt)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRevocationUnavailable, err)
		}
		if revoked {
			a.logger.Warn("revoked token presented", zap.String("user_id", claims.Subject), zap.String("jti", claims.ID))
			return nil, fraud.SecurityViolation(fraud.CodeTokenRevoked, http.StatusUnauthorized, "token revoked")
		}
	}
	return claims, nil
}
