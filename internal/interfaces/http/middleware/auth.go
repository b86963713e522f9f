package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"riskguard/internal/domain/fraud"
	"riskguard/internal/infrastructure/auth"
)

// BearerPrefix is the Authorization scheme prefix
const BearerPrefix = "Bearer "

// CodeRevocationUnavailable is returned when revocation state cannot be read
const CodeRevocationUnavailable = "REVOCATION_UNAVAILABLE"

// TokenVerifier verifies signature, expiry and revocation of a bearer token
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*auth.Claims, error)
}

// Authenticate verifies the bearer token and stores its claims in the
// request context. Role checks follow in RequireRole.
func Authenticate(verifier TokenVerifier, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				writeError(w, http.StatusUnauthorized, fraud.CodeTokenMissing, "authorization header required")
				return
			}
			if !strings.HasPrefix(header, BearerPrefix) {
				writeError(w, http.StatusUnauthorized, fraud.CodeTokenMalformed, "bearer token required")
				return
			}
			raw := strings.TrimSpace(strings.TrimPrefix(header, BearerPrefix))
			if raw == "" {
				writeError(w, http.StatusUnauthorized, fraud.CodeTokenMalformed, "bearer token required")
				return
			}

			claims, err := verifier.Verify(r.Context(), raw)
			if err != nil {
				if errors.Is(err, auth.ErrRevocationUnavailable) {
					logger.Error("token revocation check failed", zap.Error(err))
					writeError(w, http.StatusServiceUnavailable, CodeRevocationUnavailable, "token revocation check unavailable")
					return
				}
				logger.Warn("bearer token rejected", zap.String("code", fraud.CodeOf(err)))
				writeDomainError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			ctx = context.WithValue(ctx, rawTokenKey, raw)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole admits requests whose verified claims carry one of roles
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFrom(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, fraud.CodeTokenMissing, "authentication required")
				return
			}
			if _, ok := allowed[claims.Role]; !ok {
				writeError(w, http.StatusForbidden, fraud.CodeForbiddenRole, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
