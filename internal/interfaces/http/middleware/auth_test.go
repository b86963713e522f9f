package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"riskguard/internal/domain/fraud"
	"riskguard/internal/infrastructure/auth"
)

// MockVerifier is a mock implementation of TokenVerifier
type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) Verify(ctx context.Context, raw string) (*auth.Claims, error) {
	args := m.Called(ctx, raw)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.Claims), args.Error(1)
}

func claimsFor(userID, role string) *auth.Claims {
	return &auth.Claims{Role: role, RegisteredClaims: jwt.RegisteredClaims{Subject: userID}}
}

func serveAuth(v TokenVerifier, header string, roles ...string) *httptest.ResponseRecorder {
	var h http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, _ := ClaimsFrom(r.Context())
		raw, _ := RawTokenFrom(r.Context())
		w.Header().Set("X-User", claims.UserID())
		w.Header().Set("X-Token", raw)
		w.WriteHeader(http.StatusNoContent)
	})
	if len(roles) > 0 {
		h = RequireRole(roles...)(h)
	}
	h = Authenticate(v, nil)(h)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuthenticate_Pipeline(t *testing.T) {
	v := new(MockVerifier)
	v.On("Verify", mock.Anything, "good").Return(claimsFor("user-1", auth.RoleUser), nil)
	v.On("Verify", mock.Anything, "admin").Return(claimsFor("root", auth.RoleAdmin), nil)
	v.On("Verify", mock.Anything, "expired").Return(nil, fraud.SecurityViolation(fraud.CodeTokenExpired, http.StatusUnauthorized, "token expired"))
	v.On("Verify", mock.Anything, "revoked").Return(nil, fraud.SecurityViolation(fraud.CodeTokenRevoked, http.StatusUnauthorized, "token revoked"))
	v.On("Verify", mock.Anything, "down").Return(nil, errors.Join(auth.ErrRevocationUnavailable, errors.New("redis")))

	tests := []struct {
		name   string
		header string
		roles  []string
		status int
		code   string
	}{
		{"ok", "Bearer good", nil, http.StatusNoContent, ""},
		{"missing header", "", nil, http.StatusUnauthorized, fraud.CodeTokenMissing},
		{"wrong scheme", "Basic abc", nil, http.StatusUnauthorized, fraud.CodeTokenMalformed},
		{"empty bearer", "Bearer ", nil, http.StatusUnauthorized, fraud.CodeTokenMalformed},
		{"expired", "Bearer expired", nil, http.StatusUnauthorized, fraud.CodeTokenExpired},
		{"revoked before role", "Bearer revoked", []string{auth.RoleAdmin}, http.StatusUnauthorized, fraud.CodeTokenRevoked},
		{"forbidden role", "Bearer good", []string{auth.RoleAdmin}, http.StatusForbidden, fraud.CodeForbiddenRole},
		{"admin role", "Bearer admin", []string{auth.RoleAdmin}, http.StatusNoContent, ""},
		{"revocation unavailable", "Bearer down", nil, http.StatusServiceUnavailable, CodeRevocationUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serveAuth(v, tt.header, tt.roles...)
			assert.Equal(t, tt.status, rec.Code)
			if tt.code != "" {
				assert.Equal(t, tt.code, decodeError(t, rec).Code)
			}
		})
	}
}

func TestAuthenticate_StoresClaims(t *testing.T) {
	v := new(MockVerifier)
	v.On("Verify", mock.Anything, "good").Return(claimsFor("user-1", auth.RoleUser), nil)

	rec := serveAuth(v, "Bearer good")
	assert.Equal(t, "user-1", rec.Header().Get("X-User"))
	assert.Equal(t, "good", rec.Header().Get("X-Token"))
}

func TestRequireRole_WithoutAuthentication(t *testing.T) {
	h := RequireRole(auth.RoleAdmin)(http.NotFoundHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
