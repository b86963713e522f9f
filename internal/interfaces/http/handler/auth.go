package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"riskguard/internal/application/dto"
	"riskguard/internal/domain/fraud"
	"riskguard/internal/domain/token"
	"riskguard/internal/infrastructure/auth"
	"riskguard/internal/interfaces/http/middleware"
)

// TokenIssuer mints access tokens
type TokenIssuer interface {
	Issue(ctx context.Context, userID, role string) (string, *auth.Claims, error)
}

// TokenRevoker revokes one token or all of a user's tokens
type TokenRevoker interface {
	Revoke(ctx context.Context, raw string, expiresAt time.Time, userID, reason string) error
	RevokeAll(ctx context.Context, userID, reason string) (int, error)
}

// AuthHandler handles token lifecycle requests
type AuthHandler struct {
	issuer   TokenIssuer
	revoker  TokenRevoker
	validate *validator.Validate
	logger   *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(issuer TokenIssuer, revoker TokenRevoker, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{
		issuer:   issuer,
		revoker:  revoker,
		validate: dto.NewValidator(),
		logger:   logger,
	}
}

// Logout handles POST /api/v1/auth/logout by revoking the presented token
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, raw, ok := bearer(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, fraud.CodeTokenMissing, "authentication required")
		return
	}

	if err := h.revoker.Revoke(r.Context(), raw, claims.ExpiresAt.Time, claims.UserID(), token.ReasonLogout); err != nil {
		h.logger.Error("logout revocation failed", zap.String("user_id", claims.UserID()), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "", "revocation unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Refresh handles POST /api/v1/auth/refresh. It issues a new token and
// revokes the presented one.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	claims, raw, ok := bearer(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, fraud.CodeTokenMissing, "authentication required")
		return
	}

	signed, next, err := h.issuer.Issue(r.Context(), claims.UserID(), claims.Role)
	if err != nil {
		var e *fraud.Error
		if errors.As(err, &e) {
			writeDomainError(w, err)
			return
		}
		h.logger.Error("token issue failed", zap.String("user_id", claims.UserID()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "", "failed to issue token")
		return
	}
	if err := h.revoker.Revoke(r.Context(), raw, claims.ExpiresAt.Time, claims.UserID(), token.ReasonLogout); err != nil {
		h.logger.Warn("failed to revoke refreshed token", zap.String("user_id", claims.UserID()), zap.Error(err))
	}

	writeJSON(w, http.StatusOK, dto.TokenResponse{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresAt:   next.ExpiresAt.Time,
	})
}

// RevokeAll handles POST /api/v1/auth/revoke-all
func (h *AuthHandler) RevokeAll(w http.ResponseWriter, r *http.Request) {
	var req dto.RevokeAllRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "", "Invalid request body: "+err.Error())
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "", err.Error())
		return
	}
	if req.Reason == "" {
		req.Reason = token.ReasonPasswordChange
	}

	n, err := h.revoker.RevokeAll(r.Context(), req.UserID, req.Reason)
	if err != nil {
		h.logger.Error("bulk revocation failed", zap.String("user_id", req.UserID), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "", "revocation unavailable")
		return
	}

	writeJSON(w, http.StatusOK, dto.RevokeAllResponse{UserID: req.UserID, Revoked: n})
}

func bearer(r *http.Request) (*auth.Claims, string, bool) {
	claims, ok := middleware.ClaimsFrom(r.Context())
	if !ok || claims.ExpiresAt == nil {
		return nil, "", false
	}
	raw, ok := middleware.RawTokenFrom(r.Context())
	return claims, raw, ok
}
