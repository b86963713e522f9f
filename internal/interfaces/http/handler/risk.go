package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"riskguard/internal/application/dto"
	"riskguard/internal/domain/fraud"
	"riskguard/internal/domain/velocity"
	"riskguard/internal/interfaces/http/evidence"
)

// FraudChecker runs a risk check
type FraudChecker interface {
	Execute(ctx context.Context, ev fraud.Evidence) (*fraud.RiskCheckResult, error)
}

// VelocitySnapshotter reads a user's velocity window without recording
type VelocitySnapshotter interface {
	Snapshot(ctx context.Context, key velocity.Key, now time.Time) (velocity.Stats, error)
}

// RiskHandler handles risk check requests
type RiskHandler struct {
	checker   FraudChecker
	snapshots VelocitySnapshotter
	validate  *validator.Validate
	logger    *zap.Logger
}

// NewRiskHandler creates a new risk handler
func NewRiskHandler(checker FraudChecker, snapshots VelocitySnapshotter, logger *zap.Logger) *RiskHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RiskHandler{
		checker:   checker,
		snapshots: snapshots,
		validate:  dto.NewValidator(),
		logger:    logger,
	}
}

// Check handles POST /api/v1/risk/check
func (h *RiskHandler) Check(w http.ResponseWriter, r *http.Request) {
	var req dto.RiskCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fraud.CodeInvalidEvidence, "Invalid request body: "+err.Error())
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, fraud.CodeInvalidEvidence, err.Error())
		return
	}

	rc := evidence.RequestContext(r, req.UserID, req.DeviceFingerprint, req.DeviceInfo, time.Now())
	result, err := h.checker.Execute(r.Context(), req.Evidence(rc))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.NewRiskCheckResponse(result))
}

// Velocity handles GET /api/v1/risk/users/{id}/velocity
func (h *RiskHandler) Velocity(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "", "user id required")
		return
	}

	now := time.Now()
	tx, err := h.snapshots.Snapshot(r.Context(), velocity.Key{Scope: velocity.ScopeTransaction, UserID: userID}, now)
	if err != nil {
		h.logger.Error("velocity snapshot failed", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "", "velocity state unavailable")
		return
	}
	login, err := h.snapshots.Snapshot(r.Context(), velocity.Key{Scope: velocity.ScopeLogin, UserID: userID}, now)
	if err != nil {
		h.logger.Error("velocity snapshot failed", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "", "velocity state unavailable")
		return
	}

	writeJSON(w, http.StatusOK, dto.VelocitySnapshotResponse{
		UserID:      userID,
		Transaction: tx,
		Login:       login,
	})
}
