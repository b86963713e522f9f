package fraud

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"riskguard/internal/domain/fraud"
	"riskguard/internal/pkg/metrics"
)

// RiskScorer scores one evidence set
type RiskScorer interface {
	Score(ctx context.Context, ev fraud.Evidence) fraud.RiskCheckResult
}

// CheckFraudConfig configures the use case
type CheckFraudConfig struct {
	// AutoBlockDuration persists a timed block when the recommendation is
	// block. Zero leaves persistence to the caller.
	AutoBlockDuration time.Duration
}

// CheckFraudUseCase runs the block pre-check, scoring and block persistence
type CheckFraudUseCase struct {
	scorer RiskScorer
	blocks fraud.BlockStateRepository
	cfg    CheckFraudConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewCheckFraudUseCase creates a new check fraud use case. blocks may be
// nil when no block-state store is available.
func NewCheckFraudUseCase(scorer RiskScorer, blocks fraud.BlockStateRepository, cfg CheckFraudConfig, logger *zap.Logger) *CheckFraudUseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CheckFraudUseCase{
		scorer: scorer,
		blocks: blocks,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Execute decides allow, review or block for ev. The only errors returned
// are invalid input; infrastructure failures fail open.
func (uc *CheckFraudUseCase) Execute(ctx context.Context, ev fraud.Evidence) (*fraud.RiskCheckResult, error) {
	if ev == nil {
		return nil, fraud.ValidationError(fraud.CodeInvalidEvidence, http.StatusBadRequest, "missing evidence", fraud.ErrMissingEvidence)
	}
	if !ev.CheckType().Valid() {
		return nil, fraud.ValidationError(fraud.CodeInvalidEvidence, http.StatusBadRequest, "unknown check type", fraud.ErrUnknownCheckType)
	}

	start := time.Now()
	req := ev.Request()
	now := req.At
	if now.IsZero() {
		now = uc.now()
	}
	log := uc.logger.With(
		zap.String("check_type", string(ev.CheckType())),
		zap.String("user_id", req.UserID),
		zap.String("ip", req.IP),
	)

	if blocked := uc.activeBlock(ctx, req.UserID, now, log); blocked != nil {
		metrics.BlockedUserHitsTotal.Inc()
		res := blockedResult(ev, now)
		uc.record(&res, start, log)
		return &res, nil
	}

	res := uc.scorer.Score(ctx, ev)

	if res.IsBlocked() && uc.cfg.AutoBlockDuration > 0 && req.UserID != "" {
		uc.persistBlock(ctx, req.UserID, now, res, log)
	}

	uc.record(&res, start, log)
	return &res, nil
}

// activeBlock returns the user's block if it is in force. A lapsed timed
// block is cleared on the way. Repository failures are logged and ignored.
func (uc *CheckFraudUseCase) activeBlock(ctx context.Context, userID string, now time.Time, log *zap.Logger) *fraud.UserBlockState {
	if uc.blocks == nil || userID == "" {
		return nil
	}

	state, err := uc.blocks.Get(ctx, userID)
	if errors.Is(err, fraud.ErrBlockStateNotFound) {
		return nil
	}
	if err != nil {
		log.Warn("block state lookup failed, continuing without it", zap.Error(err))
		return nil
	}

	if state.LapsedAt(now) {
		if err := uc.blocks.Clear(ctx, userID); err != nil {
			log.Warn("failed to clear lapsed block", zap.Error(err))
		} else {
			log.Info("lapsed block cleared", zap.Timep("unblock_at", state.UnblockAt))
		}
		return nil
	}
	if state.ActiveAt(now) {
		return state
	}
	return nil
}

func (uc *CheckFraudUseCase) persistBlock(ctx context.Context, userID string, now time.Time, res fraud.RiskCheckResult, log *zap.Logger) {
	unblockAt := now.Add(uc.cfg.AutoBlockDuration)
	state := &fraud.UserBlockState{
		UserID:    userID,
		IsBlocked: true,
		UnblockAt: &unblockAt,
		Reason:    "automatic block: " + string(res.RiskLevel) + " risk",
		UpdatedAt: now,
	}
	if err := uc.blocks.Upsert(ctx, state); err != nil {
		log.Error("failed to persist block", zap.Error(err))
		return
	}
	log.Warn("user blocked by risk check", zap.Time("unblock_at", unblockAt), zap.Int("risk_score", res.RiskScore))
}

func (uc *CheckFraudUseCase) record(res *fraud.RiskCheckResult, start time.Time, log *zap.Logger) {
	elapsed := time.Since(start)
	metrics.RiskChecksTotal.WithLabelValues(string(res.CheckType), string(res.Recommendation)).Inc()
	metrics.RiskCheckDuration.WithLabelValues(string(res.CheckType)).Observe(elapsed.Seconds())

	fields := []zap.Field{
		zap.String("check_id", res.CheckID.String()),
		zap.Int("risk_score", res.RiskScore),
		zap.String("risk_level", string(res.RiskLevel)),
		zap.String("recommendation", string(res.Recommendation)),
		zap.Strings("flags", res.Flags),
		zap.Duration("latency", elapsed),
	}
	if len(res.FailedChecks) > 0 {
		fields = append(fields, zap.Strings("failed_checks", res.FailedChecks))
	}

	switch res.Recommendation {
	case fraud.RecommendBlock:
		log.Warn("risk check blocked request", fields...)
	case fraud.RecommendReview:
		log.Info("risk check flagged request for review", fields...)
	default:
		log.Debug("risk check passed", fields...)
	}
}

func blockedResult(ev fraud.Evidence, now time.Time) fraud.RiskCheckResult {
	return fraud.RiskCheckResult{
		CheckID:        uuid.New(),
		CheckType:      ev.CheckType(),
		UserID:         ev.Request().UserID,
		RiskScore:      fraud.MaxScore,
		RiskLevel:      fraud.RiskLevelCritical,
		Recommendation: fraud.RecommendBlock,
		Flags:          []string{fraud.FlagUserBlocked},
		EvaluatedAt:    now,
	}
}
