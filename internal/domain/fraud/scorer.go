package fraud

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"riskguard/internal/domain/signal"
	"riskguard/internal/domain/velocity"
	"riskguard/internal/pkg/metrics"
)

// Breakdown keys, one per sub-check
const (
	CheckAmount        = "amount"
	CheckRoundAmount   = "round_amount"
	CheckPaymentMethod = "payment_method"
	CheckIPReputation  = "ip_reputation"
	CheckVelocity      = "velocity"
	CheckDevice        = "device"
	CheckUserAgent     = "user_agent"
	CheckLateNight     = "late_night"
)

// VelocityEvaluator evaluates and records velocity for a user
type VelocityEvaluator interface {
	Evaluate(ctx context.Context, key velocity.Key, amount decimal.Decimal, ip string, now time.Time) (signal.Assessment, error)
}

// DeviceEvaluator correlates a fingerprint with a user
type DeviceEvaluator interface {
	Evaluate(ctx context.Context, fingerprint, userID string, now time.Time) (signal.Assessment, error)
}

// ReputationAnalyzer scores IPs and user agents
type ReputationAnalyzer interface {
	AnalyzeIP(ip string) signal.Assessment
	AnalyzeUserAgent(ua string) signal.Assessment
}

// AmountTier adds Points when the amount is strictly above Above.
// Tiers are cumulative.
type AmountTier struct {
	Above  decimal.Decimal
	Points int
}

// ScorerConfig holds weights and thresholds
type ScorerConfig struct {
	AmountTiers []AmountTier

	// Amounts that are an exact multiple of RoundAmountUnit score RoundAmountPenalty
	RoundAmountUnit    decimal.Decimal
	RoundAmountPenalty int

	CardPenalty          int
	CashOnDeliveryCredit int

	// Late night is [LateNightStart, LateNightEnd) in Location; wraps past midnight
	LateNightStart   int
	LateNightEnd     int
	LateNightPenalty int
	Location         *time.Location

	Thresholds map[CheckType]Thresholds

	// OnSubCheckError is continue_with_zero or escalate_to_review
	OnSubCheckError FailurePolicy
}

// DefaultScorerConfig returns the stock weights
func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		AmountTiers: []AmountTier{
			{Above: decimal.NewFromInt(10000), Points: 15},
			{Above: decimal.NewFromInt(50000), Points: 20},
		},
		RoundAmountUnit:      decimal.NewFromInt(1000),
		RoundAmountPenalty:   10,
		CardPenalty:          10,
		CashOnDeliveryCredit: 10,
		LateNightStart:       0,
		LateNightEnd:         5,
		LateNightPenalty:     10,
		Location:             time.UTC,
		Thresholds:           DefaultThresholds(),
		OnSubCheckError:      PolicyContinueWithZero,
	}
}

// Scorer computes additive, clamped risk scores from independent sub-checks
type Scorer struct {
	cfg        ScorerConfig
	velocity   VelocityEvaluator
	device     DeviceEvaluator
	reputation ReputationAnalyzer
	logger     *zap.Logger
	now        func() time.Time
}

// NewScorer creates a scorer. velocity and device may be nil to skip
// those sub-checks.
func NewScorer(cfg ScorerConfig, vel VelocityEvaluator, dev DeviceEvaluator, rep ReputationAnalyzer, logger *zap.Logger) *Scorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Thresholds == nil {
		cfg.Thresholds = DefaultThresholds()
	}
	if cfg.OnSubCheckError == "" {
		cfg.OnSubCheckError = PolicyContinueWithZero
	}
	tiers := append([]AmountTier(nil), cfg.AmountTiers...)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].Above.LessThan(tiers[j].Above) })
	cfg.AmountTiers = tiers

	return &Scorer{
		cfg:        cfg,
		velocity:   vel,
		device:     dev,
		reputation: rep,
		logger:     logger,
		now:        time.Now,
	}
}

type subCheck struct {
	name string
	run  func(ctx context.Context, ev Evidence, now time.Time) (signal.Assessment, error)
}

func (s *Scorer) checks() []subCheck {
	return []subCheck{
		{CheckAmount, s.scoreAmount},
		{CheckRoundAmount, s.scoreRoundAmount},
		{CheckPaymentMethod, s.scorePaymentMethod},
		{CheckIPReputation, s.scoreIP},
		{CheckVelocity, s.scoreVelocity},
		{CheckDevice, s.scoreDevice},
		{CheckUserAgent, s.scoreUserAgent},
		{CheckLateNight, s.scoreLateNight},
	}
}

// Score evaluates ev. It never fails: a broken sub-check contributes zero
// under the configured policy, and a failure of the scorer itself yields a
// neutral allow result.
func (s *Scorer) Score(ctx context.Context, ev Evidence) (result RiskCheckResult) {
	start := time.Now()
	now := s.now()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("risk scorer panicked, failing open", zap.Any("panic", r))
			result = neutralResult(nil, now)
		}
		result.Latency = time.Since(start)
	}()

	if ev == nil {
		s.logger.Warn("risk scorer called without evidence")
		return neutralResult(nil, now)
	}

	req := ev.Request()
	if !req.At.IsZero() {
		now = req.At
	}
	result = RiskCheckResult{
		CheckID:     uuid.New(),
		CheckType:   ev.CheckType(),
		UserID:      req.UserID,
		Flags:       []string{},
		Breakdown:   make(map[string]int),
		EvaluatedAt: now,
	}

	total := 0
	for _, c := range s.checks() {
		a, err := s.runCheck(ctx, c, ev, now)
		if err != nil {
			result.FailedChecks = append(result.FailedChecks, c.name)
			metrics.SubCheckFailuresTotal.WithLabelValues(c.name, string(s.cfg.OnSubCheckError)).Inc()
			s.logger.Warn("risk sub-check failed",
				zap.String("check", c.name),
				zap.String("check_type", string(ev.CheckType())),
				zap.String("policy", string(s.cfg.OnSubCheckError)),
				zap.Error(err),
			)
			continue
		}
		if a.Score != 0 {
			result.Breakdown[c.name] = a.Score
		}
		total += a.Score
		result.Flags = append(result.Flags, a.Flags...)
	}

	result.RiskScore = Clamp(total)
	result.RiskLevel = LevelFor(result.RiskScore)
	result.Recommendation = s.thresholdsFor(ev.CheckType()).Recommend(result.RiskScore)

	if len(result.FailedChecks) > 0 && s.cfg.OnSubCheckError == PolicyEscalateToReview {
		result.Flags = append(result.Flags, FlagScoringDegraded)
		if result.Recommendation == RecommendAllow {
			result.Recommendation = RecommendReview
		}
	}

	return result
}

// runCheck isolates one sub-check so a panic only loses its contribution
func (s *Scorer) runCheck(ctx context.Context, c subCheck, ev Evidence, now time.Time) (a signal.Assessment, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = TransientScoringError(c.name, fmt.Errorf("%w: %v", ErrSubCheckPanicked, r))
		}
	}()
	a, err = c.run(ctx, ev, now)
	if err != nil {
		return signal.Assessment{}, TransientScoringError(c.name, err)
	}
	return a, nil
}

func (s *Scorer) thresholdsFor(ct CheckType) Thresholds {
	if t, ok := s.cfg.Thresholds[ct]; ok {
		return t
	}
	return Thresholds{Review: 50, Block: 90}
}

func (s *Scorer) scoreAmount(_ context.Context, ev Evidence, _ time.Time) (signal.Assessment, error) {
	var a signal.Assessment
	amount, _, ok := monetary(ev)
	if !ok {
		return a, nil
	}
	if amount.IsNegative() {
		return a, fmt.Errorf("negative amount %s", amount)
	}
	for _, tier := range s.cfg.AmountTiers {
		if amount.GreaterThan(tier.Above) {
			a.Score += tier.Points
		}
	}
	if a.Score > 0 {
		a.Flags = append(a.Flags, FlagHighAmount)
	}
	return a, nil
}

func (s *Scorer) scoreRoundAmount(_ context.Context, ev Evidence, _ time.Time) (signal.Assessment, error) {
	var a signal.Assessment
	amount, _, ok := monetary(ev)
	unit := s.cfg.RoundAmountUnit
	if !ok || !unit.IsPositive() || amount.LessThan(unit) {
		return a, nil
	}
	if amount.Mod(unit).IsZero() {
		a.Add(s.cfg.RoundAmountPenalty, FlagRoundAmount)
	}
	return a, nil
}

func (s *Scorer) scorePaymentMethod(_ context.Context, ev Evidence, _ time.Time) (signal.Assessment, error) {
	var a signal.Assessment
	_, method, ok := monetary(ev)
	if !ok {
		return a, nil
	}
	switch method {
	case PaymentCard:
		a.Add(s.cfg.CardPenalty, FlagCardPayment)
	case PaymentCashOnDelivery:
		a.Add(-s.cfg.CashOnDeliveryCredit, FlagCashOnDelivery)
	}
	return a, nil
}

func (s *Scorer) scoreIP(_ context.Context, ev Evidence, _ time.Time) (signal.Assessment, error) {
	if s.reputation == nil {
		return signal.Assessment{}, nil
	}
	return s.reputation.AnalyzeIP(ev.Request().IP), nil
}

func (s *Scorer) scoreUserAgent(_ context.Context, ev Evidence, _ time.Time) (signal.Assessment, error) {
	if s.reputation == nil {
		return signal.Assessment{}, nil
	}
	return s.reputation.AnalyzeUserAgent(ev.Request().UserAgent), nil
}

func (s *Scorer) scoreVelocity(ctx context.Context, ev Evidence, now time.Time) (signal.Assessment, error) {
	subject := subjectID(ev)
	if s.velocity == nil || subject == "" {
		return signal.Assessment{}, nil
	}
	scope := velocity.ScopeTransaction
	if ev.CheckType() == CheckLogin {
		scope = velocity.ScopeLogin
	}
	amount, _, _ := monetary(ev)
	return s.velocity.Evaluate(ctx, velocity.Key{Scope: scope, UserID: subject}, amount, ev.Request().IP, now)
}

func (s *Scorer) scoreDevice(ctx context.Context, ev Evidence, now time.Time) (signal.Assessment, error) {
	if s.device == nil {
		return signal.Assessment{}, nil
	}
	req := ev.Request()
	return s.device.Evaluate(ctx, req.DeviceFingerprint, req.UserID, now)
}

func (s *Scorer) scoreLateNight(_ context.Context, _ Evidence, now time.Time) (signal.Assessment, error) {
	var a signal.Assessment
	if s.isLateNight(now.In(s.cfg.Location).Hour()) {
		a.Add(s.cfg.LateNightPenalty, FlagLateNight)
	}
	return a, nil
}

func (s *Scorer) isLateNight(hour int) bool {
	start, end := s.cfg.LateNightStart, s.cfg.LateNightEnd
	switch {
	case start == end:
		return false
	case start < end:
		return hour >= start && hour < end
	default:
		return hour >= start || hour < end
	}
}

// neutralResult is the fail-open answer when scoring cannot run at all
func neutralResult(ev Evidence, now time.Time) RiskCheckResult {
	res := RiskCheckResult{
		CheckID:        uuid.New(),
		RiskScore:      MinScore,
		RiskLevel:      RiskLevelLow,
		Recommendation: RecommendAllow,
		Flags:          []string{FlagScoringError},
		EvaluatedAt:    now,
	}
	if ev != nil {
		res.CheckType = ev.CheckType()
		res.UserID = ev.Request().UserID
	}
	return res
}
