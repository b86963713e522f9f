package fraud

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskguard/internal/domain/device"
	"riskguard/internal/domain/reputation"
	"riskguard/internal/domain/signal"
	"riskguard/internal/domain/velocity"
	"riskguard/internal/pkg/ttlstore"
)

const (
	headlessUA = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) HeadlessChrome/120.0.0.0 Safari/537.36"
	browserUA  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

func newAnalyzer(t *testing.T) *reputation.Analyzer {
	t.Helper()
	tables, err := reputation.ParseTables(
		[]string{"52.0.0.0/8"},
		[]string{"112.198.0.0/16"},
		[]string{"headlesschrome", "puppeteer"},
		[]string{"bot", "curl/"},
		[]string{"msie "},
		10,
	)
	require.NoError(t, err)
	return reputation.NewAnalyzer(tables, reputation.DefaultWeights())
}

func newScorer(t *testing.T, cfg ScorerConfig) *Scorer {
	t.Helper()
	tracker := velocity.NewTracker(ttlstore.NewMemoryStore[velocity.Record](8), velocity.DefaultConfig())
	devices := device.NewStore(ttlstore.NewMemoryStore[device.Record](8), device.DefaultConfig())
	return NewScorer(cfg, tracker, devices, newAnalyzer(t), nil)
}

func order(at time.Time, amount int64, method PaymentMethod, ip, ua string) OrderEvidence {
	return OrderEvidence{
		RequestContext: RequestContext{
			UserID:            "user-1",
			IP:                ip,
			UserAgent:         ua,
			DeviceFingerprint: "fp-1",
			At:                at,
		},
		Amount:        decimal.NewFromInt(amount),
		PaymentMethod: method,
	}
}

func TestScorer_LateNightHeadlessCardOrder(t *testing.T) {
	night := time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)
	day := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)

	suspicious := newScorer(t, DefaultScorerConfig()).Score(context.Background(),
		order(night, 1000, PaymentCard, "192.168.1.10", headlessUA))
	normal := newScorer(t, DefaultScorerConfig()).Score(context.Background(),
		order(day, 1000, PaymentCard, "192.168.1.10", browserUA))

	assert.Equal(t, map[string]int{
		CheckRoundAmount:   10,
		CheckPaymentMethod: 10,
		CheckIPReputation:  -10,
		CheckDevice:        5,
		CheckUserAgent:     25,
		CheckLateNight:     10,
	}, suspicious.Breakdown)
	assert.Equal(t, 50, suspicious.RiskScore)
	assert.Equal(t, RecommendReview, suspicious.Recommendation)
	assert.Equal(t, RiskLevelMedium, suspicious.RiskLevel)
	assert.Subset(t, suspicious.Flags, []string{FlagRoundAmount, FlagCardPayment, FlagLateNight, reputation.FlagUAHeadless, reputation.FlagIPPrivate})

	assert.Greater(t, suspicious.RiskScore, normal.RiskScore)
	assert.Equal(t, RecommendAllow, normal.Recommendation)
}

func TestScorer_EleventhOrderFlagsVelocity(t *testing.T) {
	s := newScorer(t, DefaultScorerConfig())
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)

	var res RiskCheckResult
	for i := 0; i < 11; i++ {
		res = s.Score(ctx, order(base.Add(time.Duration(i)*time.Minute), 250, PaymentEWallet, "8.8.8.8", browserUA))
	}
	assert.True(t, res.HasFlag(velocity.FlagCountExceeded))
	assert.GreaterOrEqual(t, res.Breakdown[CheckVelocity], velocity.DefaultConfig().HardCountPenalty)
}

func TestScorer_Deterministic(t *testing.T) {
	at := time.Date(2026, 3, 1, 2, 30, 0, 0, time.UTC)
	ev := order(at, 52000, PaymentCard, "52.1.2.3", browserUA)

	a := newScorer(t, DefaultScorerConfig()).Score(context.Background(), ev)
	b := newScorer(t, DefaultScorerConfig()).Score(context.Background(), ev)

	assert.Equal(t, a.RiskScore, b.RiskScore)
	assert.Equal(t, a.Flags, b.Flags)
	assert.Equal(t, a.Breakdown, b.Breakdown)
	assert.Equal(t, a.Recommendation, b.Recommendation)
}

func TestScorer_AmountMonotonic(t *testing.T) {
	s := NewScorer(DefaultScorerConfig(), nil, nil, nil, nil)
	at := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)

	prev := -1
	for _, amt := range []int64{0, 1, 999, 1000, 9999, 10000, 10001, 20000, 50000, 50001, 1000000} {
		res := s.Score(context.Background(), order(at, amt, PaymentEWallet, "8.8.8.8", browserUA))
		got := res.Breakdown[CheckAmount]
		assert.GreaterOrEqual(t, got, prev, "amount %d", amt)
		prev = got
	}
	assert.Equal(t, 35, prev)
}

func TestScorer_PaymentMethodCredit(t *testing.T) {
	s := NewScorer(DefaultScorerConfig(), nil, nil, nil, nil)
	at := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)

	res := s.Score(context.Background(), order(at, 1234, PaymentCashOnDelivery, "", ""))
	assert.Equal(t, -10, res.Breakdown[CheckPaymentMethod])
	assert.Equal(t, 0, res.RiskScore, "score is clamped at zero")
}

func TestScorer_ClampsAtHundred(t *testing.T) {
	cfg := DefaultScorerConfig()
	cfg.CardPenalty = 500
	s := NewScorer(cfg, nil, nil, nil, nil)

	res := s.Score(context.Background(), order(time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC), 10, PaymentCard, "", ""))
	assert.Equal(t, 100, res.RiskScore)
	assert.Equal(t, RiskLevelCritical, res.RiskLevel)
	assert.Equal(t, RecommendBlock, res.Recommendation)
}

func TestScorer_LoginThresholdsAreBlockOnly(t *testing.T) {
	cfg := DefaultScorerConfig()
	cfg.LateNightPenalty = 70
	s := NewScorer(cfg, nil, nil, nil, nil)

	login := LoginEvidence{
		RequestContext: RequestContext{UserID: "u", At: time.Date(2026, 3, 1, 1, 0, 0, 0, time.UTC)},
		Identifier:     "u@example.com",
	}
	res := s.Score(context.Background(), login)
	assert.Equal(t, 70, res.RiskScore)
	assert.Equal(t, RecommendAllow, res.Recommendation)
}

func TestScorer_Timezone(t *testing.T) {
	cfg := DefaultScorerConfig()
	cfg.Location = time.FixedZone("PHT", 8*60*60)
	s := NewScorer(cfg, nil, nil, nil, nil)

	// 19:00 UTC is 03:00 in UTC+8
	res := s.Score(context.Background(), order(time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC), 10, PaymentEWallet, "", ""))
	assert.True(t, res.HasFlag(FlagLateNight))
}

func TestScorer_LateNightWrapsMidnight(t *testing.T) {
	cfg := DefaultScorerConfig()
	cfg.LateNightStart, cfg.LateNightEnd = 22, 4
	s := NewScorer(cfg, nil, nil, nil, nil)

	for hour, want := range map[int]bool{21: false, 22: true, 23: true, 0: true, 3: true, 4: false} {
		assert.Equal(t, want, s.isLateNight(hour), "hour %d", hour)
	}
}

type panickingVelocity struct{}

func (panickingVelocity) Evaluate(context.Context, velocity.Key, decimal.Decimal, string, time.Time) (signal.Assessment, error) {
	panic("corrupt record")
}

type failingDevice struct{}

func (failingDevice) Evaluate(context.Context, string, string, time.Time) (signal.Assessment, error) {
	return signal.Assessment{}, errors.New("store unavailable")
}

func TestScorer_FailedSubChecksContributeZero(t *testing.T) {
	s := NewScorer(DefaultScorerConfig(), panickingVelocity{}, failingDevice{}, newAnalyzer(t), nil)

	res := s.Score(context.Background(), order(time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC), 1000, PaymentCard, "8.8.8.8", browserUA))
	assert.ElementsMatch(t, []string{CheckVelocity, CheckDevice}, res.FailedChecks)
	assert.Equal(t, 20, res.RiskScore)
	assert.Equal(t, RecommendAllow, res.Recommendation)
	assert.NotContains(t, res.Flags, FlagScoringDegraded)
}

func TestScorer_EscalateToReviewPolicy(t *testing.T) {
	cfg := DefaultScorerConfig()
	cfg.OnSubCheckError = PolicyEscalateToReview
	s := NewScorer(cfg, panickingVelocity{}, nil, nil, nil)

	res := s.Score(context.Background(), order(time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC), 10, PaymentEWallet, "", ""))
	assert.Equal(t, RecommendReview, res.Recommendation)
	assert.True(t, res.HasFlag(FlagScoringDegraded))
}

func TestScorer_NilEvidenceFailsOpen(t *testing.T) {
	s := NewScorer(DefaultScorerConfig(), nil, nil, nil, nil)

	res := s.Score(context.Background(), nil)
	assert.Equal(t, RecommendAllow, res.Recommendation)
	assert.Equal(t, 0, res.RiskScore)
	assert.True(t, res.HasFlag(FlagScoringError))

	var typedNil *OrderEvidence
	res = s.Score(context.Background(), typedNil)
	assert.Equal(t, RecommendAllow, res.Recommendation)
	assert.True(t, res.HasFlag(FlagScoringError))
}

func TestScorer_NegativeAmountIsTransientFailure(t *testing.T) {
	s := NewScorer(DefaultScorerConfig(), nil, nil, nil, nil)

	res := s.Score(context.Background(), order(time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC), -5, PaymentEWallet, "", ""))
	assert.Contains(t, res.FailedChecks, CheckAmount)
}

func TestScorer_NegativeAmountSkipsVelocityRecord(t *testing.T) {
	store := ttlstore.NewMemoryStore[velocity.Record](8)
	tracker := velocity.NewTracker(store, velocity.DefaultConfig())
	s := NewScorer(DefaultScorerConfig(), tracker, nil, nil, nil)
	at := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)

	res := s.Score(context.Background(), order(at, -90000, PaymentEWallet, "", ""))
	assert.Contains(t, res.FailedChecks, CheckVelocity)

	stats, err := tracker.Snapshot(context.Background(), velocity.Key{Scope: velocity.ScopeTransaction, UserID: "user-1"}, at)
	require.NoError(t, err)
	assert.Zero(t, stats.Count)
}
