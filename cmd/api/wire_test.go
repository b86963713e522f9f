package main

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskguard/internal/domain/fraud"
	"riskguard/internal/domain/velocity"
	"riskguard/internal/domain/webhook"
	"riskguard/internal/infrastructure/cache/redis"
	"riskguard/internal/pkg/config"
	"riskguard/internal/pkg/ttlstore"
)

func TestScorerConfig_FromDefaults(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Risk.Timezone = "Asia/Manila"
	cfg.Risk.ScoringFailurePolicy = "escalate_to_review"

	sc, err := scorerConfig(cfg)
	require.NoError(t, err)

	require.Len(t, sc.AmountTiers, 2)
	assert.True(t, sc.AmountTiers[0].Above.Equal(decimal.NewFromInt(10000)))
	assert.Equal(t, "Asia/Manila", sc.Location.String())
	assert.Equal(t, fraud.PolicyEscalateToReview, sc.OnSubCheckError)
	assert.Equal(t, fraud.Thresholds{Review: 0, Block: 95}, sc.Thresholds[fraud.CheckLogin])
	assert.Equal(t, fraud.Thresholds{Review: 60, Block: 90}, sc.Thresholds[fraud.CheckAccountUpdate])
}

func TestScorerConfig_Errors(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Risk.Thresholds["refund"] = config.ThresholdConfig{Review: 10, Block: 20}
	_, err := scorerConfig(cfg)
	assert.ErrorIs(t, err, fraud.ErrUnknownCheckType)

	cfg = config.DefaultConfig()
	cfg.Risk.AmountTiers = []config.AmountTierConfig{{Above: "lots", Points: 5}}
	_, err = scorerConfig(cfg)
	assert.Error(t, err)
}

func TestVelocityConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	vc := velocityConfig(cfg)
	assert.Equal(t, cfg.Velocity.Window, vc.Window)
	assert.Equal(t, 10, vc.MaxPerWindow)
	assert.True(t, vc.MaxWindowAmount.Equal(decimal.NewFromInt(100000)))
}

func TestWebhookProviders(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Webhook.Providers = append(cfg.Webhook.Providers, config.WebhookProviderConfig{Name: "legacy", Header: "X-Sig", Algorithm: "sha1"})

	providers, err := webhookProviders(cfg)
	require.NoError(t, err)
	require.Len(t, providers, 3)
	assert.Equal(t, "Paymongo-Signature", providers[0].Header)
	assert.Equal(t, webhook.SHA256, providers[0].Algorithm)
	assert.Equal(t, webhook.SHA1, providers[2].Algorithm)
}

func TestReputationAnalyzer_FromDefaults(t *testing.T) {
	a, err := reputationAnalyzer(config.DefaultConfig())
	require.NoError(t, err)
	assert.Positive(t, a.AnalyzeIP("52.1.2.3").Score)
	assert.Negative(t, a.AnalyzeIP("10.0.0.1").Score)
}

func TestStoreBackend(t *testing.T) {
	memory := &storeBackend{shards: 4}
	s := newStore[velocity.Record](memory, "velocity", 0)
	assert.IsType(t, &ttlstore.MemoryStore[velocity.Record]{}, s)
	assert.Len(t, memory.sweepers, 1)
	assert.Equal(t, "memory", memory.name())

	mr := miniredis.RunT(t)
	client := redis.NewClientFrom(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	remote := &storeBackend{redis: client, opts: redis.StoreOptions{Prefix: "test"}}
	rs := newStore[velocity.Record](remote, "velocity", 0)
	assert.IsType(t, &redis.TTLStore[velocity.Record]{}, rs)
	assert.Empty(t, remote.sweepers)
	assert.Equal(t, "redis", remote.name())
}

func TestKVBlockStates_OwnSweepInterval(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Store.BlockStateSweep = 7 * time.Minute
	cfg.Store.DeviceSweep = time.Hour
	b := &storeBackend{shards: 4}

	repo := kvBlockStates(b, cfg)
	require.NotNil(t, repo)
	require.Len(t, b.sweepers, 1)
	assert.Equal(t, "block_state", b.sweepers[0].Name())
	assert.Equal(t, 7*time.Minute, b.sweepers[0].Interval())
}
