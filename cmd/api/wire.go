package main

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"riskguard/internal/domain/device"
	"riskguard/internal/domain/fraud"
	"riskguard/internal/domain/reputation"
	"riskguard/internal/domain/velocity"
	"riskguard/internal/domain/webhook"
	"riskguard/internal/infrastructure/cache/redis"
	"riskguard/internal/infrastructure/database/kv"
	"riskguard/internal/pkg/config"
	"riskguard/internal/pkg/ttlstore"
)

// storeBackend builds every keyed TTL store from one place so the scoring
// components never see which backend is in use
type storeBackend struct {
	redis    *redis.Client
	opts     redis.StoreOptions
	shards   int
	sweepers []*ttlstore.Sweeper
	logger   *zap.Logger
}

func (b *storeBackend) name() string {
	if b.redis != nil {
		return "redis"
	}
	return "memory"
}

// newStore returns a redis store when a client is configured, otherwise a
// sharded in-memory store with its own sweeper
func newStore[V any](b *storeBackend, name string, sweep time.Duration) ttlstore.Store[V] {
	if b.redis != nil {
		return redis.NewTTLStore[V](b.redis, name, b.opts)
	}
	s := ttlstore.NewMemoryStore[V](b.shards)
	b.sweepers = append(b.sweepers, ttlstore.NewSweeper(name, s, sweep, b.logger))
	return s
}

// kvBlockStates keeps block states in the keyed store, swept on their own
// interval, when no database is available
func kvBlockStates(b *storeBackend, cfg *config.Config) fraud.BlockStateRepository {
	return kv.NewBlockStateRepository(newStore[fraud.UserBlockState](b, "block_state", cfg.Store.BlockStateSweep))
}

func scorerConfig(cfg *config.Config) (fraud.ScorerConfig, error) {
	sc := fraud.DefaultScorerConfig()

	tiers := make([]fraud.AmountTier, 0, len(cfg.Risk.AmountTiers))
	for _, t := range cfg.Risk.AmountTiers {
		above, err := decimal.NewFromString(t.Above)
		if err != nil {
			return sc, fmt.Errorf("amount tier %q: %w", t.Above, err)
		}
		tiers = append(tiers, fraud.AmountTier{Above: above, Points: t.Points})
	}
	sc.AmountTiers = tiers

	loc, err := time.LoadLocation(cfg.Risk.Timezone)
	if err != nil {
		return sc, fmt.Errorf("timezone %q: %w", cfg.Risk.Timezone, err)
	}
	sc.Location = loc

	policy, err := fraud.ParseFailurePolicy(cfg.Risk.ScoringFailurePolicy)
	if err != nil {
		return sc, err
	}
	sc.OnSubCheckError = policy

	sc.RoundAmountUnit = cfg.Risk.GetRoundAmountUnit()
	sc.RoundAmountPenalty = cfg.Risk.RoundAmountPenalty
	sc.CardPenalty = cfg.Risk.CardPenalty
	sc.CashOnDeliveryCredit = cfg.Risk.CashOnDeliveryCredit
	sc.LateNightStart = cfg.Risk.LateNightStartHour
	sc.LateNightEnd = cfg.Risk.LateNightEndHour
	sc.LateNightPenalty = cfg.Risk.LateNightPenalty

	for name, th := range cfg.Risk.Thresholds {
		ct := fraud.CheckType(name)
		if !ct.Valid() {
			return sc, fmt.Errorf("thresholds: %w: %s", fraud.ErrUnknownCheckType, name)
		}
		sc.Thresholds[ct] = fraud.Thresholds{Review: th.Review, Block: th.Block}
	}
	return sc, nil
}

func velocityConfig(cfg *config.Config) velocity.Config {
	v := cfg.Velocity
	return velocity.Config{
		Window:            v.Window,
		MaxPerWindow:      v.MaxPerWindow,
		SoftRatio:         v.SoftRatio,
		MaxWindowAmount:   v.GetMaxWindowAmount(),
		MaxDistinctIPs:    v.MaxDistinctIPs,
		MinGap:            v.MinGap,
		HardCountPenalty:  v.HardCountPenalty,
		SoftCountPenalty:  v.SoftCountPenalty,
		AmountPenalty:     v.AmountPenalty,
		MultipleIPPenalty: v.MultipleIPPenalty,
		RapidPenalty:      v.RapidPenalty,
	}
}

func deviceConfig(cfg *config.Config) device.Config {
	d := cfg.Device
	return device.Config{
		RecordTTL:           d.RecordTTL,
		HighActivityCount:   d.HighActivityCount,
		MismatchPenalty:     d.MismatchPenalty,
		HighActivityPenalty: d.HighActivityPenalty,
		NewDevicePenalty:    d.NewDevicePenalty,
	}
}

func reputationAnalyzer(cfg *config.Config) (*reputation.Analyzer, error) {
	r := cfg.Reputation
	tables, err := reputation.ParseTables(r.CloudCIDRs, r.LocalISPCIDRs, r.HeadlessPatterns, r.BotPatterns, r.LegacyPatterns, r.MinUserAgentLen)
	if err != nil {
		return nil, err
	}
	return reputation.NewAnalyzer(tables, reputation.DefaultWeights()), nil
}

func webhookProviders(cfg *config.Config) ([]webhook.Provider, error) {
	providers := make([]webhook.Provider, 0, len(cfg.Webhook.Providers))
	for _, p := range cfg.Webhook.Providers {
		algo := webhook.SHA256
		if p.Algorithm != "" {
			parsed, err := webhook.ParseAlgorithm(p.Algorithm)
			if err != nil {
				return nil, fmt.Errorf("webhook provider %s: %w", p.Name, err)
			}
			algo = parsed
		}
		providers = append(providers, webhook.Provider{
			Name:      p.Name,
			Header:    p.Header,
			Secret:    p.Secret,
			Algorithm: algo,
		})
	}
	return providers, nil
}
