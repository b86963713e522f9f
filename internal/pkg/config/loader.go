package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable override
const EnvPrefix = "RISKGUARD"

// Load reads configuration from file and environment variables.
// Precedence: environment > file > defaults.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	setDefaults(v, cfg)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyProviderSecrets(cfg)

	return cfg, nil
}

// applyProviderSecrets reads RISKGUARD_WEBHOOK_<PROVIDER>_SECRET for every
// configured provider. Slices of structs cannot be addressed by AutomaticEnv.
func applyProviderSecrets(cfg *Config) {
	for i, p := range cfg.Webhook.Providers {
		name := strings.ToUpper(strings.ReplaceAll(p.Name, "-", "_"))
		if secret := os.Getenv(EnvPrefix + "_WEBHOOK_" + name + "_SECRET"); secret != "" {
			cfg.Webhook.Providers[i].Secret = secret
		}
	}
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("environment", cfg.Environment)

	// Server defaults
	v.SetDefault("server.host", cfg.Server.Host)
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", cfg.Server.ShutdownTimeout)
	v.SetDefault("server.allowed_origins", cfg.Server.AllowedOrigins)

	// Database defaults
	v.SetDefault("database.enabled", cfg.Database.Enabled)
	v.SetDefault("database.host", cfg.Database.Host)
	v.SetDefault("database.port", cfg.Database.Port)
	v.SetDefault("database.user", cfg.Database.User)
	v.SetDefault("database.password", cfg.Database.Password)
	v.SetDefault("database.name", cfg.Database.Name)
	v.SetDefault("database.ssl_mode", cfg.Database.SSLMode)
	v.SetDefault("database.max_open_conns", cfg.Database.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", cfg.Database.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", cfg.Database.ConnMaxLifetime)

	// Redis defaults
	v.SetDefault("redis.host", cfg.Redis.Host)
	v.SetDefault("redis.port", cfg.Redis.Port)
	v.SetDefault("redis.password", cfg.Redis.Password)
	v.SetDefault("redis.db", cfg.Redis.DB)
	v.SetDefault("redis.pool_size", cfg.Redis.PoolSize)
	v.SetDefault("redis.read_timeout", cfg.Redis.ReadTimeout)
	v.SetDefault("redis.write_timeout", cfg.Redis.WriteTimeout)

	// Store defaults
	v.SetDefault("store.backend", cfg.Store.Backend)
	v.SetDefault("store.shards", cfg.Store.Shards)
	v.SetDefault("store.key_prefix", cfg.Store.KeyPrefix)
	v.SetDefault("store.max_tx_retries", cfg.Store.MaxTxRetries)
	v.SetDefault("store.breaker_failures", cfg.Store.BreakerFailures)
	v.SetDefault("store.breaker_timeout", cfg.Store.BreakerTimeout)
	v.SetDefault("store.velocity_sweep", cfg.Store.VelocitySweep)
	v.SetDefault("store.device_sweep", cfg.Store.DeviceSweep)
	v.SetDefault("store.idempotency_sweep", cfg.Store.IdempotencySweep)
	v.SetDefault("store.token_sweep", cfg.Store.TokenSweep)
	v.SetDefault("store.block_state_sweep", cfg.Store.BlockStateSweep)

	// Risk defaults
	v.SetDefault("risk.amount_tiers", cfg.Risk.AmountTiers)
	v.SetDefault("risk.round_amount_unit", cfg.Risk.RoundAmountUnit)
	v.SetDefault("risk.round_amount_penalty", cfg.Risk.RoundAmountPenalty)
	v.SetDefault("risk.card_penalty", cfg.Risk.CardPenalty)
	v.SetDefault("risk.cash_on_delivery_credit", cfg.Risk.CashOnDeliveryCredit)
	v.SetDefault("risk.late_night_start_hour", cfg.Risk.LateNightStartHour)
	v.SetDefault("risk.late_night_end_hour", cfg.Risk.LateNightEndHour)
	v.SetDefault("risk.late_night_penalty", cfg.Risk.LateNightPenalty)
	v.SetDefault("risk.timezone", cfg.Risk.Timezone)
	v.SetDefault("risk.thresholds", cfg.Risk.Thresholds)
	v.SetDefault("risk.scoring_failure_policy", cfg.Risk.ScoringFailurePolicy)
	v.SetDefault("risk.auto_block_duration", cfg.Risk.AutoBlockDuration)

	// Velocity defaults
	v.SetDefault("velocity.window", cfg.Velocity.Window)
	v.SetDefault("velocity.max_per_window", cfg.Velocity.MaxPerWindow)
	v.SetDefault("velocity.soft_ratio", cfg.Velocity.SoftRatio)
	v.SetDefault("velocity.max_window_amount", cfg.Velocity.MaxWindowAmount)
	v.SetDefault("velocity.max_distinct_ips", cfg.Velocity.MaxDistinctIPs)
	v.SetDefault("velocity.min_gap", cfg.Velocity.MinGap)
	v.SetDefault("velocity.hard_count_penalty", cfg.Velocity.HardCountPenalty)
	v.SetDefault("velocity.soft_count_penalty", cfg.Velocity.SoftCountPenalty)
	v.SetDefault("velocity.amount_penalty", cfg.Velocity.AmountPenalty)
	v.SetDefault("velocity.multiple_ip_penalty", cfg.Velocity.MultipleIPPenalty)
	v.SetDefault("velocity.rapid_penalty", cfg.Velocity.RapidPenalty)

	// Device defaults
	v.SetDefault("device.record_ttl", cfg.Device.RecordTTL)
	v.SetDefault("device.high_activity_count", cfg.Device.HighActivityCount)
	v.SetDefault("device.mismatch_penalty", cfg.Device.MismatchPenalty)
	v.SetDefault("device.high_activity_penalty", cfg.Device.HighActivityPenalty)
	v.SetDefault("device.new_device_penalty", cfg.Device.NewDevicePenalty)

	// Reputation defaults
	v.SetDefault("reputation.cloud_cidrs", cfg.Reputation.CloudCIDRs)
	v.SetDefault("reputation.local_isp_cidrs", cfg.Reputation.LocalISPCIDRs)
	v.SetDefault("reputation.headless_patterns", cfg.Reputation.HeadlessPatterns)
	v.SetDefault("reputation.bot_patterns", cfg.Reputation.BotPatterns)
	v.SetDefault("reputation.legacy_patterns", cfg.Reputation.LegacyPatterns)
	v.SetDefault("reputation.min_user_agent_len", cfg.Reputation.MinUserAgentLen)

	// Webhook defaults
	v.SetDefault("webhook.providers", cfg.Webhook.Providers)
	v.SetDefault("webhook.idempotency_ttl", cfg.Webhook.IdempotencyTTL)
	v.SetDefault("webhook.processing_lease", cfg.Webhook.ProcessingLease)
	v.SetDefault("webhook.on_signature_error", cfg.Webhook.OnSignatureError)
	v.SetDefault("webhook.max_body_bytes", cfg.Webhook.MaxBodyBytes)

	// Token defaults
	v.SetDefault("token.jwt_secret", cfg.Token.JWTSecret)
	v.SetDefault("token.issuer", cfg.Token.Issuer)
	v.SetDefault("token.access_ttl", cfg.Token.AccessTTL)
	v.SetDefault("token.bulk_revocation_ttl", cfg.Token.BulkRevocationTTL)
	v.SetDefault("token.hash_length", cfg.Token.HashLength)

	// Metrics and logging defaults
	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
}
