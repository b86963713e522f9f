package config

import (
	"time"

	"github.com/shopspring/decimal"
)

// Environment names
const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

// Config holds all application configuration
type Config struct {
	Environment string           `mapstructure:"environment" validate:"oneof=production development"`
	Server      ServerConfig     `mapstructure:"server"`
	Database    DatabaseConfig   `mapstructure:"database"`
	Redis       RedisConfig      `mapstructure:"redis"`
	Store       StoreConfig      `mapstructure:"store"`
	Risk        RiskConfig       `mapstructure:"risk"`
	Velocity    VelocityConfig   `mapstructure:"velocity"`
	Device      DeviceConfig     `mapstructure:"device"`
	Reputation  ReputationConfig `mapstructure:"reputation"`
	Webhook     WebhookConfig    `mapstructure:"webhook"`
	Token       TokenConfig      `mapstructure:"token"`
	Metrics     MetricsConfig    `mapstructure:"metrics"`
	Log         LogConfig        `mapstructure:"log"`
}

// IsProduction reports whether production-equivalent policies apply
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// AllowedOrigins lists browser origins granted CORS access. "*" allows
	// any origin; empty allows none.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig holds PostgreSQL configuration for the user block-state table
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// StoreConfig selects the keyed TTL store backend and its sweep cadence
type StoreConfig struct {
	Backend          string        `mapstructure:"backend" validate:"oneof=memory redis"`
	Shards           int           `mapstructure:"shards" validate:"min=1"`
	KeyPrefix        string        `mapstructure:"key_prefix"`
	MaxTxRetries     int           `mapstructure:"max_tx_retries" validate:"min=1"`
	BreakerFailures  uint32        `mapstructure:"breaker_failures" validate:"min=1"`
	BreakerTimeout   time.Duration `mapstructure:"breaker_timeout"`
	VelocitySweep    time.Duration `mapstructure:"velocity_sweep"`
	DeviceSweep      time.Duration `mapstructure:"device_sweep"`
	IdempotencySweep time.Duration `mapstructure:"idempotency_sweep"`
	TokenSweep       time.Duration `mapstructure:"token_sweep"`
	BlockStateSweep  time.Duration `mapstructure:"block_state_sweep"`
}

// AmountTierConfig adds Points once the amount is strictly above Above
type AmountTierConfig struct {
	Above  string `mapstructure:"above"` // String for YAML compatibility
	Points int    `mapstructure:"points" validate:"min=0"`
}

// ThresholdConfig holds review/block thresholds for one check type.
// A zero Review disables the review band.
type ThresholdConfig struct {
	Review int `mapstructure:"review" validate:"min=0,max=100"`
	Block  int `mapstructure:"block" validate:"min=1,max=100"`
}

// RiskConfig holds scorer weights and thresholds
type RiskConfig struct {
	AmountTiers          []AmountTierConfig         `mapstructure:"amount_tiers" validate:"dive"`
	RoundAmountUnit      string                     `mapstructure:"round_amount_unit"`
	RoundAmountPenalty   int                        `mapstructure:"round_amount_penalty"`
	CardPenalty          int                        `mapstructure:"card_penalty"`
	CashOnDeliveryCredit int                        `mapstructure:"cash_on_delivery_credit"`
	LateNightStartHour   int                        `mapstructure:"late_night_start_hour" validate:"min=0,max=23"`
	LateNightEndHour     int                        `mapstructure:"late_night_end_hour" validate:"min=0,max=24"`
	LateNightPenalty     int                        `mapstructure:"late_night_penalty"`
	Timezone             string                     `mapstructure:"timezone"`
	Thresholds           map[string]ThresholdConfig `mapstructure:"thresholds" validate:"dive"`
	ScoringFailurePolicy string                     `mapstructure:"scoring_failure_policy" validate:"oneof=continue_with_zero escalate_to_review"`
	AutoBlockDuration    time.Duration              `mapstructure:"auto_block_duration"`
}

// GetRoundAmountUnit returns the round amount unit as decimal
func (c *RiskConfig) GetRoundAmountUnit() decimal.Decimal {
	d, err := decimal.NewFromString(c.RoundAmountUnit)
	if err != nil {
		return decimal.NewFromInt(1000)
	}
	return d
}

// VelocityConfig holds sliding-window limits
type VelocityConfig struct {
	Window            time.Duration `mapstructure:"window"`
	MaxPerWindow      int           `mapstructure:"max_per_window" validate:"min=1"`
	SoftRatio         float64       `mapstructure:"soft_ratio" validate:"gt=0,lte=1"`
	MaxWindowAmount   string        `mapstructure:"max_window_amount"` // String for YAML compatibility
	MaxDistinctIPs    int           `mapstructure:"max_distinct_ips" validate:"min=1"`
	MinGap            time.Duration `mapstructure:"min_gap"`
	HardCountPenalty  int           `mapstructure:"hard_count_penalty"`
	SoftCountPenalty  int           `mapstructure:"soft_count_penalty"`
	AmountPenalty     int           `mapstructure:"amount_penalty"`
	MultipleIPPenalty int           `mapstructure:"multiple_ip_penalty"`
	RapidPenalty      int           `mapstructure:"rapid_penalty"`
}

// GetMaxWindowAmount returns the max windowed amount as decimal
func (c *VelocityConfig) GetMaxWindowAmount() decimal.Decimal {
	d, err := decimal.NewFromString(c.MaxWindowAmount)
	if err != nil {
		return decimal.NewFromInt(100000)
	}
	return d
}

// DeviceConfig holds device correlation settings
type DeviceConfig struct {
	RecordTTL           time.Duration `mapstructure:"record_ttl"`
	HighActivityCount   int           `mapstructure:"high_activity_count" validate:"min=1"`
	MismatchPenalty     int           `mapstructure:"mismatch_penalty"`
	HighActivityPenalty int           `mapstructure:"high_activity_penalty"`
	NewDevicePenalty    int           `mapstructure:"new_device_penalty"`
}

// ReputationConfig holds the IP and user-agent tables
type ReputationConfig struct {
	CloudCIDRs       []string `mapstructure:"cloud_cidrs"`
	LocalISPCIDRs    []string `mapstructure:"local_isp_cidrs"`
	HeadlessPatterns []string `mapstructure:"headless_patterns"`
	BotPatterns      []string `mapstructure:"bot_patterns"`
	LegacyPatterns   []string `mapstructure:"legacy_patterns"`
	MinUserAgentLen  int      `mapstructure:"min_user_agent_len" validate:"min=0"`
}

// WebhookProviderConfig holds header/secret for one payment provider
type WebhookProviderConfig struct {
	Name      string `mapstructure:"name" validate:"required,max=64"`
	Header    string `mapstructure:"header" validate:"required"`
	Secret    string `mapstructure:"secret"`
	Algorithm string `mapstructure:"algorithm" validate:"omitempty,oneof=sha1 sha256 sha512"`
}

// WebhookConfig holds inbound webhook settings
type WebhookConfig struct {
	Providers        []WebhookProviderConfig `mapstructure:"providers" validate:"dive"`
	IdempotencyTTL   time.Duration           `mapstructure:"idempotency_ttl"`
	ProcessingLease  time.Duration           `mapstructure:"processing_lease"`
	MaxBodyBytes     int64                   `mapstructure:"max_body_bytes" validate:"min=1"`
	OnSignatureError string                  `mapstructure:"on_signature_error" validate:"omitempty,oneof=reject warn"`
}

// TokenConfig holds bearer token settings
type TokenConfig struct {
	JWTSecret         string        `mapstructure:"jwt_secret"`
	Issuer            string        `mapstructure:"issuer"`
	AccessTTL         time.Duration `mapstructure:"access_ttl"`
	BulkRevocationTTL time.Duration `mapstructure:"bulk_revocation_ttl"`
	HashLength        int           `mapstructure:"hash_length" validate:"min=16,max=64"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultConfig returns configuration with sensible defaults.
// IP prefix lists are illustrative defaults, not an authoritative feed.
func DefaultConfig() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Enabled:         false,
			Host:            "localhost",
			Port:            5432,
			User:            "risk_user",
			Name:            "riskguard",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Host:         "localhost",
			Port:         6379,
			DB:           0,
			PoolSize:     10,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
		},
		Store: StoreConfig{
			Backend:          "memory",
			Shards:           64,
			KeyPrefix:        "riskguard",
			MaxTxRetries:     5,
			BreakerFailures:  5,
			BreakerTimeout:   30 * time.Second,
			VelocitySweep:    5 * time.Minute,
			DeviceSweep:      60 * time.Minute,
			IdempotencySweep: 15 * time.Minute,
			TokenSweep:       15 * time.Minute,
			BlockStateSweep:  10 * time.Minute,
		},
		Risk: RiskConfig{
			AmountTiers: []AmountTierConfig{
				{Above: "10000", Points: 15},
				{Above: "50000", Points: 20},
			},
			RoundAmountUnit:      "1000",
			RoundAmountPenalty:   10,
			CardPenalty:          10,
			CashOnDeliveryCredit: 10,
			LateNightStartHour:   0,
			LateNightEndHour:     5,
			LateNightPenalty:     10,
			Timezone:             "UTC",
			Thresholds: map[string]ThresholdConfig{
				"order_creation": {Review: 50, Block: 90},
				"payment":        {Review: 50, Block: 90},
				"account_update": {Review: 60, Block: 90},
				"login":          {Review: 0, Block: 95},
			},
			ScoringFailurePolicy: "continue_with_zero",
			AutoBlockDuration:    0,
		},
		Velocity: VelocityConfig{
			Window:            time.Hour,
			MaxPerWindow:      10,
			SoftRatio:         0.7,
			MaxWindowAmount:   "100000",
			MaxDistinctIPs:    3,
			MinGap:            30 * time.Second,
			HardCountPenalty:  25,
			SoftCountPenalty:  10,
			AmountPenalty:     20,
			MultipleIPPenalty: 15,
			RapidPenalty:      15,
		},
		Device: DeviceConfig{
			RecordTTL:           30 * 24 * time.Hour,
			HighActivityCount:   50,
			MismatchPenalty:     30,
			HighActivityPenalty: 10,
			NewDevicePenalty:    5,
		},
		Reputation: ReputationConfig{
			CloudCIDRs: []string{
				"3.0.0.0/8", "13.32.0.0/12", "18.128.0.0/9", "52.0.0.0/8", "54.0.0.0/8", // AWS
				"34.64.0.0/10", "35.184.0.0/13", // GCP
				"20.33.0.0/16", "40.64.0.0/10", // Azure
				"104.131.0.0/16", "138.68.0.0/16", "159.89.0.0/16", "167.99.0.0/16", // DigitalOcean
				"45.32.0.0/16", "108.61.0.0/16", // Vultr
			},
			LocalISPCIDRs: []string{
				"112.198.0.0/16", "49.144.0.0/13", "136.158.0.0/16", "180.190.0.0/16", "120.28.0.0/16",
			},
			HeadlessPatterns: []string{"headlesschrome", "phantomjs", "puppeteer", "playwright", "selenium", "webdriver", "slimerjs"},
			BotPatterns:      []string{"bot", "crawler", "spider", "scrapy", "curl/", "wget/", "python-requests", "go-http-client", "httpclient", "okhttp"},
			LegacyPatterns:   []string{"msie ", "trident/", "windows nt 5.", "windows 98", "android 2.", "android 3."},
			MinUserAgentLen:  10,
		},
		Webhook: WebhookConfig{
			Providers: []WebhookProviderConfig{
				{Name: "paymongo", Header: "Paymongo-Signature", Algorithm: "sha256"},
				{Name: "xendit", Header: "X-Callback-Signature", Algorithm: "sha256"},
			},
			IdempotencyTTL:  24 * time.Hour,
			ProcessingLease: 5 * time.Minute,
			MaxBodyBytes:    1 << 20,
		},
		Token: TokenConfig{
			Issuer:            "riskguard",
			AccessTTL:         15 * time.Minute,
			BulkRevocationTTL: 24 * time.Hour,
			HashLength:        32,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
