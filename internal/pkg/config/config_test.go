package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Validates(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, "1000", cfg.Risk.GetRoundAmountUnit().String())
	assert.Equal(t, "100000", cfg.Velocity.GetMaxWindowAmount().String())
}

func TestLoad_FileAndEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  port: 9090
velocity:
  max_per_window: 20
  window: 30m
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	t.Setenv("RISKGUARD_VELOCITY_MAX_PER_WINDOW", "5")
	t.Setenv("RISKGUARD_WEBHOOK_PAYMONGO_SECRET", "whsec_test")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Velocity.MaxPerWindow)
	assert.Equal(t, 30*time.Minute, cfg.Velocity.Window)
	assert.Equal(t, "debug", cfg.Log.Level)
	// untouched values keep their defaults
	assert.Equal(t, 3, cfg.Velocity.MaxDistinctIPs)

	require.NotEmpty(t, cfg.Webhook.Providers)
	p := cfg.Webhook.Providers[0]
	assert.Equal(t, "paymongo", p.Name)
	assert.Equal(t, "whsec_test", p.Secret)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "Port",
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Store.Backend = "etcd" },
			wantErr: "Backend",
		},
		{
			name:    "review above block",
			mutate:  func(c *Config) { c.Risk.Thresholds["payment"] = ThresholdConfig{Review: 95, Block: 90} },
			wantErr: "review must be less than block",
		},
		{
			name:    "bad timezone",
			mutate:  func(c *Config) { c.Risk.Timezone = "Mars/Olympus" },
			wantErr: "risk.timezone",
		},
		{
			name:    "bad cidr",
			mutate:  func(c *Config) { c.Reputation.CloudCIDRs = []string{"not-a-cidr"} },
			wantErr: "reputation",
		},
		{
			name:    "reject is not a scoring policy",
			mutate:  func(c *Config) { c.Risk.ScoringFailurePolicy = "reject" },
			wantErr: "ScoringFailurePolicy",
		},
		{
			name:    "underscore in provider name",
			mutate:  func(c *Config) { c.Webhook.Providers[0].Name = "pay_mongo" },
			wantErr: "name must be lowercase letters, digits and hyphens",
		},
		{
			name:    "unknown signature policy",
			mutate:  func(c *Config) { c.Webhook.OnSignatureError = "escalate_to_review" },
			wantErr: "OnSignatureError",
		},
		{
			name:    "processing lease outlives ledger",
			mutate:  func(c *Config) { c.Webhook.ProcessingLease = 48 * time.Hour },
			wantErr: "webhook.processing_lease",
		},
		{
			name: "production without secrets",
			mutate: func(c *Config) {
				c.Environment = EnvProduction
			},
			wantErr: "token.jwt_secret is required in production",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_ProductionWithSecrets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Environment = EnvProduction
	cfg.Token.JWTSecret = "0123456789abcdef0123456789abcdef"
	for i := range cfg.Webhook.Providers {
		cfg.Webhook.Providers[i].Secret = "whsec"
	}
	assert.NoError(t, cfg.Validate())
}
