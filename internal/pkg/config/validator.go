package config

import (
	"errors"
	"fmt"
	"net/netip"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// providerNamePattern keeps provider names free of the underscore that
// separates provider and transaction id in idempotency keys
var providerNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// Validate validates the configuration. Field-level rules come from the
// validate tags; cross-field and production rules are checked here.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	var errs []error

	if c.Database.Enabled && c.Database.Host == "" {
		errs = append(errs, errors.New("database.host is required when database is enabled"))
	}

	if c.Velocity.Window <= 0 {
		errs = append(errs, errors.New("velocity.window must be positive"))
	}
	if _, err := decimal.NewFromString(c.Velocity.MaxWindowAmount); err != nil {
		errs = append(errs, fmt.Errorf("velocity.max_window_amount: %w", err))
	}
	if c.Device.RecordTTL <= 0 {
		errs = append(errs, errors.New("device.record_ttl must be positive"))
	}
	if c.Webhook.ProcessingLease <= 0 || c.Webhook.ProcessingLease >= c.Webhook.IdempotencyTTL {
		errs = append(errs, errors.New("webhook.processing_lease must be positive and shorter than webhook.idempotency_ttl"))
	}
	if c.Webhook.IdempotencyTTL <= 0 {
		errs = append(errs, errors.New("webhook.idempotency_ttl must be positive"))
	}
	if c.Token.AccessTTL <= 0 || c.Token.BulkRevocationTTL < c.Token.AccessTTL {
		errs = append(errs, errors.New("token.bulk_revocation_ttl must be at least token.access_ttl"))
	}

	if _, err := time.LoadLocation(c.Risk.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("risk.timezone: %w", err))
	}
	if _, err := decimal.NewFromString(c.Risk.RoundAmountUnit); err != nil {
		errs = append(errs, fmt.Errorf("risk.round_amount_unit: %w", err))
	}
	for i, tier := range c.Risk.AmountTiers {
		if _, err := decimal.NewFromString(tier.Above); err != nil {
			errs = append(errs, fmt.Errorf("risk.amount_tiers[%d].above: %w", i, err))
		}
	}
	for name, th := range c.Risk.Thresholds {
		if th.Review != 0 && th.Review >= th.Block {
			errs = append(errs, fmt.Errorf("risk.thresholds.%s: review must be less than block", name))
		}
	}

	for _, cidr := range append(append([]string{}, c.Reputation.CloudCIDRs...), c.Reputation.LocalISPCIDRs...) {
		if _, err := netip.ParsePrefix(cidr); err != nil {
			errs = append(errs, fmt.Errorf("reputation: %w", err))
		}
	}

	seen := make(map[string]bool, len(c.Webhook.Providers))
	for _, p := range c.Webhook.Providers {
		if !providerNamePattern.MatchString(p.Name) {
			errs = append(errs, fmt.Errorf("webhook provider %q: name must be lowercase letters, digits and hyphens", p.Name))
		}
		if seen[p.Name] {
			errs = append(errs, fmt.Errorf("webhook provider %q configured twice", p.Name))
		}
		seen[p.Name] = true
	}

	if c.IsProduction() {
		errs = append(errs, c.validateProductionSecrets()...)
	}

	return errors.Join(errs...)
}

// validateProductionSecrets refuses to start a production process without
// the secrets needed to enforce signature and token checks.
func (c *Config) validateProductionSecrets() []error {
	var errs []error
	if c.Token.JWTSecret == "" {
		errs = append(errs, errors.New("token.jwt_secret is required in production"))
	} else if len(c.Token.JWTSecret) < 32 {
		errs = append(errs, errors.New("token.jwt_secret must be at least 32 bytes in production"))
	}
	for _, p := range c.Webhook.Providers {
		if p.Secret == "" {
			errs = append(errs, fmt.Errorf("webhook secret for provider %q is required in production", p.Name))
		}
	}
	return errs
}
