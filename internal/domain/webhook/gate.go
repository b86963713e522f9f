package webhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	"go.uber.org/zap"

	"riskguard/internal/domain/fraud"
	"riskguard/internal/pkg/metrics"
)

// Outcome is the terminal state of one delivery
type Outcome string

const (
	OutcomeAccepted   Outcome = "accepted"
	OutcomeDuplicate  Outcome = "duplicate"
	OutcomeInProgress Outcome = "in_progress"
	OutcomeRejected   Outcome = "rejected"
	OutcomeFailed     Outcome = "failed"
)

// Provider is one configured payment provider
type Provider struct {
	Name      string
	Header    string
	Secret    string
	Algorithm Algorithm
}

// Delivery is one inbound webhook request
type Delivery struct {
	Provider      string
	TransactionID string
	Payload       []byte
	Signature     string
}

// Handler runs the business logic for an accepted delivery
type Handler func(ctx context.Context, d Delivery) error

// GateConfig configures a Gate
type GateConfig struct {
	Providers []Provider
	// Production selects the default signature policy: reject in
	// production, warn elsewhere.
	Production bool
	// OnSignatureError overrides the default policy. Under a policy that
	// fails open, signature failures are logged and processing continues.
	OnSignatureError fraud.FailurePolicy
}

// Gate verifies signatures and deduplicates deliveries before any
// business logic runs.
type Gate struct {
	providers        map[string]Provider
	onSignatureError fraud.FailurePolicy
	ledger           *Ledger
	logger           *zap.Logger
	now              func() time.Time
}

// NewGate creates a gate
func NewGate(cfg GateConfig, ledger *Ledger, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	providers := make(map[string]Provider, len(cfg.Providers))
	for _, p := range cfg.Providers {
		if p.Algorithm == "" {
			p.Algorithm = SHA256
		}
		providers[p.Name] = p
	}
	policy := cfg.OnSignatureError
	if policy == "" {
		policy = fraud.PolicyWarn
		if cfg.Production {
			policy = fraud.PolicyReject
		}
	}
	return &Gate{
		providers:        providers,
		onSignatureError: policy,
		ledger:           ledger,
		logger:           logger,
		now:              time.Now,
	}
}

// Provider returns the named provider
func (g *Gate) Provider(name string) (Provider, bool) {
	p, ok := g.providers[name]
	return p, ok
}

// SignaturePolicy is the policy applied to signature failures
func (g *Gate) SignaturePolicy() fraud.FailurePolicy {
	return g.onSignatureError
}

// Process takes d through signature verification and the idempotency
// ledger, then runs fn once per transaction. Duplicates are acknowledged
// without calling fn. If fn fails the claim is released so a retry can run.
func (g *Gate) Process(ctx context.Context, d Delivery, fn Handler) (Outcome, error) {
	log := g.logger.With(zap.String("provider", d.Provider), zap.String("transaction_id", d.TransactionID))

	p, ok := g.providers[d.Provider]
	if !ok {
		return g.reject(d, fraud.ValidationError(fraud.CodeWebhookProviderUnknown, http.StatusNotFound, "unknown webhook provider", nil))
	}

	if err := g.checkSignature(p, d, log); err != nil {
		log.Warn("webhook rejected", zap.String("code", fraud.CodeOf(err)))
		return g.reject(d, err)
	}

	txID := d.TransactionID
	if txID == "" {
		txID = payloadDigest(d.Payload)
	}

	entry, claimed, err := g.ledger.Claim(ctx, p.Name, txID, g.now())
	if err != nil {
		metrics.WebhookDeliveriesTotal.WithLabelValues(p.Name, string(OutcomeFailed)).Inc()
		return OutcomeFailed, err
	}
	if !claimed {
		if entry.Processing() {
			log.Info("webhook still processing, retry requested", zap.Time("first_seen_at", entry.FirstSeenAt))
			metrics.WebhookDeliveriesTotal.WithLabelValues(p.Name, string(OutcomeInProgress)).Inc()
			return OutcomeInProgress, nil
		}
		log.Info("duplicate webhook acknowledged", zap.Time("first_seen_at", entry.FirstSeenAt))
		metrics.WebhookDeliveriesTotal.WithLabelValues(p.Name, string(OutcomeDuplicate)).Inc()
		return OutcomeDuplicate, nil
	}

	if err := fn(ctx, d); err != nil {
		if relErr := g.ledger.Release(ctx, p.Name, txID); relErr != nil {
			log.Error("failed to release idempotency claim", zap.Error(relErr))
		}
		log.Error("webhook handler failed", zap.Error(err))
		metrics.WebhookDeliveriesTotal.WithLabelValues(p.Name, string(OutcomeFailed)).Inc()
		return OutcomeFailed, err
	}

	if err := g.ledger.Complete(ctx, p.Name, txID, g.now()); err != nil {
		log.Error("failed to mark webhook processed", zap.Error(err))
	}
	metrics.WebhookDeliveriesTotal.WithLabelValues(p.Name, string(OutcomeAccepted)).Inc()
	return OutcomeAccepted, nil
}

func (g *Gate) reject(d Delivery, err error) (Outcome, error) {
	metrics.WebhookDeliveriesTotal.WithLabelValues(d.Provider, string(OutcomeRejected)).Inc()
	return OutcomeRejected, err
}

// checkSignature applies the signature policy. Only a non-nil error stops
// the delivery.
func (g *Gate) checkSignature(p Provider, d Delivery, log *zap.Logger) error {
	err := verifyDelivery(p, d)
	if err == nil {
		return nil
	}
	policy := g.SignaturePolicy()
	if policy.FailsOpen() {
		log.Warn("webhook signature check failed, continuing",
			zap.String("policy", string(policy)),
			zap.String("code", fraud.CodeOf(err)),
			zap.Bool("secret_configured", p.Secret != ""),
			zap.Bool("signature_present", d.Signature != ""),
		)
		return nil
	}
	if fraud.KindOf(err) == fraud.KindConfiguration {
		log.Error("webhook secret not configured")
	}
	return err
}

func verifyDelivery(p Provider, d Delivery) error {
	if p.Secret == "" {
		return fraud.ConfigurationError(fraud.CodeWebhookSecretMissing, "webhook secret not configured")
	}
	if d.Signature == "" {
		return fraud.SecurityViolation(fraud.CodeWebhookSignatureMissing, http.StatusUnauthorized, "missing webhook signature")
	}
	ok, err := verifyPayload(d.Payload, d.Signature, p)
	if err != nil {
		return err
	}
	if !ok {
		return fraud.SecurityViolation(fraud.CodeWebhookSignatureInvalid, http.StatusUnauthorized, "invalid webhook signature")
	}
	return nil
}

// verifyPayload accepts a signature over either the raw body or its
// canonical JSON form.
func verifyPayload(payload []byte, signature string, p Provider) (bool, error) {
	ok, err := Verify(payload, signature, p.Secret, p.Algorithm)
	if err != nil || ok {
		return ok, err
	}
	canonical, cerr := CanonicalJSON(payload)
	if cerr != nil {
		return false, nil
	}
	return Verify(canonical, signature, p.Secret, p.Algorithm)
}

func payloadDigest(payload []byte) string {
	sum := sha256.Sum256(payload)
	return "sha256:" + hex.EncodeToString(sum[:16])
}
