package middleware

import (
	"context"

	"riskguard/internal/domain/fraud"
	"riskguard/internal/domain/webhook"
	"riskguard/internal/infrastructure/auth"
)

type contextKey int

const (
	claimsKey contextKey = iota
	rawTokenKey
	riskResultKey
	deliveryKey
)

// ClaimsFrom returns the verified token claims stored by Authenticate
func ClaimsFrom(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*auth.Claims)
	return c, ok && c != nil
}

// RawTokenFrom returns the bearer token verified by Authenticate
func RawTokenFrom(ctx context.Context) (string, bool) {
	t, ok := ctx.Value(rawTokenKey).(string)
	return t, ok && t != ""
}

// RiskResultFrom returns the result stored by FraudGate
func RiskResultFrom(ctx context.Context) (*fraud.RiskCheckResult, bool) {
	r, ok := ctx.Value(riskResultKey).(*fraud.RiskCheckResult)
	return r, ok && r != nil
}

// DeliveryFrom returns the webhook delivery admitted by Webhook
func DeliveryFrom(ctx context.Context) (webhook.Delivery, bool) {
	d, ok := ctx.Value(deliveryKey).(webhook.Delivery)
	return d, ok
}
