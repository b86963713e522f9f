package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"riskguard/internal/domain/fraud"
	"riskguard/internal/domain/velocity"
)

// RiskCheckRequest is the body of an explicit risk check
type RiskCheckRequest struct {
	CheckType     string          `json:"check_type" validate:"required,oneof=order_creation payment login account_update"`
	UserID        string          `json:"user_id" validate:"omitempty,max=128"`
	Amount        decimal.Decimal `json:"amount" validate:"gte=0"`
	PaymentMethod string          `json:"payment_method" validate:"omitempty,oneof=card cod ewallet bank_transfer"`
	Provider      string          `json:"provider,omitempty" validate:"omitempty,max=64"`
	OrderID       string          `json:"order_id,omitempty" validate:"omitempty,max=128"`
	ItemCount     int             `json:"item_count,omitempty" validate:"gte=0"`
	Identifier    string          `json:"identifier,omitempty" validate:"omitempty,max=256"`
	Fields        []string        `json:"fields,omitempty" validate:"max=32"`

	// Set by services that forward the end user's request details
	IP        string `json:"ip,omitempty" validate:"omitempty,ip"`
	UserAgent string `json:"user_agent,omitempty" validate:"omitempty,max=1024"`

	// Client-side device hints used to derive a fingerprint
	DeviceFingerprint string         `json:"device_fingerprint,omitempty" validate:"omitempty,max=256"`
	DeviceInfo        map[string]any `json:"device_info,omitempty"`
}

// Evidence converts the request into typed evidence. rc carries what the
// HTTP boundary derived from the request itself.
func (r *RiskCheckRequest) Evidence(rc fraud.RequestContext) fraud.Evidence {
	if r.UserID != "" {
		rc.UserID = r.UserID
	}
	if r.IP != "" {
		rc.IP = r.IP
	}
	if r.UserAgent != "" {
		rc.UserAgent = r.UserAgent
	}
	if r.DeviceInfo != nil {
		rc.DeviceInfo = r.DeviceInfo
	}

	switch fraud.CheckType(r.CheckType) {
	case fraud.CheckOrderCreation:
		return fraud.OrderEvidence{
			RequestContext: rc,
			Amount:         r.Amount,
			PaymentMethod:  fraud.PaymentMethod(r.PaymentMethod),
			ItemCount:      r.ItemCount,
		}
	case fraud.CheckPayment:
		return fraud.PaymentEvidence{
			RequestContext: rc,
			Amount:         r.Amount,
			PaymentMethod:  fraud.PaymentMethod(r.PaymentMethod),
			Provider:       r.Provider,
			OrderID:        r.OrderID,
		}
	case fraud.CheckLogin:
		return fraud.LoginEvidence{RequestContext: rc, Identifier: r.Identifier}
	case fraud.CheckAccountUpdate:
		return fraud.AccountUpdateEvidence{RequestContext: rc, Fields: r.Fields}
	}
	return nil
}

// RiskCheckResponse is returned for a risk check
type RiskCheckResponse struct {
	CheckID        uuid.UUID      `json:"check_id"`
	CheckType      string         `json:"check_type"`
	RiskScore      int            `json:"risk_score"`
	RiskLevel      string         `json:"risk_level"`
	Recommendation string         `json:"recommendation"`
	Flags          []string       `json:"flags"`
	Breakdown      map[string]int `json:"breakdown,omitempty"`
	FailedChecks   []string       `json:"failed_checks,omitempty"`
	EvaluatedAt    time.Time      `json:"evaluated_at"`
}

// NewRiskCheckResponse maps a result onto the response body
func NewRiskCheckResponse(res *fraud.RiskCheckResult) RiskCheckResponse {
	return RiskCheckResponse{
		CheckID:        res.CheckID,
		CheckType:      string(res.CheckType),
		RiskScore:      res.RiskScore,
		RiskLevel:      string(res.RiskLevel),
		Recommendation: string(res.Recommendation),
		Flags:          res.Flags,
		Breakdown:      res.Breakdown,
		FailedChecks:   res.FailedChecks,
		EvaluatedAt:    res.EvaluatedAt,
	}
}

// VelocitySnapshotResponse reports a user's current window
type VelocitySnapshotResponse struct {
	UserID      string         `json:"user_id"`
	Transaction velocity.Stats `json:"transaction"`
	Login       velocity.Stats `json:"login"`
}

// RevokeAllRequest asks for every token of a user to be revoked
type RevokeAllRequest struct {
	UserID string `json:"user_id" validate:"required,max=128"`
	Reason string `json:"reason" validate:"omitempty,oneof=password_change suspension compromise logout"`
}

// RevokeAllResponse reports how many tokens were revoked
type RevokeAllResponse struct {
	UserID  string `json:"user_id"`
	Revoked int    `json:"revoked"`
}

// TokenResponse carries a freshly issued access token
type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// WebhookAck acknowledges a webhook delivery
type WebhookAck struct {
	Received bool   `json:"received"`
	Status   string `json:"status"`
}

// ErrorResponse is the body of every error
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
