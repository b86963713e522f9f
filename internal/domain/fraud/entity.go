package fraud

import (
	"time"

	"github.com/google/uuid"
)

// RiskLevel represents the severity of fraud risk
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

// Recommendation is what the caller should do with the request
type Recommendation string

const (
	RecommendAllow  Recommendation = "allow"
	RecommendReview Recommendation = "review"
	RecommendBlock  Recommendation = "block"
)

// Flags raised outside the individual sub-checks
const (
	FlagUserBlocked     = "user_blocked"
	FlagRoundAmount     = "round_amount"
	FlagHighAmount      = "high_amount"
	FlagCardPayment     = "card_payment"
	FlagCashOnDelivery  = "cash_on_delivery"
	FlagLateNight       = "late_night"
	FlagScoringDegraded = "scoring_degraded"
	FlagScoringError    = "scoring_error"
)

// RiskCheckResult is the outcome of scoring one evidence set
type RiskCheckResult struct {
	CheckID        uuid.UUID      `json:"check_id"`
	CheckType      CheckType      `json:"check_type"`
	UserID         string         `json:"user_id,omitempty"`
	RiskScore      int            `json:"risk_score"`
	RiskLevel      RiskLevel      `json:"risk_level"`
	Recommendation Recommendation `json:"recommendation"`
	Flags          []string       `json:"flags"`

	// Breakdown holds every non-zero sub-check contribution
	Breakdown    map[string]int `json:"breakdown,omitempty"`
	FailedChecks []string       `json:"failed_checks,omitempty"`

	EvaluatedAt time.Time     `json:"evaluated_at"`
	Latency     time.Duration `json:"-"`
}

// IsBlocked reports whether the result recommends blocking
func (r *RiskCheckResult) IsBlocked() bool {
	return r.Recommendation == RecommendBlock
}

// NeedsReview reports whether the result recommends manual review
func (r *RiskCheckResult) NeedsReview() bool {
	return r.Recommendation == RecommendReview
}

// HasFlag reports whether flag was raised
func (r *RiskCheckResult) HasFlag(flag string) bool {
	for _, f := range r.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// UserBlockState is the persisted block flag for a user
type UserBlockState struct {
	UserID    string     `json:"user_id"`
	IsBlocked bool       `json:"is_blocked"`
	UnblockAt *time.Time `json:"unblock_at,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ActiveAt reports whether the block is in force at now. A block without
// UnblockAt never lapses on its own.
func (s *UserBlockState) ActiveAt(now time.Time) bool {
	if s == nil || !s.IsBlocked {
		return false
	}
	return s.UnblockAt == nil || now.Before(*s.UnblockAt)
}

// LapsedAt reports whether a timed block has run out at now
func (s *UserBlockState) LapsedAt(now time.Time) bool {
	return s != nil && s.IsBlocked && s.UnblockAt != nil && !now.Before(*s.UnblockAt)
}
