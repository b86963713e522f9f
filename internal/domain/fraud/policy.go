package fraud

import "fmt"

// FailurePolicy decides what happens when a check cannot complete
type FailurePolicy string

const (
	// PolicyContinueWithZero drops the failed contribution and carries on.
	PolicyContinueWithZero FailurePolicy = "continue_with_zero"
	// PolicyEscalateToReview drops the contribution but never lets the
	// result fall below review.
	PolicyEscalateToReview FailurePolicy = "escalate_to_review"
	// PolicyReject fails the request.
	PolicyReject FailurePolicy = "reject"
	// PolicyWarn logs the failure and lets the request through.
	PolicyWarn FailurePolicy = "warn"
)

// ParseFailurePolicy parses a configured policy name
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch p := FailurePolicy(s); p {
	case PolicyContinueWithZero, PolicyEscalateToReview, PolicyReject, PolicyWarn:
		return p, nil
	case "":
		return PolicyContinueWithZero, nil
	default:
		return "", fmt.Errorf("unknown failure policy %q", s)
	}
}

// FailsOpen reports whether the policy lets the request proceed
func (p FailurePolicy) FailsOpen() bool {
	return p != PolicyReject
}
