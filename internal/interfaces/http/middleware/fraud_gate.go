package middleware

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"riskguard/internal/domain/fraud"
	"riskguard/internal/interfaces/http/evidence"
)

// RiskReviewHeader is set on requests admitted with a review recommendation
const RiskReviewHeader = "X-Risk-Review"

// FraudChecker decides allow, review or block for evidence
type FraudChecker interface {
	Execute(ctx context.Context, ev fraud.Evidence) (*fraud.RiskCheckResult, error)
}

// EvidenceFunc builds the typed evidence for a route from the request and
// the request-derived context
type EvidenceFunc func(r *http.Request, rc fraud.RequestContext) (fraud.Evidence, error)

// LoginEvidence builds login evidence keyed by the authenticated subject
func LoginEvidence(r *http.Request, rc fraud.RequestContext) (fraud.Evidence, error) {
	return fraud.LoginEvidence{RequestContext: rc, Identifier: rc.UserID}, nil
}

// FraudGate scores the request before next. Blocked requests get 403 with
// USER_BLOCKED or RISK_BLOCKED; review requests continue with the review
// header set. The result is available through RiskResultFrom.
func FraudGate(checker FraudChecker, build EvidenceFunc, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var userID string
			if claims, ok := ClaimsFrom(r.Context()); ok {
				userID = claims.UserID()
			}
			rc := evidence.RequestContext(r, userID, "", nil, time.Now())

			ev, err := build(r, rc)
			if err != nil {
				writeDomainError(w, fraud.ValidationError(fraud.CodeInvalidEvidence, http.StatusBadRequest, err.Error(), err))
				return
			}

			res, err := checker.Execute(r.Context(), ev)
			if err != nil {
				writeDomainError(w, err)
				return
			}

			if res.IsBlocked() {
				code := fraud.CodeRiskBlocked
				if res.HasFlag(fraud.FlagUserBlocked) {
					code = fraud.CodeUserBlocked
				}
				logger.Warn("request blocked by risk check",
					zap.String("user_id", userID),
					zap.String("code", code),
					zap.Int("risk_score", res.RiskScore),
				)
				writeError(w, http.StatusForbidden, code, "request blocked")
				return
			}
			if res.NeedsReview() {
				w.Header().Set(RiskReviewHeader, "true")
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), riskResultKey, res)))
		})
	}
}
