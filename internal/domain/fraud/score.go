package fraud

// Score bounds
const (
	MinScore = 0
	MaxScore = 100
)

// Level bands, lower bound inclusive
const (
	criticalFrom = 80
	highFrom     = 60
	mediumFrom   = 30
)

// Thresholds decide the recommendation for one check type.
// Review of zero disables the review band.
type Thresholds struct {
	Review int
	Block  int
}

// DefaultThresholds returns the stock thresholds per check type. Blocking a
// login is more disruptive, so logins are block-only with a stricter bar.
func DefaultThresholds() map[CheckType]Thresholds {
	return map[CheckType]Thresholds{
		CheckOrderCreation: {Review: 50, Block: 90},
		CheckPayment:       {Review: 50, Block: 90},
		CheckAccountUpdate: {Review: 60, Block: 90},
		CheckLogin:         {Review: 0, Block: 95},
	}
}

// Recommend maps a score onto a recommendation
func (t Thresholds) Recommend(score int) Recommendation {
	switch {
	case t.Block > 0 && score >= t.Block:
		return RecommendBlock
	case t.Review > 0 && score >= t.Review:
		return RecommendReview
	default:
		return RecommendAllow
	}
}

// LevelFor maps a score onto a fixed risk band
func LevelFor(score int) RiskLevel {
	switch {
	case score >= criticalFrom:
		return RiskLevelCritical
	case score >= highFrom:
		return RiskLevelHigh
	case score >= mediumFrom:
		return RiskLevelMedium
	default:
		return RiskLevelLow
	}
}

// Clamp bounds score to [MinScore, MaxScore]
func Clamp(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}
