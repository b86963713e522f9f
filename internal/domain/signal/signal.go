// Package signal holds the result type shared by the risk sub-checks.
package signal

// Assessment is the contribution of one sub-check to a risk score.
// Score may be negative for credits.
type Assessment struct {
	Score int      `json:"score"`
	Flags []string `json:"flags,omitempty"`
}

// Add applies points and records flag. A zero-point call still records the flag.
func (a *Assessment) Add(points int, flag string) {
	a.Score += points
	if flag != "" {
		a.Flags = append(a.Flags, flag)
	}
}

// Merge folds other into a
func (a *Assessment) Merge(other Assessment) {
	a.Score += other.Score
	a.Flags = append(a.Flags, other.Flags...)
}

// HasFlag reports whether flag was raised
func (a Assessment) HasFlag(flag string) bool {
	for _, f := range a.Flags {
		if f == flag {
			return true
		}
	}
	return false
}
