// Package velocity tracks per-user activity in a trailing time window and
// scores bursts of transactions, amounts and IP changes.
package velocity

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Scope separates independent counters for the same user
type Scope string

const (
	ScopeTransaction Scope = "transaction"
	ScopeLogin       Scope = "login"
)

// Flags raised by the tracker
const (
	FlagCountExceeded   = "velocity_count_exceeded"
	FlagCountHigh       = "velocity_count_high"
	FlagAmountExceeded  = "velocity_amount_exceeded"
	FlagMultipleIPs     = "velocity_multiple_ips"
	FlagRapidSuccession = "velocity_rapid_succession"
)

// ErrNegativeAmount is returned for an event with an amount below zero.
// Such events are never recorded.
var ErrNegativeAmount = errors.New("velocity: negative amount")

// Key identifies one velocity record
type Key struct {
	Scope  Scope
	UserID string
}

func (k Key) String() string {
	return string(k.Scope) + ":" + k.UserID
}

// Entry is one recorded event
type Entry struct {
	At     time.Time       `json:"at"`
	Amount decimal.Decimal `json:"amount"`
	IP     string          `json:"ip,omitempty"`
}

// Record holds a user's in-window entries ordered by time
type Record struct {
	Entries []Entry `json:"entries"`
}

// Stats summarises a record inside the active window
type Stats struct {
	Count       int             `json:"count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	DistinctIPs int             `json:"distinct_ips"`
	LastAt      *time.Time      `json:"last_at,omitempty"`
	WindowStart time.Time       `json:"window_start"`
}

// Config holds the window and thresholds. Everything is injected so tests
// can run with short windows.
type Config struct {
	Window          time.Duration
	MaxPerWindow    int
	SoftRatio       float64
	MaxWindowAmount decimal.Decimal
	MaxDistinctIPs  int
	MinGap          time.Duration

	HardCountPenalty  int
	SoftCountPenalty  int
	AmountPenalty     int
	MultipleIPPenalty int
	RapidPenalty      int
}

// DefaultConfig returns the stock thresholds
func DefaultConfig() Config {
	return Config{
		Window:            time.Hour,
		MaxPerWindow:      10,
		SoftRatio:         0.7,
		MaxWindowAmount:   decimal.NewFromInt(100000),
		MaxDistinctIPs:    3,
		MinGap:            30 * time.Second,
		HardCountPenalty:  25,
		SoftCountPenalty:  10,
		AmountPenalty:     20,
		MultipleIPPenalty: 15,
		RapidPenalty:      15,
	}
}

// windowStart is the oldest instant still inside the window. An entry
// exactly at windowStart counts.
func (c Config) windowStart(now time.Time) time.Time {
	return now.Add(-c.Window)
}

// prune returns a fresh slice holding only in-window entries
func prune(entries []Entry, start time.Time) []Entry {
	out := make([]Entry, 0, len(entries)+1)
	for _, e := range entries {
		if !e.At.Before(start) {
			out = append(out, e)
		}
	}
	return out
}

func summarize(entries []Entry, start time.Time) Stats {
	st := Stats{TotalAmount: decimal.Zero, WindowStart: start}
	ips := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		st.Count++
		st.TotalAmount = st.TotalAmount.Add(e.Amount)
		if e.IP != "" {
			ips[e.IP] = struct{}{}
		}
		if st.LastAt == nil || e.At.After(*st.LastAt) {
			at := e.At
			st.LastAt = &at
		}
	}
	st.DistinctIPs = len(ips)
	return st
}
