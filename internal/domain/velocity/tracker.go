package velocity

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"riskguard/internal/domain/signal"
	"riskguard/internal/pkg/ttlstore"
)

// Tracker evaluates and records velocity per user
type Tracker struct {
	store ttlstore.Store[Record]
	cfg   Config
}

// NewTracker creates a tracker over store
func NewTracker(store ttlstore.Store[Record], cfg Config) *Tracker {
	return &Tracker{store: store, cfg: cfg}
}

// Evaluate scores the event against the user's window and records it.
// Evaluate-and-record is one atomic step per key. The record lives until its
// newest entry leaves the window.
func (t *Tracker) Evaluate(ctx context.Context, key Key, amount decimal.Decimal, ip string, now time.Time) (signal.Assessment, error) {
	if amount.IsNegative() {
		return signal.Assessment{}, fmt.Errorf("velocity %s: %w: %s", key.Scope, ErrNegativeAmount, amount)
	}

	var res signal.Assessment
	start := t.cfg.windowStart(now)

	_, err := t.store.Upsert(ctx, key.String(), now, func(cur Record, _ bool) (Record, time.Time, error) {
		entries := prune(cur.Entries, start)
		prior := summarize(entries, start)

		entry := Entry{At: now, Amount: amount, IP: ip}
		res = t.score(entries, prior, entry)

		i := sort.Search(len(entries), func(i int) bool { return entries[i].At.After(now) })
		entries = append(entries, Entry{})
		copy(entries[i+1:], entries[i:])
		entries[i] = entry

		return Record{Entries: entries}, entries[len(entries)-1].At.Add(t.cfg.Window + time.Nanosecond), nil
	})
	if err != nil {
		return signal.Assessment{}, fmt.Errorf("velocity %s: %w", key.Scope, err)
	}
	return res, nil
}

func (t *Tracker) score(entries []Entry, prior Stats, current Entry) signal.Assessment {
	var res signal.Assessment

	count := prior.Count + 1
	switch {
	case prior.Count >= t.cfg.MaxPerWindow:
		res.Add(t.cfg.HardCountPenalty, FlagCountExceeded)
	case float64(count) >= t.cfg.SoftRatio*float64(t.cfg.MaxPerWindow):
		res.Add(t.cfg.SoftCountPenalty, FlagCountHigh)
	}

	if prior.TotalAmount.Add(current.Amount).GreaterThan(t.cfg.MaxWindowAmount) {
		res.Add(t.cfg.AmountPenalty, FlagAmountExceeded)
	}

	if distinctIPs(entries, current.IP) > t.cfg.MaxDistinctIPs {
		res.Add(t.cfg.MultipleIPPenalty, FlagMultipleIPs)
	}

	if prior.LastAt != nil {
		gap := current.At.Sub(*prior.LastAt)
		if gap < 0 {
			gap = -gap
		}
		if gap < t.cfg.MinGap {
			res.Add(t.cfg.RapidPenalty, FlagRapidSuccession)
		}
	}

	return res
}

func distinctIPs(entries []Entry, ip string) int {
	seen := make(map[string]struct{}, len(entries)+1)
	if ip != "" {
		seen[ip] = struct{}{}
	}
	for _, e := range entries {
		if e.IP != "" {
			seen[e.IP] = struct{}{}
		}
	}
	return len(seen)
}

// Snapshot returns window statistics without recording anything
func (t *Tracker) Snapshot(ctx context.Context, key Key, now time.Time) (Stats, error) {
	start := t.cfg.windowStart(now)
	rec, ok, err := t.store.Get(ctx, key.String(), now)
	if err != nil {
		return Stats{}, fmt.Errorf("velocity %s: %w", key.Scope, err)
	}
	if !ok {
		return Stats{TotalAmount: decimal.Zero, WindowStart: start}, nil
	}
	return summarize(prune(rec.Entries, start), start), nil
}

// Entries returns the in-window entries for key
func (t *Tracker) Entries(ctx context.Context, key Key, now time.Time) ([]Entry, error) {
	rec, ok, err := t.store.Get(ctx, key.String(), now)
	if err != nil || !ok {
		return nil, err
	}
	return prune(rec.Entries, t.cfg.windowStart(now)), nil
}
