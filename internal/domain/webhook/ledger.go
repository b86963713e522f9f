package webhook

import (
	"context"
	"fmt"
	"time"

	"riskguard/internal/pkg/ttlstore"
)

// DefaultIdempotencyTTL is how long a processed delivery is remembered
const DefaultIdempotencyTTL = 24 * time.Hour

// DefaultProcessingLease bounds how long a claim may stay in processing
// before a retry can take it over
const DefaultProcessingLease = 5 * time.Minute

// Ledger entry states. An entry without a state is processed.
const (
	StateProcessing = "processing"
	StateProcessed  = "processed"
)

// LedgerEntry records the first accepted delivery of a transaction
type LedgerEntry struct {
	Provider      string     `json:"provider"`
	TransactionID string     `json:"transaction_id"`
	State         string     `json:"state,omitempty"`
	FirstSeenAt   time.Time  `json:"first_seen_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// Processing reports whether the claim holder has not finished yet
func (e LedgerEntry) Processing() bool {
	return e.State == StateProcessing
}

// Ledger is the idempotency ledger keyed by provider and transaction id
type Ledger struct {
	store ttlstore.Store[LedgerEntry]
	ttl   time.Duration
	lease time.Duration
}

// NewLedger creates a ledger. Non-positive durations take the defaults.
func NewLedger(store ttlstore.Store[LedgerEntry], ttl, lease time.Duration) *Ledger {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	if lease <= 0 {
		lease = DefaultProcessingLease
	}
	return &Ledger{store: store, ttl: ttl, lease: lease}
}

// LedgerKey is the ledger key for a delivery. Provider names never contain
// an underscore, so the first one separates the two parts.
func LedgerKey(provider, transactionID string) string {
	return provider + "_" + transactionID
}

// Claim atomically records the key as processing. It returns false, with
// the existing entry, when the key is already present.
func (l *Ledger) Claim(ctx context.Context, provider, transactionID string, now time.Time) (LedgerEntry, bool, error) {
	claimed := false
	entry, err := l.store.Upsert(ctx, LedgerKey(provider, transactionID), now, func(cur LedgerEntry, exists bool) (LedgerEntry, time.Time, error) {
		if exists {
			claimed = false
			return cur, time.Time{}, ttlstore.ErrSkipWrite
		}
		claimed = true
		return LedgerEntry{
			Provider:      provider,
			TransactionID: transactionID,
			State:         StateProcessing,
			FirstSeenAt:   now,
		}, now.Add(l.lease), nil
	})
	if err != nil {
		return LedgerEntry{}, false, fmt.Errorf("idempotency ledger: %w", err)
	}
	return entry, claimed, nil
}

// Complete marks the key processed and keeps it for the ledger TTL
func (l *Ledger) Complete(ctx context.Context, provider, transactionID string, now time.Time) error {
	_, err := l.store.Upsert(ctx, LedgerKey(provider, transactionID), now, func(cur LedgerEntry, exists bool) (LedgerEntry, time.Time, error) {
		if !exists {
			cur = LedgerEntry{Provider: provider, TransactionID: transactionID, FirstSeenAt: now}
		}
		cur.State = StateProcessed
		cur.CompletedAt = &now
		return cur, now.Add(l.ttl), nil
	})
	if err != nil {
		return fmt.Errorf("idempotency ledger: %w", err)
	}
	return nil
}

// Release forgets the key so the provider's retry is processed again
func (l *Ledger) Release(ctx context.Context, provider, transactionID string) error {
	if err := l.store.Delete(ctx, LedgerKey(provider, transactionID)); err != nil {
		return fmt.Errorf("idempotency ledger: %w", err)
	}
	return nil
}
