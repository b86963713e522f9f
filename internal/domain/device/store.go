// Package device correlates device fingerprints with the users seen on them.
package device

import (
	"context"
	"fmt"
	"time"

	"riskguard/internal/domain/signal"
	"riskguard/internal/pkg/ttlstore"
)

// Flags raised by the store
const (
	FlagUserMismatch       = "device_user_mismatch"
	FlagHighActivity       = "device_high_activity"
	FlagNewDevice          = "device_new"
	FlagFingerprintMissing = "device_fingerprint_missing"
)

// Record is the state kept per fingerprint
type Record struct {
	UserID           string    `json:"user_id"`
	PreviousUserID   string    `json:"previous_user_id,omitempty"`
	FirstSeen        time.Time `json:"first_seen"`
	LastSeen         time.Time `json:"last_seen"`
	TransactionCount int       `json:"transaction_count"`
}

// Config holds penalties and retention
type Config struct {
	RecordTTL           time.Duration
	HighActivityCount   int
	MismatchPenalty     int
	HighActivityPenalty int
	NewDevicePenalty    int
}

// DefaultConfig returns the stock settings
func DefaultConfig() Config {
	return Config{
		RecordTTL:           30 * 24 * time.Hour,
		HighActivityCount:   50,
		MismatchPenalty:     30,
		HighActivityPenalty: 10,
		NewDevicePenalty:    5,
	}
}

// Store evaluates fingerprints and keeps their records
type Store struct {
	store ttlstore.Store[Record]
	cfg   Config
}

// NewStore creates a fingerprint store
func NewStore(store ttlstore.Store[Record], cfg Config) *Store {
	return &Store{store: store, cfg: cfg}
}

// Evaluate scores fingerprint for userID and records the sighting.
// Anonymous sightings (empty userID) are never written and score nothing.
func (s *Store) Evaluate(ctx context.Context, fingerprint, userID string, now time.Time) (signal.Assessment, error) {
	var res signal.Assessment

	if fingerprint == "" {
		res.Add(0, FlagFingerprintMissing)
		return res, nil
	}
	if userID == "" {
		return res, nil
	}

	_, err := s.store.Upsert(ctx, fingerprint, now, func(cur Record, exists bool) (Record, time.Time, error) {
		res = signal.Assessment{}
		expiresAt := now.Add(s.cfg.RecordTTL)

		if !exists {
			res.Add(s.cfg.NewDevicePenalty, FlagNewDevice)
			return Record{
				UserID:           userID,
				FirstSeen:        now,
				LastSeen:         now,
				TransactionCount: 1,
			}, expiresAt, nil
		}

		next := cur
		next.TransactionCount++
		if now.After(next.LastSeen) {
			next.LastSeen = now
		}

		if cur.UserID != userID {
			res.Add(s.cfg.MismatchPenalty, FlagUserMismatch)
			next.PreviousUserID = cur.UserID
			next.UserID = userID
		}
		if next.TransactionCount > s.cfg.HighActivityCount {
			res.Add(s.cfg.HighActivityPenalty, FlagHighActivity)
		}
		return next, expiresAt, nil
	})
	if err != nil {
		return signal.Assessment{}, fmt.Errorf("device: %w", err)
	}
	return res, nil
}

// Lookup returns the record for fingerprint, if any
func (s *Store) Lookup(ctx context.Context, fingerprint string, now time.Time) (Record, bool, error) {
	return s.store.Get(ctx, fingerprint, now)
}
