// Package token keeps a blacklist of revoked bearer tokens. Tokens are
// never stored: only a truncated SHA-256 hash is kept.
package token

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"go.uber.org/zap"

	"riskguard/internal/pkg/metrics"
	"riskguard/internal/pkg/syncutil"
	"riskguard/internal/pkg/ttlstore"
)

// Defaults
const (
	DefaultHashLength        = 32
	DefaultBulkRevocationTTL = 24 * time.Hour
)

// Revocation reasons
const (
	ReasonLogout         = "logout"
	ReasonPasswordChange = "password_change"
	ReasonSuspension     = "suspension"
	ReasonCompromise     = "compromise"
)

// BlacklistEntry is kept per revoked token hash
type BlacklistEntry struct {
	ExpiresAt   time.Time `json:"expires_at"`
	OwnerUserID string    `json:"owner_user_id,omitempty"`
	Reason      string    `json:"reason,omitempty"`
}

// UserIndex maps a user to the hashes of their live tokens
type UserIndex struct {
	// Tokens maps token hash to that token's expiry
	Tokens map[string]time.Time `json:"tokens"`
	// RevokedSince rejects every token issued before it, tracked or not
	RevokedSince *time.Time `json:"revoked_since,omitempty"`
	CutoffUntil  time.Time  `json:"cutoff_until,omitempty"`
}

// Config configures a Registry
type Config struct {
	HashLength        int
	BulkRevocationTTL time.Duration
}

// Registry is the token revocation registry
type Registry struct {
	blacklist ttlstore.Store[BlacklistEntry]
	index     ttlstore.Store[UserIndex]
	users     syncutil.ShardedMutex
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time
}

// NewRegistry creates a registry over the blacklist and user index stores
func NewRegistry(blacklist ttlstore.Store[BlacklistEntry], index ttlstore.Store[UserIndex], cfg Config, logger *zap.Logger) *Registry {
	if cfg.HashLength <= 0 || cfg.HashLength > sha256.Size*2 {
		cfg.HashLength = DefaultHashLength
	}
	if cfg.BulkRevocationTTL <= 0 {
		cfg.BulkRevocationTTL = DefaultBulkRevocationTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		blacklist: blacklist,
		index:     index,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Hash returns the truncated hex SHA-256 of token
func (r *Registry) Hash(token string) string {
	return HashToken(token, r.cfg.HashLength)
}

// HashToken returns the first n hex chars of the SHA-256 of token
func HashToken(token string, n int) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])[:n]
}

// Revoke blacklists token until expiresAt. Tokens already past expiry
// need no entry.
func (r *Registry) Revoke(ctx context.Context, token string, expiresAt time.Time, userID, reason string) error {
	now := r.now()
	if !expiresAt.After(now) {
		return nil
	}
	h := r.Hash(token)

	_, err := r.blacklist.Upsert(ctx, h, now, func(cur BlacklistEntry, exists bool) (BlacklistEntry, time.Time, error) {
		if exists && !cur.ExpiresAt.Before(expiresAt) {
			return cur, time.Time{}, ttlstore.ErrSkipWrite
		}
		return BlacklistEntry{ExpiresAt: expiresAt, OwnerUserID: userID, Reason: reason}, expiresAt, nil
	})
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}

	metrics.TokenRevocationsTotal.WithLabelValues("single").Inc()
	r.logger.Info("token revoked",
		zap.String("token_hash", h),
		zap.String("user_id", userID),
		zap.String("reason", reason),
	)
	return nil
}

// Track records an issued token so RevokeAll can find it later
func (r *Registry) Track(ctx context.Context, token, userID string, expiresAt time.Time) error {
	if userID == "" {
		return nil
	}
	now := r.now()
	if !expiresAt.After(now) {
		return nil
	}
	h := r.Hash(token)

	unlock := r.users.Lock(userID)
	defer unlock()

	_, err := r.index.Upsert(ctx, userID, now, func(cur UserIndex, _ bool) (UserIndex, time.Time, error) {
		next := prune(cur, now)
		next.Tokens[h] = expiresAt
		return next, next.expiry(), nil
	})
	if err != nil {
		return fmt.Errorf("track token: %w", err)
	}
	return nil
}

// RevokeAll blacklists every tracked token of userID and stamps a cutoff
// that rejects untracked tokens issued before now. It returns the number of
// tokens blacklisted; a user with no tracked tokens yields 0.
func (r *Registry) RevokeAll(ctx context.Context, userID, reason string) (int, error) {
	now := r.now()
	until := now.Add(r.cfg.BulkRevocationTTL)

	unlock := r.users.Lock(userID)
	defer unlock()

	var hashes []string
	_, err := r.index.Upsert(ctx, userID, now, func(cur UserIndex, _ bool) (UserIndex, time.Time, error) {
		live := prune(cur, now)
		hashes = hashes[:0]
		for h := range live.Tokens {
			hashes = append(hashes, h)
		}
		cutoff := now
		next := UserIndex{
			Tokens:       map[string]time.Time{},
			RevokedSince: &cutoff,
			CutoffUntil:  until,
		}
		return next, next.expiry(), nil
	})
	if err != nil {
		return 0, fmt.Errorf("revoke all tokens: %w", err)
	}

	revoked := 0
	for _, h := range hashes {
		_, err := r.blacklist.Upsert(ctx, h, now, func(cur BlacklistEntry, exists bool) (BlacklistEntry, time.Time, error) {
			if exists && !cur.ExpiresAt.Before(until) {
				return cur, time.Time{}, ttlstore.ErrSkipWrite
			}
			return BlacklistEntry{ExpiresAt: until, OwnerUserID: userID, Reason: reason}, until, nil
		})
		if err != nil {
			return revoked, fmt.Errorf("revoke all tokens: %w", err)
		}
		revoked++
	}

	metrics.TokenRevocationsTotal.WithLabelValues("bulk").Add(float64(revoked))
	r.logger.Info("all user tokens revoked",
		zap.String("user_id", userID),
		zap.String("reason", reason),
		zap.Int("count", revoked),
	)
	return revoked, nil
}

// IsRevoked reports whether token is blacklisted
func (r *Registry) IsRevoked(ctx context.Context, token string) (bool, error) {
	_, ok, err := r.blacklist.Get(ctx, r.Hash(token), r.now())
	if err != nil {
		return false, fmt.Errorf("check revocation: %w", err)
	}
	if ok {
		metrics.RevokedTokenHitsTotal.Inc()
	}
	return ok, nil
}

// RevokedSince returns the bulk revocation cutoff for userID, if one is in force
func (r *Registry) RevokedSince(ctx context.Context, userID string) (time.Time, bool, error) {
	now := r.now()
	idx, ok, err := r.index.Get(ctx, userID, now)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("check revocation cutoff: %w", err)
	}
	if !ok || idx.RevokedSince == nil || !now.Before(idx.CutoffUntil) {
		return time.Time{}, false, nil
	}
	return *idx.RevokedSince, true, nil
}

// IsRevokedFor combines the blacklist with the user's bulk cutoff. A token
// issued strictly before the cutoff is revoked.
func (r *Registry) IsRevokedFor(ctx context.Context, token, userID string, issuedAt time.Time) (bool, error) {
	revoked, err := r.IsRevoked(ctx, token)
	if err != nil || revoked || userID == "" {
		return revoked, err
	}
	cutoff, ok, err := r.RevokedSince(ctx, userID)
	if err != nil || !ok {
		return false, err
	}
	if issuedAt.Before(cutoff) {
		metrics.RevokedTokenHitsTotal.Inc()
		return true, nil
	}
	return false, nil
}

// prune returns a copy of idx without expired token hashes
func prune(idx UserIndex, now time.Time) UserIndex {
	next := UserIndex{
		Tokens:       make(map[string]time.Time, len(idx.Tokens)+1),
		RevokedSince: idx.RevokedSince,
		CutoffUntil:  idx.CutoffUntil,
	}
	for h, exp := range idx.Tokens {
		if now.Before(exp) {
			next.Tokens[h] = exp
		}
	}
	if next.RevokedSince != nil && !now.Before(next.CutoffUntil) {
		next.RevokedSince = nil
		next.CutoffUntil = time.Time{}
	}
	return next
}

// expiry is the latest instant anything in the index still matters
func (idx UserIndex) expiry() time.Time {
	latest := idx.CutoffUntil
	for _, exp := range idx.Tokens {
		if exp.After(latest) {
			latest = exp
		}
	}
	return latest
}
