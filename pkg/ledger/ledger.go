// Package ledger records revoked token identifiers in an external TTL-backed
// store. The store is the single source of truth: nothing is cached locally,
// so a revoke from any process is visible to every subsequent check.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/authkit/pkg/autherr"
)

// DefaultPrefix namespaces revocation keys in a shared store.
const DefaultPrefix = "revoked:"

// DefaultTimeout bounds a single store round trip.
const DefaultTimeout = 2 * time.Second

// Store is the key-value-with-TTL capability the ledger needs.
type Store interface {
	Exists(ctx context.Context, key string) (bool, error)
	SetWithExpiry(ctx context.Context, key string, ttl time.Duration, value string) error
}

// Ledger answers "has this jti been revoked?" and records revocations.
type Ledger struct {
	Store Store

	// Prefix is prepended to every jti. Defaults to DefaultPrefix.
	Prefix string

	// Timeout applies to each store call. Defaults to DefaultTimeout.
	Timeout time.Duration

	// Leeway extends every record by the codec's clock-skew tolerance so a
	// revoked token can't come back to life during its grace period.
	Leeway time.Duration

	Now func() time.Time
}

func (l *Ledger) key(jti string) string {
	if l.Prefix == "" {
		return DefaultPrefix + jti
	}
	return l.Prefix + jti
}

func (l *Ledger) now() time.Time {
	if l.Now == nil {
		return time.Now()
	}
	return l.Now()
}

func (l *Ledger) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	d := l.Timeout
	if d <= 0 {
		d = DefaultTimeout
	}
	return context.WithTimeout(ctx, d)
}

// IsRevoked reports whether jti has a live revocation record. Store failures
// surface as autherr.ErrLedgerUnavailable; callers must treat that as a
// rejection, never as "not revoked".
func (l *Ledger) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, errors.New("ledger: empty jti")
	}

	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	revoked, err := l.Store.Exists(ctx, l.key(jti))
	if err != nil {
		return false, autherr.Wrap(autherr.ErrLedgerUnavailable, err)
	}
	return revoked, nil
}

// Revoke records jti until expiresAt (plus leeway). A token that is already
// past that point is unusable anyway, so nothing is written.
func (l *Ledger) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	if jti == "" {
		return errors.New("ledger: empty jti")
	}

	ttl := RemainingTTL(expiresAt.Add(l.Leeway), l.now())
	if ttl <= 0 {
		return nil
	}

	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	if err := l.Store.SetWithExpiry(ctx, l.key(jti), ttl, "1"); err != nil {
		return autherr.Wrap(autherr.ErrLedgerUnavailable, err)
	}
	return nil
}

// Ping checks the store is reachable by probing a key that never exists.
func (l *Ledger) Ping(ctx context.Context) error {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	if _, err := l.Store.Exists(ctx, l.key("__ping__")); err != nil {
		return autherr.Wrap(autherr.ErrLedgerUnavailable, err)
	}
	return nil
}

// RemainingTTL is the record lifetime for a token expiring at expiresAt.
// Stores keep millisecond precision, so the duration is rounded up to the
// next millisecond; the record never expires before the token does. It is
// zero or negative when the token has already expired.
func RemainingTTL(expiresAt, now time.Time) time.Duration {
	d := expiresAt.Sub(now)
	if d <= 0 {
		return d
	}
	if rem := d % time.Millisecond; rem != 0 {
		d += time.Millisecond - rem
	}
	return d
}
