package sqlite

import (
	"context"
	"time"
)

// Exists reports whether key has an unexpired revocation row.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM revocations WHERE key = ? AND expires_at > ?`,
		key, s.now().UnixMilli(),
	).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetWithExpiry writes key with a lifetime of ttl, replacing any previous
// row. ttl is stored at millisecond resolution, rounded up.
func (s *Store) SetWithExpiry(ctx context.Context, key string, ttl time.Duration, value string) error {
	expires := s.now().Add(ttl + time.Millisecond - 1).UnixMilli()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revocations (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			value      = excluded.value,
			expires_at = MAX(revocations.expires_at, excluded.expires_at)`,
		key, value, expires,
	)
	return err
}

// DeleteExpiredRevocations purges rows past their expiry and returns how
// many went.
func (s *Store) DeleteExpiredRevocations(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM revocations WHERE expires_at <= ?`,
		s.now().UnixMilli(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
