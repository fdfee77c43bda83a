package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/aussiebroadwan/authkit/pkg/authkit"
)

const principalColumns = `id, email, password_hash, roles, mfa_enabled, mfa_secret, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrincipal(row rowScanner) (authkit.Principal, error) {
	var (
		p                authkit.Principal
		roles            string
		secret           sql.NullString
		created, updated int64
	)
	err := row.Scan(&p.ID, &p.Email, &p.PasswordHash, &roles, &p.MFAEnabled, &secret, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return authkit.Principal{}, authkit.ErrNotFound
		}
		return authkit.Principal{}, err
	}

	if p.Roles, err = splitRoles(roles); err != nil {
		return authkit.Principal{}, err
	}
	p.MFASecret = secret.String
	p.CreatedAt = fromMillis(created)
	p.UpdatedAt = fromMillis(updated)
	return p, nil
}

func (s *Store) FindByEmail(ctx context.Context, email string) (authkit.Principal, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE email = ?`,
		authkit.NormalizeEmail(email),
	)
	return scanPrincipal(row)
}

func (s *Store) FindByID(ctx context.Context, id string) (authkit.Principal, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE id = ?`,
		id,
	)
	return scanPrincipal(row)
}

// Save inserts or replaces the principal with p.ID. created_at is kept from
// the first insert.
func (s *Store) Save(ctx context.Context, p authkit.Principal) error {
	secret := sql.NullString{String: p.MFASecret, Valid: p.MFASecret != ""}
	roles, err := joinRoles(p.Roles)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO principals (`+principalColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			email         = excluded.email,
			password_hash = excluded.password_hash,
			roles         = excluded.roles,
			mfa_enabled   = excluded.mfa_enabled,
			mfa_secret    = excluded.mfa_secret,
			updated_at    = excluded.updated_at`,
		p.ID,
		authkit.NormalizeEmail(p.Email),
		p.PasswordHash,
		roles,
		p.MFAEnabled,
		secret,
		p.CreatedAt.UnixMilli(),
		p.UpdatedAt.UnixMilli(),
	)
	if isConstraint(err) {
		return authkit.ErrConflict
	}
	return err
}

// CountPrincipals reports how many principals exist. Bootstrap uses it to
// decide whether to seed an administrator.
func (s *Store) CountPrincipals(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM principals`).Scan(&n)
	return n, err
}
