package authkit

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/authkit/pkg/autherr"
	"github.com/aussiebroadwan/authkit/pkg/slogx"
)

// withRepo runs fn under the repository timeout. ErrNotFound and
// ErrConflict pass through; anything else means the store is unavailable.
func withRepo[T any](ctx context.Context, m *Manager, op string, fn func(context.Context) (T, error)) (T, error) {
	timeout := m.RepositoryTimeout
	if timeout <= 0 {
		timeout = DefaultRepositoryTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	v, err := fn(ctx)
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
		return v, err
	}

	slogx.FromContext(ctx).Error("repository call failed", "op", op, "err", err)
	var zero T
	return zero, autherr.Wrap(autherr.ErrRepositoryUnavailable, err)
}

func (m *Manager) findByEmail(ctx context.Context, email string) (Principal, error) {
	return withRepo(ctx, m, "find_by_email", func(ctx context.Context) (Principal, error) {
		return m.Repository.FindByEmail(ctx, email)
	})
}

func (m *Manager) findByID(ctx context.Context, id string) (Principal, error) {
	if id == "" {
		return Principal{}, ErrNotFound
	}
	return withRepo(ctx, m, "find_by_id", func(ctx context.Context) (Principal, error) {
		return m.Repository.FindByID(ctx, id)
	})
}

func (m *Manager) save(ctx context.Context, p Principal) error {
	_, err := withRepo(ctx, m, "save", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, m.Repository.Save(ctx, p)
	})
	if errors.Is(err, ErrConflict) {
		return autherr.Wrapf(autherr.ErrPrincipalExists, "%s", p.Email)
	}
	return err
}
