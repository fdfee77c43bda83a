package authkit

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/authkit/pkg/autherr"
)

var (
	// ErrNotFound is returned by a Repository when no principal matches.
	ErrNotFound = autherr.ErrNotFound

	// ErrConflict is returned by a Repository when Save would duplicate
	// another principal's email.
	ErrConflict = errors.New("authkit: principal conflict")

	// ErrInvalidInput covers caller mistakes outside the auth taxonomy,
	// such as an empty email.
	ErrInvalidInput = autherr.ErrInvalidInput
)

// Principal is an account that can authenticate.
type Principal struct {
	ID           string
	Email        string
	PasswordHash string
	Roles        []string
	MFAEnabled   bool
	MFASecret    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Repository is the persistence the Manager depends on. Implementations
// return ErrNotFound for unknown principals and ErrConflict when Save would
// collide on email. Any other error is treated as the store being
// unavailable.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (Principal, error)
	FindByID(ctx context.Context, id string) (Principal, error)
	Save(ctx context.Context, p Principal) error
}

// NormalizeEmail lower-cases and trims an email for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// MemoryRepository is a process-local Repository. It suits tests and
// single-instance embedders.
type MemoryRepository struct {
	mu   sync.RWMutex
	byID map[string]Principal
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]Principal)}
}

func (r *MemoryRepository) FindByEmail(ctx context.Context, email string) (Principal, error) {
	if err := ctx.Err(); err != nil {
		return Principal{}, err
	}

	email = NormalizeEmail(email)

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.byID {
		if p.Email == email {
			return clonePrincipal(p), nil
		}
	}
	return Principal{}, ErrNotFound
}

func (r *MemoryRepository) FindByID(ctx context.Context, id string) (Principal, error) {
	if err := ctx.Err(); err != nil {
		return Principal{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byID[id]
	if !ok {
		return Principal{}, ErrNotFound
	}
	return clonePrincipal(p), nil
}

func (r *MemoryRepository) Save(ctx context.Context, p Principal) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.Email = NormalizeEmail(p.Email)

	r.mu.Lock()
	defer r.mu.Unlock()

	for id, other := range r.byID {
		if id != p.ID && other.Email == p.Email {
			return ErrConflict
		}
	}
	r.byID[p.ID] = clonePrincipal(p)
	return nil
}

func clonePrincipal(p Principal) Principal {
	p.Roles = slices.Clone(p.Roles)
	return p
}
