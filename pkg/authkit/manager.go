// Package authkit sequences credential checks, token issuance, revocation,
// MFA and role checks into the login and guard flows an application calls.
//
// Every call is independent. The revocation ledger and the principal
// repository are the shared resources and both are reached through
// timeouts; the only state a Manager keeps itself is a count of wrong codes
// per outstanding MFA ticket.
package authkit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/aussiebroadwan/authkit/pkg/autherr"
	"github.com/aussiebroadwan/authkit/pkg/authz"
	"github.com/aussiebroadwan/authkit/pkg/credential"
	"github.com/aussiebroadwan/authkit/pkg/cryptox"
	"github.com/aussiebroadwan/authkit/pkg/idx"
	"github.com/aussiebroadwan/authkit/pkg/jwtx"
	"github.com/aussiebroadwan/authkit/pkg/ledger"
	"github.com/aussiebroadwan/authkit/pkg/mfa"
	"github.com/aussiebroadwan/authkit/pkg/slogx"
)

// Manager is the orchestrator. Build it with New, or fill the fields
// directly when wiring custom components.
type Manager struct {
	Codec       *jwtx.Codec
	Ledger      *ledger.Ledger
	Credentials *credential.Verifier
	MFA         *mfa.Handler
	Repository  Repository

	RepositoryTimeout time.Duration
	MFATicketTTL      time.Duration

	// MaxMFAAttempts is how many wrong codes a ticket takes before it is
	// revoked. Zero means DefaultMaxMFAAttempts.
	MaxMFAAttempts int

	// Observer, when set, is told the outcome of every operation.
	Observer Observer

	failures ticketFailures
}

// Option customises New.
type Option func(*options)

type options struct {
	hasher   credential.Hasher
	now      func() time.Time
	observer Observer
}

// WithHasher replaces the default unpeppered Argon2id hasher.
func WithHasher(h credential.Hasher) Option {
	return func(o *options) { o.hasher = h }
}

// WithClock overrides the clock used by the codec, ledger and MFA handler.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithObserver attaches an Observer.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

// New validates cfg and builds a Manager over repo and the ledger store.
func New(cfg Config, repo Repository, store ledger.Store, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if repo == nil {
		return nil, errors.New("authkit: repository is required")
	}
	if store == nil {
		return nil, errors.New("authkit: ledger store is required")
	}

	o := options{hasher: &cryptox.Argon2{}, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	codec, err := jwtx.NewCodec(jwtx.Options{
		Algorithm:  cfg.Algorithm,
		Secret:     []byte(cfg.SecretKey),
		KeyID:      cfg.KeyID,
		Issuer:     cfg.Issuer,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
		Leeway:     cfg.ClockSkew,
		Now:        o.now,
	})
	if err != nil {
		return nil, fmt.Errorf("authkit: %w", err)
	}

	return &Manager{
		Codec: codec,
		Ledger: &ledger.Ledger{
			Store:   store,
			Prefix:  cfg.LedgerPrefix,
			Timeout: cfg.LedgerTimeout,
			Leeway:  cfg.ClockSkew,
			Now:     o.now,
		},
		Credentials: &credential.Verifier{
			Policy: credential.Policy{
				MinLength:            cfg.MinPasswordLength,
				RequireNonAlphabetic: cfg.RequireNonAlphabetic,
			},
			Hasher: o.hasher,
		},
		MFA:               &mfa.Handler{Issuer: cfg.MFAIssuer, Now: o.now},
		Repository:        repo,
		RepositoryTimeout: cfg.RepositoryTimeout,
		MFATicketTTL:      cfg.MFATicketTTL,
		MaxMFAAttempts:    cfg.MaxMFAAttempts,
		Observer:          o.observer,
	}, nil
}

// Open is New with a Redis ledger dialled from cfg.RedisURL. The returned
// close function releases the Redis pool.
func Open(ctx context.Context, cfg Config, repo Repository, logger *slog.Logger, opts ...Option) (*Manager, func() error, error) {
	rcfg := ledger.DefaultRedisConfig()
	rcfg.URL = cfg.RedisURL

	store, err := ledger.NewRedisStore(ctx, rcfg, logger)
	if err != nil {
		return nil, nil, err
	}

	m, err := New(cfg, repo, store, opts...)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return m, store.Close, nil
}

// Register creates a principal after the password passes policy. Emails
// are unique, case-insensitively.
func (m *Manager) Register(ctx context.Context, email, password string, roles []string) (p Principal, err error) {
	defer m.observe(OpRegister, &err)

	email = NormalizeEmail(email)
	if email == "" {
		return Principal{}, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	roles, err = checkRoles(roles)
	if err != nil {
		return Principal{}, err
	}
	if err := m.Credentials.Policy.Validate(password); err != nil {
		return Principal{}, err
	}

	_, err = m.findByEmail(ctx, email)
	switch {
	case err == nil:
		return Principal{}, autherr.Wrapf(autherr.ErrPrincipalExists, "%s", email)
	case !errors.Is(err, ErrNotFound):
		return Principal{}, err
	}

	hash, err := m.Credentials.Hash(password)
	if err != nil {
		return Principal{}, err
	}

	now := m.Codec.Now().UTC()
	p = Principal{
		ID:           idx.New().String(),
		Email:        email,
		PasswordHash: hash,
		Roles:        roles,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := m.save(ctx, p); err != nil {
		return Principal{}, err
	}

	slogx.FromContext(ctx).Info("principal registered", "principal_id", p.ID)
	return p, nil
}

// Authenticate checks email and password. A principal with MFA enabled
// gets a *Challenge and never tokens; everyone else gets *Authenticated.
func (m *Manager) Authenticate(ctx context.Context, email, password string) (res LoginResult, err error) {
	defer m.observe(OpAuthenticate, &err)
	log := slogx.FromContext(ctx)

	p, err := m.findByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Info("login failed", "reason", "unknown principal")
			return nil, autherr.ErrInvalidCredentials
		}
		return nil, err
	}

	if err := m.Credentials.Verify(p.PasswordHash, password); err != nil {
		if errors.Is(err, autherr.ErrInvalidCredentials) {
			log.Info("login failed", "principal_id", p.ID, "reason", "password mismatch")
		}
		return nil, err
	}

	if p.MFAEnabled {
		ticket, claims, err := m.Codec.IssueFor(jwtx.PurposeMFAPending, p.ID, []string{jwtx.MFATicketScope}, m.ticketTTL())
		if err != nil {
			return nil, err
		}

		log.Info("login requires second factor", "principal_id", p.ID)
		return &Challenge{
			PrincipalID: p.ID,
			Ticket:      ticket,
			ExpiresAt:   claims.ExpiresAtTime(),
		}, nil
	}

	pair, err := m.Codec.IssuePair(p.ID, p.Roles)
	if err != nil {
		return nil, err
	}

	log.Info("login succeeded", "principal_id", p.ID)
	return &Authenticated{PrincipalID: p.ID, Tokens: pair}, nil
}

// VerifyMFAAndLogin completes a login for principalID given a TOTP code.
func (m *Manager) VerifyMFAAndLogin(ctx context.Context, principalID, code string) (pair jwtx.TokenPair, err error) {
	defer m.observe(OpVerifyMFA, &err)

	p, err := m.verifyMFA(ctx, principalID, code)
	if err != nil {
		return jwtx.TokenPair{}, err
	}
	return m.issueFor(ctx, p)
}

// CompleteChallenge finishes a login from the ticket Authenticate handed
// out. The ticket is revoked once the code checks out, so it works once.
// After MaxMFAAttempts wrong codes it is revoked as well and every later
// attempt fails with ErrTokenRevoked.
func (m *Manager) CompleteChallenge(ctx context.Context, ticket, code string) (pair jwtx.TokenPair, err error) {
	defer m.observe(OpVerifyMFA, &err)

	claims, err := m.decodeFor(ctx, ticket, jwtx.PurposeMFAPending)
	if err != nil {
		return jwtx.TokenPair{}, err
	}

	p, err := m.verifyMFA(ctx, claims.Subject, code)
	if err != nil {
		if errors.Is(err, autherr.ErrInvalidMFACode) {
			m.ticketFailed(ctx, claims)
		}
		return jwtx.TokenPair{}, err
	}
	m.failures.forget(claims.ID)

	if err := m.Ledger.Revoke(ctx, claims.ID, claims.ExpiresAtTime()); err != nil {
		return jwtx.TokenPair{}, err
	}
	return m.issueFor(ctx, p)
}

// Authorize is the guard every protected operation calls first: decode,
// require an access token, then consult the ledger. A ledger failure is a
// rejection.
func (m *Manager) Authorize(ctx context.Context, token string) (claims jwtx.Claims, err error) {
	defer m.observe(OpAuthorize, &err)
	return m.decodeFor(ctx, token, jwtx.PurposeAccess)
}

// AuthorizeRole is Authorize plus a role check.
func (m *Manager) AuthorizeRole(ctx context.Context, token, role string) (jwtx.Claims, error) {
	claims, err := m.Authorize(ctx, token)
	if err != nil {
		return jwtx.Claims{}, err
	}
	if err := authz.RequireRole(claims, role); err != nil {
		m.denied(ctx, claims, role)
		return jwtx.Claims{}, err
	}
	return claims, nil
}

// AuthorizeAnyRole is Authorize plus a check for at least one of roles.
func (m *Manager) AuthorizeAnyRole(ctx context.Context, token string, roles ...string) (jwtx.Claims, error) {
	claims, err := m.Authorize(ctx, token)
	if err != nil {
		return jwtx.Claims{}, err
	}
	if err := authz.RequireAnyRole(claims, roles...); err != nil {
		m.denied(ctx, claims, roles...)
		return jwtx.Claims{}, err
	}
	return claims, nil
}

// AuthorizeOwner is Authorize plus an ownership check. Holders of any of
// overrideRoles pass regardless of ownership.
func (m *Manager) AuthorizeOwner(ctx context.Context, token, ownerID string, overrideRoles ...string) (jwtx.Claims, error) {
	claims, err := m.Authorize(ctx, token)
	if err != nil {
		return jwtx.Claims{}, err
	}
	if err := authz.AssertOwnerOrRole(claims, ownerID, overrideRoles...); err != nil {
		m.denied(ctx, claims, overrideRoles...)
		return jwtx.Claims{}, err
	}
	return claims, nil
}

// Logout revokes token until its natural expiry. The token is decoded
// strictly: an expired or forged token fails here rather than being
// silently accepted. Any purpose may be revoked.
func (m *Manager) Logout(ctx context.Context, token string) (err error) {
	defer m.observe(OpLogout, &err)

	claims, err := m.Codec.Decode(token)
	if err != nil {
		return err
	}
	return m.revoke(ctx, claims)
}

// LogoutOwned is Logout for a token that must belong to subject. Anyone
// else's token is refused with ErrInsufficientPermissions and left alone.
func (m *Manager) LogoutOwned(ctx context.Context, token, subject string) (err error) {
	defer m.observe(OpLogout, &err)

	claims, err := m.Codec.Decode(token)
	if err != nil {
		return err
	}
	if subject == "" || claims.Subject != subject {
		slogx.FromContext(ctx).Warn("refused to revoke another principal's token",
			"principal_id", subject,
			"owner_id", claims.Subject,
			"jti", claims.ID,
		)
		return autherr.Wrapf(autherr.ErrInsufficientPermissions, "token belongs to another principal")
	}
	return m.revoke(ctx, claims)
}

func (m *Manager) revoke(ctx context.Context, claims jwtx.Claims) error {
	if err := m.Ledger.Revoke(ctx, claims.ID, claims.ExpiresAtTime()); err != nil {
		return err
	}

	slogx.FromContext(ctx).Info("token revoked",
		"principal_id", claims.Subject,
		"jti", claims.ID,
		"purpose", string(claims.Purpose),
	)
	return nil
}

// Refresh exchanges a refresh token for a new pair. Roles are reloaded
// from the repository and the presented refresh token is revoked.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (pair jwtx.TokenPair, err error) {
	defer m.observe(OpRefresh, &err)

	claims, err := m.decodeFor(ctx, refreshToken, jwtx.PurposeRefresh)
	if err != nil {
		return jwtx.TokenPair{}, err
	}

	p, err := m.findByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return jwtx.TokenPair{}, autherr.ErrInvalidCredentials
		}
		return jwtx.TokenPair{}, err
	}

	if err := m.Ledger.Revoke(ctx, claims.ID, claims.ExpiresAtTime()); err != nil {
		return jwtx.TokenPair{}, err
	}
	return m.issueFor(ctx, p)
}

// Principal loads a principal by id.
func (m *Manager) Principal(ctx context.Context, id string) (Principal, error) {
	return m.findByID(ctx, id)
}

// SetRoles replaces a principal's roles. Tokens already issued keep their
// old scopes until they expire or are refreshed.
func (m *Manager) SetRoles(ctx context.Context, principalID string, roles []string) (Principal, error) {
	roles, err := checkRoles(roles)
	if err != nil {
		return Principal{}, err
	}

	p, err := m.findByID(ctx, principalID)
	if err != nil {
		return Principal{}, err
	}

	p.Roles = roles
	p.UpdatedAt = m.Codec.Now().UTC()
	if err := m.save(ctx, p); err != nil {
		return Principal{}, err
	}

	slogx.FromContext(ctx).Info("roles updated", "principal_id", p.ID, "roles", p.Roles)
	return p, nil
}

// Ping reports whether the revocation ledger is reachable.
func (m *Manager) Ping(ctx context.Context) error {
	return m.Ledger.Ping(ctx)
}

// decodeFor decodes token, requires purpose and checks the ledger.
func (m *Manager) decodeFor(ctx context.Context, token string, purpose jwtx.Purpose) (jwtx.Claims, error) {
	claims, err := m.Codec.Decode(token)
	if err != nil {
		return jwtx.Claims{}, err
	}

	if claims.Purpose != purpose {
		return jwtx.Claims{}, autherr.Wrapf(autherr.ErrTokenPurpose, "want %s, got %s", purpose, claims.Purpose)
	}

	revoked, err := m.Ledger.IsRevoked(ctx, claims.ID)
	if err != nil {
		slogx.FromContext(ctx).Error("revocation check failed", "jti", claims.ID, "err", err)
		return jwtx.Claims{}, err
	}
	if revoked {
		slogx.FromContext(ctx).Warn("revoked token presented", "principal_id", claims.Subject, "jti", claims.ID)
		return jwtx.Claims{}, autherr.ErrTokenRevoked
	}

	return claims, nil
}

func (m *Manager) verifyMFA(ctx context.Context, principalID, code string) (Principal, error) {
	p, err := m.findByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Principal{}, autherr.ErrInvalidCredentials
		}
		return Principal{}, err
	}

	if !p.MFAEnabled || p.MFASecret == "" {
		return Principal{}, autherr.ErrMFANotConfigured
	}
	if !m.MFA.VerifyCode(p.MFASecret, code) {
		slogx.FromContext(ctx).Info("second factor rejected", "principal_id", p.ID)
		return Principal{}, autherr.ErrInvalidMFACode
	}
	return p, nil
}

func (m *Manager) issueFor(ctx context.Context, p Principal) (jwtx.TokenPair, error) {
	pair, err := m.Codec.IssuePair(p.ID, p.Roles)
	if err != nil {
		return jwtx.TokenPair{}, err
	}
	slogx.FromContext(ctx).Info("tokens issued", "principal_id", p.ID)
	return pair, nil
}

func (m *Manager) denied(ctx context.Context, claims jwtx.Claims, roles ...string) {
	slogx.FromContext(ctx).Info("permission denied", "principal_id", claims.Subject, "required", roles)
	if m.Observer != nil {
		m.Observer.Observe(OpPermission, autherr.ErrInsufficientPermissions)
	}
}

// ticketFailed counts a wrong code against the ticket and revokes it once
// the limit is reached.
func (m *Manager) ticketFailed(ctx context.Context, claims jwtx.Claims) {
	limit := m.MaxMFAAttempts
	if limit <= 0 {
		limit = DefaultMaxMFAAttempts
	}

	expires := claims.ExpiresAtTime()
	if n := m.failures.add(claims.ID, expires, m.Codec.Now()); n < limit {
		return
	}

	log := slogx.FromContext(ctx)
	if err := m.Ledger.Revoke(ctx, claims.ID, expires); err != nil {
		log.Error("mfa ticket revocation failed", "principal_id", claims.Subject, "jti", claims.ID, "err", err)
		return
	}
	m.failures.forget(claims.ID)
	log.Warn("mfa ticket revoked after repeated failures", "principal_id", claims.Subject, "jti", claims.ID)
}

func (m *Manager) ticketTTL() time.Duration {
	if m.MFATicketTTL <= 0 {
		return DefaultMFATicketTTL
	}
	return m.MFATicketTTL
}

// checkRoles rejects roles containing whitespace, which would read as
// several scopes wherever scopes are space-joined, then dedupes.
func checkRoles(roles []string) ([]string, error) {
	for _, r := range roles {
		if strings.ContainsFunc(r, unicode.IsSpace) {
			return nil, fmt.Errorf("%w: role %q contains whitespace", ErrInvalidInput, r)
		}
	}
	return dedupe(roles), nil
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
