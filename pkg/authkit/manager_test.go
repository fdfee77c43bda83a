package authkit_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aussiebroadwan/authkit/pkg/authkit"
	"github.com/aussiebroadwan/authkit/pkg/autherr"
	"github.com/aussiebroadwan/authkit/pkg/cryptox"
	"github.com/aussiebroadwan/authkit/pkg/jwtx"
	"github.com/aussiebroadwan/authkit/pkg/ledger"
	"github.com/stretchr/testify/require"
)

const (
	testSecret   = "manager-test-secret-0123456789abcdef"
	testPassword = "correct horse 42"
)

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) Observe(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	outcome := "ok"
	if err != nil {
		outcome = autherr.Code(err)
	}
	r.events = append(r.events, op+":"+outcome)
}

type fixture struct {
	m     *authkit.Manager
	repo  *authkit.MemoryRepository
	mr    *miniredis.Miniredis
	clock *clock
	obs   *recorder
}

func setup(t *testing.T) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	rcfg := ledger.DefaultRedisConfig()
	rcfg.URL = "redis://" + mr.Addr() + "/0"
	store, err := ledger.NewRedisStore(context.Background(), rcfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := authkit.DefaultConfig()
	cfg.SecretKey = testSecret
	cfg.LedgerTimeout = 500 * time.Millisecond

	c := &clock{now: start}
	obs := &recorder{}
	repo := authkit.NewMemoryRepository()

	m, err := authkit.New(cfg, repo, store,
		authkit.WithHasher(&cryptox.Argon2{Memory: 64, Iterations: 1, Parallelism: 1}),
		authkit.WithClock(c.Now),
		authkit.WithObserver(obs),
	)
	require.NoError(t, err)

	return &fixture{m: m, repo: repo, mr: mr, clock: c, obs: obs}
}

func (f *fixture) register(t *testing.T, email string, roles ...string) authkit.Principal {
	t.Helper()
	p, err := f.m.Register(context.Background(), email, testPassword, roles)
	require.NoError(t, err)
	return p
}

func (f *fixture) login(t *testing.T, email string) jwtx.TokenPair {
	t.Helper()
	res, err := f.m.Authenticate(context.Background(), email, testPassword)
	require.NoError(t, err)
	auth, ok := res.(*authkit.Authenticated)
	require.True(t, ok, "expected tokens, got %T", res)
	return auth.Tokens
}

func (f *fixture) enableMFA(t *testing.T, id string) string {
	t.Helper()
	ctx := context.Background()

	e, err := f.m.BeginMFAEnrollment(ctx, id)
	require.NoError(t, err)
	code, err := f.m.MFA.GenerateCode(e.Secret, f.clock.Now())
	require.NoError(t, err)
	require.NoError(t, f.m.ConfirmMFAEnrollment(ctx, id, e.Secret, code))
	return e.Secret
}

// wrongCode returns a six digit code that differs from code in every digit.
func wrongCode(code string) string {
	out := []byte(code)
	for i, c := range out {
		out[i] = '0' + (c-'0'+5)%10
	}
	return string(out)
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	store := ledger.NewRedisStoreFromClient(nil)

	_, err := authkit.New(authkit.DefaultConfig(), authkit.NewMemoryRepository(), store)
	require.ErrorContains(t, err, "secret key is required")

	cfg := authkit.DefaultConfig()
	cfg.SecretKey = testSecret
	cfg.AccessTTL = cfg.RefreshTTL
	_, err = authkit.New(cfg, authkit.NewMemoryRepository(), store)
	require.ErrorContains(t, err, "must be shorter")

	cfg = authkit.DefaultConfig()
	cfg.SecretKey = testSecret
	_, err = authkit.New(cfg, nil, store)
	require.Error(t, err)
	_, err = authkit.New(cfg, authkit.NewMemoryRepository(), nil)
	require.Error(t, err)
}

func TestRegister(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	p := f.register(t, "  Alice@Example.com ", "admin", "admin", "")
	require.NotEmpty(t, p.ID)
	require.Equal(t, "alice@example.com", p.Email)
	require.Equal(t, []string{"admin"}, p.Roles)
	require.NotEqual(t, testPassword, p.PasswordHash)
	require.Equal(t, start, p.CreatedAt)

	t.Run("duplicate email", func(t *testing.T) {
		_, err := f.m.Register(ctx, "ALICE@example.com", testPassword, nil)
		require.ErrorIs(t, err, autherr.ErrPrincipalExists)
	})

	t.Run("weak password", func(t *testing.T) {
		_, err := f.m.Register(ctx, "bob@example.com", "short", nil)
		require.ErrorIs(t, err, autherr.ErrWeakPassword)

		_, err = f.m.Register(ctx, "bob@example.com", "onlylettersherepls", nil)
		require.ErrorIs(t, err, autherr.ErrWeakPassword)
	})

	t.Run("empty email", func(t *testing.T) {
		_, err := f.m.Register(ctx, "  ", testPassword, nil)
		require.ErrorIs(t, err, authkit.ErrInvalidInput)
	})

	t.Run("role with whitespace", func(t *testing.T) {
		_, err := f.m.Register(ctx, "carol@example.com", testPassword, []string{"read admin"})
		require.ErrorIs(t, err, authkit.ErrInvalidInput)

		_, err = f.m.Principal(ctx, p.ID)
		require.NoError(t, err)
		_, err = f.m.Authenticate(ctx, "carol@example.com", testPassword)
		require.ErrorIs(t, err, autherr.ErrInvalidCredentials, "nothing was saved")
	})
}

func TestSetRolesRejectsWhitespace(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.register(t, "dave@example.com", "user")

	for _, role := range []string{"read admin", "admin\t", "\nadmin"} {
		_, err := f.m.SetRoles(ctx, p.ID, []string{"user", role})
		require.ErrorIs(t, err, authkit.ErrInvalidInput, "role %q", role)
	}

	got, err := f.m.Principal(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"user"}, got.Roles, "roles are unchanged after a rejected update")

	claims, err := f.m.Authorize(ctx, f.login(t, "dave@example.com").AccessToken)
	require.NoError(t, err)
	require.False(t, claims.HasScope("admin"))
}

func TestAuthenticateAndAuthorize(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.register(t, "admin@example.com", "admin")

	pair := f.login(t, "admin@example.com")
	require.Equal(t, "Bearer", pair.TokenType)
	require.Equal(t, start.Add(jwtx.DefaultAccessTokenTTL), pair.AccessExpiresAt)
	require.Equal(t, start.Add(jwtx.DefaultRefreshTokenTTL), pair.RefreshExpiresAt)

	claims, err := f.m.AuthorizeRole(ctx, pair.AccessToken, "admin")
	require.NoError(t, err)
	require.Equal(t, p.ID, claims.Subject)
	require.Equal(t, []string{"admin"}, claims.Scopes)

	_, err = f.m.AuthorizeRole(ctx, pair.AccessToken, "superadmin")
	require.ErrorIs(t, err, autherr.ErrInsufficientPermissions)

	_, err = f.m.AuthorizeAnyRole(ctx, pair.AccessToken, "ops", "admin")
	require.NoError(t, err)

	_, err = f.m.AuthorizeOwner(ctx, pair.AccessToken, p.ID)
	require.NoError(t, err)
	_, err = f.m.AuthorizeOwner(ctx, pair.AccessToken, "someone-else")
	require.ErrorIs(t, err, autherr.ErrInsufficientPermissions)
	_, err = f.m.AuthorizeOwner(ctx, pair.AccessToken, "someone-else", "admin")
	require.NoError(t, err)

	t.Run("wrong password", func(t *testing.T) {
		_, err := f.m.Authenticate(ctx, "admin@example.com", "wrong password 1")
		require.ErrorIs(t, err, autherr.ErrInvalidCredentials)
	})

	t.Run("unknown email", func(t *testing.T) {
		_, err := f.m.Authenticate(ctx, "nobody@example.com", testPassword)
		require.ErrorIs(t, err, autherr.ErrInvalidCredentials)
	})

	t.Run("refresh token is not an access token", func(t *testing.T) {
		_, err := f.m.Authorize(ctx, pair.RefreshToken)
		require.ErrorIs(t, err, autherr.ErrTokenPurpose)
	})

	t.Run("expired", func(t *testing.T) {
		f.clock.Advance(jwtx.DefaultAccessTokenTTL)
		defer f.clock.Advance(-jwtx.DefaultAccessTokenTTL)

		_, err := f.m.Authorize(ctx, pair.AccessToken)
		require.ErrorIs(t, err, autherr.ErrTokenExpired)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := f.m.Authorize(ctx, "not-a-token")
		require.ErrorIs(t, err, autherr.ErrMalformedToken)
	})
}

func TestLogoutRevokes(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.register(t, "user@example.com", "user")
	pair := f.login(t, "user@example.com")

	_, err := f.m.Authorize(ctx, pair.AccessToken)
	require.NoError(t, err)

	require.NoError(t, f.m.Logout(ctx, pair.AccessToken))

	_, err = f.m.Authorize(ctx, pair.AccessToken)
	require.ErrorIs(t, err, autherr.ErrTokenRevoked)

	// The record lives exactly as long as the token would have.
	keys := f.mr.Keys()
	require.Len(t, keys, 1)
	require.Equal(t, jwtx.DefaultAccessTokenTTL, f.mr.TTL(keys[0]))

	t.Run("logout is idempotent", func(t *testing.T) {
		require.NoError(t, f.m.Logout(ctx, pair.AccessToken))
	})

	t.Run("expired token cannot be logged out", func(t *testing.T) {
		other := f.login(t, "user@example.com")
		f.clock.Advance(jwtx.DefaultAccessTokenTTL + time.Second)
		defer f.clock.Advance(-(jwtx.DefaultAccessTokenTTL + time.Second))

		require.ErrorIs(t, f.m.Logout(ctx, other.AccessToken), autherr.ErrTokenExpired)
	})

	t.Run("forged token cannot be logged out", func(t *testing.T) {
		require.ErrorIs(t, f.m.Logout(ctx, "a.b.c"), autherr.ErrMalformedToken)
	})
}

func TestLogoutOwned(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	alice := f.register(t, "alice@example.com")
	bob := f.register(t, "bob@example.com")
	alicePair := f.login(t, "alice@example.com")

	err := f.m.LogoutOwned(ctx, alicePair.RefreshToken, bob.ID)
	require.ErrorIs(t, err, autherr.ErrInsufficientPermissions)
	_, err = f.m.Refresh(ctx, alicePair.RefreshToken)
	require.NoError(t, err, "a refused revocation leaves the token usable")

	other := f.login(t, "alice@example.com")
	require.ErrorIs(t, f.m.LogoutOwned(ctx, other.RefreshToken, ""), autherr.ErrInsufficientPermissions)

	require.NoError(t, f.m.LogoutOwned(ctx, other.RefreshToken, alice.ID))
	_, err = f.m.Refresh(ctx, other.RefreshToken)
	require.ErrorIs(t, err, autherr.ErrTokenRevoked)
}

func TestLedgerUnavailableFailsClosed(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.register(t, "user@example.com")
	pair := f.login(t, "user@example.com")

	f.mr.Close()

	_, err := f.m.Authorize(ctx, pair.AccessToken)
	require.ErrorIs(t, err, autherr.ErrLedgerUnavailable)
	require.ErrorIs(t, f.m.Logout(ctx, pair.AccessToken), autherr.ErrLedgerUnavailable)
	require.ErrorIs(t, f.m.Ping(ctx), autherr.ErrLedgerUnavailable)
}

func TestRefreshRotates(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.register(t, "user@example.com", "user")
	pair := f.login(t, "user@example.com")

	_, err := f.m.SetRoles(ctx, p.ID, []string{"user", "billing"})
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	next, err := f.m.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	claims, err := f.m.AuthorizeRole(ctx, next.AccessToken, "billing")
	require.NoError(t, err, "refresh picks up current roles")
	require.Equal(t, p.ID, claims.Subject)

	_, err = f.m.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, autherr.ErrTokenRevoked, "refresh tokens are single use")

	_, err = f.m.Refresh(ctx, next.AccessToken)
	require.ErrorIs(t, err, autherr.ErrTokenPurpose)
}

func TestMFAChallenge(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.register(t, "mfa@example.com", "admin")
	secret := f.enableMFA(t, p.ID)

	res, err := f.m.Authenticate(ctx, "mfa@example.com", testPassword)
	require.NoError(t, err)
	ch, ok := res.(*authkit.Challenge)
	require.True(t, ok, "MFA principals get a challenge, got %T", res)
	require.Equal(t, p.ID, ch.PrincipalID)
	require.Equal(t, start.Add(authkit.DefaultMFATicketTTL), ch.ExpiresAt)

	t.Run("ticket is not an access token", func(t *testing.T) {
		_, err := f.m.Authorize(ctx, ch.Ticket)
		require.ErrorIs(t, err, autherr.ErrTokenPurpose)
	})

	code, err := f.m.MFA.GenerateCode(secret, f.clock.Now())
	require.NoError(t, err)

	t.Run("wrong code", func(t *testing.T) {
		_, err := f.m.CompleteChallenge(ctx, ch.Ticket, wrongCode(code))
		require.ErrorIs(t, err, autherr.ErrInvalidMFACode)
	})

	pair, err := f.m.CompleteChallenge(ctx, ch.Ticket, code)
	require.NoError(t, err)
	_, err = f.m.AuthorizeRole(ctx, pair.AccessToken, "admin")
	require.NoError(t, err)

	t.Run("ticket is single use", func(t *testing.T) {
		_, err := f.m.CompleteChallenge(ctx, ch.Ticket, code)
		require.ErrorIs(t, err, autherr.ErrTokenRevoked)
	})

	t.Run("ticket expires", func(t *testing.T) {
		res, err := f.m.Authenticate(ctx, "mfa@example.com", testPassword)
		require.NoError(t, err)
		ticket := res.(*authkit.Challenge).Ticket

		f.clock.Advance(authkit.DefaultMFATicketTTL)
		defer f.clock.Advance(-authkit.DefaultMFATicketTTL)

		_, err = f.m.CompleteChallenge(ctx, ticket, code)
		require.ErrorIs(t, err, autherr.ErrTokenExpired)
	})

	t.Run("access token is not a ticket", func(t *testing.T) {
		_, err := f.m.CompleteChallenge(ctx, pair.AccessToken, code)
		require.ErrorIs(t, err, autherr.ErrTokenPurpose)
	})
}

func TestMFATicketRevokedAfterRepeatedFailures(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.register(t, "guess@example.com")
	secret := f.enableMFA(t, p.ID)

	code, err := f.m.MFA.GenerateCode(secret, f.clock.Now())
	require.NoError(t, err)

	challenge := func(t *testing.T) string {
		t.Helper()
		res, err := f.m.Authenticate(ctx, "guess@example.com", testPassword)
		require.NoError(t, err)
		return res.(*authkit.Challenge).Ticket
	}

	ticket := challenge(t)
	for i := 0; i < authkit.DefaultMaxMFAAttempts; i++ {
		_, err := f.m.CompleteChallenge(ctx, ticket, wrongCode(code))
		require.ErrorIs(t, err, autherr.ErrInvalidMFACode, "attempt %d", i+1)
	}

	_, err = f.m.CompleteChallenge(ctx, ticket, code)
	require.ErrorIs(t, err, autherr.ErrTokenRevoked, "the right code no longer rescues a burned ticket")

	t.Run("failures are counted per ticket", func(t *testing.T) {
		other := challenge(t)
		for i := 0; i < authkit.DefaultMaxMFAAttempts-1; i++ {
			_, err := f.m.CompleteChallenge(ctx, other, wrongCode(code))
			require.ErrorIs(t, err, autherr.ErrInvalidMFACode)
		}
		_, err := f.m.CompleteChallenge(ctx, other, code)
		require.NoError(t, err)
	})

	t.Run("limit is configurable", func(t *testing.T) {
		f.m.MaxMFAAttempts = 1
		defer func() { f.m.MaxMFAAttempts = authkit.DefaultMaxMFAAttempts }()

		one := challenge(t)
		_, err := f.m.CompleteChallenge(ctx, one, wrongCode(code))
		require.ErrorIs(t, err, autherr.ErrInvalidMFACode)
		_, err = f.m.CompleteChallenge(ctx, one, code)
		require.ErrorIs(t, err, autherr.ErrTokenRevoked)
	})
}

func TestVerifyMFAAndLogin(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	plain := f.register(t, "plain@example.com")
	p := f.register(t, "mfa@example.com")
	secret := f.enableMFA(t, p.ID)

	_, err := f.m.VerifyMFAAndLogin(ctx, plain.ID, "123456")
	require.ErrorIs(t, err, autherr.ErrMFANotConfigured)

	_, err = f.m.VerifyMFAAndLogin(ctx, p.ID, "12345")
	require.ErrorIs(t, err, autherr.ErrInvalidMFACode)

	_, err = f.m.VerifyMFAAndLogin(ctx, "missing", "123456")
	require.ErrorIs(t, err, autherr.ErrInvalidCredentials)

	code, err := f.m.MFA.GenerateCode(secret, f.clock.Now())
	require.NoError(t, err)
	pair, err := f.m.VerifyMFAAndLogin(ctx, p.ID, code)
	require.NoError(t, err)

	claims, err := f.m.Authorize(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, p.ID, claims.Subject)
}

func TestMFAEnrollment(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.register(t, "enrol@example.com")

	e, err := f.m.BeginMFAEnrollment(ctx, p.ID)
	require.NoError(t, err)
	require.NotEmpty(t, e.Secret)
	require.Contains(t, e.ProvisioningURI, "otpauth://totp/")
	require.NotEmpty(t, e.QRCodeBase64())

	code, err := f.m.MFA.GenerateCode(e.Secret, f.clock.Now())
	require.NoError(t, err)

	require.ErrorIs(t, f.m.ConfirmMFAEnrollment(ctx, p.ID, e.Secret, wrongCode(code)), autherr.ErrInvalidMFACode)

	stored, err := f.m.Principal(ctx, p.ID)
	require.NoError(t, err)
	require.False(t, stored.MFAEnabled, "a failed confirmation stores nothing")

	require.NoError(t, f.m.ConfirmMFAEnrollment(ctx, p.ID, e.Secret, code))

	_, err = f.m.BeginMFAEnrollment(ctx, p.ID)
	require.ErrorIs(t, err, autherr.ErrMFAAlreadyEnabled)

	require.ErrorIs(t, f.m.DisableMFA(ctx, p.ID, wrongCode(code)), autherr.ErrInvalidMFACode)
	require.NoError(t, f.m.DisableMFA(ctx, p.ID, code))
	require.ErrorIs(t, f.m.DisableMFA(ctx, p.ID, code), autherr.ErrMFANotConfigured)

	f.login(t, "enrol@example.com")
}

// brokenRepo fails every call the way a dropped database connection would.
type brokenRepo struct{}

var errDown = errors.New("connection refused")

func (brokenRepo) FindByEmail(context.Context, string) (authkit.Principal, error) {
	return authkit.Principal{}, errDown
}

func (brokenRepo) FindByID(context.Context, string) (authkit.Principal, error) {
	return authkit.Principal{}, errDown
}

func (brokenRepo) Save(context.Context, authkit.Principal) error { return errDown }

func TestRepositoryUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := authkit.DefaultConfig()
	cfg.SecretKey = testSecret
	cfg.RedisURL = "redis://" + mr.Addr() + "/0"

	m, closeFn, err := authkit.Open(context.Background(), cfg, brokenRepo{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeFn() })

	_, err = m.Authenticate(context.Background(), "a@example.com", testPassword)
	require.ErrorIs(t, err, autherr.ErrRepositoryUnavailable)
	require.NotErrorIs(t, err, autherr.ErrInvalidCredentials)
}

func TestObserverSeesOutcomes(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.register(t, "obs@example.com", "user")
	pair := f.login(t, "obs@example.com")

	_, _ = f.m.AuthorizeRole(ctx, pair.AccessToken, "admin")
	_, _ = f.m.Authenticate(ctx, "obs@example.com", "wrong password 1")

	f.obs.mu.Lock()
	defer f.obs.mu.Unlock()
	require.Equal(t, []string{
		"register:ok",
		"authenticate:ok",
		"authorize:ok",
		"permission:insufficient_permissions",
		"authenticate:invalid_credentials",
	}, f.obs.events)
}
