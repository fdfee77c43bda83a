package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	httpapi "github.com/aussiebroadwan/authkit/internal/http"
	"github.com/aussiebroadwan/authkit/internal/metrics"
	"github.com/aussiebroadwan/authkit/pkg/authkit"
	"github.com/aussiebroadwan/authkit/pkg/cryptox"
	"github.com/aussiebroadwan/authkit/pkg/httpx"
	"github.com/aussiebroadwan/authkit/pkg/jwtx"
	"github.com/aussiebroadwan/authkit/pkg/slogx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

const password = "correct horse 42"

type server struct {
	t       *testing.T
	handler http.Handler
	manager *authkit.Manager
	mr      *miniredis.Miniredis
}

func newServer(t *testing.T) *server {
	t.Helper()

	mr := miniredis.RunT(t)
	cfg := authkit.DefaultConfig()
	cfg.SecretKey = "router-test-secret-0123456789abcdef"
	cfg.RedisURL = "redis://" + mr.Addr() + "/0"
	cfg.LedgerTimeout = 500 * time.Millisecond

	m, closeFn, err := authkit.Open(context.Background(), cfg, authkit.NewMemoryRepository(), slogx.Discard(),
		authkit.WithHasher(&cryptox.Argon2{Memory: 64, Iterations: 1, Parallelism: 1}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeFn() })

	generous := httpx.RateLimitConfig{RequestsPerWindow: 1000, Window: time.Minute, Burst: 1000}
	reg := prometheus.NewRegistry()
	router := httpapi.NewRouter(httpapi.Options{
		Manager:      m,
		Logger:       slogx.Discard(),
		Version:      "test",
		Limits:       httpx.RateLimits{Strict: generous, Moderate: generous, Lenient: generous, Public: generous},
		DefaultRoles: []string{"user"},
		Checks:       map[string]httpapi.Check{"ledger": m.Ping},
		Metrics:      metrics.New(reg),
		Gatherer:     reg,
	})

	return &server{t: t, handler: router, manager: m, mr: mr}
}

func (s *server) do(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body == nil {
		req.ContentLength = 0
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func (s *server) register(email string) httpapi.PrincipalResponse {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/v1/register", "", httpapi.CredentialsRequest{Email: email, Password: password})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[httpapi.PrincipalResponse](s.t, rec)
}

func (s *server) login(email string) httpapi.TokenResponse {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/v1/login", "", httpapi.CredentialsRequest{Email: email, Password: password})
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
	tok := decode[httpapi.TokenResponse](s.t, rec)
	require.NotEmpty(s.t, tok.AccessToken)
	return tok
}

func TestRegisterAndLogin(t *testing.T) {
	s := newServer(t)

	p := s.register("alice@example.com")
	require.Equal(t, []string{"user"}, p.Roles)

	rec := s.do(http.MethodPost, "/v1/register", "", httpapi.CredentialsRequest{Email: "ALICE@example.com", Password: password})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "principal_exists", decode[httpx.ErrorResponse](t, rec).Error)

	rec = s.do(http.MethodPost, "/v1/register", "", httpapi.CredentialsRequest{Email: "bob@example.com", Password: "short"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "weak_password", decode[httpx.ErrorResponse](t, rec).Error)

	rec = s.do(http.MethodPost, "/v1/login", "", httpapi.CredentialsRequest{Email: "alice@example.com", Password: "wrong password 1"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "invalid_credentials", decode[httpx.ErrorResponse](t, rec).Error)

	tok := s.login("alice@example.com")
	require.Equal(t, "Bearer", tok.TokenType)
	require.InDelta(t, (15 * time.Minute).Seconds(), float64(tok.ExpiresIn), 1)

	rec = s.do(http.MethodGet, "/v1/me", tok.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[httpapi.PrincipalResponse](t, rec)
	require.Equal(t, p.ID, me.ID)
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	t.Run("unknown fields rejected", func(t *testing.T) {
		rec := s.do(http.MethodPost, "/v1/login", "", map[string]string{"email": "a", "password": "b", "extra": "c"})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestLogoutRevokesTokens(t *testing.T) {
	s := newServer(t)
	s.register("alice@example.com")
	tok := s.login("alice@example.com")

	rec := s.do(http.MethodPost, "/v1/logout", tok.AccessToken, httpapi.LogoutRequest{RefreshToken: tok.RefreshToken})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(http.MethodGet, "/v1/me", tok.AccessToken, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Header().Get("WWW-Authenticate"), "token_revoked")

	rec = s.do(http.MethodPost, "/v1/token/refresh", "", httpapi.RefreshRequest{RefreshToken: tok.RefreshToken})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "token_revoked", decode[httpx.ErrorResponse](t, rec).Error)
}

func TestLogoutRefusesForeignRefreshToken(t *testing.T) {
	s := newServer(t)
	s.register("alice@example.com")
	s.register("bob@example.com")
	aliceTok := s.login("alice@example.com")
	bobTok := s.login("bob@example.com")

	rec := s.do(http.MethodPost, "/v1/logout", bobTok.AccessToken, httpapi.LogoutRequest{RefreshToken: aliceTok.RefreshToken})
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "insufficient_permissions", decode[httpx.ErrorResponse](t, rec).Error)

	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/me", bobTok.AccessToken, nil).Code,
		"a refused logout leaves the caller's session alone")

	rec = s.do(http.MethodPost, "/v1/token/refresh", "", httpapi.RefreshRequest{RefreshToken: aliceTok.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code, "the other principal's refresh token still works")
}

func TestRefresh(t *testing.T) {
	s := newServer(t)
	s.register("alice@example.com")
	tok := s.login("alice@example.com")

	rec := s.do(http.MethodPost, "/v1/token/refresh", "", httpapi.RefreshRequest{RefreshToken: tok.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)
	next := decode[httpapi.TokenResponse](t, rec)

	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/me", next.AccessToken, nil).Code)

	rec = s.do(http.MethodPost, "/v1/token/refresh", "", httpapi.RefreshRequest{RefreshToken: tok.AccessToken})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "token_purpose", decode[httpx.ErrorResponse](t, rec).Error)
}

func TestPrincipalAccess(t *testing.T) {
	s := newServer(t)
	alice := s.register("alice@example.com")
	bob := s.register("bob@example.com")

	aliceTok := s.login("alice@example.com")
	bobTok := s.login("bob@example.com")

	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/principals/"+alice.ID, aliceTok.AccessToken, nil).Code)
	require.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/v1/principals/"+alice.ID, bobTok.AccessToken, nil).Code)
	require.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/v1/principals/not-an-id", aliceTok.AccessToken, nil).Code)
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/principals/"+strings.ToLower(alice.ID), aliceTok.AccessToken, nil).Code,
		"ids are matched case-insensitively")

	grant := httpapi.SetRolesRequest{Roles: []string{"admin"}}
	rec := s.do(http.MethodPut, "/v1/principals/"+bob.ID+"/roles", aliceTok.AccessToken, grant)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Header().Get("WWW-Authenticate"), "insufficient_scope")

	_, err := s.manager.SetRoles(context.Background(), alice.ID, []string{"admin"})
	require.NoError(t, err)
	adminTok := s.login("alice@example.com")

	rec = s.do(http.MethodPut, "/v1/principals/"+bob.ID+"/roles", adminTok.AccessToken, httpapi.SetRolesRequest{Roles: []string{"user", "billing"}})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"user", "billing"}, decode[httpapi.PrincipalResponse](t, rec).Roles)

	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/principals/"+bob.ID, adminTok.AccessToken, nil).Code)
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/principals/"+strings.ToLower(bob.ID), adminTok.AccessToken, nil).Code)

	rec = s.do(http.MethodPut, "/v1/principals/"+strings.ToLower(bob.ID)+"/roles", adminTok.AccessToken, httpapi.SetRolesRequest{Roles: []string{"read admin"}})
	require.Equal(t, http.StatusBadRequest, rec.Code, "roles with whitespace are rejected")

	p, err := s.manager.Principal(context.Background(), bob.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"user", "billing"}, p.Roles)
}

func TestMFAFlow(t *testing.T) {
	s := newServer(t)
	s.register("alice@example.com")
	tok := s.login("alice@example.com")

	rec := s.do(http.MethodPost, "/v1/mfa/enroll", tok.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	enr := decode[httpapi.EnrollmentResponse](t, rec)
	require.NotEmpty(t, enr.QRCodePNG)

	code, err := s.manager.MFA.GenerateCode(enr.Secret, time.Now())
	require.NoError(t, err)

	rec = s.do(http.MethodPost, "/v1/mfa/confirm", tok.AccessToken, httpapi.MFAConfirmRequest{Secret: enr.Secret, Code: code})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(http.MethodPost, "/v1/mfa/enroll", tok.AccessToken, nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodPost, "/v1/login", "", httpapi.CredentialsRequest{Email: "alice@example.com", Password: password})
	require.Equal(t, http.StatusOK, rec.Code)
	ch := decode[httpapi.ChallengeResponse](t, rec)
	require.True(t, ch.MFARequired)
	require.NotEmpty(t, ch.MFATicket)

	rec = s.do(http.MethodGet, "/v1/me", ch.MFATicket, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code, "a ticket is not an access token")

	rec = s.do(http.MethodPost, "/v1/login/mfa", "", httpapi.MFALoginRequest{MFATicket: ch.MFATicket, Code: "12345"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid_mfa_code", decode[httpx.ErrorResponse](t, rec).Error)

	rec = s.do(http.MethodPost, "/v1/login/mfa", "", httpapi.MFALoginRequest{MFATicket: ch.MFATicket, Code: code})
	require.Equal(t, http.StatusOK, rec.Code)
	final := decode[httpapi.TokenResponse](t, rec)
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/me", final.AccessToken, nil).Code)

	rec = s.do(http.MethodDelete, "/v1/mfa", final.AccessToken, httpapi.MFADisableRequest{Code: code})
	require.Equal(t, http.StatusNoContent, rec.Code)
	s.login("alice@example.com")
}

func TestSystemEndpoints(t *testing.T) {
	s := newServer(t)

	rec := s.do(http.MethodGet, "/livez", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get(slogx.RequestIDHeader))

	rec = s.do(http.MethodGet, "/.well-known/jwks.json", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, decode[jwtx.JWKS](t, rec).Keys, "HMAC publishes no keys")

	rec = s.do(http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", decode[httpapi.HealthResponse](t, rec).Checks["ledger"])

	rec = s.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `authkit_http_requests_total{method="GET",route="GET /readyz",status="200"} 1`)

	s.mr.Close()
	rec = s.do(http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "degraded", decode[httpapi.HealthResponse](t, rec).Status)
}

func TestLedgerOutageFailsClosed(t *testing.T) {
	s := newServer(t)
	s.register("alice@example.com")
	tok := s.login("alice@example.com")

	s.mr.Close()

	rec := s.do(http.MethodGet, "/v1/me", tok.AccessToken, nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "ledger_unavailable", decode[httpx.ErrorResponse](t, rec).Error)
}
