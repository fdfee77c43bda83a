package http

import (
	"net/http"

	"github.com/aussiebroadwan/authkit/pkg/authkit"
	"github.com/aussiebroadwan/authkit/pkg/httpx"
	"github.com/aussiebroadwan/authkit/pkg/slogx"
)

// AuthHandler serves the credential endpoints.
type AuthHandler struct {
	Manager *authkit.Manager

	// DefaultRoles are granted to self-registered principals.
	DefaultRoles []string
}

// HandleRegister creates a principal.
//
//	POST /v1/register {"email", "password"} -> 201 PrincipalResponse
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}

	p, err := h.Manager.Register(r.Context(), req.Email, req.Password, h.DefaultRoles)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, newPrincipalResponse(p))
}

// HandleLogin checks a password. Principals with MFA get a ticket instead
// of tokens.
//
//	POST /v1/login {"email", "password"} -> 200 TokenResponse | ChallengeResponse
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}

	res, err := h.Manager.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	now := h.Manager.Codec.Now()
	switch res := res.(type) {
	case *authkit.Challenge:
		httpx.WriteJSON(w, http.StatusOK, ChallengeResponse{
			MFARequired: true,
			MFATicket:   res.Ticket,
			ExpiresIn:   int64(res.ExpiresAt.Sub(now).Seconds()),
		})
	case *authkit.Authenticated:
		httpx.WriteJSON(w, http.StatusOK, newTokenResponse(res.Tokens, now))
	}
}

// HandleLoginMFA completes a challenged login.
//
//	POST /v1/login/mfa {"mfa_ticket", "code"} -> 200 TokenResponse
func (h *AuthHandler) HandleLoginMFA(w http.ResponseWriter, r *http.Request) {
	var req MFALoginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}

	pair, err := h.Manager.CompleteChallenge(r.Context(), req.MFATicket, req.Code)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, newTokenResponse(pair, h.Manager.Codec.Now()))
}

// HandleRefresh rotates a refresh token.
//
//	POST /v1/token/refresh {"refresh_token"} -> 200 TokenResponse
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}

	pair, err := h.Manager.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, newTokenResponse(pair, h.Manager.Codec.Now()))
}

// HandleLogout revokes the bearer access token and, when supplied, a
// refresh token. The refresh token must belong to the same principal.
//
//	POST /v1/logout {"refresh_token"?} -> 204
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req LogoutRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteError(w, err)
			return
		}
	}

	// The refresh token goes first so a foreign one fails the request
	// before the caller's own session is touched.
	if req.RefreshToken != "" {
		if err := h.Manager.LogoutOwned(ctx, req.RefreshToken, httpx.PrincipalID(ctx)); err != nil {
			slogx.FromContext(ctx).Warn("refresh token not revoked", "err", err)
			httpx.WriteError(w, err)
			return
		}
	}

	raw, _ := httpx.BearerToken(r)
	if err := h.Manager.Logout(ctx, raw); err != nil {
		httpx.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
