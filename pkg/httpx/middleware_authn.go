package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/authkit/pkg/autherr"
	"github.com/aussiebroadwan/authkit/pkg/cryptox"
	"github.com/aussiebroadwan/authkit/pkg/jwtx"
	"github.com/aussiebroadwan/authkit/pkg/slogx"
)

// Guard authorizes a raw bearer token. *authkit.Manager satisfies it.
type Guard interface {
	Authorize(ctx context.Context, token string) (jwtx.Claims, error)
}

// AuthnMiddleware requires a valid, unrevoked access token and stores its
// claims on the request context.
func AuthnMiddleware(g Guard) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			raw, ok := BearerToken(r)
			if !ok {
				writeBearerError(w, "missing bearer token")
				return
			}

			claims, err := g.Authorize(ctx, raw)
			if err != nil {
				if errors.Is(err, autherr.ErrLedgerUnavailable) {
					log.Error("authorization unavailable", "err", err)
					WriteError(w, err)
					return
				}
				log.Warn("bearer token rejected", "code", autherr.Code(err), "token_fp", cryptox.FingerprintToken(raw))
				writeBearerError(w, autherr.Code(err))
				return
			}

			ctx = slogx.WithContext(WithClaims(ctx, claims), log.With("principal_id", claims.Subject))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RFC 6750-compliant error response for bearer auth.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "invalid_token", ErrorDescription: desc})
}
