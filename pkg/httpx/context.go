package httpx

import (
	"context"

	"github.com/aussiebroadwan/authkit/pkg/jwtx"
)

type ctxKey string

const (
	CtxKeyPrincipalID ctxKey = "principal_id"
	CtxKeyClaims      ctxKey = "claims"
)

// WithClaims stores verified claims on ctx.
func WithClaims(ctx context.Context, c jwtx.Claims) context.Context {
	ctx = context.WithValue(ctx, CtxKeyPrincipalID, c.Subject)
	return context.WithValue(ctx, CtxKeyClaims, c)
}

// ClaimsFromContext returns the claims AuthnMiddleware stored.
func ClaimsFromContext(ctx context.Context) (jwtx.Claims, bool) {
	c, ok := ctx.Value(CtxKeyClaims).(jwtx.Claims)
	return c, ok
}

// PrincipalID returns the authenticated principal's id, or "".
func PrincipalID(ctx context.Context) string {
	id, _ := ctx.Value(CtxKeyPrincipalID).(string)
	return id
}
