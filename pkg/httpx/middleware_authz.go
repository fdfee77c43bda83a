package httpx

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/authkit/pkg/authz"
)

// RequireRole rejects callers without role. It must run after
// AuthnMiddleware.
func RequireRole(role string) Middleware {
	return RequireAnyRole(role)
}

// RequireAnyRole rejects callers holding none of roles.
func RequireAnyRole(roles ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok || !authz.HasAnyRole(claims, roles...) {
				writeBearerScopeError(w, roles...)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAllRoles rejects callers missing any of roles.
func RequireAllRoles(roles ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok || !authz.HasAllRoles(claims, roles...) {
				writeBearerScopeError(w, roles...)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RFC 6750-compliant error response for bearer insufficient_scope.
func writeBearerScopeError(w http.ResponseWriter, required ...string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="insufficient_scope", scope="`+strings.Join(required, " ")+`"`)
	WriteJSON(w, http.StatusForbidden, ErrorResponse{
		Error:            "insufficient_permissions",
		ErrorDescription: "missing required role",
	})
}
