// Package authz holds the pure role and ownership predicates evaluated over
// decoded token claims.
package authz

import (
	"github.com/aussiebroadwan/authkit/pkg/autherr"
	"github.com/aussiebroadwan/authkit/pkg/jwtx"
)

// HasRole reports whether the token carries role.
func HasRole(claims jwtx.Claims, role string) bool {
	return claims.HasScope(role)
}

// HasAnyRole reports whether the token carries at least one of roles.
func HasAnyRole(claims jwtx.Claims, roles ...string) bool {
	want := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		want[r] = struct{}{}
	}
	for _, s := range claims.Scopes {
		if _, ok := want[s]; ok {
			return true
		}
	}
	return false
}

// HasAllRoles reports whether the token carries every role listed.
func HasAllRoles(claims jwtx.Claims, roles ...string) bool {
	for _, r := range roles {
		if !claims.HasScope(r) {
			return false
		}
	}
	return true
}

// RequireRole is HasRole as an error.
func RequireRole(claims jwtx.Claims, role string) error {
	if !HasRole(claims, role) {
		return autherr.Wrapf(autherr.ErrInsufficientPermissions, "requires role %q", role)
	}
	return nil
}

// RequireAnyRole is HasAnyRole as an error.
func RequireAnyRole(claims jwtx.Claims, roles ...string) error {
	if !HasAnyRole(claims, roles...) {
		return autherr.Wrapf(autherr.ErrInsufficientPermissions, "requires one of %v", roles)
	}
	return nil
}

// AssertOwnership fails unless the token subject is ownerID.
func AssertOwnership(claims jwtx.Claims, ownerID string) error {
	if ownerID == "" || claims.Subject != ownerID {
		return autherr.Wrapf(autherr.ErrInsufficientPermissions, "not the owner")
	}
	return nil
}

// AssertOwnerOrRole passes for the owner or for anyone holding one of roles.
func AssertOwnerOrRole(claims jwtx.Claims, ownerID string, roles ...string) error {
	if AssertOwnership(claims, ownerID) == nil || HasAnyRole(claims, roles...) {
		return nil
	}
	return autherr.Wrapf(autherr.ErrInsufficientPermissions, "not the owner")
}
