package authz_test

import (
	"testing"

	"github.com/aussiebroadwan/authkit/pkg/autherr"
	"github.com/aussiebroadwan/authkit/pkg/authz"
	"github.com/aussiebroadwan/authkit/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func claimsFor(sub string, scopes ...string) jwtx.Claims {
	return jwtx.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: sub},
		Scopes:           scopes,
		Purpose:          jwtx.PurposeAccess,
	}
}

func TestRoles(t *testing.T) {
	t.Parallel()

	c := claimsFor("u1", "admin", "billing")

	t.Run("has role", func(t *testing.T) {
		require.True(t, authz.HasRole(c, "admin"))
		require.False(t, authz.HasRole(c, "superadmin"))
		require.False(t, authz.HasRole(c, ""))
	})

	t.Run("has any role", func(t *testing.T) {
		require.True(t, authz.HasAnyRole(c, "support", "billing"))
		require.False(t, authz.HasAnyRole(c, "support", "ops"))
		require.False(t, authz.HasAnyRole(c))
	})

	t.Run("has all roles", func(t *testing.T) {
		require.True(t, authz.HasAllRoles(c, "admin", "billing"))
		require.False(t, authz.HasAllRoles(c, "admin", "ops"))
		require.True(t, authz.HasAllRoles(c))
	})

	t.Run("require forms", func(t *testing.T) {
		require.NoError(t, authz.RequireRole(c, "admin"))
		require.ErrorIs(t, authz.RequireRole(c, "superadmin"), autherr.ErrInsufficientPermissions)
		require.NoError(t, authz.RequireAnyRole(c, "x", "admin"))
		require.ErrorIs(t, authz.RequireAnyRole(c, "x", "y"), autherr.ErrInsufficientPermissions)
	})

	t.Run("no scopes", func(t *testing.T) {
		empty := claimsFor("u1")
		require.False(t, authz.HasRole(empty, "admin"))
		require.False(t, authz.HasAnyRole(empty, "admin"))
	})
}

func TestOwnership(t *testing.T) {
	t.Parallel()

	c := claimsFor("u1", "user")

	require.NoError(t, authz.AssertOwnership(c, "u1"))
	require.ErrorIs(t, authz.AssertOwnership(c, "u2"), autherr.ErrInsufficientPermissions)
	require.ErrorIs(t, authz.AssertOwnership(c, ""), autherr.ErrInsufficientPermissions)
	require.ErrorIs(t, authz.AssertOwnership(claimsFor(""), ""), autherr.ErrInsufficientPermissions)

	admin := claimsFor("u9", "admin")
	require.NoError(t, authz.AssertOwnerOrRole(c, "u1", "admin"))
	require.NoError(t, authz.AssertOwnerOrRole(admin, "u1", "admin"))
	require.ErrorIs(t, authz.AssertOwnerOrRole(c, "u2", "admin"), autherr.ErrInsufficientPermissions)
}
