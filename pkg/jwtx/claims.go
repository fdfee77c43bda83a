package jwtx

import (
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Default lifetimes for the token pair.
const (
	// DefaultAccessTokenTTL is the default lifetime for access tokens.
	DefaultAccessTokenTTL = 15 * time.Minute

	// DefaultRefreshTokenTTL is the default lifetime for refresh tokens.
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// Purpose tags what a token may be used for. Guards check it so a token
// minted for one flow can't be replayed against another.
type Purpose string

const (
	PurposeAccess     Purpose = "access"
	PurposeRefresh    Purpose = "refresh"
	PurposeMFAPending Purpose = "mfa_pending"
)

// Valid reports whether p is one of the known purposes.
func (p Purpose) Valid() bool {
	switch p {
	case PurposeAccess, PurposeRefresh, PurposeMFAPending:
		return true
	}
	return false
}

// Claims is the payload carried by every token the Codec issues.
type Claims struct {
	jwt.RegisteredClaims

	// Scopes double as role names, e.g. ["admin", "billing"].
	Scopes []string `json:"scopes"`

	Purpose Purpose `json:"purpose"`
}

// HasScope reports whether scope is present in the token.
func (c Claims) HasScope(scope string) bool {
	return slices.Contains(c.Scopes, scope)
}

// ExpiresAtTime returns exp in UTC, zero when absent.
func (c Claims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.UTC()
}

// IssuedAtTime returns iat in UTC, zero when absent.
func (c Claims) IssuedAtTime() time.Time {
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.UTC()
}

// TokenPair is what a successful login hands back to the caller.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// ExpiresIn returns the access token's remaining lifetime in whole seconds.
func (p TokenPair) ExpiresIn(now time.Time) int64 {
	d := p.AccessExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return int64(d / time.Second)
}

// NewJTI returns a fresh random (v4) UUID for the "jti" claim.
func NewJTI() string {
	return uuid.NewString()
}

func newClaims(purpose Purpose, subject, issuer string, scopes []string, now time.Time, ttl time.Duration) Claims {
	s := make([]string, len(scopes))
	copy(s, scopes)

	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		Scopes:  s,
		Purpose: purpose,
	}
}
