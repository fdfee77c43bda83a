// Package autherr holds the error taxonomy shared by every authkit package.
//
// Every kind matches ErrAuth under errors.Is, so callers can catch the whole
// category or a single kind:
//
//	if errors.Is(err, autherr.ErrTokenRevoked) { ... }
//	if errors.Is(err, autherr.ErrAuth) { ... }
package autherr

import (
	"errors"
	"fmt"
)

// Error is a categorised auth failure. Code is stable and safe to expose to
// clients; Message is a human description.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// Is reports whether target is the root category or the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t == ErrAuth || t.Code == e.Code
}

// ErrAuth is the root of the taxonomy.
var ErrAuth = &Error{Code: "auth_error", Message: "authentication failure"}

var (
	ErrInvalidCredentials = &Error{Code: "invalid_credentials", Message: "invalid email or password"}
	ErrWeakPassword       = &Error{Code: "weak_password", Message: "password does not satisfy policy"}

	ErrTokenExpired     = &Error{Code: "token_expired", Message: "token has expired"}
	ErrSignatureInvalid = &Error{Code: "signature_invalid", Message: "token signature is invalid"}
	ErrMalformedToken   = &Error{Code: "malformed_token", Message: "token is malformed"}
	ErrTokenRevoked     = &Error{Code: "token_revoked", Message: "token has been revoked"}
	ErrTokenPurpose     = &Error{Code: "token_purpose", Message: "token is not valid for this use"}

	ErrInsufficientPermissions = &Error{Code: "insufficient_permissions", Message: "missing required role"}

	ErrInvalidMFACode    = &Error{Code: "invalid_mfa_code", Message: "one-time code is invalid"}
	ErrMFANotConfigured  = &Error{Code: "mfa_not_configured", Message: "multi-factor authentication is not enabled"}
	ErrMFAAlreadyEnabled = &Error{Code: "mfa_already_enabled", Message: "multi-factor authentication is already enabled"}

	ErrPrincipalExists = &Error{Code: "principal_exists", Message: "principal already exists"}

	ErrLedgerUnavailable     = &Error{Code: "ledger_unavailable", Message: "revocation ledger unavailable"}
	ErrRepositoryUnavailable = &Error{Code: "repository_unavailable", Message: "principal repository unavailable"}
)

// ErrNotFound and ErrInvalidInput are plain sentinels outside the
// taxonomy. They do not match ErrAuth and carry no Code.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

// Wrap attaches a low-level cause to a kind. Both stay visible to errors.Is.
func Wrap(kind *Error, cause error) error {
	if cause == nil {
		return kind
	}
	return fmt.Errorf("%w: %w", kind, cause)
}

// Wrapf is Wrap with a formatted detail instead of an error cause.
func Wrapf(kind *Error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// Code returns the taxonomy code carried by err, or "" when err is not part
// of the taxonomy.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
