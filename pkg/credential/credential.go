// Package credential enforces the password policy and verifies passwords
// against stored hashes.
package credential

import (
	"errors"
	"fmt"
	"unicode"
	"unicode/utf8"

	"github.com/aussiebroadwan/authkit/pkg/autherr"
	"github.com/aussiebroadwan/authkit/pkg/cryptox"
)

// DefaultMinLength is the minimum password length in characters.
const DefaultMinLength = 12

// Policy describes what a new password must satisfy.
//
// RequireNonAlphabetic is a weak heuristic: it only rejects passwords that
// are all letters or all digits. It is not an entropy estimate.
type Policy struct {
	MinLength            int
	RequireNonAlphabetic bool
}

// DefaultPolicy returns the 12 character, non-alphabetic policy.
func DefaultPolicy() Policy {
	return Policy{MinLength: DefaultMinLength, RequireNonAlphabetic: true}
}

// Validate returns autherr.ErrWeakPassword when password breaks the policy.
func (p Policy) Validate(password string) error {
	if n := utf8.RuneCountInString(password); n < p.MinLength {
		return autherr.Wrapf(autherr.ErrWeakPassword, "must be at least %d characters, got %d", p.MinLength, n)
	}

	if p.RequireNonAlphabetic && (allOf(password, unicode.IsLetter) || allOf(password, unicode.IsDigit)) {
		return autherr.Wrapf(autherr.ErrWeakPassword, "too simple: mix letters with digits or symbols")
	}

	return nil
}

func allOf(s string, pred func(rune) bool) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !pred(r) {
			return false
		}
	}
	return true
}

// Hasher is the memory-hard hashing primitive. Verify must return
// cryptox.ErrPasswordMismatch for a well-formed hash that doesn't match.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(encodedHash, password string) error
}

// Verifier couples the policy with a Hasher.
type Verifier struct {
	Policy Policy
	Hasher Hasher
}

// Hash validates password against the policy and only then hashes it.
func (v *Verifier) Hash(password string) (string, error) {
	if err := v.Policy.Validate(password); err != nil {
		return "", err
	}

	hash, err := v.Hasher.Hash(password)
	if err != nil {
		return "", fmt.Errorf("credential: hash: %w", err)
	}
	return hash, nil
}

// Verify checks plaintext against hash. A mismatch is
// autherr.ErrInvalidCredentials; anything else (an unparseable hash, say) is
// a system failure and is returned as a plain wrapped error.
func (v *Verifier) Verify(hash, plaintext string) error {
	err := v.Hasher.Verify(hash, plaintext)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, cryptox.ErrPasswordMismatch):
		return autherr.Wrap(autherr.ErrInvalidCredentials, err)
	default:
		return fmt.Errorf("credential: verify: %w", err)
	}
}
