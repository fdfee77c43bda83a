package cryptox

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters. Defaults follow the OWASP minimum (19 MiB, t=2, p=1).
const (
	DefaultMemory      = 19 * 1024
	DefaultIterations  = 2
	DefaultParallelism = 1
	keyLength          = 32
	saltLength         = 16
)

var (
	// ErrPasswordMismatch means the hash is well formed but the password
	// does not match it.
	ErrPasswordMismatch = errors.New("cryptox: password does not match")

	// ErrInvalidHash means the stored hash could not be parsed.
	ErrInvalidHash = errors.New("cryptox: invalid hash format")
)

// Argon2 hashes passwords into PHC strings:
//
//	$argon2id$v=19$m=19456,t=2,p=1$<salt>$<hash>
//
// The zero value uses the default parameters and no pepper.
type Argon2 struct {
	// Pepper is appended to every password before hashing. Changing it
	// invalidates every stored hash.
	Pepper string

	Memory      uint32
	Iterations  uint32
	Parallelism uint8
}

func (a *Argon2) params() (mem, iters uint32, par uint8) {
	mem, iters, par = a.Memory, a.Iterations, a.Parallelism
	if mem == 0 {
		mem = DefaultMemory
	}
	if iters == 0 {
		iters = DefaultIterations
	}
	if par == 0 {
		par = DefaultParallelism
	}
	return mem, iters, par
}

// Hash generates a PHC-format Argon2id hash string including salt and parameters.
func (a *Argon2) Hash(password string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("cryptox: read salt: %w", err)
	}

	mem, iters, par := a.params()
	hash := argon2.IDKey([]byte(password+a.Pepper), salt, iters, mem, par, keyLength)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		mem,
		iters,
		par,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// Verify compares password against a PHC-style Argon2id hash. It returns
// ErrPasswordMismatch on a wrong password and wraps ErrInvalidHash when the
// stored value can't be parsed.
func (a *Argon2) Verify(encodedHash, password string) error {
	// ["", "argon2id", "v=19", "m=X,t=Y,p=Z", "salt", "hash"]
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return fmt.Errorf("%w: expected 6 parts", ErrInvalidHash)
	}
	if parts[1] != "argon2id" {
		return fmt.Errorf("%w: not argon2id", ErrInvalidHash)
	}
	if parts[2] != fmt.Sprintf("v=%d", argon2.Version) {
		return fmt.Errorf("%w: wrong version", ErrInvalidHash)
	}

	var mem, iters uint32
	var par uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &iters, &par); err != nil {
		return fmt.Errorf("%w: parameters: %w", ErrInvalidHash, err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return fmt.Errorf("%w: salt: %w", ErrInvalidHash, err)
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(expected) == 0 {
		return fmt.Errorf("%w: hash", ErrInvalidHash)
	}

	computed := argon2.IDKey(
		[]byte(password+a.Pepper),
		salt,
		iters,
		mem,
		par,
		uint32(len(expected)), // #nosec G115 - bounded by the decoded hash
	)

	if subtle.ConstantTimeCompare(computed, expected) == 1 {
		return nil
	}
	return ErrPasswordMismatch
}
