package authkit

import (
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/authkit/pkg/credential"
	"github.com/aussiebroadwan/authkit/pkg/jwtx"
	"github.com/aussiebroadwan/authkit/pkg/ledger"
)

// DefaultMFATicketTTL is how long a password-verified login waits for its
// second factor.
const DefaultMFATicketTTL = 5 * time.Minute

// DefaultRepositoryTimeout bounds a single repository call.
const DefaultRepositoryTimeout = 3 * time.Second

// Config is everything a Manager needs. It is passed explicitly; nothing is
// read from the environment here.
type Config struct {
	// SecretKey is the HMAC secret, or a PEM private key for asymmetric
	// algorithms. Required.
	SecretKey string
	Algorithm string
	KeyID     string
	Issuer    string

	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// ClockSkew is tolerated on token expiry and added to every revocation
	// record's TTL.
	ClockSkew time.Duration

	MinPasswordLength    int
	RequireNonAlphabetic bool

	// RedisURL is used by Open to reach the revocation ledger.
	RedisURL     string
	LedgerPrefix string

	LedgerTimeout     time.Duration
	RepositoryTimeout time.Duration

	MFAIssuer    string
	MFATicketTTL time.Duration

	// MaxMFAAttempts is how many wrong codes one MFA ticket takes before
	// it is revoked.
	MaxMFAAttempts int
}

// DefaultConfig returns the defaults; only SecretKey has to be filled in.
func DefaultConfig() Config {
	return Config{
		Algorithm:            jwtx.AlgHS256,
		Issuer:               "authkit",
		AccessTTL:            jwtx.DefaultAccessTokenTTL,
		RefreshTTL:           jwtx.DefaultRefreshTokenTTL,
		MinPasswordLength:    credential.DefaultMinLength,
		RequireNonAlphabetic: true,
		RedisURL:             "redis://localhost:6379/0",
		LedgerPrefix:         ledger.DefaultPrefix,
		LedgerTimeout:        ledger.DefaultTimeout,
		RepositoryTimeout:    DefaultRepositoryTimeout,
		MFAIssuer:            "authkit",
		MFATicketTTL:         DefaultMFATicketTTL,
		MaxMFAAttempts:       DefaultMaxMFAAttempts,
	}
}

// Validate reports configuration mistakes before anything is built.
func (c Config) Validate() error {
	var errs []error

	if c.SecretKey == "" {
		errs = append(errs, errors.New("secret key is required"))
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	} else if c.AccessTTL >= c.RefreshTTL {
		errs = append(errs, fmt.Errorf("access ttl (%s) must be shorter than refresh ttl (%s)", c.AccessTTL, c.RefreshTTL))
	}
	if c.MinPasswordLength < 1 {
		errs = append(errs, errors.New("minimum password length must be at least 1"))
	}
	if c.ClockSkew < 0 {
		errs = append(errs, errors.New("clock skew must not be negative"))
	}
	if c.MFATicketTTL < time.Second {
		errs = append(errs, errors.New("mfa ticket ttl must be at least 1s"))
	}
	if c.MaxMFAAttempts < 0 {
		errs = append(errs, errors.New("mfa attempt limit must not be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("authkit: invalid config: %w", errors.Join(errs...))
	}
	return nil
}
