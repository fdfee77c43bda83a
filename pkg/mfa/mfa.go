// Package mfa wraps TOTP secret generation, provisioning URIs, QR codes and
// code verification. It stores nothing; persistence belongs to the caller.
package mfa

import (
	"bytes"
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"image/png"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// TOTP parameters. These are what every mainstream authenticator app
// assumes, so they are not configurable.
const (
	Period     = 30
	Digits     = otp.DigitsSix
	Algorithm  = otp.AlgorithmSHA1
	SecretSize = 20

	// DefaultSkew accepts one step either side of the current one.
	DefaultSkew = 1

	DefaultIssuer = "authkit"
)

// ErrInvalidSecret is returned when a secret is not valid base32.
var ErrInvalidSecret = errors.New("mfa: invalid secret")

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// Handler issues and checks TOTP codes.
type Handler struct {
	// Issuer is shown by authenticator apps next to the account name.
	Issuer string

	// Skew is the number of periods tolerated either side of now. Nil
	// means DefaultSkew.
	Skew *uint

	Now func() time.Time
}

func (h *Handler) now() time.Time {
	if h.Now == nil {
		return time.Now()
	}
	return h.Now()
}

func (h *Handler) skew() uint {
	if h.Skew == nil {
		return DefaultSkew
	}
	return *h.Skew
}

// NewSecret returns a fresh 160-bit base32 secret.
func (h *Handler) NewSecret() (string, error) {
	buf := make([]byte, SecretSize)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("mfa: read random: %w", err)
	}
	return b32.EncodeToString(buf), nil
}

// key rebuilds the otp.Key for an existing secret.
func (h *Handler) key(identity, secret string) (*otp.Key, error) {
	raw, err := decodeSecret(secret)
	if err != nil {
		return nil, err
	}

	issuer := h.Issuer
	if issuer == "" {
		issuer = DefaultIssuer
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: identity,
		Period:      Period,
		Secret:      raw,
		Digits:      Digits,
		Algorithm:   Algorithm,
	})
	if err != nil {
		return nil, fmt.Errorf("mfa: build key: %w", err)
	}
	return key, nil
}

// ProvisioningURI returns the otpauth:// URI for identity. The same inputs
// always produce the same URI.
func (h *Handler) ProvisioningURI(identity, secret string) (string, error) {
	key, err := h.key(identity, secret)
	if err != nil {
		return "", err
	}
	return key.URL(), nil
}

// QRCodePNG renders the provisioning URI as a size x size PNG.
func (h *Handler) QRCodePNG(identity, secret string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}

	key, err := h.key(identity, secret)
	if err != nil {
		return nil, err
	}

	img, err := key.Image(size, size)
	if err != nil {
		return nil, fmt.Errorf("mfa: render qr: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("mfa: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// VerifyCode reports whether code is valid for secret right now, allowing
// the configured skew. Malformed secrets and codes simply fail.
func (h *Handler) VerifyCode(secret, code string) bool {
	code = strings.TrimSpace(code)
	if len(code) != Digits.Length() {
		return false
	}

	ok, err := totp.ValidateCustom(code, normalizeSecret(secret), h.now().UTC(), totp.ValidateOpts{
		Period:    Period,
		Skew:      h.skew(),
		Digits:    Digits,
		Algorithm: Algorithm,
	})
	return err == nil && ok
}

// GenerateCode returns the code for secret at t. Used by tests and tooling.
func (h *Handler) GenerateCode(secret string, t time.Time) (string, error) {
	return totp.GenerateCodeCustom(normalizeSecret(secret), t, totp.ValidateOpts{
		Period:    Period,
		Digits:    Digits,
		Algorithm: Algorithm,
	})
}

func normalizeSecret(secret string) string {
	return strings.TrimRight(strings.ToUpper(strings.TrimSpace(secret)), "=")
}

func decodeSecret(secret string) ([]byte, error) {
	s := normalizeSecret(secret)
	if s == "" {
		return nil, ErrInvalidSecret
	}
	raw, err := b32.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSecret, err)
	}
	return raw, nil
}
