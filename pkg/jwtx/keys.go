package jwtx

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Supported algorithm names.
const (
	AlgHS256 = "HS256"
	AlgHS384 = "HS384"
	AlgHS512 = "HS512"
	AlgEdDSA = "EdDSA"
	AlgES256 = "ES256"
	AlgRS256 = "RS256"
)

// keyMaterial is the resolved signing method plus the keys used on each side.
type keyMaterial struct {
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
	public    crypto.PublicKey // nil for HMAC
}

// Symmetric reports whether alg is an HMAC algorithm.
func Symmetric(alg string) bool {
	switch alg {
	case AlgHS256, AlgHS384, AlgHS512:
		return true
	}
	return false
}

func loadKeyMaterial(alg string, secret []byte) (*keyMaterial, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwtx: signing secret is required")
	}

	switch alg {
	case AlgHS256, AlgHS384, AlgHS512:
		return &keyMaterial{
			method:    jwt.GetSigningMethod(alg),
			signKey:   secret,
			verifyKey: secret,
		}, nil

	case AlgEdDSA:
		key, err := parseEd25519(secret)
		if err != nil {
			return nil, err
		}
		pub := key.Public().(ed25519.PublicKey)
		return &keyMaterial{method: jwt.SigningMethodEdDSA, signKey: key, verifyKey: pub, public: pub}, nil

	case AlgES256:
		key, err := parseES256(secret)
		if err != nil {
			return nil, err
		}
		return &keyMaterial{method: jwt.SigningMethodES256, signKey: key, verifyKey: &key.PublicKey, public: &key.PublicKey}, nil

	case AlgRS256:
		key, err := parseRSA(secret)
		if err != nil {
			return nil, err
		}
		return &keyMaterial{method: jwt.SigningMethodRS256, signKey: key, verifyKey: &key.PublicKey, public: &key.PublicKey}, nil
	}

	return nil, fmt.Errorf("jwtx: unsupported algorithm %q", alg)
}

// parseEd25519 loads an Ed25519 private key. Ed25519 keys must be in PKCS8 format.
func parseEd25519(pemKey []byte) (ed25519.PrivateKey, error) {
	priv, err := parsePKCS8(pemKey, "Ed25519")
	if err != nil {
		return nil, err
	}

	key, ok := priv.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("jwtx: not Ed25519 private key")
	}
	if len(key) != ed25519.PrivateKeySize {
		return nil, errors.New("jwtx: invalid Ed25519 private key size")
	}
	return key, nil
}

// parseES256 loads a P-256 private key from PKCS8 or SEC1 ("EC PRIVATE KEY").
func parseES256(pemKey []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(pemKey)
	if block == nil {
		return nil, errors.New("jwtx: invalid PEM for ECDSA key")
	}

	var key *ecdsa.PrivateKey
	switch block.Type {
	case "EC PRIVATE KEY":
		k, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("jwtx: parse EC key: %w", err)
		}
		key = k
	case "PRIVATE KEY":
		priv, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("jwtx: parse PKCS8: %w", err)
		}
		k, ok := priv.(*ecdsa.PrivateKey)
		if !ok {
			return nil, errors.New("jwtx: not ECDSA private key")
		}
		key = k
	default:
		return nil, fmt.Errorf("jwtx: unsupported PEM type %q", block.Type)
	}

	if key.Curve != elliptic.P256() {
		return nil, errors.New("jwtx: ES256 requires a P-256 key")
	}
	return key, nil
}

// parseRSA handles both PKCS1 and PKCS8 encodings.
func parseRSA(pemKey []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemKey)
	if block == nil {
		return nil, errors.New("jwtx: invalid PEM for RSA key")
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("jwtx: parse RSA key: %w", err)
		}
		return key, nil
	case "PRIVATE KEY":
		priv, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("jwtx: parse PKCS8: %w", err)
		}
		key, ok := priv.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("jwtx: not RSA private key")
		}
		return key, nil
	}

	return nil, fmt.Errorf("jwtx: unsupported PEM type %q", block.Type)
}

func parsePKCS8(pemKey []byte, kind string) (any, error) {
	block, _ := pem.Decode(pemKey)
	if block == nil {
		return nil, fmt.Errorf("jwtx: invalid PEM for %s key", kind)
	}
	if block.Type != "PRIVATE KEY" {
		return nil, fmt.Errorf("jwtx: expected PRIVATE KEY, got %q (%s requires PKCS8)", block.Type, kind)
	}

	priv, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("jwtx: parse PKCS8: %w", err)
	}
	return priv, nil
}
