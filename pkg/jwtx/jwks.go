package jwtx

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
)

// JWK is a public verification key in JSON Web Key format (RFC 7517).
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use,omitempty"`
	Alg string `json:"alg,omitempty"`
	Kid string `json:"kid,omitempty"`

	// RSA
	N string `json:"n,omitempty"`
	E string `json:"e,omitempty"`

	// OKP and EC
	Crv string `json:"crv,omitempty"`
	X   string `json:"x,omitempty"`
	Y   string `json:"y,omitempty"`
}

// JWKS is a JSON Web Key Set (RFC 7517).
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// PublicJWKS returns the verification key set for asymmetric codecs. HMAC
// codecs have nothing publishable and return an empty set.
func (c *Codec) PublicJWKS() JWKS {
	if c.keys.public == nil {
		return JWKS{Keys: []JWK{}}
	}

	jwk, err := NewJWK(c.kid, c.keys.method.Alg(), c.keys.public)
	if err != nil {
		return JWKS{Keys: []JWK{}}
	}
	return JWKS{Keys: []JWK{jwk}}
}

// NewJWK builds a signing JWK for an Ed25519, P-256 or RSA public key. When
// kid is empty the RFC 7638 thumbprint is used.
func NewJWK(kid, alg string, pub crypto.PublicKey) (JWK, error) {
	var jwk JWK

	switch k := pub.(type) {
	case ed25519.PublicKey:
		jwk = JWK{Kty: "OKP", Crv: "Ed25519", X: b64(k)}

	case *ecdsa.PublicKey:
		// P-256 coordinates are padded to the 32 byte field size.
		x := make([]byte, 32)
		y := make([]byte, 32)
		k.X.FillBytes(x)
		k.Y.FillBytes(y)
		jwk = JWK{Kty: "EC", Crv: "P-256", X: b64(x), Y: b64(y)}

	case *rsa.PublicKey:
		jwk = JWK{Kty: "RSA", N: b64(k.N.Bytes()), E: b64(big.NewInt(int64(k.E)).Bytes())}

	default:
		return JWK{}, fmt.Errorf("jwtx: unsupported public key type %T", pub)
	}

	jwk.Use = "sig"
	jwk.Alg = alg
	jwk.Kid = kid
	if jwk.Kid == "" {
		jwk.Kid = jwk.Thumbprint()
	}
	return jwk, nil
}

// Thumbprint is the RFC 7638 SHA-256 thumbprint over the required members.
func (j JWK) Thumbprint() string {
	var members any
	switch j.Kty {
	case "OKP":
		members = struct {
			Crv string `json:"crv"`
			Kty string `json:"kty"`
			X   string `json:"x"`
		}{j.Crv, j.Kty, j.X}
	case "EC":
		members = struct {
			Crv string `json:"crv"`
			Kty string `json:"kty"`
			X   string `json:"x"`
			Y   string `json:"y"`
		}{j.Crv, j.Kty, j.X, j.Y}
	default:
		members = struct {
			E   string `json:"e"`
			Kty string `json:"kty"`
			N   string `json:"n"`
		}{j.E, j.Kty, j.N}
	}

	raw, _ := json.Marshal(members)
	sum := sha256.Sum256(raw)
	return b64(sum[:])
}

func b64(b []byte) string { return base64.RawURLEncoding.EncodeToString(b) }
