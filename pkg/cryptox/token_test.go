package cryptox

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{"128-bit token", TokenSize128},
		{"256-bit token", TokenSize256},
		{"512-bit token", TokenSize512},
		{"custom size", 24},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := GenerateToken(tt.size)
			require.NoError(t, err)

			raw, err := base64.RawURLEncoding.DecodeString(token)
			require.NoError(t, err)
			require.Len(t, raw, tt.size)

			token2, err := GenerateToken(tt.size)
			require.NoError(t, err)
			require.NotEqual(t, token, token2, "tokens should be unique")
		})
	}
}

func TestGenerateToken_InvalidSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		_, err := GenerateToken(size)
		require.Error(t, err)
	}
}

func TestFingerprintToken(t *testing.T) {
	a := FingerprintToken("token-a")
	require.Equal(t, a, FingerprintToken("token-a"))
	require.NotEqual(t, a, FingerprintToken("token-b"))
	require.Len(t, a, 43)
}

func TestGenerateSigningKey(t *testing.T) {
	t.Run("HS256", func(t *testing.T) {
		key, err := GenerateSigningKey("HS256")
		require.NoError(t, err)
		require.Len(t, key, 86)
	})

	tests := []struct {
		alg   string
		check func(t *testing.T, priv any)
	}{
		{"EdDSA", func(t *testing.T, priv any) {
			_, ok := priv.(ed25519.PrivateKey)
			require.True(t, ok)
		}},
		{"ES256", func(t *testing.T, priv any) {
			_, ok := priv.(*ecdsa.PrivateKey)
			require.True(t, ok)
		}},
		{"RS256", func(t *testing.T, priv any) {
			k, ok := priv.(*rsa.PrivateKey)
			require.True(t, ok)
			require.Equal(t, 2048, k.N.BitLen())
		}},
	}

	for _, tt := range tests {
		t.Run(tt.alg, func(t *testing.T) {
			key, err := GenerateSigningKey(tt.alg)
			require.NoError(t, err)

			block, _ := pem.Decode(key)
			require.NotNil(t, block)
			require.Equal(t, "PRIVATE KEY", block.Type)

			priv, err := x509.ParsePKCS8PrivateKey(block.Bytes)
			require.NoError(t, err)
			tt.check(t, priv)
		})
	}

	t.Run("unsupported", func(t *testing.T) {
		_, err := GenerateSigningKey("none")
		require.Error(t, err)
	})
}
