// Package testutil generates signing keys and tokens for tests.
package testutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// RSAKey is a generated RSA key pair with its PEM encoded public half
type RSAKey struct {
	Private *rsa.PrivateKey
	PEM     []byte
}

// ECKey is a generated ECDSA key pair with its PEM encoded public half
type ECKey struct {
	Private *ecdsa.PrivateKey
	PEM     []byte
}

// GenerateRSAKey creates a 2048 bit RSA key pair
func GenerateRSAKey(t *testing.T) RSAKey {
	t.Helper()
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return RSAKey{Private: privateKey, PEM: encodePublic(t, &privateKey.PublicKey)}
}

// GenerateECKey creates a P-256 ECDSA key pair
func GenerateECKey(t *testing.T) ECKey {
	t.Helper()
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return ECKey{Private: privateKey, PEM: encodePublic(t, &privateKey.PublicKey)}
}

func encodePublic(t *testing.T, pub interface{}) []byte {
	der, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
}

// Claims builds a claim set for issuer and audience valid for one hour
func Claims(issuer, audience string, extra map[string]interface{}) jwt.MapClaims {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": issuer,
		"aud": audience,
		"sub": "auth0|user-123",
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
	for k, v := range extra {
		claims[k] = v
	}
	return claims
}

// Sign signs claims with key using method
func Sign(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return signed
}
