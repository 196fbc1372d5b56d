package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"math/big"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const TestKeyID = "test-key-id"

// GenerateTestKeyPair generates an RSA key pair for signing test tokens.
func GenerateTestKeyPair(t *testing.T) (*rsa.PrivateKey, *rsa.PublicKey) {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate RSA key: %v", err)
	}
	return privateKey, &privateKey.PublicKey
}

// TokenClaims describes a user token issued by the test realm.
type TokenClaims struct {
	Issuer  string
	Subject string
	Email   string
	Name    string
	TTL     time.Duration
}

// SignToken signs an RS256 access token with kid TestKeyID.
func SignToken(t *testing.T, key *rsa.PrivateKey, c TokenClaims) string {
	t.Helper()

	signed, err := signToken(key, c)
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return signed
}

func signToken(key *rsa.PrivateKey, c TokenClaims) (string, error) {
	ttl := c.TTL
	if ttl == 0 {
		ttl = time.Hour
	}
	claims := jwt.MapClaims{
		"iss": c.Issuer,
		"exp": time.Now().Add(ttl).Unix(),
		"iat": time.Now().Unix(),
	}
	if c.Subject != "" {
		claims["sub"] = c.Subject
	}
	if c.Email != "" {
		claims["email"] = c.Email
		claims["preferred_username"] = c.Email
	}
	if c.Name != "" {
		claims["name"] = c.Name
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = TestKeyID
	return token.SignedString(key)
}

// JWKSDocument renders pub as a JWKS document under TestKeyID.
func JWKSDocument(pub *rsa.PublicKey) map[string]any {
	return map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": TestKeyID,
			"alg": "RS256",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	}
}
