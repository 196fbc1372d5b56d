package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Claims is the identity read from a validated access token.
type Claims struct {
	Subject           string
	Email             string
	Name              string
	PreferredUsername string
	ExpiresAt         time.Time
}

// DisplayName picks the friendliest non-empty name.
func (c Claims) DisplayName() string {
	switch {
	case c.Name != "":
		return c.Name
	case c.PreferredUsername != "":
		return c.PreferredUsername
	case c.Email != "":
		return c.Email
	default:
		return c.Subject
	}
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Email             string `json:"email"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
}

// Verifier validates RS256 access tokens issued by the realm.
type Verifier struct {
	issuer string
	keys   KeySource
}

func NewVerifier(cfg Config, keys KeySource) *Verifier {
	return &Verifier{issuer: cfg.Issuer, keys: keys}
}

// Verify checks signature, issuer and expiry of tokenString.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, ErrNoToken
	}

	var tc tokenClaims
	parsed, err := jwt.ParseWithClaims(tokenString, &tc, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, ErrInvalidToken
		}
		kid, _ := t.Header["kid"].(string)
		if kid == "" || v.keys == nil {
			return nil, ErrInvalidToken
		}
		return v.keys.Get(kid)
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if tc.ExpiresAt == nil {
		return nil, ErrInvalidToken
	}
	if v.issuer != "" && tc.Issuer != v.issuer {
		return nil, ErrInvalidIssuer
	}
	if tc.Subject == "" {
		return nil, ErrMissingSub
	}
	return toClaims(tc), nil
}

// readUnverified decodes claims without checking the signature. Used only
// when no key source is configured.
func readUnverified(tokenString string) (*Claims, error) {
	var tc tokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, &tc); err != nil {
		return nil, ErrInvalidToken
	}
	if tc.Subject == "" {
		return nil, ErrMissingSub
	}
	return toClaims(tc), nil
}

func toClaims(tc tokenClaims) *Claims {
	c := &Claims{
		Subject:           tc.Subject,
		Email:             tc.Email,
		Name:              tc.Name,
		PreferredUsername: tc.PreferredUsername,
	}
	if tc.ExpiresAt != nil {
		c.ExpiresAt = tc.ExpiresAt.Time
	}
	return c
}
