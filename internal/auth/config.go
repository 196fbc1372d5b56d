package auth

import (
	"strings"

	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/config"
)

// Config holds identity provider settings.
type Config struct {
	BaseURL  string
	Realm    string
	ClientID string
	Issuer   string
	JWKSURL  string
}

// ConfigFrom derives the auth settings from the application config.
func ConfigFrom(c *config.Config) Config {
	return Config{
		BaseURL:  strings.TrimSuffix(c.AuthBaseURL, "/"),
		Realm:    c.AuthRealm,
		ClientID: c.AuthClientID,
		Issuer:   c.AuthIssuer,
		JWKSURL:  c.AuthJWKSURL,
	}
}

func (c Config) realmURL() string {
	if c.Issuer != "" {
		return strings.TrimSuffix(c.Issuer, "/")
	}
	return c.BaseURL + "/realms/" + c.Realm
}

// TokenURL is the OIDC token endpoint.
func (c Config) TokenURL() string {
	return c.realmURL() + "/protocol/openid-connect/token"
}

// LogoutURL is the OIDC logout endpoint.
func (c Config) LogoutURL() string {
	return c.realmURL() + "/protocol/openid-connect/logout"
}

// CertsURL is the JWKS endpoint, unless overridden.
func (c Config) CertsURL() string {
	if c.JWKSURL != "" {
		return c.JWKSURL
	}
	return c.realmURL() + "/protocol/openid-connect/certs"
}
