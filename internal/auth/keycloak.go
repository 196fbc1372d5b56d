package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// refreshLeeway is how close to expiry a token is refreshed before use.
const refreshLeeway = 30 * time.Second

// IdentityListener is notified on every sign-in state transition. A nil
// identity means signed out.
type IdentityListener func(ctx context.Context, id *Identity)

// Identity is a signed-in user and their token pair.
type Identity struct {
	Claims

	kc *Keycloak

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	expiry       time.Time
}

// NewStaticIdentity builds an identity that always yields token. It is used
// where no identity provider is involved, such as service accounts and tests.
func NewStaticIdentity(claims Claims, token string) *Identity {
	return &Identity{Claims: claims, accessToken: token}
}

// Token returns the bearer credential, refreshing it when it is about to
// expire.
func (i *Identity) Token(ctx context.Context) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.kc == nil || i.refreshToken == "" || i.expiry.IsZero() {
		return i.accessToken, nil
	}
	if i.kc.now().Add(refreshLeeway).Before(i.expiry) {
		return i.accessToken, nil
	}

	tr, err := i.kc.grant(ctx, map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": i.refreshToken,
	})
	if err != nil {
		return "", err
	}
	i.accessToken = tr.AccessToken
	if tr.RefreshToken != "" {
		i.refreshToken = tr.RefreshToken
	}
	i.expiry = i.kc.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	return i.accessToken, nil
}

func (i *Identity) refresh() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.refreshToken
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

type oidcError struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

// Keycloak signs users in against a Keycloak realm with the OIDC password
// grant and tracks the current identity.
type Keycloak struct {
	cfg      Config
	http     *resty.Client
	verifier *Verifier
	logger   *zap.Logger
	now      func() time.Time

	mu        sync.Mutex
	current   *Identity
	listeners map[int]IdentityListener
	nextID    int
}

type KeycloakOption func(*Keycloak)

// WithVerifier validates issued tokens against the realm keys. Without it
// claims are read unverified.
func WithVerifier(v *Verifier) KeycloakOption {
	return func(k *Keycloak) { k.verifier = v }
}

// WithClock overrides the time source used for token expiry.
func WithClock(now func() time.Time) KeycloakOption {
	return func(k *Keycloak) { k.now = now }
}

func NewKeycloak(cfg Config, logger *zap.Logger, opts ...KeycloakOption) *Keycloak {
	if logger == nil {
		logger = zap.NewNop()
	}
	k := &Keycloak{
		cfg:       cfg,
		http:      resty.New().SetTimeout(30 * time.Second),
		logger:    logger,
		now:       time.Now,
		listeners: map[int]IdentityListener{},
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// OnIdentityChange registers l and returns a function that removes it.
func (k *Keycloak) OnIdentityChange(l IdentityListener) func() {
	k.mu.Lock()
	defer k.mu.Unlock()
	id := k.nextID
	k.nextID++
	k.listeners[id] = l
	return func() {
		k.mu.Lock()
		defer k.mu.Unlock()
		delete(k.listeners, id)
	}
}

// Current returns the signed-in identity, or nil.
func (k *Keycloak) Current() *Identity {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.current
}

// SignIn exchanges email and password for a token pair. Rejected credentials
// and unreachable providers both return *AuthError.
func (k *Keycloak) SignIn(ctx context.Context, email, password string) (*Identity, error) {
	if email == "" || password == "" {
		return nil, &AuthError{Message: "email and password are required"}
	}

	tr, err := k.grant(ctx, map[string]string{
		"grant_type": "password",
		"username":   email,
		"password":   password,
		"scope":      "openid",
	})
	if err != nil {
		return nil, err
	}

	claims, err := k.claims(tr.AccessToken)
	if err != nil {
		return nil, &AuthError{Message: "identity provider returned an unusable token", Err: err}
	}

	id := &Identity{
		Claims:       *claims,
		kc:           k,
		accessToken:  tr.AccessToken,
		refreshToken: tr.RefreshToken,
		expiry:       k.now().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}

	k.mu.Lock()
	k.current = id
	k.mu.Unlock()

	k.logger.Info("signed in", zap.String("user_id", id.Subject), zap.String("email", id.Email))
	k.notify(ctx, id)
	return id, nil
}

// SignOut clears the local identity and notifies listeners before telling
// the provider. The returned error only reports the remote logout.
func (k *Keycloak) SignOut(ctx context.Context) error {
	k.mu.Lock()
	prev := k.current
	k.current = nil
	k.mu.Unlock()

	k.notify(ctx, nil)
	if prev == nil {
		return nil
	}

	resp, err := k.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"client_id":     k.cfg.ClientID,
			"refresh_token": prev.refresh(),
		}).
		Post(k.cfg.LogoutURL())
	if err != nil {
		k.logger.Warn("remote sign-out failed", zap.Error(err))
		return &AuthError{Message: "sign-out could not reach the identity provider", Temporary: true, Err: err}
	}
	if resp.IsError() {
		k.logger.Warn("remote sign-out rejected", zap.Int("status", resp.StatusCode()))
		return &AuthError{Message: "identity provider rejected sign-out"}
	}
	return nil
}

func (k *Keycloak) notify(ctx context.Context, id *Identity) {
	k.mu.Lock()
	ls := make([]IdentityListener, 0, len(k.listeners))
	for _, l := range k.listeners {
		ls = append(ls, l)
	}
	k.mu.Unlock()

	for _, l := range ls {
		l(ctx, id)
	}
}

func (k *Keycloak) claims(accessToken string) (*Claims, error) {
	if k.verifier != nil {
		return k.verifier.Verify(accessToken)
	}
	return readUnverified(accessToken)
}

func (k *Keycloak) grant(ctx context.Context, form map[string]string) (*tokenResponse, error) {
	form["client_id"] = k.cfg.ClientID

	var tr tokenResponse
	resp, err := k.http.R().
		SetContext(ctx).
		SetFormData(form).
		SetResult(&tr).
		Post(k.cfg.TokenURL())
	if err != nil {
		return nil, &AuthError{Message: "identity provider unreachable", Temporary: true, Err: err}
	}

	switch {
	case resp.StatusCode() == http.StatusBadRequest || resp.StatusCode() == http.StatusUnauthorized:
		var oe oidcError
		_ = json.Unmarshal(resp.Body(), &oe)
		k.logger.Info("token grant rejected", zap.String("grant_type", form["grant_type"]), zap.String("error", oe.Error))
		if form["grant_type"] == "refresh_token" {
			return nil, &AuthError{Message: "session expired, please sign in again"}
		}
		return nil, &AuthError{Message: "invalid email or password"}
	case resp.IsError():
		return nil, &AuthError{Message: "identity provider error", Temporary: resp.StatusCode() >= 500}
	}

	if tr.AccessToken == "" {
		return nil, &AuthError{Message: "identity provider returned no token"}
	}
	return &tr, nil
}
