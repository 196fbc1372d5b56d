package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/testutil"
)

const (
	testWait = 2 * time.Second
	testTick = 10 * time.Millisecond
)

func newTestKeycloak(t *testing.T, fake *testutil.FakeKeycloak, opts ...KeycloakOption) *Keycloak {
	t.Helper()
	cfg := Config{
		BaseURL:  fake.BaseURL(),
		Realm:    testutil.TestRealm,
		ClientID: "telemed-dashboard",
		Issuer:   fake.Issuer(),
	}
	jwks, err := NewJWKS(context.Background(), cfg.CertsURL(), 0, nil)
	require.NoError(t, err)
	t.Cleanup(jwks.Close)

	opts = append([]KeycloakOption{WithVerifier(NewVerifier(cfg, jwks))}, opts...)
	return NewKeycloak(cfg, nil, opts...)
}

// TestKeycloak_SignIn tests the password grant and listener notification
func TestKeycloak_SignIn(t *testing.T) {
	fake := testutil.NewFakeKeycloak(t)
	sub := fake.AddUser("doc@example.com", "s3cret", "Dr. Grey")
	kc := newTestKeycloak(t, fake)

	var seen []*Identity
	kc.OnIdentityChange(func(_ context.Context, id *Identity) { seen = append(seen, id) })

	id, err := kc.SignIn(context.Background(), "doc@example.com", "s3cret")
	require.NoError(t, err)

	assert.Equal(t, sub, id.Subject)
	assert.Equal(t, "Dr. Grey", id.DisplayName())
	assert.Same(t, id, kc.Current())
	require.Len(t, seen, 1)
	assert.Same(t, id, seen[0])

	tok, err := id.Token(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, tok)
	assert.Equal(t, 0, fake.Grants("refresh_token"))
}

// TestKeycloak_SignInRejected tests wrong credentials
func TestKeycloak_SignInRejected(t *testing.T) {
	fake := testutil.NewFakeKeycloak(t)
	fake.AddUser("doc@example.com", "s3cret", "Dr. Grey")
	kc := newTestKeycloak(t, fake)

	notified := false
	kc.OnIdentityChange(func(context.Context, *Identity) { notified = true })

	_, err := kc.SignIn(context.Background(), "doc@example.com", "wrong")

	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, "invalid email or password", authErr.Message)
	assert.False(t, authErr.Temporary)
	assert.Nil(t, kc.Current())
	assert.False(t, notified)
}

// TestKeycloak_SignInEmptyFields tests local validation
func TestKeycloak_SignInEmptyFields(t *testing.T) {
	fake := testutil.NewFakeKeycloak(t)
	kc := newTestKeycloak(t, fake)

	_, err := kc.SignIn(context.Background(), "", "")

	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, 0, fake.Grants("password"))
}

// TestKeycloak_ProviderDown tests the unreachable provider path
func TestKeycloak_ProviderDown(t *testing.T) {
	fake := testutil.NewFakeKeycloak(t)
	fake.AddUser("doc@example.com", "s3cret", "Dr. Grey")
	kc := newTestKeycloak(t, fake)
	fake.SetDown(true)

	_, err := kc.SignIn(context.Background(), "doc@example.com", "s3cret")

	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.True(t, authErr.Temporary)
}

// TestKeycloak_TokenRefresh tests that a token near expiry is refreshed
func TestKeycloak_TokenRefresh(t *testing.T) {
	fake := testutil.NewFakeKeycloak(t)
	fake.AddUser("doc@example.com", "s3cret", "Dr. Grey")
	fake.SetTokenTTL(10 * time.Second)
	kc := newTestKeycloak(t, fake)

	id, err := kc.SignIn(context.Background(), "doc@example.com", "s3cret")
	require.NoError(t, err)

	fake.SetTokenTTL(5 * time.Minute)
	first, err := id.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, fake.Grants("refresh_token"))

	second, err := id.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, fake.Grants("refresh_token"))
}

// TestKeycloak_SignOut tests that sign-out clears local state first
func TestKeycloak_SignOut(t *testing.T) {
	fake := testutil.NewFakeKeycloak(t)
	fake.AddUser("doc@example.com", "s3cret", "Dr. Grey")
	kc := newTestKeycloak(t, fake)

	_, err := kc.SignIn(context.Background(), "doc@example.com", "s3cret")
	require.NoError(t, err)

	last := &Identity{}
	kc.OnIdentityChange(func(_ context.Context, id *Identity) { last = id })

	require.NoError(t, kc.SignOut(context.Background()))
	assert.Nil(t, kc.Current())
	assert.Nil(t, last)
	assert.Equal(t, 1, fake.Logouts())
}

// TestKeycloak_SignOutProviderDown tests that local sign-out succeeds even
// when the provider cannot be reached
func TestKeycloak_SignOutProviderDown(t *testing.T) {
	fake := testutil.NewFakeKeycloak(t)
	fake.AddUser("doc@example.com", "s3cret", "Dr. Grey")
	kc := newTestKeycloak(t, fake)

	_, err := kc.SignIn(context.Background(), "doc@example.com", "s3cret")
	require.NoError(t, err)
	fake.SetDown(true)

	err = kc.SignOut(context.Background())

	assert.Error(t, err)
	assert.Nil(t, kc.Current())
}

// TestKeycloak_GateIntegration tests the provider driving the gate
func TestKeycloak_GateIntegration(t *testing.T) {
	fake := testutil.NewFakeKeycloak(t)
	fake.AddUser("doc@example.com", "s3cret", "Dr. Grey")
	kc := newTestKeycloak(t, fake)

	roles := &stubRoles{role: "doctor"}
	g := NewGate(roles, nil, nil)
	g.Attach(kc)

	_, err := kc.SignIn(context.Background(), "doc@example.com", "s3cret")
	require.NoError(t, err)
	assert.True(t, g.State().Shows(SectionDoctor))

	cred, err := g.Credential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{cred}, roles.seen)

	_ = kc.SignOut(context.Background())
	assert.False(t, g.Authenticated())
}
