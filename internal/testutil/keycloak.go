package testutil

import (
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const TestRealm = "test"

type keycloakUser struct {
	password string
	subject  string
	name     string
}

// FakeKeycloak serves the OIDC token, logout and certs endpoints of a
// single realm. Users live in memory.
type FakeKeycloak struct {
	Server *httptest.Server
	Key    *rsa.PrivateKey

	mu            sync.Mutex
	users         map[string]keycloakUser
	refreshTokens map[string]string // refresh token -> email
	tokenTTL      time.Duration
	grants        map[string]int
	logouts       int
	down          bool
}

// NewFakeKeycloak starts a fake realm, closed when the test ends.
func NewFakeKeycloak(t *testing.T) *FakeKeycloak {
	t.Helper()

	key, _ := GenerateTestKeyPair(t)
	k := &FakeKeycloak{
		Key:           key,
		users:         map[string]keycloakUser{},
		refreshTokens: map[string]string{},
		tokenTTL:      5 * time.Minute,
		grants:        map[string]int{},
	}

	r := mux.NewRouter()
	base := "/realms/" + TestRealm + "/protocol/openid-connect"
	r.HandleFunc(base+"/token", k.token).Methods("POST")
	r.HandleFunc(base+"/logout", k.logout).Methods("POST")
	r.HandleFunc(base+"/certs", k.certs).Methods("GET")

	k.Server = httptest.NewServer(r)
	t.Cleanup(k.Server.Close)
	return k
}

// BaseURL is the server root, as configured in AUTH_BASE_URL.
func (k *FakeKeycloak) BaseURL() string { return k.Server.URL }

// Issuer is the realm issuer claim.
func (k *FakeKeycloak) Issuer() string { return k.Server.URL + "/realms/" + TestRealm }

// AddUser registers a user and returns their subject id.
func (k *FakeKeycloak) AddUser(email, password, name string) string {
	k.mu.Lock()
	defer k.mu.Unlock()
	sub := uuid.NewString()
	k.users[email] = keycloakUser{password: password, subject: sub, name: name}
	return sub
}

// SetTokenTTL changes the expires_in of issued tokens.
func (k *FakeKeycloak) SetTokenTTL(d time.Duration) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.tokenTTL = d
}

// SetDown makes every endpoint answer 503.
func (k *FakeKeycloak) SetDown(down bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.down = down
}

// Grants returns how many successful grants of grantType were issued.
func (k *FakeKeycloak) Grants(grantType string) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.grants[grantType]
}

func (k *FakeKeycloak) Logouts() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.logouts
}

func (k *FakeKeycloak) isDown(w http.ResponseWriter) bool {
	k.mu.Lock()
	down := k.down
	k.mu.Unlock()
	if down {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}
	return down
}

func (k *FakeKeycloak) token(w http.ResponseWriter, r *http.Request) {
	if k.isDown(w) {
		return
	}
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	var email string
	switch grant := r.PostForm.Get("grant_type"); grant {
	case "password":
		u, ok := k.users[r.PostForm.Get("username")]
		if !ok || u.password != r.PostForm.Get("password") {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error":             "invalid_grant",
				"error_description": "Invalid user credentials",
			})
			return
		}
		email = r.PostForm.Get("username")
	case "refresh_token":
		var ok bool
		email, ok = k.refreshTokens[r.PostForm.Get("refresh_token")]
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
		delete(k.refreshTokens, r.PostForm.Get("refresh_token"))
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
		return
	}

	u := k.users[email]
	access, err := signToken(k.Key, TokenClaims{
		Issuer:  k.Issuer(),
		Subject: u.subject,
		Email:   email,
		Name:    u.name,
		TTL:     k.tokenTTL,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server_error"})
		return
	}
	refresh := uuid.NewString()
	k.refreshTokens[refresh] = email
	k.grants[r.PostForm.Get("grant_type")]++

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  access,
		"refresh_token": refresh,
		"expires_in":    int(k.tokenTTL.Seconds()),
		"token_type":    "Bearer",
	})
}

func (k *FakeKeycloak) logout(w http.ResponseWriter, r *http.Request) {
	if k.isDown(w) {
		return
	}
	_ = r.ParseForm()
	k.mu.Lock()
	delete(k.refreshTokens, r.PostForm.Get("refresh_token"))
	k.logouts++
	k.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (k *FakeKeycloak) certs(w http.ResponseWriter, r *http.Request) {
	if k.isDown(w) {
		return
	}
	writeJSON(w, http.StatusOK, JWKSDocument(&k.Key.PublicKey))
}
