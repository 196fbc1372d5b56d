//go:build integration

// Package e2e drives a fully wired dashboard against fake identity and
// backend servers, a real Postgres journal and the status server.
package e2e

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/api"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/auth"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/dashboard"
	statushttp "github.com/WailSalutem-Health-Care/telemed-dashboard/internal/http"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/messaging"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/reconcile"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/testutil"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/view"
)

const (
	testEmail    = "grey@clinic.test"
	testPassword = "Stethoscope1!"
	testOrigin   = "http://localhost:3000"
)

// TestDashboard represents a complete E2E test environment
type TestDashboard struct {
	Keycloak      *testutil.FakeKeycloak
	Backend       *testutil.Backend
	MockPublisher *testutil.MockPublisher
	Journal       *reconcile.Journal
	Display       *view.Buffer
	Gate          *auth.Gate
	Controller    *dashboard.Controller
	Status        *httptest.Server
}

// SetupE2ETest wires the dashboard the way cmd/dashboard does:
// - fake Keycloak realm with signed tokens verified through its JWKS
// - in-memory REST backend that answers every bearer with the doctor role
// - journal in a throwaway schema of TEST_DATABASE_URL
// - mock RabbitMQ publisher
// - status server on a local test listener
func SetupE2ETest(t *testing.T) *TestDashboard {
	t.Helper()
	ctx := context.Background()

	database := testutil.SetupTestDB(t)
	journal := reconcile.NewJournal(database, testutil.SetupTestSchema(t, database), nil)
	if err := journal.EnsureSchema(ctx); err != nil {
		t.Fatalf("Failed to prepare journal: %v", err)
	}

	kc := testutil.NewFakeKeycloak(t)
	kc.AddUser(testEmail, testPassword, "Meredith Grey")
	authCfg := auth.Config{BaseURL: kc.BaseURL(), Realm: testutil.TestRealm, ClientID: "telemed-dashboard", Issuer: kc.Issuer()}
	keys, err := auth.NewJWKS(ctx, authCfg.CertsURL(), time.Hour, nil)
	if err != nil {
		t.Fatalf("Failed to load JWKS: %v", err)
	}
	t.Cleanup(keys.Close)
	session := auth.NewKeycloak(authCfg, nil, auth.WithVerifier(auth.NewVerifier(authCfg, keys)))

	backend := testutil.NewBackend(t)
	backend.AnswerRole(api.RoleDoctor)

	roles := api.NewClient(backend.URL(), nil, nil)
	gate := auth.NewGate(roles, nil, nil)
	gate.Attach(session)
	client := api.NewClient(backend.URL(), gate, nil)

	pub := testutil.NewMockPublisher()
	display := view.NewBuffer()
	c := dashboard.New(gate, session, client, display, dashboard.Options{
		DoctorID:        "1",
		RefreshInterval: time.Hour,
		VitalsInterval:  time.Hour,
		Events:          messaging.NewEmitter(pub, nil),
		Journal:         journal,
	})
	t.Cleanup(c.Close)

	status := httptest.NewServer(statushttp.NewStatusRouter(display, c.Selection(), c, []string{testOrigin}, nil))
	t.Cleanup(status.Close)

	return &TestDashboard{
		Keycloak:      kc,
		Backend:       backend,
		MockPublisher: pub,
		Journal:       journal,
		Display:       display,
		Gate:          gate,
		Controller:    c,
		Status:        status,
	}
}

// SignIn signs the test doctor in and fails the test on error.
func (td *TestDashboard) SignIn(t *testing.T) {
	t.Helper()
	if err := td.Controller.SignIn(context.Background(), testEmail, testPassword); err != nil {
		t.Fatalf("Sign in failed: %v", err)
	}
}

// NewClient creates an HTTP client for the status server
func (td *TestDashboard) NewClient() *testutil.HTTPTestClient {
	return testutil.NewHTTPTestClient(td.Status.URL, testOrigin)
}
