package api_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/api"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/failure"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/testutil"
)

type staticToken string

func (s staticToken) Credential(context.Context) (string, error) {
	if s == "" {
		return "", failure.ErrNotAuthenticated
	}
	return string(s), nil
}

type recordedRequest struct {
	op      string
	status  int
	outcome string
}

type fakeMetrics struct {
	mu   sync.Mutex
	seen []recordedRequest
}

func (f *fakeMetrics) RecordAPIRequest(_ context.Context, op string, status int, _ float64, outcome string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, recordedRequest{op: op, status: status, outcome: outcome})
}

// TestListPatients_DecodesMixedIDs tests that numeric and string ids decode
// into the same canonical form.
func TestListPatients_DecodesMixedIDs(t *testing.T) {
	backend := testutil.NewBackend(t)
	numeric := backend.AddPatient(api.Patient{Name: "Ann", Priority: api.PriorityHigh})
	backend.AddPatient(api.Patient{ID: "p-abc", Name: "Bob", Priority: api.PriorityLow})

	client := api.NewClient(backend.URL(), nil, nil)
	patients, err := client.ListPatients(context.Background())

	require.NoError(t, err)
	require.Len(t, patients, 2)
	assert.Equal(t, numeric, patients[0].ID)
	assert.Equal(t, api.ID("p-abc"), patients[1].ID)
	assert.Equal(t, api.PriorityHigh, patients[0].Priority)
}

// TestClient_AttachesBearerToken tests that the token source credential is
// sent on ordinary requests.
func TestClient_AttachesBearerToken(t *testing.T) {
	backend := testutil.NewBackend(t)

	client := api.NewClient(backend.URL(), staticToken("tok-1"), nil)
	_, err := client.ListNotifications(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-1", backend.LastAuthorization(testutil.RouteNotificationsList))
}

// TestClient_NoTokenWhenSignedOut tests that a failing token source does not
// block the request.
func TestClient_NoTokenWhenSignedOut(t *testing.T) {
	backend := testutil.NewBackend(t)

	client := api.NewClient(backend.URL(), staticToken(""), nil)
	_, err := client.ListPatients(context.Background())

	require.NoError(t, err)
	assert.Empty(t, backend.LastAuthorization(testutil.RoutePatientsList))
}

// TestClient_HTTPError tests non-2xx classification and detail extraction.
func TestClient_HTTPError(t *testing.T) {
	backend := testutil.NewBackend(t)

	client := api.NewClient(backend.URL(), nil, nil)
	_, err := client.GetPatient(context.Background(), "9999")

	require.Error(t, err)
	assert.True(t, api.IsKind(err, api.KindHTTP))
	assert.Equal(t, http.StatusNotFound, api.StatusOf(err))

	var apiErr *api.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Patient not found", apiErr.Message)
	assert.Equal(t, "GetPatient", apiErr.Op)
}

// TestClient_InjectedFailure tests that a 5xx from any route surfaces as an
// http error with its status.
func TestClient_InjectedFailure(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.FailWith(testutil.RouteLabTestsList, http.StatusInternalServerError)

	client := api.NewClient(backend.URL(), nil, nil)
	_, err := client.ListLabTests(context.Background(), "1")

	require.Error(t, err)
	assert.True(t, api.IsKind(err, api.KindHTTP))
	assert.Equal(t, http.StatusInternalServerError, api.StatusOf(err))
	assert.Equal(t, 1, backend.Calls(testutil.RouteLabTestsList), "no retries")
}

// TestClient_DecodeError tests that an unparseable 2xx body is a decode error.
func TestClient_DecodeError(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.Hook(testutil.RoutePatientsList, func(w http.ResponseWriter, r *http.Request) bool {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"not":"a list"`))
		return false
	})

	client := api.NewClient(backend.URL(), nil, nil)
	_, err := client.ListPatients(context.Background())

	require.Error(t, err)
	assert.True(t, api.IsKind(err, api.KindDecode))
}

// TestClient_NetworkError tests that an unreachable backend is a network error.
func TestClient_NetworkError(t *testing.T) {
	backend := testutil.NewBackend(t)
	url := backend.URL()
	backend.Server.Close()

	client := api.NewClient(url, nil, nil)
	_, err := client.ListPatients(context.Background())

	require.Error(t, err)
	assert.True(t, api.IsKind(err, api.KindNetwork))
	assert.Equal(t, 0, api.StatusOf(err))
}

// TestClient_ValidationBeforeNetwork tests that missing identifiers fail
// locally without a request.
func TestClient_ValidationBeforeNetwork(t *testing.T) {
	backend := testutil.NewBackend(t)
	client := api.NewClient(backend.URL(), nil, nil)
	ctx := context.Background()

	_, err := client.GetPatient(ctx, "")
	var verr *failure.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "patient id", verr.Field)

	err = client.UpdatePatientStatus(ctx, "1", "  ")
	require.True(t, errors.As(err, &verr))

	_, err = client.FetchRole(ctx, "")
	require.True(t, errors.As(err, &verr))

	assert.Equal(t, 0, backend.Calls(testutil.RoutePatientsGet))
	assert.Equal(t, 0, backend.Calls(testutil.RoutePatientsStatus))
	assert.Equal(t, 0, backend.Calls(testutil.RouteUsersRole))
}

// TestFetchRole tests that the explicit credential is used for role lookup.
func TestFetchRole(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.SetRole("doc-token", api.RoleDoctor)

	client := api.NewClient(backend.URL(), staticToken("other"), nil)
	role, err := client.FetchRole(context.Background(), "doc-token")

	require.NoError(t, err)
	assert.Equal(t, api.RoleDoctor, role)
	assert.Equal(t, "Bearer doc-token", backend.LastAuthorization(testutil.RouteUsersRole))

	_, err = client.FetchRole(context.Background(), "unknown")
	assert.Equal(t, http.StatusUnauthorized, api.StatusOf(err))
}

// TestCreateConsultation tests the create round trip and the numeric id body.
func TestCreateConsultation(t *testing.T) {
	backend := testutil.NewBackend(t)
	pid := backend.AddPatient(api.Patient{Name: "Ann"})

	client := api.NewClient(backend.URL(), nil, nil)
	created, err := client.CreateConsultation(context.Background(), api.Consultation{
		PatientID: pid,
		Symptoms:  "cough",
		Status:    api.StatusCompleted,
	})

	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	stored := backend.Consultations()
	require.Len(t, stored, 1)
	assert.Equal(t, pid, stored[0].PatientID)
	assert.Equal(t, "Ann", stored[0].PatientName)
}

// TestUpdatePatientStatus tests the status write.
func TestUpdatePatientStatus(t *testing.T) {
	backend := testutil.NewBackend(t)
	pid := backend.AddPatient(api.Patient{Name: "Ann"})

	client := api.NewClient(backend.URL(), nil, nil)
	require.NoError(t, client.UpdatePatientStatus(context.Background(), pid, api.StatusCompleted))

	p, ok := backend.Patient(pid)
	require.True(t, ok)
	assert.Equal(t, api.StatusCompleted, p.Status)
}

// TestClient_RecordsMetrics tests that each request reports its outcome.
func TestClient_RecordsMetrics(t *testing.T) {
	backend := testutil.NewBackend(t)
	metrics := &fakeMetrics{}

	client := api.NewClient(backend.URL(), nil, nil, api.WithMetrics(metrics))
	_, _ = client.ListPatients(context.Background())
	_, _ = client.GetPatient(context.Background(), "404")

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	require.Len(t, metrics.seen, 2)
	assert.Equal(t, recordedRequest{op: "ListPatients", status: 200, outcome: "ok"}, metrics.seen[0])
	assert.Equal(t, "GetPatient", metrics.seen[1].op)
	assert.Equal(t, string(api.KindHTTP), metrics.seen[1].outcome)
}

func TestHTTPMessage_FallsBackToRawText(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.Hook(testutil.RouteNotificationsList, func(w http.ResponseWriter, r *http.Request) bool {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("  upstream down \n"))
		return false
	})

	client := api.NewClient(backend.URL(), nil, nil)
	_, err := client.ListNotifications(context.Background())

	require.Error(t, err)
	assert.True(t, strings.HasSuffix(err.Error(), "upstream down"))
}
