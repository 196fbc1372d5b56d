package panel

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/api"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/failure"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/testutil"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/view"
)

func selectedConsultation(t *testing.T, h *harness) (*Consultation, api.ID) {
	t.Helper()
	pid := h.backend.AddPatient(api.Patient{Name: "Ann", Age: 42, Gender: "female", PatientID: "P001", Priority: api.PriorityHigh})
	_, err := h.sel.SelectPatient(context.Background(), pid)
	require.NoError(t, err)
	c := NewConsultation(h.deps)
	require.NoError(t, c.Refresh(context.Background()))
	return c, pid
}

func TestConsultation_SaveCompletes(t *testing.T) {
	h := newHarness(t)
	c, pid := selectedConsultation(t, h)
	c.Edit(Draft{Symptoms: "fever", Diagnosis: "flu", Notes: "rest"})

	rec, err := c.Save(context.Background(), false)

	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, api.StatusCompleted, rec.Status)

	p, _ := h.backend.Patient(pid)
	assert.Equal(t, api.StatusCompleted, p.Status)

	saved := h.backend.Consultations()
	require.Len(t, saved, 1)
	assert.Equal(t, "fever", saved[0].Symptoms)
	assert.Equal(t, api.StatusCompleted, saved[0].Status)

	assert.Nil(t, c.View().Patient)
	assert.Equal(t, Draft{}, c.View().Draft)
}

func TestConsultation_SaveDraft(t *testing.T) {
	h := newHarness(t)
	c, pid := selectedConsultation(t, h)
	c.Edit(Draft{Notes: "call back"})

	rec, err := c.Save(context.Background(), true)

	require.NoError(t, err)
	assert.Equal(t, api.StatusDraft, rec.Status)
	assert.Equal(t, 0, h.backend.Calls(testutil.RoutePatientsStatus))
	p, _ := h.backend.Patient(pid)
	assert.Equal(t, api.StatusActive, p.Status)
	assert.Equal(t, "call back", c.View().Draft.Notes, "draft save keeps the form")
}

// TestConsultation_SymptomsRequired tests validation before any network call
func TestConsultation_SymptomsRequired(t *testing.T) {
	h := newHarness(t)
	c, _ := selectedConsultation(t, h)
	c.Edit(Draft{Symptoms: "   ", Diagnosis: "flu"})

	_, err := c.Save(context.Background(), false)

	var ve *failure.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "symptoms", ve.Field)
	assert.Equal(t, 0, h.backend.Calls(testutil.RoutePatientsStatus))
	assert.Equal(t, 0, h.backend.Calls(testutil.RouteConsultationsCreate))
}

func TestConsultation_NoPatient(t *testing.T) {
	h := newHarness(t)
	c := NewConsultation(h.deps)

	_, err := c.Save(context.Background(), true)

	assert.ErrorIs(t, err, failure.ErrNoPatientSelected)
	assert.Equal(t, 0, h.backend.Calls(testutil.RouteConsultationsCreate))
}

// TestConsultation_Inconsistency tests that a failed create after a
// committed status change surfaces as an inconsistency
func TestConsultation_Inconsistency(t *testing.T) {
	h := newHarness(t)
	c, pid := selectedConsultation(t, h)
	c.Edit(Draft{Symptoms: "fever"})
	h.backend.FailWith(testutil.RouteConsultationsCreate, http.StatusInternalServerError)

	_, err := c.Save(context.Background(), false)

	var ie *failure.InconsistencyError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, string(pid), ie.PatientID)
	assert.True(t, api.IsKind(err, api.KindHTTP))

	p, _ := h.backend.Patient(pid)
	assert.Equal(t, api.StatusCompleted, p.Status)
	assert.Equal(t, "fever", c.View().Draft.Symptoms, "form kept for retry")
}

func TestConsultation_StatusFailureStopsSave(t *testing.T) {
	h := newHarness(t)
	c, _ := selectedConsultation(t, h)
	c.Edit(Draft{Symptoms: "fever"})
	h.backend.FailWith(testutil.RoutePatientsStatus, http.StatusInternalServerError)

	_, err := c.Save(context.Background(), false)

	require.Error(t, err)
	var ie *failure.InconsistencyError
	assert.False(t, errors.As(err, &ie))
	assert.Equal(t, 0, h.backend.Calls(testutil.RouteConsultationsCreate))
}

func TestConsultation_Load(t *testing.T) {
	h := newHarness(t)
	c, pid := selectedConsultation(t, h)
	id := h.backend.AddConsultation(api.Consultation{PatientID: pid, Symptoms: "headache", Diagnosis: "migraine", Prescription: "rest", Notes: "n"})

	rec, err := c.Load(context.Background(), id)

	require.NoError(t, err)
	assert.Equal(t, "migraine", rec.Diagnosis)
	v := c.View()
	assert.Equal(t, Draft{Symptoms: "headache", Diagnosis: "migraine", Prescription: "rest", Notes: "n"}, v.Draft)
	assert.Equal(t, id, v.LoadedFrom)
	assert.Contains(t, h.rendered(t, view.PanelConsultation), "headache")

	_, err = c.Load(context.Background(), "999999")
	require.Error(t, err)
	assert.Equal(t, 404, api.StatusOf(err))
	assert.Contains(t, h.rendered(t, view.PanelConsultation), "Failed to load consultation")
}

func TestConsultation_RefreshResetsOnPatientChange(t *testing.T) {
	h := newHarness(t)
	c, _ := selectedConsultation(t, h)
	c.Edit(Draft{Symptoms: "fever"})

	require.NoError(t, c.Refresh(context.Background()))
	assert.Equal(t, "fever", c.View().Draft.Symptoms)

	other := h.backend.AddPatient(api.Patient{Name: "Bob"})
	_, err := h.sel.SelectPatient(context.Background(), other)
	require.NoError(t, err)
	require.NoError(t, c.Refresh(context.Background()))

	assert.Equal(t, Draft{}, c.View().Draft)
	assert.Equal(t, "Bob", c.View().Patient.Name)
	assert.Contains(t, h.rendered(t, view.PanelConsultation), "Bob")
}

// TestConsultation_SaveDropsPreviousPatientsDraft tests that a save issued
// before the form caught up with a new selection never reuses the old draft
func TestConsultation_SaveDropsPreviousPatientsDraft(t *testing.T) {
	h := newHarness(t)
	c, _ := selectedConsultation(t, h)
	c.Edit(Draft{Symptoms: "ann-only symptoms"})

	bob := h.backend.AddPatient(api.Patient{Name: "Bob"})
	_, err := h.sel.SelectPatient(context.Background(), bob)
	require.NoError(t, err)

	rec, err := c.Save(context.Background(), true)

	require.NoError(t, err)
	assert.Equal(t, bob, rec.PatientID)
	assert.Empty(t, rec.Symptoms)
	saved := h.backend.Consultations()
	require.Len(t, saved, 1)
	assert.Empty(t, saved[0].Symptoms)
}

func TestConsultation_Focus(t *testing.T) {
	h := newHarness(t)
	c, pid := selectedConsultation(t, h)
	c.Edit(Draft{Symptoms: "fever"})

	p, _ := h.backend.Patient(pid)
	c.Focus(&p)
	assert.Equal(t, "fever", c.View().Draft.Symptoms, "same patient keeps the draft")

	c.Focus(&api.Patient{ID: "other", Name: "Bob"})
	assert.Equal(t, Draft{}, c.View().Draft)
	assert.Equal(t, "Bob", c.View().Patient.Name)

	c.Focus(nil)
	assert.Nil(t, c.View().Patient)
	assert.Contains(t, h.rendered(t, view.PanelConsultation), "Select a patient to start a consultation")
}
