package panel

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/api"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/testutil"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/view"
)

func TestHistory_NoSelection(t *testing.T) {
	h := newHarness(t)
	hist := NewHistory(h.deps)

	require.NoError(t, hist.Refresh(context.Background()))

	assert.Contains(t, h.rendered(t, view.PanelHistory), "Select a patient to view history")
	assert.Equal(t, 0, h.backend.Calls(testutil.RoutePrescriptionsList))
}

func TestHistory_LoadsAllParts(t *testing.T) {
	h := newHarness(t)
	pid := h.backend.AddPatient(api.Patient{Name: "Ann", MedicalHistory: "Asthma", Allergies: ""})
	h.backend.AddPrescription(api.Prescription{PatientID: pid, MedicationName: "Salbutamol", Dosage: "100mcg", Frequency: "2x daily", Duration: "30 days", Instructions: "As needed"})
	h.backend.AddLabTest(api.LabTest{PatientID: pid, TestType: "Spirometry", Priority: "urgent", Status: "pending"})
	_, err := h.sel.SelectPatient(context.Background(), pid)
	require.NoError(t, err)

	hist := NewHistory(h.deps)
	require.NoError(t, hist.Refresh(context.Background()))

	v := hist.View()
	assert.Equal(t, pid, v.PatientID)
	require.NotNil(t, v.Patient)
	assert.Len(t, v.Prescriptions, 1)
	assert.Len(t, v.LabTests, 1)

	out := h.rendered(t, view.PanelHistory)
	assert.Contains(t, out, "Asthma")
	assert.Contains(t, out, "No allergies recorded")
	assert.Contains(t, out, "Salbutamol")
	assert.Contains(t, out, "100mcg - 2x daily for 30 days")
	assert.Contains(t, out, "Instructions: As needed")
	assert.Contains(t, out, "Spirometry")
	assert.Contains(t, out, "Priority: urgent")
}

func TestHistory_EmptyStates(t *testing.T) {
	h := newHarness(t)
	pid := h.backend.AddPatient(api.Patient{Name: "Ann"})
	_, err := h.sel.SelectPatient(context.Background(), pid)
	require.NoError(t, err)

	hist := NewHistory(h.deps)
	require.NoError(t, hist.Refresh(context.Background()))

	out := h.rendered(t, view.PanelHistory)
	assert.Contains(t, out, "No medical history recorded")
	assert.Contains(t, out, "No allergies recorded")
	assert.Contains(t, out, "No medications recorded")
	assert.Contains(t, out, "No lab results available")
}

// TestHistory_PartialFailure tests that one failed part renders its own
// placeholder while the others still render
func TestHistory_PartialFailure(t *testing.T) {
	h := newHarness(t)
	pid := h.backend.AddPatient(api.Patient{Name: "Ann", MedicalHistory: "Diabetes"})
	h.backend.AddLabTest(api.LabTest{PatientID: pid, TestType: "HbA1c", Priority: "routine", Status: "pending"})
	_, err := h.sel.SelectPatient(context.Background(), pid)
	require.NoError(t, err)
	h.backend.FailWith(testutil.RoutePrescriptionsList, http.StatusInternalServerError)

	hist := NewHistory(h.deps)
	err = hist.Refresh(context.Background())

	require.Error(t, err)
	v := hist.View()
	assert.NotEmpty(t, v.PrescriptionsErr)
	assert.Empty(t, v.LabTestsErr)
	assert.Empty(t, v.PatientErr)

	out := h.rendered(t, view.PanelHistory)
	assert.Contains(t, out, "Unable to load medications")
	assert.Contains(t, out, "Diabetes")
	assert.Contains(t, out, "HbA1c")
}

// TestHistory_DiscardsAfterSelectionChange tests that a fetch for a patient
// who is no longer selected is dropped
func TestHistory_DiscardsAfterSelectionChange(t *testing.T) {
	h := newHarness(t)
	a := h.backend.AddPatient(api.Patient{Name: "Ann", MedicalHistory: "from-ann"})
	b := h.backend.AddPatient(api.Patient{Name: "Bob", MedicalHistory: "from-bob"})
	_, err := h.sel.SelectPatient(context.Background(), a)
	require.NoError(t, err)

	release, started := holdFirst(h.backend, testutil.RoutePatientsGet,
		api.Patient{ID: a, Name: "Ann", MedicalHistory: "from-ann"})
	hist := NewHistory(h.deps)

	done := make(chan error, 1)
	go func() { done <- hist.Refresh(context.Background()) }()
	<-started

	_, err = h.sel.SelectPatient(context.Background(), b)
	require.NoError(t, err)
	release()
	require.NoError(t, <-done)

	_, rendered := h.display.Panel(view.PanelHistory)
	assert.False(t, rendered)
	assert.Equal(t, 1, h.metrics.staleCount(view.PanelHistory))

	require.NoError(t, hist.Refresh(context.Background()))
	assert.Contains(t, h.rendered(t, view.PanelHistory), "from-bob")
}

// TestHistory_SamePatientOverlappingRefreshes tests that when two refreshes
// for the same patient overlap, the one started last wins even if the first
// answers after it
func TestHistory_SamePatientOverlappingRefreshes(t *testing.T) {
	h := newHarness(t)
	pid := h.backend.AddPatient(api.Patient{Name: "Ann", MedicalHistory: "second-payload"})
	_, err := h.sel.SelectPatient(context.Background(), pid)
	require.NoError(t, err)

	release, started := holdFirst(h.backend, testutil.RoutePatientsGet,
		api.Patient{ID: pid, Name: "Ann", MedicalHistory: "first-payload"})
	hist := NewHistory(h.deps)

	done := make(chan error, 1)
	go func() { done <- hist.Refresh(context.Background()) }()
	<-started

	require.NoError(t, hist.Refresh(context.Background()))
	release()
	require.NoError(t, <-done)

	v := hist.View()
	require.NotNil(t, v.Patient)
	assert.Equal(t, "second-payload", v.Patient.MedicalHistory)
	out := h.rendered(t, view.PanelHistory)
	assert.Contains(t, out, "second-payload")
	assert.NotContains(t, out, "first-payload")
	assert.Equal(t, 1, h.metrics.staleCount(view.PanelHistory))
}
