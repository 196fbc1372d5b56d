package panel

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/api"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/view"
)

// HistoryView is the selected patient's record. Each part loads on its own;
// a failed part carries an error text and the others still render.
type HistoryView struct {
	PatientID        api.ID
	Patient          *api.Patient
	PatientErr       string
	Prescriptions    []api.Prescription
	PrescriptionsErr string
	LabTests         []api.LabTest
	LabTestsErr      string
}

// History loads patient details, prescriptions and lab tests concurrently
// for the selected patient.
type History struct {
	syncer[HistoryView]
	client Backend
	sel    Selected
}

func NewHistory(d Deps) *History {
	d = d.withDefaults()
	return &History{
		syncer: newSyncer(view.PanelHistory, d, renderHistory),
		client: d.Backend,
		sel:    d.Selection,
	}
}

// Refresh reloads the history of the selected patient. Results are dropped
// if a newer refresh started or the selection moved to another patient.
func (h *History) Refresh(ctx context.Context) error {
	seq := h.begin()
	ctx, span := h.startSpan(ctx, seq)
	defer span.End()

	pid := h.sel.Snapshot().PatientID()
	if pid == "" {
		h.commit(ctx, seq, HistoryView{}, outcomeOK)
		return nil
	}

	v := HistoryView{PatientID: pid}
	var perr, rxErr, labErr error
	var g errgroup.Group
	g.Go(func() error {
		v.Patient, perr = h.client.GetPatient(ctx, pid)
		return nil
	})
	g.Go(func() error {
		v.Prescriptions, rxErr = h.client.ListPrescriptions(ctx, pid)
		return nil
	})
	g.Go(func() error {
		v.LabTests, labErr = h.client.ListLabTests(ctx, pid)
		return nil
	})
	_ = g.Wait()

	if perr != nil {
		v.Patient, v.PatientErr = nil, "Unable to load patient details"
	}
	if rxErr != nil {
		v.Prescriptions, v.PrescriptionsErr = nil, "Unable to load medications"
	}
	if labErr != nil {
		v.LabTests, v.LabTestsErr = nil, "Unable to load lab results"
	}

	if h.sel.Snapshot().PatientID() != pid {
		h.discard(ctx, seq)
		return nil
	}

	err := errors.Join(perr, rxErr, labErr)
	outcome := outcomeOK
	if err != nil {
		outcome = outcomeError
		span.SetStatus(codes.Error, "partial history")
		h.logFailure(seq, err)
	}
	h.commit(ctx, seq, v, outcome)
	return err
}

func renderHistory(v HistoryView) string {
	if v.PatientID == "" {
		return view.Muted("Select a patient to view history")
	}
	var b strings.Builder

	switch {
	case v.PatientErr != "":
		b.WriteString(view.ErrorText(v.PatientErr) + "\n")
	case v.Patient != nil:
		b.WriteString(view.Field("Medical History", v.Patient.MedicalHistory, "No medical history recorded") + "\n")
		b.WriteString(view.Field("Allergies", v.Patient.Allergies, "No allergies recorded") + "\n")
	}

	b.WriteString(view.Label("Current Medications:") + "\n")
	switch {
	case v.PrescriptionsErr != "":
		b.WriteString("  " + view.ErrorText(v.PrescriptionsErr) + "\n")
	case len(v.Prescriptions) == 0:
		b.WriteString("  " + view.Muted("No medications recorded") + "\n")
	default:
		for _, rx := range v.Prescriptions {
			fmt.Fprintf(&b, "  • %s  %s - %s for %s\n", rx.MedicationName, rx.Dosage, rx.Frequency, rx.Duration)
			if rx.Instructions != "" {
				fmt.Fprintf(&b, "    Instructions: %s\n", rx.Instructions)
			}
		}
	}

	b.WriteString(view.Label("Recent Lab Results:") + "\n")
	switch {
	case v.LabTestsErr != "":
		b.WriteString("  " + view.ErrorText(v.LabTestsErr))
	case len(v.LabTests) == 0:
		b.WriteString("  " + view.Muted("No lab results available"))
	default:
		lines := make([]string, 0, len(v.LabTests))
		for _, l := range v.LabTests {
			line := fmt.Sprintf("  • %s  Priority: %s  Status: %s", l.TestType, l.Priority, l.Status)
			if l.Description != "" {
				line += "\n    Description: " + l.Description
			}
			lines = append(lines, line)
		}
		b.WriteString(strings.Join(lines, "\n"))
	}
	return b.String()
}
