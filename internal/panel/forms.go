package panel

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/api"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/failure"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/view"
)

const defaultLabPriority = "routine"

// FormView is an order form bound to one patient. A nil Patient means the
// form is closed.
type FormView[T any] struct {
	Patient *api.Patient
	Input   T
}

func (v FormView[T]) Open() bool { return v.Patient != nil }

// PrescriptionInput holds the prescription form fields.
type PrescriptionInput struct {
	MedicationName string
	Dosage         string
	Frequency      string
	Duration       string
	Instructions   string
}

// LabTestInput holds the lab request form fields.
type LabTestInput struct {
	TestType    string
	Description string
	Priority    string
}

// form is the open/submit/close cycle shared by the order forms.
type form[T any] struct {
	syncer[FormView[T]]
	sel     Selected
	history *History
	action  string
	blank   func() T
}

// Open shows the form for the selected patient.
func (f *form[T]) Open(ctx context.Context) error {
	snap := f.sel.Snapshot()
	if snap.Patient == nil {
		return failure.NoPatient("open " + f.action + " form")
	}
	f.update(func(v *FormView[T]) {
		if v.Patient == nil || v.Patient.ID != snap.Patient.ID {
			v.Input = f.blank()
		}
		v.Patient = snap.Patient
	})
	return nil
}

// Close hides and clears the form.
func (f *form[T]) Close() {
	f.update(func(v *FormView[T]) {
		*v = FormView[T]{Input: f.blank()}
	})
}

// Edit replaces the form fields.
func (f *form[T]) Edit(in T) {
	f.update(func(v *FormView[T]) { v.Input = in })
}

// Refresh closes the form when it belongs to a patient that is no longer
// selected.
func (f *form[T]) Refresh(ctx context.Context) error {
	pid := f.sel.Snapshot().PatientID()
	cur := f.View()
	if cur.Patient != nil && cur.Patient.ID != pid {
		f.Close()
	}
	return nil
}

func (f *form[T]) selected() (*api.Patient, error) {
	snap := f.sel.Snapshot()
	if snap.Patient == nil {
		return nil, failure.NoPatient("submit " + f.action)
	}
	return snap.Patient, nil
}

// afterSubmit closes the form and reloads the patient's history.
func (f *form[T]) afterSubmit(ctx context.Context) {
	f.Close()
	if f.history != nil {
		_ = f.history.Refresh(ctx)
	}
}

// Prescription is the prescription order form.
type Prescription struct {
	form[PrescriptionInput]
	client Backend
}

func NewPrescription(d Deps, history *History) *Prescription {
	d = d.withDefaults()
	return &Prescription{
		form: form[PrescriptionInput]{
			syncer:  newSyncer(view.PanelPrescription, d, renderPrescriptionForm),
			sel:     d.Selection,
			history: history,
			action:  "prescription",
			blank:   func() PrescriptionInput { return PrescriptionInput{} },
		},
		client: d.Backend,
	}
}

// Submit creates the prescription for the selected patient, then closes the
// form and reloads the history.
func (p *Prescription) Submit(ctx context.Context, in PrescriptionInput) (*api.Prescription, error) {
	patient, err := p.selected()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.MedicationName) == "" {
		return nil, failure.Invalid("medication name", "please enter a medication")
	}
	rec := api.Prescription{
		PatientID:      patient.ID,
		MedicationName: strings.TrimSpace(in.MedicationName),
		Dosage:         in.Dosage,
		Frequency:      in.Frequency,
		Duration:       in.Duration,
		Instructions:   in.Instructions,
	}
	created, err := p.client.CreatePrescription(ctx, rec)
	if err != nil {
		p.logger.Error("create prescription failed", zap.String("patient_id", string(patient.ID)), zap.Error(err))
		return nil, err
	}
	rec.ID = created.ID
	p.afterSubmit(ctx)
	return &rec, nil
}

// LabTest is the lab request form.
type LabTest struct {
	form[LabTestInput]
	client Backend
}

func NewLabTest(d Deps, history *History) *LabTest {
	d = d.withDefaults()
	blank := func() LabTestInput { return LabTestInput{Priority: defaultLabPriority} }
	l := &LabTest{
		form: form[LabTestInput]{
			syncer:  newSyncer(view.PanelLabTest, d, renderLabTestForm),
			sel:     d.Selection,
			history: history,
			action:  "lab test",
			blank:   blank,
		},
		client: d.Backend,
	}
	l.view.Input = blank()
	return l
}

// Submit requests the lab test for the selected patient. An empty priority
// becomes routine.
func (l *LabTest) Submit(ctx context.Context, in LabTestInput) (*api.LabTest, error) {
	patient, err := l.selected()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.TestType) == "" {
		return nil, failure.Invalid("test type", "please choose a test type")
	}
	priority := strings.TrimSpace(in.Priority)
	if priority == "" {
		priority = defaultLabPriority
	}
	rec := api.LabTest{
		PatientID:   patient.ID,
		TestType:    strings.TrimSpace(in.TestType),
		Description: in.Description,
		Priority:    priority,
	}
	created, err := l.client.CreateLabTest(ctx, rec)
	if err != nil {
		l.logger.Error("create lab test failed", zap.String("patient_id", string(patient.ID)), zap.Error(err))
		return nil, err
	}
	rec.ID = created.ID
	l.afterSubmit(ctx)
	return &rec, nil
}

func renderPrescriptionForm(v FormView[PrescriptionInput]) string {
	if !v.Open() {
		return view.Muted("Closed")
	}
	in := v.Input
	return strings.Join([]string{
		formHeader(*v.Patient),
		view.Field("Medication", in.MedicationName, "-"),
		view.Field("Dosage", in.Dosage, "-"),
		view.Field("Frequency", in.Frequency, "-"),
		view.Field("Duration", in.Duration, "-"),
		view.Field("Instructions", in.Instructions, "-"),
	}, "\n")
}

func renderLabTestForm(v FormView[LabTestInput]) string {
	if !v.Open() {
		return view.Muted("Closed")
	}
	in := v.Input
	return strings.Join([]string{
		formHeader(*v.Patient),
		view.Field("Test", in.TestType, "-"),
		view.Field("Priority", in.Priority, defaultLabPriority),
		view.Field("Description", in.Description, "-"),
	}, "\n")
}
