package panel

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/api"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/failure"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/view"
)

// Draft is the editable consultation form.
type Draft struct {
	Symptoms     string
	Diagnosis    string
	Prescription string
	Notes        string
}

func (d Draft) empty() bool {
	return d == Draft{}
}

type ConsultationView struct {
	Patient    *api.Patient
	Draft      Draft
	LoadedFrom api.ID
	Err        string
}

// Consultation owns the consultation form of the selected patient.
type Consultation struct {
	syncer[ConsultationView]
	client Backend
	sel    Selected
}

func NewConsultation(d Deps) *Consultation {
	d = d.withDefaults()
	return &Consultation{
		syncer: newSyncer(view.PanelConsultation, d, renderConsultation),
		client: d.Backend,
		sel:    d.Selection,
	}
}

// Refresh points the form at the selected patient. The draft survives only
// while the same patient stays selected.
func (c *Consultation) Refresh(ctx context.Context) error {
	seq := c.begin()
	snap := c.sel.Snapshot()
	cur := c.View()

	v := ConsultationView{Patient: snap.Patient}
	if snap.Patient != nil && samePatient(cur.Patient, snap.Patient) {
		v.Draft, v.LoadedFrom = cur.Draft, cur.LoadedFrom
	}
	c.commit(ctx, seq, v, outcomeOK)
	return nil
}

// Focus points the form at p without a fetch. When p differs from the
// form's patient the draft is dropped and any load in flight is discarded.
func (c *Consultation) Focus(p *api.Patient) {
	if samePatient(c.View().Patient, p) {
		return
	}
	seq := c.begin()
	v := ConsultationView{}
	if p != nil {
		cp := *p
		v.Patient = &cp
	}
	c.commit(context.Background(), seq, v, outcomeOK)
}

func samePatient(a, b *api.Patient) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.ID == b.ID
}

// Edit replaces the form contents.
func (c *Consultation) Edit(d Draft) {
	c.update(func(v *ConsultationView) {
		v.Draft = d
		v.Err = ""
	})
}

// Load fills the form from an existing consultation record.
func (c *Consultation) Load(ctx context.Context, id api.ID) (*api.Consultation, error) {
	seq := c.begin()
	ctx, span := c.startSpan(ctx, seq)
	defer span.End()

	rec, err := c.client.GetConsultation(ctx, id)
	cur := c.View()
	if err != nil {
		span.SetStatus(codes.Error, "get consultation failed")
		c.logFailure(seq, err)
		cur.Err = "Failed to load consultation"
		c.commit(ctx, seq, cur, outcomeError)
		return nil, err
	}
	cur.Draft = Draft{
		Symptoms:     rec.Symptoms,
		Diagnosis:    rec.Diagnosis,
		Prescription: rec.Prescription,
		Notes:        rec.Notes,
	}
	cur.LoadedFrom = rec.ID
	cur.Err = ""
	if !c.commit(ctx, seq, cur, outcomeOK) {
		return nil, ErrStale
	}
	return rec, nil
}

// Save submits the form for the selected patient. A draft save only creates
// the record. A final save first marks the patient completed and then
// creates the record; if the second step fails the returned error is a
// *failure.InconsistencyError because the status change is already
// committed. The form is cleared only after a final save succeeds.
func (c *Consultation) Save(ctx context.Context, draft bool) (*api.Consultation, error) {
	ctx, span := tracer.Start(ctx, "panel.consultation.save")
	defer span.End()
	span.SetAttributes(attribute.Bool("consultation.draft", draft))

	snap := c.sel.Snapshot()
	if snap.Patient == nil {
		return nil, failure.NoPatient("save consultation")
	}
	p := *snap.Patient
	cur := c.View()
	form := cur.Draft
	if !samePatient(cur.Patient, &p) {
		// The form still belongs to the previous patient.
		form = Draft{}
	}
	if !draft && strings.TrimSpace(form.Symptoms) == "" {
		return nil, failure.Invalid("symptoms", "please enter symptoms")
	}

	status := api.StatusCompleted
	if draft {
		status = api.StatusDraft
	}

	if !draft {
		if err := c.client.UpdatePatientStatus(ctx, p.ID, api.StatusCompleted); err != nil {
			span.SetStatus(codes.Error, "status update failed")
			c.logger.Error("consultation status update failed", zap.String("patient_id", string(p.ID)), zap.Error(err))
			return nil, err
		}
	}

	rec := api.Consultation{
		PatientID:    p.ID,
		PatientName:  p.Name,
		Symptoms:     form.Symptoms,
		Diagnosis:    form.Diagnosis,
		Prescription: form.Prescription,
		Notes:        form.Notes,
		Status:       status,
	}
	created, err := c.client.CreateConsultation(ctx, rec)
	if err != nil {
		span.SetStatus(codes.Error, "create consultation failed")
		if draft {
			return nil, err
		}
		c.logger.Error("consultation left inconsistent",
			zap.String("patient_id", string(p.ID)),
			zap.Error(err),
		)
		return nil, &failure.InconsistencyError{
			PatientID: string(p.ID),
			Committed: "patient status completed",
			Failed:    "create consultation",
			Err:       err,
		}
	}
	rec.ID = created.ID

	if !draft {
		c.update(func(v *ConsultationView) {
			*v = ConsultationView{}
		})
	}
	c.logger.Info("consultation saved", zap.String("patient_id", string(p.ID)), zap.String("status", status))
	return &rec, nil
}

func renderConsultation(v ConsultationView) string {
	if v.Patient == nil {
		if v.Err != "" {
			return view.ErrorText(v.Err)
		}
		return view.Muted("Select a patient to start a consultation")
	}
	lines := []string{formHeader(*v.Patient)}
	if v.LoadedFrom != "" {
		lines = append(lines, view.Muted("Loaded from consultation #"+string(v.LoadedFrom)))
	}
	if v.Err != "" {
		lines = append(lines, view.ErrorText(v.Err))
	}
	if v.Draft.empty() {
		lines = append(lines, view.Muted("Empty form"))
	} else {
		lines = append(lines,
			view.Field("Symptoms", v.Draft.Symptoms, "-"),
			view.Field("Diagnosis", v.Draft.Diagnosis, "-"),
			view.Field("Prescription", v.Draft.Prescription, "-"),
			view.Field("Notes", v.Draft.Notes, "-"),
		)
	}
	return strings.Join(lines, "\n")
}

// formHeader is the patient line shown above every form.
func formHeader(p api.Patient) string {
	return view.Title(p.Name) + "\n" + view.Muted(fmt.Sprintf("Age: %d | %s | ID: #%s", p.Age, p.Gender, p.PatientID))
}
