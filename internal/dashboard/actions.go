package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/api"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/auth"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/failure"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/messaging"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/panel"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/scheduler"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/selection"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/view"
)

// ErrNoSession is returned by SignIn when the controller was built without
// an identity provider.
var ErrNoSession = errors.New("no identity provider configured")

const (
	noticeSelectPatient = "Please select a patient first"
	noticeSignIn        = "Please sign in first"
)

// SignIn authenticates with the identity provider. The gate picks up the
// new identity and the dashboard starts refreshing.
func (c *Controller) SignIn(ctx context.Context, email, password string) error {
	if c.session == nil {
		return ErrNoSession
	}
	if _, err := c.session.SignIn(ctx, email, password); err != nil {
		var ae *auth.AuthError
		if errors.As(err, &ae) {
			c.display.Notify(view.Error(ae.Message))
		} else {
			c.display.Notify(view.Error("Sign in failed"))
		}
		c.logger.Warn("sign in failed", zap.String("email", email), zap.Error(err))
		return err
	}
	return nil
}

// SignOut always ends the local session. A failed remote logout is logged
// and not reported to the user.
func (c *Controller) SignOut(ctx context.Context) {
	if c.session == nil {
		c.gate.OnIdentityChange(ctx, nil)
		return
	}
	if err := c.session.SignOut(ctx); err != nil {
		c.logger.Warn("remote sign out failed", zap.Error(err))
	}
}

// SelectPatient focuses the dashboard on patient id.
func (c *Controller) SelectPatient(ctx context.Context, id api.ID) (*api.Patient, error) {
	if err := c.gate.Require(); err != nil {
		c.fail(err, "")
		return nil, err
	}
	p, err := c.selection.SelectPatient(ctx, id)
	if errors.Is(err, selection.ErrSuperseded) {
		return nil, err
	}
	if err != nil {
		c.fail(err, "Failed to load patient details")
		return nil, err
	}
	return p, nil
}

// ClearSelection drops the focused patient.
func (c *Controller) ClearSelection() {
	c.selection.Clear()
}

// EditConsultation replaces the consultation form contents.
func (c *Controller) EditConsultation(d panel.Draft) {
	c.panels.Consultation.Edit(d)
}

// SaveConsultation saves the consultation form. A final save moves the
// patient out of the queue, clears the selection and refreshes the queue,
// stats and recent consultations.
func (c *Controller) SaveConsultation(ctx context.Context, draft bool) (*api.Consultation, error) {
	if err := c.gate.Require(); err != nil {
		c.fail(err, "")
		return nil, err
	}
	snap := c.selection.Snapshot()

	rec, err := c.panels.Consultation.Save(ctx, draft)
	if err != nil {
		var inc *failure.InconsistencyError
		if errors.As(err, &inc) && snap.Patient != nil {
			c.reconcile(ctx, *snap.Patient, inc)
			c.panels.Queue.MarkStatus(snap.Patient.ID, api.StatusCompleted)
			c.display.Notify(view.Error("Patient was marked completed but the consultation was not saved"))
			return nil, err
		}
		c.fail(err, "Failed to save consultation")
		return nil, err
	}

	if draft {
		c.display.Notify(view.Success("Consultation draft saved successfully!"))
		c.emitConsultation(ctx, messaging.EventConsultationSaved, rec)
		return rec, nil
	}

	c.display.Notify(view.Success("Consultation saved successfully!"))
	c.emitConsultation(ctx, messaging.EventConsultationCompleted, rec)
	c.panels.Queue.MarkStatus(rec.PatientID, api.StatusCompleted)
	c.panels.Queue.Remove(rec.PatientID)
	if c.selection.Snapshot().PatientID() == rec.PatientID {
		c.selection.Clear()
	}
	p := c.panels
	c.async(func(ctx context.Context) {
		scheduler.FullRefresh(p.Feed, p.Queue, p.Stats, p.Recent)(ctx)
	})
	return rec, nil
}

// LoadConsultation fills the consultation form from record id.
func (c *Controller) LoadConsultation(ctx context.Context, id api.ID) (*api.Consultation, error) {
	if err := c.gate.Require(); err != nil {
		c.fail(err, "")
		return nil, err
	}
	rec, err := c.panels.Consultation.Load(ctx, id)
	if errors.Is(err, panel.ErrStale) {
		return nil, err
	}
	if err != nil {
		c.fail(err, "Failed to load consultation")
		return nil, err
	}
	c.display.Notify(view.Success("Consultation loaded successfully"))
	return rec, nil
}

// OpenPrescriptionForm opens the prescription form for the selected patient.
func (c *Controller) OpenPrescriptionForm(ctx context.Context) error {
	if err := c.gate.Require(); err != nil {
		c.fail(err, "")
		return err
	}
	if err := c.panels.Prescription.Open(ctx); err != nil {
		c.fail(err, "")
		return err
	}
	return nil
}

func (c *Controller) EditPrescription(in panel.PrescriptionInput) {
	c.panels.Prescription.Edit(in)
}

// SubmitPrescription creates a prescription for the selected patient.
func (c *Controller) SubmitPrescription(ctx context.Context, in panel.PrescriptionInput) (*api.Prescription, error) {
	if err := c.gate.Require(); err != nil {
		c.fail(err, "")
		return nil, err
	}
	rec, err := c.panels.Prescription.Submit(ctx, in)
	if err != nil {
		c.fail(err, "Failed to submit prescription")
		return nil, err
	}
	c.display.Notify(view.Success("Prescription submitted successfully"))
	c.events.Emit(ctx, messaging.EventPrescriptionCreated, messaging.PrescriptionCreatedEvent{
		BaseEvent: messaging.NewBaseEvent(messaging.EventPrescriptionCreated, c.actor()),
		Data: messaging.PrescriptionCreatedData{
			PrescriptionID: string(rec.ID),
			PatientID:      string(rec.PatientID),
			MedicationName: rec.MedicationName,
			Dosage:         rec.Dosage,
		},
	})
	return rec, nil
}

// OpenLabTestForm opens the lab request form for the selected patient.
func (c *Controller) OpenLabTestForm(ctx context.Context) error {
	if err := c.gate.Require(); err != nil {
		c.fail(err, "")
		return err
	}
	if err := c.panels.LabTest.Open(ctx); err != nil {
		c.fail(err, "")
		return err
	}
	return nil
}

func (c *Controller) EditLabTest(in panel.LabTestInput) {
	c.panels.LabTest.Edit(in)
}

// RequestLabTest creates a lab request for the selected patient.
func (c *Controller) RequestLabTest(ctx context.Context, in panel.LabTestInput) (*api.LabTest, error) {
	if err := c.gate.Require(); err != nil {
		c.fail(err, "")
		return nil, err
	}
	rec, err := c.panels.LabTest.Submit(ctx, in)
	if err != nil {
		c.fail(err, "Failed to submit lab test request")
		return nil, err
	}
	c.display.Notify(view.Success("Lab test request submitted successfully"))
	c.events.Emit(ctx, messaging.EventLabTestRequested, messaging.LabTestRequestedEvent{
		BaseEvent: messaging.NewBaseEvent(messaging.EventLabTestRequested, c.actor()),
		Data: messaging.LabTestRequestedData{
			LabTestID: string(rec.ID),
			PatientID: string(rec.PatientID),
			TestType:  rec.TestType,
			Priority:  rec.Priority,
		},
	})
	return rec, nil
}

// SendMessage posts text to the selected patient's thread.
func (c *Controller) SendMessage(ctx context.Context, text string) (*api.Created, error) {
	if err := c.gate.Require(); err != nil {
		c.fail(err, "")
		return nil, err
	}
	sender := c.selection.Snapshot().PatientID()
	created, err := c.panels.Messaging.Send(ctx, text)
	if err != nil {
		c.fail(err, "Failed to send message")
		return nil, err
	}
	c.display.Notify(view.Success("Message sent successfully"))
	c.events.Emit(ctx, messaging.EventMessageSent, messaging.MessageSentEvent{
		BaseEvent: messaging.NewBaseEvent(messaging.EventMessageSent, c.actor()),
		Data: messaging.MessageSentData{
			MessageID:  string(created.ID),
			SenderID:   string(sender),
			ReceiverID: string(c.panels.Messaging.DoctorID()),
		},
	})
	return created, nil
}

// OpenMessage opens message id of the selected patient's thread.
func (c *Controller) OpenMessage(ctx context.Context, id api.ID) (*api.Message, error) {
	if err := c.gate.Require(); err != nil {
		c.fail(err, "")
		return nil, err
	}
	m, err := c.panels.Messaging.OpenMessage(ctx, id)
	if errors.Is(err, selection.ErrSuperseded) {
		return nil, err
	}
	if err != nil {
		c.fail(err, "Failed to open message")
		return nil, err
	}
	return m, nil
}

// MarkNotificationRead marks notification id read and reloads the list.
func (c *Controller) MarkNotificationRead(ctx context.Context, id api.ID) error {
	if err := c.gate.Require(); err != nil {
		c.fail(err, "")
		return err
	}
	if err := c.panels.Notifications.MarkRead(ctx, id); err != nil {
		c.fail(err, "Failed to update notification")
		return err
	}
	return nil
}

// StartConsultation announces a consultation with the selected patient.
func (c *Controller) StartConsultation(ctx context.Context) error {
	return c.quickAction(func(p api.Patient) string {
		return "Starting consultation with " + p.Name
	})
}

func (c *Controller) ScheduleFollowUp(ctx context.Context) error {
	return c.quickAction(func(p api.Patient) string {
		return "Scheduling follow-up for " + p.Name
	})
}

func (c *Controller) ReferToSpecialist(ctx context.Context) error {
	return c.quickAction(func(p api.Patient) string {
		return fmt.Sprintf("Referring %s to specialist", p.Name)
	})
}

// RequestLabWork opens the lab form for the selected patient.
func (c *Controller) RequestLabWork(ctx context.Context) error {
	if err := c.quickAction(func(p api.Patient) string {
		return "Requesting lab work for " + p.Name
	}); err != nil {
		return err
	}
	return c.panels.LabTest.Open(ctx)
}

// PrescribeMedication opens the prescription form for the selected patient.
func (c *Controller) PrescribeMedication(ctx context.Context) error {
	return c.OpenPrescriptionForm(ctx)
}

func (c *Controller) quickAction(text func(api.Patient) string) error {
	if err := c.gate.Require(); err != nil {
		c.fail(err, "")
		return err
	}
	p := c.selection.Snapshot().Patient
	if p == nil {
		err := failure.NoPatient("quick action")
		c.fail(err, "")
		return err
	}
	c.display.Notify(view.Success(text(*p)))
	return nil
}

// reconcile journals a half-saved consultation and announces it.
func (c *Controller) reconcile(ctx context.Context, p api.Patient, inc *failure.InconsistencyError) {
	data := messaging.ReconcileRequiredData{
		PatientID:   string(p.ID),
		PatientName: p.Name,
		Committed:   inc.Committed,
		Failed:      inc.Failed,
		Error:       inc.Err.Error(),
		OccurredAt:  time.Now().UTC(),
	}
	if c.journal != nil {
		entry, err := c.journal.Record(ctx, string(p.ID), p.Name, inc.Failed, inc.Err)
		if err != nil {
			c.logger.Error("failed to journal inconsistent consultation",
				zap.String("patient_id", string(p.ID)),
				zap.Error(err),
			)
		} else {
			data.EntryID = entry.ID
			data.OccurredAt = entry.CreatedAt
		}
	}
	c.events.Emit(ctx, messaging.EventConsultationReconcileRequired, messaging.ReconcileRequiredEvent{
		BaseEvent: messaging.NewBaseEvent(messaging.EventConsultationReconcileRequired, c.actor()),
		Data:      data,
	})
}

func (c *Controller) emitConsultation(ctx context.Context, key string, rec *api.Consultation) {
	c.events.Emit(ctx, key, messaging.ConsultationEvent{
		BaseEvent: messaging.NewBaseEvent(key, c.actor()),
		Data: messaging.ConsultationData{
			ConsultationID: string(rec.ID),
			PatientID:      string(rec.PatientID),
			PatientName:    rec.PatientName,
			Status:         rec.Status,
		},
	})
}

func (c *Controller) actor() string {
	if id := c.gate.Identity(); id != nil {
		return id.Subject
	}
	return ""
}

// fail shows err as a notice. Precondition and validation failures carry
// their own text; anything else is logged with its backend status and shows
// fallback.
func (c *Controller) fail(err error, fallback string) {
	if failure.IsUserFacing(err) {
		var ve *failure.ValidationError
		switch {
		case errors.Is(err, failure.ErrNotAuthenticated):
			c.display.Notify(view.Error(noticeSignIn))
		case errors.Is(err, failure.ErrNoPatientSelected):
			c.display.Notify(view.Error(noticeSelectPatient))
		case errors.As(err, &ve):
			c.display.Notify(view.Error(sentence(ve.Message)))
		default:
			c.display.Notify(view.Error(sentence(err.Error())))
		}
		return
	}

	c.logger.Warn("dashboard action failed",
		zap.Int("status", api.StatusOf(err)),
		zap.Bool("network", api.IsKind(err, api.KindNetwork)),
		zap.Error(err),
	)
	if fallback == "" {
		fallback = err.Error()
	}
	c.display.Notify(view.Error(fallback))
}

func sentence(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
