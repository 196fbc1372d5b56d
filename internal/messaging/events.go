package messaging

import (
	"time"

	"github.com/google/uuid"
)

// Event routing keys as constants
const (
	// Consultation events
	EventConsultationSaved             = "consultation.saved"
	EventConsultationCompleted         = "consultation.completed"
	EventConsultationReconcileRequired = "consultation.reconcile_required"

	// Order events
	EventPrescriptionCreated = "prescription.created"
	EventLabTestRequested    = "labtest.requested"

	// Messaging events
	EventMessageSent = "message.sent"
)

const serviceName = "telemed-dashboard"

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventType   string    `json:"event_type"`
	EventID     string    `json:"event_id"`
	Timestamp   time.Time `json:"timestamp"`
	ServiceName string    `json:"service_name"`
	Actor       string    `json:"actor,omitempty"`
}

// ConsultationEvent is published for consultation.saved and
// consultation.completed.
type ConsultationEvent struct {
	BaseEvent
	Data ConsultationData `json:"data"`
}

type ConsultationData struct {
	ConsultationID string `json:"consultation_id"`
	PatientID      string `json:"patient_id"`
	PatientName    string `json:"patient_name"`
	Status         string `json:"status"`
}

// ReconcileRequiredEvent reports a consultation save that left the patient
// completed without a consultation record.
type ReconcileRequiredEvent struct {
	BaseEvent
	Data ReconcileRequiredData `json:"data"`
}

type ReconcileRequiredData struct {
	EntryID     string    `json:"entry_id,omitempty"`
	PatientID   string    `json:"patient_id"`
	PatientName string    `json:"patient_name"`
	Committed   string    `json:"committed"`
	Failed      string    `json:"failed"`
	Error       string    `json:"error"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// PrescriptionCreatedEvent represents a new prescription
type PrescriptionCreatedEvent struct {
	BaseEvent
	Data PrescriptionCreatedData `json:"data"`
}

type PrescriptionCreatedData struct {
	PrescriptionID string `json:"prescription_id"`
	PatientID      string `json:"patient_id"`
	MedicationName string `json:"medication_name"`
	Dosage         string `json:"dosage,omitempty"`
}

// LabTestRequestedEvent represents a new lab request
type LabTestRequestedEvent struct {
	BaseEvent
	Data LabTestRequestedData `json:"data"`
}

type LabTestRequestedData struct {
	LabTestID string `json:"lab_test_id"`
	PatientID string `json:"patient_id"`
	TestType  string `json:"test_type"`
	Priority  string `json:"priority"`
}

// MessageSentEvent represents a message posted from the dashboard
type MessageSentEvent struct {
	BaseEvent
	Data MessageSentData `json:"data"`
}

type MessageSentData struct {
	MessageID  string `json:"message_id"`
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
}

// NewBaseEvent creates a base event with common fields
func NewBaseEvent(eventType, actor string) BaseEvent {
	return BaseEvent{
		EventType:   eventType,
		EventID:     uuid.NewString(),
		Timestamp:   time.Now().UTC(),
		ServiceName: serviceName,
		Actor:       actor,
	}
}
