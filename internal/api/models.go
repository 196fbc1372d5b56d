package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ID is a backend record identifier. The backend emits both numeric and
// string ids, so both decode into the same canonical string form.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON writes ids in canonical integer form as numbers so the
// backend's integer columns accept them. Anything else, "007" or "+5"
// included, stays a string.
func (id ID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(id) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id ID) String() string { return string(id) }

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank orders priorities high=0, medium=1, low=2. Unknown values sort last.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	default:
		return 3
	}
}

const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusDraft     = "draft"
)

type Patient struct {
	ID              ID       `json:"id"`
	PatientID       string   `json:"patient_id"`
	Name            string   `json:"name"`
	Age             int      `json:"age"`
	Gender          string   `json:"gender"`
	Priority        Priority `json:"priority"`
	Status          string   `json:"status"`
	BloodPressure   string   `json:"blood_pressure,omitempty"`
	HeartRate       *float64 `json:"heart_rate,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
	MedicalHistory  string   `json:"medical_history,omitempty"`
	Allergies       string   `json:"allergies,omitempty"`
	AppointmentDate string   `json:"appointment_date,omitempty"` // YYYY-MM-DD
}

type Consultation struct {
	ID           ID     `json:"id,omitempty"`
	PatientID    ID     `json:"patient_id"`
	PatientName  string `json:"patient_name,omitempty"`
	Symptoms     string `json:"symptoms"`
	Diagnosis    string `json:"diagnosis"`
	Prescription string `json:"prescription"`
	Notes        string `json:"notes"`
	Status       string `json:"status"`
	CreatedAt    string `json:"created_at,omitempty"`
}

type Prescription struct {
	ID             ID     `json:"id,omitempty"`
	PatientID      ID     `json:"patient_id"`
	MedicationName string `json:"medication_name"`
	Dosage         string `json:"dosage"`
	Frequency      string `json:"frequency"`
	Duration       string `json:"duration"`
	Instructions   string `json:"instructions,omitempty"`
}

type LabTest struct {
	ID          ID     `json:"id,omitempty"`
	PatientID   ID     `json:"patient_id"`
	TestType    string `json:"test_type"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	Status      string `json:"status,omitempty"`
}

type Message struct {
	ID         ID     `json:"id"`
	SenderID   ID     `json:"sender_id"`
	ReceiverID ID     `json:"receiver_id"`
	Content    string `json:"content"`
	IsRead     bool   `json:"is_read"`
	CreatedAt  string `json:"created_at,omitempty"`
}

// OutgoingMessage is the POST /messages/ payload.
type OutgoingMessage struct {
	SenderID   ID     `json:"sender_id"`
	ReceiverID ID     `json:"receiver_id"`
	Content    string `json:"content"`
}

type Notification struct {
	ID        ID     `json:"id"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at,omitempty"`
	IsRead    bool   `json:"is_read"`
}

// Created is the acknowledgement returned by create endpoints.
type Created struct {
	ID      ID     `json:"id"`
	Message string `json:"message,omitempty"`
}

type Role string

const (
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

type statusUpdate struct {
	Status string `json:"status"`
}

type roleResponse struct {
	Role Role `json:"role"`
}
