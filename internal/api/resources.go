package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/failure"
)

func (c *Client) ListPatients(ctx context.Context) ([]Patient, error) {
	var out []Patient
	if err := c.do(ctx, call{op: "ListPatients", method: http.MethodGet, path: "/patients/", result: &out}); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetPatient(ctx context.Context, id ID) (*Patient, error) {
	if err := requireID("patient id", id); err != nil {
		return nil, err
	}
	var out Patient
	if err := c.do(ctx, call{op: "GetPatient", method: http.MethodGet, path: "/patients/" + seg(id), result: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdatePatientStatus(ctx context.Context, id ID, status string) error {
	if err := requireID("patient id", id); err != nil {
		return err
	}
	if strings.TrimSpace(status) == "" {
		return failure.Invalid("status", "must not be empty")
	}
	return c.do(ctx, call{
		op:     "UpdatePatientStatus",
		method: http.MethodPut,
		path:   "/patients/" + seg(id) + "/status",
		body:   statusUpdate{Status: status},
	})
}

func (c *Client) ListRecentConsultations(ctx context.Context) ([]Consultation, error) {
	var out []Consultation
	if err := c.do(ctx, call{op: "ListRecentConsultations", method: http.MethodGet, path: "/consultations/recent", result: &out}); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetConsultation(ctx context.Context, id ID) (*Consultation, error) {
	if err := requireID("consultation id", id); err != nil {
		return nil, err
	}
	var out Consultation
	if err := c.do(ctx, call{op: "GetConsultation", method: http.MethodGet, path: "/consultations/" + seg(id), result: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateConsultation(ctx context.Context, in Consultation) (*Created, error) {
	if err := requireID("patient id", in.PatientID); err != nil {
		return nil, err
	}
	var out Created
	if err := c.do(ctx, call{op: "CreateConsultation", method: http.MethodPost, path: "/consultations/", body: in, result: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListPrescriptions(ctx context.Context, patientID ID) ([]Prescription, error) {
	if err := requireID("patient id", patientID); err != nil {
		return nil, err
	}
	var out []Prescription
	if err := c.do(ctx, call{op: "ListPrescriptions", method: http.MethodGet, path: "/prescriptions/" + seg(patientID), result: &out}); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreatePrescription(ctx context.Context, in Prescription) (*Created, error) {
	if err := requireID("patient id", in.PatientID); err != nil {
		return nil, err
	}
	var out Created
	if err := c.do(ctx, call{op: "CreatePrescription", method: http.MethodPost, path: "/prescriptions/", body: in, result: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListLabTests(ctx context.Context, patientID ID) ([]LabTest, error) {
	if err := requireID("patient id", patientID); err != nil {
		return nil, err
	}
	var out []LabTest
	if err := c.do(ctx, call{op: "ListLabTests", method: http.MethodGet, path: "/lab-tests/" + seg(patientID), result: &out}); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateLabTest(ctx context.Context, in LabTest) (*Created, error) {
	if err := requireID("patient id", in.PatientID); err != nil {
		return nil, err
	}
	var out Created
	if err := c.do(ctx, call{op: "CreateLabTest", method: http.MethodPost, path: "/lab-tests/", body: in, result: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListMessages(ctx context.Context, patientID ID) ([]Message, error) {
	if err := requireID("patient id", patientID); err != nil {
		return nil, err
	}
	var out []Message
	if err := c.do(ctx, call{op: "ListMessages", method: http.MethodGet, path: "/messages/" + seg(patientID), result: &out}); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SendMessage(ctx context.Context, in OutgoingMessage) (*Created, error) {
	if err := requireID("sender id", in.SenderID); err != nil {
		return nil, err
	}
	var out Created
	if err := c.do(ctx, call{op: "SendMessage", method: http.MethodPost, path: "/messages/", body: in, result: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) MarkMessageRead(ctx context.Context, id ID) error {
	if err := requireID("message id", id); err != nil {
		return err
	}
	return c.do(ctx, call{op: "MarkMessageRead", method: http.MethodPut, path: "/messages/" + seg(id) + "/read"})
}

func (c *Client) ListNotifications(ctx context.Context) ([]Notification, error) {
	var out []Notification
	if err := c.do(ctx, call{op: "ListNotifications", method: http.MethodGet, path: "/notifications", result: &out}); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) MarkNotificationRead(ctx context.Context, id ID) error {
	if err := requireID("notification id", id); err != nil {
		return err
	}
	return c.do(ctx, call{op: "MarkNotificationRead", method: http.MethodPost, path: "/notifications/" + seg(id) + "/read"})
}

// FetchRole asks the backend for the role bound to credential.
func (c *Client) FetchRole(ctx context.Context, credential string) (Role, error) {
	if strings.TrimSpace(credential) == "" {
		return "", failure.Invalid("credential", "must not be empty")
	}
	var out roleResponse
	if err := c.do(ctx, call{op: "FetchRole", method: http.MethodGet, path: "/users/role", result: &out, token: credential}); err != nil {
		return "", err
	}
	return out.Role, nil
}
