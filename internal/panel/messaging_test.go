package panel

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/api"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/failure"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/testutil"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/view"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/vitals"
)

const doctorID api.ID = "1"

func TestMessaging_ThreadLabels(t *testing.T) {
	h := newHarness(t)
	pid := h.backend.AddPatient(api.Patient{Name: "Ann"})
	h.backend.AddMessage(pid, api.Message{SenderID: pid, ReceiverID: doctorID, Content: "my chest hurts"})
	h.backend.AddMessage(pid, api.Message{SenderID: doctorID, ReceiverID: pid, Content: "come in today", IsRead: true})
	m := NewMessaging(h.deps, doctorID)

	require.NoError(t, m.Refresh(context.Background()))
	assert.Contains(t, h.rendered(t, view.PanelMessages), "Select a patient to view messages")

	_, err := h.sel.SelectPatient(context.Background(), pid)
	require.NoError(t, err)
	require.NoError(t, m.Refresh(context.Background()))

	msgs := m.View().Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, "my chest hurts", msgs[0].Content)

	out := h.rendered(t, view.PanelMessages)
	you := strings.Index(out, "You")
	doc := strings.Index(out, "Doctor")
	require.GreaterOrEqual(t, you, 0)
	require.GreaterOrEqual(t, doc, 0)
	assert.Less(t, you, doc)
}

func TestMessaging_EmptyThread(t *testing.T) {
	h := newHarness(t)
	pid := h.backend.AddPatient(api.Patient{Name: "Ann"})
	_, _ = h.sel.SelectPatient(context.Background(), pid)
	m := NewMessaging(h.deps, doctorID)

	require.NoError(t, m.Refresh(context.Background()))

	assert.Contains(t, h.rendered(t, view.PanelMessages), "No messages")
}

// TestMessaging_SendRejectsBlank tests that blank text never reaches the
// backend
func TestMessaging_SendRejectsBlank(t *testing.T) {
	h := newHarness(t)
	pid := h.backend.AddPatient(api.Patient{Name: "Ann"})
	_, _ = h.sel.SelectPatient(context.Background(), pid)
	m := NewMessaging(h.deps, doctorID)

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := m.Send(context.Background(), text)
		var ve *failure.ValidationError
		assert.True(t, errors.As(err, &ve), "text %q", text)
	}
	assert.Equal(t, 0, h.backend.Calls(testutil.RouteMessagesCreate))
}

func TestMessaging_SendRequiresPatient(t *testing.T) {
	h := newHarness(t)
	m := NewMessaging(h.deps, doctorID)

	_, err := m.Send(context.Background(), "hello")

	assert.ErrorIs(t, err, failure.ErrNoPatientSelected)
	assert.Equal(t, 0, h.backend.Calls(testutil.RouteMessagesCreate))
}

func TestMessaging_SendReloadsThread(t *testing.T) {
	h := newHarness(t)
	pid := h.backend.AddPatient(api.Patient{Name: "Ann"})
	_, _ = h.sel.SelectPatient(context.Background(), pid)
	m := NewMessaging(h.deps, doctorID)

	created, err := m.Send(context.Background(), "  feeling better  ")

	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	stored := h.backend.Messages(pid)
	require.Len(t, stored, 1)
	assert.Equal(t, "feeling better", stored[0].Content)
	assert.Equal(t, doctorID, stored[0].ReceiverID)

	require.Len(t, m.View().Messages, 1)
	assert.Contains(t, h.rendered(t, view.PanelMessages), "feeling better")
}

// TestMessaging_OpenMarksRead tests the optimistic read flag and the
// background mark-read call
func TestMessaging_OpenMarksRead(t *testing.T) {
	h := newHarness(t)
	pid := h.backend.AddPatient(api.Patient{Name: "Ann"})
	id := h.backend.AddMessage(pid, api.Message{SenderID: doctorID, ReceiverID: pid, Content: "results are in"})
	_, _ = h.sel.SelectPatient(context.Background(), pid)
	m := NewMessaging(h.deps, doctorID)
	require.NoError(t, m.Refresh(context.Background()))

	msg, err := m.OpenMessage(context.Background(), id)

	require.NoError(t, err)
	assert.True(t, msg.IsRead)
	require.NotNil(t, m.View().Open())
	assert.True(t, m.View().Messages[0].IsRead)
	assert.Contains(t, h.rendered(t, view.PanelMessages), "results are in")

	m.Wait()
	assert.Equal(t, 1, h.backend.Calls(testutil.RouteMessagesRead))
	assert.True(t, h.backend.Messages(pid)[0].IsRead)
	assert.Equal(t, id, h.sel.Snapshot().Message.ID)
}

func TestMessaging_OpenIgnoresMarkReadFailure(t *testing.T) {
	h := newHarness(t)
	pid := h.backend.AddPatient(api.Patient{Name: "Ann"})
	id := h.backend.AddMessage(pid, api.Message{SenderID: doctorID, Content: "hi"})
	_, _ = h.sel.SelectPatient(context.Background(), pid)
	h.backend.FailWith(testutil.RouteMessagesRead, http.StatusInternalServerError)
	m := NewMessaging(h.deps, doctorID)

	_, err := m.OpenMessage(context.Background(), id)
	m.Wait()

	require.NoError(t, err)
	assert.Equal(t, 1, h.backend.Calls(testutil.RouteMessagesRead))
}

func TestMessaging_OpenAlreadyReadSkipsCall(t *testing.T) {
	h := newHarness(t)
	pid := h.backend.AddPatient(api.Patient{Name: "Ann"})
	id := h.backend.AddMessage(pid, api.Message{SenderID: doctorID, Content: "hi", IsRead: true})
	_, _ = h.sel.SelectPatient(context.Background(), pid)
	m := NewMessaging(h.deps, doctorID)

	_, err := m.OpenMessage(context.Background(), id)
	m.Wait()

	require.NoError(t, err)
	assert.Equal(t, 0, h.backend.Calls(testutil.RouteMessagesRead))
}

func TestPatientCard(t *testing.T) {
	h := newHarness(t)
	card := NewPatientCard(h.deps)

	card.Show(nil)
	assert.Contains(t, h.rendered(t, view.PanelPatient), "Select a patient from the queue")

	hr := 72.0
	card.Show(&api.Patient{Name: "Ann", PatientID: "P001", Age: 42, Gender: "female", Priority: api.PriorityHigh, HeartRate: &hr})
	out := h.rendered(t, view.PanelPatient)
	assert.Contains(t, out, "ID: P001 | Age: 42 | female")
	assert.Contains(t, out, "BP N/A | HR 72 | Temp N/A")
}

func TestVitalsPanel(t *testing.T) {
	h := newHarness(t)
	v := NewVitals(h.deps)

	v.Sink("7", vitals.Sample{Systolic: 120, Diastolic: 80, HeartRate: 70, Temperature: 36.8, SpO2: 98, RespiratoryRate: 14, At: time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)})
	out := h.rendered(t, view.PanelVitals)
	assert.Contains(t, out, "120/80")
	assert.Contains(t, out, "36.8")
	assert.Equal(t, api.ID("7"), v.View().PatientID)

	v.Reset()
	assert.Contains(t, h.rendered(t, view.PanelVitals), "No live vitals")
}
