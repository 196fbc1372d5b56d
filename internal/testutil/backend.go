package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/api"
)

// Route names served by Backend.
const (
	RoutePatientsList        = "patients.list"
	RoutePatientsGet         = "patients.get"
	RoutePatientsStatus      = "patients.status"
	RouteConsultationsRecent = "consultations.recent"
	RouteConsultationsGet    = "consultations.get"
	RouteConsultationsCreate = "consultations.create"
	RoutePrescriptionsList   = "prescriptions.list"
	RoutePrescriptionsCreate = "prescriptions.create"
	RouteLabTestsList        = "labtests.list"
	RouteLabTestsCreate      = "labtests.create"
	RouteMessagesList        = "messages.list"
	RouteMessagesCreate      = "messages.create"
	RouteMessagesRead        = "messages.read"
	RouteNotificationsList   = "notifications.list"
	RouteNotificationsRead   = "notifications.read"
	RouteUsersRole           = "users.role"
)

// Hook runs before a route's handler. Returning false aborts the request;
// the hook is then responsible for writing the response.
type Hook func(w http.ResponseWriter, r *http.Request) bool

// Backend is an in-memory implementation of the telemedicine REST surface.
// It stores everything in memory and records every call for assertions.
type Backend struct {
	Server *httptest.Server

	mu            sync.Mutex
	nextID        int
	patients      []api.Patient
	consultations []api.Consultation
	prescriptions []api.Prescription
	labTests      []api.LabTest
	messages      map[api.ID][]api.Message
	notifications []api.Notification
	roles         map[string]api.Role
	hooks         map[string]Hook
	calls         map[string]int
	lastAuth      map[string]string
}

// NewBackend starts a backend on a local test server. It is closed when the
// test ends.
func NewBackend(t *testing.T) *Backend {
	t.Helper()

	b := &Backend{
		nextID:   1000,
		messages: map[api.ID][]api.Message{},
		roles:    map[string]api.Role{},
		hooks:    map[string]Hook{},
		calls:    map[string]int{},
		lastAuth: map[string]string{},
	}
	b.Server = httptest.NewServer(b.Router())
	t.Cleanup(b.Server.Close)
	return b
}

// URL is the base URL clients should use.
func (b *Backend) URL() string { return b.Server.URL }

// Router builds the mux router for the backend.
func (b *Backend) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(b.intercept)

	r.HandleFunc("/patients/", b.listPatients).Methods("GET").Name(RoutePatientsList)
	r.HandleFunc("/patients/{id}", b.getPatient).Methods("GET").Name(RoutePatientsGet)
	r.HandleFunc("/patients/{id}/status", b.updateStatus).Methods("PUT").Name(RoutePatientsStatus)

	r.HandleFunc("/consultations/recent", b.recentConsultations).Methods("GET").Name(RouteConsultationsRecent)
	r.HandleFunc("/consultations/{id}", b.getConsultation).Methods("GET").Name(RouteConsultationsGet)
	r.HandleFunc("/consultations/", b.createConsultation).Methods("POST").Name(RouteConsultationsCreate)

	r.HandleFunc("/prescriptions/{patientId}", b.listPrescriptions).Methods("GET").Name(RoutePrescriptionsList)
	r.HandleFunc("/prescriptions/", b.createPrescription).Methods("POST").Name(RoutePrescriptionsCreate)

	r.HandleFunc("/lab-tests/{patientId}", b.listLabTests).Methods("GET").Name(RouteLabTestsList)
	r.HandleFunc("/lab-tests/", b.createLabTest).Methods("POST").Name(RouteLabTestsCreate)

	r.HandleFunc("/messages/{patientId}", b.listMessages).Methods("GET").Name(RouteMessagesList)
	r.HandleFunc("/messages/", b.createMessage).Methods("POST").Name(RouteMessagesCreate)
	r.HandleFunc("/messages/{id}/read", b.markMessageRead).Methods("PUT").Name(RouteMessagesRead)

	r.HandleFunc("/notifications", b.listNotifications).Methods("GET").Name(RouteNotificationsList)
	r.HandleFunc("/notifications/{id}/read", b.markNotificationRead).Methods("POST").Name(RouteNotificationsRead)

	r.HandleFunc("/users/role", b.userRole).Methods("GET").Name(RouteUsersRole)

	return r
}

func (b *Backend) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := ""
		if route := mux.CurrentRoute(r); route != nil {
			name = route.GetName()
		}

		b.mu.Lock()
		b.calls[name]++
		b.lastAuth[name] = r.Header.Get("Authorization")
		hook := b.hooks[name]
		b.mu.Unlock()

		if hook != nil && !hook(w, r) {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- seeding and inspection ---

// AddPatient stores p, assigning an id when it has none, and returns the id.
func (b *Backend) AddPatient(p api.Patient) api.ID {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p.ID == "" {
		p.ID = b.newID()
	}
	if p.Status == "" {
		p.Status = api.StatusActive
	}
	b.patients = append(b.patients, p)
	return p.ID
}

func (b *Backend) AddPrescription(p api.Prescription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p.ID == "" {
		p.ID = b.newID()
	}
	b.prescriptions = append(b.prescriptions, p)
}

func (b *Backend) AddLabTest(l api.LabTest) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if l.ID == "" {
		l.ID = b.newID()
	}
	b.labTests = append(b.labTests, l)
}

func (b *Backend) AddConsultation(c api.Consultation) api.ID {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c.ID == "" {
		c.ID = b.newID()
	}
	b.consultations = append(b.consultations, c)
	return c.ID
}

// AddMessage stores m in the thread of patientID.
func (b *Backend) AddMessage(patientID api.ID, m api.Message) api.ID {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m.ID == "" {
		m.ID = b.newID()
	}
	b.messages[patientID] = append(b.messages[patientID], m)
	return m.ID
}

func (b *Backend) AddNotification(n api.Notification) api.ID {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n.ID == "" {
		n.ID = b.newID()
	}
	b.notifications = append(b.notifications, n)
	return n.ID
}

// SetRole binds a bearer token to a role for GET /users/role.
func (b *Backend) SetRole(token string, role api.Role) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.roles[token] = role
}

// AnswerRole makes GET /users/role return role for every bearer token, for
// sessions whose token is minted by the fake realm.
func (b *Backend) AnswerRole(role api.Role) {
	b.Hook(RouteUsersRole, func(w http.ResponseWriter, r *http.Request) bool {
		writeJSON(w, http.StatusOK, map[string]api.Role{"role": role})
		return false
	})
}

// Hook installs h for route, replacing any previous hook. A nil h removes it.
func (b *Backend) Hook(route string, h Hook) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if h == nil {
		delete(b.hooks, route)
		return
	}
	b.hooks[route] = h
}

// FailWith makes every call to route answer with status.
func (b *Backend) FailWith(route string, status int) {
	b.Hook(route, func(w http.ResponseWriter, r *http.Request) bool {
		http.Error(w, `{"detail":"injected failure"}`, status)
		return false
	})
}

// Calls returns how many requests route has received.
func (b *Backend) Calls(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[route]
}

// LastAuthorization returns the Authorization header of the last call to route.
func (b *Backend) LastAuthorization(route string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastAuth[route]
}

// Patient returns the stored patient with id.
func (b *Backend) Patient(id api.ID) (api.Patient, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range b.patients {
		if p.ID == id {
			return p, true
		}
	}
	return api.Patient{}, false
}

func (b *Backend) Consultations() []api.Consultation {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]api.Consultation(nil), b.consultations...)
}

func (b *Backend) Messages(patientID api.ID) []api.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]api.Message(nil), b.messages[patientID]...)
}

func (b *Backend) Notifications() []api.Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]api.Notification(nil), b.notifications...)
}

func (b *Backend) newID() api.ID {
	b.nextID++
	return api.ID(strconv.Itoa(b.nextID))
}

// --- handlers ---

func (b *Backend) listPatients(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	out := append([]api.Patient{}, b.patients...)
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) getPatient(w http.ResponseWriter, r *http.Request) {
	p, ok := b.Patient(api.ID(mux.Vars(r)["id"]))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Patient not found"})
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (b *Backend) updateStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "status is required"})
		return
	}
	id := api.ID(mux.Vars(r)["id"])

	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.patients {
		if b.patients[i].ID == id {
			b.patients[i].Status = body.Status
			writeJSON(w, http.StatusOK, map[string]string{"message": "Patient status updated"})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Patient not found"})
}

func (b *Backend) recentConsultations(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	out := make([]api.Consultation, 0, len(b.consultations))
	for i := len(b.consultations) - 1; i >= 0 && len(out) < 10; i-- {
		out = append(out, b.consultations[i])
	}
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) getConsultation(w http.ResponseWriter, r *http.Request) {
	id := api.ID(mux.Vars(r)["id"])
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.consultations {
		if c.ID == id {
			writeJSON(w, http.StatusOK, c)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Consultation not found"})
}

func (b *Backend) createConsultation(w http.ResponseWriter, r *http.Request) {
	var c api.Consultation
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
		return
	}
	b.mu.Lock()
	c.ID = b.newID()
	c.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	for _, p := range b.patients {
		if p.ID == c.PatientID {
			c.PatientName = p.Name
		}
	}
	b.consultations = append(b.consultations, c)
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, api.Created{ID: c.ID, Message: "Consultation created successfully"})
}

func (b *Backend) listPrescriptions(w http.ResponseWriter, r *http.Request) {
	pid := api.ID(mux.Vars(r)["patientId"])
	b.mu.Lock()
	out := []api.Prescription{}
	for _, p := range b.prescriptions {
		if p.PatientID == pid {
			out = append(out, p)
		}
	}
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) createPrescription(w http.ResponseWriter, r *http.Request) {
	var p api.Prescription
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
		return
	}
	b.mu.Lock()
	p.ID = b.newID()
	b.prescriptions = append(b.prescriptions, p)
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, api.Created{ID: p.ID, Message: "Prescription created successfully"})
}

func (b *Backend) listLabTests(w http.ResponseWriter, r *http.Request) {
	pid := api.ID(mux.Vars(r)["patientId"])
	b.mu.Lock()
	out := []api.LabTest{}
	for _, l := range b.labTests {
		if l.PatientID == pid {
			out = append(out, l)
		}
	}
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) createLabTest(w http.ResponseWriter, r *http.Request) {
	var l api.LabTest
	if err := json.NewDecoder(r.Body).Decode(&l); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
		return
	}
	b.mu.Lock()
	l.ID = b.newID()
	if l.Status == "" {
		l.Status = "pending"
	}
	b.labTests = append(b.labTests, l)
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, api.Created{ID: l.ID, Message: "Lab test created successfully"})
}

func (b *Backend) listMessages(w http.ResponseWriter, r *http.Request) {
	pid := api.ID(mux.Vars(r)["patientId"])
	writeJSON(w, http.StatusOK, append([]api.Message{}, b.Messages(pid)...))
}

func (b *Backend) createMessage(w http.ResponseWriter, r *http.Request) {
	var m api.OutgoingMessage
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
		return
	}
	b.mu.Lock()
	id := b.newID()
	b.messages[m.SenderID] = append(b.messages[m.SenderID], api.Message{
		ID:         id,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Content:    m.Content,
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
	})
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, api.Created{ID: id, Message: "Message created successfully"})
}

func (b *Backend) markMessageRead(w http.ResponseWriter, r *http.Request) {
	id := api.ID(mux.Vars(r)["id"])
	b.mu.Lock()
	defer b.mu.Unlock()
	for pid, thread := range b.messages {
		for i := range thread {
			if thread[i].ID == id {
				b.messages[pid][i].IsRead = true
				writeJSON(w, http.StatusOK, map[string]string{"message": "Message marked as read"})
				return
			}
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Message not found"})
}

func (b *Backend) listNotifications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, append([]api.Notification{}, b.Notifications()...))
}

func (b *Backend) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	id := api.ID(mux.Vars(r)["id"])
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.notifications {
		if b.notifications[i].ID == id {
			b.notifications[i].IsRead = true
			writeJSON(w, http.StatusOK, map[string]string{"message": "Notification marked as read"})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Notification not found"})
}

func (b *Backend) userRole(w http.ResponseWriter, r *http.Request) {
	authz := r.Header.Get("Authorization")
	parts := strings.SplitN(authz, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid authentication credentials"})
		return
	}
	b.mu.Lock()
	role, ok := b.roles[parts[1]]
	b.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid authentication credentials"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]api.Role{"role": role})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
