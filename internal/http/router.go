// Package http serves a read-only view of the running dashboard: the
// latest frame of each panel, recent notices and the current selection.
package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"

	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/api"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/scheduler"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/selection"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/view"
)

const serviceName = "telemed-dashboard"

// PanelSource is what the router reads frames from.
type PanelSource interface {
	Panel(id view.PanelID) (view.Frame, bool)
	Panels() map[view.PanelID]view.Frame
	Notices() []view.Notice
}

type SelectionSource interface {
	Snapshot() selection.Snapshot
}

type RefreshState interface {
	State() scheduler.State
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Refresh string `json:"refresh,omitempty"`
}

type FrameResponse struct {
	Panel     string    `json:"panel"`
	Content   string    `json:"content"`
	Version   uint64    `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

type PanelsResponse struct {
	Panels  []FrameResponse  `json:"panels"`
	Notices []NoticeResponse `json:"notices"`
}

type NoticeResponse struct {
	Level string    `json:"level"`
	Text  string    `json:"text"`
	At    time.Time `json:"at"`
}

type SelectionResponse struct {
	PatientID   api.ID `json:"patient_id,omitempty"`
	PatientName string `json:"patient_name,omitempty"`
	MessageID   api.ID `json:"message_id,omitempty"`
	Version     uint64 `json:"version"`
}

type handler struct {
	panels    PanelSource
	selection SelectionSource
	refresh   RefreshState
	logger    *zap.Logger
}

// NewStatusRouter builds the status server routes. refresh may be nil.
func NewStatusRouter(panels PanelSource, sel SelectionSource, refresh RefreshState, allowedOrigins []string, logger *zap.Logger) *mux.Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handler{panels: panels, selection: sel, refresh: refresh, logger: logger}

	r := mux.NewRouter()
	r.Use(otelmux.Middleware(serviceName))
	r.Use(CORSMiddleware(allowedOrigins))

	r.HandleFunc("/health", h.health).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/panels", h.listPanels).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/panels/{panel}", h.getPanel).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/selection", h.getSelection).Methods(http.MethodGet, http.MethodOptions)

	return r
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Service: serviceName}
	if h.refresh != nil {
		resp.Refresh = string(h.refresh.State())
	}
	h.respond(w, http.StatusOK, resp)
}

func (h *handler) listPanels(w http.ResponseWriter, r *http.Request) {
	frames := h.panels.Panels()
	resp := PanelsResponse{Panels: []FrameResponse{}, Notices: []NoticeResponse{}}
	for _, id := range view.Order {
		if f, ok := frames[id]; ok {
			resp.Panels = append(resp.Panels, frameResponse(id, f))
		}
	}
	for _, n := range h.panels.Notices() {
		resp.Notices = append(resp.Notices, NoticeResponse{Level: string(n.Level), Text: n.Text, At: n.At})
	}
	h.respond(w, http.StatusOK, resp)
}

func (h *handler) getPanel(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["panel"]
	id, ok := view.ParsePanelID(name)
	if !ok {
		h.respondError(w, http.StatusNotFound, "unknown_panel", "No panel named "+name)
		return
	}
	f, ok := h.panels.Panel(id)
	if !ok {
		h.respondError(w, http.StatusNotFound, "not_rendered", "Panel "+name+" has not been rendered yet")
		return
	}
	h.respond(w, http.StatusOK, frameResponse(id, f))
}

func (h *handler) getSelection(w http.ResponseWriter, r *http.Request) {
	snap := h.selection.Snapshot()
	resp := SelectionResponse{Version: snap.Version}
	if snap.Patient != nil {
		resp.PatientID = snap.Patient.ID
		resp.PatientName = snap.Patient.Name
	}
	if snap.Message != nil {
		resp.MessageID = snap.Message.ID
	}
	h.respond(w, http.StatusOK, resp)
}

func frameResponse(id view.PanelID, f view.Frame) FrameResponse {
	return FrameResponse{Panel: string(id), Content: f.Content, Version: f.Version, UpdatedAt: f.UpdatedAt}
}

func (h *handler) respond(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("failed to write status response", zap.Error(err))
	}
}

func (h *handler) respondError(w http.ResponseWriter, status int, code, message string) {
	h.respond(w, status, ErrorResponse{Error: code, Message: message})
}
