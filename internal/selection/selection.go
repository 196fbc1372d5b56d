// Package selection owns the focused patient and open message. It is the
// only shared mutable state of the dashboard and is written only through
// SelectPatient, SelectMessage and Clear.
package selection

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/api"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/failure"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/vitals"
)

var tracer = otel.Tracer("github.com/WailSalutem-Health-Care/telemed-dashboard/selection")

// ErrSuperseded is returned when a newer selection operation won the race.
var ErrSuperseded = errors.New("selection superseded by a newer request")

const stopWait = time.Second

// Fetcher is the part of the resource client selection needs.
type Fetcher interface {
	GetPatient(ctx context.Context, id api.ID) (*api.Patient, error)
	ListMessages(ctx context.Context, patientID api.ID) ([]api.Message, error)
}

// VitalsFactory builds the simulation for a newly selected patient.
type VitalsFactory func(p api.Patient) vitals.Worker

type Kind string

const (
	PatientSelected Kind = "patient_selected"
	MessageSelected Kind = "message_selected"
	Cleared         Kind = "cleared"
)

// Snapshot is a copy of the selection at one version.
type Snapshot struct {
	Patient *api.Patient
	Message *api.Message
	Version uint64
}

// PatientID returns the selected patient's id, or "".
func (s Snapshot) PatientID() api.ID {
	if s.Patient == nil {
		return ""
	}
	return s.Patient.ID
}

// Change describes one mutation.
type Change struct {
	Kind Kind
	Snapshot
}

// Listener observes changes in mutation order. It must not mutate the
// selection synchronously.
type Listener func(Change)

type State struct {
	client Fetcher
	vitals VitalsFactory
	logger *zap.Logger

	mu         sync.Mutex
	patient    *api.Patient
	message    *api.Message
	version    uint64
	patientSeq uint64
	messageSeq uint64
	sim        vitals.Worker

	notifyMu  sync.Mutex
	listeners []Listener
}

func New(client Fetcher, vf VitalsFactory, logger *zap.Logger) *State {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &State{client: client, vitals: vf, logger: logger}
}

// Subscribe registers l for every later change.
func (s *State) Subscribe(l Listener) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Snapshot returns a copy of the current selection.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *State) snapshotLocked() Snapshot {
	snap := Snapshot{Version: s.version}
	if s.patient != nil {
		p := *s.patient
		snap.Patient = &p
	}
	if s.message != nil {
		m := *s.message
		snap.Message = &m
	}
	return snap
}

// SelectPatient fetches id and, if it is still the latest request, replaces
// the selection with (patient, no message). The old simulation is stopped
// before the new one starts. On failure the previous selection is kept.
func (s *State) SelectPatient(ctx context.Context, id api.ID) (*api.Patient, error) {
	ctx, span := tracer.Start(ctx, "selection.SelectPatient")
	defer span.End()
	span.SetAttributes(attribute.String("patient.id", string(id)))

	if id == "" {
		return nil, failure.Invalid("patient id", "must not be empty")
	}

	s.mu.Lock()
	s.patientSeq++
	seq := s.patientSeq
	s.mu.Unlock()

	p, err := s.client.GetPatient(ctx, id)
	if err != nil {
		span.SetStatus(codes.Error, "fetch failed")
		s.logger.Error("select patient failed", zap.String("patient_id", string(id)), zap.Error(err))
		return nil, err
	}

	s.mu.Lock()
	if s.patientSeq != seq {
		s.mu.Unlock()
		s.logger.Debug("discarding superseded patient selection", zap.String("patient_id", string(id)))
		return nil, ErrSuperseded
	}
	s.stopSimLocked()
	s.patient = p
	s.message = nil
	s.messageSeq++
	s.version++
	if s.vitals != nil {
		s.sim = s.vitals(*p)
		s.sim.Start()
	}
	s.publishLocked(PatientSelected)

	s.logger.Info("patient selected", zap.String("patient_id", string(p.ID)), zap.String("name", p.Name))
	span.SetStatus(codes.Ok, "")
	out := *p
	return &out, nil
}

// SelectMessage opens message id from the selected patient's thread. With no
// patient selected it fails without any network call.
func (s *State) SelectMessage(ctx context.Context, id api.ID) (*api.Message, error) {
	ctx, span := tracer.Start(ctx, "selection.SelectMessage")
	defer span.End()

	s.mu.Lock()
	if s.patient == nil {
		s.mu.Unlock()
		span.SetStatus(codes.Error, "no patient selected")
		return nil, failure.NoPatient("select message")
	}
	patientID := s.patient.ID
	s.messageSeq++
	seq := s.messageSeq
	s.mu.Unlock()

	if id == "" {
		return nil, failure.Invalid("message id", "must not be empty")
	}

	thread, err := s.client.ListMessages(ctx, patientID)
	if err != nil {
		span.SetStatus(codes.Error, "fetch failed")
		return nil, err
	}
	var found *api.Message
	for i := range thread {
		if thread[i].ID == id {
			found = &thread[i]
			break
		}
	}
	if found == nil {
		return nil, failure.Invalid("message id", "not in the selected patient's thread")
	}

	s.mu.Lock()
	if s.messageSeq != seq || s.patient == nil || s.patient.ID != patientID {
		s.mu.Unlock()
		return nil, ErrSuperseded
	}
	s.message = found
	s.version++
	s.publishLocked(MessageSelected)

	out := *found
	return &out, nil
}

// Clear drops the selection and stops the simulation. Any selection request
// still in flight is superseded.
func (s *State) Clear() {
	s.mu.Lock()
	s.patientSeq++
	s.messageSeq++
	s.stopSimLocked()
	s.patient = nil
	s.message = nil
	s.version++
	s.publishLocked(Cleared)
	s.logger.Info("selection cleared")
}

// VitalsRunning reports whether a simulation is active.
func (s *State) VitalsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sim != nil && s.sim.Started()
}

func (s *State) stopSimLocked() {
	if s.sim != nil {
		s.sim.Stop(stopWait)
		s.sim = nil
	}
}

// publishLocked hands the change to listeners. It is called with mu held
// and releases it; notifyMu keeps deliveries in mutation order.
func (s *State) publishLocked(kind Kind) {
	ch := Change{Kind: kind, Snapshot: s.snapshotLocked()}
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()
	for _, l := range s.listeners {
		l(ch)
	}
}
