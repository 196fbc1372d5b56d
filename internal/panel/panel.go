// Package panel holds one synchronizer per dashboard panel. Each
// synchronizer fetches its data, keeps the latest view-model and renders it
// to the display. Every fetch carries a sequence number and only the most
// recently issued one is ever applied.
package panel

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/api"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/selection"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/view"
)

var tracer = otel.Tracer("github.com/WailSalutem-Health-Care/telemed-dashboard/panel")

// ErrStale is returned when a newer request made a result obsolete.
var ErrStale = errors.New("result superseded by a newer request")

const (
	outcomeOK    = "ok"
	outcomeError = "error"
)

// Backend is the resource client surface the panels use.
type Backend interface {
	ListPatients(ctx context.Context) ([]api.Patient, error)
	GetPatient(ctx context.Context, id api.ID) (*api.Patient, error)
	UpdatePatientStatus(ctx context.Context, id api.ID, status string) error
	ListRecentConsultations(ctx context.Context) ([]api.Consultation, error)
	GetConsultation(ctx context.Context, id api.ID) (*api.Consultation, error)
	CreateConsultation(ctx context.Context, in api.Consultation) (*api.Created, error)
	ListPrescriptions(ctx context.Context, patientID api.ID) ([]api.Prescription, error)
	CreatePrescription(ctx context.Context, in api.Prescription) (*api.Created, error)
	ListLabTests(ctx context.Context, patientID api.ID) ([]api.LabTest, error)
	CreateLabTest(ctx context.Context, in api.LabTest) (*api.Created, error)
	ListMessages(ctx context.Context, patientID api.ID) ([]api.Message, error)
	SendMessage(ctx context.Context, in api.OutgoingMessage) (*api.Created, error)
	MarkMessageRead(ctx context.Context, id api.ID) error
	ListNotifications(ctx context.Context) ([]api.Notification, error)
	MarkNotificationRead(ctx context.Context, id api.ID) error
}

// Selected gives read access to the selection.
type Selected interface {
	Snapshot() selection.Snapshot
}

// MessageSelector can also open a message.
type MessageSelector interface {
	Selected
	SelectMessage(ctx context.Context, id api.ID) (*api.Message, error)
}

// Metrics records panel refresh outcomes.
type Metrics interface {
	RecordPanelRefresh(ctx context.Context, panel string, outcome string)
	RecordStaleDiscard(ctx context.Context, panel string)
}

type noopMetrics struct{}

func (noopMetrics) RecordPanelRefresh(context.Context, string, string) {}
func (noopMetrics) RecordStaleDiscard(context.Context, string)         {}

// Deps are shared by every synchronizer.
type Deps struct {
	Backend   Backend
	Selection MessageSelector
	Display   view.Display
	Metrics   Metrics
	Logger    *zap.Logger
	Now       func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Metrics == nil {
		d.Metrics = noopMetrics{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// syncer is the sequencing core shared by all panels: it hands out request
// numbers, applies only the latest result and re-renders the view-model.
type syncer[V any] struct {
	id      view.PanelID
	display view.Display
	metrics Metrics
	logger  *zap.Logger
	render  func(V) string

	mu   sync.Mutex
	seq  uint64
	view V
}

func newSyncer[V any](id view.PanelID, d Deps, render func(V) string) syncer[V] {
	return syncer[V]{
		id:      id,
		display: d.Display,
		metrics: d.Metrics,
		logger:  d.Logger.With(zap.String("panel", string(id))),
		render:  render,
	}
}

// begin issues a new request number, invalidating every earlier one.
func (s *syncer[V]) begin() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

// commit applies v if seq is still the latest request.
func (s *syncer[V]) commit(ctx context.Context, seq uint64, v V, outcome string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.seq {
		s.metrics.RecordStaleDiscard(ctx, string(s.id))
		s.logger.Debug("discarding stale result", zap.Uint64("seq", seq), zap.Uint64("latest", s.seq))
		return false
	}
	s.view = v
	s.display.Render(s.id, s.render(v))
	s.metrics.RecordPanelRefresh(ctx, string(s.id), outcome)
	return true
}

// discard drops result seq without rendering.
func (s *syncer[V]) discard(ctx context.Context, seq uint64) {
	s.metrics.RecordStaleDiscard(ctx, string(s.id))
	s.logger.Debug("discarding result for a previous selection", zap.Uint64("seq", seq))
}

// update applies a local change to the current view and re-renders it.
func (s *syncer[V]) update(fn func(v *V)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.view)
	s.display.Render(s.id, s.render(s.view))
}

// View returns the last applied view-model.
func (s *syncer[V]) View() V {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

func (s *syncer[V]) startSpan(ctx context.Context, seq uint64) (context.Context, trace.Span) {
	return tracer.Start(ctx, "panel."+string(s.id)+".refresh",
		trace.WithAttributes(
			attribute.String("panel", string(s.id)),
			attribute.Int64("panel.seq", int64(seq)),
		),
	)
}

func (s *syncer[V]) logFailure(seq uint64, err error) {
	s.logger.Error("panel refresh failed", zap.Uint64("seq", seq), zap.Error(err))
}
