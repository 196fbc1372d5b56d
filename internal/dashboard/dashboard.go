// Package dashboard wires the session gate, the selection and the panel
// synchronizers into the doctor's dashboard and exposes its user actions.
package dashboard

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/api"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/auth"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/messaging"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/panel"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/reconcile"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/scheduler"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/selection"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/view"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/vitals"
)

const (
	defaultRefreshInterval = 30 * time.Second
	defaultVitalsInterval  = 5 * time.Second
	stopWait               = 5 * time.Second
)

// ErrDoctorHidden is returned by Refresh when the signed-in role does not
// see the doctor dashboard.
var ErrDoctorHidden = errors.New("doctor dashboard is not shown to this role")

// Backend is the resource client the dashboard talks to.
type Backend interface {
	panel.Backend
}

// Session signs users in and out. auth.Keycloak implements it.
type Session interface {
	SignIn(ctx context.Context, email, password string) (*auth.Identity, error)
	SignOut(ctx context.Context) error
}

// Journal records consultations left half-saved.
type Journal interface {
	Record(ctx context.Context, patientID, patientName, step string, cause error) (*reconcile.Entry, error)
}

// Metrics covers the panel and scheduler counters.
type Metrics interface {
	panel.Metrics
	scheduler.Metrics
}

type Options struct {
	// Manual disables the periodic refresh; callers drive Refresh.
	Manual          bool
	DoctorID        api.ID
	RefreshInterval time.Duration
	VitalsInterval  time.Duration
	Metrics         Metrics
	Events          *messaging.Emitter
	Journal         Journal
	Logger          *zap.Logger
	Now             func() time.Time
}

// Panels groups the synchronizers of one dashboard.
type Panels struct {
	Feed          *panel.PatientFeed
	Queue         *panel.Queue
	Stats         *panel.StatsPanel
	Recent        *panel.Recent
	Notifications *panel.Notifications
	Patient       *panel.PatientCard
	Vitals        *panel.Vitals
	History       *panel.History
	Consultation  *panel.Consultation
	Prescription  *panel.Prescription
	LabTest       *panel.LabTest
	Messaging     *panel.Messaging
}

type Controller struct {
	gate      *auth.Gate
	session   Session
	client    Backend
	selection *selection.State
	display   view.Display
	sections  *sectionDisplay
	panels    Panels
	events    *messaging.Emitter
	journal   Journal
	metrics   Metrics
	logger    *zap.Logger
	interval  time.Duration
	manual    bool

	mu    sync.Mutex
	sched *scheduler.Scheduler

	bg sync.WaitGroup
}

// New builds a controller. session may be nil when sign-in is driven
// elsewhere; the gate is still the source of truth for authentication.
func New(gate *auth.Gate, session Session, client Backend, display view.Display, opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = defaultRefreshInterval
	}
	if opts.VitalsInterval <= 0 {
		opts.VitalsInterval = defaultVitalsInterval
	}
	if opts.DoctorID == "" {
		opts.DoctorID = "1"
	}

	c := &Controller{
		gate:     gate,
		session:  session,
		client:   client,
		display:  display,
		events:   opts.Events,
		journal:  opts.Journal,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		interval: opts.RefreshInterval,
		manual:   opts.Manual,
	}
	c.sections = newSectionDisplay(display, gate.State())

	deps := panel.Deps{
		Backend: client,
		Display: c.sections,
		Logger:  opts.Logger,
		Now:     opts.Now,
	}
	if opts.Metrics != nil {
		deps.Metrics = opts.Metrics
	}
	vitalsPanel := panel.NewVitals(deps)
	c.selection = selection.New(client, func(p api.Patient) vitals.Worker {
		return vitals.NewSimulator(p.ID, opts.VitalsInterval, vitalsPanel.Sink)
	}, opts.Logger)
	deps.Selection = c.selection

	feed := panel.NewPatientFeed(client)
	history := panel.NewHistory(deps)
	c.panels = Panels{
		Feed:          feed,
		Queue:         panel.NewQueue(deps, feed),
		Stats:         panel.NewStats(deps, feed),
		Recent:        panel.NewRecent(deps),
		Notifications: panel.NewNotifications(deps),
		Patient:       panel.NewPatientCard(deps),
		Vitals:        vitalsPanel,
		History:       history,
		Consultation:  panel.NewConsultation(deps),
		Prescription:  panel.NewPrescription(deps, history),
		LabTest:       panel.NewLabTest(deps, history),
		Messaging:     panel.NewMessaging(deps, opts.DoctorID),
	}

	c.selection.Subscribe(c.onSelection)
	gate.Subscribe(c.onVisibility)
	c.renderSession(gate.State())
	return c
}

func (c *Controller) Panels() Panels { return c.panels }

func (c *Controller) Selection() *selection.State { return c.selection }

// State reports whether a scheduled refresh is in flight.
func (c *Controller) State() scheduler.State {
	c.mu.Lock()
	s := c.sched
	c.mu.Unlock()
	if s == nil {
		return scheduler.Idle
	}
	return s.State()
}

// Running reports whether the periodic refresh is active.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sched != nil && c.sched.Started()
}

// Start begins the periodic refresh if someone is already signed in. Later
// sign-ins start it on their own.
func (c *Controller) Start() {
	if c.gate.Authenticated() {
		c.startRefresh()
	}
}

// refreshTask reloads the doctor dashboard. Ticks that fire while the
// doctor area is hidden fetch nothing.
func (c *Controller) refreshTask() scheduler.Task {
	p := c.panels
	full := scheduler.FullRefresh(p.Feed, p.Queue, p.Recent, p.Notifications, p.Stats)
	return func(ctx context.Context) {
		if !c.sections.shows(auth.SectionDoctor) {
			return
		}
		full(ctx)
	}
}

// Refresh runs one full dashboard refresh and waits for it.
func (c *Controller) Refresh(ctx context.Context) error {
	if err := c.gate.Require(); err != nil {
		c.fail(err, "")
		return err
	}
	if !c.sections.shows(auth.SectionDoctor) {
		return ErrDoctorHidden
	}
	c.refreshTask()(ctx)
	return nil
}

// onVisibility applies the sections of s to the display, starts the
// periodic refresh on sign-in and tears the dashboard down on sign-out.
func (c *Controller) onVisibility(s auth.VisibilityState) {
	c.renderSession(s)
	opened := c.sections.apply(s)
	if !s.Authenticated {
		c.stopRefresh(stopWait)
		c.selection.Clear()
		return
	}
	c.startRefresh()
	if opened && !c.manual {
		c.async(c.redrawDoctor)
	}
}

// redrawDoctor fills the doctor area once the role reveals it. The
// scheduler's first tick usually lands before the role is known.
func (c *Controller) redrawDoctor(ctx context.Context) {
	snap := c.selection.Snapshot()
	p := c.panels
	p.Patient.Show(snap.Patient)
	if snap.Patient == nil {
		p.Vitals.Reset()
	}
	c.refreshTask()(ctx)
	scheduler.FullRefresh(nil, p.History, p.Consultation, p.Messaging, p.Prescription, p.LabTest)(ctx)
}

func (c *Controller) startRefresh() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.manual || c.sched != nil {
		return
	}
	var opts []scheduler.Option
	if c.metrics != nil {
		opts = append(opts, scheduler.WithMetrics(c.metrics))
	}
	c.sched = scheduler.New(c.interval, c.refreshTask(), c.logger, opts...)
	c.sched.Start()
	c.logger.Info("dashboard refresh started", zap.Duration("interval", c.interval))
}

func (c *Controller) stopRefresh(wait time.Duration) {
	c.mu.Lock()
	s := c.sched
	c.sched = nil
	c.mu.Unlock()
	if s != nil {
		s.Stop(wait)
		c.logger.Info("dashboard refresh stopped")
	}
}

// onSelection keeps the selection-driven panels in step. It runs while the
// selection is notifying, so anything that fetches is started in the
// background and never writes the selection itself.
func (c *Controller) onSelection(ch selection.Change) {
	switch ch.Kind {
	case selection.MessageSelected:
		return
	case selection.Cleared:
		c.panels.Vitals.Reset()
	}
	c.panels.Queue.Highlight(ch.PatientID())
	c.panels.Patient.Show(ch.Patient)
	c.panels.Consultation.Focus(ch.Patient)

	p := c.panels
	c.async(func(ctx context.Context) {
		scheduler.FullRefresh(nil, p.History, p.Consultation, p.Messaging, p.Prescription, p.LabTest)(ctx)
	})
}

func (c *Controller) async(fn func(ctx context.Context)) {
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		fn(context.Background())
	}()
}

// Wait blocks until background work started by the controller finished.
func (c *Controller) Wait() {
	c.bg.Wait()
	c.panels.Messaging.Wait()
	c.mu.Lock()
	s := c.sched
	c.mu.Unlock()
	if s != nil {
		s.Wait()
	}
	c.events.Wait()
}

// Close stops the refresh and the vitals simulation and drains background
// work.
func (c *Controller) Close() {
	c.stopRefresh(stopWait)
	c.selection.Clear()
	c.Wait()
}
