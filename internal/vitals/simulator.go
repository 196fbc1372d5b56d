package vitals

import (
	"math/rand"
	"sync"
	"time"

	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/api"
)

// Worker is a periodic background task.
type Worker interface {
	Start()
	Stop(wait time.Duration)
	Started() bool
}

// Clock supplies sample timestamps.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// Sink receives samples for a patient.
type Sink func(patientID api.ID, s Sample)

// Simulator emits one sample immediately on Start and then one per interval
// until Stop. Once Stop returns the sink is never called again.
type Simulator struct {
	patientID api.ID
	interval  time.Duration
	sink      Sink
	clock     Clock
	rng       *rand.Rand

	mu      sync.Mutex
	started bool
	stopped bool
	quit    chan struct{}
	done    chan struct{}
}

type Option func(*Simulator)

func WithClock(c Clock) Option {
	return func(s *Simulator) { s.clock = c }
}

// WithSeed makes the sample sequence deterministic.
func WithSeed(seed int64) Option {
	return func(s *Simulator) { s.rng = rand.New(rand.NewSource(seed)) }
}

func NewSimulator(patientID api.ID, interval time.Duration, sink Sink, opts ...Option) *Simulator {
	s := &Simulator{
		patientID: patientID,
		interval:  interval,
		sink:      sink,
		clock:     wallClock{},
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the simulation. Calling it again, or after Stop, does nothing.
func (s *Simulator) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true
	go s.run()
}

// Stop ends the simulation. It returns once no further sample can reach the
// sink, then waits up to wait for the goroutine to exit.
func (s *Simulator) Stop(wait time.Duration) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	started := s.started
	close(s.quit)
	s.mu.Unlock()

	if !started || wait <= 0 {
		return
	}
	select {
	case <-s.done:
	case <-time.After(wait):
	}
}

func (s *Simulator) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started && !s.stopped
}

func (s *Simulator) PatientID() api.ID { return s.patientID }

func (s *Simulator) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if !s.emit() {
			return
		}
		select {
		case <-ticker.C:
		case <-s.quit:
			return
		}
	}
}

// emit delivers one sample while holding the lock so Stop cannot return
// in the middle of a delivery.
func (s *Simulator) emit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	if s.sink != nil {
		s.sink(s.patientID, Generate(s.rng, s.clock.Now()))
	}
	return true
}
