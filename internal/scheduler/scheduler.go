// Package scheduler drives the periodic full dashboard refresh.
//
// Each tick starts a refresh and returns immediately; a slow refresh never
// delays the next tick and overlapping refreshes are allowed, since every
// panel discards its own stale results.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("github.com/WailSalutem-Health-Care/telemed-dashboard/scheduler")

// State is Idle when no refresh is in flight.
type State string

const (
	Idle       State = "idle"
	Refreshing State = "refreshing"
)

// Task is one full refresh.
type Task func(ctx context.Context)

// Refresher is a panel that can reload itself.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// CycleStarter begins a new shared-fetch cycle.
type CycleStarter interface {
	NewCycle() uint64
}

// Metrics counts refresh cycles.
type Metrics interface {
	RecordRefreshCycle(ctx context.Context, trigger string)
}

// FullRefresh starts a new fetch cycle and refreshes panels concurrently,
// returning once all of them settled. Panel failures are rendered by the
// panels themselves and are not reported here.
func FullRefresh(cycle CycleStarter, panels ...Refresher) Task {
	return func(ctx context.Context) {
		if cycle != nil {
			cycle.NewCycle()
		}
		var g errgroup.Group
		for _, p := range panels {
			p := p
			g.Go(func() error {
				_ = p.Refresh(ctx)
				return nil
			})
		}
		_ = g.Wait()
	}
}

type Scheduler struct {
	interval time.Duration
	task     Task
	logger   *zap.Logger
	metrics  Metrics

	inflight atomic.Int32
	running  sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
	quit    chan struct{}
	done    chan struct{}
}

type Option func(*Scheduler)

func WithMetrics(m Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

func New(interval time.Duration, task Task, logger *zap.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		interval: interval,
		task:     task,
		logger:   logger,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs one refresh right away and then one per interval until Stop.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true
	go s.loop()
}

// Stop ends the timer and waits up to wait for in-flight refreshes.
func (s *Scheduler) Stop(wait time.Duration) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	started := s.started
	close(s.quit)
	s.mu.Unlock()

	if wait <= 0 {
		return
	}
	deadline := time.After(wait)
	if started {
		select {
		case <-s.done:
		case <-deadline:
			return
		}
	}
	idle := make(chan struct{})
	go func() {
		s.running.Wait()
		close(idle)
	}()
	select {
	case <-idle:
	case <-deadline:
		s.logger.Warn("refreshes still in flight after stop", zap.Int32("inflight", s.inflight.Load()))
	}
}

func (s *Scheduler) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started && !s.stopped
}

// State reports whether any refresh is in flight.
func (s *Scheduler) State() State {
	if s.inflight.Load() > 0 {
		return Refreshing
	}
	return Idle
}

// Trigger starts an on-demand refresh without waiting for it.
func (s *Scheduler) Trigger(ctx context.Context) {
	s.fire(context.WithoutCancel(ctx), "manual")
}

// Wait blocks until no refresh is in flight.
func (s *Scheduler) Wait() {
	s.running.Wait()
}

func (s *Scheduler) loop() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.fire(context.Background(), "timer")
	for {
		select {
		case <-ticker.C:
			s.fire(context.Background(), "timer")
		case <-s.quit:
			return
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, trigger string) {
	s.running.Add(1)
	n := s.inflight.Add(1)
	if n > 1 {
		s.logger.Debug("refresh overlaps a previous one", zap.Int32("inflight", n))
	}
	go func() {
		defer s.running.Done()
		defer s.inflight.Add(-1)

		ctx, span := tracer.Start(ctx, "scheduler.refresh")
		defer span.End()
		if s.metrics != nil {
			s.metrics.RecordRefreshCycle(ctx, trigger)
		}
		s.task(ctx)
	}()
}
