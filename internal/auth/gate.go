package auth

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/api"
)

var tracer = otel.Tracer("github.com/WailSalutem-Health-Care/telemed-dashboard/auth")

// MetricsRecorder records auth metrics.
type MetricsRecorder interface {
	RecordAuthFailure(ctx context.Context, reason string)
}

// RoleFetcher resolves the role bound to a credential.
type RoleFetcher interface {
	FetchRole(ctx context.Context, credential string) (api.Role, error)
}

// IdentityProvider notifies subscribers of sign-in transitions.
type IdentityProvider interface {
	OnIdentityChange(l IdentityListener) func()
}

// VisibilityState is what the authenticated UI should currently show.
type VisibilityState struct {
	Authenticated bool
	Role          api.Role
	DisplayName   string
	Sections      []Section
	RoleError     string
}

// Shows reports whether s is visible.
func (v VisibilityState) Shows(s Section) bool {
	for _, x := range v.Sections {
		if x == s {
			return true
		}
	}
	return false
}

// Gate tracks sign-in state and the visibility derived from it. Every data
// operation of the dashboard is gated on Authenticated.
type Gate struct {
	roles   RoleFetcher
	rules   Visibility
	metrics MetricsRecorder
	logger  *zap.Logger

	mu        sync.RWMutex
	identity  *Identity
	state     VisibilityState
	gen       uint64
	listeners []func(VisibilityState)
}

type GateOption func(*Gate)

func WithGateMetrics(m MetricsRecorder) GateOption {
	return func(g *Gate) { g.metrics = m }
}

func NewGate(roles RoleFetcher, rules Visibility, logger *zap.Logger, opts ...GateOption) *Gate {
	if rules == nil {
		rules = DefaultVisibility()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Gate{roles: roles, rules: rules, logger: logger}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Attach subscribes the gate to p. The returned function detaches it.
func (g *Gate) Attach(p IdentityProvider) func() {
	return p.OnIdentityChange(g.OnIdentityChange)
}

// Subscribe registers l for visibility changes.
func (g *Gate) Subscribe(l func(VisibilityState)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listeners = append(g.listeners, l)
}

// OnIdentityChange applies a sign-in transition. For a non-nil identity the
// role is fetched with its credential; a failed fetch keeps the session
// authenticated with role sections hidden. A transition that happens while a
// role fetch is in flight supersedes it.
func (g *Gate) OnIdentityChange(ctx context.Context, id *Identity) {
	ctx, span := tracer.Start(ctx, "auth.Gate.OnIdentityChange", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	g.mu.Lock()
	g.gen++
	gen := g.gen
	g.identity = id
	if id == nil {
		g.state = VisibilityState{}
	} else {
		g.state = VisibilityState{
			Authenticated: true,
			DisplayName:   id.DisplayName(),
			Sections:      g.rules.Sections(""),
		}
	}
	state := g.state
	g.mu.Unlock()

	g.publish(state)

	if id == nil {
		span.SetAttributes(attribute.Bool("auth.authenticated", false))
		g.logger.Info("session ended")
		return
	}
	span.SetAttributes(
		attribute.Bool("auth.authenticated", true),
		attribute.String("user.id", id.Subject),
	)

	role, err := g.fetchRole(ctx, id)
	if err != nil {
		span.SetStatus(codes.Error, "role fetch failed")
		g.recordFailure(ctx, "role_fetch")
		g.logger.Error("fetch role failed", zap.String("user_id", id.Subject), zap.Error(err))
	} else {
		span.SetAttributes(attribute.String("user.role", string(role)))
		span.SetStatus(codes.Ok, "")
	}

	g.mu.Lock()
	if g.gen != gen {
		g.mu.Unlock()
		return
	}
	if err != nil {
		g.state.RoleError = err.Error()
	} else {
		g.state.Role = role
		g.state.Sections = g.rules.Sections(role)
	}
	state = g.state
	g.mu.Unlock()

	g.publish(state)
}

func (g *Gate) fetchRole(ctx context.Context, id *Identity) (api.Role, error) {
	cred, err := id.Token(ctx)
	if err != nil {
		return "", err
	}
	if g.roles == nil {
		return "", nil
	}
	return g.roles.FetchRole(ctx, cred)
}

func (g *Gate) publish(s VisibilityState) {
	g.mu.RLock()
	ls := make([]func(VisibilityState), len(g.listeners))
	copy(ls, g.listeners)
	g.mu.RUnlock()
	for _, l := range ls {
		l(s)
	}
}

func (g *Gate) recordFailure(ctx context.Context, reason string) {
	if g.metrics != nil {
		g.metrics.RecordAuthFailure(ctx, reason)
	}
}

// Authenticated reports whether a user is signed in.
func (g *Gate) Authenticated() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.identity != nil
}

// Require returns ErrNotAuthenticated when nobody is signed in.
func (g *Gate) Require() error {
	if !g.Authenticated() {
		return ErrNotAuthenticated
	}
	return nil
}

// Identity returns the signed-in identity, or nil.
func (g *Gate) Identity() *Identity {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.identity
}

func (g *Gate) State() VisibilityState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// Credential returns the current bearer credential. It satisfies
// api.TokenSource.
func (g *Gate) Credential(ctx context.Context) (string, error) {
	id := g.Identity()
	if id == nil {
		return "", ErrNotAuthenticated
	}
	tok, err := id.Token(ctx)
	if err != nil {
		g.recordFailure(ctx, "token_refresh")
		return "", err
	}
	return tok, nil
}
