package auth

import (
	"context"

	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/api"
)

// SignedIn returns a gate already carrying id with role, skipping the role
// fetch. It is exported so other packages can build authenticated fixtures.
func SignedIn(id *Identity, role api.Role) *Gate {
	g := NewGate(nil, nil, nil)
	g.identity = id
	g.state = VisibilityState{
		Authenticated: true,
		Role:          role,
		DisplayName:   id.DisplayName(),
		Sections:      g.rules.Sections(role),
	}
	return g
}

// SignOutLocal drops the identity as a provider sign-out would.
func (g *Gate) SignOutLocal(ctx context.Context) {
	g.OnIdentityChange(ctx, nil)
}
