package dashboard

import (
	"strings"

	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/auth"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/view"
)

func (c *Controller) renderSession(s auth.VisibilityState) {
	c.display.Render(view.PanelSession, renderSession(s))
}

func renderSession(s auth.VisibilityState) string {
	if !s.Authenticated {
		return view.Muted("Signed out. Sign in to continue.")
	}
	lines := []string{view.Title(s.DisplayName)}
	if s.Role != "" {
		lines = append(lines, view.Field("Role", string(s.Role), "-"))
	}
	if s.RoleError != "" {
		lines = append(lines, view.ErrorText("Could not determine your role"))
	}
	var sections []string
	for _, sec := range s.Sections {
		sections = append(sections, string(sec))
	}
	lines = append(lines, view.Field("Sections", strings.Join(sections, ", "), "none"))
	return strings.Join(lines, "\n")
}
