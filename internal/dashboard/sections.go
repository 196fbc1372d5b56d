package dashboard

import (
	"sync"

	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/auth"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/view"
)

// panelSections places every panel in the section that owns it. Panels not
// listed belong to the doctor area.
var panelSections = map[view.PanelID]auth.Section{
	view.PanelSession: auth.SectionApp,
}

func sectionOf(id view.PanelID) auth.Section {
	if s, ok := panelSections[id]; ok {
		return s
	}
	return auth.SectionDoctor
}

// sectionDisplay forwards frames of visible sections only. When a section
// is hidden its frames are removed from the underlying display, and late
// renders from work still in flight are dropped.
type sectionDisplay struct {
	next view.Display

	mu    sync.RWMutex
	shown map[auth.Section]bool
}

func newSectionDisplay(next view.Display, s auth.VisibilityState) *sectionDisplay {
	d := &sectionDisplay{next: next}
	d.apply(s)
	return d
}

func (d *sectionDisplay) Render(id view.PanelID, content string) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.shown[sectionOf(id)] {
		d.next.Render(id, content)
	}
}

func (d *sectionDisplay) Notify(n view.Notice) {
	d.next.Notify(n)
}

// apply switches to the sections of s. It reports whether the doctor area
// became visible.
func (d *sectionDisplay) apply(s auth.VisibilityState) bool {
	shown := map[auth.Section]bool{auth.SectionApp: true}
	if s.Authenticated {
		for _, sec := range s.Sections {
			shown[sec] = true
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	opened := shown[auth.SectionDoctor] && !d.shown[auth.SectionDoctor]
	d.shown = shown

	var hidden []view.PanelID
	for _, id := range view.Order {
		if !shown[sectionOf(id)] {
			hidden = append(hidden, id)
		}
	}
	if r, ok := d.next.(view.Remover); ok && len(hidden) > 0 {
		r.Remove(hidden...)
	}
	return opened
}

func (d *sectionDisplay) shows(s auth.Section) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.shown[s]
}
