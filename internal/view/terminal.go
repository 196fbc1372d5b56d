package view

import (
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

const clearScreen = "\x1b[H\x1b[2J"

var panelTitles = map[PanelID]string{
	PanelSession:       "Session",
	PanelQueue:         "Patient Queue",
	PanelStats:         "Dashboard",
	PanelRecent:        "Recent Consultations",
	PanelPatient:       "Patient",
	PanelVitals:        "Vital Signs",
	PanelHistory:       "Medical History",
	PanelConsultation:  "Consultation",
	PanelPrescription:  "Prescription",
	PanelLabTest:       "Lab Request",
	PanelMessages:      "Messages",
	PanelNotifications: "Notifications",
}

// Terminal redraws the whole dashboard on every update.
type Terminal struct {
	out   io.Writer
	clear bool

	mu  sync.Mutex
	buf *Buffer
}

// NewTerminal writes to out. With clear set each redraw starts from a blank
// screen; otherwise frames are appended, which suits logs and pipes.
func NewTerminal(out io.Writer, clear bool) *Terminal {
	return &Terminal{out: out, clear: clear, buf: NewBuffer()}
}

func (t *Terminal) Render(id PanelID, content string) {
	t.buf.Render(id, content)
	t.redraw()
}

func (t *Terminal) Notify(n Notice) {
	t.buf.Notify(n)
	t.redraw()
}

func (t *Terminal) Remove(ids ...PanelID) {
	t.buf.Remove(ids...)
	t.redraw()
}

func (t *Terminal) redraw() {
	t.mu.Lock()
	defer t.mu.Unlock()

	var sb strings.Builder
	if t.clear {
		sb.WriteString(clearScreen)
	}
	sb.WriteString(Compose(t.buf))
	sb.WriteString("\n")
	_, _ = io.WriteString(t.out, sb.String())
}

// Compose lays out every rendered panel in display order followed by the
// latest notice.
func Compose(b *Buffer) string {
	frames := b.Panels()
	blocks := make([]string, 0, len(frames)+1)
	for _, id := range Order {
		f, ok := frames[id]
		if !ok || f.Content == "" {
			continue
		}
		blocks = append(blocks, Box(panelTitles[id], f.Content))
	}
	if n, ok := b.LastNotice(); ok {
		blocks = append(blocks, noticeLine(n))
	}
	return lipgloss.JoinVertical(lipgloss.Left, blocks...)
}
