package panel

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/codes"

	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/api"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/view"
)

// QueueRow is one patient in the queue.
type QueueRow struct {
	Patient  api.Patient
	Selected bool
}

// QueueView is the patient queue ordered high, medium, low.
type QueueView struct {
	Rows   []QueueRow
	Err    string
	Loaded bool
}

// Queue renders all patients ordered by priority, highlighting the
// selected one.
type Queue struct {
	syncer[QueueView]
	feed *PatientFeed
	sel  Selected
}

func NewQueue(d Deps, feed *PatientFeed) *Queue {
	d = d.withDefaults()
	return &Queue{
		syncer: newSyncer(view.PanelQueue, d, renderQueue),
		feed:   feed,
		sel:    d.Selection,
	}
}

// SortByPriority returns patients ordered by priority rank. Patients of
// equal priority keep their backend order.
func SortByPriority(patients []api.Patient) []api.Patient {
	out := append([]api.Patient(nil), patients...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority.Rank() < out[j].Priority.Rank()
	})
	return out
}

// Refresh reads the current cycle's patient list and applies it if no newer
// refresh started meanwhile.
func (q *Queue) Refresh(ctx context.Context) error {
	seq := q.begin()
	ctx, span := q.startSpan(ctx, seq)
	defer span.End()

	patients, err := q.feed.Patients(ctx)
	if err != nil {
		span.SetStatus(codes.Error, "list patients failed")
		q.logFailure(seq, err)
		q.commit(ctx, seq, QueueView{Err: "Failed to load patient queue", Loaded: true}, outcomeError)
		return err
	}

	selected := q.selectedID()
	sorted := SortByPriority(patients)
	rows := make([]QueueRow, len(sorted))
	for i, p := range sorted {
		rows[i] = QueueRow{Patient: p, Selected: p.ID == selected}
	}
	q.commit(ctx, seq, QueueView{Rows: rows, Loaded: true}, outcomeOK)
	return nil
}

// Highlight re-marks the selected row without fetching.
func (q *Queue) Highlight(id api.ID) {
	q.update(func(v *QueueView) {
		rows := append([]QueueRow(nil), v.Rows...)
		for i := range rows {
			rows[i].Selected = id != "" && rows[i].Patient.ID == id
		}
		v.Rows = rows
	})
}

// Remove drops a patient from the rendered queue.
func (q *Queue) Remove(id api.ID) {
	q.update(func(v *QueueView) {
		rows := v.Rows[:0:0]
		for _, r := range v.Rows {
			if r.Patient.ID != id {
				rows = append(rows, r)
			}
		}
		v.Rows = rows
	})
}

// MarkStatus sets a row's status locally ahead of the next refresh.
func (q *Queue) MarkStatus(id api.ID, status string) {
	q.update(func(v *QueueView) {
		rows := append([]QueueRow(nil), v.Rows...)
		for i := range rows {
			if rows[i].Patient.ID == id {
				rows[i].Patient.Status = status
			}
		}
		v.Rows = rows
	})
}

func (q *Queue) selectedID() api.ID {
	if q.sel == nil {
		return ""
	}
	return q.sel.Snapshot().PatientID()
}

func renderQueue(v QueueView) string {
	if v.Err != "" {
		return view.ErrorText(v.Err)
	}
	if !v.Loaded {
		return view.Muted("Loading patients...")
	}
	if len(v.Rows) == 0 {
		return view.Muted("No patients in queue")
	}
	lines := make([]string, 0, len(v.Rows))
	for _, r := range v.Rows {
		p := r.Patient
		line := fmt.Sprintf("%-20s %s  #%s  %d · %s  %s",
			p.Name, view.Badge(string(p.Priority)), p.PatientID, p.Age, p.Gender, p.Status)
		if r.Selected {
			line = view.Highlight("▶ " + line)
		} else {
			line = "  " + line
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
