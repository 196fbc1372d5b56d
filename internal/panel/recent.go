package panel

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/api"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/view"
)

type RecentView struct {
	Consultations []api.Consultation
	Err           string
	Loaded        bool
}

// Recent lists the latest consultations across all patients.
type Recent struct {
	syncer[RecentView]
	client Backend
}

func NewRecent(d Deps) *Recent {
	d = d.withDefaults()
	return &Recent{
		syncer: newSyncer(view.PanelRecent, d, renderRecent),
		client: d.Backend,
	}
}

func (r *Recent) Refresh(ctx context.Context) error {
	seq := r.begin()
	ctx, span := r.startSpan(ctx, seq)
	defer span.End()

	list, err := r.client.ListRecentConsultations(ctx)
	if err != nil {
		span.SetStatus(codes.Error, "list recent consultations failed")
		r.logFailure(seq, err)
		r.commit(ctx, seq, RecentView{Err: "Failed to load consultations", Loaded: true}, outcomeError)
		return err
	}
	r.commit(ctx, seq, RecentView{Consultations: list, Loaded: true}, outcomeOK)
	return nil
}

func renderRecent(v RecentView) string {
	if v.Err != "" {
		return view.ErrorText(v.Err)
	}
	if !v.Loaded {
		return view.Muted("Loading...")
	}
	if len(v.Consultations) == 0 {
		return view.Muted("No recent consultations")
	}
	blocks := make([]string, 0, len(v.Consultations))
	for _, c := range v.Consultations {
		name := c.PatientName
		if name == "" {
			name = "Patient #" + string(c.PatientID)
		}
		status := c.Status
		if status == "" {
			status = api.StatusCompleted
		}
		blocks = append(blocks, strings.Join([]string{
			fmt.Sprintf("%s  %s  %s", view.Title(name), view.Badge(status), view.Muted(formatTime(c.CreatedAt))),
			"  " + view.Field("Symptoms", c.Symptoms, "Not specified"),
			"  " + view.Field("Diagnosis", c.Diagnosis, "Pending"),
		}, "\n"))
	}
	return strings.Join(blocks, "\n")
}

// formatTime shortens a backend timestamp for display, returning it
// unchanged when it does not parse.
func formatTime(s string) string {
	if s == "" {
		return ""
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("Jan 2 15:04")
		}
	}
	return s
}
