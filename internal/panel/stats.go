package panel

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/api"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/view"
)

// Stats are the dashboard counters.
type Stats struct {
	Total             int
	HighPriority      int
	Active            int
	TodayAppointments int
}

// ComputeStats counts patients. today is a YYYY-MM-DD date compared against
// each appointment date.
func ComputeStats(patients []api.Patient, today string) Stats {
	s := Stats{Total: len(patients)}
	for _, p := range patients {
		if p.Priority == api.PriorityHigh {
			s.HighPriority++
		}
		if p.Status == api.StatusActive {
			s.Active++
		}
		if p.AppointmentDate != "" && p.AppointmentDate == today {
			s.TodayAppointments++
		}
	}
	return s
}

type StatsView struct {
	Stats
	Err    string
	Loaded bool
}

// StatsPanel renders the dashboard counters from the shared patient feed.
type StatsPanel struct {
	syncer[StatsView]
	feed *PatientFeed
	now  func() time.Time
}

func NewStats(d Deps, feed *PatientFeed) *StatsPanel {
	d = d.withDefaults()
	return &StatsPanel{
		syncer: newSyncer(view.PanelStats, d, renderStats),
		feed:   feed,
		now:    d.Now,
	}
}

func (s *StatsPanel) Refresh(ctx context.Context) error {
	seq := s.begin()
	ctx, span := s.startSpan(ctx, seq)
	defer span.End()

	patients, err := s.feed.Patients(ctx)
	if err != nil {
		span.SetStatus(codes.Error, "list patients failed")
		s.logFailure(seq, err)
		s.commit(ctx, seq, StatsView{Err: "Failed to load dashboard stats", Loaded: true}, outcomeError)
		return err
	}
	today := s.now().UTC().Format(time.DateOnly)
	s.commit(ctx, seq, StatsView{Stats: ComputeStats(patients, today), Loaded: true}, outcomeOK)
	return nil
}

func renderStats(v StatsView) string {
	if v.Err != "" {
		return view.ErrorText(v.Err)
	}
	if !v.Loaded {
		return view.Muted("Loading...")
	}
	return fmt.Sprintf("%s %d   %s %d   %s %d   %s %d",
		view.Label("Total Patients:"), v.Total,
		view.Label("High Priority:"), v.HighPriority,
		view.Label("Active:"), v.Active,
		view.Label("Today's Appointments:"), v.TodayAppointments,
	)
}
