package panel

import (
	"fmt"
	"strings"

	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/api"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/view"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/vitals"
)

// PatientCard shows the selected patient's header. It has no fetch of its
// own: the selection already holds the record.
type PatientCard struct {
	syncer[*api.Patient]
}

func NewPatientCard(d Deps) *PatientCard {
	d = d.withDefaults()
	return &PatientCard{syncer: newSyncer(view.PanelPatient, d, renderPatientCard)}
}

// Show renders p, or the empty state for nil.
func (c *PatientCard) Show(p *api.Patient) {
	c.update(func(v **api.Patient) { *v = p })
}

func renderPatientCard(p *api.Patient) string {
	if p == nil {
		return view.Muted("Select a patient from the queue")
	}
	return strings.Join([]string{
		view.Title(p.Name) + "  " + view.Badge(string(p.Priority)),
		fmt.Sprintf("ID: %s | Age: %d | %s", p.PatientID, p.Age, p.Gender),
		fmt.Sprintf("Vitals: BP %s | HR %s | Temp %s",
			orNA(p.BloodPressure), floatOrNA(p.HeartRate, "%.0f"), floatOrNA(p.Temperature, "%.1f")),
	}, "\n")
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

func floatOrNA(f *float64, format string) string {
	if f == nil {
		return "N/A"
	}
	return fmt.Sprintf(format, *f)
}

type VitalsView struct {
	PatientID api.ID
	Sample    *vitals.Sample
}

// Vitals displays simulated samples for the selected patient.
type Vitals struct {
	syncer[VitalsView]
}

func NewVitals(d Deps) *Vitals {
	d = d.withDefaults()
	return &Vitals{syncer: newSyncer(view.PanelVitals, d, renderVitals)}
}

// Sink is handed to the simulator.
func (v *Vitals) Sink(pid api.ID, s vitals.Sample) {
	v.update(func(cur *VitalsView) {
		*cur = VitalsView{PatientID: pid, Sample: &s}
	})
}

// Reset clears the panel.
func (v *Vitals) Reset() {
	v.update(func(cur *VitalsView) { *cur = VitalsView{} })
}

func renderVitals(v VitalsView) string {
	if v.Sample == nil {
		return view.Muted("No live vitals")
	}
	s := v.Sample
	return strings.Join([]string{
		view.Field("Blood Pressure", s.BloodPressure(), "-"),
		view.Field("Heart Rate", fmt.Sprintf("%d bpm", s.HeartRate), "-"),
		view.Field("Temperature", fmt.Sprintf("%.1f°C", s.Temperature), "-"),
		view.Field("SpO2", fmt.Sprintf("%d%%", s.SpO2), "-"),
		view.Field("Respiratory Rate", fmt.Sprintf("%d/min", s.RespiratoryRate), "-"),
		view.Muted("simulated · " + s.At.Format("15:04:05")),
	}, "\n")
}
