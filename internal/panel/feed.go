package panel

import (
	"context"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/api"
)

// PatientLister fetches the full patient list.
type PatientLister interface {
	ListPatients(ctx context.Context) ([]api.Patient, error)
}

type feedResult struct {
	patients []api.Patient
	err      error
}

// PatientFeed shares one patient-list fetch per refresh cycle between the
// Queue and Stats panels. Results, including failures, are memoized until
// the next cycle begins.
type PatientFeed struct {
	client PatientLister
	group  singleflight.Group

	mu    sync.Mutex
	cycle uint64
	memo  *feedResult
}

func NewPatientFeed(client PatientLister) *PatientFeed {
	return &PatientFeed{client: client}
}

// NewCycle forgets the memoized list so the next reader fetches again.
func (f *PatientFeed) NewCycle() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cycle++
	f.memo = nil
	return f.cycle
}

// Patients returns the list for the current cycle, fetching it at most once.
func (f *PatientFeed) Patients(ctx context.Context) ([]api.Patient, error) {
	f.mu.Lock()
	cycle := f.cycle
	if m := f.memo; m != nil {
		f.mu.Unlock()
		return clonePatients(m.patients), m.err
	}
	f.mu.Unlock()

	v, _, _ := f.group.Do(strconv.FormatUint(cycle, 10), func() (interface{}, error) {
		f.mu.Lock()
		if f.memo != nil && f.cycle == cycle {
			m := f.memo
			f.mu.Unlock()
			return m, nil
		}
		f.mu.Unlock()

		patients, err := f.client.ListPatients(context.WithoutCancel(ctx))
		res := &feedResult{patients: patients, err: err}
		f.mu.Lock()
		if f.cycle == cycle {
			f.memo = res
		}
		f.mu.Unlock()
		return res, nil
	})
	res := v.(*feedResult)
	return clonePatients(res.patients), res.err
}

func clonePatients(in []api.Patient) []api.Patient {
	if in == nil {
		return nil
	}
	return append([]api.Patient(nil), in...)
}
