package selection

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/api"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/failure"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/vitals"
)

type fakeFetcher struct {
	mu        sync.Mutex
	patients  map[api.ID]api.Patient
	messages  map[api.ID][]api.Message
	gates     map[api.ID]chan struct{}
	getCalls  int
	listCalls int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		patients: map[api.ID]api.Patient{
			"1": {ID: "1", Name: "Ann", Priority: api.PriorityHigh},
			"2": {ID: "2", Name: "Bob", Priority: api.PriorityLow},
		},
		messages: map[api.ID][]api.Message{
			"1": {{ID: "m1", SenderID: "1", Content: "hello"}},
		},
		gates: map[api.ID]chan struct{}{},
	}
}

// hold makes GetPatient(id) block until the returned func is called.
func (f *fakeFetcher) hold(id api.ID) func() {
	ch := make(chan struct{})
	f.mu.Lock()
	f.gates[id] = ch
	f.mu.Unlock()
	return func() { close(ch) }
}

func (f *fakeFetcher) GetPatient(ctx context.Context, id api.ID) (*api.Patient, error) {
	f.mu.Lock()
	f.getCalls++
	gate := f.gates[id]
	p, ok := f.patients[id]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if !ok {
		return nil, &api.Error{Kind: api.KindHTTP, Op: "GetPatient", Status: http.StatusNotFound, Message: "Patient not found"}
	}
	return &p, nil
}

func (f *fakeFetcher) ListMessages(ctx context.Context, patientID api.ID) ([]api.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	return append([]api.Message(nil), f.messages[patientID]...), nil
}

type fakeWorker struct {
	id  api.ID
	log *[]string
	mu  *sync.Mutex
	on  bool
}

func (w *fakeWorker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.on = true
	*w.log = append(*w.log, "start "+string(w.id))
}

func (w *fakeWorker) Stop(time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.on = false
	*w.log = append(*w.log, "stop "+string(w.id))
}

func (w *fakeWorker) Started() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.on
}

func workerLog() (VitalsFactory, func() []string) {
	var mu sync.Mutex
	var log []string
	vf := func(p api.Patient) vitals.Worker {
		return &fakeWorker{id: p.ID, log: &log, mu: &mu}
	}
	return vf, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), log...)
	}
}

func TestSelectPatient(t *testing.T) {
	vf, events := workerLog()
	s := New(newFakeFetcher(), vf, nil)

	p, err := s.SelectPatient(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "Ann", p.Name)

	snap := s.Snapshot()
	require.NotNil(t, snap.Patient)
	assert.Equal(t, api.ID("1"), snap.PatientID())
	assert.Nil(t, snap.Message)
	assert.True(t, s.VitalsRunning())
	assert.Equal(t, []string{"start 1"}, events())
}

// TestSelectPatient_StopsOldSimulationFirst tests the vitals hand-over order
func TestSelectPatient_StopsOldSimulationFirst(t *testing.T) {
	vf, events := workerLog()
	s := New(newFakeFetcher(), vf, nil)

	_, err := s.SelectPatient(context.Background(), "1")
	require.NoError(t, err)
	_, err = s.SelectPatient(context.Background(), "2")
	require.NoError(t, err)

	assert.Equal(t, []string{"start 1", "stop 1", "start 2"}, events())
}

// TestSelectPatient_FailureKeepsSelection tests that a failed fetch leaves the
// prior selection intact
func TestSelectPatient_FailureKeepsSelection(t *testing.T) {
	vf, events := workerLog()
	s := New(newFakeFetcher(), vf, nil)
	_, err := s.SelectPatient(context.Background(), "1")
	require.NoError(t, err)
	_, err = s.SelectMessage(context.Background(), "m1")
	require.NoError(t, err)

	_, err = s.SelectPatient(context.Background(), "404")
	require.Error(t, err)
	assert.True(t, api.IsKind(err, api.KindHTTP))

	snap := s.Snapshot()
	assert.Equal(t, api.ID("1"), snap.PatientID())
	require.NotNil(t, snap.Message)
	assert.Equal(t, api.ID("m1"), snap.Message.ID)
	assert.Equal(t, []string{"start 1"}, events())
}

// TestSelectPatient_LatestWins tests that selecting A then B leaves B even
// when A's fetch resolves last
func TestSelectPatient_LatestWins(t *testing.T) {
	f := newFakeFetcher()
	release := f.hold("1")
	vf, events := workerLog()
	s := New(f, vf, nil)

	errA := make(chan error, 1)
	go func() {
		_, err := s.SelectPatient(context.Background(), "1")
		errA <- err
	}()
	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.getCalls == 1
	}, time.Second, time.Millisecond)

	_, err := s.SelectPatient(context.Background(), "2")
	require.NoError(t, err)

	release()
	assert.ErrorIs(t, <-errA, ErrSuperseded)
	assert.Equal(t, api.ID("2"), s.Snapshot().PatientID())
	assert.Equal(t, []string{"start 2"}, events())
}

// TestSelectMessage_NoPatient tests the precondition without network
func TestSelectMessage_NoPatient(t *testing.T) {
	f := newFakeFetcher()
	s := New(f, nil, nil)

	_, err := s.SelectMessage(context.Background(), "m1")

	var pe *failure.PreconditionError
	require.True(t, errors.As(err, &pe))
	assert.ErrorIs(t, err, failure.ErrNoPatientSelected)
	assert.Equal(t, 0, f.listCalls)
	assert.Nil(t, s.Snapshot().Message)
}

func TestSelectMessage(t *testing.T) {
	s := New(newFakeFetcher(), nil, nil)
	_, err := s.SelectPatient(context.Background(), "1")
	require.NoError(t, err)

	m, err := s.SelectMessage(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, "hello", m.Content)

	_, err = s.SelectMessage(context.Background(), "nope")
	var ve *failure.ValidationError
	assert.True(t, errors.As(err, &ve))
	assert.Equal(t, api.ID("m1"), s.Snapshot().Message.ID)
}

// TestSelectPatient_ClearsMessage tests that changing patient drops the
// open message
func TestSelectPatient_ClearsMessage(t *testing.T) {
	s := New(newFakeFetcher(), nil, nil)
	_, _ = s.SelectPatient(context.Background(), "1")
	_, err := s.SelectMessage(context.Background(), "m1")
	require.NoError(t, err)

	_, err = s.SelectPatient(context.Background(), "2")
	require.NoError(t, err)

	assert.Nil(t, s.Snapshot().Message)
}

func TestClear(t *testing.T) {
	vf, events := workerLog()
	s := New(newFakeFetcher(), vf, nil)
	_, _ = s.SelectPatient(context.Background(), "1")
	_, _ = s.SelectMessage(context.Background(), "m1")

	s.Clear()

	snap := s.Snapshot()
	assert.Nil(t, snap.Patient)
	assert.Nil(t, snap.Message)
	assert.False(t, s.VitalsRunning())
	assert.Equal(t, []string{"start 1", "stop 1"}, events())
}

// TestClear_SupersedesInFlightSelect tests that a fetch resolving after
// Clear does not resurrect a selection
func TestClear_SupersedesInFlightSelect(t *testing.T) {
	f := newFakeFetcher()
	release := f.hold("1")
	s := New(f, nil, nil)

	errA := make(chan error, 1)
	go func() {
		_, err := s.SelectPatient(context.Background(), "1")
		errA <- err
	}()
	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.getCalls == 1
	}, time.Second, time.Millisecond)

	s.Clear()
	release()

	assert.ErrorIs(t, <-errA, ErrSuperseded)
	assert.Nil(t, s.Snapshot().Patient)
}

// TestClear_StopsRealSimulation tests that no vitals arrive after Clear
func TestClear_StopsRealSimulation(t *testing.T) {
	var samples atomic.Int64
	vf := func(p api.Patient) vitals.Worker {
		return vitals.NewSimulator(p.ID, time.Millisecond, func(api.ID, vitals.Sample) { samples.Add(1) })
	}
	s := New(newFakeFetcher(), vf, nil)
	_, err := s.SelectPatient(context.Background(), "1")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return samples.Load() >= 2 }, time.Second, time.Millisecond)

	s.Clear()
	n := samples.Load()
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, n, samples.Load())
}

func TestSubscribe_OrderAndInvariant(t *testing.T) {
	s := New(newFakeFetcher(), nil, nil)

	var kinds []Kind
	s.Subscribe(func(c Change) {
		if c.Message != nil {
			assert.NotNil(t, c.Patient, "message without patient")
		}
		kinds = append(kinds, c.Kind)
	})

	_, _ = s.SelectPatient(context.Background(), "1")
	_, _ = s.SelectMessage(context.Background(), "m1")
	_, _ = s.SelectPatient(context.Background(), "2")
	s.Clear()

	assert.Equal(t, []Kind{PatientSelected, MessageSelected, PatientSelected, Cleared}, kinds)
}

func TestSelectPatient_EmptyID(t *testing.T) {
	f := newFakeFetcher()
	s := New(f, nil, nil)

	_, err := s.SelectPatient(context.Background(), "")

	var ve *failure.ValidationError
	assert.True(t, errors.As(err, &ve))
	assert.Equal(t, 0, f.getCalls)
}
