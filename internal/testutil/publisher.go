package testutil

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// PublishedEvent is one event captured by MockPublisher.
type PublishedEvent struct {
	RoutingKey string
	RawJSON    []byte
}

// MockPublisher records events in memory instead of sending them to a
// broker. It can be told to fail every publish.
type MockPublisher struct {
	mu     sync.RWMutex
	events []PublishedEvent
	err    error
	closed bool
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

// Publish stores the JSON encoding of eventData.
func (m *MockPublisher) Publish(ctx context.Context, routingKey string, eventData interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	raw, err := json.Marshal(eventData)
	if err != nil {
		return err
	}
	m.events = append(m.events, PublishedEvent{RoutingKey: routingKey, RawJSON: raw})
	return nil
}

func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// FailWith makes every later Publish return err. A nil err restores normal
// behaviour.
func (m *MockPublisher) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Events returns a copy of every captured event.
func (m *MockPublisher) Events() []PublishedEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]PublishedEvent(nil), m.events...)
}

// Count returns the number of events published under routingKey.
func (m *MockPublisher) Count(routingKey string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, e := range m.events {
		if e.RoutingKey == routingKey {
			n++
		}
	}
	return n
}

// Last decodes the most recent event with routingKey into v. It fails the
// test when there is none.
func (m *MockPublisher) Last(t *testing.T, routingKey string, v interface{}) {
	t.Helper()
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].RoutingKey == routingKey {
			require.NoError(t, json.Unmarshal(m.events[i].RawJSON, v))
			return
		}
	}
	t.Fatalf("no event published with routing key %q", routingKey)
}

// Closed reports whether Close was called.
func (m *MockPublisher) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
