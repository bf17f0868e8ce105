package archive

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is one audit record emitted by the engine: a delivery, a breakdown,
// a lifecycle transition, a scheduler control action.
type Event struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Vehicle string         `json:"vehicle,omitempty"`
	OrderID string         `json:"orderId,omitempty"`
	SimTime time.Time      `json:"simTime"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Sink receives engine events. The archive is an audit trail only; the
// simulation never reads it back to restore state.
type Sink interface {
	Record(ctx context.Context, e Event) error
	List(ctx context.Context, eventType, vehicle string, limit int) ([]Event, error)
}

// NewEvent stamps an event with a fresh id.
func NewEvent(typ, vehicle, orderID string, simTime time.Time, payload map[string]any) Event {
	return Event{
		ID:      uuid.New().String(),
		Type:    typ,
		Vehicle: vehicle,
		OrderID: orderID,
		SimTime: simTime,
		Payload: payload,
	}
}

// Memory is the default in-process sink used when no DATABASE_URL is set.
type Memory struct {
	mu     sync.Mutex
	events []Event
	max    int
}

// NewMemory creates a bounded in-memory sink.
func NewMemory() *Memory { return &Memory{max: 100000} }

func (m *Memory) Record(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	if len(m.events) > m.max {
		m.events = m.events[len(m.events)-m.max:]
	}
	return nil
}

func (m *Memory) List(_ context.Context, eventType, vehicle string, limit int) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	out := []Event{}
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		e := m.events[i]
		if eventType != "" && e.Type != eventType {
			continue
		}
		if vehicle != "" && e.Vehicle != vehicle {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
