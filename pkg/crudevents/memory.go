package crudevents

import (
	"context"
	"sync"

	"github.com/bitechdev/autoquery/pkg/common"
	"github.com/bitechdev/autoquery/pkg/crud"
)

// MemorySink keeps events in process, in the order they arrived. It serves as
// both an EventSink and a Publisher. Events recorded by a transaction that is
// later rolled back are kept.
type MemorySink struct {
	mu        sync.RWMutex
	events    []*crud.Event
	maxEvents int
}

// NewMemorySink keeps at most maxEvents, dropping the oldest. Zero keeps all.
func NewMemorySink(maxEvents int) *MemorySink {
	return &MemorySink{maxEvents: maxEvents}
}

// Record implements crud.EventSink.
func (m *MemorySink) Record(_ context.Context, _ common.Database, ev *crud.Event) error {
	m.add(ev)
	return nil
}

// Publish implements crud.Publisher.
func (m *MemorySink) Publish(_ context.Context, ev *crud.Event) error {
	m.add(ev)
	return nil
}

func (m *MemorySink) add(ev *crud.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	if m.maxEvents > 0 && len(m.events) > m.maxEvents {
		m.events = append([]*crud.Event(nil), m.events[len(m.events)-m.maxEvents:]...)
	}
}

// Events returns a snapshot of the kept events.
func (m *MemorySink) Events() []*crud.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*crud.Event(nil), m.events...)
}

// Len returns the number of kept events.
func (m *MemorySink) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}
