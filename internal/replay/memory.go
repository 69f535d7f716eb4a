package replay

import (
	"fmt"
	"io"

	"latsim/pkg/model"
)

// MemoryFeed serves a scripted event sequence. Used by tests and
// hand-built scenarios.
type MemoryFeed struct {
	events []model.MarketEvent
	pos    int
}

func NewMemoryFeed(events ...model.MarketEvent) (*MemoryFeed, error) {
	var last model.Time
	for i, ev := range events {
		if ev.Time < last {
			return nil, fmt.Errorf("%w: event %d at %d after %d", ErrOutOfOrder, i, ev.Time, last)
		}
		last = ev.Time
	}
	return &MemoryFeed{events: events}, nil
}

func (m *MemoryFeed) Next() (*model.MarketEvent, error) {
	if m.pos >= len(m.events) {
		return nil, io.EOF
	}
	ev := m.events[m.pos]
	m.pos++
	return &ev, nil
}
