// Package recorder persists run results. The in-memory recorder backs
// determinism checks; the Postgres store keeps fills for offline
// analysis. The simulation core never depends on either.
package recorder

import "latsim/pkg/model"

// Memory collects the fill tape of a run. It implements sim.Observer.
// No locking: the simulation loop is single-threaded.
type Memory struct {
	fills []model.Fill
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) OnFill(fill model.Fill) {
	m.fills = append(m.fills, fill)
}

func (m *Memory) Fills() []model.Fill {
	return m.fills
}

func (m *Memory) Reset() {
	m.fills = nil
}
