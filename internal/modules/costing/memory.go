// README: In-memory cost and cost-history repository for tests and DB-less runs.
package costing

import (
	"context"
	"sync"
	"time"

	"freightquote/internal/types"
)

type MemoryStore struct {
	mu      sync.Mutex
	costs   map[types.ID]*Cost
	history []*HistoryEntry
	seq     int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{costs: make(map[types.ID]*Cost)}
}

func (m *MemoryStore) SaveCost(_ context.Context, c *Cost) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.costs[c.ID] = cloneCost(c)
	return nil
}

func (m *MemoryStore) GetCost(_ context.Context, id types.ID) (*Cost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.costs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneCost(c), nil
}

func (m *MemoryStore) FinalizeWithHistory(_ context.Context, id types.ID, at time.Time, e *HistoryEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.costs[id]
	if !ok {
		return false, ErrNotFound
	}
	if c.IsFinal {
		return false, nil
	}
	c.IsFinal = true
	c.FinalizedAt = &at
	m.appendLocked(e)
	return true, nil
}

func (m *MemoryStore) AppendHistory(_ context.Context, e *HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendLocked(e)
	return nil
}

func (m *MemoryStore) appendLocked(e *HistoryEntry) {
	m.seq++
	e.Seq = m.seq
	cp := *e
	cp.Components = append([]CostComponent(nil), e.Components...)
	m.history = append(m.history, &cp)
}

func (m *MemoryStore) History(_ context.Context, routeID types.ID) ([]*HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*HistoryEntry
	for i := len(m.history) - 1; i >= 0; i-- {
		if m.history[i].RouteID == routeID {
			cp := *m.history[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

func cloneCost(c *Cost) *Cost {
	cp := *c
	cp.Segments = append([]Segment(nil), c.Segments...)
	cp.EmptyLegs = append([]Segment(nil), c.EmptyLegs...)
	cp.Fallbacks = append([]string(nil), c.Fallbacks...)
	cp.Breakdown.Components = append([]CostComponent(nil), c.Breakdown.Components...)
	cp.Breakdown.Skipped = append([]SkippedRate(nil), c.Breakdown.Skipped...)
	if c.FinalizedAt != nil {
		at := *c.FinalizedAt
		cp.FinalizedAt = &at
	}
	return &cp
}
