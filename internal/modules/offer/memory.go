// README: In-memory offer repository with the same revision check as the SQL store.
package offer

import (
	"context"
	"sync"

	"freightquote/internal/types"
)

type MemoryStore struct {
	mu      sync.Mutex
	offers  map[types.ID]*Offer
	history []*History
	seq     int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{offers: make(map[types.ID]*Offer)}
}

func (m *MemoryStore) Create(_ context.Context, o *Offer, h *History) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.offers[o.ID]; ok {
		return ErrConflict
	}
	cp := *o
	m.offers[o.ID] = &cp
	m.appendLocked(h)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id types.ID) (*Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.offers[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *MemoryStore) Update(_ context.Context, o *Offer, prevRevision int, prevStatus Status, h *History) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.offers[o.ID]
	if !ok {
		return false, ErrNotFound
	}
	if cur.Revision != prevRevision || cur.Status != prevStatus {
		return false, nil
	}
	cp := *o
	m.offers[o.ID] = &cp
	m.appendLocked(h)
	return true, nil
}

func (m *MemoryStore) History(_ context.Context, offerID types.ID) ([]*History, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*History
	for i := len(m.history) - 1; i >= 0; i-- {
		if m.history[i].OfferID == offerID {
			cp := *m.history[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) appendLocked(h *History) {
	m.seq++
	h.Seq = m.seq
	cp := *h
	m.history = append(m.history, &cp)
}
