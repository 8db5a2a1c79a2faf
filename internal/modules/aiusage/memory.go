package aiusage

import (
	"context"
	"sync"
	"time"
)

type usageKey struct {
	actor string
	month string
}

// MemoryStore is the Repository used when no database is configured.
type MemoryStore struct {
	mu   sync.Mutex
	used map[usageKey]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{used: make(map[usageKey]int)}
}

func (m *MemoryStore) Consume(_ context.Context, actor, month string, _ time.Time, allowance int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := usageKey{actor: actor, month: month}
	if m.used[k] >= allowance {
		return 0, ErrInsufficientTokens
	}
	m.used[k]++
	return m.used[k], nil
}
