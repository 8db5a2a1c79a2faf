// README: In-memory settings repository; a single mutex makes every activation swap atomic.
package settings

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"freightquote/internal/types"
)

type MemoryStore struct {
	mu     sync.Mutex
	scopes map[string][]*CostSettings // insertion order == version order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{scopes: make(map[string][]*CostSettings)}
}

func (m *MemoryStore) Active(_ context.Context, scope string) (*CostSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.activeLocked(scope); s != nil {
		return s.Clone(), nil
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ActivateNext(_ context.Context, s *CostSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activateLocked(s)
}

func (m *MemoryStore) EnsureActive(_ context.Context, s *CostSettings) (*CostSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur := m.activeLocked(s.Scope); cur != nil {
		return cur.Clone(), nil
	}
	if err := m.activateLocked(s); err != nil {
		return nil, err
	}
	return s.Clone(), nil
}

func (m *MemoryStore) ByVersion(_ context.Context, scope, version string) (*CostSettings, error) {
	want, err := types.ParseVersion(version)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.scopes[scope] {
		v, err := s.ParsedVersion()
		if err == nil && v.Compare(want) == 0 {
			return s.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) History(_ context.Context, scope string) ([]*CostSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.scopes[scope]
	out := make([]*CostSettings, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		out = append(out, rows[i].Clone())
	}
	return out, nil
}

func (m *MemoryStore) activeLocked(scope string) *CostSettings {
	for _, s := range m.scopes[scope] {
		if s.Active {
			return s
		}
	}
	return nil
}

func (m *MemoryStore) activateLocked(s *CostSettings) error {
	rows := m.scopes[s.Scope]
	var latest *CostSettings
	if len(rows) > 0 {
		latest = rows[len(rows)-1]
	}
	version, err := nextVersion(latest)
	if err != nil {
		return err
	}
	for _, r := range rows {
		if r.Active {
			r.Active = false
			r.ModifiedAt = s.CreatedAt
			r.ModifiedBy = s.CreatedBy
		}
	}
	if s.ID == "" {
		s.ID = types.ID(uuid.NewString())
	}
	s.Version = version
	s.Active = true
	m.scopes[s.Scope] = append(rows, s.Clone())
	return nil
}
