// README: Settings service: active lookup with default bootstrap, versioned creation, history.
package settings

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"freightquote/internal/observability/metrics"
)

// SystemActor is recorded when the service itself creates a version (default bootstrap).
const SystemActor = "system"

type Service struct {
	store  Repository
	logger *zap.Logger
	now    func() time.Time
}

func NewService(store Repository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

// GetActive returns the active settings of scope, persisting the defaults as "1.0"
// when the scope has never been configured.
func (s *Service) GetActive(ctx context.Context, scope string) (*CostSettings, error) {
	scope = normalizeScope(scope)
	if err := ValidateScope(scope); err != nil {
		return nil, err
	}
	cur, err := s.store.Active(ctx, scope)
	if err == nil {
		return cur, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	def := Default(scope)
	s.stamp(def, SystemActor)
	active, err := s.store.EnsureActive(ctx, def)
	if err != nil {
		return nil, err
	}
	if active.ID == def.ID {
		metrics.ObserveSettingsVersion(scope)
		s.logger.Info("default cost settings activated",
			zap.String("scope", scope),
			zap.String("version", active.Version))
	}
	return active, nil
}

// CreateNewVersion validates in and activates it as floor(current)+1.
// Version, Active and the audit fields of in are ignored.
func (s *Service) CreateNewVersion(ctx context.Context, scope string, in CostSettings, actor string) (*CostSettings, error) {
	cs := in.Clone()
	cs.ID = ""
	cs.Scope = normalizeScope(scope)
	if err := ValidateScope(cs.Scope); err != nil {
		return nil, err
	}
	if err := cs.Validate(); err != nil {
		return nil, err
	}
	s.stamp(cs, actorOrSystem(actor))
	if err := s.store.ActivateNext(ctx, cs); err != nil {
		return nil, err
	}
	metrics.ObserveSettingsVersion(cs.Scope)
	s.logger.Info("cost settings version activated",
		zap.String("scope", cs.Scope),
		zap.String("version", cs.Version),
		zap.String("actor", cs.CreatedBy))
	return cs.Clone(), nil
}

func (s *Service) GetByVersion(ctx context.Context, scope, version string) (*CostSettings, error) {
	return s.store.ByVersion(ctx, normalizeScope(scope), version)
}

func (s *Service) GetHistory(ctx context.Context, scope string) ([]*CostSettings, error) {
	return s.store.History(ctx, normalizeScope(scope))
}

func (s *Service) stamp(cs *CostSettings, actor string) {
	now := s.now().UTC()
	cs.Active = false
	cs.Version = ""
	cs.CreatedAt = now
	cs.ModifiedAt = now
	cs.CreatedBy = actor
	cs.ModifiedBy = actor
}

func normalizeScope(scope string) string {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return DefaultScope
	}
	return scope
}

func actorOrSystem(actor string) string {
	if strings.TrimSpace(actor) == "" {
		return SystemActor
	}
	return actor
}
