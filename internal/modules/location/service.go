// README: Location service resolves origin/destination into per-country route segments, cached in Redis.
package location

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"freightquote/internal/modules/costing"
)

var ErrNoSegments = errors.New("route has no segments")

// Router computes per-country segments for a route (Google Maps in production).
type Router interface {
	RouteSegments(ctx context.Context, origin, destination string) ([]costing.Segment, error)
}

// SegmentCache is an optional read-through cache in front of the Router.
type SegmentCache interface {
	Get(ctx context.Context, origin, destination string) ([]costing.Segment, bool, error)
	Set(ctx context.Context, origin, destination string, segs []costing.Segment) error
}

type Service struct {
	router  Router
	cache   SegmentCache
	timeout time.Duration
	logger  *zap.Logger
}

// NewService wires the service. cache may be nil; timeout <= 0 disables the lookup deadline.
func NewService(router Router, cache SegmentCache, timeout time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{router: router, cache: cache, timeout: timeout, logger: logger}
}

// Segments implements costing.RouteResolver. Cache failures are logged and
// bypassed; router failures and timeouts are returned to the caller.
func (s *Service) Segments(ctx context.Context, origin, destination string) ([]costing.Segment, error) {
	if s.cache != nil {
		segs, ok, err := s.cache.Get(ctx, origin, destination)
		switch {
		case err != nil:
			s.logger.Warn("segment cache read failed", zap.Error(err))
		case ok:
			return segs, nil
		}
	}

	lookupCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		lookupCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	segs, err := s.router.RouteSegments(lookupCtx, origin, destination)
	if err != nil {
		return nil, fmt.Errorf("route %q -> %q: %w", origin, destination, err)
	}
	if len(segs) == 0 {
		return nil, ErrNoSegments
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, origin, destination, segs); err != nil {
			s.logger.Warn("segment cache write failed", zap.Error(err))
		}
	}
	return segs, nil
}
