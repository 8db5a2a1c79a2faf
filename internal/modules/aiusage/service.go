package aiusage

import (
	"context"
	"strings"
	"time"
)

// Repository counts generations per actor and month.
type Repository interface {
	// Consume increments the counter of (actor, month) unless it already reached
	// allowance, returning the new count or ErrInsufficientTokens.
	Consume(ctx context.Context, actor, month string, at time.Time, allowance int) (int, error)
}

type Service struct {
	store     Repository
	allowance int
	now       func() time.Time
}

// NewService grants allowance generations per month (DefaultTokens when <= 0).
func NewService(store Repository, allowance int) *Service {
	if allowance <= 0 {
		allowance = DefaultTokens
	}
	return &Service{store: store, allowance: allowance, now: time.Now}
}

// UseToken records one generation for actor in the current month.
func (s *Service) UseToken(ctx context.Context, actor string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInsufficientTokens
	}
	now := s.now().UTC()
	_, err := s.store.Consume(ctx, actor, monthOf(now), now, s.allowance)
	return err
}
