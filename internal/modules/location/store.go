// README: Route segment cache backed by Redis.
package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"freightquote/internal/modules/costing"
)

type Store struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{redis: rdb, ttl: ttl}
}

// Get returns cached segments; ok is false on a miss.
func (s *Store) Get(ctx context.Context, origin, destination string) ([]costing.Segment, bool, error) {
	raw, err := s.redis.Get(ctx, cacheKey(origin, destination)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var segs []costing.Segment
	if err := json.Unmarshal(raw, &segs); err != nil {
		return nil, false, fmt.Errorf("decode cached segments: %w", err)
	}
	return segs, true, nil
}

func (s *Store) Set(ctx context.Context, origin, destination string, segs []costing.Segment) error {
	raw, err := json.Marshal(segs)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, cacheKey(origin, destination), raw, s.ttl).Err()
}
