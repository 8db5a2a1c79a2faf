// README: Usage counters on PostgreSQL; one upsert both checks and increments the monthly count.
package aiusage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Consume(ctx context.Context, actor, month string, at time.Time, allowance int) (int, error) {
	if allowance <= 0 {
		return 0, ErrInsufficientTokens
	}
	var used int
	err := s.db.QueryRow(ctx, `
        INSERT INTO ai_usage (actor, month, used, updated_at)
        VALUES ($1, $2, 1, $3)
        ON CONFLICT (actor, month) DO UPDATE
        SET used = ai_usage.used + 1, updated_at = EXCLUDED.updated_at
        WHERE ai_usage.used < $4
        RETURNING used`,
		actor, month, at, allowance,
	).Scan(&used)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrInsufficientTokens
	}
	if err != nil {
		return 0, err
	}
	return used, nil
}
