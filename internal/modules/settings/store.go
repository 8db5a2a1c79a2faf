// README: Settings store backed by PostgreSQL; activation swaps run in one transaction under a per-scope advisory lock.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"freightquote/internal/types"
)

// Repository is the persistence collaborator for cost settings.
type Repository interface {
	// Active returns the active version of scope or ErrNotFound.
	Active(ctx context.Context, scope string) (*CostSettings, error)
	// ActivateNext assigns the next version to s, deactivates the current active
	// version and stores s as active, all as one atomic unit.
	ActivateNext(ctx context.Context, s *CostSettings) error
	// EnsureActive stores s as the next version only if scope has no active version,
	// and returns whichever version is active afterwards.
	EnsureActive(ctx context.Context, s *CostSettings) (*CostSettings, error)
	ByVersion(ctx context.Context, scope, version string) (*CostSettings, error)
	// History lists every version of scope, newest first.
	History(ctx context.Context, scope string) ([]*CostSettings, error)
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const selectColumns = `
    SELECT id, scope, version, active, payload, created_at, created_by, modified_at, modified_by
    FROM cost_settings`

func (s *Store) Active(ctx context.Context, scope string) (*CostSettings, error) {
	row := s.db.QueryRow(ctx, selectColumns+`
    WHERE scope = $1 AND active`, scope)
	return scanSettings(row)
}

func (s *Store) ActivateNext(ctx context.Context, cs *CostSettings) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if err := lockScope(ctx, tx, cs.Scope); err != nil {
			return err
		}
		return activateInTx(ctx, tx, cs)
	})
}

func (s *Store) EnsureActive(ctx context.Context, cs *CostSettings) (*CostSettings, error) {
	var out *CostSettings
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if err := lockScope(ctx, tx, cs.Scope); err != nil {
			return err
		}
		cur, err := scanSettings(tx.QueryRow(ctx, selectColumns+`
    WHERE scope = $1 AND active`, cs.Scope))
		if err == nil {
			out = cur
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		if err := activateInTx(ctx, tx, cs); err != nil {
			return err
		}
		out = cs.Clone()
		return nil
	})
	return out, err
}

func (s *Store) ByVersion(ctx context.Context, scope, version string) (*CostSettings, error) {
	v, err := types.ParseVersion(version)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRow(ctx, selectColumns+`
    WHERE scope = $1 AND version_major = $2 AND version_minor = $3`, scope, v.Major, v.Minor)
	return scanSettings(row)
}

func (s *Store) History(ctx context.Context, scope string) ([]*CostSettings, error) {
	rows, err := s.db.Query(ctx, selectColumns+`
    WHERE scope = $1
    ORDER BY version_major DESC, version_minor DESC`, scope)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*CostSettings
	for rows.Next() {
		cs, err := scanSettings(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

func lockScope(ctx context.Context, tx pgx.Tx, scope string) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('cost_settings:' || $1))`, scope)
	return err
}

func activateInTx(ctx context.Context, tx pgx.Tx, cs *CostSettings) error {
	var latest *CostSettings
	row := tx.QueryRow(ctx, selectColumns+`
    WHERE scope = $1
    ORDER BY version_major DESC, version_minor DESC
    LIMIT 1`, cs.Scope)
	cur, err := scanSettings(row)
	switch {
	case err == nil:
		latest = cur
	case !errors.Is(err, ErrNotFound):
		return err
	}

	version, err := nextVersion(latest)
	if err != nil {
		return err
	}
	v, _ := types.ParseVersion(version)

	if _, err := tx.Exec(ctx, `
        UPDATE cost_settings
        SET active = FALSE, modified_at = $2, modified_by = $3
        WHERE scope = $1 AND active`,
		cs.Scope, cs.CreatedAt, cs.CreatedBy,
	); err != nil {
		return err
	}

	if cs.ID == "" {
		cs.ID = types.ID(uuid.NewString())
	}
	cs.Version = version
	cs.Active = true
	payload, err := json.Marshal(cs)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	_, err = tx.Exec(ctx, `
        INSERT INTO cost_settings (
            id, scope, version, version_major, version_minor, active, payload,
            created_at, created_by, modified_at, modified_by
        ) VALUES ($1, $2, $3, $4, $5, TRUE, $6, $7, $8, $9, $10)`,
		string(cs.ID), cs.Scope, cs.Version, v.Major, v.Minor, payload,
		cs.CreatedAt, cs.CreatedBy, cs.ModifiedAt, cs.ModifiedBy,
	)
	return err
}

func scanSettings(row pgx.Row) (*CostSettings, error) {
	var (
		id, scope, version    string
		active                bool
		payload               []byte
		createdAt, modifiedAt time.Time
		createdBy, modifiedBy string
	)
	err := row.Scan(&id, &scope, &version, &active, &payload, &createdAt, &createdBy, &modifiedAt, &modifiedBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cs CostSettings
	if err := json.Unmarshal(payload, &cs); err != nil {
		return nil, fmt.Errorf("decode settings %s: %w", id, err)
	}
	// Row columns are authoritative over the payload for mutable fields.
	cs.ID = types.ID(id)
	cs.Scope = scope
	cs.Version = version
	cs.Active = active
	cs.CreatedAt = createdAt
	cs.CreatedBy = createdBy
	cs.ModifiedAt = modifiedAt
	cs.ModifiedBy = modifiedBy
	return &cs, nil
}
