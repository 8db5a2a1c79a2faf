// README: Cost and cost-history persistence on PostgreSQL; history rows are insert-only.
package costing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"freightquote/internal/types"
)

// Repository is the persistence collaborator for costs and their history.
type Repository interface {
	SaveCost(ctx context.Context, c *Cost) error
	GetCost(ctx context.Context, id types.ID) (*Cost, error)
	// FinalizeWithHistory flips is_final and inserts e as one write, assigning e.Seq.
	// It reports false, writing nothing, when the cost was already final.
	FinalizeWithHistory(ctx context.Context, id types.ID, at time.Time, e *HistoryEntry) (bool, error)
	// AppendHistory inserts e and assigns e.Seq.
	AppendHistory(ctx context.Context, e *HistoryEntry) error
	// History lists entries of a route, newest first.
	History(ctx context.Context, routeID types.ID) ([]*HistoryEntry, error)
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) SaveCost(ctx context.Context, c *Cost) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal cost: %w", err)
	}
	_, err = s.db.Exec(ctx, `
        INSERT INTO costs (
            id, route_id, settings_scope, settings_version, method, total_cost, currency,
            payload, settings_snapshot, calculated_at, is_final, finalized_at
        ) VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9, $10, $11, $12)`,
		string(c.ID), string(c.RouteID), c.SettingsScope, c.SettingsVersion, string(c.Method),
		c.Breakdown.TotalCost.String(), c.Breakdown.Currency,
		payload, []byte(c.settingsSnapshot), c.CalculatedAt, c.IsFinal, c.FinalizedAt,
	)
	return err
}

func (s *Store) GetCost(ctx context.Context, id types.ID) (*Cost, error) {
	var (
		payload, snapshot []byte
		isFinal           bool
		finalizedAt       *time.Time
	)
	err := s.db.QueryRow(ctx, `
        SELECT payload, settings_snapshot, is_final, finalized_at
        FROM costs
        WHERE id = $1`, string(id),
	).Scan(&payload, &snapshot, &isFinal, &finalizedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var c Cost
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil, fmt.Errorf("decode cost %s: %w", id, err)
	}
	c.IsFinal = isFinal
	c.FinalizedAt = finalizedAt
	c.settingsSnapshot = snapshot
	return &c, nil
}

// rowQuerier is satisfied by both the pool and a transaction.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *Store) FinalizeWithHistory(ctx context.Context, id types.ID, at time.Time, e *HistoryEntry) (bool, error) {
	finalized := false
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
            UPDATE costs
            SET is_final = TRUE, finalized_at = $2
            WHERE id = $1 AND NOT is_final`,
			string(id), at,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM costs WHERE id = $1)`, string(id)).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return ErrNotFound
			}
			return nil
		}
		if err := insertHistory(ctx, tx, e); err != nil {
			return fmt.Errorf("append cost history: %w", err)
		}
		finalized = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return finalized, nil
}

func (s *Store) AppendHistory(ctx context.Context, e *HistoryEntry) error {
	return insertHistory(ctx, s.db, e)
}

func insertHistory(ctx context.Context, q rowQuerier, e *HistoryEntry) error {
	components, err := json.Marshal(e.Components)
	if err != nil {
		return fmt.Errorf("marshal components: %w", err)
	}
	return q.QueryRow(ctx, `
        INSERT INTO cost_history (
            id, route_id, cost_id, calculation_date, total_cost, currency, method,
            settings_scope, settings_version, components, settings_snapshot, recorded_at
        ) VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10, $11, $12)
        RETURNING seq`,
		string(e.ID), string(e.RouteID), string(e.CostID), e.CalculationDate,
		e.TotalCost.String(), e.Currency, string(e.Method),
		e.SettingsScope, e.SettingsVersion, components, []byte(e.SettingsSnapshot), e.RecordedAt,
	).Scan(&e.Seq)
}

func (s *Store) History(ctx context.Context, routeID types.ID) ([]*HistoryEntry, error) {
	rows, err := s.db.Query(ctx, `
        SELECT seq, id, route_id, cost_id, calculation_date, total_cost::text, currency, method,
               settings_scope, settings_version, components, settings_snapshot, recorded_at
        FROM cost_history
        WHERE route_id = $1
        ORDER BY seq DESC`, string(routeID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*HistoryEntry
	for rows.Next() {
		var (
			e                        HistoryEntry
			id, route, costID        string
			total, method            string
			components, snapshotJSON []byte
		)
		if err := rows.Scan(&e.Seq, &id, &route, &costID, &e.CalculationDate, &total, &e.Currency, &method,
			&e.SettingsScope, &e.SettingsVersion, &components, &snapshotJSON, &e.RecordedAt); err != nil {
			return nil, err
		}
		e.ID = types.ID(id)
		e.RouteID = types.ID(route)
		e.CostID = types.ID(costID)
		e.Method = Method(method)
		if e.TotalCost, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("decode total of history %s: %w", id, err)
		}
		if err := json.Unmarshal(components, &e.Components); err != nil {
			return nil, fmt.Errorf("decode components of history %s: %w", id, err)
		}
		e.SettingsSnapshot = snapshotJSON
		out = append(out, &e)
	}
	return out, rows.Err()
}
