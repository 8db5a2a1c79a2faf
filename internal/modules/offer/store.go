// README: Offer store backed by PostgreSQL; each write and its history entry share one transaction.
package offer

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"freightquote/internal/types"
)

// Repository is the persistence collaborator for offers and their history.
type Repository interface {
	// Create inserts the offer together with its first history entry.
	Create(ctx context.Context, o *Offer, h *History) error
	Get(ctx context.Context, id types.ID) (*Offer, error)
	// Update writes o only if the stored row still has prevRevision and prevStatus,
	// appending h in the same unit. It reports false on a lost race.
	Update(ctx context.Context, o *Offer, prevRevision int, prevStatus Status, h *History) (bool, error)
	// History lists entries of an offer, newest first.
	History(ctx context.Context, offerID types.ID) ([]*History, error)
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, o *Offer, h *History) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
            INSERT INTO offers (
                id, route_id, cost_id, total_cost, margin, final_price, currency,
                status, version, revision, fun_fact,
                created_at, created_by, modified_at, modified_by
            ) VALUES (
                $1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7,
                $8, $9, $10, $11,
                $12, $13, $14, $15
            )`,
			string(o.ID), string(o.RouteID), string(o.CostID),
			o.TotalCost.String(), o.Margin.String(), o.FinalPrice.String(), o.Currency,
			string(o.Status), o.Version, o.Revision, o.FunFact,
			o.CreatedAt, o.CreatedBy, o.ModifiedAt, o.ModifiedBy,
		)
		if err != nil {
			return err
		}
		return appendHistory(ctx, tx, h)
	})
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Offer, error) {
	row := s.db.QueryRow(ctx, `
        SELECT id, route_id, cost_id, total_cost::text, margin::text, final_price::text, currency,
               status, version, revision, fun_fact,
               created_at, created_by, modified_at, modified_by
        FROM offers
        WHERE id = $1`, string(id),
	)

	var (
		o                         Offer
		oid, routeID, costID      string
		total, margin, finalPrice string
		status                    string
	)
	err := row.Scan(
		&oid, &routeID, &costID, &total, &margin, &finalPrice, &o.Currency,
		&status, &o.Version, &o.Revision, &o.FunFact,
		&o.CreatedAt, &o.CreatedBy, &o.ModifiedAt, &o.ModifiedBy,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	o.ID = types.ID(oid)
	o.RouteID = types.ID(routeID)
	o.CostID = types.ID(costID)
	o.Status = Status(status)
	if o.TotalCost, o.Margin, o.FinalPrice, err = parseAmounts(total, margin, finalPrice); err != nil {
		return nil, fmt.Errorf("decode offer %s: %w", oid, err)
	}
	return &o, nil
}

func (s *Store) Update(ctx context.Context, o *Offer, prevRevision int, prevStatus Status, h *History) (bool, error) {
	var updated bool
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
            UPDATE offers
            SET margin = $1::numeric,
                final_price = $2::numeric,
                status = $3,
                version = $4,
                revision = $5,
                modified_at = $6,
                modified_by = $7
            WHERE id = $8 AND revision = $9 AND status = $10`,
			o.Margin.String(), o.FinalPrice.String(), string(o.Status), o.Version, o.Revision,
			o.ModifiedAt, o.ModifiedBy,
			string(o.ID), prevRevision, string(prevStatus),
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() != 1 {
			return nil
		}
		updated = true
		return appendHistory(ctx, tx, h)
	})
	if err != nil {
		return false, err
	}
	return updated, nil
}

func (s *Store) History(ctx context.Context, offerID types.ID) ([]*History, error) {
	rows, err := s.db.Query(ctx, `
        SELECT seq, offer_id, version, status, margin::text, total_cost::text, final_price::text,
               currency, changed_at, changed_by, change_reason
        FROM offer_history
        WHERE offer_id = $1
        ORDER BY seq DESC`, string(offerID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*History
	for rows.Next() {
		var (
			h                         History
			oid, status               string
			margin, total, finalPrice string
		)
		if err := rows.Scan(&h.Seq, &oid, &h.Version, &status, &margin, &total, &finalPrice,
			&h.Currency, &h.ChangedAt, &h.ChangedBy, &h.ChangeReason); err != nil {
			return nil, err
		}
		h.OfferID = types.ID(oid)
		h.Status = Status(status)
		if h.TotalCost, h.Margin, h.FinalPrice, err = parseAmounts(total, margin, finalPrice); err != nil {
			return nil, fmt.Errorf("decode offer history %d: %w", h.Seq, err)
		}
		out = append(out, &h)
	}
	return out, rows.Err()
}

func appendHistory(ctx context.Context, tx pgx.Tx, h *History) error {
	return tx.QueryRow(ctx, `
        INSERT INTO offer_history (
            offer_id, version, status, margin, total_cost, final_price, currency,
            changed_at, changed_by, change_reason
        ) VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7, $8, $9, $10)
        RETURNING seq`,
		string(h.OfferID), h.Version, string(h.Status),
		h.Margin.String(), h.TotalCost.String(), h.FinalPrice.String(), h.Currency,
		h.ChangedAt, h.ChangedBy, h.ChangeReason,
	).Scan(&h.Seq)
}

func parseAmounts(total, margin, final string) (t, m, f decimal.Decimal, err error) {
	if t, err = decimal.NewFromString(total); err != nil {
		return
	}
	if m, err = decimal.NewFromString(margin); err != nil {
		return
	}
	f, err = decimal.NewFromString(final)
	return
}
