// README: Offer service prices costs into offers and applies validated, revision-checked updates.
package offer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"freightquote/internal/modules/costing"
	"freightquote/internal/observability/metrics"
	"freightquote/internal/types"
)

const (
	collaboratorFunFact = "fun_fact"

	// DefaultFunFact is used whenever the fun-fact provider is missing or fails.
	DefaultFunFact = "Road freight moves roughly three quarters of all inland goods in the EU."

	statusNone = "NONE"
	actorSys   = "system"
)

// Costs is the slice of the costing service offers depend on.
type Costs interface {
	Calculate(ctx context.Context, cmd costing.CalculateCommand) (*costing.Cost, error)
	Get(ctx context.Context, id types.ID) (*costing.Cost, error)
	Finalize(ctx context.Context, id types.ID) (*costing.Cost, *costing.HistoryEntry, error)
}

// FunFactProvider produces a short, non-authoritative text about a route on behalf of actor.
type FunFactProvider interface {
	FunFact(ctx context.Context, actor string, countries []string, distanceKm decimal.Decimal) (string, error)
}

type Service struct {
	store    Repository
	costs    Costs
	funFacts FunFactProvider
	logger   *zap.Logger
	now      func() time.Time
}

// NewService wires the offer service. funFacts may be nil.
func NewService(store Repository, costs Costs, funFacts FunFactProvider, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, costs: costs, funFacts: funFacts, logger: logger, now: time.Now}
}

type CreateCommand struct {
	// CostID prices an existing cost; otherwise Calculate computes a new one.
	CostID    types.ID
	Calculate *costing.CalculateCommand
	Margin    decimal.Decimal
	// FinalPrice, when set, must agree with Margin under the pricing invariant.
	FinalPrice *decimal.Decimal
	Actor      string
	Reason     string
}

type UpdateCommand struct {
	OfferID types.ID
	Margin  *decimal.Decimal
	Status  *Status
	// ExpectedRevision rejects the update with ErrConflict when the stored revision differs.
	ExpectedRevision *int
	Actor            string
	Reason           string
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Offer, error) {
	if cmd.Margin.IsNegative() {
		return nil, fmt.Errorf("%w: margin must be >= 0, got %s", ErrInvalidPricing, cmd.Margin)
	}
	cost, err := s.resolveCost(ctx, cmd)
	if err != nil {
		return nil, err
	}
	total := cost.Breakdown.TotalCost
	final, err := PriceOffer(total, cmd.Margin)
	if err != nil {
		return nil, err
	}
	if cmd.FinalPrice != nil {
		if err := ValidatePricing(total, cmd.Margin, *cmd.FinalPrice); err != nil {
			return nil, err
		}
	}
	if err := ValidatePricing(total, cmd.Margin, final); err != nil {
		return nil, err
	}

	now := s.clock()
	actor := actorOr(cmd.Actor)
	o := &Offer{
		ID:         types.ID(uuid.NewString()),
		RouteID:    cost.RouteID,
		CostID:     cost.ID,
		TotalCost:  total,
		Margin:     cmd.Margin,
		FinalPrice: final,
		Currency:   cost.Breakdown.Currency,
		Status:     StatusDraft,
		Version:    types.InitialVersion.String(),
		Revision:   0,
		FunFact:    s.funFact(ctx, actor, cost),
		CreatedAt:  now,
		CreatedBy:  actor,
		ModifiedAt: now,
		ModifiedBy: actor,
	}
	reason := cmd.Reason
	if reason == "" {
		reason = "created"
	}
	if err := s.store.Create(ctx, o, HistoryFor(o, reason)); err != nil {
		return nil, err
	}
	// The cost is finalized only once an offer references it. Finalize is idempotent,
	// so a failure here is repaired by finalizing the cost again.
	if _, _, err := s.costs.Finalize(ctx, cost.ID); err != nil {
		s.logger.Error("cost finalization after offer create failed",
			zap.String("offer_id", string(o.ID)),
			zap.String("cost_id", string(cost.ID)),
			zap.Error(err))
		return nil, fmt.Errorf("offer %s created, finalize cost %s: %w", o.ID, cost.ID, err)
	}
	metrics.ObserveOfferTransition(statusNone, string(StatusDraft))
	s.logger.Info("offer created",
		zap.String("offer_id", string(o.ID)),
		zap.String("cost_id", string(o.CostID)),
		zap.String("total_cost", o.TotalCost.String()),
		zap.String("final_price", o.FinalPrice.String()),
		zap.String("actor", actor))
	return o, nil
}

func (s *Service) resolveCost(ctx context.Context, cmd CreateCommand) (*costing.Cost, error) {
	switch {
	case cmd.CostID != "":
		return s.costs.Get(ctx, cmd.CostID)
	case cmd.Calculate != nil:
		return s.costs.Calculate(ctx, *cmd.Calculate)
	default:
		return nil, types.Invalid("either a cost id or a route to calculate is required")
	}
}

// Update applies a margin and/or status change to the persisted offer. Every
// successful call appends exactly one history entry and bumps the minor version.
func (s *Service) Update(ctx context.Context, cmd UpdateCommand) (*Offer, error) {
	cur, err := s.store.Get(ctx, cmd.OfferID)
	if err != nil {
		return nil, err
	}
	if cmd.ExpectedRevision != nil && *cmd.ExpectedRevision != cur.Revision {
		metrics.ObserveOfferConflict()
		return nil, fmt.Errorf("%w: expected revision %d, stored %d", ErrConflict, *cmd.ExpectedRevision, cur.Revision)
	}

	next := *cur
	var changes []string
	if cmd.Margin != nil && !cmd.Margin.Equal(cur.Margin) {
		if cur.Status != StatusDraft && cur.Status != StatusActive {
			return nil, fmt.Errorf("%w: margin cannot change in status %s", ErrInvalidPricing, cur.Status)
		}
		final, err := PriceOffer(cur.TotalCost, *cmd.Margin)
		if err != nil {
			return nil, err
		}
		if err := ValidatePricing(cur.TotalCost, *cmd.Margin, final); err != nil {
			return nil, err
		}
		next.Margin = *cmd.Margin
		next.FinalPrice = final
		changes = append(changes, fmt.Sprintf("margin %s -> %s", cur.Margin, next.Margin))
	}
	// Terminal offers reject every status request, including a repeat of the current one.
	if cmd.Status != nil && (*cmd.Status != cur.Status || cur.Status.IsTerminal()) {
		if err := ValidateTransition(cur.Status, *cmd.Status); err != nil {
			return nil, err
		}
		next.Status = *cmd.Status
		changes = append(changes, fmt.Sprintf("status %s -> %s", cur.Status, next.Status))
	}

	v, err := types.ParseVersion(cur.Version)
	if err != nil {
		return nil, err
	}
	next.Version = v.NextMinor().String()
	next.Revision = cur.Revision + 1
	next.ModifiedAt = s.after(cur.ModifiedAt)
	next.ModifiedBy = actorOr(cmd.Actor)

	reason := cmd.Reason
	if reason == "" {
		reason = strings.Join(changes, "; ")
	}
	if reason == "" {
		reason = "updated"
	}
	ok, err := s.store.Update(ctx, &next, cur.Revision, cur.Status, HistoryFor(&next, reason))
	if err != nil {
		return nil, err
	}
	if !ok {
		metrics.ObserveOfferConflict()
		return nil, fmt.Errorf("%w: offer %s changed concurrently", ErrConflict, cur.ID)
	}
	if next.Status != cur.Status {
		metrics.ObserveOfferTransition(string(cur.Status), string(next.Status))
	}
	s.logger.Info("offer updated",
		zap.String("offer_id", string(next.ID)),
		zap.String("version", next.Version),
		zap.String("status", string(next.Status)),
		zap.String("reason", reason),
		zap.String("actor", next.ModifiedBy))
	return &next, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Offer, error) {
	return s.store.Get(ctx, id)
}

// GetHistory returns every entry of the offer, newest first.
func (s *Service) GetHistory(ctx context.Context, id types.ID) ([]*History, error) {
	if _, err := s.store.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.store.History(ctx, id)
}

// CompareVersions replays the history up to each requested version and returns both snapshots.
func (s *Service) CompareVersions(ctx context.Context, id types.ID, v1, v2 string) (*Snapshot, *Snapshot, error) {
	a, err := types.ParseVersion(v1)
	if err != nil {
		return nil, nil, err
	}
	b, err := types.ParseVersion(v2)
	if err != nil {
		return nil, nil, err
	}
	entries, err := s.GetHistory(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	// Replay runs oldest first.
	sort.Slice(entries, func(i, j int) bool { return entries[i].Seq < entries[j].Seq })

	first, err := replay(entries, a)
	if err != nil {
		return nil, nil, err
	}
	second, err := replay(entries, b)
	if err != nil {
		return nil, nil, err
	}
	return first, second, nil
}

func replay(entries []*History, want types.Version) (*Snapshot, error) {
	var snap *Snapshot
	for _, h := range entries {
		v, err := types.ParseVersion(h.Version)
		if err != nil {
			return nil, err
		}
		if v.Compare(want) > 0 {
			break
		}
		snap = &Snapshot{
			OfferID:    h.OfferID,
			Version:    h.Version,
			Status:     h.Status,
			Margin:     h.Margin,
			TotalCost:  h.TotalCost,
			FinalPrice: h.FinalPrice,
			Currency:   h.Currency,
			ChangedAt:  h.ChangedAt,
			ChangedBy:  h.ChangedBy,
		}
	}
	if snap == nil || snap.Version != want.String() {
		return nil, fmt.Errorf("%w: %s", ErrVersionNotFound, want)
	}
	return snap, nil
}

// HistoryFor builds the history entry describing o's current state.
func HistoryFor(o *Offer, reason string) *History {
	return &History{
		OfferID:      o.ID,
		Version:      o.Version,
		Status:       o.Status,
		Margin:       o.Margin,
		TotalCost:    o.TotalCost,
		FinalPrice:   o.FinalPrice,
		Currency:     o.Currency,
		ChangedAt:    o.ModifiedAt,
		ChangedBy:    o.ModifiedBy,
		ChangeReason: reason,
	}
}

func (s *Service) funFact(ctx context.Context, actor string, cost *costing.Cost) string {
	if s.funFacts == nil {
		return DefaultFunFact
	}
	var (
		countries []string
		distance  decimal.Decimal
	)
	seen := make(map[string]bool)
	for _, seg := range cost.Segments {
		distance = distance.Add(seg.DistanceKm)
		if !seen[seg.Country] {
			seen[seg.Country] = true
			countries = append(countries, seg.Country)
		}
	}
	fact, err := s.funFacts.FunFact(ctx, actor, countries, distance)
	if err != nil || strings.TrimSpace(fact) == "" {
		metrics.ObserveCollaborator(collaboratorFunFact, metrics.ResultFallback)
		s.logger.Warn("fun fact unavailable, using default",
			zap.Strings("countries", countries),
			zap.Bool("fallback", true),
			zap.Error(err))
		return DefaultFunFact
	}
	metrics.ObserveCollaborator(collaboratorFunFact, metrics.ResultSuccess)
	return strings.TrimSpace(fact)
}

// clock returns the current time at the precision the stores keep.
func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// after returns a timestamp strictly later than prev.
func (s *Service) after(prev time.Time) time.Time {
	now := s.clock()
	if !now.After(prev) {
		return prev.Add(time.Microsecond)
	}
	return now
}

func actorOr(actor string) string {
	if strings.TrimSpace(actor) == "" {
		return actorSys
	}
	return actor
}
