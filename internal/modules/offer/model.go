// README: Offer aggregate, status definitions and the offer history entry.
package offer

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"freightquote/internal/types"
)

type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusActive    Status = "ACTIVE"
	StatusAccepted  Status = "ACCEPTED"
	StatusRejected  Status = "REJECTED"
	StatusExpired   Status = "EXPIRED"
	StatusCancelled Status = "CANCELLED"

	// statusArchived is accepted on input and stored as StatusCancelled.
	statusArchived = "ARCHIVED"
)

var (
	ErrInvalidTransition = fmt.Errorf("%w: invalid status transition", types.ErrValidation)
	ErrInvalidPricing    = fmt.Errorf("%w: invalid offer pricing", types.ErrValidation)
	ErrNotFound          = fmt.Errorf("offer %w", types.ErrNotFound)
	ErrConflict          = fmt.Errorf("offer %w: revision changed", types.ErrConflict)
	ErrVersionNotFound   = fmt.Errorf("offer version %w", types.ErrNotFound)
)

// ParseStatus normalizes case and maps ARCHIVED onto CANCELLED.
func ParseStatus(s string) (Status, error) {
	up := strings.ToUpper(strings.TrimSpace(s))
	if up == statusArchived {
		return StatusCancelled, nil
	}
	st := Status(up)
	if _, ok := AllowedTransitions[st]; ok || st.IsTerminal() {
		return st, nil
	}
	return "", types.Invalid("unknown offer status %q", s)
}

// AllowedTransitions represents the offer state flow as code.
var AllowedTransitions = map[Status][]Status{
	StatusDraft:  {StatusActive, StatusCancelled},
	StatusActive: {StatusAccepted, StatusRejected, StatusExpired, StatusCancelled},
}

// TerminalStatuses have no outgoing transitions.
var TerminalStatuses = []Status{StatusAccepted, StatusRejected, StatusExpired, StatusCancelled}

func (s Status) IsTerminal() bool {
	for _, t := range TerminalStatuses {
		if t == s {
			return true
		}
	}
	return false
}

func CanTransition(from, to Status) bool {
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns a validation error naming both statuses when from -> to is not allowed.
func ValidateTransition(from, to Status) error {
	if CanTransition(from, to) {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s is not permitted", ErrInvalidTransition, from, to)
}

// Offer is a priced quote derived from a final cost.
type Offer struct {
	ID         types.ID        `json:"id"`
	RouteID    types.ID        `json:"route_id"`
	CostID     types.ID        `json:"cost_id"`
	TotalCost  decimal.Decimal `json:"total_cost"`
	Margin     decimal.Decimal `json:"margin"`
	FinalPrice decimal.Decimal `json:"final_price"`
	Currency   string          `json:"currency"`
	Status     Status          `json:"status"`
	Version    string          `json:"version"`
	// Revision is the optimistic concurrency counter, bumped on every update.
	Revision   int             `json:"revision"`
	FunFact    string          `json:"fun_fact,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	CreatedBy  string          `json:"created_by"`
	ModifiedAt time.Time       `json:"modified_at"`
	ModifiedBy string          `json:"modified_by"`
}

func (o *Offer) FinalMoney() types.Money {
	return types.NewMoney(o.FinalPrice, o.Currency)
}

// History is one immutable entry of an offer's audit trail.
type History struct {
	Seq          int64           `json:"seq"`
	OfferID      types.ID        `json:"offer_id"`
	Version      string          `json:"version"`
	Status       Status          `json:"status"`
	Margin       decimal.Decimal `json:"margin"`
	TotalCost    decimal.Decimal `json:"total_cost"`
	FinalPrice   decimal.Decimal `json:"final_price"`
	Currency     string          `json:"currency"`
	ChangedAt    time.Time       `json:"changed_at"`
	ChangedBy    string          `json:"changed_by"`
	ChangeReason string          `json:"change_reason,omitempty"`
}

// Snapshot is the offer state reconstructed at one version.
type Snapshot struct {
	OfferID    types.ID        `json:"offer_id"`
	Version    string          `json:"version"`
	Status     Status          `json:"status"`
	Margin     decimal.Decimal `json:"margin"`
	TotalCost  decimal.Decimal `json:"total_cost"`
	FinalPrice decimal.Decimal `json:"final_price"`
	Currency   string          `json:"currency"`
	ChangedAt  time.Time       `json:"changed_at"`
	ChangedBy  string          `json:"changed_by"`
}
