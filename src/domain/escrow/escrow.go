package escrow

import (
	"context"
	"time"

	"github.com/sandai/arena/src/domain/shared"
)

// Ledger is the external balance authority. Every balance mutation in the
// system goes through these primitives.
type Ledger interface {
	Hold(ctx context.Context, user shared.UserID, amount shared.Amount) (shared.HoldID, error)
	Release(ctx context.Context, id shared.HoldID) error
	Transfer(ctx context.Context, id shared.HoldID, to shared.UserID) error
	Balance(ctx context.Context, user shared.UserID) (shared.Amount, error)
}

// HoldStatus tracks what happened to a single ledger hold.
type HoldStatus string

const (
	HoldStatusHeld        HoldStatus = "held"
	HoldStatusReleased    HoldStatus = "released"
	HoldStatusTransferred HoldStatus = "transferred"
)

// Hold is one participant's stake in a match.
type Hold struct {
	MatchID   shared.MatchID
	UserID    shared.UserID
	HoldID    shared.HoldID
	Amount    shared.Amount
	Status    HoldStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SettlementKind is how held funds leave escrow.
type SettlementKind string

const (
	SettlementPayout SettlementKind = "payout"
	SettlementRefund SettlementKind = "refund"
	SettlementSplit  SettlementKind = "split"
)

// Outcome instructs the escrow manager how to settle a match.
type Outcome struct {
	Kind   SettlementKind
	Winner shared.UserID
}

func Payout(winner shared.UserID) Outcome {
	return Outcome{Kind: SettlementPayout, Winner: winner}
}

func Refund() Outcome {
	return Outcome{Kind: SettlementRefund}
}

func Split() Outcome {
	return Outcome{Kind: SettlementSplit}
}

// Settlement is the immutable result of settling a match.
type Settlement struct {
	MatchID   shared.MatchID
	Kind      SettlementKind
	Winner    shared.UserID
	Total     shared.Amount
	SettledAt time.Time
}

// Record is the escrow state of one match.
type Record struct {
	MatchID    shared.MatchID
	Holds      []Hold
	Pending    *Outcome
	Settlement *Settlement
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// HeldTotal sums the holds that still reserve funds.
func (r *Record) HeldTotal() shared.Amount {
	var total shared.Amount
	for _, h := range r.Holds {
		if h.Status == HoldStatusHeld {
			total += h.Amount
		}
	}
	return total
}

// Stakeholder reports whether the user owns one of the record's holds.
func (r *Record) Stakeholder(user shared.UserID) bool {
	for _, h := range r.Holds {
		if h.UserID == user {
			return true
		}
	}
	return false
}

func (r *Record) Settled() bool {
	return r.Settlement != nil
}

// Clone returns a deep copy safe to hand to other goroutines.
func (r *Record) Clone() *Record {
	out := *r
	out.Holds = append([]Hold(nil), r.Holds...)
	if r.Pending != nil {
		p := *r.Pending
		out.Pending = &p
	}
	if r.Settlement != nil {
		s := *r.Settlement
		out.Settlement = &s
	}
	return &out
}

// Repository persists escrow records.
type Repository interface {
	Get(ctx context.Context, id shared.MatchID) (*Record, error)
	Save(ctx context.Context, record *Record) error
}
