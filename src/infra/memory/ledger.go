package memory

import (
	"context"
	"sync"

	"github.com/gofrs/uuid/v5"

	"github.com/sandai/arena/src/domain/escrow"
	"github.com/sandai/arena/src/domain/shared"
)

type ledgerHold struct {
	user   shared.UserID
	amount shared.Amount
	closed bool
}

// Ledger is an in-process escrow.Ledger. Balances are available funds; held
// funds live on the hold until it is released or transferred.
type Ledger struct {
	mu       sync.Mutex
	balances map[shared.UserID]shared.Amount
	holds    map[shared.HoldID]*ledgerHold
}

func NewLedger() *Ledger {
	return &Ledger{
		balances: make(map[shared.UserID]shared.Amount),
		holds:    make(map[shared.HoldID]*ledgerHold),
	}
}

// Credit adds funds to an account.
func (l *Ledger) Credit(ctx context.Context, user shared.UserID, amount shared.Amount) error {
	if err := user.Validate(); err != nil {
		return err
	}
	if amount < 0 {
		return escrow.ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.balances[user] += amount
	return nil
}

func (l *Ledger) Hold(ctx context.Context, user shared.UserID, amount shared.Amount) (shared.HoldID, error) {
	if err := user.Validate(); err != nil {
		return "", err
	}
	if amount < 0 {
		return "", escrow.ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balances[user] < amount {
		return "", escrow.ErrInsufficientFunds
	}
	id, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	hid := shared.HoldID(id.String())
	l.balances[user] -= amount
	l.holds[hid] = &ledgerHold{user: user, amount: amount}
	return hid, nil
}

func (l *Ledger) Release(ctx context.Context, id shared.HoldID) error {
	return l.close(id, "")
}

func (l *Ledger) Transfer(ctx context.Context, id shared.HoldID, to shared.UserID) error {
	if err := to.Validate(); err != nil {
		return err
	}
	return l.close(id, to)
}

func (l *Ledger) close(id shared.HoldID, to shared.UserID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	h, ok := l.holds[id]
	if !ok {
		return escrow.ErrHoldNotFound
	}
	if h.closed {
		return escrow.ErrHoldClosed
	}
	h.closed = true
	if to == "" {
		to = h.user
	}
	l.balances[to] += h.amount
	return nil
}

func (l *Ledger) Balance(ctx context.Context, user shared.UserID) (shared.Amount, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.balances[user], nil
}

// Held sums the open holds of user.
func (l *Ledger) Held(user shared.UserID) shared.Amount {
	l.mu.Lock()
	defer l.mu.Unlock()

	var total shared.Amount
	for _, h := range l.holds {
		if h.user == user && !h.closed {
			total += h.amount
		}
	}
	return total
}
