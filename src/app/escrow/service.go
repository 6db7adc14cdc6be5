package escrow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sandai/arena/src/app/internal/keylock"
	"github.com/sandai/arena/src/domain/escrow"
	"github.com/sandai/arena/src/domain/shared"
)

// ErrHoldsPending is returned while holds from a failed attempt cannot be released.
var ErrHoldsPending = errors.New("earlier stake holds are still pending release")

// Service holds match stakes on the ledger and settles them exactly once.
type Service struct {
	Ledger  escrow.Ledger
	Records escrow.Repository
	Clock   func() time.Time
	Logger  *zap.Logger
	locks   *keylock.Locker
}

// NewService creates a new escrow service.
func NewService(ledger escrow.Ledger, records escrow.Repository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		Ledger:  ledger,
		Records: records,
		Clock:   func() time.Time { return time.Now().UTC() },
		Logger:  logger,
		locks:   keylock.New(),
	}
}

// HoldCommand reserves the same stake from every listed user.
type HoldCommand struct {
	MatchID shared.MatchID
	Users   []shared.UserID
	Amount  shared.Amount
}

// HoldStakes places one ledger hold per user. Either every hold is placed or
// none is: a failure releases whatever was already held. Calling it again for
// a match whose users all hold a live stake is a no-op.
func (s *Service) HoldStakes(ctx context.Context, cmd HoldCommand) (*escrow.Record, error) {
	if err := cmd.MatchID.Validate(); err != nil {
		return nil, err
	}
	if cmd.Amount < 0 {
		return nil, escrow.ErrInvalidAmount
	}
	unlock := s.locks.Lock(string(cmd.MatchID))
	defer unlock()

	rec, err := s.load(ctx, cmd.MatchID)
	if err != nil {
		return nil, err
	}
	if rec.Settled() {
		return nil, escrow.ErrAlreadySettled
	}
	if coversAll(rec, cmd.Users) {
		return rec, nil
	}
	if rec.HeldTotal() > 0 {
		// An earlier rollback left holds behind; finish it before holding again.
		s.rollback(ctx, rec)
		if len(rec.Holds) > 0 {
			return nil, ErrHoldsPending
		}
	}
	rec.Holds = nil

	now := s.Clock()
	if cmd.Amount > 0 {
		for _, user := range cmd.Users {
			id, err := s.Ledger.Hold(ctx, user, cmd.Amount)
			if err != nil {
				s.rollback(ctx, rec)
				return nil, fmt.Errorf("hold stake for %s: %w", user, err)
			}
			rec.Holds = append(rec.Holds, escrow.Hold{
				MatchID:   cmd.MatchID,
				UserID:    user,
				HoldID:    id,
				Amount:    cmd.Amount,
				Status:    escrow.HoldStatusHeld,
				CreatedAt: now,
				UpdatedAt: now,
			})
		}
	}
	rec.UpdatedAt = now
	if err := s.Records.Save(ctx, rec); err != nil {
		s.rollback(ctx, rec)
		return nil, err
	}
	return rec.Clone(), nil
}

// coversAll reports whether every user has a live hold in rec.
func coversAll(rec *escrow.Record, users []shared.UserID) bool {
	if len(users) == 0 {
		return false
	}
	for _, user := range users {
		held := false
		for _, h := range rec.Holds {
			if h.UserID == user && h.Status == escrow.HoldStatusHeld {
				held = true
				break
			}
		}
		if !held {
			return false
		}
	}
	return true
}

// rollback releases every hold in rec. Holds that cannot be released are
// persisted so a later refund can retry them.
func (s *Service) rollback(ctx context.Context, rec *escrow.Record) {
	stuck := false
	for i := range rec.Holds {
		h := &rec.Holds[i]
		if h.Status != escrow.HoldStatusHeld {
			continue
		}
		if err := s.Ledger.Release(ctx, h.HoldID); err != nil && !errors.Is(err, escrow.ErrHoldClosed) {
			stuck = true
			s.Logger.Error("escrow rollback failed",
				zap.String("match_id", string(rec.MatchID)),
				zap.String("hold_id", string(h.HoldID)),
				zap.Error(err))
			continue
		}
		h.Status = escrow.HoldStatusReleased
	}
	if !stuck {
		rec.Holds = nil
		return
	}
	if err := s.Records.Save(ctx, rec); err != nil {
		s.Logger.Error("escrow record save failed after rollback",
			zap.String("match_id", string(rec.MatchID)), zap.Error(err))
	}
}

// Settle moves held funds according to outcome. The first settlement of a
// match is final; later calls return it unchanged whatever outcome they pass.
// A settlement interrupted by a ledger error resumes with its original
// outcome on the next call.
func (s *Service) Settle(ctx context.Context, id shared.MatchID, outcome escrow.Outcome) (escrow.Settlement, error) {
	if err := id.Validate(); err != nil {
		return escrow.Settlement{}, err
	}
	unlock := s.locks.Lock(string(id))
	defer unlock()

	rec, err := s.load(ctx, id)
	if err != nil {
		return escrow.Settlement{}, err
	}
	if rec.Settlement != nil {
		return *rec.Settlement, nil
	}
	if rec.Pending != nil {
		outcome = *rec.Pending
	} else {
		if err := validateOutcome(rec, outcome); err != nil {
			return escrow.Settlement{}, err
		}
		rec.Pending = &outcome
		rec.UpdatedAt = s.Clock()
		if err := s.Records.Save(ctx, rec); err != nil {
			return escrow.Settlement{}, err
		}
	}

	var total shared.Amount
	for i := range rec.Holds {
		h := &rec.Holds[i]
		total += h.Amount
		if h.Status != escrow.HoldStatusHeld {
			continue
		}
		next, err := s.apply(ctx, h, outcome)
		if err != nil {
			return escrow.Settlement{}, fmt.Errorf("settle hold %s: %w", h.HoldID, err)
		}
		h.Status = next
		h.UpdatedAt = s.Clock()
		if err := s.Records.Save(ctx, rec); err != nil {
			return escrow.Settlement{}, err
		}
	}

	now := s.Clock()
	settlement := escrow.Settlement{
		MatchID:   id,
		Kind:      outcome.Kind,
		Winner:    outcome.Winner,
		Total:     total,
		SettledAt: now,
	}
	rec.Settlement = &settlement
	rec.Pending = nil
	rec.UpdatedAt = now
	if err := s.Records.Save(ctx, rec); err != nil {
		return escrow.Settlement{}, err
	}
	s.Logger.Info("escrow settled",
		zap.String("match_id", string(id)),
		zap.String("kind", string(outcome.Kind)),
		zap.String("winner", string(outcome.Winner)),
		zap.Int64("total", int64(total)))
	return settlement, nil
}

func (s *Service) apply(ctx context.Context, h *escrow.Hold, outcome escrow.Outcome) (escrow.HoldStatus, error) {
	var (
		err  error
		next escrow.HoldStatus
	)
	if outcome.Kind == escrow.SettlementPayout {
		next = escrow.HoldStatusTransferred
		err = s.Ledger.Transfer(ctx, h.HoldID, outcome.Winner)
	} else {
		next = escrow.HoldStatusReleased
		err = s.Ledger.Release(ctx, h.HoldID)
	}
	// A closed hold means an earlier attempt moved the funds before its
	// progress was saved.
	if errors.Is(err, escrow.ErrHoldClosed) {
		err = nil
	}
	return next, err
}

func validateOutcome(rec *escrow.Record, o escrow.Outcome) error {
	switch o.Kind {
	case escrow.SettlementPayout:
		if err := o.Winner.Validate(); err != nil {
			return err
		}
		if len(rec.Holds) > 0 && !rec.Stakeholder(o.Winner) {
			return escrow.ErrUnknownWinner
		}
	case escrow.SettlementRefund, escrow.SettlementSplit:
	default:
		return fmt.Errorf("unknown settlement kind %q", o.Kind)
	}
	return nil
}

// Record returns the escrow state of a match.
func (s *Service) Record(ctx context.Context, id shared.MatchID) (*escrow.Record, error) {
	rec, err := s.Records.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Service) load(ctx context.Context, id shared.MatchID) (*escrow.Record, error) {
	rec, err := s.Records.Get(ctx, id)
	if errors.Is(err, escrow.ErrRecordNotFound) {
		now := s.Clock()
		return &escrow.Record{MatchID: id, CreatedAt: now, UpdatedAt: now}, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}
