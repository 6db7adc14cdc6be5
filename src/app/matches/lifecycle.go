package matches

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	appescrow "github.com/sandai/arena/src/app/escrow"
	"github.com/sandai/arena/src/domain/escrow"
	"github.com/sandai/arena/src/domain/match"
	"github.com/sandai/arena/src/domain/shared"
	"github.com/sandai/arena/src/domain/verification"
)

// errNotDue skips a sweep candidate whose deadline moved.
var errNotDue = errors.New("match not due")

type mutation func(ctx context.Context, m *match.Match, now time.Time, fx *effects) error

// mutate loads id on its shard, applies fn and saves the result. Nothing is
// saved when fn fails.
func (e *Engine) mutate(ctx context.Context, id shared.MatchID, fn mutation) (*match.Match, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	return e.do(ctx, id, func(ctx context.Context, fx *effects) (*match.Match, error) {
		m, err := e.Repo.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		from := m.State
		if err := fn(ctx, m, e.Clock(), fx); err != nil {
			return nil, err
		}
		if err := e.Repo.Save(ctx, m); err != nil {
			return nil, err
		}
		fx.record(from, m)
		return m.Clone(), nil
	})
}

// StartMatch records that user is ready to play.
func (e *Engine) StartMatch(ctx context.Context, id shared.MatchID, user shared.UserID) (*match.Match, error) {
	return e.mutate(ctx, id, func(_ context.Context, m *match.Match, now time.Time, _ *effects) error {
		return m.Start(user, now)
	})
}

// SignalEnd records that user finished playing.
func (e *Engine) SignalEnd(ctx context.Context, id shared.MatchID, user shared.UserID) (*match.Match, error) {
	return e.mutate(ctx, id, func(ctx context.Context, m *match.Match, now time.Time, fx *effects) error {
		if err := m.SignalEnd(user, now); err != nil {
			return err
		}
		if m.State == match.StateVerifying && m.BothClaimed() {
			e.resolve(ctx, m, now, fx)
		}
		return nil
	})
}

// SubmitCommand is a participant's result claim.
type SubmitCommand struct {
	MatchID     shared.MatchID
	UserID      shared.UserID
	Winner      shared.UserID
	Score       match.Score
	EvidenceRef string
}

// SubmitResult stores a claim and resolves the match once both are in.
func (e *Engine) SubmitResult(ctx context.Context, cmd SubmitCommand) (*match.Match, error) {
	return e.mutate(ctx, cmd.MatchID, func(ctx context.Context, m *match.Match, now time.Time, fx *effects) error {
		claim := match.Claim{
			Participant: cmd.UserID,
			Winner:      cmd.Winner,
			Score:       cmd.Score,
			EvidenceRef: cmd.EvidenceRef,
		}
		if err := m.Submit(claim, now); err != nil {
			return err
		}
		if m.State == match.StateVerifying && m.BothClaimed() {
			e.resolve(ctx, m, now, fx)
		}
		return nil
	})
}

// Forfeit concedes the match to the opponent, who receives the pot.
func (e *Engine) Forfeit(ctx context.Context, id shared.MatchID, user shared.UserID) (*match.Match, error) {
	return e.mutate(ctx, id, func(ctx context.Context, m *match.Match, now time.Time, fx *effects) error {
		winner, err := m.ForfeitWinner(user)
		if err != nil {
			return err
		}
		if err := e.settle(ctx, m, escrow.Payout(winner), fx); err != nil {
			return err
		}
		return m.Void(match.Outcome{Kind: match.OutcomeWinner, Winner: winner, Reason: match.ReasonForfeit}, now)
	})
}

// AdjudicateCommand is an operator's decision on a disputed match.
type AdjudicateCommand struct {
	MatchID shared.MatchID
	Kind    match.OutcomeKind
	Winner  shared.UserID
	Score   *match.Score
}

// Adjudicate settles a disputed match by operator decision.
func (e *Engine) Adjudicate(ctx context.Context, cmd AdjudicateCommand) (*match.Match, error) {
	return e.mutate(ctx, cmd.MatchID, func(ctx context.Context, m *match.Match, now time.Time, fx *effects) error {
		if m.State != match.StateDisputed {
			return match.ErrIllegalTransition
		}
		outcome := match.Outcome{Kind: cmd.Kind, Score: cmd.Score, Reason: match.ReasonAdjudicated}
		var settlement escrow.Outcome
		switch cmd.Kind {
		case match.OutcomeWinner:
			if !m.Has(cmd.Winner) {
				return match.ErrNotParticipant
			}
			outcome.Winner = cmd.Winner
			settlement = escrow.Payout(cmd.Winner)
		case match.OutcomeDraw:
			settlement = escrow.Split()
		case match.OutcomeVoid:
			settlement = escrow.Refund()
		default:
			return match.ErrInvalidClaim
		}
		if err := e.settle(ctx, m, settlement, fx); err != nil {
			return err
		}
		if cmd.Kind == match.OutcomeVoid {
			return m.Void(outcome, now)
		}
		return m.Settle(outcome, now)
	})
}

// CreateScheduledMatch opens a match between two known participants, as a
// tournament does for each bracket pairing. Creating the same id again
// returns the existing match.
func (e *Engine) CreateScheduledMatch(ctx context.Context, s match.Schedule) (*match.Match, error) {
	if err := s.ID.Validate(); err != nil {
		return nil, err
	}
	return e.do(ctx, s.ID, func(ctx context.Context, fx *effects) (*match.Match, error) {
		existing, err := e.Repo.Get(ctx, s.ID)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, match.ErrMatchNotFound) {
			return nil, err
		}
		now := e.Clock()
		m, err := match.NewScheduled(s, e.cfg.timing(s.GameType), now)
		if err != nil {
			return nil, err
		}
		if err := e.Repo.Create(ctx, m); err != nil {
			if errors.Is(err, shared.ErrDuplicate) {
				return e.Repo.Get(ctx, s.ID)
			}
			return nil, err
		}
		e.ready(ctx, m, now)
		if err := e.Repo.Save(ctx, m); err != nil {
			return nil, err
		}
		fx.paired(m)
		return m.Clone(), nil
	})
}

// CancelScheduled voids a match that has not started play, refunding any
// stakes. Cancelling a finished match is a no-op.
func (e *Engine) CancelScheduled(ctx context.Context, id shared.MatchID) (*match.Match, error) {
	return e.mutate(ctx, id, func(ctx context.Context, m *match.Match, now time.Time, fx *effects) error {
		switch m.State {
		case match.StateSettled, match.StateVoid:
			return nil
		case match.StateMatching, match.StateReady:
		default:
			return match.ErrIllegalTransition
		}
		if m.Full() {
			if err := e.settle(ctx, m, escrow.Refund(), fx); err != nil {
				return err
			}
		}
		return m.Void(match.Outcome{Kind: match.OutcomeVoid, Reason: match.ReasonCancelled}, now)
	})
}

// Sweep applies every deadline that has passed and returns how many matches
// moved.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	ids, err := e.Repo.ListDue(ctx, e.Clock(), e.cfg.SweepBatch)
	if err != nil {
		return 0, err
	}
	moved := 0
	for _, id := range ids {
		_, err := e.mutate(ctx, id, e.expire)
		switch {
		case err == nil:
			moved++
		case errors.Is(err, errNotDue):
		case ctx.Err() != nil:
			return moved, ctx.Err()
		default:
			e.Logger.Warn("sweep match", zap.String("match_id", string(id)), zap.Error(err))
		}
	}
	return moved, nil
}

func (e *Engine) expire(ctx context.Context, m *match.Match, now time.Time, fx *effects) error {
	if !m.Due(now) {
		return errNotDue
	}
	switch m.State {
	case match.StateMatching:
		if m.Full() {
			if err := e.settle(ctx, m, escrow.Refund(), fx); err != nil {
				return err
			}
		}
		return m.Void(match.Outcome{Kind: match.OutcomeVoid, Reason: match.ReasonMatchmakingTimeout}, now)
	case match.StateReady:
		return m.AutoStart(now)
	case match.StatePlaying:
		return m.ExpirePlay(now)
	case match.StateVerifying:
		e.resolve(ctx, m, now, fx)
		return nil
	}
	return errNotDue
}

// ready holds stakes for a freshly paired match. Pairings that cannot be
// funded or whose ammunition differs are voided instead.
func (e *Engine) ready(ctx context.Context, m *match.Match, now time.Time) {
	log := e.Logger.With(zap.String("match_id", string(m.ID)))
	if !m.AmmoCompatible() {
		log.Info("ammo mismatch",
			zap.String("a", m.A.AmmoType),
			zap.String("b", m.B.AmmoType))
		_ = m.Void(match.Outcome{Kind: match.OutcomeVoid, Reason: match.ReasonAmmoMismatch}, now)
		return
	}
	_, err := e.Escrow.HoldStakes(ctx, appescrow.HoldCommand{MatchID: m.ID, Users: m.Users(), Amount: m.Wager})
	if err != nil {
		reason := match.ReasonEscrowUnavailable
		if errors.Is(err, escrow.ErrInsufficientFunds) {
			reason = match.ReasonInsufficientFunds
		}
		log.Warn("hold stakes", zap.String("reason", string(reason)), zap.Error(err))
		_ = m.Void(match.Outcome{Kind: match.OutcomeVoid, Reason: reason}, now)
		return
	}
	_ = m.MarkReady(now)
}

// resolve decides a match in verification and moves the stakes. A ledger
// failure leaves the match verifying and due, so the next sweep retries.
func (e *Engine) resolve(ctx context.Context, m *match.Match, now time.Time, fx *effects) {
	v := e.Resolver.Resolve(ctx, m)
	if v.Kind == verification.VerdictDisputed {
		_ = m.Dispute(v.Reason, now)
		return
	}

	outcome := match.Outcome{Score: v.Score, Reason: v.Reason}
	var settlement escrow.Outcome
	switch v.Kind {
	case verification.VerdictWinner:
		outcome.Kind, outcome.Winner = match.OutcomeWinner, v.Winner
		settlement = escrow.Payout(v.Winner)
	case verification.VerdictDraw:
		outcome.Kind = match.OutcomeDraw
		settlement = escrow.Split()
	default:
		outcome.Kind = match.OutcomeVoid
		settlement = escrow.Refund()
	}
	if err := e.settle(ctx, m, settlement, fx); err != nil {
		e.Logger.Warn("settle match",
			zap.String("match_id", string(m.ID)),
			zap.String("verdict", string(v.Kind)),
			zap.Error(err))
		m.Deadline = now
		return
	}
	if outcome.Kind == match.OutcomeVoid {
		_ = m.Void(outcome, now)
		return
	}
	_ = m.Settle(outcome, now)
}

func (e *Engine) settle(ctx context.Context, m *match.Match, outcome escrow.Outcome, fx *effects) error {
	s, err := e.Escrow.Settle(ctx, m.ID, outcome)
	if err != nil {
		return err
	}
	fx.settlement(s)
	return nil
}
