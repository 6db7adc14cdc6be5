package tournaments

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/sandai/arena/src/domain/bracket"
	"github.com/sandai/arena/src/domain/escrow"
	"github.com/sandai/arena/src/domain/match"
	"github.com/sandai/arena/src/domain/notification"
	"github.com/sandai/arena/src/domain/shared"
	"github.com/sandai/arena/src/domain/tournament"
)

// slotNamespace derives stable match ids from bracket positions.
var slotNamespace = uuid.Must(uuid.FromString("5b7c2f0e-3d41-4c8a-9f3e-0a1d6e2b9c47"))

// SlotMatchID is the match id used for attempt of ref in tournament id.
func SlotMatchID(id shared.TournamentID, ref bracket.Ref, attempt int) shared.MatchID {
	name := fmt.Sprintf("%s/%s/%d", id, ref, attempt)
	return shared.MatchID(uuid.NewV5(slotNamespace, name).String())
}

// closeAndStart drives a tournament from registration through seeding and
// funding into play. Each step is saved, so a failed call can be resumed.
func (s *Service) closeAndStart(ctx context.Context, t *tournament.Tournament) error {
	log := s.Logger.With(zap.String("tournament_id", string(t.ID)))
	now := s.Clock()

	if t.State == tournament.StateRegistrationOpen {
		if err := t.CloseRegistration(now); err != nil {
			if errors.Is(err, tournament.ErrNotEnoughParticipants) {
				log.Info("too few participants", zap.Int("registered", len(t.Participants)))
				return s.cancel(ctx, t, "not enough participants")
			}
			return err
		}
		ratings := make(map[shared.UserID]int, len(t.Participants))
		for _, p := range t.Participants {
			profile, err := s.profile(ctx, p.UserID)
			if err != nil {
				return err
			}
			ratings[p.UserID] = profile.Rating
		}
		t.AssignSeeds(ratings)
		if err := s.Repo.Save(ctx, t); err != nil {
			return err
		}
		s.notify(ctx, t, notification.EventTournamentClosed, nil, map[string]string{
			"participants": strconv.Itoa(len(t.Participants)),
		})
	}
	if t.State != tournament.StateSeeding {
		return tournament.ErrInvalidState
	}

	pool := t.ID.PoolAccount()
	for _, p := range t.Participants {
		if p.Funded || t.EntryFee == 0 {
			continue
		}
		err := s.Ledger.Transfer(ctx, p.EntryHold, pool)
		if err != nil && !errors.Is(err, escrow.ErrHoldClosed) {
			return fmt.Errorf("fund prize pool from %s: %w", p.UserID, err)
		}
		p.MarkFunded(s.Clock())
		if err := s.Repo.Save(ctx, t); err != nil {
			return err
		}
	}

	b, err := bracket.New(t.Format, t.Entrants(), bracket.Options{
		GroupSize: t.GroupSize,
		Advance:   t.Advance,
		Scoring:   t.Scoring,
	})
	if err != nil {
		log.Warn("build bracket", zap.Error(err))
		return s.cancel(ctx, t, "bracket: "+err.Error())
	}
	if err := t.Start(b, s.Clock()); err != nil {
		return err
	}
	if err := s.schedule(ctx, t); err != nil {
		log.Warn("schedule first round", zap.Error(err))
	}
	if err := s.Repo.Save(ctx, t); err != nil {
		return err
	}
	log.Info("tournament started", zap.Int("participants", len(t.Participants)))
	s.notify(ctx, t, notification.EventTournamentStarted, nil, nil)
	return nil
}

// schedule creates a match for every playable unit. Match ids are derived
// from the unit, so repeating a partially failed call is safe.
func (s *Service) schedule(ctx context.Context, t *tournament.Tournament) error {
	for _, p := range t.Bracket.Playable() {
		id := SlotMatchID(t.ID, p.Ref, p.Attempt)
		a, err := s.seat(ctx, t, p.A)
		if err != nil {
			return err
		}
		c, err := s.seat(ctx, t, p.B)
		if err != nil {
			return err
		}
		_, err = s.Matches.CreateScheduledMatch(ctx, match.Schedule{
			ID:       id,
			GameType: t.GameType,
			A:        a,
			B:        c,
			Link: &match.Link{
				TournamentID: t.ID,
				Phase:        string(p.Ref.Phase),
				Group:        p.Ref.Group,
				Round:        p.Ref.Round,
				Slot:         p.Ref.Index,
				Attempt:      p.Attempt,
			},
		})
		if err != nil {
			return fmt.Errorf("create match for %s: %w", p.Ref, err)
		}
		if err := t.Bracket.MarkScheduled(p.Ref, id); err != nil {
			return err
		}
		s.notify(ctx, t, notification.EventTournamentScheduled, []shared.UserID{p.A, p.B}, map[string]string{
			"match_id": string(id),
			"slot":     p.Ref.String(),
		})
	}
	return nil
}

func (s *Service) seat(ctx context.Context, t *tournament.Tournament, user shared.UserID) (match.Participant, error) {
	seat := match.Participant{UserID: user}
	if p, ok := t.Participant(user); ok {
		seat.Rating = p.Rating
		seat.AmmoType = p.AmmoType
	}
	if t.GameType.RequiresAmmo() && seat.AmmoType == "" {
		profile, err := s.profile(ctx, user)
		if err != nil {
			return seat, err
		}
		seat.AmmoType = profile.AmmoType()
	}
	return seat, nil
}

// OnMatchFinished feeds a finished tournament match into its bracket.
func (s *Service) OnMatchFinished(ctx context.Context, m *match.Match) {
	if m.Link == nil || m.Outcome == nil {
		return
	}
	id := m.Link.TournamentID
	log := s.Logger.With(zap.String("tournament_id", string(id)), zap.String("match_id", string(m.ID)))
	unlock := s.locks.Lock(string(id))
	defer unlock()

	t, err := s.Repo.Get(ctx, id)
	if err != nil {
		log.Warn("load tournament", zap.Error(err))
		return
	}
	if err := s.record(ctx, t, m); err != nil {
		log.Warn("record match result", zap.Error(err))
	}
}

func (s *Service) record(ctx context.Context, t *tournament.Tournament, m *match.Match) error {
	if t.State != tournament.StateInProgress {
		return nil
	}
	ref, ok := t.Bracket.Lookup(m.ID)
	if !ok {
		return bracket.ErrSlotNotFound
	}
	changed, err := t.Bracket.RecordResult(ref, m.ID, resultOf(m))
	if err != nil || !changed {
		return err
	}
	return s.progress(ctx, t)
}

func resultOf(m *match.Match) bracket.Result {
	o := m.Outcome
	var res bracket.Result
	if o.Score != nil {
		res.ScoreA, res.ScoreB = o.Score.A, o.Score.B
	}
	switch o.Kind {
	case match.OutcomeWinner:
		res.Winner = o.Winner
	case match.OutcomeDraw:
		res.Draw = true
	default:
		res.Void = true
	}
	return res
}

// progress schedules whatever became playable, or finishes the tournament.
func (s *Service) progress(ctx context.Context, t *tournament.Tournament) error {
	if t.Bracket.Complete() {
		return s.finish(ctx, t)
	}
	before := len(t.Bracket.Scheduled())
	err := s.schedule(ctx, t)
	if saveErr := s.Repo.Save(ctx, t); saveErr != nil {
		return saveErr
	}
	if added := len(t.Bracket.Scheduled()) - before; added > 0 {
		s.notify(ctx, t, notification.EventTournamentAdvanced, nil, map[string]string{
			"scheduled": strconv.Itoa(added),
		})
	}
	return err
}

func (s *Service) finish(ctx context.Context, t *tournament.Tournament) error {
	ranking, err := t.Bracket.Ranking()
	if err != nil {
		return err
	}
	if err := t.Complete(ranking, s.Clock()); err != nil {
		return err
	}
	if err := s.Repo.Save(ctx, t); err != nil {
		return err
	}
	s.Logger.Info("tournament completed",
		zap.String("tournament_id", string(t.ID)),
		zap.String("champion", string(ranking[0])))
	s.notify(ctx, t, notification.EventTournamentCompleted, nil, map[string]string{"champion": string(ranking[0])})
	return s.payPrizes(ctx, t)
}

// payPrizes pays every unpaid prize from the pool account by final rank.
func (s *Service) payPrizes(ctx context.Context, t *tournament.Tournament) error {
	pool := t.ID.PoolAccount()
	for _, prize := range t.Prizes {
		if prize.Rank > len(t.Ranking) || t.Paid(prize.Rank) {
			continue
		}
		winner := t.Ranking[prize.Rank-1]
		hold, err := s.Ledger.Hold(ctx, pool, prize.Amount)
		if err != nil {
			return fmt.Errorf("hold prize for rank %d: %w", prize.Rank, err)
		}
		if err := s.Ledger.Transfer(ctx, hold, winner); err != nil {
			return fmt.Errorf("pay prize for rank %d: %w", prize.Rank, err)
		}
		t.RecordPayout(tournament.Payout{Rank: prize.Rank, UserID: winner, Amount: prize.Amount, PaidAt: s.Clock()})
		if err := s.Repo.Save(ctx, t); err != nil {
			return err
		}
		s.notify(ctx, t, notification.EventTournamentPrizePaid, []shared.UserID{winner}, map[string]string{
			"rank":   strconv.Itoa(prize.Rank),
			"amount": strconv.FormatInt(int64(prize.Amount), 10),
		})
	}
	return nil
}

func (s *Service) prizesOutstanding(t *tournament.Tournament) bool {
	for _, prize := range t.Prizes {
		if prize.Rank <= len(t.Ranking) && !t.Paid(prize.Rank) {
			return true
		}
	}
	return false
}

// ReplaySlot schedules a fresh match for a void unit.
func (s *Service) ReplaySlot(ctx context.Context, id shared.TournamentID, ref bracket.Ref) (*tournament.Tournament, error) {
	return s.operate(ctx, id, func(t *tournament.Tournament) error {
		if err := t.Bracket.Replay(ref); err != nil {
			return err
		}
		return s.progress(ctx, t)
	})
}

// AwardSlot decides a unit by operator decision. A live match in the unit is
// cancelled first.
func (s *Service) AwardSlot(ctx context.Context, id shared.TournamentID, ref bracket.Ref, winner shared.UserID) (*tournament.Tournament, error) {
	return s.operate(ctx, id, func(t *tournament.Tournament) error {
		if live, ok := t.Bracket.Scheduled()[ref]; ok {
			if _, err := s.Matches.CancelScheduled(ctx, live); err != nil {
				return fmt.Errorf("cancel live match: %w", err)
			}
		}
		if err := t.Bracket.Award(ref, winner); err != nil {
			return err
		}
		return s.progress(ctx, t)
	})
}

func (s *Service) operate(ctx context.Context, id shared.TournamentID, fn func(t *tournament.Tournament) error) (*tournament.Tournament, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(string(id))
	defer unlock()

	t, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.State != tournament.StateInProgress {
		return nil, tournament.ErrInvalidState
	}
	if err := fn(t); err != nil {
		return nil, err
	}
	return t, nil
}

// Cancel stops a tournament and returns every entry fee.
func (s *Service) Cancel(ctx context.Context, id shared.TournamentID, reason string) (*tournament.Tournament, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(string(id))
	defer unlock()

	t, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.cancel(ctx, t, reason); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) cancel(ctx context.Context, t *tournament.Tournament, reason string) error {
	wasInProgress := t.State == tournament.StateInProgress
	if err := t.Cancel(reason, s.Clock()); err != nil {
		return err
	}
	if err := s.Repo.Save(ctx, t); err != nil {
		return err
	}
	if wasInProgress {
		for _, live := range t.Bracket.Scheduled() {
			if _, err := s.Matches.CancelScheduled(ctx, live); err != nil {
				s.Logger.Warn("cancel tournament match",
					zap.String("tournament_id", string(t.ID)),
					zap.String("match_id", string(live)),
					zap.Error(err))
			}
		}
	}
	s.Logger.Info("tournament cancelled", zap.String("tournament_id", string(t.ID)), zap.String("reason", reason))
	s.notify(ctx, t, notification.EventTournamentCancelled, nil, map[string]string{"reason": reason})
	return s.refund(ctx, t)
}

// refund returns each entry fee: funded fees from the pool account, the rest
// by releasing the registration hold.
func (s *Service) refund(ctx context.Context, t *tournament.Tournament) error {
	pool := t.ID.PoolAccount()
	var failed error
	for _, p := range t.Participants {
		if p.Refunded {
			continue
		}
		var err error
		switch {
		case t.EntryFee == 0:
		case p.Funded:
			var hold shared.HoldID
			hold, err = s.Ledger.Hold(ctx, pool, t.EntryFee)
			if err == nil {
				err = s.Ledger.Transfer(ctx, hold, p.UserID)
			}
		default:
			err = s.Ledger.Release(ctx, p.EntryHold)
			if errors.Is(err, escrow.ErrHoldClosed) {
				err = nil
			}
		}
		if err != nil {
			failed = fmt.Errorf("refund %s: %w", p.UserID, err)
			continue
		}
		p.MarkRefunded(s.Clock())
		if err := s.Repo.Save(ctx, t); err != nil {
			return err
		}
	}
	return failed
}

func refundsOutstanding(t *tournament.Tournament) bool {
	for _, p := range t.Participants {
		if !p.Refunded {
			return true
		}
	}
	return false
}

// Sweep closes registrations whose deadline passed and resumes any work an
// earlier failure left behind. It returns how many tournaments it touched.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	candidates, err := s.Repo.ListByState(ctx,
		tournament.StateRegistrationOpen,
		tournament.StateSeeding,
		tournament.StateInProgress,
		tournament.StateCompleted,
		tournament.StateCancelled)
	if err != nil {
		return 0, err
	}
	touched := 0
	for _, c := range candidates {
		if !s.needsSweep(c) {
			continue
		}
		if err := s.sweepOne(ctx, c.ID); err != nil {
			if ctx.Err() != nil {
				return touched, ctx.Err()
			}
			s.Logger.Warn("sweep tournament", zap.String("tournament_id", string(c.ID)), zap.Error(err))
			continue
		}
		touched++
	}
	return touched, nil
}

func (s *Service) needsSweep(t *tournament.Tournament) bool {
	switch t.State {
	case tournament.StateRegistrationOpen:
		return t.RegistrationDue(s.Clock())
	case tournament.StateSeeding, tournament.StateInProgress:
		return true
	case tournament.StateCompleted:
		return s.prizesOutstanding(t)
	case tournament.StateCancelled:
		return refundsOutstanding(t)
	}
	return false
}

func (s *Service) sweepOne(ctx context.Context, id shared.TournamentID) error {
	unlock := s.locks.Lock(string(id))
	defer unlock()

	t, err := s.Repo.Get(ctx, id)
	if err != nil {
		return err
	}
	switch t.State {
	case tournament.StateRegistrationOpen:
		if !t.RegistrationDue(s.Clock()) {
			return nil
		}
		return s.closeAndStart(ctx, t)
	case tournament.StateSeeding:
		return s.closeAndStart(ctx, t)
	case tournament.StateInProgress:
		return s.reconcile(ctx, t)
	case tournament.StateCompleted:
		return s.payPrizes(ctx, t)
	case tournament.StateCancelled:
		return s.refund(ctx, t)
	}
	return nil
}

// reconcile catches up on match results the listener never delivered and
// schedules units left playable.
func (s *Service) reconcile(ctx context.Context, t *tournament.Tournament) error {
	for _, id := range t.Bracket.Scheduled() {
		m, err := s.Matches.Get(ctx, id)
		if err != nil {
			if errors.Is(err, match.ErrMatchNotFound) {
				continue
			}
			return err
		}
		if !m.State.Terminal() {
			continue
		}
		if err := s.record(ctx, t, m); err != nil {
			return err
		}
		if t.State != tournament.StateInProgress {
			return nil
		}
	}
	if len(t.Bracket.Playable()) == 0 {
		return nil
	}
	return s.progress(ctx, t)
}
