package tournaments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/sandai/arena/src/app/internal/keylock"
	"github.com/sandai/arena/src/domain/bracket"
	"github.com/sandai/arena/src/domain/escrow"
	"github.com/sandai/arena/src/domain/match"
	"github.com/sandai/arena/src/domain/notification"
	"github.com/sandai/arena/src/domain/player"
	"github.com/sandai/arena/src/domain/shared"
	"github.com/sandai/arena/src/domain/tournament"
)

// Matches is the part of the match engine a tournament drives.
type Matches interface {
	CreateScheduledMatch(ctx context.Context, s match.Schedule) (*match.Match, error)
	CancelScheduled(ctx context.Context, id shared.MatchID) (*match.Match, error)
	Get(ctx context.Context, id shared.MatchID) (*match.Match, error)
}

// Service coordinates tournament operations.
type Service struct {
	Repo      tournament.Repository
	Ledger    escrow.Ledger
	Matches   Matches
	Directory player.Directory
	Notifier  notification.Sink
	Clock     func() time.Time
	Logger    *zap.Logger
	locks     *keylock.Locker
}

// NewService creates a new tournament service. directory, notifier and
// logger may be nil.
func NewService(repo tournament.Repository, ledger escrow.Ledger, matches Matches, directory player.Directory, notifier notification.Sink, logger *zap.Logger) *Service {
	if notifier == nil {
		notifier = notification.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		Repo:      repo,
		Ledger:    ledger,
		Matches:   matches,
		Directory: directory,
		Notifier:  notifier,
		Clock:     func() time.Time { return time.Now().UTC() },
		Logger:    logger,
		locks:     keylock.New(),
	}
}

// CreateTournamentCommand contains parameters for creating a tournament.
// A blank ID is generated.
type CreateTournamentCommand struct {
	ID       shared.TournamentID
	Settings tournament.Settings
}

// CreateTournament creates a tournament open for registration.
func (s *Service) CreateTournament(ctx context.Context, cmd CreateTournamentCommand) (*tournament.Tournament, error) {
	if cmd.ID == "" {
		id, err := uuid.NewV4()
		if err != nil {
			return nil, err
		}
		cmd.ID = shared.TournamentID(id.String())
	}
	if cmd.Settings.Scoring == (bracket.Scoring{}) {
		cmd.Settings.Scoring = bracket.DefaultScoring
	}
	t, err := tournament.NewTournament(cmd.ID, cmd.Settings, s.Clock())
	if err != nil {
		return nil, err
	}
	if err := s.Repo.Create(ctx, t); err != nil {
		return nil, err
	}
	s.Logger.Info("tournament created",
		zap.String("tournament_id", string(t.ID)),
		zap.String("format", string(t.Format)),
		zap.Int("max_participants", t.MaxParticipants))
	return t, nil
}

// RegisterCommand enters a user into a tournament.
type RegisterCommand struct {
	TournamentID shared.TournamentID
	UserID       shared.UserID
	// AmmoType overrides the ammunition declared on the user's profile.
	AmmoType string
}

// Register holds the entry fee and adds the user to the field. Filling the
// last place closes registration and starts the tournament.
func (s *Service) Register(ctx context.Context, cmd RegisterCommand) (*tournament.Tournament, error) {
	if err := cmd.TournamentID.Validate(); err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(string(cmd.TournamentID))
	defer unlock()

	t, err := s.Repo.Get(ctx, cmd.TournamentID)
	if err != nil {
		return nil, err
	}
	if err := t.CanRegister(cmd.UserID); err != nil {
		return nil, err
	}
	profile, err := s.profile(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}
	if err := profile.CanCompete(); err != nil {
		return nil, err
	}
	ammo := strings.ToLower(strings.TrimSpace(cmd.AmmoType))
	if ammo == "" {
		ammo = profile.AmmoType()
	}
	if t.GameType.RequiresAmmo() && ammo == "" {
		return nil, tournament.ErrAmmoTypeRequired
	}

	now := s.Clock()
	var hold shared.HoldID
	if t.EntryFee > 0 {
		hold, err = s.Ledger.Hold(ctx, cmd.UserID, t.EntryFee)
		if err != nil {
			return nil, fmt.Errorf("hold entry fee: %w", err)
		}
	}
	p, err := tournament.NewParticipant(t.ID, cmd.UserID, hold, now)
	if err == nil {
		p.AmmoType = ammo
		err = t.Register(p, now)
	}
	if err == nil {
		err = s.Repo.Save(ctx, t)
	}
	if err != nil {
		s.release(ctx, t.ID, hold)
		return nil, err
	}

	if t.Full() {
		if err := s.closeAndStart(ctx, t); err != nil {
			s.Logger.Warn("start tournament", zap.String("tournament_id", string(t.ID)), zap.Error(err))
		}
	}
	return t, nil
}

// Withdraw removes the user while registration is open and releases the fee.
func (s *Service) Withdraw(ctx context.Context, id shared.TournamentID, user shared.UserID) (*tournament.Tournament, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(string(id))
	defer unlock()

	t, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	p, err := t.Withdraw(user, s.Clock())
	if err != nil {
		return nil, err
	}
	if err := s.Repo.Save(ctx, t); err != nil {
		return nil, err
	}
	s.release(ctx, id, p.EntryHold)
	return t, nil
}

// CloseRegistration ends registration early. A field below the minimum
// cancels the tournament instead.
func (s *Service) CloseRegistration(ctx context.Context, id shared.TournamentID) (*tournament.Tournament, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(string(id))
	defer unlock()

	t, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.State != tournament.StateRegistrationOpen && t.State != tournament.StateSeeding {
		return nil, tournament.ErrRegistrationClosed
	}
	if err := s.closeAndStart(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// GetTournament retrieves a tournament by ID.
func (s *Service) GetTournament(ctx context.Context, id shared.TournamentID) (*tournament.Tournament, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	return s.Repo.Get(ctx, id)
}

// ListTournamentsQuery contains parameters for listing tournaments.
type ListTournamentsQuery struct {
	Limit  int
	Offset int
}

// ListTournaments retrieves a paginated list of tournaments.
func (s *Service) ListTournaments(ctx context.Context, query ListTournamentsQuery) ([]*tournament.Tournament, error) {
	if query.Limit <= 0 {
		query.Limit = 10
	}
	if query.Offset < 0 {
		query.Offset = 0
	}
	return s.Repo.List(ctx, query.Limit, query.Offset)
}

// Bracket returns the tournament's bracket once seeded.
func (s *Service) Bracket(ctx context.Context, id shared.TournamentID) (*bracket.Bracket, error) {
	t, err := s.GetTournament(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Bracket == nil {
		return nil, tournament.ErrInvalidState
	}
	return t.Bracket, nil
}

// Standings returns one table per group.
func (s *Service) Standings(ctx context.Context, id shared.TournamentID) ([][]bracket.Standing, error) {
	b, err := s.Bracket(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([][]bracket.Standing, len(b.Groups))
	for gi := range b.Groups {
		out[gi] = b.Standings(gi)
	}
	return out, nil
}

func (s *Service) profile(ctx context.Context, user shared.UserID) (*player.Profile, error) {
	if s.Directory == nil {
		return &player.Profile{ID: user, Rating: player.DefaultRating}, nil
	}
	p, err := s.Directory.Profile(ctx, user)
	if errors.Is(err, player.ErrProfileNotFound) {
		return &player.Profile{ID: user, Rating: player.DefaultRating}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve profile: %w", err)
	}
	return p, nil
}

func (s *Service) release(ctx context.Context, id shared.TournamentID, hold shared.HoldID) {
	if hold == "" {
		return
	}
	if err := s.Ledger.Release(ctx, hold); err != nil && !errors.Is(err, escrow.ErrHoldClosed) {
		s.Logger.Error("release entry fee",
			zap.String("tournament_id", string(id)),
			zap.String("hold_id", string(hold)),
			zap.Error(err))
	}
}

func (s *Service) notify(ctx context.Context, t *tournament.Tournament, typ notification.EventType, recipients []shared.UserID, data map[string]string) {
	if recipients == nil {
		recipients = make([]shared.UserID, len(t.Participants))
		for i, p := range t.Participants {
			recipients[i] = p.UserID
		}
	}
	ev, err := notification.NewTournamentEvent(typ, t.ID, recipients, s.Clock())
	if err != nil {
		s.Logger.Warn("build tournament event", zap.String("tournament_id", string(t.ID)), zap.Error(err))
		return
	}
	for k, v := range data {
		ev.With(k, v)
	}
	s.Notifier.Notify(ctx, ev)
}
