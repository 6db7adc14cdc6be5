package matches

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sandai/arena/src/domain/match"
	"github.com/sandai/arena/src/domain/player"
	"github.com/sandai/arena/src/domain/shared"
)

// errSeatTaken means a pool ticket went stale before it could be joined.
var errSeatTaken = errors.New("seat no longer available")

// RequestCommand asks for a head-to-head opponent.
type RequestCommand struct {
	UserID   shared.UserID
	GameType shared.GameType
	Wager    shared.Amount
	// AmmoType overrides the ammunition declared on the user's profile.
	AmmoType string
}

// RequestMatch pairs the user with a waiting opponent of the same game and
// wager, or opens a searching match for others to join. The returned match
// is ready (stakes held), void (pairing failed) or still matching.
func (e *Engine) RequestMatch(ctx context.Context, cmd RequestCommand) (*match.Match, error) {
	if err := cmd.UserID.Validate(); err != nil {
		return nil, err
	}
	if err := cmd.GameType.Validate(); err != nil {
		return nil, err
	}
	if cmd.Wager < 0 {
		return nil, errors.New("wager must not be negative")
	}
	profile, err := e.profile(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}
	if err := profile.CanCompete(); err != nil {
		return nil, err
	}
	if cmd.Wager > 0 && e.Balances != nil {
		balance, err := e.Balances.Balance(ctx, cmd.UserID)
		if err != nil {
			return nil, fmt.Errorf("check balance: %w", err)
		}
		if balance < cmd.Wager {
			return nil, match.ErrInsufficientFunds
		}
	}

	ammo := strings.ToLower(strings.TrimSpace(cmd.AmmoType))
	if ammo == "" {
		ammo = profile.AmmoType()
	}
	p := match.Participant{UserID: cmd.UserID, Rating: profile.Rating, AmmoType: ammo}

	if err := e.pool.reserve(cmd.UserID); err != nil {
		return nil, err
	}
	m, err := e.pair(ctx, cmd, p)
	if err != nil {
		e.pool.unreserve(cmd.UserID)
		return nil, err
	}
	e.pool.settle(cmd.UserID, m)
	return m, nil
}

func (e *Engine) pair(ctx context.Context, cmd RequestCommand, p match.Participant) (*match.Match, error) {
	key := poolKey{game: cmd.GameType, wager: cmd.Wager}
	window := e.cfg.RatingWindow

	for {
		t, ok := e.pool.take(key, p.UserID, p.Rating, window)
		if !ok {
			break
		}
		m, err := e.join(ctx, t.matchID, p)
		if errors.Is(err, errSeatTaken) {
			continue
		}
		if err != nil {
			e.pool.putBack(key, t)
			return nil, err
		}
		return m, nil
	}

	now := e.Clock()
	searching, err := match.NewSearching(e.NewID(), cmd.GameType, cmd.Wager, p, e.cfg.timing(cmd.GameType), now)
	if err != nil {
		return nil, err
	}
	own, err := e.do(ctx, searching.ID, func(ctx context.Context, _ *effects) (*match.Match, error) {
		if err := e.Repo.Create(ctx, searching); err != nil {
			return nil, err
		}
		return searching.Clone(), nil
	})
	if err != nil {
		return nil, err
	}

	// Another request for the same key may have queued while ours was being
	// created; pair with it rather than leaving two searches side by side.
	for {
		t, ok := e.pool.takeOrAdd(key, ticket{matchID: own.ID, user: p.UserID, rating: p.Rating, queuedAt: now}, window)
		if !ok {
			e.Logger.Debug("searching for opponent",
				zap.String("match_id", string(own.ID)),
				zap.String("user_id", string(p.UserID)),
				zap.String("game", string(cmd.GameType)))
			return own, nil
		}
		m, err := e.join(ctx, t.matchID, p)
		if errors.Is(err, errSeatTaken) {
			continue
		}
		e.abandon(ctx, own.ID)
		if err != nil {
			e.pool.putBack(key, t)
			return nil, err
		}
		return m, nil
	}
}

// join seats p in a searching match and moves it on to ready or void.
func (e *Engine) join(ctx context.Context, id shared.MatchID, p match.Participant) (*match.Match, error) {
	return e.do(ctx, id, func(ctx context.Context, fx *effects) (*match.Match, error) {
		m, err := e.Repo.Get(ctx, id)
		if errors.Is(err, match.ErrMatchNotFound) {
			return nil, errSeatTaken
		}
		if err != nil {
			return nil, err
		}
		now := e.Clock()
		if err := m.Join(p, now); err != nil {
			return nil, errSeatTaken
		}
		e.ready(ctx, m, now)
		if err := e.Repo.Save(ctx, m); err != nil {
			return nil, err
		}
		fx.paired(m)
		return m.Clone(), nil
	})
}

// abandon voids a searching match nobody joined.
func (e *Engine) abandon(ctx context.Context, id shared.MatchID) {
	_, err := e.mutate(ctx, id, func(_ context.Context, m *match.Match, now time.Time, _ *effects) error {
		if m.State != match.StateMatching || m.B != nil {
			return match.ErrIllegalTransition
		}
		return m.Void(match.Outcome{Kind: match.OutcomeVoid, Reason: match.ReasonCancelled}, now)
	})
	if err != nil {
		e.Logger.Warn("abandon search", zap.String("match_id", string(id)), zap.Error(err))
	}
}

// CancelSearch withdraws a searching match nobody has joined yet.
func (e *Engine) CancelSearch(ctx context.Context, id shared.MatchID, user shared.UserID) (*match.Match, error) {
	m, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.A.UserID != user {
		return nil, match.ErrNotParticipant
	}
	e.pool.remove(id)
	return e.mutate(ctx, id, func(_ context.Context, m *match.Match, now time.Time, _ *effects) error {
		if m.State != match.StateMatching || m.B != nil {
			return match.ErrIllegalTransition
		}
		return m.Void(match.Outcome{Kind: match.OutcomeVoid, Reason: match.ReasonCancelled}, now)
	})
}

// AwaitMatch blocks until the match leaves matching or ctx ends.
func (e *Engine) AwaitMatch(ctx context.Context, id shared.MatchID) (*match.Match, error) {
	ch, cancel := e.waiters.subscribe(id)
	defer cancel()

	m, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.State != match.StateMatching {
		return m, nil
	}
	select {
	case m := <-ch:
		return m, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", match.ErrTimeout, ctx.Err())
	case <-e.stop:
		return nil, ErrEngineStopped
	}
}

// ActiveMatch reports the open match occupying user, if any.
func (e *Engine) ActiveMatch(user shared.UserID) (shared.MatchID, bool) {
	return e.pool.activeMatch(user)
}

// Searching is the number of matches waiting for an opponent.
func (e *Engine) Searching() int {
	return e.pool.waiting()
}

func (e *Engine) profile(ctx context.Context, user shared.UserID) (*player.Profile, error) {
	if e.Directory == nil {
		return &player.Profile{ID: user, Rating: player.DefaultRating}, nil
	}
	p, err := e.Directory.Profile(ctx, user)
	if errors.Is(err, player.ErrProfileNotFound) {
		return &player.Profile{ID: user, Rating: player.DefaultRating}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve profile: %w", err)
	}
	return p, nil
}
