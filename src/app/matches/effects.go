package matches

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/sandai/arena/src/domain/escrow"
	"github.com/sandai/arena/src/domain/match"
	"github.com/sandai/arena/src/domain/notification"
)

type change struct {
	from  match.State
	m     *match.Match
	found bool
}

// effects collects what a shard job did so it can be published after the
// job released its shard.
type effects struct {
	changes []change
	settled []escrow.Settlement
}

func (fx *effects) record(from match.State, m *match.Match) {
	fx.changes = append(fx.changes, change{from: from, m: m.Clone()})
}

func (fx *effects) paired(m *match.Match) {
	fx.changes = append(fx.changes, change{from: match.StateMatching, m: m.Clone(), found: true})
}

func (fx *effects) settlement(s escrow.Settlement) {
	fx.settled = append(fx.settled, s)
}

var stateEvents = map[match.State]notification.EventType{
	match.StateReady:     notification.EventMatchReady,
	match.StatePlaying:   notification.EventMatchStarted,
	match.StateVerifying: notification.EventMatchVerifying,
	match.StateSettled:   notification.EventMatchSettled,
	match.StateVoid:      notification.EventMatchVoided,
	match.StateDisputed:  notification.EventMatchDisputed,
}

func (e *Engine) apply(ctx context.Context, fx *effects) {
	if fx == nil {
		return
	}
	for _, s := range fx.settled {
		e.Metrics.Settled(s.Kind, s.Total)
	}
	for _, c := range fx.changes {
		m := c.m
		if c.found {
			e.notify(ctx, notification.EventMatchFound, m)
		}
		if c.from != m.State {
			e.Metrics.Transition(m.GameType, c.from, m.State)
			if t, ok := stateEvents[m.State]; ok {
				e.notify(ctx, t, m)
			}
			e.Logger.Debug("match transition",
				zap.String("match_id", string(m.ID)),
				zap.String("from", string(c.from)),
				zap.String("to", string(m.State)))
		}
		if m.State != match.StateMatching {
			e.pool.remove(m.ID)
			e.waiters.publish(m)
		}
		switch {
		case m.State.Open() && m.Full():
			e.pool.occupy(m.ID, m.Users()...)
		case !m.State.Open():
			e.pool.release(m.ID, m.Users()...)
		}
		if m.Link != nil && m.State.Terminal() && c.from != m.State {
			e.finished.push(m)
		}
	}
}

func (e *Engine) notify(ctx context.Context, t notification.EventType, m *match.Match) {
	ev, err := notification.NewMatchEvent(t, m.ID, m.Users(), m.UpdatedAt)
	if err != nil {
		e.Logger.Warn("build match event", zap.String("match_id", string(m.ID)), zap.Error(err))
		return
	}
	ev.With("game", string(m.GameType)).
		With("wager", strconv.FormatInt(int64(m.Wager), 10)).
		With("state", string(m.State))
	if m.Link != nil {
		ev.TournamentID = m.Link.TournamentID
	}
	if o := m.Outcome; o != nil {
		ev.With("outcome", string(o.Kind)).With("reason", string(o.Reason))
		if o.Winner != "" {
			ev.With("winner", string(o.Winner))
		}
	}
	if m.State == match.StateDisputed {
		ev.With("reason", string(m.DisputeReason))
	}
	e.Notifier.Notify(ctx, ev)
}
