package tournaments_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appescrow "github.com/sandai/arena/src/app/escrow"
	"github.com/sandai/arena/src/app/matches"
	"github.com/sandai/arena/src/app/tournaments"
	"github.com/sandai/arena/src/domain/bracket"
	"github.com/sandai/arena/src/domain/match"
	"github.com/sandai/arena/src/domain/player"
	"github.com/sandai/arena/src/domain/shared"
	"github.com/sandai/arena/src/domain/tournament"
	"github.com/sandai/arena/src/infra/memory"
)

// arena runs tournaments on the real match engine over the in-memory stores.
type arena struct {
	ledger *memory.Ledger
	dir    *memory.Directory
	repo   *memory.TournamentRepository
	engine *matches.Engine
	svc    *tournaments.Service
}

func newArena(t *testing.T, players int) *arena {
	t.Helper()
	ctx := context.Background()
	a := &arena{
		ledger: memory.NewLedger(),
		dir:    memory.NewDirectory(),
		repo:   memory.NewTournamentRepository(),
	}
	for i := 1; i <= players; i++ {
		user := playerID(i)
		require.NoError(t, a.ledger.Credit(ctx, user, 100))
		p, err := player.NewProfile(user, string(user), 2000-i*10, time.Now())
		require.NoError(t, err)
		a.dir.Put(p)
	}

	cfg := matches.DefaultConfig()
	cfg.Shards = 4
	a.engine = matches.NewEngine(matches.Deps{
		Repo:      memory.NewMatchRepository(),
		Escrow:    appescrow.NewService(a.ledger, memory.NewEscrowRepository(), nil),
		Balances:  a.ledger,
		Directory: a.dir,
	}, cfg)
	a.svc = tournaments.NewService(a.repo, a.ledger, a.engine, a.dir, nil, nil)
	a.engine.SetListener(a.svc)
	require.NoError(t, a.engine.Start(ctx))
	t.Cleanup(a.engine.Stop)
	return a
}

func (a *arena) create(t *testing.T, id shared.TournamentID, s tournament.Settings) {
	t.Helper()
	if s.RegistrationDeadline.IsZero() {
		s.RegistrationDeadline = time.Now().Add(time.Hour)
	}
	_, err := a.svc.CreateTournament(context.Background(), tournaments.CreateTournamentCommand{ID: id, Settings: s})
	require.NoError(t, err)
}

func (a *arena) register(t *testing.T, id shared.TournamentID, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		_, err := a.svc.Register(context.Background(), tournaments.RegisterCommand{TournamentID: id, UserID: playerID(i)})
		require.NoError(t, err)
	}
}

func (a *arena) tournament(t *testing.T, id shared.TournamentID) *tournament.Tournament {
	t.Helper()
	tour, err := a.repo.Get(context.Background(), id)
	require.NoError(t, err)
	return tour
}

func (a *arena) balance(t *testing.T, user shared.UserID) shared.Amount {
	t.Helper()
	b, err := a.ledger.Balance(context.Background(), user)
	require.NoError(t, err)
	return b
}

// playOut plays every live match, lower player number winning, until the
// tournament leaves play.
func (a *arena) playOut(t *testing.T, id shared.TournamentID) *tournament.Tournament {
	t.Helper()
	for round := 0; round < 64; round++ {
		tour := a.tournament(t, id)
		if tour.State != tournament.StateInProgress {
			return tour
		}
		live := tour.Bracket.Scheduled()
		require.NotEmpty(t, live, "tournament in play has no live match")
		for _, mid := range live {
			a.decide(t, mid)
		}
		require.Eventually(t, func() bool {
			cur, err := a.repo.Get(context.Background(), id)
			if err != nil {
				return false
			}
			if cur.State != tournament.StateInProgress {
				return true
			}
			for _, now := range cur.Bracket.Scheduled() {
				for _, played := range live {
					if now == played {
						return false
					}
				}
			}
			return true
		}, 5*time.Second, 5*time.Millisecond, "results were not fed back into the bracket")
	}
	t.Fatal("tournament did not finish")
	return nil
}

// decide starts the match and submits matching claims from both players.
func (a *arena) decide(t *testing.T, id shared.MatchID) {
	t.Helper()
	ctx := context.Background()
	m, err := a.engine.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, match.StateReady, m.State, "scheduled match %s is not ready", id)

	winner, score := m.A.UserID, match.Score{A: 2, B: 1}
	if m.B.UserID < m.A.UserID {
		winner, score = m.B.UserID, match.Score{A: 1, B: 2}
	}
	m, err = a.engine.StartMatch(ctx, id, m.A.UserID)
	require.NoError(t, err)
	require.Equal(t, match.StatePlaying, m.State)

	for _, user := range m.Users() {
		m, err = a.engine.SubmitResult(ctx, matches.SubmitCommand{
			MatchID:     id,
			UserID:      user,
			Winner:      winner,
			Score:       score,
			EvidenceRef: fmt.Sprintf("evidence/%s/%s.png", id, user),
		})
		require.NoError(t, err)
	}
	require.Equal(t, match.StateSettled, m.State)
	require.Equal(t, winner, m.Outcome.Winner)
}

func TestFlow_GroupStageToCompletion(t *testing.T) {
	a := newArena(t, 8)
	a.create(t, "cup", tournament.Settings{
		Title:           "Group Cup",
		GameType:        shared.GameFIFA,
		Format:          bracket.FormatGroupStage,
		MinParticipants: 8,
		MaxParticipants: 8,
		EntryFee:        25,
		GroupSize:       4,
		Advance:         2,
		Prizes: []tournament.Prize{
			{Rank: 1, Amount: 100},
			{Rank: 2, Amount: 50},
			{Rank: 3, Amount: 25},
		},
	})
	a.register(t, "cup", 8)

	tour := a.tournament(t, "cup")
	require.Equal(t, tournament.StateInProgress, tour.State)
	require.Len(t, tour.Bracket.Groups, 2)

	tour = a.playOut(t, "cup")

	require.Equal(t, tournament.StateCompleted, tour.State)
	// Groups are p01 p04 p05 p08 and p02 p03 p06 p07. Winners and runners-up
	// meet in a seeded knockout; the rest rank by group position.
	assert.Equal(t, []shared.UserID{"p01", "p02", "p04", "p03", "p05", "p06", "p07", "p08"}, tour.Ranking)
	require.Len(t, tour.Payouts, 3)

	expected := map[shared.UserID]shared.Amount{
		"p01": 175, "p02": 125, "p04": 100, "p03": 75,
		"p05": 75, "p06": 75, "p07": 75, "p08": 75,
	}
	for user, want := range expected {
		assert.Equal(t, want, a.balance(t, user), "balance of %s", user)
	}
	assert.EqualValues(t, 25, a.balance(t, shared.TournamentID("cup").PoolAccount()))
}

func TestFlow_RoundRobinToCompletion(t *testing.T) {
	a := newArena(t, 5)
	a.create(t, "league", tournament.Settings{
		Title:           "Spring League",
		GameType:        shared.GameEFootball,
		Format:          bracket.FormatRoundRobin,
		MinParticipants: 4,
		MaxParticipants: 5,
		EntryFee:        20,
		Prizes:          []tournament.Prize{{Rank: 1, Amount: 50}, {Rank: 2, Amount: 30}},
	})
	a.register(t, "league", 5)

	tour := a.playOut(t, "league")

	require.Equal(t, tournament.StateCompleted, tour.State)
	assert.Equal(t, []shared.UserID{"p01", "p02", "p03", "p04", "p05"}, tour.Ranking)
	table := tour.Bracket.Standings(0)
	require.Len(t, table, 5)
	assert.Equal(t, 4, table[0].Won)
	assert.Equal(t, 12, table[0].Points)
	assert.Equal(t, 0, table[4].Won)

	expected := map[shared.UserID]shared.Amount{"p01": 130, "p02": 110, "p03": 80, "p04": 80, "p05": 80}
	for user, want := range expected {
		assert.Equal(t, want, a.balance(t, user), "balance of %s", user)
	}
	assert.EqualValues(t, 20, a.balance(t, shared.TournamentID("league").PoolAccount()))
}

func TestFlow_CODMKnockoutSeatsDeclaredAmmo(t *testing.T) {
	ctx := context.Background()
	a := newArena(t, 4)
	for i := 1; i <= 2; i++ {
		p, err := a.dir.Profile(ctx, playerID(i))
		require.NoError(t, err)
		p.Tags[player.TagAmmo] = "Standard"
		a.dir.Put(p)
	}
	a.create(t, "codm", tournament.Settings{
		Title:           "CODM Night",
		GameType:        shared.GameCODM,
		Format:          bracket.FormatKnockout,
		MinParticipants: 4,
		MaxParticipants: 4,
	})

	for i := 1; i <= 2; i++ {
		_, err := a.svc.Register(ctx, tournaments.RegisterCommand{TournamentID: "codm", UserID: playerID(i)})
		require.NoError(t, err)
	}
	_, err := a.svc.Register(ctx, tournaments.RegisterCommand{TournamentID: "codm", UserID: "p03"})
	require.ErrorIs(t, err, tournament.ErrAmmoTypeRequired)
	for i := 3; i <= 4; i++ {
		_, err := a.svc.Register(ctx, tournaments.RegisterCommand{TournamentID: "codm", UserID: playerID(i), AmmoType: " standard "})
		require.NoError(t, err)
	}

	tour := a.tournament(t, "codm")
	require.Equal(t, tournament.StateInProgress, tour.State)
	for _, p := range tour.Participants {
		assert.Equal(t, "standard", p.AmmoType, "ammo of %s", p.UserID)
	}
	live := tour.Bracket.Scheduled()
	require.Len(t, live, 2)
	for _, id := range live {
		m, err := a.engine.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, match.StateReady, m.State)
		assert.Equal(t, "standard", m.A.AmmoType)
		assert.Equal(t, "standard", m.B.AmmoType)
	}

	tour = a.playOut(t, "codm")
	require.Equal(t, tournament.StateCompleted, tour.State)
	assert.Equal(t, []shared.UserID{"p01", "p02", "p03", "p04"}, tour.Ranking)
}
