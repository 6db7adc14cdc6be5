package bracket_test

import (
	"errors"
	"fmt"
	"math/bits"
	"testing"

	"github.com/sandai/arena/src/domain/bracket"
	"github.com/sandai/arena/src/domain/shared"
)

func entrants(n int) []bracket.Entrant {
	out := make([]bracket.Entrant, n)
	for i := range out {
		out[i] = bracket.Entrant{UserID: shared.UserID(fmt.Sprintf("p%02d", i+1)), Seed: i + 1}
	}
	return out
}

// favourite returns a decider where the better original seed always wins.
func favourite(es []bracket.Entrant) func(bracket.Playable) bracket.Result {
	seed := map[shared.UserID]int{}
	for _, e := range es {
		seed[e.UserID] = e.Seed
	}
	return func(p bracket.Playable) bracket.Result {
		if seed[p.A] < seed[p.B] {
			return bracket.Result{Winner: p.A, ScoreA: 2, ScoreB: 0}
		}
		return bracket.Result{Winner: p.B, ScoreA: 0, ScoreB: 2}
	}
}

func matchID(p bracket.Playable) shared.MatchID {
	return shared.MatchID(fmt.Sprintf("%s#%d", p.Ref, p.Attempt))
}

// playAll drives the bracket to completion and returns the loss count per
// entrant.
func playAll(t *testing.T, b *bracket.Bracket, decide func(bracket.Playable) bracket.Result) map[shared.UserID]int {
	t.Helper()
	losses := map[shared.UserID]int{}
	for guard := 0; guard < 10000; guard++ {
		ps := b.Playable()
		if len(ps) == 0 {
			return losses
		}
		for _, p := range ps {
			id := matchID(p)
			if err := b.MarkScheduled(p.Ref, id); err != nil {
				t.Fatalf("MarkScheduled(%v) error = %v", p.Ref, err)
			}
			res := decide(p)
			if _, err := b.RecordResult(p.Ref, id, res); err != nil {
				t.Fatalf("RecordResult(%v) error = %v", p.Ref, err)
			}
			if res.Winner == p.A {
				losses[p.B]++
			} else if res.Winner == p.B {
				losses[p.A]++
			}
		}
	}
	t.Fatal("bracket never finished")
	return nil
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name     string
		format   bracket.Format
		entrants []bracket.Entrant
		opts     bracket.Options
		want     error
	}{
		{name: "single entrant", format: bracket.FormatKnockout, entrants: entrants(1), want: bracket.ErrTooFewEntrants},
		{name: "duplicate entrant", format: bracket.FormatKnockout, entrants: append(entrants(2), bracket.Entrant{UserID: "p01", Seed: 3}), want: bracket.ErrDuplicateEntrant},
		{name: "advance larger than group", format: bracket.FormatGroupStage, entrants: entrants(6), opts: bracket.Options{GroupSize: 3, Advance: 4}, want: bracket.ErrInvalidAdvance},
		{name: "valid group stage", format: bracket.FormatGroupStage, entrants: entrants(6), opts: bracket.Options{GroupSize: 3, Advance: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := bracket.New(tt.format, tt.entrants, tt.opts)
			if !errors.Is(err, tt.want) {
				t.Errorf("New() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestKnockout_RoundCount(t *testing.T) {
	for n := 2; n <= 64; n++ {
		b, err := bracket.New(bracket.FormatKnockout, entrants(n), bracket.Options{})
		if err != nil {
			t.Fatalf("New(%d) error = %v", n, err)
		}
		want := bits.Len(uint(n - 1))
		if len(b.Rounds) != want {
			t.Errorf("n=%d rounds = %d, want %d", n, len(b.Rounds), want)
		}
	}
}

func TestKnockout_FiveEntrantsGetOneBye(t *testing.T) {
	b, err := bracket.New(bracket.FormatKnockout, entrants(5), bracket.Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	first := b.Rounds[0]
	byes, matches := 0, 0
	for _, s := range first {
		switch s.Status {
		case bracket.StatusBye:
			byes++
			if s.Winner != "p01" {
				t.Errorf("bye went to %v, want top seed", s.Winner)
			}
		case bracket.StatusPending:
			matches++
		}
	}
	if byes != 1 || matches != 2 {
		t.Errorf("round 1 has %d byes and %d matches, want 1 and 2", byes, matches)
	}
	if got := len(b.Playable()); got != 2 {
		t.Errorf("Playable() = %d units, want 2", got)
	}
}

func TestKnockout_TopSeedByeCarriesIntoRoundTwo(t *testing.T) {
	es := entrants(5)
	b, _ := bracket.New(bracket.FormatKnockout, es, bracket.Options{})
	if len(b.Rounds) != 3 {
		t.Fatalf("rounds = %d, want 3", len(b.Rounds))
	}
	second := b.Rounds[1][0]
	if second.Status != bracket.StatusBye || second.Winner != "p01" {
		t.Fatalf("round 2 bye = %v/%q, want p01", second.Status, second.Winner)
	}

	decide := favourite(es)
	var played []int
	for guard := 0; guard < 10 && !b.Complete(); guard++ {
		for _, p := range b.Playable() {
			id := matchID(p)
			_ = b.MarkScheduled(p.Ref, id)
			if p.A == "p01" || p.B == "p01" {
				played = append(played, p.Ref.Round)
			}
			if _, err := b.RecordResult(p.Ref, id, decide(p)); err != nil {
				t.Fatalf("RecordResult(%v) error = %v", p.Ref, err)
			}
		}
	}
	if len(played) != 1 || played[0] != 3 {
		t.Errorf("top seed played in rounds %v, want only the final", played)
	}
}

func TestKnockout_SingleUndefeatedChampion(t *testing.T) {
	for n := 2; n <= 33; n++ {
		es := entrants(n)
		b, _ := bracket.New(bracket.FormatKnockout, es, bracket.Options{})
		// The weaker seed always wins.
		decide := func(p bracket.Playable) bracket.Result {
			if p.A > p.B {
				return bracket.Result{Winner: p.A}
			}
			return bracket.Result{Winner: p.B}
		}
		losses := playAll(t, b, decide)

		if !b.Complete() {
			t.Fatalf("n=%d bracket not complete", n)
		}
		champion, _ := b.Champion()
		undefeated := 0
		for _, e := range es {
			if losses[e.UserID] == 0 {
				undefeated++
				if e.UserID != champion {
					t.Errorf("n=%d %v undefeated but not champion", n, e.UserID)
				}
			}
			if losses[e.UserID] > 1 {
				t.Errorf("n=%d %v lost %d times", n, e.UserID, losses[e.UserID])
			}
		}
		if undefeated != 1 {
			t.Errorf("n=%d undefeated = %d, want 1", n, undefeated)
		}
		ranking, err := b.Ranking()
		if err != nil || len(ranking) != n || ranking[0] != champion {
			t.Errorf("n=%d Ranking() = %v, %v", n, ranking, err)
		}
	}
}

func TestKnockout_RankingByElimination(t *testing.T) {
	es := entrants(4)
	b, _ := bracket.New(bracket.FormatKnockout, es, bracket.Options{})
	playAll(t, b, favourite(es))

	ranking, err := b.Ranking()
	if err != nil {
		t.Fatalf("Ranking() error = %v", err)
	}
	want := []shared.UserID{"p01", "p02", "p03", "p04"}
	for i := range want {
		if ranking[i] != want[i] {
			t.Fatalf("Ranking() = %v, want %v", ranking, want)
		}
	}
}

func TestKnockout_VoidNeedsOperator(t *testing.T) {
	b, _ := bracket.New(bracket.FormatKnockout, entrants(2), bracket.Options{})
	p := b.Playable()[0]
	id := matchID(p)
	_ = b.MarkScheduled(p.Ref, id)

	if _, err := b.RecordResult(p.Ref, id, bracket.Result{Void: true}); err != nil {
		t.Fatalf("RecordResult(void) error = %v", err)
	}
	if len(b.Playable()) != 0 {
		t.Fatal("void slot must not be playable")
	}
	changed, err := b.RecordResult(p.Ref, id, bracket.Result{Winner: "p01"})
	if err != nil || changed {
		t.Fatalf("RecordResult() on void slot = %v, %v; want no change", changed, err)
	}

	if err := b.Replay(p.Ref); err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	replay := b.Playable()
	if len(replay) != 1 || replay[0].Attempt != 1 {
		t.Fatalf("Playable() after replay = %+v", replay)
	}
	if err := b.Award(p.Ref, "p02"); err != nil {
		t.Fatalf("Award() error = %v", err)
	}
	if champion, _ := b.Champion(); champion != "p02" {
		t.Errorf("Champion() = %v, want p02", champion)
	}
}

func TestKnockout_DrawIsReplayed(t *testing.T) {
	b, _ := bracket.New(bracket.FormatKnockout, entrants(2), bracket.Options{})
	p := b.Playable()[0]
	id := matchID(p)
	_ = b.MarkScheduled(p.Ref, id)

	if _, err := b.RecordResult(p.Ref, id, bracket.Result{Draw: true, ScoreA: 1, ScoreB: 1}); err != nil {
		t.Fatalf("RecordResult(draw) error = %v", err)
	}
	again := b.Playable()
	if len(again) != 1 || again[0].Attempt != 1 {
		t.Fatalf("Playable() after draw = %+v", again)
	}
}

func TestRecordResult_Guards(t *testing.T) {
	b, _ := bracket.New(bracket.FormatKnockout, entrants(2), bracket.Options{})
	p := b.Playable()[0]
	_ = b.MarkScheduled(p.Ref, "m-1")

	if _, err := b.RecordResult(p.Ref, "m-other", bracket.Result{Winner: p.A}); !errors.Is(err, bracket.ErrStaleMatch) {
		t.Errorf("stale RecordResult() error = %v", err)
	}
	if _, err := b.RecordResult(p.Ref, "m-1", bracket.Result{Winner: "stranger"}); !errors.Is(err, bracket.ErrUnknownWinner) {
		t.Errorf("stranger RecordResult() error = %v", err)
	}
	if err := b.MarkScheduled(p.Ref, "m-2"); !errors.Is(err, bracket.ErrInvalidSlotState) {
		t.Errorf("rebinding MarkScheduled() error = %v", err)
	}
	if err := b.MarkScheduled(p.Ref, "m-1"); err != nil {
		t.Errorf("repeated MarkScheduled() error = %v", err)
	}
	if changed, err := b.RecordResult(p.Ref, "m-1", bracket.Result{Winner: p.A}); err != nil || !changed {
		t.Fatalf("RecordResult() = %v, %v", changed, err)
	}
	if changed, err := b.RecordResult(p.Ref, "m-1", bracket.Result{Winner: p.A}); err != nil || changed {
		t.Errorf("repeated RecordResult() = %v, %v; want idempotent", changed, err)
	}
	if changed, err := b.RecordResult(p.Ref, "m-1", bracket.Result{Winner: p.B}); !errors.Is(err, bracket.ErrInvalidSlotState) || changed {
		t.Errorf("conflicting RecordResult() = %v, %v; want ErrInvalidSlotState", changed, err)
	}
	if changed, err := b.RecordResult(p.Ref, "m-1", bracket.Result{Draw: true}); !errors.Is(err, bracket.ErrInvalidSlotState) || changed {
		t.Errorf("draw after win RecordResult() = %v, %v; want ErrInvalidSlotState", changed, err)
	}
	if champ, _ := b.Champion(); champ != p.A {
		t.Errorf("Champion() = %q after conflicting result, want %q", champ, p.A)
	}
	if _, err := b.RecordResult(bracket.Ref{Phase: bracket.PhaseKnockout, Round: 9}, "m-1", bracket.Result{}); !errors.Is(err, bracket.ErrSlotNotFound) {
		t.Errorf("unknown slot error = %v", err)
	}
}

func TestRecordResult_GroupFixtureKeepsFirstResult(t *testing.T) {
	b, _ := bracket.New(bracket.FormatRoundRobin, entrants(3), bracket.Options{})
	p := b.Playable()[0]
	_ = b.MarkScheduled(p.Ref, "m-1")

	if changed, err := b.RecordResult(p.Ref, "m-1", bracket.Result{Draw: true, ScoreA: 1, ScoreB: 1}); err != nil || !changed {
		t.Fatalf("RecordResult(draw) = %v, %v", changed, err)
	}
	if changed, err := b.RecordResult(p.Ref, "m-1", bracket.Result{Draw: true, ScoreA: 1, ScoreB: 1}); err != nil || changed {
		t.Errorf("repeated draw = %v, %v; want idempotent", changed, err)
	}
	if _, err := b.RecordResult(p.Ref, "m-1", bracket.Result{Winner: p.A}); !errors.Is(err, bracket.ErrInvalidSlotState) {
		t.Errorf("winner after draw error = %v, want ErrInvalidSlotState", err)
	}
	if changed, err := b.RecordResult(p.Ref, "m-1", bracket.Result{Void: true}); err != nil || changed {
		t.Errorf("void after draw = %v, %v; want ignored", changed, err)
	}
}

func TestGroupStage_SnakeDistribution(t *testing.T) {
	b, err := bracket.New(bracket.FormatGroupStage, entrants(8), bracket.Options{GroupSize: 4, Advance: 2})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	want := [][]shared.UserID{{"p01", "p04", "p05", "p08"}, {"p02", "p03", "p06", "p07"}}
	for gi, g := range b.Groups {
		for i, e := range g.Entrants {
			if e.UserID != want[gi][i] {
				t.Fatalf("group %d = %+v, want %v", gi, g.Entrants, want[gi])
			}
		}
	}
}

func TestGroup_FixturesCoverEveryPairOnce(t *testing.T) {
	for _, n := range []int{2, 3, 4, 5, 6, 7} {
		b, _ := bracket.New(bracket.FormatRoundRobin, entrants(n), bracket.Options{})
		g := b.Groups[0]
		if len(g.Fixtures) != n*(n-1)/2 {
			t.Errorf("n=%d fixtures = %d, want %d", n, len(g.Fixtures), n*(n-1)/2)
		}
		pairs := map[[2]shared.UserID]bool{}
		perDay := map[int]map[shared.UserID]bool{}
		for _, f := range g.Fixtures {
			key := [2]shared.UserID{f.A, f.B}
			if f.A > f.B {
				key = [2]shared.UserID{f.B, f.A}
			}
			if pairs[key] {
				t.Errorf("n=%d pair %v scheduled twice", n, key)
			}
			pairs[key] = true
			if perDay[f.Day] == nil {
				perDay[f.Day] = map[shared.UserID]bool{}
			}
			if perDay[f.Day][f.A] || perDay[f.Day][f.B] {
				t.Errorf("n=%d day %d double-books a participant", n, f.Day)
			}
			perDay[f.Day][f.A], perDay[f.Day][f.B] = true, true
		}
	}
}

func TestGroup_SchedulesOneDayAtATime(t *testing.T) {
	b, _ := bracket.New(bracket.FormatRoundRobin, entrants(4), bracket.Options{})
	first := b.Playable()
	if len(first) != 2 {
		t.Fatalf("Playable() = %d fixtures, want 2 for day one", len(first))
	}
	for _, p := range first {
		if p.Ref.Round != 1 {
			t.Errorf("fixture %v is not on day one", p.Ref)
		}
	}
	id := matchID(first[0])
	_ = b.MarkScheduled(first[0].Ref, id)
	_, _ = b.RecordResult(first[0].Ref, id, bracket.Result{Winner: first[0].A})
	if got := b.Playable(); len(got) != 1 {
		t.Errorf("Playable() = %+v, want the remaining day one fixture only", got)
	}
}

func TestStandings_PointsAndOrder(t *testing.T) {
	b, _ := bracket.New(bracket.FormatRoundRobin, entrants(3), bracket.Options{})
	// p02 beats p01 2-0, p01 and p03 draw 1-1, p02 and p03 are voided.
	decide := func(p bracket.Playable) bracket.Result {
		pair := map[shared.UserID]bool{p.A: true, p.B: true}
		switch {
		case pair["p01"] && pair["p02"]:
			if p.A == "p02" {
				return bracket.Result{Winner: "p02", ScoreA: 2, ScoreB: 0}
			}
			return bracket.Result{Winner: "p02", ScoreA: 0, ScoreB: 2}
		case pair["p01"] && pair["p03"]:
			return bracket.Result{Draw: true, ScoreA: 1, ScoreB: 1}
		}
		return bracket.Result{Void: true}
	}
	playAll(t, b, decide)

	table := b.Standings(0)
	want := []struct {
		user   shared.UserID
		points int
		played int
	}{
		{"p02", 3, 2},
		{"p03", 1, 2},
		{"p01", 1, 2},
	}
	for i, w := range want {
		row := table[i]
		if row.UserID != w.user || row.Points != w.points || row.Played != w.played {
			t.Errorf("row %d = %+v, want %v with %d points", i, row, w.user, w.points)
		}
		if row.Points != 3*row.Won+row.Drawn {
			t.Errorf("row %d points %d != 3W+D", i, row.Points)
		}
	}
	if table[1].GoalDifference() != 0 || table[2].GoalDifference() != -2 {
		t.Errorf("goal differences = %d, %d; want 0, -2", table[1].GoalDifference(), table[2].GoalDifference())
	}
	if !b.Complete() {
		t.Error("round robin should be complete")
	}
}

func TestStandings_CustomScoring(t *testing.T) {
	es := entrants(2)
	b, _ := bracket.New(bracket.FormatRoundRobin, es, bracket.Options{Scoring: bracket.Scoring{Win: 2, Draw: 1, Loss: 1}})
	playAll(t, b, favourite(es))
	table := b.Standings(0)
	if table[0].Points != 2 || table[1].Points != 1 {
		t.Errorf("Standings() = %+v", table)
	}
}

func TestGroupStage_AdvancesIntoKnockout(t *testing.T) {
	es := entrants(8)
	b, _ := bracket.New(bracket.FormatGroupStage, es, bracket.Options{GroupSize: 4, Advance: 2})
	playAll(t, b, favourite(es))

	wantQualified := []shared.UserID{"p01", "p02", "p04", "p03"}
	for i, e := range b.KnockoutEntrants() {
		if e.UserID != wantQualified[i] {
			t.Fatalf("KnockoutEntrants() = %+v, want %v", b.KnockoutEntrants(), wantQualified)
		}
	}
	ranking, err := b.Ranking()
	if err != nil {
		t.Fatalf("Ranking() error = %v", err)
	}
	want := []shared.UserID{"p01", "p02", "p04", "p03", "p05", "p06", "p07", "p08"}
	for i := range want {
		if ranking[i] != want[i] {
			t.Fatalf("Ranking() = %v, want %v", ranking, want)
		}
	}
	if err := b.Replay(bracket.Ref{Phase: bracket.PhaseGroup, Group: 0, Round: 1, Index: 0}); !errors.Is(err, bracket.ErrInvalidSlotState) && !errors.Is(err, bracket.ErrPhaseClosed) {
		t.Errorf("Replay() in closed group phase error = %v", err)
	}
}

func TestLookup(t *testing.T) {
	b, _ := bracket.New(bracket.FormatRoundRobin, entrants(4), bracket.Options{})
	p := b.Playable()[1]
	_ = b.MarkScheduled(p.Ref, "m-9")

	ref, ok := b.Lookup("m-9")
	if !ok || ref != p.Ref {
		t.Errorf("Lookup() = %v, %v; want %v", ref, ok, p.Ref)
	}
	if _, ok := b.Lookup("missing"); ok {
		t.Error("Lookup(missing) found a slot")
	}
	if got := b.Scheduled(); got[p.Ref] != "m-9" || len(got) != 1 {
		t.Errorf("Scheduled() = %v", got)
	}
}
