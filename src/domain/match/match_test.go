package match_test

import (
	"errors"
	"testing"
	"time"

	"github.com/sandai/arena/src/domain/match"
	"github.com/sandai/arena/src/domain/shared"
)

var timing = match.Timing{
	MatchmakingTimeout: 2 * time.Minute,
	ReadyGrace:         30 * time.Second,
	PlayDuration:       10 * time.Minute,
	VerificationWindow: 5 * time.Minute,
}

func newReadyMatch(t *testing.T, game shared.GameType, now time.Time) *match.Match {
	t.Helper()
	m, err := match.NewScheduled(match.Schedule{
		ID:       "m-1",
		GameType: game,
		Wager:    4000,
		A:        match.Participant{UserID: "alice", AmmoType: "standard"},
		B:        match.Participant{UserID: "bob", AmmoType: "standard"},
	}, timing, now)
	if err != nil {
		t.Fatalf("NewScheduled() error = %v", err)
	}
	if err := m.MarkReady(now); err != nil {
		t.Fatalf("MarkReady() error = %v", err)
	}
	return m
}

func newPlayingMatch(t *testing.T, now time.Time) *match.Match {
	t.Helper()
	m := newReadyMatch(t, shared.GameFIFA, now)
	if err := m.AutoStart(now); err != nil {
		t.Fatalf("AutoStart() error = %v", err)
	}
	return m
}

func TestNewSearching(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		id      shared.MatchID
		game    shared.GameType
		wager   shared.Amount
		user    shared.UserID
		wantErr bool
	}{
		{name: "valid", id: "m-1", game: shared.GameEFootball, wager: 100, user: "alice"},
		{name: "zero wager", id: "m-1", game: shared.GameCODM, wager: 0, user: "alice"},
		{name: "empty id", id: "", game: shared.GameFIFA, wager: 100, user: "alice", wantErr: true},
		{name: "unknown game", id: "m-1", game: "chess", wager: 100, user: "alice", wantErr: true},
		{name: "negative wager", id: "m-1", game: shared.GameFIFA, wager: -1, user: "alice", wantErr: true},
		{name: "empty user", id: "m-1", game: shared.GameFIFA, wager: 100, user: " ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := match.NewSearching(tt.id, tt.game, tt.wager, match.Participant{UserID: tt.user}, timing, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewSearching() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if m.State != match.StateMatching {
				t.Errorf("State = %v, want %v", m.State, match.StateMatching)
			}
			if !m.Deadline.Equal(now.Add(timing.MatchmakingTimeout)) {
				t.Errorf("Deadline = %v, want matchmaking deadline", m.Deadline)
			}
		})
	}
}

func TestMatch_Join(t *testing.T) {
	now := time.Now()
	m, _ := match.NewSearching("m-1", shared.GameFIFA, 100, match.Participant{UserID: "alice"}, timing, now)

	if err := m.Join(match.Participant{UserID: "alice"}, now); !errors.Is(err, match.ErrSelfMatch) {
		t.Fatalf("Join(self) error = %v, want %v", err, match.ErrSelfMatch)
	}
	if err := m.Join(match.Participant{UserID: "bob"}, now); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if err := m.Join(match.Participant{UserID: "carol"}, now); !errors.Is(err, match.ErrIllegalTransition) {
		t.Fatalf("Join(full) error = %v, want %v", err, match.ErrIllegalTransition)
	}
	if !m.Full() || !m.Has("bob") {
		t.Fatal("expected bob to be seated")
	}
}

func TestMatch_AmmoCompatible(t *testing.T) {
	tests := []struct {
		name string
		game shared.GameType
		a, b string
		want bool
	}{
		{name: "codm same ammo", game: shared.GameCODM, a: "standard", b: "standard", want: true},
		{name: "codm different ammo", game: shared.GameCODM, a: "standard", b: "explosive", want: false},
		{name: "codm undeclared", game: shared.GameCODM, a: "", b: "", want: false},
		{name: "football ignores ammo", game: shared.GameEFootball, a: "standard", b: "explosive", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := match.NewScheduled(match.Schedule{
				ID:       "m-1",
				GameType: tt.game,
				A:        match.Participant{UserID: "alice", AmmoType: tt.a},
				B:        match.Participant{UserID: "bob", AmmoType: tt.b},
			}, timing, time.Now())
			if err != nil {
				t.Fatalf("NewScheduled() error = %v", err)
			}
			if got := m.AmmoCompatible(); got != tt.want {
				t.Errorf("AmmoCompatible() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatch_FirstStartBeginsPlay(t *testing.T) {
	now := time.Now()
	m := newReadyMatch(t, shared.GameFIFA, now)

	if err := m.Start("mallory", now); !errors.Is(err, match.ErrNotParticipant) {
		t.Fatalf("Start(mallory) error = %v, want %v", err, match.ErrNotParticipant)
	}
	if err := m.Start("alice", now); err != nil {
		t.Fatalf("Start(alice) error = %v", err)
	}
	if m.State != match.StatePlaying {
		t.Fatalf("State = %v after one start, want playing", m.State)
	}
	if !m.Deadline.Equal(now.Add(timing.PlayDuration)) {
		t.Errorf("Deadline = %v, want play deadline", m.Deadline)
	}

	later := now.Add(5 * time.Second)
	if err := m.Start("bob", later); err != nil {
		t.Fatalf("Start(bob) error = %v", err)
	}
	if !m.B.Started {
		t.Errorf("bob not recorded as started")
	}
	if !m.Deadline.Equal(now.Add(timing.PlayDuration)) {
		t.Errorf("Deadline moved to %v by the second start", m.Deadline)
	}
	if err := m.Start("bob", later); err != nil {
		t.Errorf("repeated Start() error = %v, want nil", err)
	}
}

func TestMatch_SubmitDrivesVerification(t *testing.T) {
	now := time.Now()
	m := newPlayingMatch(t, now)

	claim := match.Claim{Participant: "alice", Winner: "alice", Score: match.Score{A: 3, B: 1}, EvidenceRef: "ev-a"}
	if err := m.Submit(claim, now); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if m.State != match.StatePlaying {
		t.Fatalf("State = %v, want playing until both signal", m.State)
	}
	if err := m.Submit(claim, now); !errors.Is(err, match.ErrDuplicateSubmission) {
		t.Fatalf("duplicate Submit() error = %v, want %v", err, match.ErrDuplicateSubmission)
	}
	if err := m.SignalEnd("bob", now); err != nil {
		t.Fatalf("SignalEnd() error = %v", err)
	}
	if m.State != match.StateVerifying {
		t.Fatalf("State = %v, want verifying", m.State)
	}
	if err := m.Submit(match.Claim{Participant: "bob", Winner: "alice", Score: match.Score{A: 3, B: 1}}, now); err != nil {
		t.Fatalf("Submit(bob) error = %v", err)
	}
	if !m.BothClaimed() {
		t.Error("BothClaimed() = false, want true")
	}
}

func TestMatch_SubmitValidatesClaim(t *testing.T) {
	tests := []struct {
		name  string
		claim match.Claim
		want  error
	}{
		{name: "winner with matching score", claim: match.Claim{Participant: "alice", Winner: "bob", Score: match.Score{A: 0, B: 2}}},
		{name: "winner without score", claim: match.Claim{Participant: "alice", Winner: "alice"}},
		{name: "draw", claim: match.Claim{Participant: "alice", Score: match.Score{A: 1, B: 1}}},
		{name: "winner contradicts score", claim: match.Claim{Participant: "alice", Winner: "alice", Score: match.Score{A: 0, B: 2}}, want: match.ErrInvalidClaim},
		{name: "draw with uneven score", claim: match.Claim{Participant: "alice", Score: match.Score{A: 2, B: 1}}, want: match.ErrInvalidClaim},
		{name: "stranger as winner", claim: match.Claim{Participant: "alice", Winner: "carol"}, want: match.ErrInvalidClaim},
		{name: "stranger submits", claim: match.Claim{Participant: "carol", Winner: "alice"}, want: match.ErrNotParticipant},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newPlayingMatch(t, time.Now())
			err := m.Submit(tt.claim, time.Now())
			if !errors.Is(err, tt.want) {
				t.Errorf("Submit() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestMatch_IllegalTransitions(t *testing.T) {
	now := time.Now()
	searching, _ := match.NewSearching("m-1", shared.GameFIFA, 100, match.Participant{UserID: "alice"}, timing, now)

	if err := searching.MarkReady(now); !errors.Is(err, match.ErrIllegalTransition) {
		t.Errorf("MarkReady() without opponent error = %v", err)
	}
	if err := searching.Submit(match.Claim{Participant: "alice", Winner: "alice"}, now); !errors.Is(err, match.ErrIllegalTransition) {
		t.Errorf("Submit() while matching error = %v", err)
	}
	if err := searching.Settle(match.Outcome{Kind: match.OutcomeVoid}, now); !errors.Is(err, match.ErrIllegalTransition) {
		t.Errorf("Settle() while matching error = %v", err)
	}
	if err := searching.Void(match.Outcome{Kind: match.OutcomeVoid, Reason: match.ReasonMatchmakingTimeout}, now); err != nil {
		t.Fatalf("Void() error = %v", err)
	}
	if err := searching.Void(match.Outcome{Kind: match.OutcomeVoid}, now); !errors.Is(err, match.ErrIllegalTransition) {
		t.Errorf("Void() twice error = %v", err)
	}
	if !searching.State.Terminal() {
		t.Errorf("State = %v, want terminal", searching.State)
	}
}

func TestMatch_ForfeitWinner(t *testing.T) {
	now := time.Now()
	m := newPlayingMatch(t, now)

	winner, err := m.ForfeitWinner("alice")
	if err != nil {
		t.Fatalf("ForfeitWinner() error = %v", err)
	}
	if winner != "bob" {
		t.Errorf("winner = %v, want bob", winner)
	}
	if _, err := m.ForfeitWinner("carol"); !errors.Is(err, match.ErrNotParticipant) {
		t.Errorf("ForfeitWinner(carol) error = %v", err)
	}
}

func TestMatch_DueAndDispute(t *testing.T) {
	now := time.Now()
	m := newPlayingMatch(t, now)

	if m.Due(now.Add(time.Minute)) {
		t.Error("Due() = true before play deadline")
	}
	end := now.Add(timing.PlayDuration)
	if !m.Due(end) {
		t.Fatal("Due() = false at play deadline")
	}
	if err := m.ExpirePlay(end); err != nil {
		t.Fatalf("ExpirePlay() error = %v", err)
	}
	if err := m.Dispute(match.ReasonMissingClaim, end); err != nil {
		t.Fatalf("Dispute() error = %v", err)
	}
	if m.Due(end.Add(24 * time.Hour)) {
		t.Error("disputed match must not be due")
	}
	if err := m.Settle(match.Outcome{Kind: match.OutcomeWinner, Winner: "bob", Reason: match.ReasonAdjudicated}, end); err != nil {
		t.Fatalf("Settle() after dispute error = %v", err)
	}
	if m.State != match.StateSettled || m.Outcome.Winner != "bob" {
		t.Errorf("got state %v outcome %+v", m.State, m.Outcome)
	}
}

func TestMatch_CloneIsDeep(t *testing.T) {
	m := newPlayingMatch(t, time.Now())
	_ = m.Submit(match.Claim{Participant: "alice", Winner: "alice"}, time.Now())

	c := m.Clone()
	c.B.UserID = "changed"
	c.Claims[0].Winner = "changed"

	if m.B.UserID != "bob" || m.Claims[0].Winner != "alice" {
		t.Error("Clone() shares memory with original")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want match.ErrorKind
	}{
		{err: nil, want: ""},
		{err: match.ErrInsufficientFunds, want: match.KindInsufficientFunds},
		{err: errors.Join(errors.New("hold"), match.ErrInsufficientFunds), want: match.KindInsufficientFunds},
		{err: match.ErrDuplicateSubmission, want: match.KindDuplicateSubmission},
		{err: match.ErrMatchNotFound, want: match.KindNotFound},
		{err: errors.New("boom"), want: match.KindUnknown},
	}
	for _, tt := range tests {
		if got := match.KindOf(tt.err); got != tt.want {
			t.Errorf("KindOf(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
