package verification_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sandai/arena/src/domain/match"
	"github.com/sandai/arena/src/domain/shared"
	"github.com/sandai/arena/src/domain/verification"
)

func verifyingMatch(t *testing.T, game shared.GameType, claims ...match.Claim) *match.Match {
	t.Helper()
	now := time.Now()
	m, err := match.NewScheduled(match.Schedule{
		ID:       "m-1",
		GameType: game,
		Wager:    4000,
		A:        match.Participant{UserID: "alice", AmmoType: "standard"},
		B:        match.Participant{UserID: "bob", AmmoType: "standard"},
	}, match.Timing{VerificationWindow: time.Minute}, now)
	if err != nil {
		t.Fatalf("NewScheduled() error = %v", err)
	}
	_ = m.MarkReady(now)
	_ = m.AutoStart(now)
	_ = m.ExpirePlay(now)
	for _, c := range claims {
		if err := m.Submit(c, now); err != nil {
			t.Fatalf("Submit(%+v) error = %v", c, err)
		}
	}
	return m
}

type evidence map[string]verification.Assessment

func (e evidence) Assess(_ context.Context, ref string) (verification.Assessment, error) {
	a, ok := e[ref]
	if !ok {
		return verification.Assessment{}, errors.New("evidence store unavailable")
	}
	return a, nil
}

func TestResolver_Resolve(t *testing.T) {
	aliceWins := match.Score{A: 3, B: 1}
	tests := []struct {
		name       string
		game       shared.GameType
		evidence   evidence
		claims     []match.Claim
		wantKind   verification.VerdictKind
		wantWinner shared.UserID
		wantReason match.Reason
	}{
		{
			name:     "agreeing claims",
			game:     shared.GameEFootball,
			evidence: evidence{"a": {Valid: true}, "b": {Valid: true}},
			claims: []match.Claim{
				{Participant: "alice", Winner: "alice", Score: aliceWins, EvidenceRef: "a"},
				{Participant: "bob", Winner: "alice", Score: aliceWins, EvidenceRef: "b"},
			},
			wantKind:   verification.VerdictWinner,
			wantWinner: "alice",
			wantReason: match.ReasonAgreed,
		},
		{
			name:     "agreed draw",
			game:     shared.GameFIFA,
			evidence: evidence{"a": {Valid: true}, "b": {Valid: true}},
			claims: []match.Claim{
				{Participant: "alice", Score: match.Score{A: 2, B: 2}, EvidenceRef: "a"},
				{Participant: "bob", Score: match.Score{A: 2, B: 2}, EvidenceRef: "b"},
			},
			wantKind:   verification.VerdictDraw,
			wantReason: match.ReasonAgreed,
		},
		{
			name:     "conflicting winners",
			game:     shared.GameFIFA,
			evidence: evidence{"a": {Valid: true}, "b": {Valid: true}},
			claims: []match.Claim{
				{Participant: "alice", Winner: "alice", EvidenceRef: "a"},
				{Participant: "bob", Winner: "bob", EvidenceRef: "b"},
			},
			wantKind:   verification.VerdictDisputed,
			wantReason: match.ReasonConflictingClaims,
		},
		{
			name:     "same winner different score",
			game:     shared.GameFIFA,
			evidence: evidence{"a": {Valid: true}, "b": {Valid: true}},
			claims: []match.Claim{
				{Participant: "alice", Winner: "alice", Score: aliceWins, EvidenceRef: "a"},
				{Participant: "bob", Winner: "alice", Score: match.Score{A: 2, B: 1}, EvidenceRef: "b"},
			},
			wantKind:   verification.VerdictDisputed,
			wantReason: match.ReasonConflictingClaims,
		},
		{
			name:     "evidence contradicts declared score",
			game:     shared.GameEFootball,
			evidence: evidence{"a": {Valid: true, DeclaredScore: &match.Score{A: 1, B: 3}}, "b": {Valid: true}},
			claims: []match.Claim{
				{Participant: "alice", Winner: "alice", Score: aliceWins, EvidenceRef: "a"},
				{Participant: "bob", Winner: "alice", Score: aliceWins, EvidenceRef: "b"},
			},
			wantKind:   verification.VerdictDisputed,
			wantReason: match.ReasonEvidenceMismatch,
		},
		{
			name:     "missing evidence",
			game:     shared.GameEFootball,
			evidence: evidence{"a": {Valid: true}},
			claims: []match.Claim{
				{Participant: "alice", Winner: "alice", EvidenceRef: "a"},
				{Participant: "bob", Winner: "alice"},
			},
			wantKind:   verification.VerdictDisputed,
			wantReason: match.ReasonEvidenceMismatch,
		},
		{
			name:     "verifier failure",
			game:     shared.GameEFootball,
			evidence: evidence{"a": {Valid: true}},
			claims: []match.Claim{
				{Participant: "alice", Winner: "alice", EvidenceRef: "a"},
				{Participant: "bob", Winner: "alice", EvidenceRef: "unknown"},
			},
			wantKind:   verification.VerdictDisputed,
			wantReason: match.ReasonEvidenceMismatch,
		},
		{
			name:     "one-sided claim",
			game:     shared.GameEFootball,
			evidence: evidence{"a": {Valid: true}},
			claims: []match.Claim{
				{Participant: "alice", Winner: "alice", EvidenceRef: "a"},
			},
			wantKind:   verification.VerdictDisputed,
			wantReason: match.ReasonMissingClaim,
		},
		{
			name:       "no claims",
			game:       shared.GameEFootball,
			wantKind:   verification.VerdictVoid,
			wantReason: match.ReasonNoClaims,
		},
		{
			name:     "codm ammo mismatch in evidence",
			game:     shared.GameCODM,
			evidence: evidence{"a": {Valid: true, AmmoType: "standard"}, "b": {Valid: true, AmmoType: "explosive"}},
			claims: []match.Claim{
				{Participant: "alice", Winner: "alice", EvidenceRef: "a"},
				{Participant: "bob", Winner: "alice", EvidenceRef: "b"},
			},
			wantKind:   verification.VerdictVoid,
			wantReason: match.ReasonAmmoMismatch,
		},
		{
			name:     "codm matching ammo",
			game:     shared.GameCODM,
			evidence: evidence{"a": {Valid: true, AmmoType: "standard"}, "b": {Valid: true, AmmoType: "standard"}},
			claims: []match.Claim{
				{Participant: "alice", Winner: "bob", EvidenceRef: "a"},
				{Participant: "bob", Winner: "bob", EvidenceRef: "b"},
			},
			wantKind:   verification.VerdictWinner,
			wantWinner: "bob",
			wantReason: match.ReasonAgreed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := verifyingMatch(t, tt.game, tt.claims...)
			r := verification.NewResolver(tt.evidence)

			got := r.Resolve(context.Background(), m)
			if got.Kind != tt.wantKind {
				t.Errorf("Resolve() kind = %v, want %v", got.Kind, tt.wantKind)
			}
			if got.Winner != tt.wantWinner {
				t.Errorf("Resolve() winner = %v, want %v", got.Winner, tt.wantWinner)
			}
			if got.Reason != tt.wantReason {
				t.Errorf("Resolve() reason = %v, want %v", got.Reason, tt.wantReason)
			}
		})
	}
}

func TestPresenceVerifier(t *testing.T) {
	a, err := verification.PresenceVerifier.Assess(context.Background(), "  ")
	if err != nil || a.Valid {
		t.Errorf("blank ref assessed as %+v, %v", a, err)
	}
	a, err = verification.PresenceVerifier.Assess(context.Background(), "s3://bucket/key")
	if err != nil || !a.Valid {
		t.Errorf("ref assessed as %+v, %v", a, err)
	}
}
