package verification

import (
	"context"
	"strings"

	"github.com/sandai/arena/src/domain/match"
	"github.com/sandai/arena/src/domain/shared"
)

// Assessment is what the evidence pipeline learned from one piece of evidence.
type Assessment struct {
	Valid         bool
	DeclaredScore *match.Score
	AmmoType      string
}

// Verifier inspects result evidence.
type Verifier interface {
	Assess(ctx context.Context, evidenceRef string) (Assessment, error)
}

// VerifierFunc adapts a function into a Verifier.
type VerifierFunc func(ctx context.Context, evidenceRef string) (Assessment, error)

func (f VerifierFunc) Assess(ctx context.Context, evidenceRef string) (Assessment, error) {
	return f(ctx, evidenceRef)
}

// PresenceVerifier accepts any non-empty evidence reference.
var PresenceVerifier = VerifierFunc(func(_ context.Context, ref string) (Assessment, error) {
	return Assessment{Valid: strings.TrimSpace(ref) != ""}, nil
})

type VerdictKind string

const (
	VerdictWinner   VerdictKind = "winner"
	VerdictDraw     VerdictKind = "draw"
	VerdictVoid     VerdictKind = "void"
	VerdictDisputed VerdictKind = "disputed"
)

// Verdict is the resolver's decision on a match in verification.
type Verdict struct {
	Kind   VerdictKind
	Winner shared.UserID
	Score  *match.Score
	Reason match.Reason
}

// Resolver turns claims plus evidence into a verdict.
type Resolver struct {
	Verifier Verifier
}

func NewResolver(v Verifier) *Resolver {
	if v == nil {
		v = PresenceVerifier
	}
	return &Resolver{Verifier: v}
}

// Resolve decides the verdict for m from whatever claims it holds. Callers
// invoke it once both claims arrived or the verification window closed.
func (r *Resolver) Resolve(ctx context.Context, m *match.Match) Verdict {
	if len(m.Claims) == 0 {
		return Verdict{Kind: VerdictVoid, Reason: match.ReasonNoClaims}
	}

	valid := true
	for _, c := range m.Claims {
		a, err := r.assess(ctx, c.EvidenceRef)
		if err != nil || !a.Valid {
			valid = false
			continue
		}
		if m.GameType.RequiresAmmo() && a.AmmoType != "" && a.AmmoType != m.AmmoType() {
			return Verdict{Kind: VerdictVoid, Reason: match.ReasonAmmoMismatch}
		}
		if a.DeclaredScore != nil && *a.DeclaredScore != c.Score {
			valid = false
		}
	}

	if len(m.Claims) == 1 {
		return Verdict{Kind: VerdictDisputed, Reason: match.ReasonMissingClaim}
	}
	if !valid {
		return Verdict{Kind: VerdictDisputed, Reason: match.ReasonEvidenceMismatch}
	}
	first, second := m.Claims[0], m.Claims[1]
	if !first.Agrees(second) {
		return Verdict{Kind: VerdictDisputed, Reason: match.ReasonConflictingClaims}
	}
	score := first.Score
	if first.Winner == "" {
		return Verdict{Kind: VerdictDraw, Score: &score, Reason: match.ReasonAgreed}
	}
	return Verdict{Kind: VerdictWinner, Winner: first.Winner, Score: &score, Reason: match.ReasonAgreed}
}

func (r *Resolver) assess(ctx context.Context, ref string) (Assessment, error) {
	if strings.TrimSpace(ref) == "" {
		return Assessment{}, nil
	}
	v := r.Verifier
	if v == nil {
		v = PresenceVerifier
	}
	return v.Assess(ctx, ref)
}
