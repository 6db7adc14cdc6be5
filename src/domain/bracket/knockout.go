package bracket

import "github.com/sandai/arena/src/domain/shared"

type SourceKind string

const (
	SourceEntrant SourceKind = "entrant"
	SourceWinner  SourceKind = "winner"
	SourceNone    SourceKind = "none"
)

// Source says where a slot side comes from: a seeded entrant, the winner of
// an earlier slot, or nobody (a bye).
type Source struct {
	Kind   SourceKind    `json:"kind"`
	UserID shared.UserID `json:"user_id,omitempty"`
	Round  int           `json:"round,omitempty"`
	Index  int           `json:"index,omitempty"`
}

// Slot is one knockout pairing.
type Slot struct {
	A       Source         `json:"a"`
	B       Source         `json:"b"`
	Status  SlotStatus     `json:"status"`
	MatchID shared.MatchID `json:"match_id,omitempty"`
	Attempt int            `json:"attempt"`
	Winner  shared.UserID  `json:"winner,omitempty"`
	Loser   shared.UserID  `json:"loser,omitempty"`
	ScoreA  int            `json:"score_a"`
	ScoreB  int            `json:"score_b"`
}

// buildKnockout halves the field each round. Each round pairs its entrants
// strongest against weakest; an odd count gives the strongest a bye, so the
// field takes ceil(log2 n) rounds without padding to a power of two.
func buildKnockout(entrants []Entrant) [][]Slot {
	sources := make([]Source, len(entrants))
	for i, e := range entrants {
		sources[i] = Source{Kind: SourceEntrant, UserID: e.UserID}
	}

	var rounds [][]Slot
	for len(sources) > 1 {
		round := len(rounds) + 1
		var slots []Slot
		rest := sources
		if len(rest)%2 == 1 {
			slots = append(slots, Slot{A: rest[0], B: Source{Kind: SourceNone}, Status: StatusPending})
			rest = rest[1:]
		}
		for i, j := 0, len(rest)-1; i < j; i, j = i+1, j-1 {
			slots = append(slots, Slot{A: rest[i], B: rest[j], Status: StatusPending})
		}
		rounds = append(rounds, slots)

		next := make([]Source, len(slots))
		for i := range slots {
			next[i] = Source{Kind: SourceWinner, Round: round, Index: i}
		}
		sources = next
	}
	return rounds
}

func (b *Bracket) resolve(src Source) (shared.UserID, bool) {
	switch src.Kind {
	case SourceEntrant:
		return src.UserID, true
	case SourceWinner:
		if src.Round < 1 || src.Round > len(b.Rounds) {
			return "", false
		}
		w := b.Rounds[src.Round-1][src.Index].Winner
		return w, w != ""
	}
	return "", false
}

// advance moves bye slots forward once their single side is known. Rounds
// are walked in order so a bye unlocked early cascades in one pass.
func (b *Bracket) advance() {
	for ri := range b.Rounds {
		for si := range b.Rounds[ri] {
			s := &b.Rounds[ri][si]
			if s.Status != StatusPending || s.B.Kind != SourceNone {
				continue
			}
			if w, ok := b.resolve(s.A); ok {
				s.Status = StatusBye
				s.Winner = w
			}
		}
	}
}

func (b *Bracket) completeSlot(s *Slot, a, c shared.UserID, res Result) {
	s.Status = StatusCompleted
	s.Winner = res.Winner
	if res.Winner == a {
		s.Loser = c
	} else {
		s.Loser = a
	}
	s.ScoreA = res.ScoreA
	s.ScoreB = res.ScoreB
}
