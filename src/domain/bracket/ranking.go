package bracket

import (
	"sort"

	"github.com/sandai/arena/src/domain/shared"
)

// Ranking orders every entrant by final placement. Knockout entrants are
// ordered by how far they went, group-only entrants follow by table position.
func (b *Bracket) Ranking() ([]shared.UserID, error) {
	if !b.Complete() {
		return nil, ErrNotComplete
	}
	if b.Format == FormatRoundRobin {
		table := b.Standings(0)
		out := make([]shared.UserID, len(table))
		for i, s := range table {
			out[i] = s.UserID
		}
		return out, nil
	}

	champion, _ := b.Champion()
	out := []shared.UserID{champion}
	out = append(out, b.knockoutRanking(champion)...)
	if b.Format == FormatGroupStage {
		out = append(out, b.groupRanking(out)...)
	}
	return out, nil
}

func (b *Bracket) knockoutRanking(champion shared.UserID) []shared.UserID {
	eliminated := map[shared.UserID]int{}
	for ri, round := range b.Rounds {
		for _, s := range round {
			if s.Loser != "" {
				eliminated[s.Loser] = ri + 1
			}
		}
	}
	seeds := b.KnockoutEntrants()
	rest := make([]Entrant, 0, len(seeds))
	for i, e := range seeds {
		if e.UserID == champion {
			continue
		}
		if e.Seed == 0 {
			e.Seed = i + 1
		}
		rest = append(rest, e)
	}
	sort.SliceStable(rest, func(i, j int) bool {
		ri, rj := eliminated[rest[i].UserID], eliminated[rest[j].UserID]
		if ri != rj {
			return ri > rj
		}
		return rest[i].Seed < rest[j].Seed
	})
	out := make([]shared.UserID, len(rest))
	for i, e := range rest {
		out[i] = e.UserID
	}
	return out
}

func (b *Bracket) groupRanking(placed []shared.UserID) []shared.UserID {
	taken := make(map[shared.UserID]bool, len(placed))
	for _, u := range placed {
		taken[u] = true
	}
	var rest []Standing
	for gi := range b.Groups {
		for _, s := range b.Standings(gi) {
			if !taken[s.UserID] {
				rest = append(rest, s)
			}
		}
	}
	sort.SliceStable(rest, func(i, j int) bool {
		if rest[i].Position != rest[j].Position {
			return rest[i].Position < rest[j].Position
		}
		if rest[i].Points != rest[j].Points {
			return rest[i].Points > rest[j].Points
		}
		return rest[i].Seed < rest[j].Seed
	})
	out := make([]shared.UserID, len(rest))
	for i, s := range rest {
		out[i] = s.UserID
	}
	return out
}
