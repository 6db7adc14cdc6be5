package bracket

import (
	"sort"

	"github.com/sandai/arena/src/domain/shared"
)

// Standing is one row of a group table. Tables are always derived from
// fixture results and never edited directly.
type Standing struct {
	UserID       shared.UserID `json:"user_id"`
	Seed         int           `json:"seed"`
	Position     int           `json:"position"`
	Played       int           `json:"played"`
	Won          int           `json:"won"`
	Drawn        int           `json:"drawn"`
	Lost         int           `json:"lost"`
	GoalsFor     int           `json:"goals_for"`
	GoalsAgainst int           `json:"goals_against"`
	Points       int           `json:"points"`
}

func (s Standing) GoalDifference() int { return s.GoalsFor - s.GoalsAgainst }

// Standings computes the table of group gi ordered by points, goal
// difference, goals scored and finally seed.
func (b *Bracket) Standings(gi int) []Standing {
	if gi < 0 || gi >= len(b.Groups) {
		return nil
	}
	g := b.Groups[gi]
	rows := make(map[shared.UserID]*Standing, len(g.Entrants))
	table := make([]*Standing, 0, len(g.Entrants))
	for _, e := range g.Entrants {
		s := &Standing{UserID: e.UserID, Seed: e.Seed}
		rows[e.UserID] = s
		table = append(table, s)
	}

	for _, f := range g.Fixtures {
		if !f.final() || f.Result == nil {
			continue
		}
		a, c := rows[f.A], rows[f.B]
		a.Played++
		c.Played++
		res := f.Result
		if res.Void {
			a.Lost++
			c.Lost++
			a.Points += b.Scoring.Loss
			c.Points += b.Scoring.Loss
			continue
		}
		a.GoalsFor += res.ScoreA
		a.GoalsAgainst += res.ScoreB
		c.GoalsFor += res.ScoreB
		c.GoalsAgainst += res.ScoreA
		switch {
		case res.Draw:
			a.Drawn++
			c.Drawn++
			a.Points += b.Scoring.Draw
			c.Points += b.Scoring.Draw
		case res.Winner == f.A:
			b.tally(a, c)
		default:
			b.tally(c, a)
		}
	}

	sort.SliceStable(table, func(i, j int) bool { return ahead(*table[i], *table[j]) })
	out := make([]Standing, len(table))
	for i, s := range table {
		s.Position = i + 1
		out[i] = *s
	}
	return out
}

func (b *Bracket) tally(winner, loser *Standing) {
	winner.Won++
	winner.Points += b.Scoring.Win
	loser.Lost++
	loser.Points += b.Scoring.Loss
}

// ahead is a strict total order because seeds are unique.
func ahead(x, y Standing) bool {
	if x.Points != y.Points {
		return x.Points > y.Points
	}
	if x.GoalDifference() != y.GoalDifference() {
		return x.GoalDifference() > y.GoalDifference()
	}
	if x.GoalsFor != y.GoalsFor {
		return x.GoalsFor > y.GoalsFor
	}
	return x.Seed < y.Seed
}
