package bracket

import "github.com/sandai/arena/src/domain/shared"

// Fixture is one group-phase pairing.
type Fixture struct {
	Day     int            `json:"day"`
	A       shared.UserID  `json:"a"`
	B       shared.UserID  `json:"b"`
	Status  SlotStatus     `json:"status"`
	MatchID shared.MatchID `json:"match_id,omitempty"`
	Attempt int            `json:"attempt"`
	Result  *Result        `json:"result,omitempty"`
}

type Group struct {
	Index    int       `json:"index"`
	Entrants []Entrant `json:"entrants"`
	Fixtures []Fixture `json:"fixtures"`
}

// distribute deals seeded entrants into groups in snake order so every group
// gets a comparable spread of seeds.
func distribute(entrants []Entrant, size int) [][]Entrant {
	count := (len(entrants) + size - 1) / size
	groups := make([][]Entrant, count)
	for i, e := range entrants {
		row, col := i/count, i%count
		if row%2 == 1 {
			col = count - 1 - col
		}
		groups[col] = append(groups[col], e)
	}
	return groups
}

// newGroup schedules a full round robin with the circle method. Each day
// every entrant plays at most once; with an odd count one entrant rests.
func newGroup(index int, entrants []Entrant) Group {
	ring := make([]shared.UserID, 0, len(entrants)+1)
	for _, e := range entrants {
		ring = append(ring, e.UserID)
	}
	if len(ring)%2 == 1 {
		ring = append(ring, "")
	}
	n := len(ring)

	g := Group{Index: index, Entrants: append([]Entrant(nil), entrants...)}
	for day := 1; day < n; day++ {
		for i := 0; i < n/2; i++ {
			a, b := ring[i], ring[n-1-i]
			if a == "" || b == "" {
				continue
			}
			g.Fixtures = append(g.Fixtures, Fixture{Day: day, A: a, B: b, Status: StatusPending})
		}
		last := ring[n-1]
		copy(ring[2:], ring[1:n-1])
		ring[1] = last
	}
	return g
}

func (f Fixture) final() bool {
	return f.Status == StatusCompleted || f.Status == StatusVoid
}

// currentDay is the earliest day with an undecided fixture, or 0 when the
// group is finished.
func (g *Group) currentDay() int {
	day := 0
	for _, f := range g.Fixtures {
		if !f.final() && (day == 0 || f.Day < day) {
			day = f.Day
		}
	}
	return day
}

func (g *Group) final() bool {
	return g.currentDay() == 0
}

func (g *Group) playable() []Playable {
	day := g.currentDay()
	var out []Playable
	for i, f := range g.Fixtures {
		if f.Day != day || f.Status != StatusPending {
			continue
		}
		out = append(out, Playable{
			Ref:     Ref{Phase: PhaseGroup, Group: g.Index, Round: f.Day, Index: i},
			A:       f.A,
			B:       f.B,
			Attempt: f.Attempt,
		})
	}
	return out
}

// closeGroupPhase seeds the knockout phase from the group tables once every
// group is finished. Group winners are seeded first, then runners-up.
func (b *Bracket) closeGroupPhase() {
	if b.Format != FormatGroupStage || b.Rounds != nil {
		return
	}
	for i := range b.Groups {
		if !b.Groups[i].final() {
			return
		}
	}
	tables := make([][]Standing, len(b.Groups))
	for i := range b.Groups {
		tables[i] = b.Standings(i)
	}
	var seeded []Entrant
	for rank := 0; rank < b.Advance; rank++ {
		for _, table := range tables {
			if rank < len(table) {
				seeded = append(seeded, Entrant{UserID: table[rank].UserID, Seed: len(seeded) + 1})
			}
		}
	}
	b.Qualified = seeded
	b.Rounds = buildKnockout(seeded)
	b.advance()
}

// KnockoutEntrants lists who reached the knockout phase in seed order.
func (b *Bracket) KnockoutEntrants() []Entrant {
	if b.Format == FormatKnockout {
		return b.Entrants
	}
	return b.Qualified
}
