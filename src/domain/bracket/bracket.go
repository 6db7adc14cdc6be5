package bracket

import (
	"errors"
	"fmt"
	"sort"

	"github.com/sandai/arena/src/domain/shared"
)

// Format selects how a tournament pairs its participants.
type Format string

const (
	FormatKnockout   Format = "knockout"
	FormatGroupStage Format = "group_stage"
	FormatRoundRobin Format = "round_robin"
)

func (f Format) Validate() error {
	switch f {
	case FormatKnockout, FormatGroupStage, FormatRoundRobin:
		return nil
	}
	return errors.New("unknown tournament format")
}

type Phase string

const (
	PhaseGroup    Phase = "group"
	PhaseKnockout Phase = "knockout"
)

// Ref addresses one playable unit. Rounds are 1-based; Group is only
// meaningful in the group phase.
type Ref struct {
	Phase Phase `json:"phase"`
	Group int   `json:"group"`
	Round int   `json:"round"`
	Index int   `json:"index"`
}

func (r Ref) String() string {
	if r.Phase == PhaseGroup {
		return fmt.Sprintf("group/%d/%d/%d", r.Group, r.Round, r.Index)
	}
	return fmt.Sprintf("knockout/%d/%d", r.Round, r.Index)
}

type SlotStatus string

const (
	StatusPending   SlotStatus = "pending"
	StatusScheduled SlotStatus = "scheduled"
	StatusBye       SlotStatus = "bye"
	StatusCompleted SlotStatus = "completed"
	StatusVoid      SlotStatus = "void"
)

// Entrant is a seeded participant. Seed 1 is the strongest.
type Entrant struct {
	UserID shared.UserID `json:"user_id"`
	Seed   int           `json:"seed"`
}

// Result reports how a scheduled match ended.
type Result struct {
	Winner shared.UserID `json:"winner,omitempty"`
	Draw   bool          `json:"draw,omitempty"`
	Void   bool          `json:"void,omitempty"`
	ScoreA int           `json:"score_a"`
	ScoreB int           `json:"score_b"`
}

// Scoring awards group-table points.
type Scoring struct {
	Win  int `json:"win" mapstructure:"win"`
	Draw int `json:"draw" mapstructure:"draw"`
	Loss int `json:"loss" mapstructure:"loss"`
}

var DefaultScoring = Scoring{Win: 3, Draw: 1, Loss: 0}

type Options struct {
	GroupSize int
	Advance   int
	Scoring   Scoring
}

// Playable is a unit whose participants are known and which has no live match.
type Playable struct {
	Ref     Ref
	A       shared.UserID
	B       shared.UserID
	Attempt int
}

// Bracket is the pairing structure of a tournament. Its methods are pure and
// deterministic; callers persist it after every change.
type Bracket struct {
	Format    Format    `json:"format"`
	Entrants  []Entrant `json:"entrants"`
	Scoring   Scoring   `json:"scoring"`
	Advance   int       `json:"advance,omitempty"`
	Groups    []Group   `json:"groups,omitempty"`
	Qualified []Entrant `json:"qualified,omitempty"`
	Rounds    [][]Slot  `json:"rounds,omitempty"`
}

// New builds the bracket for the given seeded entrants.
func New(format Format, entrants []Entrant, opts Options) (*Bracket, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	if len(entrants) < 2 {
		return nil, ErrTooFewEntrants
	}
	seeded := append([]Entrant(nil), entrants...)
	sort.SliceStable(seeded, func(i, j int) bool { return seeded[i].Seed < seeded[j].Seed })
	seen := make(map[shared.UserID]struct{}, len(seeded))
	for _, e := range seeded {
		if err := e.UserID.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[e.UserID]; dup {
			return nil, ErrDuplicateEntrant
		}
		seen[e.UserID] = struct{}{}
	}

	scoring := opts.Scoring
	if scoring == (Scoring{}) {
		scoring = DefaultScoring
	}
	b := &Bracket{Format: format, Entrants: seeded, Scoring: scoring}

	switch format {
	case FormatKnockout:
		b.Rounds = buildKnockout(seeded)
		b.advance()
	case FormatRoundRobin:
		b.Groups = []Group{newGroup(0, seeded)}
	case FormatGroupStage:
		size := opts.GroupSize
		if size < 2 {
			size = 4
		}
		advance := opts.Advance
		if advance < 1 {
			advance = 2
		}
		groups := distribute(seeded, size)
		if advance > smallestGroup(groups) || advance*len(groups) < 2 {
			return nil, ErrInvalidAdvance
		}
		b.Advance = advance
		for i, g := range groups {
			b.Groups = append(b.Groups, newGroup(i, g))
		}
	}
	return b, nil
}

// Playable lists every unit ready to be scheduled, in bracket order.
func (b *Bracket) Playable() []Playable {
	var out []Playable
	for gi := range b.Groups {
		out = append(out, b.Groups[gi].playable()...)
	}
	for ri, round := range b.Rounds {
		for si, s := range round {
			if s.Status != StatusPending {
				continue
			}
			a, okA := b.resolve(s.A)
			c, okB := b.resolve(s.B)
			if okA && okB {
				out = append(out, Playable{
					Ref:     Ref{Phase: PhaseKnockout, Round: ri + 1, Index: si},
					A:       a,
					B:       c,
					Attempt: s.Attempt,
				})
			}
		}
	}
	return out
}

// MarkScheduled binds a match to a pending unit.
func (b *Bracket) MarkScheduled(ref Ref, id shared.MatchID) error {
	u, err := b.unit(ref)
	if err != nil {
		return err
	}
	switch {
	case *u.status == StatusScheduled && *u.matchID == id:
		return nil
	case *u.status != StatusPending:
		return ErrInvalidSlotState
	}
	*u.status = StatusScheduled
	*u.matchID = id
	return nil
}

// RecordResult applies the result of match id to ref. It reports false when
// the unit already held a final result, and fails when that result names a
// different winner. A knockout draw resets the slot for a replay.
func (b *Bracket) RecordResult(ref Ref, id shared.MatchID, res Result) (bool, error) {
	u, err := b.unit(ref)
	if err != nil {
		return false, err
	}
	switch *u.status {
	case StatusCompleted:
		if !res.Void && (res.Draw != u.draw || res.Winner != u.winner) {
			return false, ErrInvalidSlotState
		}
		return false, nil
	case StatusVoid, StatusBye:
		return false, nil
	}
	if *u.matchID != id {
		return false, ErrStaleMatch
	}
	if !res.Void && !res.Draw && res.Winner != u.a && res.Winner != u.b {
		return false, ErrUnknownWinner
	}

	if ref.Phase == PhaseKnockout {
		s := &b.Rounds[ref.Round-1][ref.Index]
		switch {
		case res.Void:
			s.Status = StatusVoid
		case res.Draw:
			s.Status = StatusPending
			s.MatchID = ""
			s.Attempt++
		default:
			b.completeSlot(s, u.a, u.b, res)
		}
		b.advance()
		return true, nil
	}

	f := &b.Groups[ref.Group].Fixtures[ref.Index]
	r := res
	f.Result = &r
	if res.Void {
		f.Status = StatusVoid
	} else {
		f.Status = StatusCompleted
	}
	b.closeGroupPhase()
	return true, nil
}

// Replay reopens a void unit under a new attempt number.
func (b *Bracket) Replay(ref Ref) error {
	u, err := b.unit(ref)
	if err != nil {
		return err
	}
	if *u.status != StatusVoid {
		return ErrInvalidSlotState
	}
	if ref.Phase == PhaseGroup && b.Rounds != nil {
		return ErrPhaseClosed
	}
	*u.status = StatusPending
	*u.matchID = ""
	*u.attempt++
	if ref.Phase == PhaseGroup {
		b.Groups[ref.Group].Fixtures[ref.Index].Result = nil
	}
	return nil
}

// Award decides a unit by operator fiat.
func (b *Bracket) Award(ref Ref, winner shared.UserID) error {
	u, err := b.unit(ref)
	if err != nil {
		return err
	}
	switch *u.status {
	case StatusVoid, StatusPending, StatusScheduled:
	default:
		return ErrInvalidSlotState
	}
	if u.a == "" || u.b == "" {
		return ErrInvalidSlotState
	}
	if winner != u.a && winner != u.b {
		return ErrUnknownWinner
	}
	if ref.Phase == PhaseGroup && b.Rounds != nil {
		return ErrPhaseClosed
	}
	res := Result{Winner: winner}
	if ref.Phase == PhaseKnockout {
		b.completeSlot(&b.Rounds[ref.Round-1][ref.Index], u.a, u.b, res)
		b.advance()
		return nil
	}
	f := &b.Groups[ref.Group].Fixtures[ref.Index]
	f.Result = &res
	f.Status = StatusCompleted
	b.closeGroupPhase()
	return nil
}

// Complete reports whether every decision has been made.
func (b *Bracket) Complete() bool {
	if b.Format == FormatRoundRobin {
		return b.Groups[0].final()
	}
	if len(b.Rounds) == 0 {
		return false
	}
	last := b.Rounds[len(b.Rounds)-1]
	return last[0].Winner != ""
}

// Champion is the bracket winner once complete.
func (b *Bracket) Champion() (shared.UserID, bool) {
	if !b.Complete() {
		return "", false
	}
	if b.Format == FormatRoundRobin {
		return b.Standings(0)[0].UserID, true
	}
	return b.Rounds[len(b.Rounds)-1][0].Winner, true
}

// Lookup returns the unit bound to a match id.
func (b *Bracket) Lookup(id shared.MatchID) (Ref, bool) {
	for gi, g := range b.Groups {
		for fi, f := range g.Fixtures {
			if f.MatchID == id {
				return Ref{Phase: PhaseGroup, Group: gi, Round: f.Day, Index: fi}, true
			}
		}
	}
	for ri, round := range b.Rounds {
		for si, s := range round {
			if s.MatchID == id {
				return Ref{Phase: PhaseKnockout, Round: ri + 1, Index: si}, true
			}
		}
	}
	return Ref{}, false
}

// Scheduled lists the units bound to a live match.
func (b *Bracket) Scheduled() map[Ref]shared.MatchID {
	out := map[Ref]shared.MatchID{}
	for gi, g := range b.Groups {
		for fi, f := range g.Fixtures {
			if f.Status == StatusScheduled {
				out[Ref{Phase: PhaseGroup, Group: gi, Round: f.Day, Index: fi}] = f.MatchID
			}
		}
	}
	for ri, round := range b.Rounds {
		for si, s := range round {
			if s.Status == StatusScheduled {
				out[Ref{Phase: PhaseKnockout, Round: ri + 1, Index: si}] = s.MatchID
			}
		}
	}
	return out
}

// unitView exposes the mutable fields shared by slots and fixtures.
type unitView struct {
	status  *SlotStatus
	matchID *shared.MatchID
	attempt *int
	a, b    shared.UserID
	winner  shared.UserID
	draw    bool
}

func (b *Bracket) unit(ref Ref) (unitView, error) {
	switch ref.Phase {
	case PhaseKnockout:
		if ref.Round < 1 || ref.Round > len(b.Rounds) || ref.Index < 0 || ref.Index >= len(b.Rounds[ref.Round-1]) {
			return unitView{}, ErrSlotNotFound
		}
		s := &b.Rounds[ref.Round-1][ref.Index]
		a, _ := b.resolve(s.A)
		c, _ := b.resolve(s.B)
		return unitView{status: &s.Status, matchID: &s.MatchID, attempt: &s.Attempt, a: a, b: c, winner: s.Winner}, nil
	case PhaseGroup:
		if ref.Group < 0 || ref.Group >= len(b.Groups) {
			return unitView{}, ErrSlotNotFound
		}
		g := &b.Groups[ref.Group]
		if ref.Index < 0 || ref.Index >= len(g.Fixtures) || g.Fixtures[ref.Index].Day != ref.Round {
			return unitView{}, ErrSlotNotFound
		}
		f := &g.Fixtures[ref.Index]
		u := unitView{status: &f.Status, matchID: &f.MatchID, attempt: &f.Attempt, a: f.A, b: f.B}
		if f.Result != nil {
			u.winner, u.draw = f.Result.Winner, f.Result.Draw
		}
		return u, nil
	}
	return unitView{}, ErrSlotNotFound
}

func smallestGroup(groups [][]Entrant) int {
	min := len(groups[0])
	for _, g := range groups[1:] {
		if len(g) < min {
			min = len(g)
		}
	}
	return min
}

// Clone returns a deep copy.
func (b *Bracket) Clone() *Bracket {
	out := *b
	out.Entrants = append([]Entrant(nil), b.Entrants...)
	out.Qualified = append([]Entrant(nil), b.Qualified...)
	out.Groups = make([]Group, len(b.Groups))
	for i, g := range b.Groups {
		g.Entrants = append([]Entrant(nil), g.Entrants...)
		fixtures := make([]Fixture, len(g.Fixtures))
		for j, f := range g.Fixtures {
			if f.Result != nil {
				r := *f.Result
				f.Result = &r
			}
			fixtures[j] = f
		}
		g.Fixtures = fixtures
		out.Groups[i] = g
	}
	if b.Rounds != nil {
		out.Rounds = make([][]Slot, len(b.Rounds))
		for i, r := range b.Rounds {
			out.Rounds[i] = append([]Slot(nil), r...)
		}
	}
	return &out
}
