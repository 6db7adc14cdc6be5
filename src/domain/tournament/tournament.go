package tournament

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/sandai/arena/src/domain/bracket"
	"github.com/sandai/arena/src/domain/shared"
)

// State represents the lifecycle state.
type State string

const (
	StateRegistrationOpen State = "registration_open"
	StateSeeding          State = "seeding"
	StateInProgress       State = "in_progress"
	StateCompleted        State = "completed"
	StateCancelled        State = "cancelled"
)

func (s State) Finished() bool {
	return s == StateCompleted || s == StateCancelled
}

// Prize pays Amount to whoever finishes at Rank.
type Prize struct {
	Rank   int           `json:"rank"`
	Amount shared.Amount `json:"amount"`
}

// Payout records a prize that has been paid.
type Payout struct {
	Rank   int           `json:"rank"`
	UserID shared.UserID `json:"user_id"`
	Amount shared.Amount `json:"amount"`
	PaidAt time.Time     `json:"paid_at"`
}

// Settings are fixed at creation.
type Settings struct {
	Title                string
	Description          string
	GameType             shared.GameType
	Format               bracket.Format
	MinParticipants      int
	MaxParticipants      int
	EntryFee             shared.Amount
	Prizes               []Prize
	RegistrationDeadline time.Time
	GroupSize            int
	Advance              int
	Scoring              bracket.Scoring
}

// Tournament aggregate runs a competitive event from registration to prizes.
type Tournament struct {
	ID shared.TournamentID
	Settings
	State        State
	Participants []*Participant
	Bracket      *bracket.Bracket
	Ranking      []shared.UserID
	Payouts      []Payout
	CancelReason string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	StartedAt    time.Time
	FinishedAt   time.Time
	Version      int64
}

// NewTournament creates a new tournament aggregate open for registration.
func NewTournament(id shared.TournamentID, s Settings, now time.Time) (*Tournament, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(s.Title) == "" {
		return nil, errors.New("title is required")
	}
	if err := s.GameType.Validate(); err != nil {
		return nil, err
	}
	if err := s.Format.Validate(); err != nil {
		return nil, err
	}
	if s.MinParticipants < 2 {
		return nil, errors.New("min participants must be at least 2")
	}
	if s.MaxParticipants < s.MinParticipants {
		return nil, errors.New("max participants must not be below min participants")
	}
	if s.EntryFee < 0 {
		return nil, errors.New("entry fee must be non-negative")
	}
	if s.GroupSize < 0 || s.Advance < 0 {
		return nil, errors.New("group settings must be non-negative")
	}
	if err := validatePrizes(s.Prizes, s.MaxParticipants); err != nil {
		return nil, err
	}
	// The pool holds only entry fees, so the smallest field must cover it.
	var prizes shared.Amount
	for _, p := range s.Prizes {
		prizes += p.Amount
	}
	if prizes > s.EntryFee*shared.Amount(s.MinParticipants) {
		return nil, ErrPrizePoolUnfunded
	}
	s.Prizes = append([]Prize(nil), s.Prizes...)
	sort.Slice(s.Prizes, func(i, j int) bool { return s.Prizes[i].Rank < s.Prizes[j].Rank })

	return &Tournament{
		ID:        id,
		Settings:  s,
		State:     StateRegistrationOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func validatePrizes(prizes []Prize, maxParticipants int) error {
	seen := map[int]bool{}
	for _, p := range prizes {
		if p.Rank < 1 || p.Rank > maxParticipants || p.Amount <= 0 || seen[p.Rank] {
			return ErrInvalidPrizes
		}
		seen[p.Rank] = true
	}
	return nil
}

// PrizePool is the total the tournament pays out.
func (t *Tournament) PrizePool() shared.Amount {
	var total shared.Amount
	for _, p := range t.Prizes {
		total += p.Amount
	}
	return total
}

// CanRegister checks registration preconditions without mutating anything.
func (t *Tournament) CanRegister(user shared.UserID) error {
	if err := user.Validate(); err != nil {
		return err
	}
	if t.State != StateRegistrationOpen {
		return ErrRegistrationClosed
	}
	if _, ok := t.Participant(user); ok {
		return ErrParticipantAlreadyJoined
	}
	if t.Full() {
		return ErrTournamentFull
	}
	return nil
}

// Register adds p to the field.
func (t *Tournament) Register(p *Participant, now time.Time) error {
	if p.TournamentID != t.ID {
		return errors.New("participant belongs to another tournament")
	}
	if err := t.CanRegister(p.UserID); err != nil {
		return err
	}
	t.Participants = append(t.Participants, p)
	t.UpdatedAt = now
	return nil
}

// Withdraw removes user while registration is open.
func (t *Tournament) Withdraw(user shared.UserID, now time.Time) (*Participant, error) {
	if t.State != StateRegistrationOpen {
		return nil, ErrRegistrationClosed
	}
	for i, p := range t.Participants {
		if p.UserID == user {
			t.Participants = append(t.Participants[:i], t.Participants[i+1:]...)
			t.UpdatedAt = now
			return p, nil
		}
	}
	return nil, ErrParticipantNotFound
}

func (t *Tournament) Participant(user shared.UserID) (*Participant, bool) {
	for _, p := range t.Participants {
		if p.UserID == user {
			return p, true
		}
	}
	return nil, false
}

func (t *Tournament) Full() bool {
	return len(t.Participants) >= t.MaxParticipants
}

// RegistrationDue reports whether registration should close now.
func (t *Tournament) RegistrationDue(now time.Time) bool {
	if t.State != StateRegistrationOpen {
		return false
	}
	if t.Full() {
		return true
	}
	return !t.RegistrationDeadline.IsZero() && !now.Before(t.RegistrationDeadline)
}

// CloseRegistration moves to seeding. It fails when the field is too small;
// the caller is expected to cancel in that case.
func (t *Tournament) CloseRegistration(now time.Time) error {
	if t.State != StateRegistrationOpen {
		return ErrRegistrationClosed
	}
	if len(t.Participants) < t.MinParticipants {
		return ErrNotEnoughParticipants
	}
	t.State = StateSeeding
	t.UpdatedAt = now
	return nil
}

// AssignSeeds orders participants by rating, earlier registration breaking ties.
func (t *Tournament) AssignSeeds(ratings map[shared.UserID]int) {
	sort.SliceStable(t.Participants, func(i, j int) bool {
		ri, rj := ratings[t.Participants[i].UserID], ratings[t.Participants[j].UserID]
		if ri != rj {
			return ri > rj
		}
		return t.Participants[i].RegisteredAt.Before(t.Participants[j].RegisteredAt)
	})
	for i, p := range t.Participants {
		p.Seed = i + 1
		p.Rating = ratings[p.UserID]
	}
}

// Entrants lists the seeded field.
func (t *Tournament) Entrants() []bracket.Entrant {
	out := make([]bracket.Entrant, len(t.Participants))
	for i, p := range t.Participants {
		out[i] = bracket.Entrant{UserID: p.UserID, Seed: p.Seed}
	}
	return out
}

// Funded reports whether every entry fee reached the prize pool account.
func (t *Tournament) Funded() bool {
	for _, p := range t.Participants {
		if t.EntryFee > 0 && !p.Funded {
			return false
		}
	}
	return true
}

// Start begins play on the built bracket.
func (t *Tournament) Start(b *bracket.Bracket, now time.Time) error {
	if t.State != StateSeeding {
		return ErrInvalidState
	}
	if b == nil {
		return errors.New("bracket is required")
	}
	if !t.Funded() {
		return ErrNotFunded
	}
	t.Bracket = b
	t.State = StateInProgress
	t.StartedAt = now
	t.UpdatedAt = now
	return nil
}

// Complete records the final ranking.
func (t *Tournament) Complete(ranking []shared.UserID, now time.Time) error {
	if t.State != StateInProgress {
		return ErrInvalidState
	}
	t.Ranking = append([]shared.UserID(nil), ranking...)
	t.State = StateCompleted
	t.FinishedAt = now
	t.UpdatedAt = now
	return nil
}

// Cancel stops the tournament. Refunds are the caller's responsibility.
func (t *Tournament) Cancel(reason string, now time.Time) error {
	if t.State.Finished() {
		return ErrTournamentFinished
	}
	t.State = StateCancelled
	t.CancelReason = reason
	t.FinishedAt = now
	t.UpdatedAt = now
	return nil
}

// PrizeFor returns the payout owed to ranking position rank, if any.
func (t *Tournament) PrizeFor(rank int) (Prize, bool) {
	for _, p := range t.Prizes {
		if p.Rank == rank {
			return p, true
		}
	}
	return Prize{}, false
}

func (t *Tournament) Paid(rank int) bool {
	for _, p := range t.Payouts {
		if p.Rank == rank {
			return true
		}
	}
	return false
}

func (t *Tournament) RecordPayout(p Payout) {
	if t.Paid(p.Rank) {
		return
	}
	t.Payouts = append(t.Payouts, p)
	t.UpdatedAt = p.PaidAt
}

// Clone returns a deep copy.
func (t *Tournament) Clone() *Tournament {
	out := *t
	out.Prizes = append([]Prize(nil), t.Prizes...)
	out.Participants = make([]*Participant, len(t.Participants))
	for i, p := range t.Participants {
		c := *p
		out.Participants[i] = &c
	}
	if t.Bracket != nil {
		out.Bracket = t.Bracket.Clone()
	}
	out.Ranking = append([]shared.UserID(nil), t.Ranking...)
	out.Payouts = append([]Payout(nil), t.Payouts...)
	return &out
}
