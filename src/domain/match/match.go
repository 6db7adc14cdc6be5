package match

import (
	"errors"
	"time"

	"github.com/sandai/arena/src/domain/shared"
)

// State is the lifecycle position of a match.
type State string

const (
	StateMatching  State = "matching"
	StateReady     State = "ready"
	StatePlaying   State = "playing"
	StateVerifying State = "verifying"
	StateSettled   State = "settled"
	StateVoid      State = "void"
	StateDisputed  State = "disputed"
)

// Terminal states never change again.
func (s State) Terminal() bool {
	return s == StateSettled || s == StateVoid
}

// Open reports whether the match still occupies its participants.
func (s State) Open() bool {
	switch s {
	case StateMatching, StateReady, StatePlaying, StateVerifying:
		return true
	}
	return false
}

// Reason explains how a match reached its outcome.
type Reason string

const (
	ReasonAgreed             Reason = "agreed"
	ReasonForfeit            Reason = "forfeit"
	ReasonMatchmakingTimeout Reason = "matchmaking_timeout"
	ReasonAmmoMismatch       Reason = "ammo_mismatch"
	ReasonInsufficientFunds  Reason = "insufficient_funds"
	ReasonEscrowUnavailable  Reason = "escrow_unavailable"
	ReasonNoClaims           Reason = "no_claims"
	ReasonMissingClaim       Reason = "missing_claim"
	ReasonConflictingClaims  Reason = "conflicting_claims"
	ReasonEvidenceMismatch   Reason = "evidence_mismatch"
	ReasonAdjudicated        Reason = "adjudicated"
	ReasonCancelled          Reason = "cancelled"
)

type OutcomeKind string

const (
	OutcomeWinner OutcomeKind = "winner"
	OutcomeDraw   OutcomeKind = "draw"
	OutcomeVoid   OutcomeKind = "void"
)

// Outcome is the final decision on a match.
type Outcome struct {
	Kind      OutcomeKind
	Winner    shared.UserID
	Score     *Score
	Reason    Reason
	DecidedAt time.Time
}

// Score is a result as seen from participant A.
type Score struct {
	A int `json:"a"`
	B int `json:"b"`
}

func (s Score) IsZero() bool { return s.A == 0 && s.B == 0 }

// Participant is one side of a match.
type Participant struct {
	UserID       shared.UserID
	Rating       int
	AmmoType     string
	JoinedAt     time.Time
	Started      bool
	EndSignalled bool
}

// Link ties a match to a tournament bracket slot.
type Link struct {
	TournamentID shared.TournamentID
	Phase        string
	Group        int
	Round        int
	Slot         int
	Attempt      int
}

// Timing holds the windows a match is created with.
type Timing struct {
	MatchmakingTimeout time.Duration
	ReadyGrace         time.Duration
	PlayDuration       time.Duration
	VerificationWindow time.Duration
}

// Schedule describes a match created with both participants already known.
type Schedule struct {
	ID       shared.MatchID
	GameType shared.GameType
	Wager    shared.Amount
	A        Participant
	B        Participant
	Link     *Link
}

// Match aggregate drives a single head-to-head from pairing to settlement.
type Match struct {
	ID            shared.MatchID
	GameType      shared.GameType
	Wager         shared.Amount
	A             Participant
	B             *Participant
	Link          *Link
	State         State
	Timing        Timing
	Claims        []Claim
	Outcome       *Outcome
	DisputeReason Reason
	Deadline      time.Time
	CreatedAt     time.Time
	ReadyAt       time.Time
	StartedAt     time.Time
	EndedAt       time.Time
	UpdatedAt     time.Time
	Version       int64
}

// NewSearching opens a match with a single participant waiting for an opponent.
func NewSearching(id shared.MatchID, game shared.GameType, wager shared.Amount, a Participant, timing Timing, now time.Time) (*Match, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	if err := game.Validate(); err != nil {
		return nil, err
	}
	if err := a.UserID.Validate(); err != nil {
		return nil, err
	}
	if wager < 0 {
		return nil, errors.New("wager must not be negative")
	}
	a.JoinedAt = now
	return &Match{
		ID:        id,
		GameType:  game,
		Wager:     wager,
		A:         a,
		State:     StateMatching,
		Timing:    timing,
		Deadline:  now.Add(timing.MatchmakingTimeout),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// NewScheduled opens a match whose pairing was decided elsewhere.
func NewScheduled(s Schedule, timing Timing, now time.Time) (*Match, error) {
	m, err := NewSearching(s.ID, s.GameType, s.Wager, s.A, timing, now)
	if err != nil {
		return nil, err
	}
	if s.Link != nil {
		link := *s.Link
		m.Link = &link
	}
	if err := m.Join(s.B, now); err != nil {
		return nil, err
	}
	return m, nil
}

// Join fills the empty seat of a searching match.
func (m *Match) Join(p Participant, now time.Time) error {
	if m.State != StateMatching || m.B != nil {
		return ErrIllegalTransition
	}
	if err := p.UserID.Validate(); err != nil {
		return err
	}
	if p.UserID == m.A.UserID {
		return ErrSelfMatch
	}
	p.JoinedAt = now
	m.B = &p
	m.touch(now)
	return nil
}

func (m *Match) Full() bool { return m.B != nil }

func (m *Match) Has(user shared.UserID) bool {
	return m.participant(user) != nil
}

// Users lists the seated participants.
func (m *Match) Users() []shared.UserID {
	if m.B == nil {
		return []shared.UserID{m.A.UserID}
	}
	return []shared.UserID{m.A.UserID, m.B.UserID}
}

func (m *Match) Opponent(user shared.UserID) (shared.UserID, error) {
	switch {
	case m.B == nil:
		return "", ErrNotParticipant
	case user == m.A.UserID:
		return m.B.UserID, nil
	case user == m.B.UserID:
		return m.A.UserID, nil
	}
	return "", ErrNotParticipant
}

// AmmoCompatible is false when the title requires matching ammunition and
// the participants declared different (or no) types.
func (m *Match) AmmoCompatible() bool {
	if !m.GameType.RequiresAmmo() {
		return true
	}
	if m.B == nil {
		return true
	}
	return m.A.AmmoType != "" && m.A.AmmoType == m.B.AmmoType
}

// AmmoType is the ammunition tag the match was paired under.
func (m *Match) AmmoType() string { return m.A.AmmoType }

// MarkReady moves a fully paired match into the pre-game grace period.
func (m *Match) MarkReady(now time.Time) error {
	if m.State != StateMatching || m.B == nil {
		return ErrIllegalTransition
	}
	m.State = StateReady
	m.ReadyAt = now
	m.Deadline = now.Add(m.Timing.ReadyGrace)
	m.touch(now)
	return nil
}

// Start records that user has started. The first start begins play; the
// opponent's later start is only recorded.
func (m *Match) Start(user shared.UserID, now time.Time) error {
	p := m.participant(user)
	if p == nil {
		return ErrNotParticipant
	}
	switch m.State {
	case StateReady:
		p.Started = true
		m.beginPlay(now)
	case StatePlaying:
		if !p.Started {
			p.Started = true
			m.touch(now)
		}
	default:
		return ErrIllegalTransition
	}
	return nil
}

// AutoStart begins play when the ready grace elapses without any start.
func (m *Match) AutoStart(now time.Time) error {
	if m.State != StateReady {
		return ErrIllegalTransition
	}
	m.beginPlay(now)
	return nil
}

func (m *Match) beginPlay(now time.Time) {
	m.State = StatePlaying
	m.StartedAt = now
	m.Deadline = now.Add(m.Timing.PlayDuration)
	m.touch(now)
}

// SignalEnd records that user finished playing. Verification begins once
// both have signalled.
func (m *Match) SignalEnd(user shared.UserID, now time.Time) error {
	p := m.participant(user)
	if p == nil {
		return ErrNotParticipant
	}
	switch m.State {
	case StatePlaying:
	case StateVerifying:
		return nil
	default:
		return ErrIllegalTransition
	}
	p.EndSignalled = true
	if m.A.EndSignalled && m.B.EndSignalled {
		m.beginVerification(now)
		return nil
	}
	m.touch(now)
	return nil
}

// ExpirePlay ends play when the play duration elapses.
func (m *Match) ExpirePlay(now time.Time) error {
	if m.State != StatePlaying {
		return ErrIllegalTransition
	}
	m.beginVerification(now)
	return nil
}

func (m *Match) beginVerification(now time.Time) {
	m.State = StateVerifying
	m.EndedAt = now
	m.Deadline = now.Add(m.Timing.VerificationWindow)
	m.touch(now)
}

// Submit stores a participant's claim. A claim made while playing also counts
// as that participant's end signal.
func (m *Match) Submit(c Claim, now time.Time) error {
	p := m.participant(c.Participant)
	if p == nil {
		return ErrNotParticipant
	}
	if m.State != StatePlaying && m.State != StateVerifying {
		return ErrIllegalTransition
	}
	if _, ok := m.ClaimOf(c.Participant); ok {
		return ErrDuplicateSubmission
	}
	if err := m.checkClaim(c); err != nil {
		return err
	}
	c.SubmittedAt = now
	m.Claims = append(m.Claims, c)
	if m.State == StatePlaying {
		p.EndSignalled = true
		if m.A.EndSignalled && m.B.EndSignalled {
			m.beginVerification(now)
			return nil
		}
	}
	m.touch(now)
	return nil
}

func (m *Match) checkClaim(c Claim) error {
	if c.Score.A < 0 || c.Score.B < 0 {
		return ErrInvalidClaim
	}
	switch c.Winner {
	case "":
		if c.Score.A != c.Score.B {
			return ErrInvalidClaim
		}
	case m.A.UserID:
		if !c.Score.IsZero() && c.Score.A <= c.Score.B {
			return ErrInvalidClaim
		}
	case m.B.UserID:
		if !c.Score.IsZero() && c.Score.B <= c.Score.A {
			return ErrInvalidClaim
		}
	default:
		return ErrInvalidClaim
	}
	return nil
}

func (m *Match) ClaimOf(user shared.UserID) (Claim, bool) {
	for _, c := range m.Claims {
		if c.Participant == user {
			return c, true
		}
	}
	return Claim{}, false
}

func (m *Match) BothClaimed() bool {
	return len(m.Claims) == 2
}

// ForfeitWinner validates a forfeit by user and returns who it awards.
func (m *Match) ForfeitWinner(user shared.UserID) (shared.UserID, error) {
	if !m.Has(user) {
		return "", ErrNotParticipant
	}
	if m.State != StateReady && m.State != StatePlaying {
		return "", ErrIllegalTransition
	}
	return m.Opponent(user)
}

// Settle records a decided outcome after verification or adjudication.
func (m *Match) Settle(o Outcome, now time.Time) error {
	if m.State != StateVerifying && m.State != StateDisputed {
		return ErrIllegalTransition
	}
	m.finish(StateSettled, o, now)
	return nil
}

// Void ends the match without a verified result. The outcome may still name
// a winner, as with a forfeit. Disputed matches can be voided on adjudication.
func (m *Match) Void(o Outcome, now time.Time) error {
	if !m.State.Open() && m.State != StateDisputed {
		return ErrIllegalTransition
	}
	m.finish(StateVoid, o, now)
	return nil
}

// Dispute parks a match for manual adjudication.
func (m *Match) Dispute(reason Reason, now time.Time) error {
	if m.State != StateVerifying {
		return ErrIllegalTransition
	}
	m.State = StateDisputed
	m.DisputeReason = reason
	m.Deadline = time.Time{}
	m.touch(now)
	return nil
}

func (m *Match) finish(state State, o Outcome, now time.Time) {
	o.DecidedAt = now
	if o.Score != nil {
		s := *o.Score
		o.Score = &s
	}
	m.Outcome = &o
	m.State = state
	m.Deadline = time.Time{}
	m.touch(now)
}

// Due reports whether the current state's deadline has passed.
func (m *Match) Due(now time.Time) bool {
	return m.State.Open() && !m.Deadline.IsZero() && !now.Before(m.Deadline)
}

func (m *Match) participant(user shared.UserID) *Participant {
	if user == "" {
		return nil
	}
	if m.A.UserID == user {
		return &m.A
	}
	if m.B != nil && m.B.UserID == user {
		return m.B
	}
	return nil
}

func (m *Match) touch(now time.Time) {
	m.UpdatedAt = now
}

// Clone returns a deep copy.
func (m *Match) Clone() *Match {
	out := *m
	if m.B != nil {
		b := *m.B
		out.B = &b
	}
	if m.Link != nil {
		l := *m.Link
		out.Link = &l
	}
	out.Claims = append([]Claim(nil), m.Claims...)
	if m.Outcome != nil {
		o := *m.Outcome
		if o.Score != nil {
			s := *o.Score
			o.Score = &s
		}
		out.Outcome = &o
	}
	return &out
}
