package tournament

import (
	"errors"
	"time"

	"github.com/sandai/arena/src/domain/shared"
)

// Participant represents a registered player and the state of their entry fee.
type Participant struct {
	TournamentID shared.TournamentID
	UserID       shared.UserID
	Seed         int
	Rating       int
	// AmmoType is the ammunition the participant plays with, for titles
	// that pair on it.
	AmmoType     string
	EntryHold    shared.HoldID
	Funded       bool
	Refunded     bool
	RegisteredAt time.Time
	UpdatedAt    time.Time
}

// NewParticipant creates a new tournament participant. hold may be empty when
// the tournament is free to enter.
func NewParticipant(tournamentID shared.TournamentID, user shared.UserID, hold shared.HoldID, registeredAt time.Time) (*Participant, error) {
	if err := tournamentID.Validate(); err != nil {
		return nil, err
	}
	if err := user.Validate(); err != nil {
		return nil, err
	}
	if registeredAt.IsZero() {
		return nil, errors.New("registration time is required")
	}
	return &Participant{
		TournamentID: tournamentID,
		UserID:       user,
		EntryHold:    hold,
		RegisteredAt: registeredAt,
		UpdatedAt:    registeredAt,
	}, nil
}

// MarkFunded records that the entry fee moved into the prize pool.
func (p *Participant) MarkFunded(now time.Time) {
	p.Funded = true
	p.UpdatedAt = now
}

// MarkRefunded records that the entry fee went back to the participant.
func (p *Participant) MarkRefunded(now time.Time) {
	p.Refunded = true
	p.UpdatedAt = now
}
