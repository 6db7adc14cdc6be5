package tournament

import (
	"errors"

	"github.com/sandai/arena/src/domain/shared"
)

var (
	ErrTournamentNotFound       = errors.New("tournament not found")
	ErrTournamentAlreadyExists  = errors.New("tournament already exists")
	ErrTournamentFinished       = errors.New("tournament already finished")
	ErrParticipantNotFound      = errors.New("participant not found")
	ErrParticipantAlreadyJoined = errors.New("participant already joined")
	ErrTournamentFull           = errors.New("tournament is full")
	ErrRegistrationClosed       = errors.New("registration is closed")
	ErrNotEnoughParticipants    = errors.New("not enough participants")
	ErrInvalidPrizes            = errors.New("prizes must use distinct ranks within the field and positive amounts")
	ErrNotFunded                = errors.New("entry fees have not all reached the prize pool")
	ErrPrizePoolUnfunded        = errors.New("prizes exceed the entry fees of the minimum field")
	ErrAmmoTypeRequired         = errors.New("an ammunition type is required for this game")
	ErrInvalidState             = shared.ErrInvalidState
)
