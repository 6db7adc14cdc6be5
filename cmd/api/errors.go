package main

import (
	"errors"
	"net/http"

	"github.com/sandai/arena/src/domain/bracket"
	"github.com/sandai/arena/src/domain/escrow"
	"github.com/sandai/arena/src/domain/match"
	"github.com/sandai/arena/src/domain/player"
	"github.com/sandai/arena/src/domain/shared"
	"github.com/sandai/arena/src/domain/tournament"
)

var matchKindStatus = map[match.ErrorKind]int{
	match.KindInsufficientFunds:   http.StatusPaymentRequired,
	match.KindTimeout:             http.StatusRequestTimeout,
	match.KindEvidenceMismatch:    http.StatusUnprocessableEntity,
	match.KindIllegalTransition:   http.StatusConflict,
	match.KindDuplicateSubmission: http.StatusConflict,
	match.KindAlreadyInMatch:      http.StatusConflict,
	match.KindNotParticipant:      http.StatusForbidden,
	match.KindNotFound:            http.StatusNotFound,
	match.KindInvalidInput:        http.StatusUnprocessableEntity,
}

var errorStatus = []struct {
	err    error
	status int
}{
	{tournament.ErrTournamentNotFound, http.StatusNotFound},
	{tournament.ErrParticipantNotFound, http.StatusNotFound},
	{escrow.ErrRecordNotFound, http.StatusNotFound},
	{bracket.ErrSlotNotFound, http.StatusNotFound},
	{shared.ErrNotFound, http.StatusNotFound},
	{tournament.ErrTournamentAlreadyExists, http.StatusConflict},
	{tournament.ErrParticipantAlreadyJoined, http.StatusConflict},
	{tournament.ErrTournamentFull, http.StatusConflict},
	{tournament.ErrRegistrationClosed, http.StatusConflict},
	{tournament.ErrTournamentFinished, http.StatusConflict},
	{tournament.ErrInvalidState, http.StatusConflict},
	{bracket.ErrInvalidSlotState, http.StatusConflict},
	{bracket.ErrStaleMatch, http.StatusConflict},
	{shared.ErrDuplicate, http.StatusConflict},
	{shared.ErrConflict, http.StatusConflict},
	{player.ErrAccountSuspended, http.StatusForbidden},
	{bracket.ErrUnknownWinner, http.StatusUnprocessableEntity},
	{tournament.ErrInvalidPrizes, http.StatusUnprocessableEntity},
	{tournament.ErrPrizePoolUnfunded, http.StatusUnprocessableEntity},
	{tournament.ErrAmmoTypeRequired, http.StatusUnprocessableEntity},
	{tournament.ErrNotEnoughParticipants, http.StatusUnprocessableEntity},
	{escrow.ErrInvalidAmount, http.StatusUnprocessableEntity},
}

// statusFor picks the HTTP status for err, using fallback for errors the
// domain does not classify.
func statusFor(err error, fallback int) (int, string) {
	kind := match.KindOf(err)
	if status, ok := matchKindStatus[kind]; ok {
		return status, string(kind)
	}
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.status, ""
		}
	}
	return fallback, ""
}
