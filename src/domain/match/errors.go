package match

import (
	"errors"

	"github.com/sandai/arena/src/domain/escrow"
)

var (
	ErrInsufficientFunds   = escrow.ErrInsufficientFunds
	ErrTimeout             = errors.New("deadline elapsed")
	ErrEvidenceMismatch    = errors.New("result evidence does not match the declared result")
	ErrIllegalTransition   = errors.New("operation not allowed in current match state")
	ErrDuplicateSubmission = errors.New("result already submitted")
	ErrNotParticipant      = errors.New("user is not a participant of this match")
	ErrAlreadyInMatch      = errors.New("user already has an open match")
	ErrMatchNotFound       = errors.New("match not found")
	ErrInvalidClaim        = errors.New("declared winner does not agree with declared score")
	ErrSelfMatch           = errors.New("user cannot join their own match")
)

// ErrorKind groups errors for callers that react to categories rather than values.
type ErrorKind string

const (
	KindUnknown             ErrorKind = "unknown"
	KindInsufficientFunds   ErrorKind = "insufficient_funds"
	KindTimeout             ErrorKind = "timeout"
	KindEvidenceMismatch    ErrorKind = "evidence_mismatch"
	KindIllegalTransition   ErrorKind = "illegal_transition"
	KindDuplicateSubmission ErrorKind = "duplicate_submission"
	KindNotParticipant      ErrorKind = "not_participant"
	KindAlreadyInMatch      ErrorKind = "already_in_match"
	KindNotFound            ErrorKind = "not_found"
	KindInvalidInput        ErrorKind = "invalid_input"
)

var kinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrInsufficientFunds, KindInsufficientFunds},
	{ErrTimeout, KindTimeout},
	{ErrEvidenceMismatch, KindEvidenceMismatch},
	{ErrIllegalTransition, KindIllegalTransition},
	{ErrDuplicateSubmission, KindDuplicateSubmission},
	{ErrNotParticipant, KindNotParticipant},
	{ErrSelfMatch, KindNotParticipant},
	{ErrAlreadyInMatch, KindAlreadyInMatch},
	{ErrMatchNotFound, KindNotFound},
	{ErrInvalidClaim, KindInvalidInput},
}

// KindOf classifies err by walking its wrap chain.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}
