package bracket

import "errors"

var (
	ErrTooFewEntrants   = errors.New("bracket needs at least two entrants")
	ErrDuplicateEntrant = errors.New("entrant listed twice")
	ErrInvalidAdvance   = errors.New("group advance count does not fit the group sizes")
	ErrSlotNotFound     = errors.New("bracket slot not found")
	ErrInvalidSlotState = errors.New("bracket slot is not in a state that allows this")
	ErrStaleMatch       = errors.New("match is not bound to this bracket slot")
	ErrUnknownWinner    = errors.New("winner is not a participant of this slot")
	ErrPhaseClosed      = errors.New("group phase already closed")
	ErrNotComplete      = errors.New("bracket is not complete")
)
