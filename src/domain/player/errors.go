package player

import "errors"

var (
	ErrProfileNotFound  = errors.New("player profile not found")
	ErrAccountSuspended = errors.New("player account suspended")
	ErrRatingInvalid    = errors.New("player rating must be non-negative")
)
