package escrow

import "errors"

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrHoldNotFound      = errors.New("ledger hold not found")
	ErrHoldClosed        = errors.New("ledger hold already released or transferred")
	ErrRecordNotFound    = errors.New("escrow record not found")
	ErrUnknownWinner     = errors.New("payout winner holds no stake in the match")
	ErrInvalidAmount     = errors.New("amount must not be negative")
)

var ErrAlreadySettled = errors.New("escrow already settled")
