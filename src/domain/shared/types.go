package shared

import (
	"errors"
	"strings"
)

// ID types keep domain entities distinct while remaining simple strings at runtime.
type (
	UserID       string
	MatchID      string
	TournamentID string
	HoldID       string
)

// Amount is a currency value in minor units.
type Amount int64

// Validate ensures IDs are not blank and normalized.
func (id UserID) Validate() error {
	if strings.TrimSpace(string(id)) == "" {
		return errors.New("user id is required")
	}
	return nil
}

func (id MatchID) Validate() error {
	if strings.TrimSpace(string(id)) == "" {
		return errors.New("match id is required")
	}
	return nil
}

func (id TournamentID) Validate() error {
	if strings.TrimSpace(string(id)) == "" {
		return errors.New("tournament id is required")
	}
	return nil
}

func (id HoldID) Validate() error {
	if strings.TrimSpace(string(id)) == "" {
		return errors.New("hold id is required")
	}
	return nil
}

// PoolAccount is the ledger account that collects a tournament's entry fees.
func (id TournamentID) PoolAccount() UserID {
	return UserID("tournament:" + string(id))
}

// GameType enumerates the supported titles.
type GameType string

const (
	GameEFootball GameType = "efootball"
	GameFIFA      GameType = "fifa"
	GameCODM      GameType = "codm"
)

func (g GameType) Validate() error {
	switch g {
	case GameEFootball, GameFIFA, GameCODM:
		return nil
	}
	return errors.New("unknown game type")
}

// RequiresAmmo reports whether participants must declare a matching ammunition type.
func (g GameType) RequiresAmmo() bool {
	return g == GameCODM
}
