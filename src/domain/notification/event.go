package notification

import (
	"errors"
	"time"

	"github.com/sandai/arena/src/domain/shared"
)

// EventType names what happened.
type EventType string

const (
	EventMatchFound     EventType = "match.found"
	EventMatchReady     EventType = "match.ready"
	EventMatchStarted   EventType = "match.started"
	EventMatchVerifying EventType = "match.verifying"
	EventMatchSettled   EventType = "match.settled"
	EventMatchVoided    EventType = "match.voided"
	EventMatchDisputed  EventType = "match.disputed"

	EventTournamentClosed    EventType = "tournament.registration_closed"
	EventTournamentStarted   EventType = "tournament.started"
	EventTournamentScheduled EventType = "tournament.match_scheduled"
	EventTournamentAdvanced  EventType = "tournament.round_advanced"
	EventTournamentCompleted EventType = "tournament.completed"
	EventTournamentCancelled EventType = "tournament.cancelled"
	EventTournamentPrizePaid EventType = "tournament.prize_paid"
)

// Event is a user-facing notification.
type Event struct {
	Type         EventType           `json:"type"`
	MatchID      shared.MatchID      `json:"match_id,omitempty"`
	TournamentID shared.TournamentID `json:"tournament_id,omitempty"`
	Recipients   []shared.UserID     `json:"recipients"`
	Data         map[string]string   `json:"data,omitempty"`
	Timestamp    time.Time           `json:"timestamp"`
}

// NewMatchEvent creates an event about a match.
func NewMatchEvent(t EventType, id shared.MatchID, recipients []shared.UserID, timestamp time.Time) (*Event, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	e := &Event{Type: t, MatchID: id, Recipients: recipients, Timestamp: timestamp}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// NewTournamentEvent creates an event about a tournament.
func NewTournamentEvent(t EventType, id shared.TournamentID, recipients []shared.UserID, timestamp time.Time) (*Event, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	e := &Event{Type: t, TournamentID: id, Recipients: recipients, Timestamp: timestamp}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// With attaches a data field.
func (e *Event) With(key, value string) *Event {
	if e.Data == nil {
		e.Data = make(map[string]string)
	}
	e.Data[key] = value
	return e
}

// Validate ensures the event is well-formed.
func (e *Event) Validate() error {
	if e.Type == "" {
		return errors.New("event type is required")
	}
	if e.MatchID == "" && e.TournamentID == "" {
		return errors.New("event needs a match or tournament")
	}
	if e.Timestamp.IsZero() {
		return errors.New("timestamp is required")
	}
	return nil
}
