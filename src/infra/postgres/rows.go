package postgres

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/sandai/arena/src/domain/escrow"
	"github.com/sandai/arena/src/domain/match"
	"github.com/sandai/arena/src/domain/shared"
	"github.com/sandai/arena/src/domain/tournament"
)

// matchRow keeps the full aggregate in Data and copies out the columns the
// engine queries on.
type matchRow struct {
	ID           string         `gorm:"column:id;primaryKey"`
	GameType     string         `gorm:"column:game_type;not null"`
	State        string         `gorm:"column:state;not null;index"`
	Open         bool           `gorm:"column:is_open;not null;index"`
	UserA        string         `gorm:"column:user_a;not null;index"`
	UserB        *string        `gorm:"column:user_b;index"`
	TournamentID *string        `gorm:"column:tournament_id;index"`
	Deadline     *time.Time     `gorm:"column:deadline;index"`
	Version      int64          `gorm:"column:version;not null"`
	Data         datatypes.JSON `gorm:"column:data;type:jsonb;not null"`
	CreatedAt    time.Time      `gorm:"column:created_at;not null"`
	UpdatedAt    time.Time      `gorm:"column:updated_at;not null"`
}

func (matchRow) TableName() string { return "arena_matches" }

func newMatchRow(m *match.Match) (*matchRow, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	row := &matchRow{
		ID:        string(m.ID),
		GameType:  string(m.GameType),
		State:     string(m.State),
		Open:      m.State.Open(),
		UserA:     string(m.A.UserID),
		Version:   m.Version,
		Data:      datatypes.JSON(data),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if m.B != nil {
		b := string(m.B.UserID)
		row.UserB = &b
	}
	if m.Link != nil {
		t := string(m.Link.TournamentID)
		row.TournamentID = &t
	}
	if !m.Deadline.IsZero() {
		d := m.Deadline
		row.Deadline = &d
	}
	return row, nil
}

func (r *matchRow) match() (*match.Match, error) {
	var m match.Match
	if err := json.Unmarshal(r.Data, &m); err != nil {
		return nil, err
	}
	m.Version = r.Version
	return &m, nil
}

type tournamentRow struct {
	ID        string         `gorm:"column:id;primaryKey"`
	State     string         `gorm:"column:state;not null;index"`
	Version   int64          `gorm:"column:version;not null"`
	Data      datatypes.JSON `gorm:"column:data;type:jsonb;not null"`
	CreatedAt time.Time      `gorm:"column:created_at;not null;index"`
	UpdatedAt time.Time      `gorm:"column:updated_at;not null"`
}

func (tournamentRow) TableName() string { return "arena_tournaments" }

func newTournamentRow(t *tournament.Tournament) (*tournamentRow, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	return &tournamentRow{
		ID:        string(t.ID),
		State:     string(t.State),
		Version:   t.Version,
		Data:      datatypes.JSON(data),
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}, nil
}

func (r *tournamentRow) tournament() (*tournament.Tournament, error) {
	var t tournament.Tournament
	if err := json.Unmarshal(r.Data, &t); err != nil {
		return nil, err
	}
	t.Version = r.Version
	return &t, nil
}

type escrowRow struct {
	MatchID   string         `gorm:"column:match_id;primaryKey"`
	Settled   bool           `gorm:"column:settled;not null;index"`
	Data      datatypes.JSON `gorm:"column:data;type:jsonb;not null"`
	CreatedAt time.Time      `gorm:"column:created_at;not null"`
	UpdatedAt time.Time      `gorm:"column:updated_at;not null"`
}

func (escrowRow) TableName() string { return "arena_escrow" }

func newEscrowRow(rec *escrow.Record) (*escrowRow, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return &escrowRow{
		MatchID:   string(rec.MatchID),
		Settled:   rec.Settled(),
		Data:      datatypes.JSON(data),
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}, nil
}

func (r *escrowRow) record() (*escrow.Record, error) {
	var rec escrow.Record
	if err := json.Unmarshal(r.Data, &rec); err != nil {
		return nil, err
	}
	if rec.MatchID == "" {
		rec.MatchID = shared.MatchID(r.MatchID)
	}
	return &rec, nil
}
