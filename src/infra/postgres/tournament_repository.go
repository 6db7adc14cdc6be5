package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/sandai/arena/src/domain/shared"
	"github.com/sandai/arena/src/domain/tournament"
)

// TournamentRepository implements tournament.Repository on arena_tournaments.
type TournamentRepository struct {
	db *gorm.DB
}

func NewTournamentRepository(db *gorm.DB) *TournamentRepository {
	return &TournamentRepository{db: db}
}

func (r *TournamentRepository) Create(ctx context.Context, t *tournament.Tournament) error {
	row, err := newTournamentRow(t)
	if err != nil {
		return err
	}
	err = translate(r.db.WithContext(ctx).Create(row).Error)
	if errors.Is(err, shared.ErrDuplicate) {
		return tournament.ErrTournamentAlreadyExists
	}
	return err
}

// Save stores t, bumping its version.
func (r *TournamentRepository) Save(ctx context.Context, t *tournament.Tournament) error {
	prev := t.Version
	t.Version++
	row, err := newTournamentRow(t)
	if err != nil {
		t.Version = prev
		return err
	}
	res := r.db.WithContext(ctx).Model(&tournamentRow{}).
		Where("id = ? AND version = ?", row.ID, prev).
		Updates(map[string]any{
			"state":      row.State,
			"version":    row.Version,
			"data":       row.Data,
			"updated_at": row.UpdatedAt,
		})
	if res.Error != nil {
		t.Version = prev
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		t.Version = prev
		return fmt.Errorf("save tournament %s: %w", t.ID, shared.ErrConflict)
	}
	return nil
}

func (r *TournamentRepository) Get(ctx context.Context, id shared.TournamentID) (*tournament.Tournament, error) {
	var row tournamentRow
	err := r.db.WithContext(ctx).Where("id = ?", string(id)).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, tournament.ErrTournamentNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.tournament()
}

// List retrieves a paginated list of tournaments, newest first.
func (r *TournamentRepository) List(ctx context.Context, limit, offset int) ([]*tournament.Tournament, error) {
	q := r.db.WithContext(ctx).Order("created_at DESC").Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	return r.find(q)
}

func (r *TournamentRepository) ListByState(ctx context.Context, states ...tournament.State) ([]*tournament.Tournament, error) {
	names := make([]string, len(states))
	for i, s := range states {
		names[i] = string(s)
	}
	return r.find(r.db.WithContext(ctx).Where("state IN ?", names).Order("id"))
}

func (r *TournamentRepository) find(q *gorm.DB) ([]*tournament.Tournament, error) {
	var rows []tournamentRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*tournament.Tournament, 0, len(rows))
	for i := range rows {
		t, err := rows[i].tournament()
		if err != nil {
			return nil, fmt.Errorf("decode tournament %s: %w", rows[i].ID, err)
		}
		out = append(out, t)
	}
	return out, nil
}
