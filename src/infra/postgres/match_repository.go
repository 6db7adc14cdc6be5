package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/sandai/arena/src/domain/match"
	"github.com/sandai/arena/src/domain/shared"
)

// MatchRepository implements match.Repository on arena_matches. Save is
// guarded by the snapshot version and fails with shared.ErrConflict when
// another writer got there first.
type MatchRepository struct {
	db *gorm.DB
}

func NewMatchRepository(db *gorm.DB) *MatchRepository {
	return &MatchRepository{db: db}
}

func (r *MatchRepository) Create(ctx context.Context, m *match.Match) error {
	m.Version = 1
	row, err := newMatchRow(m)
	if err != nil {
		return err
	}
	return translate(r.db.WithContext(ctx).Create(row).Error)
}

func (r *MatchRepository) Save(ctx context.Context, m *match.Match) error {
	prev := m.Version
	m.Version++
	row, err := newMatchRow(m)
	if err != nil {
		m.Version = prev
		return err
	}
	res := r.db.WithContext(ctx).Model(&matchRow{}).
		Where("id = ? AND version = ?", row.ID, prev).
		Updates(map[string]any{
			"state":         row.State,
			"is_open":       row.Open,
			"user_b":        row.UserB,
			"tournament_id": row.TournamentID,
			"deadline":      row.Deadline,
			"version":       row.Version,
			"data":          row.Data,
			"updated_at":    row.UpdatedAt,
		})
	if res.Error != nil {
		m.Version = prev
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		m.Version = prev
		return fmt.Errorf("save match %s: %w", m.ID, shared.ErrConflict)
	}
	return nil
}

func (r *MatchRepository) Get(ctx context.Context, id shared.MatchID) (*match.Match, error) {
	var row matchRow
	err := r.db.WithContext(ctx).Where("id = ?", string(id)).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, match.ErrMatchNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.match()
}

// ListDue returns matches whose deadline has passed, earliest deadline first.
func (r *MatchRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]shared.MatchID, error) {
	q := r.db.WithContext(ctx).Model(&matchRow{}).
		Where("is_open AND deadline IS NOT NULL AND deadline <= ?", now).
		Order("deadline")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var ids []string
	if err := q.Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	out := make([]shared.MatchID, len(ids))
	for i, id := range ids {
		out[i] = shared.MatchID(id)
	}
	return out, nil
}

func (r *MatchRepository) ListOpen(ctx context.Context) ([]*match.Match, error) {
	return r.find(r.db.WithContext(ctx).Where("is_open"), 0, 0)
}

func (r *MatchRepository) ListByTournament(ctx context.Context, id shared.TournamentID) ([]*match.Match, error) {
	return r.find(r.db.WithContext(ctx).Where("tournament_id = ?", string(id)), 0, 0)
}

func (r *MatchRepository) ListByUser(ctx context.Context, user shared.UserID, limit, offset int) ([]*match.Match, error) {
	return r.find(r.db.WithContext(ctx).Where("user_a = ? OR user_b = ?", string(user), string(user)), limit, offset)
}

// find returns matching rows oldest first.
func (r *MatchRepository) find(q *gorm.DB, limit, offset int) ([]*match.Match, error) {
	q = q.Order("created_at").Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	var rows []matchRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*match.Match, 0, len(rows))
	for i := range rows {
		m, err := rows[i].match()
		if err != nil {
			return nil, fmt.Errorf("decode match %s: %w", rows[i].ID, err)
		}
		out = append(out, m)
	}
	return out, nil
}
