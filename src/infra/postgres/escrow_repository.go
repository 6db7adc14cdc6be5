package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sandai/arena/src/domain/escrow"
	"github.com/sandai/arena/src/domain/shared"
)

// EscrowRepository implements escrow.Repository on arena_escrow. Records are
// written whole; the escrow service serializes writers per match.
type EscrowRepository struct {
	db *gorm.DB
}

func NewEscrowRepository(db *gorm.DB) *EscrowRepository {
	return &EscrowRepository{db: db}
}

func (r *EscrowRepository) Get(ctx context.Context, id shared.MatchID) (*escrow.Record, error) {
	var row escrowRow
	err := r.db.WithContext(ctx).Where("match_id = ?", string(id)).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, escrow.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.record()
}

func (r *EscrowRepository) Save(ctx context.Context, rec *escrow.Record) error {
	row, err := newEscrowRow(rec)
	if err != nil {
		return err
	}
	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "match_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"settled", "data", "updated_at"}),
	}).Create(row).Error
	return translate(err)
}
