package memory

import (
	"context"
	"sync"

	"github.com/sandai/arena/src/domain/escrow"
	"github.com/sandai/arena/src/domain/shared"
)

// EscrowRepository implements escrow.Repository using in-memory storage.
type EscrowRepository struct {
	mu      sync.RWMutex
	records map[shared.MatchID]*escrow.Record
}

func NewEscrowRepository() *EscrowRepository {
	return &EscrowRepository{records: make(map[shared.MatchID]*escrow.Record)}
}

func (r *EscrowRepository) Get(ctx context.Context, id shared.MatchID) (*escrow.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, escrow.ErrRecordNotFound
	}
	return rec.Clone(), nil
}

func (r *EscrowRepository) Save(ctx context.Context, rec *escrow.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[rec.MatchID] = rec.Clone()
	return nil
}
