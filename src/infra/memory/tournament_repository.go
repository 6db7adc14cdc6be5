package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/sandai/arena/src/domain/shared"
	"github.com/sandai/arena/src/domain/tournament"
)

// TournamentRepository implements tournament.Repository using in-memory storage.
type TournamentRepository struct {
	mu          sync.RWMutex
	tournaments map[shared.TournamentID]*tournament.Tournament
}

// NewTournamentRepository creates a new in-memory tournament repository.
func NewTournamentRepository() *TournamentRepository {
	return &TournamentRepository{
		tournaments: make(map[shared.TournamentID]*tournament.Tournament),
	}
}

// Create stores a new tournament.
func (r *TournamentRepository) Create(ctx context.Context, t *tournament.Tournament) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tournaments[t.ID]; exists {
		return tournament.ErrTournamentAlreadyExists
	}
	r.tournaments[t.ID] = t.Clone()
	return nil
}

// Save stores a tournament, bumping its version.
func (r *TournamentRepository) Save(ctx context.Context, t *tournament.Tournament) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t.Version++
	r.tournaments[t.ID] = t.Clone()
	return nil
}

// Get retrieves a tournament by ID.
func (r *TournamentRepository) Get(ctx context.Context, id shared.TournamentID) (*tournament.Tournament, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, exists := r.tournaments[id]
	if !exists {
		return nil, tournament.ErrTournamentNotFound
	}
	return t.Clone(), nil
}

// List retrieves a paginated list of tournaments, newest first.
func (r *TournamentRepository) List(ctx context.Context, limit, offset int) ([]*tournament.Tournament, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tournaments := make([]*tournament.Tournament, 0, len(r.tournaments))
	for _, t := range r.tournaments {
		tournaments = append(tournaments, t)
	}
	sort.Slice(tournaments, func(i, j int) bool {
		if tournaments[i].CreatedAt.Equal(tournaments[j].CreatedAt) {
			return tournaments[i].ID < tournaments[j].ID
		}
		return tournaments[i].CreatedAt.After(tournaments[j].CreatedAt)
	})
	return clonePage(tournaments, limit, offset, (*tournament.Tournament).Clone), nil
}

// ListByState returns every tournament in one of the given states.
func (r *TournamentRepository) ListByState(ctx context.Context, states ...tournament.State) ([]*tournament.Tournament, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	want := make(map[tournament.State]bool, len(states))
	for _, s := range states {
		want[s] = true
	}
	var out []*tournament.Tournament
	for _, t := range r.tournaments {
		if want[t.State] {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func clonePage[T any](items []T, limit, offset int, clone func(T) T) []T {
	start := offset
	if start > len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	out := make([]T, 0, end-start)
	for _, item := range items[start:end] {
		out = append(out, clone(item))
	}
	return out
}
