package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sandai/arena/src/domain/match"
	"github.com/sandai/arena/src/domain/shared"
)

// MatchRepository implements match.Repository using in-memory storage.
type MatchRepository struct {
	mu      sync.RWMutex
	matches map[shared.MatchID]*match.Match
}

func NewMatchRepository() *MatchRepository {
	return &MatchRepository{matches: make(map[shared.MatchID]*match.Match)}
}

func (r *MatchRepository) Create(ctx context.Context, m *match.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.matches[m.ID]; exists {
		return shared.ErrDuplicate
	}
	m.Version = 1
	r.matches[m.ID] = m.Clone()
	return nil
}

func (r *MatchRepository) Save(ctx context.Context, m *match.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m.Version++
	r.matches[m.ID] = m.Clone()
	return nil
}

func (r *MatchRepository) Get(ctx context.Context, id shared.MatchID) (*match.Match, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, exists := r.matches[id]
	if !exists {
		return nil, match.ErrMatchNotFound
	}
	return m.Clone(), nil
}

// ListDue returns matches whose deadline has passed, earliest deadline first.
func (r *MatchRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]shared.MatchID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var due []*match.Match
	for _, m := range r.matches {
		if m.Due(now) {
			due = append(due, m)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].Deadline.Before(due[j].Deadline) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	ids := make([]shared.MatchID, len(due))
	for i, m := range due {
		ids[i] = m.ID
	}
	return ids, nil
}

func (r *MatchRepository) ListOpen(ctx context.Context) ([]*match.Match, error) {
	return r.filter(func(m *match.Match) bool { return m.State.Open() }, 0, 0), nil
}

func (r *MatchRepository) ListByTournament(ctx context.Context, id shared.TournamentID) ([]*match.Match, error) {
	return r.filter(func(m *match.Match) bool { return m.Link != nil && m.Link.TournamentID == id }, 0, 0), nil
}

func (r *MatchRepository) ListByUser(ctx context.Context, user shared.UserID, limit, offset int) ([]*match.Match, error) {
	return r.filter(func(m *match.Match) bool { return m.Has(user) }, limit, offset), nil
}

// filter returns clones of matching matches, oldest first.
func (r *MatchRepository) filter(keep func(*match.Match) bool, limit, offset int) []*match.Match {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*match.Match
	for _, m := range r.matches {
		if keep(m) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return clonePage(out, limit, offset, (*match.Match).Clone)
}
