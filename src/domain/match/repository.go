package match

import (
	"context"
	"time"

	"github.com/sandai/arena/src/domain/shared"
)

// Repository persists match snapshots. Create fails with shared.ErrDuplicate
// when the id is taken; Get fails with ErrMatchNotFound.
type Repository interface {
	Create(ctx context.Context, m *Match) error
	Save(ctx context.Context, m *Match) error
	Get(ctx context.Context, id shared.MatchID) (*Match, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]shared.MatchID, error)
	ListOpen(ctx context.Context) ([]*Match, error)
	ListByTournament(ctx context.Context, id shared.TournamentID) ([]*Match, error)
	ListByUser(ctx context.Context, user shared.UserID, limit, offset int) ([]*Match, error)
}
