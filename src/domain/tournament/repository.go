package tournament

import (
	"context"

	"github.com/sandai/arena/src/domain/shared"
)

// Repository manages tournament persistence. Participants and the bracket
// are stored with the aggregate.
type Repository interface {
	Create(ctx context.Context, tournament *Tournament) error
	Save(ctx context.Context, tournament *Tournament) error
	Get(ctx context.Context, id shared.TournamentID) (*Tournament, error)
	List(ctx context.Context, limit, offset int) ([]*Tournament, error)
	ListByState(ctx context.Context, states ...State) ([]*Tournament, error)
}
