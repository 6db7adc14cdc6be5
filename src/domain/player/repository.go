package player

import (
	"context"

	"github.com/sandai/arena/src/domain/shared"
)

// Directory resolves user identities. It returns ErrProfileNotFound for
// unknown users.
type Directory interface {
	Profile(ctx context.Context, id shared.UserID) (*Profile, error)
}
