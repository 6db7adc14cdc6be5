package match

import (
	"time"

	"github.com/sandai/arena/src/domain/shared"
)

// Claim is one participant's account of the result. An empty Winner declares
// a draw.
type Claim struct {
	Participant shared.UserID
	Winner      shared.UserID
	Score       Score
	EvidenceRef string
	SubmittedAt time.Time
}

// Agrees reports whether two claims declare the same result.
func (c Claim) Agrees(other Claim) bool {
	return c.Winner == other.Winner && c.Score == other.Score
}
