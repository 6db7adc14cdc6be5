package player

import (
	"strings"
	"time"

	"github.com/sandai/arena/src/domain/shared"
)

// TagAmmo is the profile tag carrying a CODM player's declared ammunition type.
const TagAmmo = "codm_ammo"

// DefaultRating is assumed for players the identity service does not know.
const DefaultRating = 1000

// Profile is the read-only identity view the engine pairs and seeds on.
type Profile struct {
	ID          shared.UserID
	DisplayName string
	Rating      int
	Tags        map[string]string
	Suspended   bool
	UpdatedAt   time.Time
}

func NewProfile(id shared.UserID, displayName string, rating int, now time.Time) (*Profile, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	if rating < 0 {
		return nil, ErrRatingInvalid
	}
	return &Profile{
		ID:          id,
		DisplayName: displayName,
		Rating:      rating,
		Tags:        make(map[string]string),
		UpdatedAt:   now,
	}, nil
}

// Tag returns a normalized tag value.
func (p *Profile) Tag(key string) string {
	if p == nil || p.Tags == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(p.Tags[key]))
}

// AmmoType is the declared CODM ammunition type, if any.
func (p *Profile) AmmoType() string {
	return p.Tag(TagAmmo)
}

// CanCompete rejects suspended players.
func (p *Profile) CanCompete() error {
	if p.Suspended {
		return ErrAccountSuspended
	}
	return nil
}
