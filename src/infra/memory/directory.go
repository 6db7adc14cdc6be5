package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/sandai/arena/src/domain/player"
	"github.com/sandai/arena/src/domain/shared"
)

// Directory implements player.Directory from a fixed set of profiles.
type Directory struct {
	mu       sync.RWMutex
	profiles map[shared.UserID]*player.Profile
}

func NewDirectory() *Directory {
	return &Directory{profiles: make(map[shared.UserID]*player.Profile)}
}

// Put stores or replaces a profile.
func (d *Directory) Put(p *player.Profile) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c := *p
	c.Tags = maps.Clone(p.Tags)
	d.profiles[p.ID] = &c
}

func (d *Directory) Profile(ctx context.Context, id shared.UserID) (*player.Profile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p, ok := d.profiles[id]
	if !ok {
		return nil, player.ErrProfileNotFound
	}
	c := *p
	c.Tags = maps.Clone(p.Tags)
	return &c, nil
}
