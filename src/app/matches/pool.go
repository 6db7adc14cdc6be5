package matches

import (
	"sync"
	"time"

	"github.com/sandai/arena/src/domain/match"
	"github.com/sandai/arena/src/domain/shared"
)

type poolKey struct {
	game  shared.GameType
	wager shared.Amount
}

type ticket struct {
	matchID  shared.MatchID
	user     shared.UserID
	rating   int
	queuedAt time.Time
}

// pool holds searching matches waiting for an opponent and the single open
// match each user is allowed.
type pool struct {
	mu     sync.Mutex
	queues map[poolKey][]ticket
	where  map[shared.MatchID]poolKey
	active map[shared.UserID]shared.MatchID
}

func newPool() *pool {
	return &pool{
		queues: make(map[poolKey][]ticket),
		where:  make(map[shared.MatchID]poolKey),
		active: make(map[shared.UserID]shared.MatchID),
	}
}

// reserve claims the user's single open-match slot before pairing starts.
func (p *pool) reserve(user shared.UserID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.active[user]; busy {
		return match.ErrAlreadyInMatch
	}
	p.active[user] = ""
	return nil
}

// settle resolves a reservation once pairing produced m.
func (p *pool) settle(user shared.UserID, m *match.Match) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if m != nil && m.State.Open() {
		p.active[user] = m.ID
		return
	}
	if id, ok := p.active[user]; ok && id == "" {
		delete(p.active, user)
	}
}

func (p *pool) unreserve(user shared.UserID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id, ok := p.active[user]; ok && id == "" {
		delete(p.active, user)
	}
}

// occupy marks users as busy with id unless they already hold a slot.
func (p *pool) occupy(id shared.MatchID, users ...shared.UserID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, u := range users {
		if _, busy := p.active[u]; !busy {
			p.active[u] = id
		}
	}
}

// release frees users whose slot is held by id.
func (p *pool) release(id shared.MatchID, users ...shared.UserID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, u := range users {
		if cur, ok := p.active[u]; ok && cur == id {
			delete(p.active, u)
		}
	}
}

func (p *pool) activeMatch(user shared.UserID) (shared.MatchID, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.active[user]
	return id, ok && id != ""
}

// take removes and returns the best waiting ticket for user. With a rating
// window the closest rating inside the window wins, otherwise the oldest
// ticket does.
func (p *pool) take(key poolKey, user shared.UserID, rating, window int) (ticket, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.takeLocked(key, user, rating, window)
}

// takeOrAdd is take, falling back to queueing t when nothing fits.
func (p *pool) takeOrAdd(key poolKey, t ticket, window int) (ticket, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if found, ok := p.takeLocked(key, t.user, t.rating, window); ok {
		return found, true
	}
	p.addLocked(key, t)
	return ticket{}, false
}

func (p *pool) putBack(key poolKey, t ticket) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.addLocked(key, t)
}

func (p *pool) takeLocked(key poolKey, user shared.UserID, rating, window int) (ticket, bool) {
	queue := p.queues[key]
	best := -1
	bestDiff := 0
	for i, t := range queue {
		if t.user == user {
			continue
		}
		diff := abs(t.rating - rating)
		if window > 0 && diff > window {
			continue
		}
		if best < 0 || (window > 0 && diff < bestDiff) {
			best, bestDiff = i, diff
		}
		if window <= 0 {
			break
		}
	}
	if best < 0 {
		return ticket{}, false
	}
	t := queue[best]
	p.queues[key] = append(queue[:best:best], queue[best+1:]...)
	delete(p.where, t.matchID)
	return t, true
}

func (p *pool) addLocked(key poolKey, t ticket) {
	if _, queued := p.where[t.matchID]; queued {
		return
	}
	p.queues[key] = append(p.queues[key], t)
	p.where[t.matchID] = key
}

// remove drops the ticket of a match that is no longer searching.
func (p *pool) remove(id shared.MatchID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	key, ok := p.where[id]
	if !ok {
		return false
	}
	delete(p.where, id)
	queue := p.queues[key]
	for i, t := range queue {
		if t.matchID == id {
			p.queues[key] = append(queue[:i:i], queue[i+1:]...)
			break
		}
	}
	if len(p.queues[key]) == 0 {
		delete(p.queues, key)
	}
	return true
}

// restore rebuilds pool state for an open match loaded from storage.
func (p *pool) restore(m *match.Match) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if m.State == match.StateMatching && m.B == nil {
		p.addLocked(poolKey{game: m.GameType, wager: m.Wager}, ticket{
			matchID:  m.ID,
			user:     m.A.UserID,
			rating:   m.A.Rating,
			queuedAt: m.CreatedAt,
		})
	}
	for _, u := range m.Users() {
		if _, busy := p.active[u]; !busy {
			p.active[u] = m.ID
		}
	}
}

func (p *pool) waiting() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.where)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// waiters lets callers block until a searching match leaves matching.
type waiters struct {
	mu   sync.Mutex
	next int
	subs map[shared.MatchID]map[int]chan *match.Match
}

func newWaiters() *waiters {
	return &waiters{subs: make(map[shared.MatchID]map[int]chan *match.Match)}
}

func (w *waiters) subscribe(id shared.MatchID) (<-chan *match.Match, func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ch := make(chan *match.Match, 1)
	w.next++
	n := w.next
	if w.subs[id] == nil {
		w.subs[id] = make(map[int]chan *match.Match)
	}
	w.subs[id][n] = ch
	return ch, func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.subs[id], n)
		if len(w.subs[id]) == 0 {
			delete(w.subs, id)
		}
	}
}

func (w *waiters) publish(m *match.Match) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for n, ch := range w.subs[m.ID] {
		select {
		case ch <- m.Clone():
		default:
		}
		delete(w.subs[m.ID], n)
	}
	delete(w.subs, m.ID)
}
