package matches

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	appescrow "github.com/sandai/arena/src/app/escrow"
	"github.com/sandai/arena/src/domain/escrow"
	"github.com/sandai/arena/src/domain/match"
	"github.com/sandai/arena/src/domain/notification"
	"github.com/sandai/arena/src/domain/player"
	"github.com/sandai/arena/src/domain/shared"
	"github.com/sandai/arena/src/domain/verification"
)

var ErrEngineStopped = errors.New("match engine stopped")

// Escrow is the stake custody the engine settles through.
type Escrow interface {
	HoldStakes(ctx context.Context, cmd appescrow.HoldCommand) (*escrow.Record, error)
	Settle(ctx context.Context, id shared.MatchID, outcome escrow.Outcome) (escrow.Settlement, error)
}

// Balances lets the engine refuse a search the user cannot pay for.
type Balances interface {
	Balance(ctx context.Context, user shared.UserID) (shared.Amount, error)
}

// ResultListener is told about every tournament match that reached a final
// outcome. Calls arrive one at a time in the order matches finished.
type ResultListener interface {
	OnMatchFinished(ctx context.Context, m *match.Match)
}

// Metrics receives engine measurements.
type Metrics interface {
	Transition(game shared.GameType, from, to match.State)
	Settled(kind escrow.SettlementKind, total shared.Amount)
}

type nopMetrics struct{}

func (nopMetrics) Transition(shared.GameType, match.State, match.State) {}
func (nopMetrics) Settled(escrow.SettlementKind, shared.Amount)         {}

// Config tunes the engine.
type Config struct {
	Shards              int
	MatchmakingTimeout  time.Duration
	ReadyGrace          time.Duration
	VerificationWindow  time.Duration
	DefaultPlayDuration time.Duration
	PlayDurations       map[shared.GameType]time.Duration
	RatingWindow        int
	SweepBatch          int
}

func DefaultConfig() Config {
	return Config{
		Shards:              8,
		MatchmakingTimeout:  2 * time.Minute,
		ReadyGrace:          30 * time.Second,
		VerificationWindow:  10 * time.Minute,
		DefaultPlayDuration: 12 * time.Minute,
		PlayDurations: map[shared.GameType]time.Duration{
			shared.GameCODM: 10 * time.Minute,
		},
		SweepBatch: 500,
	}
}

func (c Config) timing(game shared.GameType) match.Timing {
	play, ok := c.PlayDurations[game]
	if !ok {
		play = c.DefaultPlayDuration
	}
	return match.Timing{
		MatchmakingTimeout: c.MatchmakingTimeout,
		ReadyGrace:         c.ReadyGrace,
		PlayDuration:       play,
		VerificationWindow: c.VerificationWindow,
	}
}

// Deps are the collaborators of an Engine. Balances, Directory, Notifier,
// Metrics and Logger are optional.
type Deps struct {
	Repo      match.Repository
	Escrow    Escrow
	Balances  Balances
	Resolver  *verification.Resolver
	Directory player.Directory
	Notifier  notification.Sink
	Metrics   Metrics
	Logger    *zap.Logger
}

type job struct {
	ctx   context.Context
	fn    func(ctx context.Context, fx *effects) (*match.Match, error)
	reply chan reply
}

type reply struct {
	m   *match.Match
	err error
	fx  *effects
}

// Engine runs every match through its lifecycle. Work on one match is
// serialized on the shard that owns its id; different matches proceed in
// parallel.
type Engine struct {
	Repo      match.Repository
	Escrow    Escrow
	Balances  Balances
	Resolver  *verification.Resolver
	Directory player.Directory
	Notifier  notification.Sink
	Metrics   Metrics
	Clock     func() time.Time
	Logger    *zap.Logger
	NewID     func() shared.MatchID

	cfg      Config
	shards   []chan job
	pool     *pool
	waiters  *waiters
	finished *finishQueue
	listener ResultListener

	mu      sync.Mutex
	started bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// NewEngine creates an engine. Call Start before issuing commands.
func NewEngine(deps Deps, cfg Config) *Engine {
	if cfg.Shards < 1 {
		cfg.Shards = 1
	}
	if cfg.SweepBatch < 1 {
		cfg.SweepBatch = 500
	}
	e := &Engine{
		Repo:      deps.Repo,
		Escrow:    deps.Escrow,
		Balances:  deps.Balances,
		Resolver:  deps.Resolver,
		Directory: deps.Directory,
		Notifier:  deps.Notifier,
		Metrics:   deps.Metrics,
		Logger:    deps.Logger,
		Clock:     func() time.Time { return time.Now().UTC() },
		NewID: func() shared.MatchID {
			return shared.MatchID(uuid.Must(uuid.NewV4()).String())
		},
		cfg:      cfg,
		pool:     newPool(),
		waiters:  newWaiters(),
		finished: newFinishQueue(),
		stop:     make(chan struct{}),
	}
	if e.Resolver == nil {
		e.Resolver = verification.NewResolver(nil)
	}
	if e.Notifier == nil {
		e.Notifier = notification.Discard
	}
	if e.Metrics == nil {
		e.Metrics = nopMetrics{}
	}
	if e.Logger == nil {
		e.Logger = zap.NewNop()
	}
	e.shards = make([]chan job, cfg.Shards)
	for i := range e.shards {
		e.shards[i] = make(chan job, 64)
	}
	return e
}

// SetListener registers the tournament result listener.
func (e *Engine) SetListener(l ResultListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listener = l
}

// Start rebuilds the matchmaking pool from persisted matches and launches
// the shard workers.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return nil
	}
	open, err := e.Repo.ListOpen(ctx)
	if err != nil {
		return err
	}
	for _, m := range open {
		e.pool.restore(m)
	}
	for _, ch := range e.shards {
		e.wg.Add(1)
		go e.runShard(ch)
	}
	e.wg.Add(1)
	go e.runListener()
	e.started = true
	e.Logger.Info("match engine started",
		zap.Int("shards", len(e.shards)),
		zap.Int("recovered", len(open)))
	return nil
}

// Stop halts the workers. Commands issued afterwards fail with ErrEngineStopped.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	e.started = false
	close(e.stop)
	e.mu.Unlock()
	e.wg.Wait()
}

func (e *Engine) runShard(ch chan job) {
	defer e.wg.Done()
	for {
		select {
		case j := <-ch:
			fx := &effects{}
			m, err := j.fn(j.ctx, fx)
			j.reply <- reply{m: m, err: err, fx: fx}
		case <-e.stop:
			return
		}
	}
}

func (e *Engine) runListener() {
	defer e.wg.Done()
	for {
		for _, m := range e.finished.drain() {
			e.mu.Lock()
			l := e.listener
			e.mu.Unlock()
			if l != nil {
				l.OnMatchFinished(context.Background(), m)
			}
		}
		select {
		case <-e.finished.signal:
		case <-e.stop:
			return
		}
	}
}

func (e *Engine) shardOf(id shared.MatchID) chan job {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return e.shards[h.Sum32()%uint32(len(e.shards))]
}

// do runs fn on the shard owning id. fn always runs to completion even if
// ctx is cancelled while waiting; its effects are then applied in the
// background.
func (e *Engine) do(ctx context.Context, id shared.MatchID, fn func(ctx context.Context, fx *effects) (*match.Match, error)) (*match.Match, error) {
	j := job{ctx: context.WithoutCancel(ctx), fn: fn, reply: make(chan reply, 1)}
	select {
	case e.shardOf(id) <- j:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.stop:
		return nil, ErrEngineStopped
	}
	select {
	case r := <-j.reply:
		e.apply(j.ctx, r.fx)
		return r.m, r.err
	case <-ctx.Done():
		go func() {
			select {
			case r := <-j.reply:
				e.apply(j.ctx, r.fx)
			case <-e.stop:
			}
		}()
		return nil, ctx.Err()
	case <-e.stop:
		return nil, ErrEngineStopped
	}
}

// load fetches id inside a shard job.
func (e *Engine) load(ctx context.Context, id shared.MatchID) (*match.Match, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	return e.Repo.Get(ctx, id)
}

// Get returns a snapshot of a match.
func (e *Engine) Get(ctx context.Context, id shared.MatchID) (*match.Match, error) {
	return e.load(ctx, id)
}

// History lists a user's matches, oldest first.
func (e *Engine) History(ctx context.Context, user shared.UserID, limit, offset int) ([]*match.Match, error) {
	if err := user.Validate(); err != nil {
		return nil, err
	}
	return e.Repo.ListByUser(ctx, user, limit, offset)
}

// finishQueue is an unbounded FIFO feeding the result listener.
type finishQueue struct {
	mu     sync.Mutex
	items  []*match.Match
	signal chan struct{}
}

func newFinishQueue() *finishQueue {
	return &finishQueue{signal: make(chan struct{}, 1)}
}

func (q *finishQueue) push(m *match.Match) {
	q.mu.Lock()
	q.items = append(q.items, m)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *finishQueue) drain() []*match.Match {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}
