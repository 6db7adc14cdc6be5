// Package notify delivers notification events to external channels.
package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/sandai/arena/src/domain/notification"
)

const (
	DefaultQueueSize     = 1024
	DefaultBatchSize     = 50
	DefaultFlushInterval = 2 * time.Second
	dispatchTimeout      = 10 * time.Second
)

// AsyncOptions tunes an Async sink. Zero values take the defaults.
type AsyncOptions struct {
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
}

// Async is a notification.Sink that queues events and hands them to a
// dispatcher in batches on its own goroutine. A full queue drops the event;
// Notify never blocks.
type Async struct {
	dispatcher notification.Dispatcher
	logger     *zap.Logger
	batchSize  int
	interval   time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan *notification.Event
	done   chan struct{}

	dropped   atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64
}

func NewAsync(d notification.Dispatcher, logger *zap.Logger, opts AsyncOptions) *Async {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}
	a := &Async{
		dispatcher: d,
		logger:     logger,
		batchSize:  opts.BatchSize,
		interval:   opts.FlushInterval,
		queue:      make(chan *notification.Event, opts.QueueSize),
		done:       make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) Notify(_ context.Context, e *notification.Event) {
	if e == nil {
		return
	}
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		a.dropped.Inc()
		return
	}
	select {
	case a.queue <- e:
	default:
		a.dropped.Inc()
		a.logger.Debug("notification dropped", zap.String("type", string(e.Type)))
	}
}

// Dropped counts events lost to a full queue or a closed sink.
func (a *Async) Dropped() int64 { return a.dropped.Load() }

// Delivered counts events the dispatcher accepted.
func (a *Async) Delivered() int64 { return a.delivered.Load() }

// Failed counts events in batches the dispatcher rejected.
func (a *Async) Failed() int64 { return a.failed.Load() }

// Close stops accepting events, flushes what is queued and waits for the
// worker until ctx ends.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Async) run() {
	defer close(a.done)
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	batch := make([]*notification.Event, 0, a.batchSize)
	for {
		select {
		case e, ok := <-a.queue:
			if !ok {
				a.flush(batch)
				return
			}
			batch = append(batch, e)
			if len(batch) >= a.batchSize {
				a.flush(batch)
				batch = make([]*notification.Event, 0, a.batchSize)
			}
		case <-ticker.C:
			if len(batch) > 0 {
				a.flush(batch)
				batch = make([]*notification.Event, 0, a.batchSize)
			}
		}
	}
}

func (a *Async) flush(batch []*notification.Event) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	if err := a.dispatcher.Dispatch(ctx, batch); err != nil {
		a.failed.Add(int64(len(batch)))
		a.logger.Warn("dispatch notifications", zap.Int("events", len(batch)), zap.Error(err))
		return
	}
	a.delivered.Add(int64(len(batch)))
}
