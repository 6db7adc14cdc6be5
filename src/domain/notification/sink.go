package notification

import "context"

// Sink accepts notifications. Implementations must not block callers for long
// and must never fail the operation that produced the event.
type Sink interface {
	Notify(ctx context.Context, e *Event)
}

// Dispatcher delivers a batch of events to an external channel.
type Dispatcher interface {
	Dispatch(ctx context.Context, events []*Event) error
}

// Discard drops every event.
var Discard Sink = discard{}

type discard struct{}

func (discard) Notify(context.Context, *Event) {}
