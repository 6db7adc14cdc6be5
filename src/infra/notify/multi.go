package notify

import (
	"context"
	"errors"

	"github.com/sandai/arena/src/domain/notification"
)

// Tee fans every event out to each sink in order.
type Tee []notification.Sink

func (t Tee) Notify(ctx context.Context, e *notification.Event) {
	for _, s := range t {
		s.Notify(ctx, e)
	}
}

// Fanout dispatches each batch to every dispatcher. One failing channel
// does not stop the others.
type Fanout []notification.Dispatcher

func (f Fanout) Dispatch(ctx context.Context, events []*notification.Event) error {
	var errs []error
	for _, d := range f {
		if err := d.Dispatch(ctx, events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
