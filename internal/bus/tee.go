package bus

import (
	"context"
	"errors"
)

type tee []Publisher

// Tee publishes every event to each of pubs in order. Nil entries are skipped.
// All publishers are attempted; their errors are joined.
func Tee(pubs ...Publisher) Publisher {
	out := make(tee, 0, len(pubs))
	for _, p := range pubs {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

func (t tee) Publish(ctx context.Context, topic string, event Event) error {
	var errs []error
	for _, p := range t {
		if err := p.Publish(ctx, topic, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(context.Context, string, Event) error { return nil }
