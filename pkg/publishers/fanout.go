package publishers

import (
	"context"
	"errors"
	"fmt"
)

// Fanout broadcasts a listing event to every configured sink. One slow or
// failing sink never blocks the others; the reconciliation run only logs the
// joined error and moves on.
type Fanout struct {
	sinks []Publisher
}

// NewFanout builds a fanout over the given publishers, dropping nil entries.
func NewFanout(pubs []Publisher) *Fanout {
	sinks := make([]Publisher, 0, len(pubs))
	for _, p := range pubs {
		if p != nil {
			sinks = append(sinks, p)
		}
	}
	return &Fanout{sinks: sinks}
}

// Publish sends the event to every sink and returns how many accepted it,
// with the per-sink failures joined into one error.
func (f *Fanout) Publish(ctx context.Context, evt Event) (int, error) {
	if f == nil || len(f.sinks) == 0 {
		return 0, nil
	}

	delivered := 0
	var errs []error
	for _, p := range f.sinks {
		if err := p.Publish(ctx, evt); err != nil {
			errs = append(errs, fmt.Errorf("%s publisher[%s]: %w", p.Type(), p.ID(), err))
			continue
		}
		delivered++
	}
	return delivered, errors.Join(errs...)
}

// Size returns the number of configured sinks.
func (f *Fanout) Size() int {
	if f == nil {
		return 0
	}
	return len(f.sinks)
}
