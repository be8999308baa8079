package transcript

import (
	"context"
	"errors"

	"github.com/MrWong99/livesegment/internal/segment"
)

// Multi delivers every event to each handler in order. A failing handler does
// not keep the event from the others; all errors are joined.
type Multi []segment.EventHandler

var _ segment.EventHandler = Multi(nil)

// HandleEvent fans ev out.
func (m Multi) HandleEvent(ctx context.Context, ev segment.Event) error {
	var errs []error
	for _, h := range m {
		if h == nil {
			continue
		}
		if err := h.HandleEvent(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
