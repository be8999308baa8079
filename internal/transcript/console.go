package transcript

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/MrWong99/livesegment/internal/segment"
)

// Console prints events the way an interactive transcription tool does:
// boundaries and partial hypotheses go to the diagnostic stream, each final
// hypothesis is one line on the primary stream.
type Console struct {
	mu   sync.Mutex
	out  io.Writer
	diag io.Writer
}

var _ segment.EventHandler = (*Console)(nil)

// NewConsole returns a Console writing finals to out and everything else to
// diag.
func NewConsole(out, diag io.Writer) *Console {
	return &Console{out: out, diag: diag}
}

// HandleEvent writes ev.
func (c *Console) HandleEvent(_ context.Context, ev segment.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	switch ev.Type {
	case segment.EventSpeechStart:
		_, err = fmt.Fprintf(c.diag, "Speech start at %.2f\n", ev.Time)
	case segment.EventPartial:
		_, err = fmt.Fprintf(c.diag, "PARTIAL RESULT: %s\n", ev.Text)
	case segment.EventSpeechEnd:
		suffix := ""
		if ev.Forced {
			suffix = " (forced)"
		}
		_, err = fmt.Fprintf(c.diag, "Speech end at %.2f%s\n", ev.Time, suffix)
	case segment.EventFinal:
		_, err = fmt.Fprintf(c.out, "%s\n", ev.Text)
	}
	if err != nil {
		return fmt.Errorf("transcript: console: %w", err)
	}
	return nil
}
