// Package segment implements the utterance controller: the control loop that
// turns a continuous stream of audio frames into discrete utterances.
//
// A [Controller] pulls frames from an [audio.Source], classifies them with an
// [endpoint.Endpointer] and forwards the speech audio of each utterance to an
// [stt.Decoder]. Every boundary and every hypothesis is reported to an
// [EventHandler] as an [Event]:
//
//	SpeechStart → Partial* → SpeechEnd → Final?
//
// The controller tracks a two-state utterance machine (Closed, Open). The
// state is Open exactly when the endpointer reported speech at the most recent
// check; the decoder sees one StartUtterance before the first speech frame of
// an utterance and one EndUtterance after the last.
package segment

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors returned (wrapped) by [Controller.Run].
var (
	// ErrIO marks a failure to read audio that was not a clean end of stream.
	ErrIO = errors.New("segment: i/o failure")

	// ErrDecoder marks a failed StartUtterance or Process decoder call.
	ErrDecoder = errors.New("segment: decoder failure")

	// ErrAlreadyRun is returned when Run is called more than once.
	ErrAlreadyRun = errors.New("segment: controller already run")
)

// State is the utterance state of a [Controller].
type State int32

const (
	// StateClosed means no utterance is in progress.
	StateClosed State = iota
	// StateOpen means an utterance has started and not yet ended.
	StateOpen
)

// String returns "closed" or "open".
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// ShutdownPolicy decides what happens to an utterance that is still open when
// the stream ends or the run is cancelled.
type ShutdownPolicy int

const (
	// ForceClose flushes buffered speech into the decoder, ends the utterance
	// and reports its final hypothesis. SpeechEnd is marked as forced.
	ForceClose ShutdownPolicy = iota

	// Drop abandons the utterance: no SpeechEnd, no EndUtterance, no final.
	Drop
)

// String returns the configuration name of the policy.
func (p ShutdownPolicy) String() string {
	switch p {
	case ForceClose:
		return "force_close"
	case Drop:
		return "drop"
	default:
		return fmt.Sprintf("ShutdownPolicy(%d)", int(p))
	}
}

// IsValid reports whether p is a known policy.
func (p ShutdownPolicy) IsValid() bool {
	return p == ForceClose || p == Drop
}

// ParseShutdownPolicy maps a configuration name to a policy. The empty string
// selects [ForceClose].
func ParseShutdownPolicy(s string) (ShutdownPolicy, error) {
	switch s {
	case "", "force_close":
		return ForceClose, nil
	case "drop":
		return Drop, nil
	default:
		return 0, fmt.Errorf("segment: unknown shutdown policy %q", s)
	}
}

// EventType identifies the kind of an [Event].
type EventType int

const (
	EventSpeechStart EventType = iota + 1
	EventPartial
	EventSpeechEnd
	EventFinal
)

// String returns a lower-case name for the event type.
func (t EventType) String() string {
	switch t {
	case EventSpeechStart:
		return "speech_start"
	case EventPartial:
		return "partial"
	case EventSpeechEnd:
		return "speech_end"
	case EventFinal:
		return "final"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// Event is one observable step of the segmentation.
type Event struct {
	Type EventType

	// Utterance is the 1-based index of the utterance the event belongs to.
	Utterance int

	// Time is the stream position in seconds. Set for SpeechStart and
	// SpeechEnd.
	Time float64

	// Text is the hypothesis. Set for Partial and Final.
	Text string

	// Forced is true on a SpeechEnd produced by shutdown rather than by the
	// endpointer, and on the Final that follows it.
	Forced bool
}

// EventHandler receives the events of a run. HandleEvent is called from the
// controller goroutine; a slow handler stalls segmentation. A returned error
// is logged and does not stop the run.
type EventHandler interface {
	HandleEvent(ctx context.Context, ev Event) error
}

// EventHandlerFunc adapts a function to [EventHandler].
type EventHandlerFunc func(ctx context.Context, ev Event) error

// HandleEvent calls f(ctx, ev).
func (f EventHandlerFunc) HandleEvent(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// discard drops every event.
var discard = EventHandlerFunc(func(context.Context, Event) error { return nil })
