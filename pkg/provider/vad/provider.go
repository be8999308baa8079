// Package vad defines the per-frame voice activity classifier used by the
// endpointer.
//
// A classifier answers one question for one frame: does this frame contain
// speech? It carries no notion of segments. Turning a sequence of noisy
// per-frame decisions into stable speech regions is the endpointer's job
// (see package endpoint), which smooths decisions over a window of frames.
//
// An Engine is a factory; each SessionHandle keeps its own adaptive state
// (noise floor estimates, model hidden state) for a single stream.
package vad

import "fmt"

// Mode selects how aggressively a classifier rejects non-speech. The names
// follow the WebRTC VAD modes: higher modes produce fewer false positives and
// more missed speech.
type Mode string

const (
	ModeLoose      Mode = "loose"
	ModeMedium     Mode = "medium"
	ModeStrict     Mode = "strict"
	ModeVeryStrict Mode = "very_strict"
)

// IsValid reports whether m is a recognised mode.
func (m Mode) IsValid() bool {
	switch m {
	case ModeLoose, ModeMedium, ModeStrict, ModeVeryStrict:
		return true
	}
	return false
}

// Config holds the parameters for a classifier session.
type Config struct {
	// SampleRate is the audio sample rate in Hz of every frame passed to
	// ProcessFrame.
	SampleRate int

	// FrameSize is the number of samples in every frame. ProcessFrame returns
	// an error for frames of any other length.
	FrameSize int

	// Mode selects the classifier aggressiveness. Empty means [ModeLoose].
	Mode Mode
}

// Validate checks that cfg describes a usable session.
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("vad: sample rate must be positive, got %d", c.SampleRate)
	}
	if c.FrameSize <= 0 {
		return fmt.Errorf("vad: frame size must be positive, got %d", c.FrameSize)
	}
	if c.Mode != "" && !c.Mode.IsValid() {
		return fmt.Errorf("vad: invalid mode %q", c.Mode)
	}
	return nil
}

// VADEvent is the classification of a single frame.
type VADEvent struct {
	// Speech is true when the frame is classified as speech.
	Speech bool

	// Probability is the classifier's speech score in [0.0, 1.0]. Backends
	// without a probabilistic model report 0 or 1.
	Probability float64
}

// SessionHandle classifies the frames of one audio stream. It is used by a
// single goroutine.
type SessionHandle interface {
	// ProcessFrame classifies one frame of exactly Config.FrameSize samples.
	// It must not block.
	ProcessFrame(frame []int16) (VADEvent, error)

	// Reset clears adaptive state without closing the session.
	Reset()

	// Close releases the session. Calling Close more than once is safe and
	// returns nil.
	Close() error
}

// Engine creates classifier sessions. Implementations must be safe for
// concurrent use.
type Engine interface {
	NewSession(cfg Config) (SessionHandle, error)
}
