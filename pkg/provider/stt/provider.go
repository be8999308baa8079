// Package stt defines the Decoder interface for speech recognition backends.
//
// A decoder consumes the speech audio of one utterance at a time. The caller
// brackets every utterance with StartUtterance and EndUtterance and feeds the
// audio in between with Process. At any point the decoder may hold a current
// best hypothesis: after a Process call it is a partial result for the audio
// so far, after EndUtterance it is the final result for the whole utterance.
//
// Backends range from true streaming recognisers (Deepgram) to batch engines
// (whisper.cpp, OpenAI) that are adapted to the streaming contract by
// [github.com/MrWong99/livesegment/pkg/provider/stt/batch].
package stt

import (
	"context"
	"errors"
)

// ErrNoUtterance is returned by Process and EndUtterance when no utterance
// has been started.
var ErrNoUtterance = errors.New("stt: no utterance in progress")

// ErrUtteranceOpen is returned by StartUtterance when the previous utterance
// has not been ended.
var ErrUtteranceOpen = errors.New("stt: utterance already in progress")

// DecoderConfig describes the audio format and recognition hints for a new
// decoder.
type DecoderConfig struct {
	// SampleRate is the sample rate in Hz of the mono 16-bit PCM audio passed
	// to Process.
	SampleRate int

	// Language is the BCP-47 language tag for recognition (e.g., "en",
	// "de-DE"). An empty string lets the backend decide.
	Language string

	// Keywords are vocabulary hints for uncommon words. Backends without a
	// boosting API may fold them into a text prompt or ignore them.
	Keywords []KeywordBoost
}

// Decoder recognises speech one utterance at a time.
//
// A Decoder is driven by a single goroutine; implementations need not be safe
// for concurrent use unless documented otherwise.
type Decoder interface {
	// StartUtterance begins a new utterance and clears the hypothesis.
	StartUtterance(ctx context.Context) error

	// Process feeds speech samples of the current utterance. final marks the
	// last chunk before EndUtterance; backends may use it to skip partial
	// inference. The samples slice is only valid for the duration of the call.
	Process(ctx context.Context, samples []int16, final bool) error

	// EndUtterance finishes the current utterance. Afterwards Hypothesis
	// returns the final result.
	EndUtterance(ctx context.Context) error

	// Hypothesis returns the current best text and whether there is one.
	Hypothesis() (string, bool)

	// Close releases the decoder. Calling Close more than once is safe.
	Close() error
}

// Provider creates decoders for one backend.
type Provider interface {
	// NewDecoder returns a decoder ready for its first StartUtterance call.
	// The caller owns the decoder and must Close it.
	NewDecoder(ctx context.Context, cfg DecoderConfig) (Decoder, error)
}
