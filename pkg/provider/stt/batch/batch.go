// Package batch adapts batch transcription engines to the streaming
// stt.Decoder contract.
//
// A batch engine transcribes a complete buffer of audio in one call. The
// Decoder in this package accumulates the samples of an utterance and calls
// the engine:
//
//   - every PartialInterval of new audio, over everything buffered so far, to
//     produce a partial hypothesis (best effort; failures are logged);
//   - whenever the buffer reaches MaxDuration, committing the text and
//     starting a fresh buffer so that memory stays bounded;
//   - at EndUtterance, over the remaining buffer, to produce the final
//     hypothesis.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/livesegment/pkg/audio"
	"github.com/MrWong99/livesegment/pkg/provider/stt"
)

// Transcriber runs one batch inference over mono 16-bit PCM samples.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []int16, sampleRate int) (string, error)
}

// TranscriberFunc adapts a plain function to Transcriber.
type TranscriberFunc func(ctx context.Context, samples []int16, sampleRate int) (string, error)

// Transcribe calls f.
func (f TranscriberFunc) Transcribe(ctx context.Context, samples []int16, sampleRate int) (string, error) {
	return f(ctx, samples, sampleRate)
}

// Config controls when a Decoder runs inference.
type Config struct {
	// SampleRate of the samples passed to Process. Required.
	SampleRate int

	// PartialInterval is the amount of new audio that triggers a partial
	// inference. Zero disables partial hypotheses.
	PartialInterval time.Duration

	// MaxDuration caps the audio held in one inference buffer. Zero means
	// no cap.
	MaxDuration time.Duration

	// Name prefixes errors and log lines (e.g., "whisper").
	Name string
}

// Decoder implements stt.Decoder on top of a Transcriber. If the Transcriber
// also implements io.Closer it is closed together with the Decoder.
type Decoder struct {
	t    Transcriber
	name string
	rate int

	partialSamples int
	maxSamples     int

	buf         []int16
	lastPartial int // len(buf) at the last partial inference
	committed   []string
	hyp         string
	open        bool
	closed      bool
}

var _ stt.Decoder = (*Decoder)(nil)

// New returns a Decoder that transcribes with t.
func New(t Transcriber, cfg Config) (*Decoder, error) {
	if t == nil {
		return nil, errors.New("batch: transcriber must not be nil")
	}
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("batch: sample rate must be positive, got %d", cfg.SampleRate)
	}
	if cfg.PartialInterval < 0 || cfg.MaxDuration < 0 {
		return nil, errors.New("batch: durations must not be negative")
	}
	name := cfg.Name
	if name == "" {
		name = "batch"
	}
	format := audio.Format{SampleRate: cfg.SampleRate, Channels: 1}
	return &Decoder{
		t:              t,
		name:           name,
		rate:           cfg.SampleRate,
		partialSamples: format.SamplesIn(cfg.PartialInterval),
		maxSamples:     format.SamplesIn(cfg.MaxDuration),
	}, nil
}

// StartUtterance clears the buffer and hypothesis.
func (d *Decoder) StartUtterance(_ context.Context) error {
	if d.closed {
		return fmt.Errorf("%s: decoder is closed", d.name)
	}
	if d.open {
		return fmt.Errorf("%s: %w", d.name, stt.ErrUtteranceOpen)
	}
	d.open = true
	d.buf = d.buf[:0]
	d.lastPartial = 0
	d.committed = d.committed[:0]
	d.hyp = ""
	return nil
}

// Process appends samples to the utterance buffer and runs partial or
// committing inference when due.
func (d *Decoder) Process(ctx context.Context, samples []int16, final bool) error {
	if !d.open {
		return fmt.Errorf("%s: %w", d.name, stt.ErrNoUtterance)
	}
	d.buf = append(d.buf, samples...)

	if d.maxSamples > 0 && len(d.buf) >= d.maxSamples {
		text, err := d.t.Transcribe(ctx, d.buf, d.rate)
		if err != nil {
			return fmt.Errorf("%s: transcribe: %w", d.name, err)
		}
		if text = strings.TrimSpace(text); text != "" {
			d.committed = append(d.committed, text)
		}
		d.buf = d.buf[:0]
		d.lastPartial = 0
		d.hyp = d.join("")
		return nil
	}

	if final || d.partialSamples == 0 || len(d.buf)-d.lastPartial < d.partialSamples {
		return nil
	}
	d.lastPartial = len(d.buf)
	text, err := d.t.Transcribe(ctx, d.buf, d.rate)
	if err != nil {
		slog.Warn("partial inference failed", "decoder", d.name, "err", err)
		return nil
	}
	d.hyp = d.join(text)
	return nil
}

// EndUtterance transcribes the remaining buffer into the final hypothesis.
func (d *Decoder) EndUtterance(ctx context.Context) error {
	if !d.open {
		return fmt.Errorf("%s: %w", d.name, stt.ErrNoUtterance)
	}
	d.open = false

	var text string
	if len(d.buf) > 0 {
		var err error
		text, err = d.t.Transcribe(ctx, d.buf, d.rate)
		if err != nil {
			d.hyp = d.join("")
			return fmt.Errorf("%s: transcribe: %w", d.name, err)
		}
	}
	d.hyp = d.join(text)
	d.buf = d.buf[:0]
	return nil
}

// Hypothesis returns the latest partial or final text.
func (d *Decoder) Hypothesis() (string, bool) {
	return d.hyp, d.hyp != ""
}

// Close releases the transcriber if it is an io.Closer.
func (d *Decoder) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.open = false
	d.buf = nil
	if c, ok := d.t.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// join appends tail to the committed texts.
func (d *Decoder) join(tail string) string {
	parts := d.committed
	if tail = strings.TrimSpace(tail); tail != "" {
		parts = append(parts[:len(parts):len(parts)], tail)
	}
	return strings.Join(parts, " ")
}
