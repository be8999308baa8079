// Package recorder keeps the audio of every utterance as a WAV file.
//
// [Decoder] wraps any [stt.Decoder]: the samples fed to an utterance are
// collected and written to <dir>/utt-<session>-<n>.wav when it ends. Dropped
// utterances (no EndUtterance) are not written.
package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/MrWong99/livesegment/pkg/audio"
	"github.com/MrWong99/livesegment/pkg/provider/stt"
)

// Decoder is an [stt.Decoder] that records what it is fed.
type Decoder struct {
	stt.Decoder

	dir        string
	session    string
	sampleRate int

	n     int
	open  bool
	buf   []int
	paths []string
}

var _ stt.Decoder = (*Decoder)(nil)

// Wrap returns a Decoder recording into dir, which is created if missing.
func Wrap(dec stt.Decoder, dir, session string, sampleRate int) (*Decoder, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("recorder: invalid sample rate %d", sampleRate)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("recorder: %w", err)
	}
	return &Decoder{Decoder: dec, dir: dir, session: session, sampleRate: sampleRate}, nil
}

// StartUtterance discards any unfinished recording and starts a new one.
func (d *Decoder) StartUtterance(ctx context.Context) error {
	d.n++
	d.open = true
	d.buf = d.buf[:0]
	return d.Decoder.StartUtterance(ctx)
}

// Process records samples and forwards them.
func (d *Decoder) Process(ctx context.Context, samples []int16, final bool) error {
	if d.open {
		for _, s := range samples {
			d.buf = append(d.buf, int(s))
		}
	}
	return d.Decoder.Process(ctx, samples, final)
}

// EndUtterance forwards the call and writes the recording. A failed write is
// logged and does not fail the utterance.
func (d *Decoder) EndUtterance(ctx context.Context) error {
	err := d.Decoder.EndUtterance(ctx)
	if d.open {
		d.open = false
		path := filepath.Join(d.dir, fmt.Sprintf("utt-%s-%d.wav", d.session, d.n))
		if werr := d.write(path); werr != nil {
			slog.Warn("recorder: write failed", "path", path, "err", werr)
		} else {
			d.paths = append(d.paths, path)
			slog.Debug("recorder: utterance written", "path", path,
				"duration", audio.Format{SampleRate: d.sampleRate, Channels: 1}.Duration(len(d.buf)))
		}
	}
	return err
}

// Paths returns the files written so far.
func (d *Decoder) Paths() []string {
	return append([]string(nil), d.paths...)
}

func (d *Decoder) write(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := wav.NewEncoder(f, d.sampleRate, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: d.sampleRate},
		Data:           d.buf,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		return fmt.Errorf("finalize: %w", err)
	}
	return f.Close()
}
