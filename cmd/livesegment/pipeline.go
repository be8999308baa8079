package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/MrWong99/livesegment/internal/config"
	"github.com/MrWong99/livesegment/internal/segment"
	"github.com/MrWong99/livesegment/internal/transcript"
	"github.com/MrWong99/livesegment/internal/transcript/postgres"
	"github.com/MrWong99/livesegment/internal/transcript/recorder"
	"github.com/MrWong99/livesegment/pkg/audio"
	"github.com/MrWong99/livesegment/pkg/audio/capture"
	"github.com/MrWong99/livesegment/pkg/endpoint"
	"github.com/MrWong99/livesegment/pkg/provider/stt"
)

// defaultKeywordBoost is the boost given to vocabulary terms passed to
// decoders that support keyword hints.
const defaultKeywordBoost = 2

// pipeline holds everything built from a config. Close releases whatever the
// controller does not own.
type pipeline struct {
	controller *segment.Controller
	corrector  *transcript.Corrector
	session    string

	// closers run in reverse order on Close.
	closers []func() error
}

// Close releases the resources that outlive the controller (provider, store).
func (p *pipeline) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	p.closers = nil
	return errors.Join(errs...)
}

// buildPipeline constructs the endpointer, decoder, audio source and event
// handlers described by cfg, and wires them into a controller. On error every
// resource created so far is released.
func buildPipeline(ctx context.Context, cfg *config.Config, reg *config.Registry, stdout, stderr io.Writer) (p *pipeline, err error) {
	p = &pipeline{session: cfg.Transcript.Session}
	if p.session == "" {
		p.session = time.Now().UTC().Format("20060102T150405Z")
	}

	// Owned by the controller once it exists; released here on failure only.
	var owned []io.Closer
	defer func() {
		if err == nil {
			return
		}
		for i := len(owned) - 1; i >= 0; i-- {
			_ = owned[i].Close()
		}
		_ = p.Close()
	}()

	// ── Endpointer ────────────────────────────────────────────────────────────
	engine, err := reg.CreateVAD(config.ProviderEntry{Name: cfg.Endpointer.VAD})
	if err != nil {
		return nil, fmt.Errorf("create vad: %w", err)
	}
	ep, err := endpoint.NewWindowed(engine, endpoint.Config{
		SampleRate:  cfg.Endpointer.SampleRate,
		FrameLength: cfg.Endpointer.FrameLength,
		Window:      cfg.Endpointer.Window,
		Ratio:       cfg.Endpointer.Ratio,
		Mode:        cfg.Endpointer.Mode,
	})
	if err != nil {
		return nil, err
	}
	owned = append(owned, ep)

	// ── Decoder ───────────────────────────────────────────────────────────────
	provider, err := reg.CreateSTT(cfg.Decoder)
	if err != nil {
		return nil, fmt.Errorf("create decoder %q: %w", cfg.Decoder.Name, err)
	}
	if c, ok := provider.(io.Closer); ok {
		p.closers = append(p.closers, c.Close)
	}
	boost := float64(defaultKeywordBoost)
	if v, ok := cfg.Decoder.Options["keyword_boost"].(float64); ok {
		boost = v
	}
	var dec stt.Decoder
	dec, err = provider.NewDecoder(ctx, stt.DecoderConfig{
		SampleRate: ep.SampleRate(),
		Language:   cfg.Decoder.Language,
		Keywords:   keywordBoosts(cfg.Transcript.Vocabulary, boost),
	})
	if err != nil {
		return nil, fmt.Errorf("create decoder %q: %w", cfg.Decoder.Name, err)
	}
	owned = append(owned, dec)
	if cfg.Transcript.RecordDir != "" {
		rec, err := recorder.Wrap(dec, cfg.Transcript.RecordDir, p.session, ep.SampleRate())
		if err != nil {
			return nil, err
		}
		dec = rec
	}

	// ── Event handlers ────────────────────────────────────────────────────────
	handlers := transcript.Multi{transcript.NewConsole(stdout, stderr)}
	if dsn := cfg.Transcript.PostgresDSN; dsn != "" {
		store, err := postgres.Open(ctx, dsn, p.session)
		if err != nil {
			return nil, err
		}
		p.closers = append(p.closers, func() error { store.Close(); return nil })
		handlers = append(handlers, store)
	}
	p.corrector = transcript.NewCorrector(handlers, cfg.Transcript.Vocabulary)

	// ── Audio source ──────────────────────────────────────────────────────────
	src, err := openSource(ctx, cfg, ep)
	if err != nil {
		return nil, err
	}
	owned = append(owned, src)

	p.controller, err = segment.New(src, ep, dec, p.corrector,
		segment.WithShutdownPolicy(cfg.ShutdownPolicy()),
		segment.WithForceCloseTimeout(cfg.Segmentation.ForceCloseTimeout),
	)
	if err != nil {
		return nil, err
	}

	slog.Info("pipeline ready",
		"session", p.session,
		"decoder", providerSummary(cfg.Decoder),
		"vad", cfg.Endpointer.VAD,
		"sample_rate", ep.SampleRate(),
		"frame_size", ep.FrameSize(),
		"window_frames", ep.WindowFrames(),
		"on_shutdown", cfg.ShutdownPolicy(),
		"vocabulary", len(cfg.Transcript.Vocabulary),
	)
	return p, nil
}

// openSource starts the capture tool or opens the input file.
func openSource(ctx context.Context, cfg *config.Config, ep endpoint.Endpointer) (audio.Source, error) {
	readerOpts := []audio.ReaderOption{audio.WithShortReadPolicy(cfg.ShortReadPolicy())}
	switch cfg.Audio.Source {
	case config.AudioFile:
		if cfg.Audio.Path == capture.Stdin {
			if fi, err := os.Stdin.Stat(); err == nil && fi.Mode()&os.ModeCharDevice != 0 {
				slog.Warn("reading audio from a terminal; pipe raw PCM into stdin")
			}
		}
		return capture.OpenFile(cfg.Audio.Path, ep.SampleRate(), ep.FrameSize(), readerOpts...)
	default:
		args := capture.ExpandCommand(cfg.Audio.Command, ep.SampleRate())
		return capture.StartCommand(ctx, args, ep.FrameSize(), capture.WithReaderOptions(readerOpts...))
	}
}
