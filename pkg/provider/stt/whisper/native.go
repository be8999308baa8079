// This file contains the NativeProvider implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/livesegment/pkg/audio"
	"github.com/MrWong99/livesegment/pkg/provider/stt"
	"github.com/MrWong99/livesegment/pkg/provider/stt/batch"
	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// nativeSampleRate is the only input rate whisper.cpp models accept.
const nativeSampleRate = 16000

// Compile-time assertion that NativeProvider satisfies stt.Provider.
var _ stt.Provider = (*NativeProvider)(nil)

// NativeProvider implements stt.Provider using whisper.cpp Go bindings
// (CGO), eliminating HTTP overhead entirely. The model is loaded once at
// startup and shared across all decoders.
type NativeProvider struct {
	model           whisperlib.Model
	language        string
	threads         uint
	partialInterval time.Duration
	maxDuration     time.Duration

	// inference serialises model use; whisper.cpp contexts created from one
	// model compete for the same compute buffers.
	inference sync.Mutex
}

// NativeOption is a functional option for configuring a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the language code for transcription
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// WithNativeThreads sets the number of CPU threads per inference. Zero keeps
// the whisper.cpp default.
func WithNativeThreads(n uint) NativeOption {
	return func(p *NativeProvider) { p.threads = n }
}

// WithNativePartialInterval sets how much new audio triggers a partial
// re-transcription. Zero disables partial hypotheses. Defaults to 1 s.
func WithNativePartialInterval(d time.Duration) NativeOption {
	return func(p *NativeProvider) { p.partialInterval = d }
}

// WithNativeMaxDuration sets the maximum audio per inference pass. Defaults
// to 28 s.
func WithNativeMaxDuration(d time.Duration) NativeOption {
	return func(p *NativeProvider) { p.maxDuration = d }
}

// NewNative creates a NativeProvider that loads the whisper.cpp model from
// the given file path. The caller must call Close when the provider is no
// longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &NativeProvider{
		model:           model,
		language:        defaultLanguage,
		partialInterval: defaultPartialInterval,
		maxDuration:     defaultMaxDuration,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model. Must be called after every decoder of
// this provider has been closed.
func (p *NativeProvider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// NewDecoder returns a decoder that runs inference on the shared model.
// whisper.cpp only accepts 16 kHz audio; other rates are resampled.
func (p *NativeProvider) NewDecoder(ctx context.Context, cfg stt.DecoderConfig) (stt.Decoder, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}
	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	sr := cfg.SampleRate
	if sr <= 0 {
		sr = defaultSampleRate
	}
	t := &nativeTranscriber{
		p:        p,
		language: lang,
		prompt:   stt.KeywordPrompt(cfg.Keywords),
	}
	d, err := batch.New(t, batch.Config{
		SampleRate:      sr,
		PartialInterval: p.partialInterval,
		MaxDuration:     p.maxDuration,
		Name:            "whisper-native",
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// ---- nativeTranscriber ------------------------------------------------------

// nativeTranscriber implements batch.Transcriber with the CGO bindings.
type nativeTranscriber struct {
	p        *NativeProvider
	language string
	prompt   string
}

// Transcribe converts samples to float32, runs whisper.cpp inference using a
// fresh context and returns the concatenated segment text. Inference itself
// cannot be interrupted; ctx is only checked before it starts.
func (t *nativeTranscriber) Transcribe(ctx context.Context, samples []int16, sampleRate int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}
	if sampleRate != nativeSampleRate {
		samples = audio.ResampleMono(samples, sampleRate, nativeSampleRate)
	}
	data := audio.ToFloat32(samples)

	t.p.inference.Lock()
	defer t.p.inference.Unlock()

	// Each context is NOT thread-safe, but the model can be shared.
	wctx, err := t.p.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}

	if err := wctx.SetLanguage(t.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", t.language, "err", err)
	}
	if t.p.threads > 0 {
		wctx.SetThreads(t.p.threads)
	}
	if t.prompt != "" {
		wctx.SetInitialPrompt(t.prompt)
	}

	if err := wctx.Process(data, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " "), nil
}
