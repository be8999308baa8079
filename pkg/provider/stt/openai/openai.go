// Package openai provides a decoder backed by the OpenAI audio transcription
// API. The API is batch only, so decoders are [batch.Decoder] values that
// upload the buffered utterance as a WAV file.
package openai

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/livesegment/pkg/audio"
	"github.com/MrWong99/livesegment/pkg/provider/stt"
	"github.com/MrWong99/livesegment/pkg/provider/stt/batch"
)

// DefaultModel is the default OpenAI transcription model.
const DefaultModel = "whisper-1"

// Ensure Provider implements the stt.Provider interface.
var _ stt.Provider = (*Provider)(nil)

// Provider implements stt.Provider using the OpenAI API.
type Provider struct {
	client          oai.Client
	model           string
	partialInterval time.Duration
}

// config holds optional configuration for the provider.
type config struct {
	baseURL         string
	timeout         time.Duration
	partialInterval time.Duration
	maxRetries      int
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithPartialInterval enables partial hypotheses, one request per interval
// of new audio. Partials are disabled by default because every partial is a
// billed request.
func WithPartialInterval(d time.Duration) Option {
	return func(c *config) {
		c.partialInterval = d
	}
}

// WithMaxRetries sets how often the client retries a failed request.
func WithMaxRetries(n int) Option {
	return func(c *config) {
		c.maxRetries = n
	}
}

// New constructs a new OpenAI transcription Provider.
// If model is empty, DefaultModel (whisper-1) is used.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai stt: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{maxRetries: -1}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}
	if cfg.maxRetries >= 0 {
		reqOpts = append(reqOpts, option.WithMaxRetries(cfg.maxRetries))
	}

	return &Provider{
		client:          oai.NewClient(reqOpts...),
		model:           model,
		partialInterval: cfg.partialInterval,
	}, nil
}

// NewDecoder implements stt.Provider.
func (p *Provider) NewDecoder(ctx context.Context, cfg stt.DecoderConfig) (stt.Decoder, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("openai stt: context already cancelled: %w", err)
	}
	sr := cfg.SampleRate
	if sr <= 0 {
		sr = 16000
	}
	t := &transcriber{
		client:   p.client,
		model:    p.model,
		language: primaryLanguage(cfg.Language),
		prompt:   stt.KeywordPrompt(cfg.Keywords),
	}
	d, err := batch.New(t, batch.Config{
		SampleRate:      sr,
		PartialInterval: p.partialInterval,
		Name:            "openai stt",
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// transcriber implements batch.Transcriber with the transcriptions endpoint.
type transcriber struct {
	client   oai.Client
	model    string
	language string
	prompt   string
}

// Transcribe uploads samples as a WAV file.
func (t *transcriber) Transcribe(ctx context.Context, samples []int16, sampleRate int) (string, error) {
	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(audio.EncodeWAV(samples, audio.Format{SampleRate: sampleRate, Channels: 1})), "utterance.wav", "audio/wav"),
		Model: oai.AudioModel(t.model),
	}
	if t.language != "" {
		params.Language = oai.String(t.language)
	}
	if t.prompt != "" {
		params.Prompt = oai.String(t.prompt)
	}

	resp, err := t.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai stt: transcribe: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// primaryLanguage reduces a BCP-47 tag to the ISO-639-1 code the API expects.
func primaryLanguage(tag string) string {
	lang, _, _ := strings.Cut(tag, "-")
	return strings.ToLower(lang)
}
