// Package whisper provides whisper.cpp-backed decoders.
//
// Two providers are available. Provider talks to a running whisper-server
// binary over its REST API (POST /inference). NativeProvider links
// whisper.cpp through its CGO bindings and needs no server.
//
// whisper.cpp is a batch engine, so both providers hand out
// [batch.Decoder] values: the utterance audio is buffered and re-transcribed
// every partial interval to produce partial hypotheses, and once more at the
// end of the utterance for the final hypothesis.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080",
//	    whisper.WithLanguage("en"),
//	    whisper.WithPartialInterval(time.Second),
//	)
//	dec, err := p.NewDecoder(ctx, stt.DecoderConfig{SampleRate: 16000})
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/livesegment/pkg/audio"
	"github.com/MrWong99/livesegment/pkg/provider/stt"
	"github.com/MrWong99/livesegment/pkg/provider/stt/batch"
)

const (
	defaultLanguage        = "en"
	defaultSampleRate      = 16000
	defaultPartialInterval = time.Second

	// whisper models see at most 30 s of audio per pass.
	defaultMaxDuration = 28 * time.Second
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en", "small"). When empty the server uses whichever model it
// was started with. This is the default.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the language code sent to the whisper.cpp server
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithPartialInterval sets how much new audio triggers a partial
// re-transcription. Zero disables partial hypotheses. Defaults to 1 s.
func WithPartialInterval(d time.Duration) Option {
	return func(p *Provider) {
		p.partialInterval = d
	}
}

// WithMaxDuration sets the maximum audio per inference request; longer
// utterances are transcribed in pieces. Defaults to 28 s.
func WithMaxDuration(d time.Duration) Option {
	return func(p *Provider) {
		p.maxDuration = d
	}
}

// WithHTTPClient replaces the HTTP client used for inference requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements stt.Provider backed by a whisper.cpp HTTP server.
// Decoders created by the same Provider share its HTTP client.
type Provider struct {
	serverURL       string
	model           string
	language        string
	partialInterval time.Duration
	maxDuration     time.Duration
	httpClient      *http.Client
}

// New creates a new Provider that connects to the whisper.cpp HTTP server at
// serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:       strings.TrimRight(serverURL, "/"),
		language:        defaultLanguage,
		partialInterval: defaultPartialInterval,
		maxDuration:     defaultMaxDuration,
		httpClient:      &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// NewDecoder returns a decoder that uploads utterance audio to the server.
// cfg.Language overrides the provider language; cfg.Keywords are sent as the
// initial prompt.
//
// Returns an error only if the context is already cancelled; no network
// connection is established until the first inference.
func (p *Provider) NewDecoder(ctx context.Context, cfg stt.DecoderConfig) (stt.Decoder, error) {
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
	t := &httpTranscriber{
		serverURL:  p.serverURL,
		model:      p.model,
		language:   lang,
		prompt:     stt.KeywordPrompt(cfg.Keywords),
		httpClient: p.httpClient,
	}
	d, err := batch.New(t, batch.Config{
		SampleRate:      sr,
		PartialInterval: p.partialInterval,
		MaxDuration:     p.maxDuration,
		Name:            "whisper",
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// ---- httpTranscriber ---------------------------------------------------------

// httpTranscriber implements batch.Transcriber against the /inference
// endpoint.
type httpTranscriber struct {
	serverURL  string
	model      string
	language   string
	prompt     string
	httpClient *http.Client
}

// Transcribe encodes samples as a WAV file and POSTs it to the whisper.cpp
// /inference endpoint as multipart/form-data.
func (t *httpTranscriber) Transcribe(ctx context.Context, samples []int16, sampleRate int) (string, error) {
	wav := audio.EncodeWAV(samples, audio.Format{SampleRate: sampleRate, Channels: 1})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return "", fmt.Errorf("whisper: write wav data: %w", err)
	}

	fields := []struct{ name, value string }{
		{"language", t.language},
		{"model", t.model},
		{"prompt", t.prompt},
		{"response_format", "json"},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if err := mw.WriteField(f.name, f.value); err != nil {
			return "", fmt.Errorf("whisper: write %s field: %w", f.name, err)
		}
	}

	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.serverURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("whisper: read response body: %w", err)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("whisper: parse JSON response: %w", err)
	}

	return strings.TrimSpace(result.Text), nil
}
