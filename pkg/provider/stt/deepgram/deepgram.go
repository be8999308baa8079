// Package deepgram provides a Deepgram-backed decoder using the Deepgram
// streaming WebSocket API. It implements the stt.Provider interface.
//
// Each utterance is one WebSocket stream: StartUtterance dials, Process sends
// binary PCM messages, and EndUtterance sends CloseStream and waits until the
// server has delivered its last results and closed the connection. Interim
// results arrive asynchronously and are exposed as partial hypotheses.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/MrWong99/livesegment/pkg/audio"
	"github.com/MrWong99/livesegment/pkg/provider/stt"
	"github.com/coder/websocket"
)

const (
	deepgramEndpoint  = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultLanguage   = "en"
	defaultSampleRate = 16000
)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "en", "de-DE").
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithEndpoint overrides the streaming endpoint URL. Used to target
// self-hosted deployments and test servers.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// Provider implements stt.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey   string
	model    string
	language string
	endpoint string
}

var _ stt.Provider = (*Provider)(nil)

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		model:    defaultModel,
		language: defaultLanguage,
		endpoint: deepgramEndpoint,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// NewDecoder returns a decoder for cfg. No connection is opened until the
// first StartUtterance.
func (p *Provider) NewDecoder(ctx context.Context, cfg stt.DecoderConfig) (stt.Decoder, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("deepgram: context already cancelled: %w", err)
	}
	wsURL, err := p.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}
	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)
	return &decoder{url: wsURL, headers: headers}, nil
}

// buildURL constructs the Deepgram streaming endpoint URL for the given config.
func (p *Provider) buildURL(cfg stt.DecoderConfig) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	sr := cfg.SampleRate
	if sr <= 0 {
		sr = defaultSampleRate
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	q.Set("interim_results", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sr))
	q.Set("channels", "1")

	for _, kw := range cfg.Keywords {
		// Deepgram keyword format: word:boost (e.g., "Eldrinax:5")
		q.Add("keywords", fmt.Sprintf("%s:%g", kw.Keyword, kw.Boost))
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ---- decoder ----

// decoder is an stt.Decoder that opens one Deepgram stream per utterance.
type decoder struct {
	url     string
	headers http.Header

	conn     *websocket.Conn
	stopRead context.CancelFunc
	readDone chan struct{}
	closed   bool

	mu        sync.Mutex
	committed []string
	interim   string
	readErr   error
}

// StartUtterance dials a new stream.
func (d *decoder) StartUtterance(ctx context.Context) error {
	if d.closed {
		return errors.New("deepgram: decoder is closed")
	}
	if d.conn != nil {
		return fmt.Errorf("deepgram: %w", stt.ErrUtteranceOpen)
	}
	conn, _, err := websocket.Dial(ctx, d.url, &websocket.DialOptions{
		HTTPHeader: d.headers,
	})
	if err != nil {
		return fmt.Errorf("deepgram: dial: %w", err)
	}

	d.mu.Lock()
	d.committed = nil
	d.interim = ""
	d.readErr = nil
	d.mu.Unlock()

	readCtx, cancel := context.WithCancel(context.Background())
	d.conn = conn
	d.stopRead = cancel
	d.readDone = make(chan struct{})
	go d.readLoop(readCtx, conn, d.readDone)
	return nil
}

// Process sends samples as one binary message.
func (d *decoder) Process(ctx context.Context, samples []int16, _ bool) error {
	if d.conn == nil {
		return fmt.Errorf("deepgram: %w", stt.ErrNoUtterance)
	}
	if err := d.streamErr(); err != nil {
		return err
	}
	if err := d.conn.Write(ctx, websocket.MessageBinary, audio.EncodePCM16(samples)); err != nil {
		return fmt.Errorf("deepgram: send audio: %w", err)
	}
	return nil
}

// EndUtterance asks the server to flush the stream and waits for it to close
// the connection.
func (d *decoder) EndUtterance(ctx context.Context) error {
	if d.conn == nil {
		return fmt.Errorf("deepgram: %w", stt.ErrNoUtterance)
	}
	conn, done := d.conn, d.readDone
	defer d.release()

	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
		return fmt.Errorf("deepgram: send CloseStream: %w", err)
	}
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("deepgram: wait for final results: %w", ctx.Err())
	}
	_ = conn.Close(websocket.StatusNormalClosure, "utterance finished")
	return d.streamErr()
}

// Hypothesis returns the finalised text of the stream followed by the latest
// interim result.
func (d *decoder) Hypothesis() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	parts := d.committed
	if d.interim != "" {
		parts = append(parts[:len(parts):len(parts)], d.interim)
	}
	text := strings.Join(parts, " ")
	return text, text != ""
}

// Close tears down an open stream. Safe to call more than once.
func (d *decoder) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	if d.conn != nil {
		_ = d.conn.CloseNow()
		d.release()
	}
	return nil
}

// release stops the read loop and forgets the connection.
func (d *decoder) release() {
	d.stopRead()
	<-d.readDone
	_ = d.conn.CloseNow()
	d.conn = nil
	d.stopRead = nil
}

func (d *decoder) streamErr() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readErr
}

// readLoop receives JSON messages until the connection closes and folds
// them into the hypothesis.
func (d *decoder) readLoop(ctx context.Context, conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure && ctx.Err() == nil {
				d.mu.Lock()
				d.readErr = fmt.Errorf("deepgram: stream: %w", err)
				d.mu.Unlock()
			}
			return
		}

		r, ok := parseDeepgramResponse(msg)
		if !ok {
			continue
		}
		d.mu.Lock()
		if r.IsFinal {
			if r.Text != "" {
				d.committed = append(d.committed, r.Text)
			}
			d.interim = ""
		} else {
			d.interim = r.Text
		}
		d.mu.Unlock()
	}
}

// deepgramResponse is the JSON structure returned by Deepgram for a Results event.
type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// result is one parsed Results message.
type result struct {
	Text       string
	IsFinal    bool
	Confidence float64
}

// parseDeepgramResponse parses a raw Deepgram WebSocket message.
// Returns (result, true) on success, or (zero, false) if the message should be ignored.
func parseDeepgramResponse(data []byte) (result, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return result{}, false
	}
	if resp.Type != "Results" {
		return result{}, false
	}
	if len(resp.Channel.Alternatives) == 0 {
		return result{}, false
	}

	alt := resp.Channel.Alternatives[0]
	return result{
		Text:       strings.TrimSpace(alt.Transcript),
		IsFinal:    resp.IsFinal,
		Confidence: alt.Confidence,
	}, true
}
