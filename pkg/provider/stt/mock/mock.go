// Package mock provides test doubles for the stt package interfaces.
//
// Use Provider to verify that the caller creates decoders with the expected
// DecoderConfig. Use Decoder to script hypotheses and inspect the exact
// sequence of calls and audio it received.
//
// Example:
//
//	dec := &mock.Decoder{Partials: []string{"", "hel", "hello"}, Final: "hello"}
//	p := &mock.Provider{Decoder: dec}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/livesegment/pkg/provider/stt"
)

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Decoder is returned by NewDecoder. If nil, a new empty Decoder is
	// returned.
	Decoder stt.Decoder

	// NewDecoderErr, if non-nil, is returned as the error from NewDecoder.
	NewDecoderErr error

	// Configs records the DecoderConfig of every NewDecoder call.
	Configs []stt.DecoderConfig
}

// NewDecoder records cfg and returns Decoder, NewDecoderErr.
func (p *Provider) NewDecoder(_ context.Context, cfg stt.DecoderConfig) (stt.Decoder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Configs = append(p.Configs, cfg)
	if p.NewDecoderErr != nil {
		return nil, p.NewDecoderErr
	}
	if p.Decoder != nil {
		return p.Decoder, nil
	}
	return &Decoder{}, nil
}

var _ stt.Provider = (*Provider)(nil)

// ProcessCall records a single invocation of Decoder.Process.
type ProcessCall struct {
	// Samples is a copy of the samples passed to Process.
	Samples []int16
	// Final is the final flag passed to Process.
	Final bool
	// Utterance is the 1-based index of the utterance the call belongs to.
	Utterance int
}

// Decoder is a mock implementation of stt.Decoder.
//
// Every call appends its name ("start", "process", "end", "hyp", "close") to
// Calls, which makes ordering assertions straightforward.
type Decoder struct {
	mu sync.Mutex

	// Partials holds the hypothesis to expose after each successive Process
	// call, counted across utterances. Once exhausted the hypothesis is
	// unchanged by Process.
	Partials []string

	// Final is the hypothesis exposed after every EndUtterance.
	Final string

	// StartErr, ProcessErr, EndErr and CloseErr, if non-nil, are returned
	// by the corresponding method.
	StartErr   error
	ProcessErr error
	EndErr     error
	CloseErr   error

	// --- Call records ---

	Calls          []string
	ProcessCalls   []ProcessCall
	StartCount     int
	EndCount       int
	CloseCallCount int

	// Contexts records the context of every Start, Process and End call.
	Contexts []context.Context

	hyp  string
	open bool
}

// StartUtterance records the call, clears the hypothesis and returns
// StartErr.
func (d *Decoder) StartUtterance(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls = append(d.Calls, "start")
	d.Contexts = append(d.Contexts, ctx)
	if d.StartErr != nil {
		return d.StartErr
	}
	d.StartCount++
	d.open = true
	d.hyp = ""
	return nil
}

// Process records a copy of samples and advances the partial script.
func (d *Decoder) Process(ctx context.Context, samples []int16, final bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls = append(d.Calls, "process")
	d.Contexts = append(d.Contexts, ctx)
	if d.ProcessErr != nil {
		return d.ProcessErr
	}
	d.ProcessCalls = append(d.ProcessCalls, ProcessCall{
		Samples:   append([]int16(nil), samples...),
		Final:     final,
		Utterance: d.StartCount,
	})
	if i := len(d.ProcessCalls) - 1; i < len(d.Partials) {
		d.hyp = d.Partials[i]
	}
	return nil
}

// EndUtterance records the call and exposes Final as the hypothesis.
func (d *Decoder) EndUtterance(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls = append(d.Calls, "end")
	d.Contexts = append(d.Contexts, ctx)
	d.EndCount++
	d.open = false
	if d.EndErr != nil {
		return d.EndErr
	}
	d.hyp = d.Final
	return nil
}

// Hypothesis records the call and returns the current scripted text.
func (d *Decoder) Hypothesis() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls = append(d.Calls, "hyp")
	return d.hyp, d.hyp != ""
}

// Close records the call and returns CloseErr.
func (d *Decoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls = append(d.Calls, "close")
	d.CloseCallCount++
	return d.CloseErr
}

// InUtterance reports whether StartUtterance succeeded without a matching
// EndUtterance.
func (d *Decoder) InUtterance() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

// CallsSnapshot returns a copy of Calls. Thread-safe.
func (d *Decoder) CallsSnapshot() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.Calls...)
}

var _ stt.Decoder = (*Decoder)(nil)
