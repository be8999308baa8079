// Package energy implements vad.Engine with an RMS energy classifier.
//
// A frame is speech when its RMS energy clears both a fixed floor and a
// multiple of the running noise estimate. The noise estimate is an
// exponential moving average over frames classified as silence, so the
// classifier adapts to a steady background hum without a calibration step.
// Both the floor and the multiple grow with the configured vad.Mode.
package energy

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/MrWong99/livesegment/pkg/provider/vad"
)

// noiseAlpha is the smoothing factor of the noise floor moving average.
const noiseAlpha = 0.05

type modeParams struct {
	// floor is the minimum RMS (16-bit PCM units, max 32767) for speech.
	floor float64
	// snr is the required ratio of frame RMS to the noise estimate.
	snr float64
}

var params = map[vad.Mode]modeParams{
	vad.ModeLoose:      {floor: 300, snr: 2.0},
	vad.ModeMedium:     {floor: 500, snr: 2.5},
	vad.ModeStrict:     {floor: 900, snr: 3.0},
	vad.ModeVeryStrict: {floor: 1500, snr: 4.0},
}

// Engine creates energy classifier sessions. The zero value is ready to use.
type Engine struct{}

var _ vad.Engine = (*Engine)(nil)

// New returns an Engine.
func New() *Engine { return &Engine{} }

// NewSession validates cfg and returns a fresh session.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	mode := cfg.Mode
	if mode == "" {
		mode = vad.ModeLoose
	}
	return &session{frameSize: cfg.FrameSize, params: params[mode]}, nil
}

var errClosed = errors.New("energy vad: session is closed")

type session struct {
	mu        sync.Mutex
	frameSize int
	params    modeParams

	noise  float64
	primed bool
	closed bool
}

// ProcessFrame classifies frame by its RMS energy.
func (s *session) ProcessFrame(frame []int16) (vad.VADEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return vad.VADEvent{}, errClosed
	}
	if len(frame) != s.frameSize {
		return vad.VADEvent{}, fmt.Errorf("energy vad: frame has %d samples, want %d", len(frame), s.frameSize)
	}

	level := RMS(frame)
	threshold := s.threshold()
	speech := level >= threshold

	if !speech {
		if !s.primed {
			s.noise = level
			s.primed = true
		} else {
			s.noise += noiseAlpha * (level - s.noise)
		}
	}

	var p float64
	if level > 0 {
		p = level / (level + threshold)
	}
	return vad.VADEvent{Speech: speech, Probability: p}, nil
}

func (s *session) threshold() float64 {
	return math.Max(s.params.floor, s.noise*s.params.snr)
}

// Reset forgets the noise estimate.
func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.noise = 0
	s.primed = false
}

// Close marks the session closed. Safe to call more than once.
func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// RMS returns the root-mean-square of samples in PCM units. Returns 0 for an
// empty slice.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}
