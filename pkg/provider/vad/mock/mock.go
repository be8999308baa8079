// Package mock provides test doubles for the vad package interfaces.
//
// Session replays a fixed script of decisions, one per ProcessFrame call,
// and records the frames it was given:
//
//	sess := &mock.Session{Script: []bool{false, true, true}}
//	eng := &mock.Engine{Session: sess}
package mock

import (
	"sync"

	"github.com/MrWong99/livesegment/pkg/provider/vad"
)

// Engine is a mock implementation of vad.Engine.
type Engine struct {
	mu sync.Mutex

	// Session is returned by NewSession. If nil, a new empty Session is
	// returned.
	Session vad.SessionHandle

	// NewSessionErr, if non-nil, is returned as the error from NewSession.
	NewSessionErr error

	// Configs records the Config of every NewSession call in order.
	Configs []vad.Config
}

// NewSession records cfg and returns Session, NewSessionErr.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Configs = append(e.Configs, cfg)
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	if e.Session != nil {
		return e.Session, nil
	}
	return &Session{}, nil
}

var _ vad.Engine = (*Engine)(nil)

// Session is a mock implementation of vad.SessionHandle.
type Session struct {
	mu sync.Mutex

	// Script holds the decision for each successive ProcessFrame call. Once
	// exhausted, every further frame is classified as silence.
	Script []bool

	// ProcessFrameErr, if non-nil, is returned by every ProcessFrame call.
	ProcessFrameErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// Frames holds a copy of every frame passed to ProcessFrame.
	Frames [][]int16

	ResetCallCount int
	CloseCallCount int
}

// ProcessFrame records a copy of frame and returns the next scripted decision.
func (s *Session) ProcessFrame(frame []int16) (vad.VADEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Frames = append(s.Frames, append([]int16(nil), frame...))
	if s.ProcessFrameErr != nil {
		return vad.VADEvent{}, s.ProcessFrameErr
	}
	i := len(s.Frames) - 1
	if i < len(s.Script) && s.Script[i] {
		return vad.VADEvent{Speech: true, Probability: 1}, nil
	}
	return vad.VADEvent{}, nil
}

// Reset increments ResetCallCount.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCallCount++
}

// Close increments CloseCallCount and returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return s.CloseErr
}

var _ vad.SessionHandle = (*Session)(nil)
