// Package mock provides a scripted endpoint.Endpointer for tests.
//
// Each Process call consumes one Step, which fixes what the call returns and
// the endpointer state afterwards:
//
//	ep := mock.New(4,
//	    mock.Step{},                                 // silence
//	    mock.Step{Speech: true, InSpeech: true, Start: 0.03},
//	    mock.Step{Speech: true, End: 0.09},          // last speech frame
//	)
package mock

import (
	"errors"
	"sync"

	"github.com/MrWong99/livesegment/pkg/endpoint"
)

// Step scripts one Process call.
type Step struct {
	// Speech makes Process return a speech frame (a copy of its input).
	Speech bool
	// InSpeech is the value InSpeech reports after the call.
	InSpeech bool
	// Start and End, when non-zero, replace SegmentStart and SegmentEnd.
	Start, End float64
	// Err, if non-nil, is returned by Process.
	Err error
}

// Endpointer is a scripted endpoint.Endpointer. Once the script is
// exhausted Process returns no speech and leaves the state unchanged.
type Endpointer struct {
	mu sync.Mutex

	Size  int
	Rate  int
	Steps []Step

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// --- Call records ---

	// Frames holds a copy of every frame passed to Process.
	Frames         [][]int16
	CloseCallCount int

	inSpeech   bool
	start, end float64
	out        []int16
}

// New returns an Endpointer with frame size size, a 16 kHz rate and the
// given script.
func New(size int, steps ...Step) *Endpointer {
	return &Endpointer{Size: size, Rate: 16000, Steps: steps}
}

var _ endpoint.Endpointer = (*Endpointer)(nil)

func (e *Endpointer) FrameSize() int { return e.Size }

func (e *Endpointer) SampleRate() int { return e.Rate }

// Process records frame and applies the next step.
func (e *Endpointer) Process(frame []int16) ([]int16, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(frame) != e.Size {
		return nil, errors.New("mock endpointer: wrong frame size")
	}
	i := len(e.Frames)
	e.Frames = append(e.Frames, append([]int16(nil), frame...))
	if i >= len(e.Steps) {
		return nil, nil
	}
	st := e.Steps[i]
	if st.Err != nil {
		return nil, st.Err
	}
	e.inSpeech = st.InSpeech
	if st.Start != 0 {
		e.start = st.Start
	}
	if st.End != 0 {
		e.end = st.End
	}
	if !st.Speech {
		return nil, nil
	}
	e.out = append(e.out[:0], frame...)
	return e.out, nil
}

func (e *Endpointer) InSpeech() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inSpeech
}

func (e *Endpointer) SegmentStart() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.start
}

func (e *Endpointer) SegmentEnd() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.end
}

// Close increments CloseCallCount and returns CloseErr.
func (e *Endpointer) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.CloseCallCount++
	return e.CloseErr
}

// Flushing is an Endpointer that also implements endpoint.Flusher.
type Flushing struct {
	*Endpointer

	// FlushSamples is returned by Flush while a region is open.
	FlushSamples []int16
	// FlushEnd becomes SegmentEnd after a flush.
	FlushEnd float64

	FlushCallCount int
}

var _ endpoint.Flusher = (*Flushing)(nil)

// Flush leaves speech and returns FlushSamples if a region is open.
func (f *Flushing) Flush() []int16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.FlushCallCount++
	if !f.inSpeech {
		return nil
	}
	f.inSpeech = false
	f.end = f.FlushEnd
	return f.FlushSamples
}
