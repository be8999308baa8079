package endpoint

import (
	"errors"
	"fmt"
	"math"

	"github.com/MrWong99/livesegment/pkg/provider/vad"
)

// Defaults match a 16 kHz stream cut into 30 ms frames, smoothed over a
// 300 ms window where 90% of the frames must agree.
const (
	DefaultSampleRate  = 16000
	DefaultFrameLength = 0.03
	DefaultWindow      = 0.3
	DefaultRatio       = 0.9
)

// Config configures a [Windowed] endpointer. Zero fields take the defaults.
type Config struct {
	// SampleRate is the input sample rate in Hz.
	SampleRate int

	// FrameLength is the duration of one frame in seconds.
	FrameLength float64

	// Window is the duration in seconds over which per-frame decisions are
	// smoothed. It is also the output delay.
	Window float64

	// Ratio is the fraction of speech frames in the window that must be
	// exceeded to enter speech. Speech ends once the fraction drops below
	// 1-Ratio. It must lie in (0, 1).
	Ratio float64

	// Mode is passed through to the frame classifier.
	Mode vad.Mode
}

func (c Config) withDefaults() Config {
	if c.SampleRate == 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.FrameLength == 0 {
		c.FrameLength = DefaultFrameLength
	}
	if c.Window == 0 {
		c.Window = DefaultWindow
	}
	if c.Ratio == 0 {
		c.Ratio = DefaultRatio
	}
	return c
}

// slot is one queued frame.
type slot struct {
	samples []int16
	speech  bool
	index   int64
}

// Windowed is an [Endpointer] that smooths per-frame classifier decisions
// over a sliding window of frames.
//
// Outside speech, frames are queued until the window is full. Once more than
// Ratio of the queued frames are speech, the region starts at the oldest
// queued frame. From then on every Process call returns the oldest queued
// frame, so the whole look-behind window reaches the decoder. The region ends
// when fewer than 1-Ratio of the queued frames are speech; that call returns
// every queued frame, ending with the newest one whose timestamp is
// SegmentEnd, and empties the window.
type Windowed struct {
	cls         vad.SessionHandle
	sampleRate  int
	frameSize   int
	frameLength float64
	ratio       float64

	ring    []slot
	head    int
	count   int
	nSpeech int
	next    int64 // index of the next frame to be pushed

	inSpeech bool
	start    float64
	end      float64

	out    []int16
	tail   []int16
	closed bool
}

var (
	_ Endpointer = (*Windowed)(nil)
	_ Flusher    = (*Windowed)(nil)
)

// NewWindowed creates a Windowed endpointer whose frame classifier is a new
// session of engine.
func NewWindowed(engine vad.Engine, cfg Config) (*Windowed, error) {
	if engine == nil {
		return nil, errors.New("endpoint: vad engine must not be nil")
	}
	cfg = cfg.withDefaults()
	if cfg.SampleRate <= 0 || cfg.FrameLength <= 0 || cfg.Window <= 0 {
		return nil, fmt.Errorf("endpoint: sample rate, frame length and window must be positive")
	}
	if cfg.Ratio <= 0 || cfg.Ratio >= 1 {
		return nil, fmt.Errorf("endpoint: ratio %.2f is out of range (0, 1)", cfg.Ratio)
	}

	frameSize := int(math.Round(float64(cfg.SampleRate) * cfg.FrameLength))
	if frameSize <= 0 {
		return nil, fmt.Errorf("endpoint: frame length %.4fs is shorter than one sample", cfg.FrameLength)
	}
	maxlen := int(math.Round(cfg.Window / cfg.FrameLength))
	if maxlen < 1 {
		maxlen = 1
	}

	cls, err := engine.NewSession(vad.Config{
		SampleRate: cfg.SampleRate,
		FrameSize:  frameSize,
		Mode:       cfg.Mode,
	})
	if err != nil {
		return nil, fmt.Errorf("endpoint: create vad session: %w", err)
	}

	w := &Windowed{
		cls:         cls,
		sampleRate:  cfg.SampleRate,
		frameSize:   frameSize,
		frameLength: float64(frameSize) / float64(cfg.SampleRate),
		ratio:       cfg.Ratio,
		ring:        make([]slot, maxlen),
		out:         make([]int16, frameSize),
	}
	for i := range w.ring {
		w.ring[i].samples = make([]int16, frameSize)
	}
	return w, nil
}

// FrameSize returns the number of samples per frame.
func (w *Windowed) FrameSize() int { return w.frameSize }

// SampleRate returns the input sample rate.
func (w *Windowed) SampleRate() int { return w.sampleRate }

// WindowFrames returns the number of frames in the smoothing window.
func (w *Windowed) WindowFrames() int { return len(w.ring) }

// InSpeech reports whether a speech region is open.
func (w *Windowed) InSpeech() bool { return w.inSpeech }

// SegmentStart returns the start of the current or last speech region.
func (w *Windowed) SegmentStart() float64 { return w.start }

// SegmentEnd returns the end of the last speech region.
func (w *Windowed) SegmentEnd() float64 { return w.end }

// Process classifies frame, updates the window and returns speech audio when
// a region is open.
func (w *Windowed) Process(frame []int16) ([]int16, error) {
	if w.closed {
		return nil, errors.New("endpoint: endpointer is closed")
	}
	if len(frame) != w.frameSize {
		return nil, fmt.Errorf("endpoint: frame has %d samples, want %d", len(frame), w.frameSize)
	}
	ev, err := w.cls.ProcessFrame(frame)
	if err != nil {
		return nil, fmt.Errorf("endpoint: classify frame: %w", err)
	}

	maxlen := len(w.ring)
	if !w.inSpeech && w.count == maxlen {
		w.pop(nil)
	}
	w.push(frame, ev.Speech)

	if !w.inSpeech {
		if w.count == maxlen && float64(w.nSpeech) > w.ratio*float64(maxlen) {
			w.inSpeech = true
			w.start = w.timestamp(w.ring[w.head].index)
		}
	} else if float64(w.nSpeech) < (1-w.ratio)*float64(maxlen) {
		w.inSpeech = false
		w.end = w.timestamp(w.next - 1)
		return w.drain(), nil
	}

	if w.inSpeech {
		w.pop(w.out)
		return w.out, nil
	}
	return nil, nil
}

// Flush returns every queued frame of an open region and closes it. It
// returns nil when no region is open.
func (w *Windowed) Flush() []int16 {
	if !w.inSpeech {
		return nil
	}
	w.inSpeech = false
	w.end = w.timestamp(w.next)
	return w.drain()
}

// drain empties the window and returns the queued samples, oldest first.
func (w *Windowed) drain() []int16 {
	w.tail = w.tail[:0]
	for w.count > 0 {
		w.tail = append(w.tail, w.ring[w.head].samples...)
		w.pop(nil)
	}
	return w.tail
}

// Reset drops all queued frames and classifier state.
func (w *Windowed) Reset() {
	w.head, w.count, w.nSpeech = 0, 0, 0
	w.inSpeech = false
	w.cls.Reset()
}

// Close releases the classifier session.
func (w *Windowed) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.cls.Close()
}

func (w *Windowed) timestamp(index int64) float64 {
	return float64(index) * w.frameLength
}

func (w *Windowed) push(frame []int16, speech bool) {
	i := (w.head + w.count) % len(w.ring)
	copy(w.ring[i].samples, frame)
	w.ring[i].speech = speech
	w.ring[i].index = w.next
	w.next++
	w.count++
	if speech {
		w.nSpeech++
	}
}

// pop removes the oldest queued frame, copying its samples into dst when dst
// is non-nil.
func (w *Windowed) pop(dst []int16) {
	s := &w.ring[w.head]
	if dst != nil {
		copy(dst, s.samples)
	}
	if s.speech {
		w.nSpeech--
	}
	w.head = (w.head + 1) % len(w.ring)
	w.count--
}
