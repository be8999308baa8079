package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrIO marks a read failure that is not a clean end of stream. Callers treat
// it as fatal.
var ErrIO = errors.New("audio: read failure")

// Source is a blocking supplier of fixed-size frames.
//
// NextFrame blocks until a full frame is available. It returns [io.EOF] once
// the underlying stream is exhausted and an error wrapping [ErrIO] on any
// other failure. The returned frame is valid until the next call.
//
// A Source is used by a single goroutine. Close releases the underlying
// stream and is safe to call more than once.
type Source interface {
	NextFrame(ctx context.Context) (Frame, error)
	Close() error
}

// ShortReadPolicy decides what happens to a final frame that ends before
// frame-size samples were read.
type ShortReadPolicy int

const (
	// ShortReadZeroPad pads the final partial frame with silence and returns
	// it once before reporting end of stream.
	ShortReadZeroPad ShortReadPolicy = iota

	// ShortReadDiscard drops the final partial frame and reports end of
	// stream immediately.
	ShortReadDiscard
)

// String returns the configuration name of the policy.
func (p ShortReadPolicy) String() string {
	switch p {
	case ShortReadZeroPad:
		return "zero_pad"
	case ShortReadDiscard:
		return "discard"
	default:
		return fmt.Sprintf("ShortReadPolicy(%d)", int(p))
	}
}

// ReaderOption configures a [ReaderSource].
type ReaderOption func(*ReaderSource)

// WithShortReadPolicy sets the policy for a short final frame. Default:
// [ShortReadZeroPad].
func WithShortReadPolicy(p ShortReadPolicy) ReaderOption {
	return func(s *ReaderSource) { s.policy = p }
}

// WithCloser attaches a function run once by Close, typically the close of the
// file or pipe behind the reader.
func WithCloser(fn func() error) ReaderOption {
	return func(s *ReaderSource) { s.closer = fn }
}

// ReaderSource cuts a little-endian 16-bit mono PCM byte stream into frames.
// It owns a single frame buffer that is reused across calls.
type ReaderSource struct {
	r         io.Reader
	frameSize int
	policy    ShortReadPolicy
	closer    func() error

	raw    []byte
	frame  []int16
	offset int64
	done   bool
	closed bool
}

var _ Source = (*ReaderSource)(nil)

// NewReaderSource returns a ReaderSource producing frames of frameSize
// samples from r.
func NewReaderSource(r io.Reader, frameSize int, opts ...ReaderOption) (*ReaderSource, error) {
	if r == nil {
		return nil, errors.New("audio: reader must not be nil")
	}
	if frameSize <= 0 {
		return nil, fmt.Errorf("audio: frame size must be positive, got %d", frameSize)
	}
	s := &ReaderSource{
		r:         r,
		frameSize: frameSize,
		policy:    ShortReadZeroPad,
		raw:       make([]byte, frameSize*BytesPerSample),
		frame:     make([]int16, frameSize),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// FrameSize returns the number of samples in every frame.
func (s *ReaderSource) FrameSize() int { return s.frameSize }

// NextFrame reads the next frame. The context is not consulted while the read
// is blocked; cancellation is the caller's concern between frames.
func (s *ReaderSource) NextFrame(_ context.Context) (Frame, error) {
	if s.done || s.closed {
		return Frame{}, io.EOF
	}

	n, err := io.ReadFull(s.r, s.raw)
	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		s.done = true
		return Frame{}, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		s.done = true
		if s.policy == ShortReadDiscard {
			return Frame{}, io.EOF
		}
		whole := n / BytesPerSample
		if whole == 0 {
			return Frame{}, io.EOF
		}
		clear(s.raw[whole*BytesPerSample:])
		f := s.emit()
		f.Padded = s.frameSize - whole
		return f, nil
	default:
		return Frame{}, fmt.Errorf("%w: read %d samples: %w", ErrIO, s.frameSize, err)
	}
	return s.emit(), nil
}

func (s *ReaderSource) emit() Frame {
	s.frame = DecodePCM16(s.frame, s.raw)
	f := Frame{Samples: s.frame, Offset: s.offset}
	s.offset += int64(s.frameSize)
	return f
}

// Close runs the attached closer, if any. Subsequent NextFrame calls report
// end of stream.
func (s *ReaderSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.closer != nil {
		return s.closer()
	}
	return nil
}
