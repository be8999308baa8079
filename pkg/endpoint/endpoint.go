// Package endpoint defines the endpointer contract consumed by the
// segmentation controller and provides a windowed implementation.
//
// An endpointer is fed fixed-size frames one at a time. For each frame it
// either reports no speech (nil) or hands back speech audio. The
// returned audio may lag the input: an endpointer that smooths decisions over
// a window delays its output by that window so that the start of an utterance
// is not clipped. Callers detect segment boundaries by comparing InSpeech
// before and after each Process call.
package endpoint

// Endpointer turns a stream of frames into speech regions.
//
// SegmentStart is only meaningful right after InSpeech turned true and
// SegmentEnd right after it turned false; at any other time both may hold
// stale values. Timestamps are seconds since the start of the stream.
//
// An Endpointer is used by a single goroutine.
type Endpointer interface {
	// FrameSize returns the number of samples Process expects. It is fixed
	// for the lifetime of the endpointer.
	FrameSize() int

	// SampleRate returns the required input sample rate in Hz.
	SampleRate() int

	// Process consumes exactly FrameSize samples. It returns nil when no
	// speech is available, or speech samples that stay valid until the next
	// call. The call that leaves speech may return more than one frame when
	// the endpointer still held buffered audio of the region.
	Process(frame []int16) ([]int16, error)

	// InSpeech reports whether the endpointer is currently inside a speech
	// region.
	InSpeech() bool

	SegmentStart() float64
	SegmentEnd() float64

	// Close releases the endpointer. Calling Close more than once is safe.
	Close() error
}

// Flusher is implemented by endpointers that hold buffered speech audio.
// Flush returns that audio (nil if there is none) and leaves the speech
// region, setting SegmentEnd. The slice is valid until the next call on the
// endpointer.
type Flusher interface {
	Flush() []int16
}
