// Package audio defines the frame type and the blocking frame source used by
// the segmentation pipeline, plus the PCM helpers needed to bring arbitrary
// input into the format the endpointer expects.
//
// All audio in this package is signed 16-bit PCM held as []int16. Bytes on the
// wire are little-endian.
package audio

import "time"

// BytesPerSample is the size of one 16-bit PCM sample on the wire.
const BytesPerSample = 2

// Frame is a fixed-length block of mono samples handed from a [Source] to the
// endpointer. Frames produced by a Source share one backing buffer: Samples is
// only valid until the next call to NextFrame.
type Frame struct {
	// Samples holds exactly the frame size requested from the source.
	Samples []int16

	// Offset is the index, in samples since the start of the stream, of
	// Samples[0].
	Offset int64

	// Padded is the number of trailing zero samples added to complete a short
	// final frame. Zero for every regular frame.
	Padded int
}

// Timestamp returns the stream position of the first sample at sampleRate.
func (f Frame) Timestamp(sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(f.Offset) * time.Second / time.Duration(sampleRate)
}

// Format describes the sample rate and channel count of a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// SamplesIn returns the number of per-channel samples covering d.
func (f Format) SamplesIn(d time.Duration) int {
	return int(time.Duration(f.SampleRate) * d / time.Second)
}

// Duration returns the playback length of n per-channel samples.
func (f Format) Duration(n int) time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(f.SampleRate)
}
