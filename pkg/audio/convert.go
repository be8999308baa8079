package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
)

// DecodePCM16 decodes little-endian 16-bit PCM into dst, growing it as
// needed, and returns the filled slice. A trailing odd byte is ignored.
func DecodePCM16(dst []int16, pcm []byte) []int16 {
	n := len(pcm) / BytesPerSample
	if cap(dst) < n {
		dst = make([]int16, n)
	}
	dst = dst[:n]
	for i := range n {
		dst[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return dst
}

// EncodePCM16 encodes samples as little-endian 16-bit PCM.
func EncodePCM16(samples []int16) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// ToFloat32 converts samples to float32 normalised to [-1.0, 1.0).
func ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}

// FormatConverter brings interleaved samples of an arbitrary format to Target.
// It logs once on the first conversion so that a misconfigured input is
// visible without flooding the log. Not safe for concurrent use.
type FormatConverter struct {
	Target Format

	warnedMismatch sync.Once
}

// Convert returns samples in the target format. When from already matches the
// target the input slice is returned unchanged. Channels are reduced first,
// then the result is resampled.
func (c *FormatConverter) Convert(samples []int16, from Format) ([]int16, error) {
	if from.SampleRate <= 0 || from.Channels <= 0 {
		return nil, fmt.Errorf("audio: invalid source format %s", formatString(from))
	}
	if c.Target.Channels != 1 {
		return nil, fmt.Errorf("audio: unsupported target format %s: only mono output is supported", formatString(c.Target))
	}
	if from == c.Target {
		return samples, nil
	}

	c.warnedMismatch.Do(func() {
		slog.Info("audio format mismatch: converting",
			"from", formatString(from),
			"to", formatString(c.Target),
		)
	})

	out := samples
	if from.Channels > 1 {
		out = DownmixToMono(out, from.Channels)
	}
	if from.SampleRate != c.Target.SampleRate {
		out = ResampleMono(out, from.SampleRate, c.Target.SampleRate)
	}
	return out, nil
}

// DownmixToMono averages each interleaved group of channels into one sample.
// Uses int32 arithmetic so the sum cannot overflow. Trailing samples that do
// not form a complete group are dropped.
func DownmixToMono(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]int16, frames)
	for i := range frames {
		var sum int32
		for ch := range channels {
			sum += int32(samples[i*channels+ch])
		}
		out[i] = int16(sum / int32(channels))
	}
	return out
}

// ResampleMono resamples mono samples from srcRate to dstRate using linear
// interpolation. The input is returned unchanged when the rates match or are
// invalid.
func ResampleMono(samples []int16, srcRate, dstRate int) []int16 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) == 0 {
		return samples
	}
	n := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if n == 0 {
		return nil
	}

	out := make([]int16, n)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range n {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)

		s0 := samples[idx]
		s1 := s0
		if idx+1 < len(samples) {
			s1 = samples[idx+1]
		}
		out[i] = int16(float64(s0)*(1-frac) + float64(s1)*frac)
	}
	return out
}

func formatString(f Format) string {
	return fmt.Sprintf("%dHz/%dch", f.SampleRate, f.Channels)
}
