package capture

import (
	"bufio"
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"

	"github.com/MrWong99/livesegment/pkg/audio"
)

// Stdin is the path that selects standard input in [OpenFile].
const Stdin = "-"

// OpenFile returns a source reading path.
//
// A ".wav" file is decoded and converted to mono at sampleRate. Any other
// path, or [Stdin], is read as raw signed 16-bit little-endian mono PCM that
// must already be at sampleRate.
func OpenFile(path string, sampleRate, frameSize int, opts ...audio.ReaderOption) (*audio.ReaderSource, error) {
	if path == Stdin {
		return audio.NewReaderSource(bufio.NewReader(os.Stdin), frameSize, opts...)
	}
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		return openWAV(path, sampleRate, frameSize, opts...)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	src, err := audio.NewReaderSource(bufio.NewReader(f), frameSize,
		append([]audio.ReaderOption{audio.WithCloser(f.Close)}, opts...)...)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return src, nil
}

// openWAV decodes a whole WAV file into memory and converts it to the target
// format.
func openWAV(path string, sampleRate, frameSize int, opts ...audio.ReaderOption) (*audio.ReaderSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("capture: %s: not a valid PCM WAV file", path)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("capture: decode %s: %w", path, err)
	}
	samples, err := toInt16(buf.Data, int(d.BitDepth))
	if err != nil {
		return nil, fmt.Errorf("capture: %s: %w", path, err)
	}

	from := audio.Format{SampleRate: int(d.SampleRate), Channels: int(d.NumChans)}
	conv := audio.FormatConverter{Target: audio.Format{SampleRate: sampleRate, Channels: 1}}
	mono, err := conv.Convert(samples, from)
	if err != nil {
		return nil, fmt.Errorf("capture: %s: %w", path, err)
	}

	slog.Debug("capture: wav loaded",
		"path", path,
		"rate", from.SampleRate,
		"channels", from.Channels,
		"bit_depth", d.BitDepth,
		"samples", len(mono),
	)
	return audio.NewReaderSource(bytes.NewReader(audio.EncodePCM16(mono)), frameSize, opts...)
}

// toInt16 scales integer PCM of the given bit depth to 16 bits. 8-bit WAV
// data is unsigned.
func toInt16(data []int, bitDepth int) ([]int16, error) {
	out := make([]int16, len(data))
	switch bitDepth {
	case 8:
		for i, v := range data {
			out[i] = int16((v - 128) << 8)
		}
	case 16:
		for i, v := range data {
			out[i] = int16(v)
		}
	case 24:
		for i, v := range data {
			out[i] = int16(v >> 8)
		}
	case 32:
		for i, v := range data {
			out[i] = int16(v >> 16)
		}
	default:
		return nil, fmt.Errorf("unsupported bit depth %d", bitDepth)
	}
	return out, nil
}
