package audio

import "encoding/binary"

// wavHeaderSize is the size of a canonical 44-byte PCM WAV header.
const wavHeaderSize = 44

// EncodeWAV wraps 16-bit samples in an in-memory RIFF/WAV container,
// suitable for multipart uploads to transcription APIs.
func EncodeWAV(samples []int16, f Format) []byte {
	channels := max(f.Channels, 1)
	dataSize := len(samples) * BytesPerSample
	byteRate := f.SampleRate * channels * BytesPerSample
	blockAlign := channels * BytesPerSample

	buf := make([]byte, wavHeaderSize+dataSize)

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize)) // file size - 8
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)                   // sub-chunk size (PCM)
	binary.LittleEndian.PutUint16(buf[20:22], 1)                    // audio format: PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))     // num channels
	binary.LittleEndian.PutUint32(buf[24:28], uint32(f.SampleRate)) // sample rate
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))     // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))   // block align
	binary.LittleEndian.PutUint16(buf[34:36], 16)                   // bits per sample

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[wavHeaderSize+i*2:], uint16(s))
	}
	return buf
}
