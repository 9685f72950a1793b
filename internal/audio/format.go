package audio

import (
	"encoding/binary"
	"time"
)

// BytesPerSample is fixed: every stream handled here is 16-bit PCM
const BytesPerSample = 2

// Format describes a PCM16 stream
type Format struct {
	SampleRate int
	Channels   int
}

// Valid reports whether the format can carry audio
func (f Format) Valid() bool {
	return f.SampleRate > 0 && f.Channels > 0
}

// FrameBytes is the size of one sample across all channels
func (f Format) FrameBytes() int {
	return f.Channels * BytesPerSample
}

// BytesFor returns the number of bytes covering d, aligned to whole frames
func (f Format) BytesFor(d time.Duration) int {
	frames := int(int64(f.SampleRate) * int64(d) / int64(time.Second))
	return frames * f.FrameBytes()
}

// FramesFor returns the number of frames covering d
func (f Format) FramesFor(d time.Duration) int {
	return int(int64(f.SampleRate) * int64(d) / int64(time.Second))
}

// Duration returns how long n bytes of this format play for
func (f Format) Duration(n int) time.Duration {
	if !f.Valid() {
		return 0
	}
	frames := n / f.FrameBytes()
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

// Buffer is decoded, playable audio
type Buffer struct {
	Format  Format
	Samples []int16 // interleaved
}

// Frames returns the number of sample frames in the buffer
func (b *Buffer) Frames() int {
	if b == nil || b.Format.Channels == 0 {
		return 0
	}
	return len(b.Samples) / b.Format.Channels
}

// Duration returns the playback length of the buffer
func (b *Buffer) Duration() time.Duration {
	if b == nil || b.Format.SampleRate == 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.Format.SampleRate)
}

// Bytes returns the buffer as little-endian PCM16
func (b *Buffer) Bytes() []byte {
	return SamplesToBytes(b.Samples)
}

// BytesToSamples converts little-endian PCM16 bytes to samples. A trailing odd byte is ignored.
func BytesToSamples(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/BytesPerSample)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return samples
}

// SamplesToBytes converts samples to little-endian PCM16 bytes
func SamplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
