package audio

import (
	"encoding/binary"
	"io"
)

const wavHeaderSize = 44

// streamingDataSize is used when the final length of a WAV stream is unknown
const streamingDataSize = uint32(0xFFFFFFFF - 36)

// WAVHeader represents a canonical PCM WAV file header
type WAVHeader struct {
	// RIFF chunk descriptor
	ChunkID   [4]byte // "RIFF"
	ChunkSize uint32  // 4 + (8 + SubChunk1Size) + (8 + SubChunk2Size)
	Format    [4]byte // "WAVE"

	// "fmt " sub-chunk
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16  // 1 for mono, 2 for stereo
	SampleRate    uint32  // 8000, 44100, etc.
	ByteRate      uint32  // SampleRate * NumChannels * BitsPerSample/8
	BlockAlign    uint16  // NumChannels * BitsPerSample/8
	BitsPerSample uint16  // 16

	// "data" sub-chunk
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // NumSamples * NumChannels * BitsPerSample/8
}

// newWAVHeader builds the header for dataSize bytes of PCM16 in format f
func newWAVHeader(f Format, dataSize uint32) WAVHeader {
	bitsPerSample := uint16(16)

	return WAVHeader{
		ChunkID:   [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize: 36 + dataSize,
		Format:    [4]byte{'W', 'A', 'V', 'E'},

		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   uint16(f.Channels),
		SampleRate:    uint32(f.SampleRate),
		ByteRate:      uint32(f.SampleRate * f.FrameBytes()),
		BlockAlign:    uint16(f.FrameBytes()),
		BitsPerSample: bitsPerSample,

		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}
}

// Bytes serializes the header
func (h WAVHeader) Bytes() []byte {
	headerBytes := make([]byte, wavHeaderSize)

	// RIFF chunk descriptor
	copy(headerBytes[0:4], h.ChunkID[:])
	binary.LittleEndian.PutUint32(headerBytes[4:8], h.ChunkSize)
	copy(headerBytes[8:12], h.Format[:])

	// "fmt " sub-chunk
	copy(headerBytes[12:16], h.Subchunk1ID[:])
	binary.LittleEndian.PutUint32(headerBytes[16:20], h.Subchunk1Size)
	binary.LittleEndian.PutUint16(headerBytes[20:22], h.AudioFormat)
	binary.LittleEndian.PutUint16(headerBytes[22:24], h.NumChannels)
	binary.LittleEndian.PutUint32(headerBytes[24:28], h.SampleRate)
	binary.LittleEndian.PutUint32(headerBytes[28:32], h.ByteRate)
	binary.LittleEndian.PutUint16(headerBytes[32:34], h.BlockAlign)
	binary.LittleEndian.PutUint16(headerBytes[34:36], h.BitsPerSample)

	// "data" sub-chunk
	copy(headerBytes[36:40], h.Subchunk2ID[:])
	binary.LittleEndian.PutUint32(headerBytes[40:44], h.Subchunk2Size)

	return headerBytes
}

// EncodeWAV wraps PCM16 bytes in a WAV container
func EncodeWAV(pcm []byte, f Format) []byte {
	header := newWAVHeader(f, uint32(len(pcm))).Bytes()
	out := make([]byte, 0, len(header)+len(pcm))
	out = append(out, header...)
	return append(out, pcm...)
}

// WAVReader wraps a PCM reader of unknown length and prepends a streaming WAV header
type WAVReader struct {
	reader     io.ReadCloser
	headerSent bool
	header     []byte
}

// NewWAVReader creates a new WAV reader
func NewWAVReader(reader io.ReadCloser, f Format) *WAVReader {
	return &WAVReader{
		reader: reader,
		header: newWAVHeader(f, streamingDataSize).Bytes(),
	}
}

// Read reads data from the reader, prepending the WAV header on the first read
func (wr *WAVReader) Read(p []byte) (n int, err error) {
	if !wr.headerSent {
		headerLen := len(wr.header)

		if len(p) < headerLen {
			return 0, io.ErrShortBuffer
		}

		copy(p, wr.header)
		wr.headerSent = true

		if len(p) > headerLen {
			m, err := wr.reader.Read(p[headerLen:])
			return headerLen + m, err
		}

		return headerLen, nil
	}

	return wr.reader.Read(p)
}

// Close closes the underlying reader
func (wr *WAVReader) Close() error {
	return wr.reader.Close()
}
