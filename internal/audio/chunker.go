package audio

import (
	"bytes"
	"fmt"
	"time"
)

// Chunker slices a continuous PCM16 stream into fixed-duration chunks
type Chunker struct {
	format      Format
	slice       time.Duration
	buffer      *bytes.Buffer
	chunkSizeBy int
}

// NewChunker creates a new chunker producing chunks of length slice
func NewChunker(format Format, slice time.Duration) *Chunker {
	size := format.BytesFor(slice)
	if size < format.FrameBytes() {
		// Never produce empty chunks, even for tiny slices
		size = format.FrameBytes()
	}

	return &Chunker{
		format:      format,
		slice:       slice,
		buffer:      bytes.NewBuffer(nil),
		chunkSizeBy: size,
	}
}

// ChunkSize returns the size of a full chunk in bytes
func (c *Chunker) ChunkSize() int {
	return c.chunkSizeBy
}

// Slice returns the chunk duration
func (c *Chunker) Slice() time.Duration {
	return c.slice
}

// Write buffers data and returns every complete chunk now available
func (c *Chunker) Write(data []byte) ([][]byte, error) {
	if _, err := c.buffer.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}

	var chunks [][]byte
	for c.buffer.Len() >= c.chunkSizeBy {
		chunk := make([]byte, c.chunkSizeBy)
		if _, err := c.buffer.Read(chunk); err != nil {
			return nil, fmt.Errorf("failed to read from buffer: %w", err)
		}
		chunks = append(chunks, chunk)
	}

	return chunks, nil
}

// Pending returns the number of buffered bytes not yet emitted
func (c *Chunker) Pending() int {
	return c.buffer.Len()
}

// Reset discards any partial chunk
func (c *Chunker) Reset() {
	c.buffer.Reset()
}
