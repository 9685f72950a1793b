package audio

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrDecode marks inbound audio that could not be turned into a playable buffer
var ErrDecode = errors.New("audio decode failed")

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

// Decoder turns an inbound base64 payload into a playable buffer
type Decoder interface {
	Decode(ctx context.Context, payload string) (*Buffer, error)
}

// PCMDecoder decodes WAV payloads, and headerless payloads as raw PCM16 in Fallback
type PCMDecoder struct {
	Fallback Format
}

// Decode implements Decoder
func (d PCMDecoder) Decode(ctx context.Context, payload string) (*Buffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return DecodeBase64(payload, d.Fallback)
}

// DecodeBase64 base64-decodes payload and then decodes the audio bytes
func DecodeBase64(payload string, fallback Format) (*Buffer, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64: %v", ErrDecode, err)
	}
	return DecodeBytes(raw, fallback)
}

// DecodeBytes decodes a WAV file, or raw PCM16 in the fallback format
func DecodeBytes(raw []byte, fallback Format) (*Buffer, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrDecode)
	}
	if bytes.HasPrefix(raw, []byte("RIFF")) {
		return ParseWAV(raw)
	}
	if !fallback.Valid() {
		return nil, fmt.Errorf("%w: raw pcm without a format", ErrDecode)
	}
	if len(raw)%fallback.FrameBytes() != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of frames", ErrDecode, len(raw))
	}
	return &Buffer{Format: fallback, Samples: BytesToSamples(raw)}, nil
}

// ParseWAV decodes a RIFF/WAVE file holding 16-bit PCM
func ParseWAV(raw []byte) (*Buffer, error) {
	if len(raw) < 12 || string(raw[0:4]) != "RIFF" || string(raw[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%w: not a wav file", ErrDecode)
	}

	var (
		format  Format
		haveFmt bool
	)

	// Walk sub-chunks; streaming writers may overstate sizes so clamp to what is present
	pos := 12
	for pos+8 <= len(raw) {
		id := string(raw[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(raw[pos+4 : pos+8]))
		body := pos + 8
		end := body + size
		if size < 0 || end > len(raw) {
			end = len(raw)
		}

		switch id {
		case "fmt ":
			if end-body < 16 {
				return nil, fmt.Errorf("%w: short fmt chunk", ErrDecode)
			}
			audioFormat := binary.LittleEndian.Uint16(raw[body:])
			if audioFormat != wavFormatPCM && audioFormat != wavFormatExtensible {
				return nil, fmt.Errorf("%w: unsupported wav format %d", ErrDecode, audioFormat)
			}
			if bits := binary.LittleEndian.Uint16(raw[body+14:]); bits != 16 {
				return nil, fmt.Errorf("%w: unsupported bit depth %d", ErrDecode, bits)
			}
			format = Format{
				Channels:   int(binary.LittleEndian.Uint16(raw[body+2:])),
				SampleRate: int(binary.LittleEndian.Uint32(raw[body+4:])),
			}
			if !format.Valid() {
				return nil, fmt.Errorf("%w: invalid wav format", ErrDecode)
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, fmt.Errorf("%w: data before fmt", ErrDecode)
			}
			data := raw[body:end]
			data = data[:len(data)-len(data)%format.FrameBytes()]
			return &Buffer{Format: format, Samples: BytesToSamples(data)}, nil
		}

		// Chunks are word aligned
		pos = end + (end-body)%2
	}

	return nil, fmt.Errorf("%w: no data chunk", ErrDecode)
}
