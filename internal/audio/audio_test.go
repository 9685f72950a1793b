package audio

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yegors/vocode-client/pkg/logger"
)

func TestEncodeWAVParsesBack(t *testing.T) {
	format := Format{SampleRate: 16000, Channels: 1}
	samples := []int16{0, 1000, -1000, 32767, -32768}

	wav := EncodeWAV(SamplesToBytes(samples), format)
	assert.Len(t, wav, wavHeaderSize+len(samples)*2)

	buf, err := ParseWAV(wav)
	require.NoError(t, err)
	assert.Equal(t, format, buf.Format)
	assert.Equal(t, samples, buf.Samples)
}

func TestParseWAVStreamingHeader(t *testing.T) {
	// Streaming headers claim a huge data chunk; only present bytes are used
	format := Format{SampleRate: 8000, Channels: 2}
	r := NewWAVReader(io.NopCloser(bytes.NewReader(SamplesToBytes([]int16{1, 2, 3, 4, 5}))), format)
	raw, err := io.ReadAll(r)
	require.NoError(t, err)

	buf, err := ParseWAV(raw)
	require.NoError(t, err)
	assert.Equal(t, format, buf.Format)
	assert.Equal(t, []int16{1, 2, 3, 4}, buf.Samples, "trailing partial frame is dropped")
	assert.Equal(t, 2, buf.Frames())
}

func TestDecodeBase64(t *testing.T) {
	fallback := Format{SampleRate: 24000, Channels: 1}
	pcm := SamplesToBytes([]int16{5, -5, 7})

	tests := []struct {
		name    string
		payload string
		want    *Buffer
		wantErr bool
	}{
		{
			name:    "wav payload",
			payload: base64.StdEncoding.EncodeToString(EncodeWAV(pcm, Format{SampleRate: 44100, Channels: 1})),
			want:    &Buffer{Format: Format{SampleRate: 44100, Channels: 1}, Samples: []int16{5, -5, 7}},
		},
		{
			name:    "raw pcm uses fallback",
			payload: base64.StdEncoding.EncodeToString(pcm),
			want:    &Buffer{Format: fallback, Samples: []int16{5, -5, 7}},
		},
		{name: "bad base64", payload: "!!!", wantErr: true},
		{name: "empty", payload: "", wantErr: true},
		{name: "odd raw length", payload: base64.StdEncoding.EncodeToString([]byte{1, 2, 3}), wantErr: true},
		{name: "riff without wave", payload: base64.StdEncoding.EncodeToString([]byte("RIFF\x00\x00\x00\x00JUNK")), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PCMDecoder{Fallback: fallback}.Decode(context.Background(), tt.payload)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrDecode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseWAVRejectsUnsupported(t *testing.T) {
	wav := EncodeWAV(SamplesToBytes([]int16{1}), Format{SampleRate: 8000, Channels: 1})
	wav[34] = 8 // bits per sample

	_, err := ParseWAV(wav)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestBufferDuration(t *testing.T) {
	b := &Buffer{Format: Format{SampleRate: 16000, Channels: 1}, Samples: make([]int16, 1600)}
	assert.Equal(t, 100*time.Millisecond, b.Duration())

	var nilBuf *Buffer
	assert.Zero(t, nilBuf.Duration())
}

func TestChunker(t *testing.T) {
	// 16kHz mono PCM16 => 32 bytes per ms
	c := NewChunker(Format{SampleRate: 16000, Channels: 1}, 10*time.Millisecond)
	assert.Equal(t, 320, c.ChunkSize())

	chunks, err := c.Write(make([]byte, 700))
	require.NoError(t, err)
	assert.Len(t, chunks, 2)
	assert.Equal(t, 60, c.Pending())

	chunks, err = c.Write(make([]byte, 260))
	require.NoError(t, err)
	assert.Len(t, chunks, 1)
	assert.Zero(t, c.Pending())

	_, _ = c.Write(make([]byte, 10))
	c.Reset()
	assert.Zero(t, c.Pending())
}

func TestChunkerOddRate(t *testing.T) {
	// 44.1kHz does not divide evenly into ms; chunks stay frame aligned
	c := NewChunker(Format{SampleRate: 44100, Channels: 2}, 10*time.Millisecond)
	assert.Equal(t, 441*4, c.ChunkSize())
}

func TestResample(t *testing.T) {
	up := Resample([]int16{0, 100, 200, 300}, 8000, 16000)
	assert.Equal(t, []int16{0, 50, 100, 150, 200, 250, 300, 300}, up)

	down := Resample([]int16{0, 10, 20, 30, 40, 50}, 48000, 16000)
	assert.Equal(t, []int16{0, 30}, down)

	same := []int16{1, 2}
	assert.Equal(t, same, Resample(same, 16000, 16000))
}

func TestToMono(t *testing.T) {
	b := &Buffer{Format: Format{SampleRate: 8000, Channels: 2}, Samples: []int16{10, 20, -4, 4}}
	assert.Equal(t, []int16{15, 0}, ToMono(b))
}

func TestMixerSumsAndPads(t *testing.T) {
	m := NewMixer(16000, logger.NewNop())
	mono := Format{SampleRate: 16000, Channels: 1}

	require.NoError(t, m.WritePCM(InputMic, SamplesToBytes([]int16{100, 200, 300}), mono))
	require.NoError(t, m.WriteBuffer(InputAgent, &Buffer{Format: mono, Samples: []int16{1000, 32700}}))

	out := m.Read(4)
	assert.Equal(t, int16(1100), out[0])
	assert.Equal(t, int16(32767), out[1], "saturates")
	assert.Equal(t, int16(300), out[2])
	assert.Equal(t, int16(0), out[3], "silence pad")

	assert.Zero(t, m.Buffered(InputMic))
	assert.Zero(t, m.Buffered(InputAgent))
}

func TestMixerResamplesAgentInput(t *testing.T) {
	m := NewMixer(16000, logger.NewNop())
	require.NoError(t, m.WriteBuffer(InputAgent, &Buffer{Format: Format{SampleRate: 8000, Channels: 1}, Samples: make([]int16, 80)}))
	assert.Equal(t, 160, m.Buffered(InputAgent))
}

func TestMixerBoundsBacklog(t *testing.T) {
	m := NewMixer(1000, logger.NewNop())
	mono := Format{SampleRate: 1000, Channels: 1}

	// 10s backlog at 1kHz is 10000 samples
	require.NoError(t, m.WriteBuffer(InputMic, &Buffer{Format: mono, Samples: make([]int16, 12000)}))
	assert.Equal(t, 10000, m.Buffered(InputMic))
	assert.Equal(t, 2000, m.Dropped())
}

func TestMixerDisconnectAndClose(t *testing.T) {
	m := NewMixer(16000, logger.NewNop())
	mono := Format{SampleRate: 16000, Channels: 1}
	require.NoError(t, m.WritePCM(InputMic, SamplesToBytes([]int16{1}), mono))

	m.Disconnect(InputMic)
	assert.Zero(t, m.Buffered(InputMic))

	require.NoError(t, m.Close())
	assert.ErrorIs(t, m.WritePCM(InputMic, SamplesToBytes([]int16{1}), mono), io.ErrClosedPipe)
}

func TestBlobStore(t *testing.T) {
	s := NewBlobStore()
	url := s.Create([]byte("wav"), "audio/wav")
	assert.Contains(t, url, BlobScheme)

	blob, ok := s.Get(url)
	require.True(t, ok)
	assert.Equal(t, []byte("wav"), blob.Data)
	assert.Equal(t, "audio/wav", blob.ContentType)

	_, ok = s.Get(BlobID(url))
	assert.True(t, ok, "bare id resolves")

	s.Revoke(url)
	s.Revoke(url)
	_, ok = s.Get(url)
	assert.False(t, ok)
	assert.Zero(t, s.Len())
}

func TestRuntimeSupported(t *testing.T) {
	assert.NoError(t, Runtime{Name: RuntimeChrome}.Supported())
	assert.NoError(t, Runtime{Name: RuntimeNative}.Supported())
	assert.ErrorIs(t, Runtime{Name: "firefox"}.Supported(), ErrUnsupportedRuntime)
	assert.True(t, Runtime{Name: RuntimeSafari}.IsSafari())
}
