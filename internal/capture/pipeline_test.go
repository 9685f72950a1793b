package capture

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yegors/vocode-client/internal/audio"
	"github.com/yegors/vocode-client/internal/audio/audiotest"
	"github.com/yegors/vocode-client/internal/transport/transporttest"
	"github.com/yegors/vocode-client/internal/wire"
	"github.com/yegors/vocode-client/pkg/logger"
)

// 16kHz mono with a 10ms slice => 320 byte chunks
var testFormat = audio.Format{SampleRate: 16000, Channels: 1}

type nopHandler struct{}

func (nopHandler) HandleMessage(wire.Message) {}
func (nopHandler) HandleClose(error)          {}

func newTestPipeline(t *testing.T) (*Pipeline, *audiotest.Stream, *transporttest.Conn, *audio.Mixer) {
	t.Helper()
	stream := audiotest.NewStream(audio.TrackSettings{SampleRate: 16000, Channels: 1})
	conn := transporttest.NewConn("ws://test", nopHandler{})
	mixer := audio.NewMixer(16000, logger.NewNop())
	p := New(stream, testFormat, conn, mixer, logger.NewNop())
	t.Cleanup(func() { _ = p.Stop() })
	return p, stream, conn, mixer
}

func TestChunksAreSentInCaptureOrder(t *testing.T) {
	p, stream, conn, _ := newTestPipeline(t)
	require.NoError(t, p.Start(10*time.Millisecond))
	p.Attach()

	first := make([]byte, 320)
	second := make([]byte, 320)
	for i := range first {
		first[i] = 1
		second[i] = 2
	}
	stream.Push(first)
	stream.Push(second)

	require.Eventually(t, func() bool { return len(conn.Sent()) == 2 }, time.Second, 5*time.Millisecond)

	sent := conn.Sent()
	assert.Equal(t, wire.AudioMessage{Data: base64.StdEncoding.EncodeToString(first)}, sent[0])
	assert.Equal(t, wire.AudioMessage{Data: base64.StdEncoding.EncodeToString(second)}, sent[1])
	assert.Equal(t, 2, p.Stats().Sent)
}

func TestDetachedListenerDoesNotUpload(t *testing.T) {
	p, stream, conn, mixer := newTestPipeline(t)
	require.NoError(t, p.Start(10*time.Millisecond))

	stream.Push(make([]byte, 640))
	require.Eventually(t, func() bool { return p.Stats().Unheard == 2 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, conn.Sent())

	// The mixer still hears the microphone
	assert.Equal(t, 320, mixer.Buffered(audio.InputMic))

	p.Attach()
	p.Detach()
	assert.False(t, p.Listening())
}

func TestChunksDroppedWhenTransportClosed(t *testing.T) {
	p, stream, conn, _ := newTestPipeline(t)
	require.NoError(t, p.Start(10*time.Millisecond))
	p.Attach()

	require.NoError(t, conn.Close())
	stream.Push(make([]byte, 960))

	require.Eventually(t, func() bool { return p.Stats().Dropped == 3 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, conn.Sent())
	assert.Zero(t, p.Stats().Sent)
}

func TestStateTransitions(t *testing.T) {
	p, stream, _, _ := newTestPipeline(t)

	assert.ErrorIs(t, p.Pause(), ErrInvalidTransition)
	assert.ErrorIs(t, p.Resume(), ErrInvalidTransition)

	require.NoError(t, p.Start(10*time.Millisecond))
	assert.Equal(t, StateRecording, p.State())
	assert.ErrorIs(t, p.Start(10*time.Millisecond), ErrInvalidTransition)

	require.NoError(t, p.Pause())
	assert.Equal(t, StatePaused, p.State())
	require.NoError(t, p.Resume())

	require.NoError(t, p.Stop())
	assert.Equal(t, StateStopped, p.State())
	assert.True(t, stream.Closed())
	require.NoError(t, p.Stop(), "stop is idempotent")
	assert.ErrorIs(t, p.Start(10*time.Millisecond), ErrInvalidTransition)
}

func TestResumeRequiresPause(t *testing.T) {
	p, _, _, _ := newTestPipeline(t)

	assert.ErrorIs(t, p.Resume(), ErrInvalidTransition)
	assert.Equal(t, StateInactive, p.State())

	require.NoError(t, p.Start(10*time.Millisecond))
	assert.ErrorIs(t, p.Resume(), ErrInvalidTransition)
	assert.Equal(t, StateRecording, p.State())
	require.NoError(t, p.Stop())
}

func TestPausedPipelineEmitsNothing(t *testing.T) {
	p, stream, conn, _ := newTestPipeline(t)
	require.NoError(t, p.Start(10*time.Millisecond))
	p.Attach()
	require.NoError(t, p.Pause())

	stream.Push(make([]byte, 640))
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, conn.Sent())
	assert.Zero(t, p.Stats().Chunks)
}

func TestTimeSliceFor(t *testing.T) {
	tests := []struct {
		chunkSize, rate int
		want            time.Duration
	}{
		{2048, 16000, 128 * time.Millisecond},
		{2048, 48000, 43 * time.Millisecond},
		{2048, 44100, 46 * time.Millisecond},
		{0, 16000, DefaultTimeSlice},
		{2048, 0, DefaultTimeSlice},
		{1, 48000, time.Millisecond},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, TimeSliceFor(tt.chunkSize, tt.rate), "chunk=%d rate=%d", tt.chunkSize, tt.rate)
	}
}
