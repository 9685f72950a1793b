package recording

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yegors/vocode-client/internal/audio"
	"github.com/yegors/vocode-client/internal/transport/transporttest"
	"github.com/yegors/vocode-client/internal/wire"
	"github.com/yegors/vocode-client/pkg/logger"
)

type nopHandler struct{}

func (nopHandler) HandleMessage(wire.Message) {}
func (nopHandler) HandleClose(error)          {}

// The ticker never fires during a test; slices are captured by hand
const idleSlice = time.Hour

func newTestRecorder(t *testing.T, withConn bool) (*Recorder, *audio.Mixer, *transporttest.Conn, *audio.BlobStore) {
	t.Helper()
	mixer := audio.NewMixer(16000, logger.NewNop())
	blobs := audio.NewBlobStore()

	var conn *transporttest.Conn
	var r *Recorder
	if withConn {
		conn = transporttest.NewConn("ws://test", nopHandler{})
		r = New(mixer, conn, blobs, logger.NewNop())
	} else {
		r = New(mixer, nil, blobs, logger.NewNop())
	}
	return r, mixer, conn, blobs
}

func TestFinalizeUploadsOnceThenStops(t *testing.T) {
	r, mixer, conn, blobs := newTestRecorder(t, true)
	require.NoError(t, r.Start(idleSlice))
	r.frames = 4
	r.Attach()

	require.NoError(t, mixer.WriteBuffer(audio.InputMic, &audio.Buffer{
		Format:  mixer.Format(),
		Samples: []int16{1, 2, 3, 4, 5, 6, 7, 8},
	}))
	r.captureSlice()
	r.captureSlice()
	assert.Equal(t, 2, r.Len())

	res, err := r.Finalize(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Uploaded)
	assert.Equal(t, 8*time.Second/16000, res.Duration)

	assert.Equal(t, []wire.Type{wire.TypeFinalComboAudio, wire.TypeStop}, conn.SentTypes())
	assert.Equal(t, 1, conn.CloseCalls())

	// The uploaded payload is the locally stored blob
	blob, ok := blobs.Get(res.URL)
	require.True(t, ok)
	assert.Equal(t, ContentType, blob.ContentType)
	final := conn.Sent()[0].(wire.FinalComboAudioMessage)
	assert.Equal(t, base64.StdEncoding.EncodeToString(blob.Data), final.Data)

	decoded, err := audio.ParseWAV(blob.Data)
	require.NoError(t, err)
	assert.Equal(t, []int16{1, 2, 3, 4, 5, 6, 7, 8}, decoded.Samples)

	// Second finalize is a no-op
	again, err := r.Finalize(context.Background())
	require.NoError(t, err)
	assert.Same(t, res, again)
	assert.Len(t, conn.Sent(), 2)
	assert.Equal(t, 1, conn.CloseCalls())
	assert.Zero(t, r.Len())
}

func TestFinalizeWithoutTransportStillProducesURL(t *testing.T) {
	r, _, _, blobs := newTestRecorder(t, false)
	require.NoError(t, r.Start(idleSlice))

	res, err := r.Finalize(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Uploaded)
	assert.Equal(t, 1, blobs.Len())
	assert.Contains(t, res.URL, audio.BlobScheme)
}

func TestFinalizeWithClosedTransportSkipsUpload(t *testing.T) {
	r, _, conn, blobs := newTestRecorder(t, true)
	require.NoError(t, r.Start(idleSlice))
	conn.ServerClose(nil)

	res, err := r.Finalize(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Uploaded)
	assert.Empty(t, conn.Sent())
	assert.Equal(t, 1, conn.CloseCalls())
	assert.Equal(t, 1, blobs.Len())
}

func TestDetachedRecorderDrainsWithoutBuffering(t *testing.T) {
	r, mixer, _, _ := newTestRecorder(t, true)
	require.NoError(t, r.Start(idleSlice))
	r.frames = 4

	require.NoError(t, mixer.WriteBuffer(audio.InputMic, &audio.Buffer{
		Format:  mixer.Format(),
		Samples: []int16{1, 2, 3, 4},
	}))
	r.captureSlice()

	assert.Zero(t, r.Len())
	assert.Zero(t, mixer.Buffered(audio.InputMic))
}

func TestPausedRecorderDoesNotBuffer(t *testing.T) {
	r, _, _, _ := newTestRecorder(t, true)
	require.NoError(t, r.Start(idleSlice))
	r.Attach()
	require.NoError(t, r.Pause())

	r.captureSlice()
	assert.Zero(t, r.Len())

	require.NoError(t, r.Resume())
	r.captureSlice()
	assert.Equal(t, 1, r.Len())
}

func TestRecorderTransitions(t *testing.T) {
	r, _, _, _ := newTestRecorder(t, false)

	assert.ErrorIs(t, r.Pause(), ErrInvalidTransition)
	assert.Error(t, r.Start(0))
	require.NoError(t, r.Start(idleSlice))
	assert.ErrorIs(t, r.Start(idleSlice), ErrInvalidTransition)

	_, err := r.Finalize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateFinalized, r.State())
	assert.ErrorIs(t, r.Resume(), ErrInvalidTransition)
}

func TestRecorderResumeRequiresPause(t *testing.T) {
	r, _, _, _ := newTestRecorder(t, false)

	assert.ErrorIs(t, r.Resume(), ErrInvalidTransition)
	assert.Equal(t, StateInactive, r.State())

	require.NoError(t, r.Start(idleSlice))
	assert.ErrorIs(t, r.Resume(), ErrInvalidTransition)
	require.NoError(t, r.Pause())
	require.NoError(t, r.Resume())
	assert.Equal(t, StateRecording, r.State())

	_, err := r.Finalize(context.Background())
	require.NoError(t, err)
}

func TestTickerCapturesSlices(t *testing.T) {
	r, _, _, _ := newTestRecorder(t, false)
	r.Attach()
	require.NoError(t, r.Start(5*time.Millisecond))

	require.Eventually(t, func() bool { return r.Len() >= 2 }, time.Second, 5*time.Millisecond)
	_, err := r.Finalize(context.Background())
	require.NoError(t, err)
}
