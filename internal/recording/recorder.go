package recording

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/yegors/vocode-client/internal/audio"
	"github.com/yegors/vocode-client/internal/transport"
	"github.com/yegors/vocode-client/internal/wire"
	"github.com/yegors/vocode-client/pkg/logger"
)

// ContentType of the finalized recording
const ContentType = "audio/wav"

// ErrInvalidTransition is returned when the recorder is driven out of order
var ErrInvalidTransition = errors.New("invalid combo recorder state transition")

// State of the combined recorder
type State int

// Recorder states
const (
	StateInactive State = iota
	StateRecording
	StatePaused
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateRecording:
		return "recording"
	case StatePaused:
		return "paused"
	case StateFinalized:
		return "finalized"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var transitions = map[State][]State{
	StateInactive:  {StateRecording, StateFinalized},
	StateRecording: {StatePaused, StateFinalized},
	StatePaused:    {StateRecording, StateFinalized},
}

// Result describes a finalized recording
type Result struct {
	URL      string // blob: locator in the BlobStore
	Bytes    int
	Duration time.Duration
	Uploaded bool // final_combo_audio and stop were sent
}

// Recorder records the mixed user + agent signal and uploads it once at the end
type Recorder struct {
	mixer  *audio.Mixer
	conn   transport.Conn
	blobs  *audio.BlobStore
	logger *logger.Logger

	mu        sync.Mutex
	state     State
	listening bool
	chunks    [][]byte
	frames    int // frames per slice
	result    *Result
	stopTick  chan struct{}
	tickDone  chan struct{}
}

// New creates a recorder over mixer. conn may be nil when there is no transport.
func New(mixer *audio.Mixer, conn transport.Conn, blobs *audio.BlobStore, logger *logger.Logger) *Recorder {
	return &Recorder{
		mixer:  mixer,
		conn:   conn,
		blobs:  blobs,
		logger: logger.Named("combo-recorder"),
	}
}

// State returns the recorder state
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Start records one slice of mixed audio every timeSlice
func (r *Recorder) Start(timeSlice time.Duration) error {
	if timeSlice <= 0 {
		return fmt.Errorf("invalid time slice %s", timeSlice)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.transition(StateRecording); err != nil {
		return err
	}
	r.frames = r.mixer.Format().FramesFor(timeSlice)
	r.stopTick = make(chan struct{})
	r.tickDone = make(chan struct{})
	go r.tickLoop(timeSlice, r.stopTick, r.tickDone)

	r.logger.Debug("Combined recording started", logger.Duration("time_slice", timeSlice))
	return nil
}

// Pause keeps the recorder alive but stops buffering
func (r *Recorder) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transition(StatePaused)
}

// Resume continues a paused recording
func (r *Recorder) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StatePaused {
		return fmt.Errorf("%w: resume from %s", ErrInvalidTransition, r.state)
	}
	return r.transition(StateRecording)
}

// Attach starts buffering slices
func (r *Recorder) Attach() {
	r.mu.Lock()
	r.listening = true
	r.mu.Unlock()
}

// Detach stops buffering slices; the mixer keeps being drained
func (r *Recorder) Detach() {
	r.mu.Lock()
	r.listening = false
	r.mu.Unlock()
}

// Listening reports whether slices are being buffered
func (r *Recorder) Listening() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listening
}

// Len returns the number of buffered slices
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.chunks)
}

func (r *Recorder) tickLoop(slice time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(slice)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.captureSlice()
		}
	}
}

// captureSlice pulls one slice from the mixer and buffers it if listening
func (r *Recorder) captureSlice() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateRecording && r.state != StatePaused {
		return
	}
	// Drain even when not buffering so stale audio does not pile up
	samples := r.mixer.Read(r.frames)
	if r.state != StateRecording || !r.listening {
		return
	}
	r.chunks = append(r.chunks, audio.SamplesToBytes(samples))
}

// Finalize stops recording, stores the WAV blob and uploads it if the
// transport is still open, then closes the transport. Only the first call
// does any work; later calls return the same result.
func (r *Recorder) Finalize(ctx context.Context) (*Result, error) {
	r.mu.Lock()
	if r.state == StateFinalized {
		res := r.result
		r.mu.Unlock()
		return res, nil
	}
	_ = r.transition(StateFinalized)
	chunks := r.chunks
	r.chunks = nil
	stop, done := r.stopTick, r.tickDone
	r.mu.Unlock()

	if stop != nil {
		close(stop)
		select {
		case <-done:
		case <-ctx.Done():
		}
	}

	pcm := bytes.Join(chunks, nil)
	format := r.mixer.Format()
	wav := audio.EncodeWAV(pcm, format)

	res := &Result{
		URL:      r.blobs.Create(wav, ContentType),
		Bytes:    len(wav),
		Duration: format.Duration(len(pcm)),
	}

	r.mu.Lock()
	r.result = res
	r.mu.Unlock()

	err := r.upload(ctx, wav, res)

	r.logger.Info("Combined recording finalized",
		logger.String("url", res.URL),
		logger.Duration("duration", res.Duration),
		logger.Bool("uploaded", res.Uploaded))

	return res, err
}

func (r *Recorder) upload(ctx context.Context, wav []byte, res *Result) error {
	if r.conn == nil {
		return nil
	}

	var sendErr error
	if transport.IsOpen(r.conn) && ctx.Err() == nil {
		final := wire.FinalComboAudioMessage{Data: base64.StdEncoding.EncodeToString(wav)}
		if err := r.conn.Send(final); err != nil {
			sendErr = fmt.Errorf("failed to send combined recording: %w", err)
		} else if err := r.conn.Send(wire.StopMessage{}); err != nil {
			sendErr = fmt.Errorf("failed to send stop: %w", err)
		} else {
			res.Uploaded = true
		}
	}

	// The transport is closed whether or not the upload went out
	if err := r.conn.Close(); err != nil && !errors.Is(err, transport.ErrClosed) {
		return errors.Join(sendErr, fmt.Errorf("failed to close transport: %w", err))
	}
	return sendErr
}

// transition must be called with r.mu held
func (r *Recorder) transition(to State) error {
	for _, s := range transitions[r.state] {
		if s == to {
			r.state = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.state, to)
}
