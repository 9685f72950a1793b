package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/yegors/vocode-client/internal/audio"
	"github.com/yegors/vocode-client/internal/capture"
	"github.com/yegors/vocode-client/internal/config"
	"github.com/yegors/vocode-client/internal/playback"
	"github.com/yegors/vocode-client/internal/recording"
	"github.com/yegors/vocode-client/internal/transport"
	"github.com/yegors/vocode-client/internal/wire"
	"github.com/yegors/vocode-client/pkg/logger"
)

var (
	// ErrAlreadyStarted is returned by Start while a session is running
	ErrAlreadyStarted = errors.New("session already started")
	// ErrMicrophoneDenied is the permission error surfaced to callers
	ErrMicrophoneDenied = errors.New("microphone access denied")
	// ErrStopped is returned by Start when Stop won the race
	ErrStopped = errors.New("session stopped during start")
	// ErrClosed is returned after Close
	ErrClosed = errors.New("session closed")
)

const (
	defaultConnectTimeout = 10 * time.Second
	finalizeTimeout       = 5 * time.Second
	subscriberBuffer      = 16
)

// Options wires a session to its collaborators
type Options struct {
	Conversation   config.Conversation
	AudioDevice    config.AudioDeviceConfig
	Devices        audio.Devices
	Dialer         transport.Dialer
	ConnectTimeout time.Duration
	// Decoder defaults to PCM/WAV decoding at the output format
	Decoder audio.Decoder
	// Blobs defaults to a private store
	Blobs *audio.BlobStore
}

// resources belong to one Start and are torn down together
type resources struct {
	epoch   uint64
	mixer   *audio.Mixer
	queue   *playback.Queue
	conn    transport.Conn
	stream  audio.Stream
	capture *capture.Pipeline
	combo   *recording.Recorder
}

// Session drives one conversation at a time against the remote agent
type Session struct {
	opts   Options
	blobs  *audio.BlobStore
	logger *logger.Logger

	mu     sync.Mutex
	state  State
	res    *resources
	subs   map[int]chan State
	nextID int
	closed bool
}

// New creates an idle session
func New(opts Options, logger *logger.Logger) (*Session, error) {
	if opts.Conversation == nil {
		return nil, errors.New("conversation config is required")
	}
	if opts.Dialer == nil {
		return nil, errors.New("transport dialer is required")
	}
	if opts.Devices.Microphone == nil || opts.Devices.Speaker == nil {
		return nil, errors.New("microphone and speaker are required")
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	if opts.Devices.Runtime.DefaultSampleRate <= 0 {
		opts.Devices.Runtime.DefaultSampleRate = config.DefaultSampleRate
	}

	blobs := opts.Blobs
	if blobs == nil {
		blobs = audio.NewBlobStore()
	}

	return &Session{
		opts:   opts,
		blobs:  blobs,
		logger: logger.Named("session"),
		state:  initialState(),
		subs:   make(map[int]chan State),
	}, nil
}

// Blobs returns the store holding finalized recordings
func (s *Session) Blobs() *audio.BlobStore {
	return s.blobs
}

// Snapshot returns a copy of the caller-visible state
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Subscribe returns a channel of state snapshots and a cancel function.
// Slow subscribers miss updates rather than block the session.
func (s *Session) Subscribe() (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan State, subscriberBuffer)
	s.subs[id] = ch

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

// Start opens the transport, acquires the microphone, negotiates formats and
// starts streaming. It returns once the start message has been sent; the
// status becomes connected when the server is ready.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.state.Running() {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	if s.state.RecordingURL != "" {
		s.blobs.Revoke(s.state.RecordingURL)
	}
	s.dispatchLocked(0, startRequested{})
	epoch := s.state.Epoch
	rt := s.opts.Devices.Runtime
	outFmt := outputFormat(s.opts.AudioDevice, rt)

	log := s.logger.WithSession(epoch)
	res := &resources{epoch: epoch, mixer: audio.NewMixer(rt.DefaultSampleRate, log)}
	decoder := s.opts.Decoder
	if decoder == nil {
		decoder = audio.PCMDecoder{Fallback: outFmt}
	}
	res.queue = playback.NewQueue(decoder, s.opts.Devices.Speaker, res.mixer, func(sp playback.Speaker) {
		s.dispatch(epoch, speakerChanged{speaker: sp})
	}, log)
	s.res = res
	s.mu.Unlock()

	log.Info("Starting conversation", logger.String("mode", s.opts.Conversation.Mode().String()))

	if err := rt.Supported(); err != nil {
		s.stop(epoch, err)
		return err
	}

	// Transport
	dialCtx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
	conn, err := s.opts.Dialer.Dial(dialCtx, s.opts.Conversation.BackendURL(), &connHandler{s: s, epoch: epoch})
	cancel()
	if err != nil {
		err = fmt.Errorf("failed to connect: %w", err)
		s.stop(epoch, err)
		return err
	}
	if !s.register(epoch, func(r *resources) { r.conn = conn }) {
		_ = conn.Close()
		return ErrStopped
	}

	// Microphone
	stream, err := s.opts.Devices.Microphone.Open(ctx, audio.Constraints{
		DeviceID:         s.opts.AudioDevice.InputDeviceID,
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
	})
	if err != nil {
		if errors.Is(err, audio.ErrPermissionDenied) {
			err = fmt.Errorf("%w: %w", ErrMicrophoneDenied, err)
		} else {
			err = fmt.Errorf("failed to open microphone: %w", err)
		}
		s.stop(epoch, err)
		return err
	}
	if !s.register(epoch, func(r *resources) { r.stream = stream }) {
		_ = stream.Close()
		return ErrStopped
	}

	// Negotiation
	inFmt := inputFormat(stream.Settings(), rt)
	in, out := wireFormat(inFmt), wireFormat(outFmt)
	msg, timeSlice := startMessage(s.opts.Conversation, in, out, rt)
	if msg == nil {
		err := fmt.Errorf("unsupported conversation mode %T", s.opts.Conversation)
		s.stop(epoch, err)
		return err
	}
	if err := conn.Send(msg); err != nil {
		err = fmt.Errorf("failed to send start message: %w", err)
		s.stop(epoch, err)
		return err
	}
	s.dispatch(epoch, formatsNegotiated{in: in, out: out})

	log.Info("Sent start message",
		logger.String("type", string(msg.MessageType())),
		logger.Int("input_sample_rate", in.SamplingRate),
		logger.Int("output_sample_rate", out.SamplingRate),
		logger.Duration("time_slice", timeSlice))

	// Recorders, once per transport
	pipeline := capture.New(stream, inFmt, conn, res.mixer, log)
	combo := recording.New(res.mixer, conn, s.blobs, log)
	if err := pipeline.Start(timeSlice); err != nil {
		s.stop(epoch, err)
		return err
	}
	if err := combo.Start(timeSlice); err != nil {
		_ = pipeline.Stop()
		s.stop(epoch, err)
		return err
	}
	if !s.register(epoch, func(r *resources) {
		r.capture = pipeline
		r.combo = combo
	}) {
		_ = pipeline.Stop()
		if result, _ := combo.Finalize(ctx); result != nil {
			s.blobs.Revoke(result.URL)
		}
		return ErrStopped
	}

	return nil
}

// Stop ends the current session from any state. Safe to call repeatedly.
func (s *Session) Stop() {
	s.mu.Lock()
	epoch := s.state.Epoch
	if s.res == nil && s.state.Status == StatusError {
		// Already torn down by a failure; acknowledge it
		s.dispatchLocked(epoch, stopped{})
	}
	s.mu.Unlock()
	s.stop(epoch, nil)
}

// SetActive mutes or unmutes the conversation without touching the streams
func (s *Session) SetActive(active bool) {
	s.dispatch(0, activeSet{active: active})
}

// ToggleActive flips the active flag
func (s *Session) ToggleActive() {
	s.dispatch(0, activeToggled{})
}

// Close stops the session, frees the recording and ends all subscriptions
func (s *Session) Close() error {
	s.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.state.RecordingURL != "" {
		s.blobs.Revoke(s.state.RecordingURL)
		s.state.RecordingURL = ""
	}
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	return nil
}

// stop runs the teardown for epoch. cause is nil for a clean stop.
func (s *Session) stop(epoch uint64, cause error) {
	s.mu.Lock()
	if epoch != s.state.Epoch || s.res == nil {
		s.mu.Unlock()
		return
	}
	res := s.res
	s.res = nil
	// Clearing before the status change keeps late playback from signalling
	res.queue.Clear()
	s.dispatchLocked(epoch, stopped{err: cause})
	s.mu.Unlock()

	log := s.logger.WithSession(epoch)
	if cause != nil {
		log.Warn("Conversation stopped with error", logger.Error(cause))
	} else {
		log.Info("Conversation stopped")
	}

	// Nothing below may run under s.mu: playback callbacks dispatch
	res.queue.Close()

	if res.capture != nil {
		if err := res.capture.Stop(); err != nil {
			log.Warn("Failed to stop capture", logger.Error(err))
		}
	} else if res.stream != nil {
		_ = res.stream.Close()
	}

	switch {
	case res.combo != nil:
		ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
		result, err := res.combo.Finalize(ctx)
		cancel()
		if err != nil {
			log.Warn("Failed to upload combined recording", logger.Error(err))
		}
		if result != nil && !s.dispatch(epoch, recordingFinalized{url: result.URL}) {
			s.blobs.Revoke(result.URL)
		}
	case res.conn != nil:
		if transport.IsOpen(res.conn) {
			if err := res.conn.Send(wire.StopMessage{}); err != nil {
				log.Debug("Failed to send stop", logger.Error(err))
			}
		}
		_ = res.conn.Close()
	}

	_ = res.mixer.Close()
}

// register stores a freshly acquired resource unless the start it belongs to
// was stopped meanwhile. On false the caller owns the resource.
func (s *Session) register(epoch uint64, fn func(*resources)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.res == nil || s.res.epoch != epoch {
		return false
	}
	fn(s.res)
	s.syncListenersLocked()
	return true
}

// dispatch applies e unless it belongs to a stale epoch. Epoch 0 always applies.
func (s *Session) dispatch(epoch uint64, e event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dispatchLocked(epoch, e)
}

func (s *Session) dispatchLocked(epoch uint64, e event) bool {
	if epoch != 0 && epoch != s.state.Epoch {
		return false
	}
	s.state = reduce(s.state, e)
	s.syncListenersLocked()
	s.publishLocked()
	return true
}

// syncListenersLocked attaches the upload and combo listeners only while
// connected and active
func (s *Session) syncListenersLocked() {
	if s.res == nil {
		return
	}
	want := s.state.Status == StatusConnected && s.state.Active

	if p := s.res.capture; p != nil && p.Listening() != want {
		if want {
			p.Attach()
		} else {
			p.Detach()
		}
	}
	if r := s.res.combo; r != nil && r.Listening() != want {
		if want {
			r.Attach()
		} else {
			r.Detach()
		}
	}
}

func (s *Session) publishLocked() {
	if len(s.subs) == 0 {
		return
	}
	snap := s.state.clone()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

func (s *Session) handleMessage(epoch uint64, msg wire.Message) {
	switch m := msg.(type) {
	case wire.AudioMessage:
		s.mu.Lock()
		var q *playback.Queue
		if s.res != nil && s.res.epoch == epoch {
			q = s.res.queue
		}
		s.mu.Unlock()
		if q != nil {
			q.Enqueue(m.Data)
		}

	case wire.ReadyMessage:
		if s.dispatch(epoch, readyReceived{details: m.CallDetails}) {
			s.logger.WithSession(epoch).Info("Conversation ready", logger.String("call_id", m.CallID))
		}

	case wire.TranscriptMessage:
		s.dispatch(epoch, transcriptReceived{transcript: m.Transcript})

	default:
		s.logger.Debug("Ignoring message", logger.String("type", string(msg.MessageType())))
	}
}

// connHandler binds transport callbacks to the Start that dialed them
type connHandler struct {
	s     *Session
	epoch uint64
}

func (h *connHandler) HandleMessage(msg wire.Message) {
	h.s.handleMessage(h.epoch, msg)
}

func (h *connHandler) HandleClose(err error) {
	h.s.stop(h.epoch, err)
}
