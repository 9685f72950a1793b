// Package audiotest provides in-memory audio devices for tests.
package audiotest

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yegors/vocode-client/internal/audio"
)

// Stream is a microphone stream fed by Push
type Stream struct {
	settings audio.TrackSettings

	mu     sync.Mutex
	cond   *sync.Cond
	data   []byte
	closed bool
}

// NewStream creates a stream reporting the given settings
func NewStream(settings audio.TrackSettings) *Stream {
	s := &Stream{settings: settings}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Push makes pcm available to readers
func (s *Stream) Push(pcm []byte) {
	s.mu.Lock()
	s.data = append(s.data, pcm...)
	s.mu.Unlock()
	s.cond.Broadcast()
}

// Read blocks until data is pushed or the stream is closed
func (s *Stream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.data) == 0 && !s.closed {
		s.cond.Wait()
	}
	if len(s.data) == 0 {
		return 0, io.EOF
	}
	n := copy(p, s.data)
	s.data = s.data[n:]
	return n, nil
}

// Settings implements audio.Stream
func (s *Stream) Settings() audio.TrackSettings {
	return s.settings
}

// Close implements audio.Stream
func (s *Stream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cond.Broadcast()
	return nil
}

// Closed reports whether Close was called
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Microphone hands out Streams, or fails with Err
type Microphone struct {
	Settings audio.TrackSettings
	Err      error

	mu          sync.Mutex
	streams     []*Stream
	constraints []audio.Constraints
}

// Open implements audio.Microphone
func (m *Microphone) Open(ctx context.Context, c audio.Constraints) (audio.Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.constraints = append(m.constraints, c)
	if m.Err != nil {
		return nil, m.Err
	}
	s := NewStream(m.Settings)
	m.streams = append(m.streams, s)
	return s, nil
}

// Last returns the most recently opened stream
func (m *Microphone) Last() *Stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.streams) == 0 {
		return nil
	}
	return m.streams[len(m.streams)-1]
}

// Constraints returns every constraint set requested so far
func (m *Microphone) Constraints() []audio.Constraints {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]audio.Constraints(nil), m.constraints...)
}

// Speaker records played buffers. Each Play lasts PlayFor, or until Release
// is called when Manual is set.
type Speaker struct {
	PlayFor time.Duration
	Manual  bool
	Err     error

	mu       sync.Mutex
	played   []*audio.Buffer
	release  chan struct{}
	active   atomic.Int32
	maxCount atomic.Int32
	started  chan *audio.Buffer
}

// NewSpeaker creates a speaker whose plays last d
func NewSpeaker(d time.Duration) *Speaker {
	return &Speaker{PlayFor: d, release: make(chan struct{}), started: make(chan *audio.Buffer, 64)}
}

// NewManualSpeaker creates a speaker whose plays last until Release
func NewManualSpeaker() *Speaker {
	s := NewSpeaker(0)
	s.Manual = true
	return s
}

// Play implements audio.Speaker
func (s *Speaker) Play(ctx context.Context, b *audio.Buffer) error {
	n := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		max := s.maxCount.Load()
		if n <= max || s.maxCount.CompareAndSwap(max, n) {
			break
		}
	}

	s.mu.Lock()
	s.played = append(s.played, b)
	s.mu.Unlock()

	select {
	case s.started <- b:
	default:
	}

	if s.Err != nil {
		return s.Err
	}

	if s.Manual {
		select {
		case <-s.release:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	}

	select {
	case <-time.After(s.PlayFor):
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Release ends the current manual play
func (s *Speaker) Release() {
	s.release <- struct{}{}
}

// Started yields buffers as they begin playing
func (s *Speaker) Started() <-chan *audio.Buffer {
	return s.started
}

// Played returns every buffer played so far, in order
func (s *Speaker) Played() []*audio.Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*audio.Buffer(nil), s.played...)
}

// MaxConcurrent returns the highest number of simultaneous plays observed
func (s *Speaker) MaxConcurrent() int {
	return int(s.maxCount.Load())
}

// Decoder decodes payloads with an optional per-payload hook
type Decoder struct {
	// Inner does the actual decoding; defaults to a 16kHz mono PCMDecoder
	Inner audio.Decoder
	// Before runs before each decode, e.g. to block or fail a payload
	Before func(ctx context.Context, payload string) error

	mu       sync.Mutex
	payloads []string
}

// Decode implements audio.Decoder
func (d *Decoder) Decode(ctx context.Context, payload string) (*audio.Buffer, error) {
	d.mu.Lock()
	d.payloads = append(d.payloads, payload)
	d.mu.Unlock()

	if d.Before != nil {
		if err := d.Before(ctx, payload); err != nil {
			return nil, err
		}
	}

	inner := d.Inner
	if inner == nil {
		inner = audio.PCMDecoder{Fallback: audio.Format{SampleRate: 16000, Channels: 1}}
	}
	return inner.Decode(ctx, payload)
}

// Payloads returns payloads in the order decoding began
func (d *Decoder) Payloads() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.payloads...)
}
