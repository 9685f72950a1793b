package devices

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/yegors/vocode-client/internal/audio"
)

// NativeRuntime is the runtime for sessions run from a terminal
func NativeRuntime(defaultSampleRate int) audio.Runtime {
	if defaultSampleRate <= 0 {
		defaultSampleRate = 48000
	}
	return audio.Runtime{Name: audio.RuntimeNative, DefaultSampleRate: defaultSampleRate}
}

// FileMicrophone replays a 16-bit PCM WAV file as a live microphone.
// The constraint device id, when set, overrides Path.
type FileMicrophone struct {
	Path string
	Loop bool
	// Pace delivers audio no faster than real time
	Pace bool
}

// NewFileMicrophone creates a real-time paced file microphone
func NewFileMicrophone(path string, loop bool) *FileMicrophone {
	return &FileMicrophone{Path: path, Loop: loop, Pace: true}
}

// Open implements audio.Microphone
func (m *FileMicrophone) Open(ctx context.Context, c audio.Constraints) (audio.Stream, error) {
	path := m.Path
	if c.DeviceID != "" {
		path = c.DeviceID
	}
	if path == "" {
		return nil, errors.New("no input file configured")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("%w: %v", audio.ErrPermissionDenied, err)
		}
		return nil, fmt.Errorf("failed to read input file: %w", err)
	}
	buf, err := audio.ParseWAV(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse input file %s: %w", path, err)
	}

	return &fileStream{
		pcm:    buf.Bytes(),
		format: buf.Format,
		loop:   m.Loop,
		pace:   m.Pace,
		settings: audio.TrackSettings{
			DeviceID:   path,
			SampleRate: buf.Format.SampleRate,
			Channels:   buf.Format.Channels,
		},
		closed: make(chan struct{}),
	}, nil
}

// fileStream hands out the file in reads of at most len(p), paced by wall clock
type fileStream struct {
	pcm      []byte
	format   audio.Format
	loop     bool
	pace     bool
	settings audio.TrackSettings

	mu        sync.Mutex
	pos       int
	delivered int // bytes handed out since the first read
	started   time.Time

	closed    chan struct{}
	closeOnce sync.Once
}

func (s *fileStream) Read(p []byte) (int, error) {
	select {
	case <-s.closed:
		return 0, io.EOF
	default:
	}

	s.mu.Lock()
	if s.pos >= len(s.pcm) {
		if !s.loop || len(s.pcm) == 0 {
			s.mu.Unlock()
			return 0, io.EOF
		}
		s.pos = 0
	}
	if s.started.IsZero() {
		s.started = time.Now()
	}

	frame := s.format.FrameBytes()
	n := len(p) - len(p)%frame
	if rest := len(s.pcm) - s.pos; n > rest {
		n = rest
	}
	if n == 0 {
		s.mu.Unlock()
		return 0, io.ErrShortBuffer
	}
	copy(p, s.pcm[s.pos:s.pos+n])
	s.pos += n
	s.delivered += n
	due := s.started.Add(s.format.Duration(s.delivered))
	s.mu.Unlock()

	if s.pace {
		if wait := time.Until(due); wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-s.closed:
				return n, io.EOF
			}
		}
	}
	return n, nil
}

func (s *fileStream) Settings() audio.TrackSettings {
	return s.settings
}

func (s *fileStream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}
