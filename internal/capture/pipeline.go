package capture

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/yegors/vocode-client/internal/audio"
	"github.com/yegors/vocode-client/internal/transport"
	"github.com/yegors/vocode-client/internal/wire"
	"github.com/yegors/vocode-client/pkg/logger"
)

// DefaultTimeSlice is used when no time slice is configured
const DefaultTimeSlice = 10 * time.Millisecond

// stopTimeout bounds how long Stop waits for a blocked microphone read
const stopTimeout = 2 * time.Second

// ErrInvalidTransition is returned when a recorder operation is not valid in its current state
var ErrInvalidTransition = errors.New("invalid recorder state transition")

// State is the recorder state of the pipeline
type State int

// Pipeline states
const (
	StateInactive State = iota
	StateRecording
	StatePaused
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateRecording:
		return "recording"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var transitions = map[State][]State{
	StateInactive:  {StateRecording, StateStopped},
	StateRecording: {StatePaused, StateStopped},
	StatePaused:    {StateRecording, StateStopped},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Chunk is one time slice of captured microphone audio
type Chunk struct {
	Data   []byte
	Format audio.Format
}

// Stats counts what happened to captured chunks
type Stats struct {
	Chunks  int // complete chunks produced while recording
	Sent    int
	Dropped int // transport not open or send failed
	Unheard int // produced while no listener was attached
}

// Pipeline streams microphone audio to the transport in fixed time slices
type Pipeline struct {
	stream audio.Stream
	format audio.Format
	conn   transport.Conn
	mixer  *audio.Mixer
	logger *logger.Logger

	mu        sync.Mutex
	state     State
	listening bool
	chunker   *audio.Chunker
	stats     Stats
	loopDone  chan struct{}
}

// New creates a capture pipeline over stream. mixer may be nil.
func New(stream audio.Stream, format audio.Format, conn transport.Conn, mixer *audio.Mixer, logger *logger.Logger) *Pipeline {
	return &Pipeline{
		stream: stream,
		format: format,
		conn:   conn,
		mixer:  mixer,
		logger: logger.Named("capture"),
	}
}

// State returns the current recorder state
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Stats returns a copy of the chunk counters
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Format returns the capture format
func (p *Pipeline) Format() audio.Format {
	return p.format
}

// Start begins slicing the stream into chunks of timeSlice
func (p *Pipeline) Start(timeSlice time.Duration) error {
	if timeSlice <= 0 {
		timeSlice = DefaultTimeSlice
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.transition(StateRecording); err != nil {
		return err
	}
	p.chunker = audio.NewChunker(p.format, timeSlice)
	p.loopDone = make(chan struct{})

	p.logger.Info("Microphone capture started",
		logger.Int("sample_rate", p.format.SampleRate),
		logger.Duration("time_slice", timeSlice))

	go p.readLoop(p.loopDone)
	return nil
}

// Pause stops emitting chunks without releasing the stream
func (p *Pipeline) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.transition(StatePaused)
}

// Resume continues a paused pipeline
func (p *Pipeline) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StatePaused {
		return fmt.Errorf("%w: resume from %s", ErrInvalidTransition, p.state)
	}
	if err := p.transition(StateRecording); err != nil {
		return err
	}
	// A partial chunk from before the pause would splice two moments together
	p.chunker.Reset()
	return nil
}

// Attach connects the upload listener
func (p *Pipeline) Attach() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.listening {
		p.listening = true
		p.logger.Debug("Upload listener attached")
	}
}

// Detach disconnects the upload listener; the stream keeps running
func (p *Pipeline) Detach() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listening {
		p.listening = false
		p.logger.Debug("Upload listener detached")
	}
}

// Listening reports whether the upload listener is attached
func (p *Pipeline) Listening() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.listening
}

// Stop ends capture and releases the microphone. Safe to call more than once.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	if p.state == StateStopped {
		p.mu.Unlock()
		return nil
	}
	_ = p.transition(StateStopped)
	p.listening = false
	done := p.loopDone
	p.mu.Unlock()

	err := p.stream.Close()
	if p.mixer != nil {
		p.mixer.Disconnect(audio.InputMic)
	}

	if done != nil {
		select {
		case <-done:
		case <-time.After(stopTimeout):
			p.logger.Warn("Microphone read did not unblock after close")
		}
	}

	stats := p.Stats()
	p.logger.Info("Microphone capture stopped",
		logger.Int("chunks", stats.Chunks),
		logger.Int("sent", stats.Sent),
		logger.Int("dropped", stats.Dropped))

	if err != nil {
		return fmt.Errorf("failed to close microphone stream: %w", err)
	}
	return nil
}

// transition must be called with p.mu held
func (p *Pipeline) transition(to State) error {
	if !canTransition(p.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.state, to)
	}
	p.state = to
	return nil
}

// readLoop pulls PCM from the microphone until the stream ends
func (p *Pipeline) readLoop(done chan struct{}) {
	defer close(done)

	buf := make([]byte, p.chunker.ChunkSize())
	for {
		n, err := p.stream.Read(buf)
		if n > 0 {
			p.handleData(buf[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				p.logger.Debug("Microphone stream ended")
			} else if p.State() != StateStopped {
				p.logger.Error("Microphone read failed", logger.Error(err))
			}
			return
		}
	}
}

// handleData forwards raw audio to the mixer and emits complete chunks
func (p *Pipeline) handleData(data []byte) {
	// The mic is wired into the merge destination for as long as the stream lives
	if p.mixer != nil {
		if err := p.mixer.WritePCM(audio.InputMic, data, p.format); err != nil {
			p.logger.Debug("Mixer rejected microphone audio", logger.Error(err))
		}
	}

	p.mu.Lock()
	if p.state != StateRecording {
		p.mu.Unlock()
		return
	}
	chunks, err := p.chunker.Write(data)
	listening := p.listening
	p.stats.Chunks += len(chunks)
	if !listening {
		p.stats.Unheard += len(chunks)
	}
	p.mu.Unlock()

	if err != nil {
		p.logger.Error("Failed to slice microphone audio", logger.Error(err))
		return
	}
	if !listening {
		return
	}

	for _, c := range chunks {
		p.OnChunk(Chunk{Data: c, Format: p.format})
	}
}

// OnChunk uploads one chunk. Chunks are sent at most once: if the transport
// is not open the chunk is dropped.
func (p *Pipeline) OnChunk(c Chunk) {
	encoded := base64.StdEncoding.EncodeToString(c.Data)

	if !transport.IsOpen(p.conn) {
		p.countDropped()
		return
	}

	if err := p.conn.Send(wire.AudioMessage{Data: encoded}); err != nil {
		p.logger.Debug("Dropped microphone chunk", logger.Error(err))
		p.countDropped()
		return
	}

	p.mu.Lock()
	p.stats.Sent++
	p.mu.Unlock()
}

func (p *Pipeline) countDropped() {
	p.mu.Lock()
	p.stats.Dropped++
	p.mu.Unlock()
}
