package audio

import (
	"io"
	"sync"
	"time"

	"github.com/yegors/vocode-client/pkg/logger"
)

// Mixer input names used by the session
const (
	InputMic   = "mic"
	InputAgent = "agent"
)

// defaultBacklog bounds how much unread audio an input may hold
const defaultBacklog = 10 * time.Second

// Mixer is a mono merge destination. Sources write into named inputs and a
// single consumer reads the summed signal.
type Mixer struct {
	format  Format
	limit   int // max buffered samples per input
	inputs  map[string]*mixerInput
	mu      sync.Mutex
	logger  *logger.Logger
	closed  bool
	dropped int
}

// mixerInput holds unread samples for one source
type mixerInput struct {
	samples []int16
}

// NewMixer creates a mixer at the given sample rate
func NewMixer(sampleRate int, logger *logger.Logger) *Mixer {
	format := Format{SampleRate: sampleRate, Channels: 1}
	return &Mixer{
		format: format,
		limit:  format.FramesFor(defaultBacklog),
		inputs: make(map[string]*mixerInput),
		logger: logger.Named("mixer"),
	}
}

// Format returns the output format of the mixer
func (m *Mixer) Format() Format {
	return m.format
}

// WritePCM writes little-endian PCM16 in format f to the named input
func (m *Mixer) WritePCM(name string, pcm []byte, f Format) error {
	return m.WriteBuffer(name, &Buffer{Format: f, Samples: BytesToSamples(pcm)})
}

// WriteBuffer writes a decoded buffer to the named input, converting it to the mixer format
func (m *Mixer) WriteBuffer(name string, b *Buffer) error {
	samples := Resample(ToMono(b), b.Format.SampleRate, m.format.SampleRate)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return io.ErrClosedPipe
	}

	in, ok := m.inputs[name]
	if !ok {
		in = &mixerInput{}
		m.inputs[name] = in
		m.logger.Debug("Connected mixer input", logger.String("input", name))
	}
	in.samples = append(in.samples, samples...)

	// Drop the oldest audio when a consumer falls behind
	if over := len(in.samples) - m.limit; over > 0 {
		in.samples = append(in.samples[:0:0], in.samples[over:]...)
		m.dropped += over
	}

	return nil
}

// Read pulls up to frames samples from every input, pads silence and sums them
func (m *Mixer) Read(frames int) []int16 {
	out := make([]int16, frames)

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, in := range m.inputs {
		n := frames
		if len(in.samples) < n {
			n = len(in.samples)
		}
		for i := 0; i < n; i++ {
			out[i] = mixSample(out[i], in.samples[i])
		}
		in.samples = in.samples[n:]
	}

	return out
}

// Buffered returns the number of unread samples on the named input
func (m *Mixer) Buffered(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if in, ok := m.inputs[name]; ok {
		return len(in.samples)
	}
	return 0
}

// Dropped returns how many samples were discarded because of backlog
func (m *Mixer) Dropped() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}

// Disconnect removes an input and its unread audio
func (m *Mixer) Disconnect(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.inputs[name]; ok {
		delete(m.inputs, name)
		m.logger.Debug("Disconnected mixer input", logger.String("input", name))
	}
}

// Reset drops all inputs, keeping the mixer usable
func (m *Mixer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs = make(map[string]*mixerInput)
	m.dropped = 0
}

// Close closes the mixer; later writes fail
func (m *Mixer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.inputs = make(map[string]*mixerInput)
	return nil
}
