package audio

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrPermissionDenied is returned by a Microphone when access is refused
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrUnsupportedRuntime is returned when the host cannot run a session
	ErrUnsupportedRuntime = errors.New("unsupported runtime")
)

// Runtime names
const (
	RuntimeChrome = "chrome"
	RuntimeSafari = "safari"
	RuntimeNative = "native"
)

// Runtime describes the host the audio devices run in
type Runtime struct {
	Name              string
	DefaultSampleRate int
}

// Supported returns ErrUnsupportedRuntime unless the runtime can capture and play audio
func (r Runtime) Supported() error {
	switch r.Name {
	case RuntimeChrome, RuntimeSafari, RuntimeNative:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedRuntime, r.Name)
	}
}

// IsSafari reports whether downsampling workarounds apply
func (r Runtime) IsSafari() bool {
	return r.Name == RuntimeSafari
}

// Constraints are the capture settings requested from a microphone
type Constraints struct {
	DeviceID         string
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// TrackSettings are the settings the microphone actually granted
type TrackSettings struct {
	DeviceID   string
	SampleRate int // 0 when unknown
	Channels   int
}

// Stream is a live microphone stream of little-endian PCM16
type Stream interface {
	Read(p []byte) (int, error)
	Settings() TrackSettings
	Close() error
}

// Microphone grants access to capture streams
type Microphone interface {
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// Speaker plays decoded buffers. Play blocks until the buffer has finished playing.
type Speaker interface {
	Play(ctx context.Context, b *Buffer) error
}

// Devices bundles what a session needs from its host
type Devices struct {
	Runtime    Runtime
	Microphone Microphone
	Speaker    Speaker
}
