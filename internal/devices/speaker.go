package devices

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/yegors/vocode-client/internal/audio"
	"github.com/yegors/vocode-client/pkg/logger"
)

// FFPlaySpeaker plays each buffer through an ffplay process fed a WAV stream on stdin
type FFPlaySpeaker struct {
	Path     string
	LogLevel string
	logger   *logger.Logger
}

// NewFFPlaySpeaker creates a speaker backed by the ffplay binary at path
func NewFFPlaySpeaker(path string, logger *logger.Logger) *FFPlaySpeaker {
	if path == "" {
		path = "ffplay"
	}
	return &FFPlaySpeaker{Path: path, LogLevel: "error", logger: logger.Named("ffplay")}
}

// Available reports whether the ffplay binary can be found
func (s *FFPlaySpeaker) Available() bool {
	_, err := exec.LookPath(s.Path)
	return err == nil
}

// Play implements audio.Speaker and blocks until ffplay exits
func (s *FFPlaySpeaker) Play(ctx context.Context, b *audio.Buffer) error {
	args := []string{
		"-hide_banner",
		"-loglevel", s.LogLevel,
		"-nostats",
		"-nodisp",
		"-autoexit",
		"-f", "wav",
		"-i", "-",
	}

	cmd := exec.CommandContext(ctx, s.Path, args...)
	if runtime.GOOS == "darwin" && os.Getenv("SDL_AUDIODRIVER") == "" {
		// SDL may pick a silent dummy driver otherwise
		cmd.Env = append(os.Environ(), "SDL_AUDIODRIVER=coreaudio")
	}
	cmd.Stdin = audio.NewWAVReader(io.NopCloser(bytes.NewReader(b.Bytes())), b.Format)
	cmd.Stdout = io.Discard
	cmd.Stderr = os.Stderr

	s.logger.Debug("Playing agent audio",
		logger.Int("sample_rate", b.Format.SampleRate),
		logger.Duration("duration", b.Duration()))

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffplay failed: %w", err)
	}
	return nil
}

// NullSpeaker discards audio but takes as long as real playback would
type NullSpeaker struct{}

// Play implements audio.Speaker
func (NullSpeaker) Play(ctx context.Context, b *audio.Buffer) error {
	timer := time.NewTimer(b.Duration())
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
