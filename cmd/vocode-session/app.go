package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/yegors/vocode-client/internal/api"
	"github.com/yegors/vocode-client/internal/audio"
	"github.com/yegors/vocode-client/internal/config"
	"github.com/yegors/vocode-client/internal/devices"
	"github.com/yegors/vocode-client/internal/session"
	"github.com/yegors/vocode-client/internal/transport"
	"github.com/yegors/vocode-client/pkg/logger"
)

const shutdownTimeout = 5 * time.Second

type app struct {
	cfg     *config.Config
	logger  *logger.Logger
	session *session.Session
}

// newApp loads the config and wires a session to the terminal devices
func newApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.LoggerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	sess, err := session.New(session.Options{
		Conversation:   cfg.Conversation(),
		AudioDevice:    cfg.AudioDevice,
		Devices:        terminalDevices(cfg, log),
		Dialer:         transport.NewWebSocketDialer(cfg.ConnectTimeout(), log),
		ConnectTimeout: cfg.ConnectTimeout(),
	}, log)
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, logger: log.Named("app"), session: sess}, nil
}

func terminalDevices(cfg *config.Config, log *logger.Logger) audio.Devices {
	rt := cfg.Runtime()
	if rt.Name == audio.RuntimeNative {
		rt = devices.NativeRuntime(rt.DefaultSampleRate)
	}

	var speaker audio.Speaker = devices.NullSpeaker{}
	if cfg.AudioDevice.Speaker == "ffplay" {
		ff := devices.NewFFPlaySpeaker("", log)
		if !ff.Available() {
			log.Warn("ffplay not found on PATH, agent audio will not be audible")
		}
		speaker = ff
	}

	return audio.Devices{
		Runtime:    rt,
		Microphone: devices.NewFileMicrophone(cfg.AudioDevice.InputDeviceID, cfg.AudioDevice.LoopInput),
		Speaker:    speaker,
	}
}

// serveHTTP runs the control API on addr until ctx is done
func (a *app) serveHTTP(ctx context.Context, addr string) error {
	router := api.NewRouter(a.session, a.cfg.Server, a.logger)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Control API listening", logger.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("control API failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("control API shutdown failed: %w", err)
	}
	return nil
}

func (a *app) close() {
	if err := a.session.Close(); err != nil {
		a.logger.Error("Failed to close session", logger.Error(err))
	}
	_ = a.logger.Sync()
}
