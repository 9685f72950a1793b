package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/yegors/vocode-client/internal/session"
	"github.com/yegors/vocode-client/internal/wire"
	"github.com/yegors/vocode-client/pkg/logger"
)

const (
	pollInterval   = 250 * time.Millisecond
	recordingGrace = 6 * time.Second
)

func newCallCmd(configPath *string) *cobra.Command {
	var (
		recordPath string
		httpAddr   string
	)

	cmd := &cobra.Command{
		Use:   "call",
		Short: "Start a conversation and run it until interrupted",
		Long: `
Start a conversation with the configured agent. Transcripts are printed as
they arrive. Press Ctrl+C to hang up.

Examples:
  vocode-session call -c session.toml
  vocode-session call -c session.toml --record call.wav
  vocode-session call -c session.toml --http 127.0.0.1:8089
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.call(ctx, cmd.OutOrStdout(), recordPath, httpAddr)
		},
	}

	cmd.Flags().StringVar(&recordPath, "record", "", "Write the combined recording to this WAV file")
	cmd.Flags().StringVar(&httpAddr, "http", "", "Also serve the control API on this address")
	return cmd
}

// call runs one conversation, plus the control API when httpAddr is set
func (a *app) call(ctx context.Context, out io.Writer, recordPath, httpAddr string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	if httpAddr != "" {
		g.Go(func() error {
			return a.serveHTTP(gctx, httpAddr)
		})
	}
	g.Go(func() error {
		defer cancel()
		return a.runCall(gctx, out, recordPath)
	})
	return g.Wait()
}

func (a *app) runCall(ctx context.Context, out io.Writer, recordPath string) error {
	updates, unsubscribe := a.session.Subscribe()
	defer unsubscribe()

	if err := a.session.Start(ctx); err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}

	// Subscribers may miss updates, so the ticker re-reads the snapshot
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	printed := 0
	connected := false
	for {
		var st session.State
		select {
		case <-ctx.Done():
			a.session.Stop()
			return a.finish(out, recordPath)
		case s, ok := <-updates:
			if !ok {
				return a.finish(out, recordPath)
			}
			st = s
		case <-ticker.C:
			st = a.session.Snapshot()
		}

		printed = printTranscripts(out, st.Transcripts, printed)
		if st.Status == session.StatusConnected && !connected {
			connected = true
			callID := ""
			if st.CallDetails != nil {
				callID = st.CallDetails.CallID
			}
			fmt.Fprintf(out, "Connected (call %q)\n", callID)
		}
		if !st.Running() {
			return a.finish(out, recordPath)
		}
	}
}

func printTranscripts(out io.Writer, transcripts []wire.Transcript, printed int) int {
	if printed > len(transcripts) {
		printed = 0
	}
	for _, t := range transcripts[printed:] {
		fmt.Fprintf(out, "[%s] %s\n", t.Sender, t.Text)
	}
	return len(transcripts)
}

// finish saves the recording and reports how the session ended
func (a *app) finish(out io.Writer, recordPath string) error {
	saveErr := a.saveRecording(out, recordPath)

	if st := a.session.Snapshot(); st.Status == session.StatusError {
		return fmt.Errorf("session failed: %w", st.Err)
	}
	return saveErr
}

func (a *app) saveRecording(out io.Writer, recordPath string) error {
	if recordPath == "" {
		return nil
	}

	// A remote hang-up finalizes the recording after the status changes
	st := a.session.Snapshot()
	deadline := time.Now().Add(recordingGrace)
	for st.RecordingURL == "" && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
		st = a.session.Snapshot()
	}
	if st.RecordingURL == "" {
		a.logger.Warn("No recording was produced")
		return nil
	}

	blob, ok := a.session.Blobs().Get(st.RecordingURL)
	if !ok {
		return fmt.Errorf("recording %s is no longer available", st.RecordingURL)
	}
	if err := os.WriteFile(recordPath, blob.Data, 0o644); err != nil {
		return fmt.Errorf("failed to write recording: %w", err)
	}

	a.logger.Info("Recording saved",
		logger.String("path", recordPath),
		logger.Int("bytes", len(blob.Data)))
	fmt.Fprintf(out, "Recording saved to %s\n", recordPath)
	return nil
}
