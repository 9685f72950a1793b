package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newServeCmd(configPath *string) *cobra.Command {
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the session control API",
		Long: `
Serve the HTTP control API without starting a conversation. Sessions are
started and stopped through POST /api/v1/session/start and /stop.

Examples:
  vocode-session serve -c session.toml
  vocode-session serve -c session.toml --listen 0.0.0.0:8089
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			addr := listenAddr
			if addr == "" {
				addr = a.cfg.Server.ListenAddr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serveHTTP(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address (defaults to server.listen_addr)")
	return cmd
}
