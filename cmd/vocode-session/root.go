package main

import (
	"github.com/spf13/cobra"
)

const defaultConfigPath = "config.toml"

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "vocode-session",
		Short: "Talk to a Vocode agent from the terminal",
		Long: `
Stream a microphone to a hosted or self-hosted Vocode conversation, play the
agent's replies and keep a combined recording of both sides.

Examples:
  vocode-session validate -c session.toml
  vocode-session call -c session.toml --record call.wav
  vocode-session serve -c session.toml
`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to the TOML configuration file")

	root.AddCommand(
		newCallCmd(&configPath),
		newServeCmd(&configPath),
		newValidateCmd(&configPath),
	)
	return root
}
