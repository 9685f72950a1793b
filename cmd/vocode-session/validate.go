package main

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/yegors/vocode-client/internal/config"
)

func newValidateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("INVALID: %w", err)
			}

			conv := cfg.Conversation()
			fmt.Fprintf(cmd.OutOrStdout(), "VALID: %s conversation via %s (runtime %s, speaker %s)\n",
				conv.Mode(), redact(conv.BackendURL()), cfg.Session.Runtime, cfg.AudioDevice.Speaker)
			return nil
		},
	}
}

// redact hides the API key carried in hosted URLs
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if q.Has("key") {
		q.Set("key", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
