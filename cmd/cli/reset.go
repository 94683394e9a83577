package cli

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func NewResetCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Remove the saved configuration file",
		Long:  `Remove $HOME/.autoflow/config.yaml so the engine falls back to defaults and environment variables.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configManager, err := opts.configManager()
			if err != nil {
				return err
			}

			if err := configManager.ResetConfig(context.Background()); err != nil {
				log.Error().Err(err).Msg("Failed to reset configuration")
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Configuration reset successfully")
			return nil
		},
	}

	return cmd
}
