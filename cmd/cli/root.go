package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/flowbaker/autoflow/internal/initialization"
	"github.com/flowbaker/autoflow/pkg/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configFile string
	debug      bool
}

func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "autoflow",
		Short: "Autoflow workflow engine",
		Long: `Autoflow runs visual content workflows: triggers, AI model calls, research,
conditions, human review steps and output delivery, wired together as a graph.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
			if opts.debug {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "Config file (default ./config.yaml or $HOME/.autoflow/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(NewStartCommand(opts))
	rootCmd.AddCommand(NewImportCommand(opts))
	rootCmd.AddCommand(NewRunCommand(opts))
	rootCmd.AddCommand(NewResumeCommand(opts))
	rootCmd.AddCommand(NewTerminateCommand(opts))
	rootCmd.AddCommand(NewStatusCommand(opts))
	rootCmd.AddCommand(NewResetCommand(opts))

	return rootCmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (o *rootOptions) configManager() (domain.ConfigManager, error) {
	return domain.NewConfigManager(o.configFile)
}

func (o *rootOptions) loadConfig(ctx context.Context) (domain.EngineConfig, error) {
	configManager, err := o.configManager()
	if err != nil {
		return domain.EngineConfig{}, err
	}

	config, err := configManager.GetConfig(ctx)
	if err != nil {
		return domain.EngineConfig{}, err
	}

	if !o.debug && config.LogLevel != "" {
		level, err := zerolog.ParseLevel(config.LogLevel)
		if err != nil {
			log.Warn().Str("log_level", config.LogLevel).Msg("Unknown log level, keeping info")
		} else {
			zerolog.SetGlobalLevel(level)
		}
	}

	return config, nil
}

func (o *rootOptions) buildContainer(ctx context.Context) (*initialization.Container, error) {
	config, err := o.loadConfig(ctx)
	if err != nil {
		return nil, err
	}

	return initialization.NewContainer(ctx, initialization.ContainerOptions{Config: config})
}

func printJSON(cmd *cobra.Command, value any) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")

	return encoder.Encode(value)
}
