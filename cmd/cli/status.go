package cli

import (
	"context"
	"fmt"

	"github.com/flowbaker/autoflow/internal/version"
	"github.com/spf13/cobra"
)

func NewStatusCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [execution-id]",
		Short: "Show engine configuration or an execution",
		Long:  `Without arguments, print the active configuration summary. With an execution id, print the execution record.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return runExecutionStatus(cmd, opts, args[0])
			}

			return runStatus(cmd, opts)
		},
	}

	return cmd
}

func runExecutionStatus(cmd *cobra.Command, opts *rootOptions, executionID string) error {
	ctx := context.Background()

	container, err := opts.buildContainer(ctx)
	if err != nil {
		return err
	}
	defer container.Close(ctx)

	execution, err := container.Executor.GetExecution(ctx, executionID)
	if err != nil {
		return err
	}

	return printJSON(cmd, execution.View())
}

func runStatus(cmd *cobra.Command, opts *rootOptions) error {
	configManager, err := opts.configManager()
	if err != nil {
		return err
	}

	config, err := configManager.GetConfig(context.Background())
	if err != nil {
		return err
	}

	configFile := configManager.ConfigFileUsed()
	if configFile == "" {
		configFile = "(defaults and environment)"
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Version:        %s\n", version.GetShortVersion())
	fmt.Fprintf(out, "Config:         %s\n", configFile)
	fmt.Fprintf(out, "Address:        %s\n", config.Address)
	fmt.Fprintf(out, "Storage driver: %s\n", config.Storage.Driver)
	fmt.Fprintf(out, "Site:           %s (%s)\n", config.Site.Name, config.Site.URL)

	providers := []struct {
		name    string
		enabled bool
	}{
		{"openai", config.Providers.OpenAI.APIKey != ""},
		{"openrouter", config.Providers.OpenRouter.APIKey != ""},
		{"anthropic", config.Providers.Anthropic.APIKey != ""},
		{"gemini", config.Providers.Gemini.APIKey != ""},
		{"perplexity", config.Providers.Perplexity.APIKey != ""},
		{"unsplash", config.Providers.Unsplash.APIKey != ""},
		{"firecrawl", config.Providers.Firecrawl.APIKey != ""},
		{"google", config.Google.CredentialsFile != ""},
	}

	fmt.Fprintln(out, "Providers:")
	for _, provider := range providers {
		state := "not configured"
		if provider.enabled {
			state = "configured"
		}

		fmt.Fprintf(out, "  %-11s %s\n", provider.name, state)
	}

	return nil
}
