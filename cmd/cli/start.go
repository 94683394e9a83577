package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flowbaker/autoflow/internal/version"
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func NewStartCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the HTTP API and the scheduler",
		Long:  `Start the engine service: the HTTP API for workflows and executions, cron schedules of active workflows and delayed tasks.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(opts)
		},
	}

	return cmd
}

func runStart(opts *rootOptions) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info().Str("version", version.GetVersion()).Msg("Starting engine service")

	container, err := opts.buildContainer(ctx)
	if err != nil {
		return err
	}

	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := container.Close(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to shut down cleanly")
		}
	}()

	if err := container.StartScheduler(ctx); err != nil {
		return err
	}

	log.Info().Str("address", container.Config.Address).Msg("HTTP server listening")

	if err := container.App.Listen(container.Config.Address, fiber.ListenConfig{
		GracefulContext:       ctx,
		DisableStartupMessage: true,
	}); err != nil {
		log.Error().Err(err).Msg("HTTP server failed")
		return err
	}

	log.Info().Msg("Engine service stopped")
	return nil
}
