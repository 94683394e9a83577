package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func NewTerminateCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "terminate <execution-id>",
		Short: "Stop an execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			container, err := opts.buildContainer(ctx)
			if err != nil {
				return err
			}
			defer container.Close(ctx)

			if err := container.Executor.Terminate(ctx, args[0]); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Execution %s terminated\n", args[0])
			return nil
		},
	}

	return cmd
}
