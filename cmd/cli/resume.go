package cli

import (
	"context"
	"fmt"

	"github.com/flowbaker/autoflow/pkg/domain"
	"github.com/flowbaker/autoflow/pkg/domain/executor"
	"github.com/spf13/cobra"
)

func NewResumeCommand(opts *rootOptions) *cobra.Command {
	var (
		nodeID string
		action string
		input  string
	)

	cmd := &cobra.Command{
		Use:   "resume <execution-id>",
		Short: "Resume a paused or failed execution",
		Long:  `Resume an execution at a humanInput node with approve or revert, or retry a failed execution from the node that failed.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			humanAction := domain.HumanAction(action)
			if action != "" && !humanAction.IsValid() {
				return fmt.Errorf("invalid action %q, expected approve or revert", action)
			}

			ctx := context.Background()

			container, err := opts.buildContainer(ctx)
			if err != nil {
				return err
			}
			defer container.Close(ctx)

			var humanInput any
			if input != "" {
				humanInput = input
			}

			result, err := container.Executor.Resume(ctx, executor.ResumeParams{
				ExecutionID: args[0],
				NodeID:      nodeID,
				HumanAction: humanAction,
				HumanInput:  humanInput,
			})
			if err != nil {
				return err
			}

			return printJSON(cmd, result)
		},
	}

	cmd.Flags().StringVar(&nodeID, "node", "", "Node to resume at, defaults to the node the execution stopped at")
	cmd.Flags().StringVar(&action, "action", "", "Human decision: approve or revert")
	cmd.Flags().StringVar(&input, "input", "", "Reviewed content recorded for the humanInput node")

	return cmd
}
