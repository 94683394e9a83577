package cli

import (
	"context"
	"fmt"

	"github.com/flowbaker/autoflow/pkg/domain"
	"github.com/flowbaker/autoflow/pkg/domain/executor"
	"github.com/spf13/cobra"
)

type runOptions struct {
	input        string
	workflowFile string
}

func NewRunCommand(opts *rootOptions) *cobra.Command {
	runOpts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run [workflow-id]",
		Short: "Run a workflow and print the execution result",
		Long: `Run a workflow to completion, or until a humanInput node pauses it. With --file the
workflow document is imported first, which makes one-off runs work with the memory driver.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			container, err := opts.buildContainer(ctx)
			if err != nil {
				return err
			}
			defer container.Close(ctx)

			workflowID := ""
			if len(args) == 1 {
				workflowID = args[0]
			}

			if runOpts.workflowFile != "" {
				workflow, err := importWorkflowFile(ctx, container.Workflows, runOpts.workflowFile)
				if err != nil {
					return err
				}

				workflowID = workflow.ID
			}

			if workflowID == "" {
				return fmt.Errorf("a workflow id or --file is required")
			}

			var input any
			if runOpts.input != "" {
				input = runOpts.input
			}

			result, err := container.Executor.Execute(ctx, executor.ExecuteParams{
				WorkflowID: workflowID,
				Input:      input,
				Source:     domain.TriggerSourceManual,
			})
			if err != nil {
				return err
			}

			return printJSON(cmd, result)
		},
	}

	cmd.Flags().StringVar(&runOpts.input, "input", "", "Input passed to the trigger node, JSON text is decoded")
	cmd.Flags().StringVarP(&runOpts.workflowFile, "file", "f", "", "Workflow JSON document to import before running")

	return cmd
}
