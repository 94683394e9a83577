package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/flowbaker/autoflow/internal/managers"
	"github.com/flowbaker/autoflow/pkg/domain"
	"github.com/spf13/cobra"
)

func NewImportCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <workflow.json>",
		Short: "Validate and store a workflow definition",
		Long:  `Import a workflow JSON document. The graph is validated, checked for cycles and its cron schedule is registered when the workflow is active.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			container, err := opts.buildContainer(ctx)
			if err != nil {
				return err
			}
			defer container.Close(ctx)

			workflow, err := importWorkflowFile(ctx, container.Workflows, args[0])
			if err != nil {
				return err
			}

			return printJSON(cmd, workflow)
		},
	}

	return cmd
}

func readWorkflowFile(path string) (domain.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Workflow{}, fmt.Errorf("failed to read workflow file: %w", err)
	}

	var workflow domain.Workflow
	if err := json.Unmarshal(data, &workflow); err != nil {
		return domain.Workflow{}, fmt.Errorf("failed to decode workflow file: %w", err)
	}

	return workflow, nil
}

func importWorkflowFile(ctx context.Context, workflows *managers.WorkflowManager, path string) (domain.Workflow, error) {
	workflow, err := readWorkflowFile(path)
	if err != nil {
		return domain.Workflow{}, err
	}

	return workflows.Save(ctx, workflow)
}
