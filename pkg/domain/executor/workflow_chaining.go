package executor

import (
	"context"
	"fmt"

	"github.com/flowbaker/autoflow/pkg/domain"
	"github.com/rs/zerolog/log"
)

// DependentWorkflows returns the active workflows whose trigger listens to the
// output of the given source workflow.
func DependentWorkflows(workflows []domain.Workflow, sourceWorkflowID string) []domain.Workflow {
	var dependents []domain.Workflow

	for _, workflow := range workflows {
		if workflow.ID == sourceWorkflowID || !workflow.IsActive() {
			continue
		}

		trigger, ok := workflow.GetTriggerNode()
		if !ok {
			continue
		}

		if domain.TriggerType(trigger.String("triggerType")) != domain.TriggerTypeWorkflowOutput {
			continue
		}

		if trigger.String("sourceWorkflowId") != sourceWorkflowID {
			continue
		}

		dependents = append(dependents, workflow)
	}

	return dependents
}

// chainDependentWorkflows enqueues one execution per dependent workflow. The
// enqueued runs are independent of this one; a failure to enqueue one does
// not stop the others.
func (s *workflowExecutorService) chainDependentWorkflows(ctx context.Context, p preparedRun, outputs *domain.NodeOutputs) error {
	if s.scheduler == nil {
		return nil
	}

	workflows, err := s.workflowStore.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list workflows: %w", err)
	}

	dependents := DependentWorkflows(workflows, p.workflow.ID)
	if len(dependents) == 0 {
		return nil
	}

	input := map[string]any{
		"source_workflow_id":   p.workflow.ID,
		"source_workflow_name": p.workflow.Name,
		"source_execution_id":  p.executionID,
		"output":               outputs.Contents(),
	}

	for _, dependent := range dependents {
		taskID, err := s.scheduler.ScheduleAt(ctx, s.clock.Now(), domain.TaskExecuteWorkflow, map[string]any{
			"workflow_id": dependent.ID,
			"source":      string(domain.TriggerSourceChain),
			"input":       input,
		})
		if err != nil {
			log.Error().
				Err(err).
				Str("workflow_id", p.workflow.ID).
				Str("dependent_workflow_id", dependent.ID).
				Msg("Failed to enqueue dependent workflow")

			continue
		}

		log.Info().
			Str("workflow_id", p.workflow.ID).
			Str("dependent_workflow_id", dependent.ID).
			Str("task_id", taskID).
			Msg("Dependent workflow enqueued")
	}

	return nil
}
