package managers

import (
	"context"
	"fmt"

	"github.com/flowbaker/autoflow/pkg/domain"
	"github.com/flowbaker/autoflow/pkg/domain/graph"
	"github.com/rs/zerolog/log"
)

// WorkflowManager stores workflow documents and keeps their cron schedules
// registered with the scheduler.
type WorkflowManager struct {
	store     domain.WorkflowStore
	scheduler domain.RecurringScheduler
}

type WorkflowManagerDependencies struct {
	Store     domain.WorkflowStore
	Scheduler domain.RecurringScheduler
}

func NewWorkflowManager(deps WorkflowManagerDependencies) *WorkflowManager {
	return &WorkflowManager{
		store:     deps.Store,
		scheduler: deps.Scheduler,
	}
}

func (m *WorkflowManager) Get(ctx context.Context, workflowID string) (domain.Workflow, error) {
	return m.store.Get(ctx, workflowID)
}

// Save validates the document, rejects cyclic graphs and replaces the stored
// workflow as a whole.
func (m *WorkflowManager) Save(ctx context.Context, workflow domain.Workflow) (domain.Workflow, error) {
	if err := workflow.Validate(); err != nil {
		return domain.Workflow{}, err
	}

	if _, err := graph.TopologicalSort(workflow.Nodes, workflow.Edges); err != nil {
		return domain.Workflow{}, err
	}

	if workflow.Status == "" {
		workflow.Status = domain.WorkflowActivationStatusInactive
	}

	if err := m.store.Save(ctx, workflow); err != nil {
		return domain.Workflow{}, fmt.Errorf("failed to save workflow: %w", err)
	}

	if m.scheduler != nil {
		if err := m.scheduler.SyncWorkflowSchedule(ctx, workflow); err != nil {
			return domain.Workflow{}, fmt.Errorf("failed to sync workflow schedule: %w", err)
		}
	}

	return m.store.Get(ctx, workflow.ID)
}

// SyncSchedules registers the cron entries of every stored workflow.
func (m *WorkflowManager) SyncSchedules(ctx context.Context) error {
	if m.scheduler == nil {
		return nil
	}

	workflows, err := m.store.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list workflows: %w", err)
	}

	for _, workflow := range workflows {
		if err := m.scheduler.SyncWorkflowSchedule(ctx, workflow); err != nil {
			log.Warn().Err(err).Str("workflow_id", workflow.ID).Msg("Skipping workflow schedule")
		}
	}

	return nil
}
