package managers

import (
	"context"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/flowbaker/autoflow/pkg/domain"
	"github.com/flowbaker/autoflow/pkg/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowManager_Save(t *testing.T) {
	trigger := domain.Node{ID: "t", Type: domain.NodeTypeTrigger}
	ai := domain.Node{ID: "ai", Type: domain.NodeTypeAIModel}

	tests := []struct {
		name        string
		workflow    domain.Workflow
		expectedErr error
		scheduled   []string
	}{
		{
			name: "scheduled active workflow",
			workflow: domain.Workflow{
				ID: "wf-1", Status: domain.WorkflowActivationStatusActive, Schedule: "0 8 * * *",
				Nodes: []domain.Node{trigger, ai},
				Edges: []domain.Edge{{ID: "e1", Source: "t", Target: "ai"}},
			},
			scheduled: []string{"wf-1"},
		},
		{
			name: "cycle",
			workflow: domain.Workflow{
				ID:    "wf-1",
				Nodes: []domain.Node{trigger, ai},
				Edges: []domain.Edge{{ID: "e1", Source: "t", Target: "ai"}, {ID: "e2", Source: "ai", Target: "t"}},
			},
			expectedErr: domain.ErrCycleDetected,
		},
		{
			name:        "invalid",
			workflow:    domain.Workflow{ID: "wf-1", Nodes: []domain.Node{trigger, trigger}},
			expectedErr: domain.ErrInvalidWorkflow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.New(memory.StoreOpts{})
			defer store.Close()

			scheduler := NewTaskScheduler(TaskSchedulerDependencies{Clock: clock.NewMock()})
			manager := NewWorkflowManager(WorkflowManagerDependencies{Store: store, Scheduler: scheduler})

			saved, err := manager.Save(context.Background(), tt.workflow)

			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
				_, getErr := store.Get(context.Background(), tt.workflow.ID)
				assert.ErrorIs(t, getErr, domain.ErrWorkflowNotFound)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.workflow.ID, saved.ID)
			assert.False(t, saved.CreatedAt.IsZero())
			assert.Equal(t, tt.scheduled, scheduler.ScheduledWorkflows())
		})
	}
}

func TestWorkflowManager_SyncSchedules(t *testing.T) {
	store := memory.New(memory.StoreOpts{})
	defer store.Close()

	require.NoError(t, store.Save(context.Background(), domain.Workflow{ID: "a", Status: domain.WorkflowActivationStatusActive, Schedule: "@daily"}))
	require.NoError(t, store.Save(context.Background(), domain.Workflow{ID: "b", Status: domain.WorkflowActivationStatusInactive, Schedule: "@daily"}))
	require.NoError(t, store.Save(context.Background(), domain.Workflow{ID: "c", Status: domain.WorkflowActivationStatusActive, Schedule: "bogus"}))

	scheduler := NewTaskScheduler(TaskSchedulerDependencies{Clock: clock.NewMock()})
	manager := NewWorkflowManager(WorkflowManagerDependencies{Store: store, Scheduler: scheduler})

	require.NoError(t, manager.SyncSchedules(context.Background()))
	assert.Equal(t, []string{"a"}, scheduler.ScheduledWorkflows())
}
