package memory

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/flowbaker/autoflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *clock.Mock) {
	t.Helper()

	mockClock := clock.NewMock()
	mockClock.Set(time.Date(2024, time.January, 2, 3, 4, 5, 0, time.UTC))

	store := New(StoreOpts{Clock: mockClock})
	t.Cleanup(func() { _ = store.Close() })

	return store, mockClock
}

func TestStore_Workflows(t *testing.T) {
	ctx := context.Background()
	store, mockClock := newTestStore(t)

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrWorkflowNotFound)

	workflow := domain.Workflow{
		ID:     "wf1",
		Name:   "Daily digest",
		Status: domain.WorkflowActivationStatusActive,
		Nodes: []domain.Node{
			{ID: "t", Type: domain.NodeTypeTrigger, Data: map[string]any{"triggerType": "manual"}},
		},
	}

	require.NoError(t, store.Save(ctx, workflow))

	loaded, err := store.Get(ctx, "wf1")
	require.NoError(t, err)
	assert.Equal(t, "Daily digest", loaded.Name)
	assert.Equal(t, mockClock.Now(), loaded.CreatedAt)

	loaded.Nodes[0].Data["triggerType"] = "webhook"

	reloaded, err := store.Get(ctx, "wf1")
	require.NoError(t, err)
	assert.Equal(t, "manual", reloaded.Nodes[0].Data["triggerType"], "returned workflows must not alias stored state")

	mockClock.Add(time.Hour)
	reloaded.Name = "Renamed"
	require.NoError(t, store.Save(ctx, reloaded))

	saved, err := store.Get(ctx, "wf1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", saved.Name)
	assert.True(t, saved.UpdatedAt.After(saved.CreatedAt))

	require.NoError(t, store.Save(ctx, domain.Workflow{ID: "wf0"}))

	workflows, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, workflows, 2)
	assert.Equal(t, "wf0", workflows[0].ID)
	assert.Equal(t, "wf1", workflows[1].ID)

	assert.ErrorIs(t, store.Save(ctx, domain.Workflow{}), domain.ErrInvalidWorkflow)
}

func TestStore_ExecutionLifecycle(t *testing.T) {
	ctx := context.Background()
	store, mockClock := newTestStore(t)
	executions := store.ExecutionStore()

	id, err := executions.Create(ctx, domain.CreateExecutionParams{
		WorkflowID:   "wf1",
		WorkflowName: "Daily digest",
		Input:        map[string]any{"topic": "go"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	execution, err := executions.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusProcessing, execution.Status)
	assert.Equal(t, 0, execution.Nodes.Len())
	require.Len(t, execution.History, 1)

	mockClock.Add(time.Minute)

	outputs := domain.NewNodeOutputs()
	outputs.Set("t", domain.NewNodeResult(domain.NodeTypeTrigger, "hello"))

	paused := domain.ExecutionStatusPaused
	current := "h"

	require.NoError(t, executions.Update(ctx, id, domain.ExecutionUpdate{
		Status:      &paused,
		CurrentNode: &current,
		Nodes:       outputs,
		AppendHistory: []domain.StatusEntry{
			{Status: "paused", Message: "Waiting for human input", NodeID: "h"},
		},
	}))

	outputs.Set("late", domain.NewNodeResult(domain.NodeTypeOutput, "not persisted"))

	execution, err = executions.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusPaused, execution.Status)
	assert.Equal(t, "h", execution.CurrentNode)
	assert.Equal(t, []string{"t"}, execution.Nodes.Keys())
	assert.Len(t, execution.History, 2)
	assert.Equal(t, mockClock.Now(), execution.UpdatedAt)

	err = executions.Update(ctx, "missing", domain.ExecutionUpdate{})
	assert.ErrorIs(t, err, domain.ErrExecutionNotFound)

	_, err = executions.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrExecutionNotFound)
}

func TestStore_ScheduledExecution(t *testing.T) {
	ctx := context.Background()
	store, mockClock := newTestStore(t)

	at := mockClock.Now().Add(2 * time.Hour)

	id, err := store.ExecutionStore().Create(ctx, domain.CreateExecutionParams{
		WorkflowID:  "wf1",
		Status:      domain.ExecutionStatusScheduled,
		ScheduledAt: &at,
	})
	require.NoError(t, err)

	execution, err := store.ExecutionStore().Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusScheduled, execution.Status)
	require.NotNil(t, execution.ScheduledAt)
	assert.Equal(t, at, *execution.ScheduledAt)
}

func TestStore_TryAcquire(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	acquired, err := store.TryAcquire(ctx, "feed:exec1", time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)

	acquired, err = store.TryAcquire(ctx, "feed:exec1", time.Minute)
	require.NoError(t, err)
	assert.False(t, acquired)

	acquired, err = store.TryAcquire(ctx, "feed:exec2", time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)

	acquired, err = store.TryAcquire(ctx, "short", 20*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, acquired)

	time.Sleep(60 * time.Millisecond)

	acquired, err = store.TryAcquire(ctx, "short", 20*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, acquired, "expired locks can be taken again")
}

func TestStore_OutputsAndUsage(t *testing.T) {
	ctx := context.Background()
	store, mockClock := newTestStore(t)

	id, err := store.SaveOutput(ctx, domain.SavedOutput{WorkflowID: "wf1", NodeID: "out", Content: "first"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, err = store.SaveOutput(ctx, domain.SavedOutput{WorkflowID: "wf2", NodeID: "out", Content: "other"})
	require.NoError(t, err)

	outputs, err := store.ListOutputs(ctx, "wf1")
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, "first", outputs[0].Content)
	assert.Equal(t, mockClock.Now(), outputs[0].CreatedAt)

	require.NoError(t, store.RecordUsage(ctx, domain.UsageRecord{WorkflowID: "wf1", Provider: "openai", PromptTokens: 10}))

	usage, err := store.ListUsage(ctx, "wf1")
	require.NoError(t, err)
	require.Len(t, usage, 1)
	assert.Equal(t, 10, usage[0].PromptTokens)
}
