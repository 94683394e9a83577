package executor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/flowbaker/autoflow/pkg/domain"
	"github.com/flowbaker/autoflow/pkg/expressions"
	"github.com/flowbaker/autoflow/pkg/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scheduledTask struct {
	At      time.Time
	Task    domain.TaskName
	Payload map[string]any
}

type fakeScheduler struct {
	mu       sync.Mutex
	tasks    []scheduledTask
	handlers map[domain.TaskName]domain.TaskHandler
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{handlers: map[domain.TaskName]domain.TaskHandler{}}
}

func (s *fakeScheduler) ScheduleAt(ctx context.Context, at time.Time, task domain.TaskName, payload map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks = append(s.tasks, scheduledTask{At: at, Task: task, Payload: payload})

	return "task-1", nil
}

func (s *fakeScheduler) RegisterHandler(task domain.TaskName, handler domain.TaskHandler) {
	s.handlers[task] = handler
}

type serviceFixture struct {
	service   WorkflowExecutorService
	store     *memory.Store
	scheduler *fakeScheduler
	selector  domain.ExecutorSelector
	clock     *clock.Mock
}

func newServiceFixture(t *testing.T, workflows ...domain.Workflow) serviceFixture {
	t.Helper()

	mockClock := clock.NewMock()
	mockClock.Set(time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC))

	store := memory.New(memory.StoreOpts{Clock: mockClock})
	t.Cleanup(func() { _ = store.Close() })

	for _, workflow := range workflows {
		require.NoError(t, store.Save(context.Background(), workflow))
	}

	scheduler := newFakeScheduler()
	selector := newTestSelector()

	service := NewWorkflowExecutorService(WorkflowExecutorServiceDependencies{
		WorkflowStore:  store,
		ExecutionStore: store.ExecutionStore(),
		Selector:       selector,
		Resolver:       expressions.NewTemplateResolver(expressions.TemplateResolverOptions{Clock: mockClock}),
		Scheduler:      scheduler,
		Clock:          mockClock,
	})

	service.RegisterTaskHandlers(scheduler)

	return serviceFixture{
		service:   service,
		store:     store,
		scheduler: scheduler,
		selector:  selector,
		clock:     mockClock,
	}
}

func simpleWorkflow(id string, status domain.WorkflowActivationStatus, trigger map[string]any) domain.Workflow {
	return domain.Workflow{
		ID:     id,
		Name:   "Workflow " + id,
		Status: status,
		Nodes: []domain.Node{
			node("t", domain.NodeTypeTrigger, trigger),
			node("out", domain.NodeTypeOutput, nil),
		},
		Edges: []domain.Edge{edge("t", "out", "")},
	}
}

func TestWorkflowExecutorService_Execute(t *testing.T) {
	ctx := context.Background()
	workflow := simpleWorkflow("wf1", domain.WorkflowActivationStatusInactive, map[string]any{"triggerType": "manual"})
	fixture := newServiceFixture(t, workflow)

	result, err := fixture.service.Execute(ctx, ExecuteParams{WorkflowID: "wf1", Input: "hello"})
	require.NoError(t, err, "manual runs are allowed on inactive workflows")

	assert.Equal(t, domain.ExecutionStatusCompleted, result.Status)

	out, ok := result.Outputs.Get("out")
	require.True(t, ok)
	assert.Equal(t, "hello", out.Content)

	execution, err := fixture.service.GetExecution(ctx, result.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusCompleted, execution.Status)
	assert.Equal(t, "", execution.CurrentNode)
	assert.Equal(t, []string{"t", "out"}, execution.Nodes.Keys())
	assert.Equal(t, "hello", execution.InputData)

	var statuses []string
	for _, entry := range execution.History {
		statuses = append(statuses, entry.Status)
	}
	assert.Equal(t, []string{"processing", "processing", "node_completed", "node_completed", "completed"}, statuses)

	saved, err := fixture.store.Get(ctx, "wf1")
	require.NoError(t, err)

	outNode, ok := saved.GetNodeByID("out")
	require.True(t, ok)
	assert.Equal(t, "hello", outNode.Data["output"])
	assert.Equal(t, true, outNode.Data["executed"])
	assert.Equal(t, "2024-06-01T09:00:00Z", outNode.Data["lastExecuted"])
}

func TestWorkflowExecutorService_ExecuteErrors(t *testing.T) {
	ctx := context.Background()

	cyclic := domain.Workflow{
		ID:     "cyclic",
		Status: domain.WorkflowActivationStatusActive,
		Nodes: []domain.Node{
			node("a", domain.NodeTypeAIModel, nil),
			node("b", domain.NodeTypeAIModel, nil),
		},
		Edges: []domain.Edge{edge("a", "b", ""), edge("b", "a", "")},
	}

	invalid := domain.Workflow{
		ID:     "invalid",
		Status: domain.WorkflowActivationStatusActive,
		Nodes:  []domain.Node{node("a", domain.NodeTypeAIModel, nil)},
		Edges:  []domain.Edge{edge("a", "ghost", "")},
	}

	inactive := simpleWorkflow("inactive", domain.WorkflowActivationStatusInactive, nil)

	fixture := newServiceFixture(t, cyclic, invalid, inactive)

	tests := []struct {
		name     string
		params   ExecuteParams
		expected []error
	}{
		{name: "cycle", params: ExecuteParams{WorkflowID: "cyclic"}, expected: []error{domain.ErrCycleDetected, domain.ErrInvalidWorkflow}},
		{name: "dangling edge", params: ExecuteParams{WorkflowID: "invalid"}, expected: []error{domain.ErrInvalidWorkflow}},
		{name: "missing workflow", params: ExecuteParams{WorkflowID: "ghost"}, expected: []error{domain.ErrWorkflowNotFound}},
		{name: "inactive chain run", params: ExecuteParams{WorkflowID: "inactive", Source: domain.TriggerSourceChain}, expected: []error{domain.ErrWorkflowInactive}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fixture.service.Execute(ctx, tt.params)
			require.Error(t, err)

			for _, expected := range tt.expected {
				assert.ErrorIs(t, err, expected)
			}
		})
	}
}

func TestWorkflowExecutorService_PauseResume(t *testing.T) {
	ctx := context.Background()
	fixture := newServiceFixture(t, humanApprovalWorkflow())

	paused, err := fixture.service.Execute(ctx, ExecuteParams{WorkflowID: "approval"})
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusPaused, paused.Status)
	assert.Equal(t, "h", paused.PausedAt)

	execution, err := fixture.service.GetExecution(ctx, paused.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusPaused, execution.Status)
	assert.Equal(t, "h", execution.CurrentNode)
	assert.Equal(t, []string{"t", "h"}, execution.Nodes.Keys())

	_, err = fixture.service.Resume(ctx, ResumeParams{ExecutionID: paused.ExecutionID, HumanAction: "maybe"})
	assert.ErrorIs(t, err, domain.ErrExecutionNotResumable)

	resumed, err := fixture.service.Resume(ctx, ResumeParams{
		ExecutionID: paused.ExecutionID,
		HumanAction: domain.HumanActionApprove,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.ExecutionStatusCompleted, resumed.Status)
	assert.Equal(t, paused.ExecutionID, resumed.ExecutionID)

	a, ok := resumed.Outputs.Get("a")
	require.True(t, ok)
	assert.Equal(t, "approved: draft", a.Content)
	assert.False(t, resumed.Outputs.Has("b"))

	_, err = fixture.service.Resume(ctx, ResumeParams{ExecutionID: paused.ExecutionID})
	assert.ErrorIs(t, err, domain.ErrExecutionNotResumable, "completed executions cannot be resumed")
}

func TestWorkflowExecutorService_ResumeKeepsEarlierBranchDecisions(t *testing.T) {
	ctx := context.Background()

	gated := domain.Workflow{
		ID: "gated",
		Nodes: []domain.Node{
			node("t", domain.NodeTypeTrigger, map[string]any{"text": "draft"}),
			node("c", domain.NodeTypeCondition, map[string]any{"result": true}),
			node("hi", domain.NodeTypeHumanInput, nil),
			node("a", domain.NodeTypeOutput, map[string]any{"text": "approved"}),
			node("f", domain.NodeTypeOutput, map[string]any{"text": "condition was false"}),
		},
		Edges: []domain.Edge{
			edge("t", "c", ""),
			edge("c", "hi", domain.HandleTrue),
			edge("hi", "a", domain.HandleApprove),
			edge("c", "f", domain.HandleFalse),
		},
	}

	twoStep := domain.Workflow{
		ID: "two-step",
		Nodes: []domain.Node{
			node("t", domain.NodeTypeTrigger, map[string]any{"text": "draft"}),
			node("h1", domain.NodeTypeHumanInput, nil),
			node("h2", domain.NodeTypeHumanInput, nil),
			node("r1", domain.NodeTypeOutput, map[string]any{"text": "first review reverted"}),
			node("done", domain.NodeTypeOutput, map[string]any{"text": "published"}),
		},
		Edges: []domain.Edge{
			edge("t", "h1", ""),
			edge("h1", "h2", domain.HandleApprove),
			edge("h1", "r1", domain.HandleRevert),
			edge("h2", "done", domain.HandleApprove),
		},
	}

	fixture := newServiceFixture(t, gated, twoStep)

	tests := []struct {
		name       string
		workflowID string
		pauses     int
		executed   []string
		skipped    []string
	}{
		{name: "condition before the paused node", workflowID: "gated", pauses: 1, executed: []string{"a"}, skipped: []string{"f"}},
		{name: "earlier approval before the paused node", workflowID: "two-step", pauses: 2, executed: []string{"h2", "done"}, skipped: []string{"r1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := fixture.service.Execute(ctx, ExecuteParams{WorkflowID: tt.workflowID})
			require.NoError(t, err)

			for i := 0; i < tt.pauses; i++ {
				require.Equal(t, domain.ExecutionStatusPaused, result.Status)

				result, err = fixture.service.Resume(ctx, ResumeParams{
					ExecutionID: result.ExecutionID,
					HumanAction: domain.HumanActionApprove,
				})
				require.NoError(t, err)
			}

			assert.Equal(t, domain.ExecutionStatusCompleted, result.Status)

			for _, id := range tt.executed {
				assert.True(t, result.Outputs.Has(id), "expected %s to run", id)
			}

			for _, id := range tt.skipped {
				assert.False(t, result.Outputs.Has(id), "expected %s to stay skipped", id)
			}
		})
	}
}

func TestWorkflowExecutorService_ExecuteChatAction(t *testing.T) {
	ctx := context.Background()

	workflow := domain.Workflow{
		ID:     "chatflow",
		Status: domain.WorkflowActivationStatusInactive,
		Nodes: []domain.Node{
			node("t", domain.NodeTypeTrigger, nil),
			node("chat", domain.NodeTypeChat, map[string]any{"model": "gpt-4o", "systemPrompt": "be brief"}),
			node("x", domain.NodeTypeAIModel, map[string]any{"text": "mail [[email] from chat]"}),
			node("z", domain.NodeTypeOutput, map[string]any{"text": "other"}),
		},
		Edges: []domain.Edge{
			edge("t", "chat", ""),
			edge("chat", "x", "send_mail"),
			edge("chat", "z", "summarize"),
		},
	}

	fixture := newServiceFixture(t, workflow)

	result, err := fixture.service.ExecuteChatAction(ctx, ChatActionParams{
		WorkflowID:   "chatflow",
		ChatNodeID:   "chat",
		ActionID:     "send_mail",
		ActionParams: map[string]any{"email": "jane@example.com"},
	})
	require.NoError(t, err, "chat actions run on inactive workflows like manual runs")

	assert.Equal(t, []string{"chat", "x"}, result.Outputs.Keys())

	x, _ := result.Outputs.Get("x")
	assert.Equal(t, "mail jane@example.com", x.Content)

	_, err = fixture.service.ExecuteChatAction(ctx, ChatActionParams{WorkflowID: "chatflow", ChatNodeID: "chat", ActionID: "unknown"})
	assert.ErrorIs(t, err, domain.ErrInvalidWorkflow)

	_, err = fixture.service.ExecuteChatAction(ctx, ChatActionParams{WorkflowID: "chatflow", ChatNodeID: "x", ActionID: "send_mail"})
	assert.ErrorIs(t, err, domain.ErrInvalidWorkflow)
}

func TestWorkflowExecutorService_HandleWebhook(t *testing.T) {
	ctx := context.Background()

	fixture := newServiceFixture(t,
		simpleWorkflow("hook", domain.WorkflowActivationStatusActive, map[string]any{"triggerType": "webhook", "webhookKey": "s3cret"}),
		simpleWorkflow("form", domain.WorkflowActivationStatusActive, map[string]any{"triggerType": "gravityForms"}),
		simpleWorkflow("manual", domain.WorkflowActivationStatusActive, map[string]any{"triggerType": "manual"}),
		simpleWorkflow("off", domain.WorkflowActivationStatusInactive, map[string]any{"triggerType": "webhook"}),
	)

	tests := []struct {
		name        string
		params      WebhookParams
		expectedErr error
	}{
		{name: "matching key", params: WebhookParams{WorkflowID: "hook", Key: "s3cret", Payload: "ping"}},
		{name: "form trigger without key", params: WebhookParams{WorkflowID: "form", Payload: "ping"}},
		{name: "wrong key", params: WebhookParams{WorkflowID: "hook", Key: "nope"}, expectedErr: domain.ErrWebhookKeyMismatch},
		{name: "key prefix", params: WebhookParams{WorkflowID: "hook", Key: "s3cre"}, expectedErr: domain.ErrWebhookKeyMismatch},
		{name: "missing key", params: WebhookParams{WorkflowID: "hook"}, expectedErr: domain.ErrWebhookKeyMismatch},
		{name: "manual trigger", params: WebhookParams{WorkflowID: "manual"}, expectedErr: domain.ErrInvalidWorkflow},
		{name: "inactive workflow", params: WebhookParams{WorkflowID: "off"}, expectedErr: domain.ErrWorkflowInactive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := fixture.service.HandleWebhook(ctx, tt.params)

			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, domain.ExecutionStatusCompleted, result.Status)

			out, _ := result.Outputs.Get("out")
			assert.Equal(t, "ping", out.Content)
		})
	}
}

func TestWorkflowExecutorService_Terminate(t *testing.T) {
	ctx := context.Background()

	workflow := domain.Workflow{
		ID: "long",
		Nodes: []domain.Node{
			node("t", domain.NodeTypeTrigger, map[string]any{"text": "x"}),
			node("stop", domain.NodeTypeHumanInput, nil),
			node("after", domain.NodeTypeOutput, nil),
		},
		Edges: []domain.Edge{edge("t", "stop", ""), edge("stop", "after", "")},
	}

	fixture := newServiceFixture(t, workflow)

	fixture.selector.Register(domain.NodeTypeHumanInput, domain.NodeExecutorFunc(func(ctx context.Context, input domain.NodeInput) (domain.NodeResult, error) {
		err := fixture.service.Terminate(ctx, input.ExecutionContext.ExecutionID)
		return domain.NewNodeResult(domain.NodeTypeHumanInput, "terminated"), err
	}))

	result, err := fixture.service.Execute(ctx, ExecuteParams{WorkflowID: "long"})
	require.NoError(t, err)

	assert.Equal(t, domain.ExecutionStatusTerminated, result.Status)
	assert.False(t, result.Outputs.Has("after"))

	execution, err := fixture.service.GetExecution(ctx, result.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusTerminated, execution.Status)

	assert.ErrorIs(t, fixture.service.Terminate(ctx, result.ExecutionID), domain.ErrExecutionNotResumable)

	_, err = fixture.service.Resume(ctx, ResumeParams{ExecutionID: result.ExecutionID})
	assert.ErrorIs(t, err, domain.ErrExecutionTerminated)
}

func TestWorkflowExecutorService_PanicMarksExecutionAsError(t *testing.T) {
	ctx := context.Background()
	fixture := newServiceFixture(t, simpleWorkflow("boom", domain.WorkflowActivationStatusActive, nil))

	fixture.selector.Register(domain.NodeTypeOutput, domain.NodeExecutorFunc(func(ctx context.Context, input domain.NodeInput) (domain.NodeResult, error) {
		panic("corrupt document")
	}))

	result, err := fixture.service.Execute(ctx, ExecuteParams{WorkflowID: "boom", Input: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt document")
	assert.Equal(t, domain.ExecutionStatusError, result.Status)

	execution, err := fixture.service.GetExecution(ctx, result.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusError, execution.Status)
	assert.Contains(t, execution.Error, "corrupt document")
	assert.True(t, execution.Nodes.Has("t"), "partial outputs are kept")
}

func TestWorkflowExecutorService_ChainsDependentWorkflows(t *testing.T) {
	ctx := context.Background()

	source := simpleWorkflow("source", domain.WorkflowActivationStatusActive, nil)
	dependent := simpleWorkflow("dependent", domain.WorkflowActivationStatusActive, map[string]any{
		"triggerType":      "workflowOutput",
		"sourceWorkflowId": "source",
	})
	inactiveDependent := simpleWorkflow("sleeping", domain.WorkflowActivationStatusInactive, map[string]any{
		"triggerType":      "workflowOutput",
		"sourceWorkflowId": "source",
	})
	unrelated := simpleWorkflow("unrelated", domain.WorkflowActivationStatusActive, map[string]any{
		"triggerType":      "workflowOutput",
		"sourceWorkflowId": "other",
	})

	fixture := newServiceFixture(t, source, dependent, inactiveDependent, unrelated)

	result, err := fixture.service.Execute(ctx, ExecuteParams{WorkflowID: "source", Input: "report"})
	require.NoError(t, err)

	require.Len(t, fixture.scheduler.tasks, 1)

	task := fixture.scheduler.tasks[0]
	assert.Equal(t, domain.TaskExecuteWorkflow, task.Task)
	assert.Equal(t, fixture.clock.Now(), task.At)
	assert.Equal(t, "dependent", task.Payload["workflow_id"])
	assert.Equal(t, "chain", task.Payload["source"])

	input, ok := task.Payload["input"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "source", input["source_workflow_id"])
	assert.Equal(t, result.ExecutionID, input["source_execution_id"])
	assert.Equal(t, map[string]any{"t": "report", "out": "report"}, input["output"])

	handler := fixture.scheduler.handlers[domain.TaskExecuteWorkflow]
	require.NotNil(t, handler)
	require.NoError(t, handler(ctx, task.Payload))
}

func TestWorkflowExecutorService_ScheduleExecution(t *testing.T) {
	ctx := context.Background()
	fixture := newServiceFixture(t, simpleWorkflow("later", domain.WorkflowActivationStatusActive, nil))

	at := fixture.clock.Now().Add(time.Hour)

	executionID, err := fixture.service.ScheduleExecution(ctx, ScheduleExecutionParams{
		WorkflowID: "later",
		Input:      "queued input",
		At:         at,
	})
	require.NoError(t, err)

	execution, err := fixture.service.GetExecution(ctx, executionID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusScheduled, execution.Status)

	require.Len(t, fixture.scheduler.tasks, 1)
	task := fixture.scheduler.tasks[0]
	assert.Equal(t, domain.TaskRunScheduledExecution, task.Task)
	assert.Equal(t, at, task.At)

	handler := fixture.scheduler.handlers[domain.TaskRunScheduledExecution]
	require.NotNil(t, handler)
	require.NoError(t, handler(ctx, task.Payload))

	execution, err = fixture.service.GetExecution(ctx, executionID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusCompleted, execution.Status)

	out, ok := execution.Nodes.Get("out")
	require.True(t, ok)
	assert.Equal(t, "queued input", out.Content)

	assert.Error(t, handler(ctx, task.Payload), "a scheduled execution runs once")
}

func TestWorkflowExecutorService_ScheduleExecutionOnInactiveWorkflow(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name           string
		dropSource     bool
		expectedStatus domain.ExecutionStatus
		expectErr      bool
	}{
		{name: "manual run keeps its source", expectedStatus: domain.ExecutionStatusCompleted},
		{name: "schedule run on inactive workflow fails the record", dropSource: true, expectedStatus: domain.ExecutionStatusError, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fixture := newServiceFixture(t, simpleWorkflow("idle", domain.WorkflowActivationStatusInactive, nil))

			executionID, err := fixture.service.ScheduleExecution(ctx, ScheduleExecutionParams{
				WorkflowID: "idle",
				Input:      "later",
				At:         fixture.clock.Now().Add(time.Minute),
			})
			require.NoError(t, err)

			require.Len(t, fixture.scheduler.tasks, 1)
			payload := fixture.scheduler.tasks[0].Payload
			assert.Equal(t, "manual", payload["source"])

			if tt.dropSource {
				delete(payload, "source")
			}

			err = fixture.scheduler.handlers[domain.TaskRunScheduledExecution](ctx, payload)
			if tt.expectErr {
				assert.ErrorIs(t, err, domain.ErrWorkflowInactive)
			} else {
				require.NoError(t, err)
			}

			execution, err := fixture.service.GetExecution(ctx, executionID)
			require.NoError(t, err)
			assert.Equal(t, tt.expectedStatus, execution.Status)
		})
	}
}
