package executor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/flowbaker/autoflow/pkg/domain"
	"github.com/flowbaker/autoflow/pkg/domain/graph"
	"github.com/flowbaker/autoflow/pkg/expressions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func node(id string, nodeType domain.NodeType, data map[string]any) domain.Node {
	if data == nil {
		data = map[string]any{}
	}

	return domain.Node{ID: id, Type: nodeType, Data: data}
}

func edge(source, target, handle string) domain.Edge {
	return domain.Edge{
		ID:           fmt.Sprintf("%s-%s-%s", source, handle, target),
		Source:       source,
		Target:       target,
		SourceHandle: handle,
	}
}

// echoExecutor returns the resolved "text" field, or the combined upstream
// content when the field is empty.
func echoExecutor(nodeType domain.NodeType) domain.NodeExecutor {
	return domain.NodeExecutorFunc(func(ctx context.Context, input domain.NodeInput) (domain.NodeResult, error) {
		text := input.ResolveString("text")
		if text == "" {
			text = input.CombinedInput("|")
		}

		return domain.NewNodeResult(nodeType, text), nil
	})
}

func newTestSelector() domain.ExecutorSelector {
	selector := domain.NewExecutorSelector()

	selector.Register(domain.NodeTypeTrigger, domain.NodeExecutorFunc(func(ctx context.Context, input domain.NodeInput) (domain.NodeResult, error) {
		if input.ExecutionContext.TriggerPayload != nil {
			return domain.NewNodeResult(domain.NodeTypeTrigger, input.ExecutionContext.TriggerPayload), nil
		}

		return domain.NewNodeResult(domain.NodeTypeTrigger, input.Node.String("text")), nil
	}))

	selector.Register(domain.NodeTypeAIModel, echoExecutor(domain.NodeTypeAIModel))
	selector.Register(domain.NodeTypeOutput, echoExecutor(domain.NodeTypeOutput))

	selector.Register(domain.NodeTypeCondition, domain.NodeExecutorFunc(func(ctx context.Context, input domain.NodeInput) (domain.NodeResult, error) {
		result := domain.NewNodeResult(domain.NodeTypeCondition, input.Node.Bool("result"))

		if first, ok := input.FirstInput(); ok {
			upstream := first.Result
			result.Input = &upstream
		}

		return result, nil
	}))

	selector.Register(domain.NodeTypeHumanInput, domain.NodeExecutorFunc(func(ctx context.Context, input domain.NodeInput) (domain.NodeResult, error) {
		return domain.NodeResult{
			Type:    string(domain.NodeTypeHumanInput),
			Content: map[string]any{"instructions": input.Node.String("instructions")},
			Status:  domain.NodeResultStatusPending,
		}, nil
	}))

	return selector
}

type recordingHandler struct {
	events []ExecutionEvent
}

func (h *recordingHandler) HandleEvent(ctx context.Context, event ExecutionEvent) error {
	h.events = append(h.events, event)
	return nil
}

func (h *recordingHandler) types() []ExecutionEventType {
	types := make([]ExecutionEventType, 0, len(h.events))
	for _, event := range h.events {
		types = append(types, event.GetEventType())
	}

	return types
}

func runWorkflow(t *testing.T, workflow domain.Workflow, selector domain.ExecutorSelector, options WorkflowExecutorOptions, state RunState) (RunResult, *recordingHandler, error) {
	t.Helper()

	sorted, err := graph.TopologicalSort(workflow.Nodes, workflow.Edges)
	require.NoError(t, err)

	handler := &recordingHandler{}
	observer := NewExecutionObserver()
	observer.Subscribe(handler)

	workflowExecutor := NewWorkflowExecutor(WorkflowExecutorDeps{
		Workflow:    workflow,
		SortedNodes: sorted,
		Selector:    selector,
		Resolver:    expressions.NewTemplateResolver(expressions.DefaultTemplateResolverOptions()),
		Observer:    observer,
		Clock:       clock.NewMock(),
		Options:     options,
	})

	result, err := workflowExecutor.Run(context.Background(), state)

	return result, handler, err
}

func diamondWorkflow(conditionResult bool) domain.Workflow {
	return domain.Workflow{
		ID: "diamond",
		Nodes: []domain.Node{
			node("t", domain.NodeTypeTrigger, map[string]any{"text": "start"}),
			node("c", domain.NodeTypeCondition, map[string]any{"result": conditionResult}),
			node("yes", domain.NodeTypeAIModel, map[string]any{"text": "took yes"}),
			node("no", domain.NodeTypeAIModel, map[string]any{"text": "took no"}),
			node("join", domain.NodeTypeOutput, nil),
		},
		Edges: []domain.Edge{
			edge("t", "c", ""),
			edge("c", "yes", domain.HandleTrue),
			edge("c", "no", domain.HandleFalse),
			edge("yes", "join", ""),
			edge("no", "join", ""),
		},
	}
}

func TestWorkflowExecutor_LinearRun(t *testing.T) {
	workflow := domain.Workflow{
		ID: "linear",
		Nodes: []domain.Node{
			node("out", domain.NodeTypeOutput, map[string]any{"text": "Final: [Input from ai]"}),
			node("note", domain.NodeTypeStickyNote, nil),
			node("ai", domain.NodeTypeAIModel, map[string]any{"text": "Summarize [Input from t]"}),
			node("t", domain.NodeTypeTrigger, map[string]any{"text": "go news"}),
		},
		Edges: []domain.Edge{
			edge("t", "ai", ""),
			edge("ai", "out", ""),
		},
	}

	result, handler, err := runWorkflow(t, workflow, newTestSelector(), WorkflowExecutorOptions{}, NewRunState(nil, RunMode{}))
	require.NoError(t, err)

	assert.Equal(t, RunStatusCompleted, result.Status)
	assert.Equal(t, []string{"t", "ai", "out"}, result.Outputs.Keys())

	out, ok := result.Outputs.Get("out")
	require.True(t, ok)
	assert.Equal(t, "Final: Summarize go news", out.Content)
	assert.Equal(t, "output", out.Type)

	assert.False(t, result.Outputs.Has("note"), "annotation nodes never run")

	assert.Equal(t, []ExecutionEventType{
		ExecutionEventTypeNodeExecutionStarted,
		ExecutionEventTypeNodeExecutionCompleted,
		ExecutionEventTypeNodeExecutionStarted,
		ExecutionEventTypeNodeExecutionCompleted,
		ExecutionEventTypeNodeExecutionStarted,
		ExecutionEventTypeNodeExecutionCompleted,
		ExecutionEventTypeWorkflowExecutionCompleted,
	}, handler.types())
}

func TestWorkflowExecutor_ConditionPruning(t *testing.T) {
	tests := []struct {
		name          string
		condition     bool
		options       WorkflowExecutorOptions
		expectedRun   []string
		expectedNoRun []string
	}{
		{
			name:          "true branch skips false branch but runs the rejoin node",
			condition:     true,
			expectedRun:   []string{"t", "c", "yes", "join"},
			expectedNoRun: []string{"no"},
		},
		{
			name:          "false branch skips true branch but runs the rejoin node",
			condition:     false,
			expectedRun:   []string{"t", "c", "no", "join"},
			expectedNoRun: []string{"yes"},
		},
		{
			name:          "reconverging nodes skipped when configured",
			condition:     true,
			options:       WorkflowExecutorOptions{SkipReconvergingNodes: true},
			expectedRun:   []string{"t", "c", "yes"},
			expectedNoRun: []string{"no", "join"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, _, err := runWorkflow(t, diamondWorkflow(tt.condition), newTestSelector(), tt.options, NewRunState(nil, RunMode{}))
			require.NoError(t, err)
			assert.Equal(t, RunStatusCompleted, result.Status)

			for _, id := range tt.expectedRun {
				assert.True(t, result.Outputs.Has(id), "expected %s to run", id)
			}

			for _, id := range tt.expectedNoRun {
				assert.False(t, result.Outputs.Has(id), "expected %s to be skipped", id)
			}
		})
	}
}

func TestWorkflowExecutor_ConditionKeepsExclusiveBranch(t *testing.T) {
	workflow := domain.Workflow{
		ID: "branches",
		Nodes: []domain.Node{
			node("t", domain.NodeTypeTrigger, map[string]any{"text": "x"}),
			node("c", domain.NodeTypeCondition, map[string]any{"result": true}),
			node("t1", domain.NodeTypeAIModel, map[string]any{"text": "one"}),
			node("t2", domain.NodeTypeAIModel, map[string]any{"text": "two"}),
			node("f1", domain.NodeTypeAIModel, map[string]any{"text": "nope"}),
		},
		Edges: []domain.Edge{
			edge("t", "c", ""),
			edge("c", "t1", domain.HandleTrue),
			edge("t1", "t2", ""),
			edge("c", "f1", domain.HandleFalse),
		},
	}

	result, _, err := runWorkflow(t, workflow, newTestSelector(), WorkflowExecutorOptions{}, NewRunState(nil, RunMode{}))
	require.NoError(t, err)

	assert.Equal(t, []string{"t", "c", "t1", "t2"}, filterKeys(result.Outputs, "t", "c", "t1", "t2", "f1"))

	condition, ok := result.Outputs.Get("c")
	require.True(t, ok)
	assert.Equal(t, true, condition.Content)
	require.NotNil(t, condition.Input)
	assert.Equal(t, "x", condition.Input.Content)
}

func TestWorkflowExecutor_FailedConditionTakesFalseBranch(t *testing.T) {
	selector := newTestSelector()
	selector.Register(domain.NodeTypeCondition, domain.NodeExecutorFunc(func(ctx context.Context, input domain.NodeInput) (domain.NodeResult, error) {
		return domain.NodeResult{}, errors.New("Condition node has no rules")
	}))

	workflow := domain.Workflow{
		ID: "failing-condition",
		Nodes: []domain.Node{
			node("t", domain.NodeTypeTrigger, map[string]any{"text": "x"}),
			node("c", domain.NodeTypeCondition, nil),
			node("yes", domain.NodeTypeAIModel, map[string]any{"text": "yes"}),
			node("no", domain.NodeTypeAIModel, map[string]any{"text": "no"}),
		},
		Edges: []domain.Edge{
			edge("t", "c", ""),
			edge("c", "yes", domain.HandleTrue),
			edge("c", "no", domain.HandleFalse),
		},
	}

	result, _, err := runWorkflow(t, workflow, selector, WorkflowExecutorOptions{}, NewRunState(nil, RunMode{}))
	require.NoError(t, err)

	condition, ok := result.Outputs.Get("c")
	require.True(t, ok)
	assert.True(t, condition.IsError())

	assert.Equal(t, []string{"t", "c", "no"}, filterKeys(result.Outputs, "t", "c", "yes", "no"))
}

func filterKeys(outputs *domain.NodeOutputs, ids ...string) []string {
	var present []string
	for _, id := range ids {
		if outputs.Has(id) {
			present = append(present, id)
		}
	}

	return present
}

func TestWorkflowExecutor_ErrorResultsDoNotStopTheRun(t *testing.T) {
	selector := newTestSelector()
	selector.Register(domain.NodeTypeAIModel, domain.NodeExecutorFunc(func(ctx context.Context, input domain.NodeInput) (domain.NodeResult, error) {
		return domain.NodeResult{}, errors.New("OpenAI request failed: 401")
	}))

	workflow := domain.Workflow{
		ID: "errors",
		Nodes: []domain.Node{
			node("t", domain.NodeTypeTrigger, map[string]any{"text": "topic"}),
			node("ai", domain.NodeTypeAIModel, nil),
			node("mystery", domain.NodeType("mystery"), nil),
			node("out", domain.NodeTypeOutput, map[string]any{"text": "Got: [Input from ai] / [Input from mystery]"}),
		},
		Edges: []domain.Edge{
			edge("t", "ai", ""),
			edge("ai", "mystery", ""),
			edge("mystery", "out", ""),
		},
	}

	result, handler, err := runWorkflow(t, workflow, selector, WorkflowExecutorOptions{}, NewRunState(nil, RunMode{}))
	require.NoError(t, err)
	assert.Equal(t, RunStatusCompleted, result.Status)

	ai, _ := result.Outputs.Get("ai")
	assert.True(t, ai.IsError())
	assert.Equal(t, "OpenAI request failed: 401", ai.Content)

	mystery, _ := result.Outputs.Get("mystery")
	assert.True(t, mystery.IsError())
	assert.Equal(t, "Unknown node type: mystery", mystery.Content)

	out, _ := result.Outputs.Get("out")
	assert.Equal(t, "Got: OpenAI request failed: 401 / Unknown node type: mystery", out.Content)

	assert.Contains(t, handler.types(), ExecutionEventTypeNodeExecutionFailed)
}

func TestWorkflowExecutor_CancelledContextAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	selector := newTestSelector()
	selector.Register(domain.NodeTypeAIModel, domain.NodeExecutorFunc(func(ctx context.Context, input domain.NodeInput) (domain.NodeResult, error) {
		cancel()
		return domain.NodeResult{}, ctx.Err()
	}))

	workflow := domain.Workflow{
		ID: "cancel",
		Nodes: []domain.Node{
			node("t", domain.NodeTypeTrigger, nil),
			node("ai", domain.NodeTypeAIModel, nil),
			node("out", domain.NodeTypeOutput, nil),
		},
		Edges: []domain.Edge{edge("t", "ai", ""), edge("ai", "out", "")},
	}

	sorted, err := graph.TopologicalSort(workflow.Nodes, workflow.Edges)
	require.NoError(t, err)

	workflowExecutor := NewWorkflowExecutor(WorkflowExecutorDeps{
		Workflow:    workflow,
		SortedNodes: sorted,
		Selector:    selector,
		Clock:       clock.NewMock(),
	})

	result, err := workflowExecutor.Run(ctx, NewRunState(nil, RunMode{}))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, result.Outputs.Has("out"))
}

func humanApprovalWorkflow() domain.Workflow {
	return domain.Workflow{
		ID:     "approval",
		Name:   "Approval",
		Status: domain.WorkflowActivationStatusActive,
		Nodes: []domain.Node{
			node("t", domain.NodeTypeTrigger, map[string]any{"text": "draft"}),
			node("h", domain.NodeTypeHumanInput, map[string]any{"instructions": "Review the draft"}),
			node("a", domain.NodeTypeOutput, map[string]any{"text": "approved: [Input from t]"}),
			node("b", domain.NodeTypeOutput, map[string]any{"text": "reverted"}),
		},
		Edges: []domain.Edge{
			edge("t", "h", ""),
			edge("h", "a", domain.HandleApprove),
			edge("h", "b", domain.HandleRevert),
		},
	}
}

func TestWorkflowExecutor_PauseAndResume(t *testing.T) {
	workflow := humanApprovalWorkflow()

	paused, handler, err := runWorkflow(t, workflow, newTestSelector(), WorkflowExecutorOptions{}, NewRunState(nil, RunMode{}))
	require.NoError(t, err)

	assert.Equal(t, RunStatusPaused, paused.Status)
	assert.Equal(t, "h", paused.PausedAt)
	assert.Equal(t, []string{"t", "h"}, paused.Outputs.Keys())
	assert.Equal(t, ExecutionEventTypeWorkflowExecutionPaused, handler.types()[len(handler.events)-1])

	tests := []struct {
		name     string
		action   domain.HumanAction
		executed string
		skipped  string
	}{
		{name: "approve", action: domain.HumanActionApprove, executed: "a", skipped: "b"},
		{name: "revert", action: domain.HumanActionRevert, executed: "b", skipped: "a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := NewRunState(paused.Outputs.Clone(), RunMode{
				ResumeFromNode: "h",
				HumanAction:    tt.action,
				HumanInput:     "looks good",
			})

			result, _, err := runWorkflow(t, workflow, newTestSelector(), WorkflowExecutorOptions{}, state)
			require.NoError(t, err)

			assert.Equal(t, RunStatusCompleted, result.Status)
			assert.True(t, result.Outputs.Has(tt.executed))
			assert.False(t, result.Outputs.Has(tt.skipped))

			decision, ok := result.Outputs.Get("h")
			require.True(t, ok)
			assert.False(t, decision.IsPending())
			assert.Equal(t, map[string]any{
				"action":  string(tt.action),
				"request": map[string]any{"instructions": "Review the draft"},
				"input":   "looks good",
			}, decision.Content)
		})
	}
}

func TestWorkflowExecutor_ActionMode(t *testing.T) {
	workflow := domain.Workflow{
		ID: "chat",
		Nodes: []domain.Node{
			node("t", domain.NodeTypeTrigger, map[string]any{"text": "never"}),
			node("chat", domain.NodeTypeChat, nil),
			node("x", domain.NodeTypeAIModel, map[string]any{"text": "mail [[email] from chat]"}),
			node("y", domain.NodeTypeOutput, nil),
			node("z", domain.NodeTypeOutput, map[string]any{"text": "other action"}),
		},
		Edges: []domain.Edge{
			edge("t", "chat", ""),
			edge("chat", "x", "send_mail"),
			edge("x", "y", ""),
			edge("chat", "z", "summarize"),
		},
	}

	outputs := domain.NewNodeOutputs()
	outputs.Set("chat", domain.NewNodeResult(domain.NodeTypeChat, map[string]any{
		"action_id":     "send_mail",
		"action_params": map[string]any{"email": "jane@example.com"},
	}))

	state := NewRunState(outputs, RunMode{
		ActionAllowList:    graph.DownstreamFromAll(workflow.Edges, []string{"x"}),
		ActionStartNodes:   graph.NewNodeSet("x"),
		SkipUntilStartNode: true,
	})

	result, _, err := runWorkflow(t, workflow, newTestSelector(), WorkflowExecutorOptions{}, state)
	require.NoError(t, err)

	assert.Equal(t, []string{"chat", "x", "y"}, result.Outputs.Keys())

	y, _ := result.Outputs.Get("y")
	assert.Equal(t, "mail jane@example.com", y.Content)
}

func TestWorkflowExecutor_NodeDelay(t *testing.T) {
	mockClock := clock.NewMock()

	workflow := domain.Workflow{
		ID: "delay",
		Nodes: []domain.Node{
			node("t", domain.NodeTypeTrigger, map[string]any{"text": "x"}),
			node("out", domain.NodeTypeOutput, nil),
		},
		Edges: []domain.Edge{edge("t", "out", "")},
	}

	sorted, err := graph.TopologicalSort(workflow.Nodes, workflow.Edges)
	require.NoError(t, err)

	workflowExecutor := NewWorkflowExecutor(WorkflowExecutorDeps{
		Workflow:    workflow,
		SortedNodes: sorted,
		Selector:    newTestSelector(),
		Clock:       mockClock,
		Options:     WorkflowExecutorOptions{NodeDelay: time.Second},
	})

	done := make(chan RunResult, 1)
	go func() {
		result, err := workflowExecutor.Run(context.Background(), NewRunState(nil, RunMode{}))
		assert.NoError(t, err)
		done <- result
	}()

	require.Eventually(t, func() bool {
		mockClock.Add(time.Second)
		return len(done) == 1
	}, time.Second, 5*time.Millisecond)

	result := <-done
	assert.Equal(t, RunStatusCompleted, result.Status)
	assert.Equal(t, 2, result.Outputs.Len())
}
