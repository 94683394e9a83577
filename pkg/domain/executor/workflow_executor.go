package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/flowbaker/autoflow/pkg/domain"
	"github.com/flowbaker/autoflow/pkg/domain/graph"
	"github.com/rs/zerolog/log"
)

// RunMode holds the control flow flags of one orchestration call.
type RunMode struct {
	// ResumeFromNode skips every node up to and including this one.
	ResumeFromNode string
	HumanAction    domain.HumanAction
	HumanInput     any

	// ActionAllowList restricts a chat action run to one sub-graph.
	ActionAllowList    graph.NodeSet
	ActionStartNodes   graph.NodeSet
	SkipUntilStartNode bool
}

func (m RunMode) IsActionMode() bool {
	return m.ActionAllowList != nil
}

func (m RunMode) IsResumeMode() bool {
	return m.ResumeFromNode != "" && !m.IsActionMode()
}

// RunState is threaded through the loop; each step returns the next state.
type RunState struct {
	Outputs *domain.NodeOutputs
	Skip    graph.NodeSet
	Mode    RunMode
}

func NewRunState(outputs *domain.NodeOutputs, mode RunMode) RunState {
	if outputs == nil {
		outputs = domain.NewNodeOutputs()
	}

	return RunState{
		Outputs: outputs,
		Skip:    graph.NodeSet{},
		Mode:    mode,
	}
}

type RunStatus string

const (
	RunStatusCompleted RunStatus = "completed"
	RunStatusPaused    RunStatus = "paused"
)

type RunResult struct {
	Status   RunStatus
	PausedAt string
	Outputs  *domain.NodeOutputs
}

type WorkflowExecutorOptions struct {
	NodeDelay time.Duration

	// SkipReconvergingNodes merges the whole untaken reach into the skip-set,
	// so nodes reachable from both branches of a condition are skipped too.
	SkipReconvergingNodes bool
}

type WorkflowExecutor struct {
	workflow         domain.Workflow
	sortedNodes      []domain.Node
	executionContext domain.ExecutionContext
	selector         domain.ExecutorSelector
	resolver         domain.TemplateResolver
	observer         *ExecutionObserver
	clock            clock.Clock
	options          WorkflowExecutorOptions
}

type WorkflowExecutorDeps struct {
	Workflow         domain.Workflow
	SortedNodes      []domain.Node
	ExecutionContext domain.ExecutionContext
	Selector         domain.ExecutorSelector
	Resolver         domain.TemplateResolver
	Observer         *ExecutionObserver
	Clock            clock.Clock
	Options          WorkflowExecutorOptions
}

func NewWorkflowExecutor(deps WorkflowExecutorDeps) *WorkflowExecutor {
	observer := deps.Observer
	if observer == nil {
		observer = NewExecutionObserver()
	}

	clk := deps.Clock
	if clk == nil {
		clk = clock.New()
	}

	return &WorkflowExecutor{
		workflow:         deps.Workflow,
		sortedNodes:      deps.SortedNodes,
		executionContext: deps.ExecutionContext,
		selector:         deps.Selector,
		resolver:         deps.Resolver,
		observer:         observer,
		clock:            clk,
		options:          deps.Options,
	}
}

// Run walks the sorted nodes once. It returns early with a paused result at
// the first node that reports a pending status.
func (w *WorkflowExecutor) Run(ctx context.Context, state RunState) (RunResult, error) {
	for _, node := range w.sortedNodes {
		if err := ctx.Err(); err != nil {
			return RunResult{Outputs: state.Outputs}, err
		}

		if node.IsAnnotation() {
			continue
		}

		if state.Mode.IsActionMode() && !state.Mode.ActionAllowList.Has(node.ID) {
			continue
		}

		if state.Mode.IsActionMode() && state.Mode.SkipUntilStartNode {
			if !state.Mode.ActionStartNodes.Has(node.ID) {
				continue
			}

			state.Mode.SkipUntilStartNode = false
		}

		err := w.observer.Notify(ctx, NodeExecutionStartedEvent{
			NodeID:    node.ID,
			NodeType:  node.Type,
			Outputs:   state.Outputs,
			Timestamp: w.clock.Now(),
		})
		if err != nil {
			return RunResult{Outputs: state.Outputs}, err
		}

		if state.Mode.IsResumeMode() {
			if node.ID != state.Mode.ResumeFromNode {
				state = w.replayBranchDecision(node, state)
				continue
			}

			state, err = w.applyHumanDecision(ctx, node, state)
			if err != nil {
				return RunResult{Outputs: state.Outputs}, err
			}

			state.Mode.ResumeFromNode = ""
			continue
		}

		if state.Skip.Has(node.ID) {
			log.Debug().Str("node_id", node.ID).Msg("Skipping node on untaken branch")
			continue
		}

		result, err := w.ExecuteNode(ctx, node, state)
		if err != nil {
			return RunResult{Outputs: state.Outputs}, err
		}

		state.Outputs.Set(node.ID, result.Result)

		if err := w.notifyNodeResult(ctx, node, result, state.Outputs); err != nil {
			return RunResult{Outputs: state.Outputs}, err
		}

		if node.Type == domain.NodeTypeCondition {
			state = w.pruneBranches(node, conditionPassed(result.Result), domain.HandleTrue, domain.HandleFalse, state)
		}

		if result.Result.IsPending() {
			err := w.observer.Notify(ctx, WorkflowExecutionPausedEvent{
				NodeID:    node.ID,
				Outputs:   state.Outputs,
				Timestamp: w.clock.Now(),
			})
			if err != nil {
				return RunResult{Outputs: state.Outputs}, err
			}

			return RunResult{
				Status:   RunStatusPaused,
				PausedAt: node.ID,
				Outputs:  state.Outputs,
			}, nil
		}

		if err := w.wait(ctx); err != nil {
			return RunResult{Outputs: state.Outputs}, err
		}
	}

	err := w.observer.Notify(ctx, WorkflowExecutionCompletedEvent{
		Outputs:   state.Outputs,
		Timestamp: w.clock.Now(),
	})
	if err != nil {
		return RunResult{Outputs: state.Outputs}, err
	}

	return RunResult{
		Status:  RunStatusCompleted,
		Outputs: state.Outputs,
	}, nil
}

type ExecuteNodeResult struct {
	Result    domain.NodeResult
	Err       error
	StartedAt time.Time
	EndedAt   time.Time
}

// ExecuteNode gathers the node's upstream results and dispatches it. Executor
// errors become error results; only a cancelled context aborts the run.
func (w *WorkflowExecutor) ExecuteNode(ctx context.Context, node domain.Node, state RunState) (ExecuteNodeResult, error) {
	startedAt := w.clock.Now()

	input := domain.NodeInput{
		Node:             node,
		Inputs:           w.collectInputs(node, state.Outputs),
		Outputs:          state.Outputs,
		ExecutionContext: w.executionContext,
		Resolver:         w.resolver,
	}

	nodeExecutor, err := w.selector.Select(node.Type)
	if err != nil {
		return w.HandleNodeExecutionError(ctx, HandleNodeExecutionErrorParams{
			Node:      node,
			Err:       domain.NewNodeError(node.ID, "Unknown node type: %s", node.Type),
			StartedAt: startedAt,
		})
	}

	result, err := nodeExecutor.Execute(ctx, input)
	if err != nil {
		return w.HandleNodeExecutionError(ctx, HandleNodeExecutionErrorParams{
			Node:      node,
			Err:       err,
			StartedAt: startedAt,
		})
	}

	if result.Type == "" {
		result.Type = string(node.Type)
	}

	var resultErr error
	if result.IsError() {
		resultErr = domain.NewNodeError(node.ID, "%s", result.ContentString())
	}

	return ExecuteNodeResult{
		Result:    result,
		Err:       resultErr,
		StartedAt: startedAt,
		EndedAt:   w.clock.Now(),
	}, nil
}

type HandleNodeExecutionErrorParams struct {
	Node      domain.Node
	Err       error
	StartedAt time.Time
}

// HandleNodeExecutionError turns a node failure into an error result so the
// run can continue.
func (w *WorkflowExecutor) HandleNodeExecutionError(ctx context.Context, p HandleNodeExecutionErrorParams) (ExecuteNodeResult, error) {
	if ctxErr := ctx.Err(); ctxErr != nil && (errors.Is(p.Err, context.Canceled) || errors.Is(p.Err, context.DeadlineExceeded)) {
		return ExecuteNodeResult{}, fmt.Errorf("node %s interrupted: %w", p.Node.ID, p.Err)
	}

	message := p.Err.Error()

	var nodeErr *domain.NodeError
	if errors.As(p.Err, &nodeErr) {
		message = nodeErr.Error()
	}

	return ExecuteNodeResult{
		Result:    domain.NewErrorResult(message),
		Err:       p.Err,
		StartedAt: p.StartedAt,
		EndedAt:   w.clock.Now(),
	}, nil
}

func (w *WorkflowExecutor) notifyNodeResult(ctx context.Context, node domain.Node, result ExecuteNodeResult, outputs *domain.NodeOutputs) error {
	if result.Err != nil {
		return w.observer.Notify(ctx, NodeExecutionFailedEvent{
			NodeID:    node.ID,
			NodeType:  node.Type,
			Error:     result.Err,
			Outputs:   outputs,
			Timestamp: result.EndedAt,
		})
	}

	return w.observer.Notify(ctx, NodeExecutionCompletedEvent{
		NodeID:    node.ID,
		NodeType:  node.Type,
		Result:    result.Result,
		Outputs:   outputs,
		StartedAt: result.StartedAt,
		EndedAt:   result.EndedAt,
	})
}

func (w *WorkflowExecutor) collectInputs(node domain.Node, outputs *domain.NodeOutputs) []domain.UpstreamResult {
	var inputs []domain.UpstreamResult

	for _, edge := range w.workflow.IncomingEdges(node.ID) {
		result, ok := outputs.Get(edge.Source)
		if !ok {
			continue
		}

		inputs = append(inputs, domain.UpstreamResult{
			NodeID:       edge.Source,
			SourceHandle: edge.SourceHandle,
			Result:       result,
		})
	}

	return inputs
}

// pruneBranches merges everything reachable from the untaken handle into the
// skip-set, minus what the taken handle also reaches. SkipReconvergingNodes
// drops the subtraction.
func (w *WorkflowExecutor) pruneBranches(node domain.Node, takeFirst bool, firstHandle, secondHandle string, state RunState) RunState {
	taken, untaken := firstHandle, secondHandle
	if !takeFirst {
		taken, untaken = secondHandle, firstHandle
	}

	skip := graph.Downstream(w.workflow.Edges, node.ID, untaken)

	if !w.options.SkipReconvergingNodes {
		skip = skip.Subtract(graph.Downstream(w.workflow.Edges, node.ID, taken))
	}

	log.Debug().
		Str("node_id", node.ID).
		Str("taken", taken).
		Int("skipped", len(skip)).
		Msg("Pruning untaken branch")

	state.Skip.Merge(skip)

	return state
}

// replayBranchDecision re-applies the pruning of a condition or an already
// decided humanInput that ran before the resume point.
func (w *WorkflowExecutor) replayBranchDecision(node domain.Node, state RunState) RunState {
	result, ok := state.Outputs.Get(node.ID)
	if !ok {
		return state
	}

	switch node.Type {
	case domain.NodeTypeCondition:
		return w.pruneBranches(node, conditionPassed(result), domain.HandleTrue, domain.HandleFalse, state)
	case domain.NodeTypeHumanInput:
		content, _ := result.Content.(map[string]any)
		action, _ := content["action"].(string)
		if action == "" {
			return state
		}

		return w.pruneBranches(node, domain.HumanAction(action) == domain.HumanActionApprove, domain.HandleApprove, domain.HandleRevert, state)
	}

	return state
}

// conditionPassed reports whether a condition result takes the true branch.
// Error results take the false branch.
func conditionPassed(result domain.NodeResult) bool {
	if result.IsError() {
		return false
	}

	return isTruthy(result.Content)
}

// applyHumanDecision completes a paused humanInput node with the decision it
// was resumed with and prunes the branch that was not chosen.
func (w *WorkflowExecutor) applyHumanDecision(ctx context.Context, node domain.Node, state RunState) (RunState, error) {
	if node.Type != domain.NodeTypeHumanInput || state.Mode.HumanAction == "" {
		return state, nil
	}

	approved := state.Mode.HumanAction == domain.HumanActionApprove
	state = w.pruneBranches(node, approved, domain.HandleApprove, domain.HandleRevert, state)

	content := map[string]any{
		"action": string(state.Mode.HumanAction),
	}

	if previous, ok := state.Outputs.Get(node.ID); ok {
		content["request"] = previous.Content
	}

	if state.Mode.HumanInput != nil {
		content["input"] = state.Mode.HumanInput
	}

	now := w.clock.Now()
	result := domain.NewNodeResult(domain.NodeTypeHumanInput, content)
	state.Outputs.Set(node.ID, result)

	err := w.observer.Notify(ctx, NodeExecutionCompletedEvent{
		NodeID:    node.ID,
		NodeType:  node.Type,
		Result:    result,
		Outputs:   state.Outputs,
		StartedAt: now,
		EndedAt:   now,
	})

	return state, err
}

func (w *WorkflowExecutor) wait(ctx context.Context) error {
	if w.options.NodeDelay <= 0 {
		return nil
	}

	timer := w.clock.Timer(w.options.NodeDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isTruthy(content any) bool {
	switch v := content.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != "" && v != "0" && v != "false"
	case float64:
		return v != 0
	case int:
		return v != 0
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	}

	return true
}
