package executor

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/flowbaker/autoflow/pkg/domain"
	"github.com/flowbaker/autoflow/pkg/domain/graph"
	"github.com/rs/zerolog/log"
)

type WorkflowExecutorService interface {
	Execute(ctx context.Context, params ExecuteParams) (ExecutionResult, error)
	Start(ctx context.Context, params ExecuteParams) (string, error)
	Resume(ctx context.Context, params ResumeParams) (ExecutionResult, error)
	ExecuteChatAction(ctx context.Context, params ChatActionParams) (ExecutionResult, error)
	HandleWebhook(ctx context.Context, params WebhookParams) (ExecutionResult, error)
	ScheduleExecution(ctx context.Context, params ScheduleExecutionParams) (string, error)
	Terminate(ctx context.Context, executionID string) error
	GetExecution(ctx context.Context, executionID string) (domain.Execution, error)
	RegisterTaskHandlers(registry domain.TaskRegistry)
}

type ExecuteParams struct {
	WorkflowID string
	Input      any
	Source     domain.TriggerSource

	// ExecutionID starts a previously scheduled execution instead of
	// creating a new record.
	ExecutionID string
}

type ResumeParams struct {
	ExecutionID string
	NodeID      string
	HumanAction domain.HumanAction
	HumanInput  any
}

type ChatActionParams struct {
	WorkflowID   string
	ChatNodeID   string
	ActionID     string
	ActionParams map[string]any
}

type WebhookParams struct {
	WorkflowID string
	Key        string
	Payload    any
}

type ScheduleExecutionParams struct {
	WorkflowID string
	Input      any
	At         time.Time

	// Source is carried to the task so the run is checked the same way when
	// it fires. Defaults to manual.
	Source domain.TriggerSource
}

type ExecutionResult struct {
	ExecutionID string                 `json:"execution_id"`
	Status      domain.ExecutionStatus `json:"status"`
	PausedAt    string                 `json:"paused_at,omitempty"`
	Outputs     *domain.NodeOutputs    `json:"nodes"`
}

type workflowExecutorService struct {
	workflowStore  domain.WorkflowStore
	executionStore domain.ExecutionStore
	selector       domain.ExecutorSelector
	resolver       domain.TemplateResolver
	scheduler      domain.TaskScheduler
	clock          clock.Clock
	site           map[string]string
	options        WorkflowExecutorOptions
}

type WorkflowExecutorServiceDependencies struct {
	WorkflowStore  domain.WorkflowStore
	ExecutionStore domain.ExecutionStore
	Selector       domain.ExecutorSelector
	Resolver       domain.TemplateResolver
	Scheduler      domain.TaskScheduler
	Clock          clock.Clock
	Site           map[string]string
	Options        WorkflowExecutorOptions
}

func NewWorkflowExecutorService(deps WorkflowExecutorServiceDependencies) WorkflowExecutorService {
	clk := deps.Clock
	if clk == nil {
		clk = clock.New()
	}

	return &workflowExecutorService{
		workflowStore:  deps.WorkflowStore,
		executionStore: deps.ExecutionStore,
		selector:       deps.Selector,
		resolver:       deps.Resolver,
		scheduler:      deps.Scheduler,
		clock:          clk,
		site:           deps.Site,
		options:        deps.Options,
	}
}

// preparedRun is everything one orchestration call needs once the workflow
// is loaded and an execution record exists.
type preparedRun struct {
	workflow         domain.Workflow
	sortedNodes      []domain.Node
	executionID      string
	executionContext domain.ExecutionContext
	state            RunState
	resumedAt        string
}

func (s *workflowExecutorService) Execute(ctx context.Context, params ExecuteParams) (ExecutionResult, error) {
	run, err := s.prepareFreshRun(ctx, params)
	if err != nil {
		return ExecutionResult{}, err
	}

	return s.run(ctx, run)
}

// Start prepares a run and executes it in the background, returning the
// execution id for polling.
func (s *workflowExecutorService) Start(ctx context.Context, params ExecuteParams) (string, error) {
	run, err := s.prepareFreshRun(ctx, params)
	if err != nil {
		return "", err
	}

	go func() {
		if _, err := s.run(context.WithoutCancel(ctx), run); err != nil {
			log.Error().Err(err).Str("execution_id", run.executionID).Msg("Background execution failed")
		}
	}()

	return run.executionID, nil
}

func (s *workflowExecutorService) prepareFreshRun(ctx context.Context, params ExecuteParams) (preparedRun, error) {
	source := params.Source
	if source == "" {
		source = domain.TriggerSourceManual
	}

	workflow, sortedNodes, err := s.loadWorkflow(ctx, params.WorkflowID, source != domain.TriggerSourceManual)
	if err != nil {
		return preparedRun{}, err
	}

	input := params.Input
	executionID := params.ExecutionID

	if executionID != "" {
		execution, err := s.executionStore.Get(ctx, executionID)
		if err != nil {
			return preparedRun{}, fmt.Errorf("failed to get scheduled execution: %w", err)
		}

		if execution.Status != domain.ExecutionStatusScheduled {
			return preparedRun{}, fmt.Errorf("%w: execution %s is %s", domain.ErrExecutionNotResumable, executionID, execution.Status)
		}

		if input == nil {
			input = execution.InputData
		}
	} else {
		executionID, err = s.executionStore.Create(ctx, domain.CreateExecutionParams{
			WorkflowID:   workflow.ID,
			WorkflowName: workflow.Name,
			Input:        input,
			Status:       domain.ExecutionStatusProcessing,
		})
		if err != nil {
			return preparedRun{}, fmt.Errorf("failed to create execution: %w", err)
		}
	}

	return preparedRun{
		workflow:         workflow,
		sortedNodes:      sortedNodes,
		executionID:      executionID,
		executionContext: s.newExecutionContext(workflow, executionID, source, input),
		state:            NewRunState(domain.NewNodeOutputs(), RunMode{}),
	}, nil
}

func (s *workflowExecutorService) Resume(ctx context.Context, params ResumeParams) (ExecutionResult, error) {
	if params.HumanAction != "" && !params.HumanAction.IsValid() {
		return ExecutionResult{}, fmt.Errorf("%w: unknown human action %q", domain.ErrExecutionNotResumable, params.HumanAction)
	}

	execution, err := s.executionStore.Get(ctx, params.ExecutionID)
	if err != nil {
		return ExecutionResult{}, err
	}

	switch execution.Status {
	case domain.ExecutionStatusTerminated:
		return ExecutionResult{}, fmt.Errorf("%w: %s", domain.ErrExecutionTerminated, execution.ID)
	case domain.ExecutionStatusPaused, domain.ExecutionStatusError:
	default:
		return ExecutionResult{}, fmt.Errorf("%w: execution %s is %s", domain.ErrExecutionNotResumable, execution.ID, execution.Status)
	}

	resumeFrom := params.NodeID
	if resumeFrom == "" {
		resumeFrom = execution.CurrentNode
	}

	workflow, sortedNodes, err := s.loadWorkflow(ctx, execution.WorkflowID, false)
	if err != nil {
		return ExecutionResult{}, err
	}

	if _, ok := workflow.GetNodeByID(resumeFrom); !ok {
		return ExecutionResult{}, fmt.Errorf("%w: resume node %q not found", domain.ErrExecutionNotResumable, resumeFrom)
	}

	outputs := execution.Nodes.Clone()

	executionContext := s.newExecutionContext(workflow, execution.ID, domain.TriggerSourceResume, execution.InputData)
	executionContext.HumanInput = params.HumanInput

	return s.run(ctx, preparedRun{
		workflow:         workflow,
		sortedNodes:      sortedNodes,
		executionID:      execution.ID,
		executionContext: executionContext,
		resumedAt:        resumeFrom,
		state: NewRunState(outputs, RunMode{
			ResumeFromNode: resumeFrom,
			HumanAction:    params.HumanAction,
			HumanInput:     params.HumanInput,
		}),
	})
}

// ExecuteChatAction runs only the sub-graph wired to one chat action handle.
// The chat node's output is seeded with the action parameters so downstream
// references can read them.
func (s *workflowExecutorService) ExecuteChatAction(ctx context.Context, params ChatActionParams) (ExecutionResult, error) {
	workflow, sortedNodes, err := s.loadWorkflow(ctx, params.WorkflowID, false)
	if err != nil {
		return ExecutionResult{}, err
	}

	chatNode, ok := workflow.GetNodeByID(params.ChatNodeID)
	if !ok || chatNode.Type != domain.NodeTypeChat {
		return ExecutionResult{}, fmt.Errorf("%w: chat node %q not found", domain.ErrInvalidWorkflow, params.ChatNodeID)
	}

	var startNodes []string
	for _, edge := range workflow.OutgoingEdges(chatNode.ID) {
		if edge.SourceHandle == params.ActionID {
			startNodes = append(startNodes, edge.Target)
		}
	}

	if len(startNodes) == 0 {
		return ExecutionResult{}, fmt.Errorf("%w: action %q of chat node %s has no connected nodes", domain.ErrInvalidWorkflow, params.ActionID, chatNode.ID)
	}

	actionParams := params.ActionParams
	if actionParams == nil {
		actionParams = map[string]any{}
	}

	input := map[string]any{
		"action_id":     params.ActionID,
		"action_params": actionParams,
	}

	executionID, err := s.executionStore.Create(ctx, domain.CreateExecutionParams{
		WorkflowID:   workflow.ID,
		WorkflowName: workflow.Name,
		Input:        input,
		Status:       domain.ExecutionStatusProcessing,
	})
	if err != nil {
		return ExecutionResult{}, fmt.Errorf("failed to create execution: %w", err)
	}

	outputs := domain.NewNodeOutputs()
	outputs.Set(chatNode.ID, domain.NewNodeResult(domain.NodeTypeChat, map[string]any{
		"model":         chatNode.String("model"),
		"systemPrompt":  chatNode.String("systemPrompt"),
		"action_id":     params.ActionID,
		"action_params": actionParams,
	}))

	return s.run(ctx, preparedRun{
		workflow:         workflow,
		sortedNodes:      sortedNodes,
		executionID:      executionID,
		executionContext: s.newExecutionContext(workflow, executionID, domain.TriggerSourceChat, input),
		state: NewRunState(outputs, RunMode{
			ActionAllowList:    graph.DownstreamFromAll(workflow.Edges, startNodes),
			ActionStartNodes:   graph.NewNodeSet(startNodes...),
			SkipUntilStartNode: true,
		}),
	})
}

func (s *workflowExecutorService) HandleWebhook(ctx context.Context, params WebhookParams) (ExecutionResult, error) {
	workflow, err := s.workflowStore.Get(ctx, params.WorkflowID)
	if err != nil {
		return ExecutionResult{}, err
	}

	if !workflow.IsActive() {
		return ExecutionResult{}, fmt.Errorf("%w: %s", domain.ErrWorkflowInactive, workflow.ID)
	}

	trigger, ok := workflow.GetTriggerNode()
	if !ok {
		return ExecutionResult{}, fmt.Errorf("%w: workflow %s has no trigger", domain.ErrInvalidWorkflow, workflow.ID)
	}

	triggerType := domain.TriggerType(trigger.String("triggerType"))
	if triggerType != domain.TriggerTypeWebhook && triggerType != domain.TriggerTypeWPCore && !triggerType.IsForm() {
		return ExecutionResult{}, fmt.Errorf("%w: trigger of workflow %s does not accept webhooks", domain.ErrInvalidWorkflow, workflow.ID)
	}

	if key := trigger.String("webhookKey"); key != "" && subtle.ConstantTimeCompare([]byte(key), []byte(params.Key)) != 1 {
		return ExecutionResult{}, domain.ErrWebhookKeyMismatch
	}

	return s.Execute(ctx, ExecuteParams{
		WorkflowID: workflow.ID,
		Input:      params.Payload,
		Source:     domain.TriggerSourceWebhook,
	})
}

// ScheduleExecution records a scheduled execution and asks the scheduler to
// start it at the given time.
func (s *workflowExecutorService) ScheduleExecution(ctx context.Context, params ScheduleExecutionParams) (string, error) {
	source := params.Source
	if source == "" {
		source = domain.TriggerSourceManual
	}

	workflow, _, err := s.loadWorkflow(ctx, params.WorkflowID, source != domain.TriggerSourceManual)
	if err != nil {
		return "", err
	}

	scheduledAt := params.At

	executionID, err := s.executionStore.Create(ctx, domain.CreateExecutionParams{
		WorkflowID:   workflow.ID,
		WorkflowName: workflow.Name,
		Input:        params.Input,
		Status:       domain.ExecutionStatusScheduled,
		ScheduledAt:  &scheduledAt,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create execution: %w", err)
	}

	_, err = s.scheduler.ScheduleAt(ctx, scheduledAt, domain.TaskRunScheduledExecution, map[string]any{
		"workflow_id":  workflow.ID,
		"execution_id": executionID,
		"source":       string(source),
	})
	if err != nil {
		return "", fmt.Errorf("failed to schedule execution: %w", err)
	}

	log.Info().
		Str("workflow_id", workflow.ID).
		Str("execution_id", executionID).
		Time("scheduled_at", scheduledAt).
		Msg("Execution scheduled")

	return executionID, nil
}

func (s *workflowExecutorService) Terminate(ctx context.Context, executionID string) error {
	execution, err := s.executionStore.Get(ctx, executionID)
	if err != nil {
		return err
	}

	if execution.Status.IsTerminal() {
		return fmt.Errorf("%w: execution %s is already %s", domain.ErrExecutionNotResumable, executionID, execution.Status)
	}

	status := domain.ExecutionStatusTerminated

	return s.executionStore.Update(ctx, executionID, domain.ExecutionUpdate{
		Status: &status,
		AppendHistory: []domain.StatusEntry{{
			Status:    string(status),
			Message:   "Execution terminated",
			Timestamp: s.clock.Now(),
		}},
	})
}

func (s *workflowExecutorService) GetExecution(ctx context.Context, executionID string) (domain.Execution, error) {
	return s.executionStore.Get(ctx, executionID)
}

// run drives one prepared run and owns the unexpected failure boundary:
// errors and panics mark the execution as error with the partial outputs.
func (s *workflowExecutorService) run(ctx context.Context, p preparedRun) (result ExecutionResult, err error) {
	observer := NewExecutionObserver()
	observer.Subscribe(NewExecutionRecorder(s.executionStore, p.executionID, s.clock))
	observer.Subscribe(NewEventLogger(p.workflow.ID, p.executionID))

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("execution_id", p.executionID).
				Str("stack", string(debug.Stack())).
				Msgf("Recovered from panic during execution: %v", r)

			err = s.fail(ctx, observer, p, fmt.Errorf("panic during execution: %v", r))
			result = ExecutionResult{
				ExecutionID: p.executionID,
				Status:      domain.ExecutionStatusError,
				Outputs:     p.state.Outputs,
			}
		}
	}()

	err = observer.Notify(ctx, WorkflowExecutionStartedEvent{
		Source:    p.executionContext.Source,
		ResumedAt: p.resumedAt,
		Timestamp: s.clock.Now(),
	})
	if err != nil {
		return ExecutionResult{}, err
	}

	workflowExecutor := NewWorkflowExecutor(WorkflowExecutorDeps{
		Workflow:         p.workflow,
		SortedNodes:      p.sortedNodes,
		ExecutionContext: p.executionContext,
		Selector:         s.selector,
		Resolver:         s.resolver,
		Observer:         observer,
		Clock:            s.clock,
		Options:          s.options,
	})

	runResult, runErr := workflowExecutor.Run(ctx, p.state)
	if runErr != nil {
		if errors.Is(runErr, domain.ErrExecutionTerminated) {
			log.Info().Str("execution_id", p.executionID).Msg("Execution was terminated, stopping")

			return ExecutionResult{
				ExecutionID: p.executionID,
				Status:      domain.ExecutionStatusTerminated,
				Outputs:     runResult.Outputs,
			}, nil
		}

		return ExecutionResult{
			ExecutionID: p.executionID,
			Status:      domain.ExecutionStatusError,
			Outputs:     runResult.Outputs,
		}, s.fail(ctx, observer, p, runErr)
	}

	if runResult.Status == RunStatusPaused {
		return ExecutionResult{
			ExecutionID: p.executionID,
			Status:      domain.ExecutionStatusPaused,
			PausedAt:    runResult.PausedAt,
			Outputs:     runResult.Outputs,
		}, nil
	}

	if err := s.writeBackNodeOutputs(ctx, p.workflow.ID, runResult.Outputs); err != nil {
		log.Warn().Err(err).Str("workflow_id", p.workflow.ID).Msg("Failed to write node outputs back to workflow")
	}

	if err := s.chainDependentWorkflows(ctx, p, runResult.Outputs); err != nil {
		log.Error().Err(err).Str("workflow_id", p.workflow.ID).Msg("Failed to chain dependent workflows")
	}

	return ExecutionResult{
		ExecutionID: p.executionID,
		Status:      domain.ExecutionStatusCompleted,
		Outputs:     runResult.Outputs,
	}, nil
}

func (s *workflowExecutorService) fail(ctx context.Context, observer *ExecutionObserver, p preparedRun, cause error) error {
	notifyErr := observer.Notify(context.WithoutCancel(ctx), WorkflowExecutionFailedEvent{
		Error:     cause,
		Outputs:   p.state.Outputs,
		Timestamp: s.clock.Now(),
	})
	if notifyErr != nil {
		log.Error().Err(notifyErr).Str("execution_id", p.executionID).Msg("Failed to mark execution as failed")
	}

	return fmt.Errorf("execution %s failed: %w", p.executionID, cause)
}

// loadWorkflow fetches, validates and sorts a workflow.
func (s *workflowExecutorService) loadWorkflow(ctx context.Context, workflowID string, requireActive bool) (domain.Workflow, []domain.Node, error) {
	workflow, err := s.workflowStore.Get(ctx, workflowID)
	if err != nil {
		return domain.Workflow{}, nil, err
	}

	if requireActive && !workflow.IsActive() {
		return domain.Workflow{}, nil, fmt.Errorf("%w: %s", domain.ErrWorkflowInactive, workflowID)
	}

	if err := workflow.Validate(); err != nil {
		return domain.Workflow{}, nil, err
	}

	sortedNodes, err := graph.TopologicalSort(workflow.Nodes, workflow.Edges)
	if err != nil {
		return domain.Workflow{}, nil, fmt.Errorf("%w: %w", domain.ErrInvalidWorkflow, err)
	}

	return workflow, sortedNodes, nil
}

func (s *workflowExecutorService) newExecutionContext(workflow domain.Workflow, executionID string, source domain.TriggerSource, payload any) domain.ExecutionContext {
	host := domain.HostVariables{
		Site: s.site,
	}

	if fields, ok := payload.(map[string]any); ok {
		host.Post, _ = fields["post"].(map[string]any)
		host.Product, _ = fields["product"].(map[string]any)
		host.Cart, _ = fields["cart"].(map[string]any)
	}

	return domain.ExecutionContext{
		ExecutionID:    executionID,
		WorkflowID:     workflow.ID,
		WorkflowName:   workflow.Name,
		Source:         source,
		TriggerPayload: payload,
		Host:           host,
	}
}

// writeBackNodeOutputs stores each executed node's output on the workflow
// document so the editor can display it.
func (s *workflowExecutorService) writeBackNodeOutputs(ctx context.Context, workflowID string, outputs *domain.NodeOutputs) error {
	workflow, err := s.workflowStore.Get(ctx, workflowID)
	if err != nil {
		return err
	}

	lastExecuted := s.clock.Now().UTC().Format(time.RFC3339)

	for i, node := range workflow.Nodes {
		result, ok := outputs.Get(node.ID)
		if !ok {
			continue
		}

		data := make(map[string]any, len(node.Data)+3)
		for key, value := range node.Data {
			data[key] = value
		}

		data["output"] = result.Content
		data["executed"] = true
		data["lastExecuted"] = lastExecuted

		workflow.Nodes[i].Data = data
	}

	return s.workflowStore.Save(ctx, workflow)
}

func (s *workflowExecutorService) RegisterTaskHandlers(registry domain.TaskRegistry) {
	registry.RegisterHandler(domain.TaskExecuteWorkflow, s.handleExecuteWorkflowTask)
	registry.RegisterHandler(domain.TaskRunScheduledExecution, s.handleRunScheduledExecutionTask)
}

func (s *workflowExecutorService) handleExecuteWorkflowTask(ctx context.Context, payload map[string]any) error {
	workflowID, _ := payload["workflow_id"].(string)
	if workflowID == "" {
		return fmt.Errorf("task payload is missing workflow_id")
	}

	source := domain.TriggerSource(fmt.Sprint(payload["source"]))
	if source != domain.TriggerSourceChain && source != domain.TriggerSourceSchedule {
		source = domain.TriggerSourceSchedule
	}

	_, err := s.Execute(ctx, ExecuteParams{
		WorkflowID: workflowID,
		Input:      payload["input"],
		Source:     source,
	})

	return err
}

func (s *workflowExecutorService) handleRunScheduledExecutionTask(ctx context.Context, payload map[string]any) error {
	workflowID, _ := payload["workflow_id"].(string)
	executionID, _ := payload["execution_id"].(string)

	if workflowID == "" || executionID == "" {
		return fmt.Errorf("task payload is missing workflow_id or execution_id")
	}

	source, _ := payload["source"].(string)
	if source == "" {
		source = string(domain.TriggerSourceSchedule)
	}

	run, err := s.prepareFreshRun(ctx, ExecuteParams{
		WorkflowID:  workflowID,
		ExecutionID: executionID,
		Source:      domain.TriggerSource(source),
	})
	if err != nil {
		s.failScheduledExecution(ctx, executionID, err)
		return err
	}

	_, err = s.run(ctx, run)

	return err
}

// failScheduledExecution moves a scheduled execution that could not start to
// error. Executions that already left the scheduled state are left alone.
func (s *workflowExecutorService) failScheduledExecution(ctx context.Context, executionID string, cause error) {
	execution, err := s.executionStore.Get(ctx, executionID)
	if err != nil || execution.Status != domain.ExecutionStatusScheduled {
		return
	}

	status := domain.ExecutionStatusError
	message := cause.Error()

	err = s.executionStore.Update(ctx, executionID, domain.ExecutionUpdate{
		Status: &status,
		Error:  &message,
		AppendHistory: []domain.StatusEntry{{
			Status:    string(status),
			Message:   message,
			Timestamp: s.clock.Now(),
		}},
	})
	if err != nil {
		log.Error().Err(err).Str("execution_id", executionID).Msg("Failed to mark scheduled execution as failed")
	}
}
