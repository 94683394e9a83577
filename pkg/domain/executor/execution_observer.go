package executor

import (
	"context"
	"time"

	"github.com/flowbaker/autoflow/pkg/domain"
)

type ExecutionEventType string

const (
	ExecutionEventTypeNodeExecutionStarted       ExecutionEventType = "node_execution_started"
	ExecutionEventTypeNodeExecutionCompleted     ExecutionEventType = "node_execution_completed"
	ExecutionEventTypeNodeExecutionFailed        ExecutionEventType = "node_execution_failed"
	ExecutionEventTypeWorkflowExecutionStarted   ExecutionEventType = "workflow_execution_started"
	ExecutionEventTypeWorkflowExecutionPaused    ExecutionEventType = "workflow_execution_paused"
	ExecutionEventTypeWorkflowExecutionCompleted ExecutionEventType = "workflow_execution_completed"
	ExecutionEventTypeWorkflowExecutionFailed    ExecutionEventType = "workflow_execution_failed"
)

type ExecutionEvent interface {
	GetEventType() ExecutionEventType
}

// NodeExecutionStartedEvent is the per node heartbeat. It fires before the
// node runs, including nodes the loop then skips while resuming.
type NodeExecutionStartedEvent struct {
	NodeID    string
	NodeType  domain.NodeType
	Outputs   *domain.NodeOutputs
	Timestamp time.Time
}

func (NodeExecutionStartedEvent) GetEventType() ExecutionEventType {
	return ExecutionEventTypeNodeExecutionStarted
}

type NodeExecutionCompletedEvent struct {
	NodeID    string
	NodeType  domain.NodeType
	Result    domain.NodeResult
	Outputs   *domain.NodeOutputs
	StartedAt time.Time
	EndedAt   time.Time
}

func (NodeExecutionCompletedEvent) GetEventType() ExecutionEventType {
	return ExecutionEventTypeNodeExecutionCompleted
}

// NodeExecutionFailedEvent fires when a node produced an error result. The
// run continues afterwards.
type NodeExecutionFailedEvent struct {
	NodeID    string
	NodeType  domain.NodeType
	Error     error
	Outputs   *domain.NodeOutputs
	Timestamp time.Time
}

func (NodeExecutionFailedEvent) GetEventType() ExecutionEventType {
	return ExecutionEventTypeNodeExecutionFailed
}

type WorkflowExecutionStartedEvent struct {
	Source    domain.TriggerSource
	ResumedAt string
	Timestamp time.Time
}

func (WorkflowExecutionStartedEvent) GetEventType() ExecutionEventType {
	return ExecutionEventTypeWorkflowExecutionStarted
}

type WorkflowExecutionPausedEvent struct {
	NodeID    string
	Outputs   *domain.NodeOutputs
	Timestamp time.Time
}

func (WorkflowExecutionPausedEvent) GetEventType() ExecutionEventType {
	return ExecutionEventTypeWorkflowExecutionPaused
}

type WorkflowExecutionCompletedEvent struct {
	Outputs   *domain.NodeOutputs
	Timestamp time.Time
}

func (WorkflowExecutionCompletedEvent) GetEventType() ExecutionEventType {
	return ExecutionEventTypeWorkflowExecutionCompleted
}

type WorkflowExecutionFailedEvent struct {
	Error     error
	Outputs   *domain.NodeOutputs
	Timestamp time.Time
}

func (WorkflowExecutionFailedEvent) GetEventType() ExecutionEventType {
	return ExecutionEventTypeWorkflowExecutionFailed
}

type ExecutionEventHandler interface {
	HandleEvent(ctx context.Context, event ExecutionEvent) error
}

type ExecutionObserver struct {
	handlers []ExecutionEventHandler
}

func NewExecutionObserver() *ExecutionObserver {
	return &ExecutionObserver{
		handlers: []ExecutionEventHandler{},
	}
}

func (o *ExecutionObserver) Subscribe(handler ExecutionEventHandler) {
	o.handlers = append(o.handlers, handler)
}

func (o *ExecutionObserver) Notify(ctx context.Context, event ExecutionEvent) error {
	for _, handler := range o.handlers {
		if err := handler.HandleEvent(ctx, event); err != nil {
			return err
		}
	}
	return nil
}
