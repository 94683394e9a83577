package domain

import (
	"context"
	"time"
)

type WorkflowStore interface {
	Get(ctx context.Context, workflowID string) (Workflow, error)
	Save(ctx context.Context, workflow Workflow) error
	List(ctx context.Context) ([]Workflow, error)
}

type ExecutionStore interface {
	Create(ctx context.Context, params CreateExecutionParams) (string, error)
	Update(ctx context.Context, executionID string, update ExecutionUpdate) error
	Get(ctx context.Context, executionID string) (Execution, error)
}

// ShortLock is a best effort, expiring dedup guard.
type ShortLock interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type SavedOutput struct {
	ID          string    `json:"id"`
	WorkflowID  string    `json:"workflow_id"`
	ExecutionID string    `json:"execution_id"`
	NodeID      string    `json:"node_id"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"created_at"`
}

// OutputStore keeps the content of output nodes in "save" mode.
type OutputStore interface {
	SaveOutput(ctx context.Context, output SavedOutput) (string, error)
	ListOutputs(ctx context.Context, workflowID string) ([]SavedOutput, error)
}
