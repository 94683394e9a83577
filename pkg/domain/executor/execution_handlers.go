package executor

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/flowbaker/autoflow/pkg/domain"
	"github.com/rs/zerolog/log"
)

// ExecutionRecorder persists the execution record as events arrive: the
// heartbeat before every node, each node result and every status change.
type ExecutionRecorder struct {
	store       domain.ExecutionStore
	executionID string
	clock       clock.Clock
}

func NewExecutionRecorder(store domain.ExecutionStore, executionID string, clk clock.Clock) *ExecutionRecorder {
	return &ExecutionRecorder{
		store:       store,
		executionID: executionID,
		clock:       clk,
	}
}

func (r *ExecutionRecorder) HandleEvent(ctx context.Context, event ExecutionEvent) error {
	switch e := event.(type) {
	case NodeExecutionStartedEvent:
		execution, err := r.store.Get(ctx, r.executionID)
		if err != nil {
			return fmt.Errorf("failed to load execution: %w", err)
		}

		if execution.Status == domain.ExecutionStatusTerminated {
			return domain.ErrExecutionTerminated
		}

		return r.update(ctx, domain.ExecutionUpdate{
			CurrentNode: &e.NodeID,
			Nodes:       e.Outputs,
		})

	case NodeExecutionCompletedEvent:
		return r.update(ctx, domain.ExecutionUpdate{
			Nodes: e.Outputs,
			AppendHistory: []domain.StatusEntry{
				r.entry("node_completed", fmt.Sprintf("Node %s (%s) completed", e.NodeID, e.NodeType), e.NodeID),
			},
		})

	case NodeExecutionFailedEvent:
		return r.update(ctx, domain.ExecutionUpdate{
			Nodes: e.Outputs,
			AppendHistory: []domain.StatusEntry{
				r.entry("node_error", e.Error.Error(), e.NodeID),
			},
		})

	case WorkflowExecutionStartedEvent:
		status := domain.ExecutionStatusProcessing
		message := fmt.Sprintf("Execution started (%s)", e.Source)
		if e.ResumedAt != "" {
			message = fmt.Sprintf("Execution resumed at node %s", e.ResumedAt)
		}

		return r.update(ctx, domain.ExecutionUpdate{
			Status:        &status,
			AppendHistory: []domain.StatusEntry{r.entry(string(status), message, e.ResumedAt)},
		})

	case WorkflowExecutionPausedEvent:
		status := domain.ExecutionStatusPaused

		return r.update(ctx, domain.ExecutionUpdate{
			Status:        &status,
			CurrentNode:   &e.NodeID,
			Nodes:         e.Outputs,
			AppendHistory: []domain.StatusEntry{r.entry(string(status), "Waiting for human input", e.NodeID)},
		})

	case WorkflowExecutionCompletedEvent:
		status := domain.ExecutionStatusCompleted
		currentNode := ""

		return r.update(ctx, domain.ExecutionUpdate{
			Status:        &status,
			CurrentNode:   &currentNode,
			Nodes:         e.Outputs,
			AppendHistory: []domain.StatusEntry{r.entry(string(status), "Workflow completed", "")},
		})

	case WorkflowExecutionFailedEvent:
		status := domain.ExecutionStatusError
		message := e.Error.Error()

		return r.update(ctx, domain.ExecutionUpdate{
			Status:        &status,
			Nodes:         e.Outputs,
			Error:         &message,
			AppendHistory: []domain.StatusEntry{r.entry(string(status), message, "")},
		})
	}

	return nil
}

func (r *ExecutionRecorder) update(ctx context.Context, update domain.ExecutionUpdate) error {
	if err := r.store.Update(ctx, r.executionID, update); err != nil {
		return fmt.Errorf("failed to update execution %s: %w", r.executionID, err)
	}

	return nil
}

func (r *ExecutionRecorder) entry(status, message, nodeID string) domain.StatusEntry {
	return domain.StatusEntry{
		Status:    status,
		Message:   message,
		NodeID:    nodeID,
		Timestamp: r.clock.Now(),
	}
}

// EventLogger writes execution events to the structured log.
type EventLogger struct {
	workflowID  string
	executionID string
}

func NewEventLogger(workflowID, executionID string) *EventLogger {
	return &EventLogger{
		workflowID:  workflowID,
		executionID: executionID,
	}
}

func (l *EventLogger) HandleEvent(ctx context.Context, event ExecutionEvent) error {
	logger := log.With().
		Str("workflow_id", l.workflowID).
		Str("execution_id", l.executionID).
		Logger()

	switch e := event.(type) {
	case NodeExecutionStartedEvent:
		logger.Debug().Str("node_id", e.NodeID).Str("node_type", string(e.NodeType)).Msg("Node reached")
	case NodeExecutionCompletedEvent:
		logger.Info().
			Str("node_id", e.NodeID).
			Str("node_type", string(e.NodeType)).
			Dur("duration", e.EndedAt.Sub(e.StartedAt)).
			Msg("Node executed")
	case NodeExecutionFailedEvent:
		logger.Warn().Err(e.Error).Str("node_id", e.NodeID).Msg("Node returned an error result")
	case WorkflowExecutionStartedEvent:
		logger.Info().Str("source", string(e.Source)).Str("resumed_at", e.ResumedAt).Msg("Workflow execution started")
	case WorkflowExecutionPausedEvent:
		logger.Info().Str("node_id", e.NodeID).Msg("Workflow execution paused")
	case WorkflowExecutionCompletedEvent:
		logger.Info().Int("nodes", e.Outputs.Len()).Msg("Workflow execution completed")
	case WorkflowExecutionFailedEvent:
		logger.Error().Err(e.Error).Msg("Workflow execution failed")
	}

	return nil
}
