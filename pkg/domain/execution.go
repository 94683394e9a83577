package domain

import "time"

type ExecutionStatus string

const (
	ExecutionStatusProcessing ExecutionStatus = "processing"
	ExecutionStatusPaused     ExecutionStatus = "paused"
	ExecutionStatusScheduled  ExecutionStatus = "scheduled"
	ExecutionStatusCompleted  ExecutionStatus = "completed"
	ExecutionStatusError      ExecutionStatus = "error"
	ExecutionStatusTerminated ExecutionStatus = "terminated"
)

func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusError, ExecutionStatusTerminated:
		return true
	}

	return false
}

// StatusEntry is one line of the execution audit trail.
type StatusEntry struct {
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	NodeID    string    `json:"node_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type Execution struct {
	ID           string          `json:"id"`
	WorkflowID   string          `json:"workflow_id"`
	WorkflowName string          `json:"workflow_name"`
	Status       ExecutionStatus `json:"status"`
	CurrentNode  string          `json:"current_node"`
	InputData    any             `json:"input_data"`
	History      []StatusEntry   `json:"history"`
	Nodes        *NodeOutputs    `json:"nodes"`
	Error        string          `json:"error,omitempty"`
	ScheduledAt  *time.Time      `json:"scheduled_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ExecutionView is the shape served to status pollers.
type ExecutionView struct {
	ID          string          `json:"id"`
	Status      ExecutionStatus `json:"status"`
	CurrentNode string          `json:"current_node"`
	Nodes       *NodeOutputs    `json:"nodes"`
	IsComplete  bool            `json:"is_complete"`
	History     []StatusEntry   `json:"history"`
	Error       string          `json:"error,omitempty"`
}

func (e Execution) View() ExecutionView {
	nodes := e.Nodes
	if nodes == nil {
		nodes = NewNodeOutputs()
	}

	return ExecutionView{
		ID:          e.ID,
		Status:      e.Status,
		CurrentNode: e.CurrentNode,
		Nodes:       nodes,
		IsComplete:  e.Status == ExecutionStatusCompleted,
		History:     e.History,
		Error:       e.Error,
	}
}

type CreateExecutionParams struct {
	WorkflowID   string
	WorkflowName string
	Input        any
	Status       ExecutionStatus
	ScheduledAt  *time.Time
}

// ExecutionUpdate carries the fields to change; nil fields are left as is.
// AppendHistory entries are appended to the existing trail.
type ExecutionUpdate struct {
	Status        *ExecutionStatus
	CurrentNode   *string
	Nodes         *NodeOutputs
	Error         *string
	AppendHistory []StatusEntry
}

// Apply mutates e with the update. Stores share it so every backend
// interprets partial updates the same way.
func (u ExecutionUpdate) Apply(e *Execution, now time.Time) {
	if u.Status != nil {
		e.Status = *u.Status
	}

	if u.CurrentNode != nil {
		e.CurrentNode = *u.CurrentNode
	}

	if u.Nodes != nil {
		e.Nodes = u.Nodes.Clone()
	}

	if u.Error != nil {
		e.Error = *u.Error
	}

	e.History = append(e.History, u.AppendHistory...)
	e.UpdatedAt = now
}
