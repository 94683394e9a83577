package domain

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

type WorkflowActivationStatus string

const (
	WorkflowActivationStatusActive   WorkflowActivationStatus = "active"
	WorkflowActivationStatusInactive WorkflowActivationStatus = "inactive"
)

// Workflow is the full editor document. It is only ever replaced as a whole.
type Workflow struct {
	ID        string                   `json:"id"`
	Name      string                   `json:"name"`
	Status    WorkflowActivationStatus `json:"status"`
	Nodes     []Node                   `json:"nodes"`
	Edges     []Edge                   `json:"edges"`
	Schedule  string                   `json:"schedule,omitempty"`
	CreatedAt time.Time                `json:"createdAt"`
	UpdatedAt time.Time                `json:"updatedAt"`
}

func (w Workflow) IsActive() bool {
	return w.Status == WorkflowActivationStatusActive
}

func (w Workflow) GetNodeByID(nodeID string) (Node, bool) {
	for _, node := range w.Nodes {
		if node.ID == nodeID {
			return node, true
		}
	}

	return Node{}, false
}

// GetTriggerNode returns the entry point node, if the workflow has one.
func (w Workflow) GetTriggerNode() (Node, bool) {
	for _, node := range w.Nodes {
		if node.Type == NodeTypeTrigger {
			return node, true
		}
	}

	return Node{}, false
}

// IncomingEdges returns the edges targeting nodeID in declaration order.
func (w Workflow) IncomingEdges(nodeID string) []Edge {
	var edges []Edge

	for _, edge := range w.Edges {
		if edge.Target == nodeID {
			edges = append(edges, edge)
		}
	}

	return edges
}

func (w Workflow) OutgoingEdges(nodeID string) []Edge {
	var edges []Edge

	for _, edge := range w.Edges {
		if edge.Source == nodeID {
			edges = append(edges, edge)
		}
	}

	return edges
}

// Validate checks the structural invariants of the document. Cycles are
// reported by the scheduler when it sorts the graph.
func (w Workflow) Validate() error {
	seen := make(map[string]struct{}, len(w.Nodes))
	triggers := 0

	for _, node := range w.Nodes {
		if node.ID == "" {
			return fmt.Errorf("%w: node without id", ErrInvalidWorkflow)
		}

		if _, ok := seen[node.ID]; ok {
			return fmt.Errorf("%w: duplicate node id %s", ErrInvalidWorkflow, node.ID)
		}

		seen[node.ID] = struct{}{}

		if node.Type == NodeTypeTrigger {
			triggers++
		}
	}

	if triggers > 1 {
		return fmt.Errorf("%w: workflow has %d trigger nodes", ErrInvalidWorkflow, triggers)
	}

	if w.Schedule != "" {
		if _, err := cron.ParseStandard(w.Schedule); err != nil {
			return fmt.Errorf("%w: invalid schedule %q: %v", ErrInvalidWorkflow, w.Schedule, err)
		}
	}

	for _, edge := range w.Edges {
		if _, ok := seen[edge.Source]; !ok {
			return fmt.Errorf("%w: edge %s references unknown source %s", ErrInvalidWorkflow, edge.ID, edge.Source)
		}

		if _, ok := seen[edge.Target]; !ok {
			return fmt.Errorf("%w: edge %s references unknown target %s", ErrInvalidWorkflow, edge.ID, edge.Target)
		}
	}

	return nil
}

type NodePosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Node struct {
	ID       string         `json:"id"`
	Type     NodeType       `json:"type"`
	Position NodePosition   `json:"position"`
	Data     map[string]any `json:"data"`
}

func (n Node) IsAnnotation() bool {
	return n.Type.IsAnnotation()
}

type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
}
