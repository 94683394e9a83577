package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/flowbaker/autoflow/pkg/domain"
	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/xid"
)

// Store keeps everything in process memory. It backs tests, the CLI and
// single instance deployments.
type Store struct {
	mu sync.RWMutex

	workflows  map[string]domain.Workflow
	executions map[string]domain.Execution
	outputs    []domain.SavedOutput
	usage      []domain.UsageRecord

	lockMu sync.Mutex
	locks  *ttlcache.Cache[string, struct{}]

	clock clock.Clock
}

type StoreOpts struct {
	Clock clock.Clock
}

func New(opts StoreOpts) *Store {
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}

	return &Store{
		workflows:  map[string]domain.Workflow{},
		executions: map[string]domain.Execution{},
		locks: ttlcache.New[string, struct{}](
			ttlcache.WithDisableTouchOnHit[string, struct{}](),
		),
		clock: clk,
	}
}

func (s *Store) Get(ctx context.Context, workflowID string) (domain.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	workflow, ok := s.workflows[workflowID]
	if !ok {
		return domain.Workflow{}, fmt.Errorf("%w: %s", domain.ErrWorkflowNotFound, workflowID)
	}

	return copyWorkflow(workflow), nil
}

func (s *Store) Save(ctx context.Context, workflow domain.Workflow) error {
	if workflow.ID == "" {
		return fmt.Errorf("%w: workflow id is required", domain.ErrInvalidWorkflow)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()

	if existing, ok := s.workflows[workflow.ID]; ok {
		workflow.CreatedAt = existing.CreatedAt
	} else if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now
	s.workflows[workflow.ID] = copyWorkflow(workflow)

	return nil
}

func (s *Store) List(ctx context.Context) ([]domain.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	workflows := make([]domain.Workflow, 0, len(s.workflows))
	for _, workflow := range s.workflows {
		workflows = append(workflows, copyWorkflow(workflow))
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].ID < workflows[j].ID
	})

	return workflows, nil
}

// ExecutionStore returns a view of the store satisfying domain.ExecutionStore.
// Get collides with the workflow getter, so executions live behind it.
func (s *Store) ExecutionStore() domain.ExecutionStore {
	return executionStore{s}
}

type executionStore struct {
	s *Store
}

func (e executionStore) Create(ctx context.Context, params domain.CreateExecutionParams) (string, error) {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()

	now := e.s.clock.Now()

	status := params.Status
	if status == "" {
		status = domain.ExecutionStatusProcessing
	}

	execution := domain.Execution{
		ID:           xid.New().String(),
		WorkflowID:   params.WorkflowID,
		WorkflowName: params.WorkflowName,
		Status:       status,
		InputData:    params.Input,
		Nodes:        domain.NewNodeOutputs(),
		ScheduledAt:  params.ScheduledAt,
		History: []domain.StatusEntry{{
			Status:    string(status),
			Message:   "Execution created",
			Timestamp: now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}

	e.s.executions[execution.ID] = execution

	return execution.ID, nil
}

func (e executionStore) Update(ctx context.Context, executionID string, update domain.ExecutionUpdate) error {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()

	execution, ok := e.s.executions[executionID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrExecutionNotFound, executionID)
	}

	execution.History = append([]domain.StatusEntry(nil), execution.History...)
	update.Apply(&execution, e.s.clock.Now())

	e.s.executions[executionID] = execution

	return nil
}

func (e executionStore) Get(ctx context.Context, executionID string) (domain.Execution, error) {
	e.s.mu.RLock()
	defer e.s.mu.RUnlock()

	execution, ok := e.s.executions[executionID]
	if !ok {
		return domain.Execution{}, fmt.Errorf("%w: %s", domain.ErrExecutionNotFound, executionID)
	}

	return copyExecution(execution), nil
}

// TryAcquire takes key for ttl. It reports false while an earlier holder's
// entry has not expired yet.
func (s *Store) TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()

	if item := s.locks.Get(key); item != nil && !item.IsExpired() {
		return false, nil
	}

	s.locks.Set(key, struct{}{}, ttl)

	return true, nil
}

func (s *Store) SaveOutput(ctx context.Context, output domain.SavedOutput) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if output.ID == "" {
		output.ID = xid.New().String()
	}

	if output.CreatedAt.IsZero() {
		output.CreatedAt = s.clock.Now()
	}

	s.outputs = append(s.outputs, output)

	return output.ID, nil
}

func (s *Store) ListOutputs(ctx context.Context, workflowID string) ([]domain.SavedOutput, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var outputs []domain.SavedOutput
	for _, output := range s.outputs {
		if output.WorkflowID == workflowID {
			outputs = append(outputs, output)
		}
	}

	return outputs, nil
}

func (s *Store) RecordUsage(ctx context.Context, record domain.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record.RecordedAt.IsZero() {
		record.RecordedAt = s.clock.Now()
	}

	s.usage = append(s.usage, record)

	return nil
}

func (s *Store) ListUsage(ctx context.Context, workflowID string) ([]domain.UsageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []domain.UsageRecord
	for _, record := range s.usage {
		if record.WorkflowID == workflowID {
			records = append(records, record)
		}
	}

	return records, nil
}

func (s *Store) Close() error {
	s.locks.DeleteAll()

	return nil
}

func copyWorkflow(workflow domain.Workflow) domain.Workflow {
	nodes := make([]domain.Node, len(workflow.Nodes))
	for i, node := range workflow.Nodes {
		data := make(map[string]any, len(node.Data))
		for key, value := range node.Data {
			data[key] = value
		}

		node.Data = data
		nodes[i] = node
	}

	workflow.Nodes = nodes
	workflow.Edges = append([]domain.Edge(nil), workflow.Edges...)

	return workflow
}

func copyExecution(execution domain.Execution) domain.Execution {
	execution.History = append([]domain.StatusEntry(nil), execution.History...)
	execution.Nodes = execution.Nodes.Clone()

	return execution
}
