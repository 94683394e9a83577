package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/flowbaker/autoflow/pkg/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/xid"
)

const maxUpdateRetries = 5

type Store struct {
	client    *redis.Client
	keyPrefix string
}

type Opts struct {
	Addr      string
	Username  string
	Password  string
	DB        int
	KeyPrefix string
}

func New(ctx context.Context, opts Opts) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Username: opts.Username,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{
		client:    client,
		keyPrefix: opts.KeyPrefix,
	}, nil
}

func (s *Store) key(parts ...string) string {
	key := s.keyPrefix

	for _, part := range parts {
		if key != "" {
			key += ":"
		}
		key += part
	}

	return key
}

func (s *Store) workflowKey(workflowID string) string {
	return s.key("workflows", workflowID)
}

func (s *Store) workflowIndexKey() string {
	return s.key("workflows")
}

func (s *Store) executionKey(executionID string) string {
	return s.key("executions", executionID)
}

func (s *Store) lockKey(key string) string {
	return s.key("locks", key)
}

func (s *Store) outputsKey(workflowID string) string {
	return s.key("outputs", workflowID)
}

func (s *Store) usageKey(workflowID string) string {
	return s.key("usage", workflowID)
}

func (s *Store) Get(ctx context.Context, workflowID string) (domain.Workflow, error) {
	data, err := s.client.Get(ctx, s.workflowKey(workflowID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Workflow{}, fmt.Errorf("%w: %s", domain.ErrWorkflowNotFound, workflowID)
	}

	if err != nil {
		return domain.Workflow{}, fmt.Errorf("failed to get workflow: %w", err)
	}

	var workflow domain.Workflow
	if err := json.Unmarshal(data, &workflow); err != nil {
		return domain.Workflow{}, fmt.Errorf("failed to unmarshal workflow %s: %w", workflowID, err)
	}

	return workflow, nil
}

func (s *Store) Save(ctx context.Context, workflow domain.Workflow) error {
	if workflow.ID == "" {
		return fmt.Errorf("%w: workflow id is required", domain.ErrInvalidWorkflow)
	}

	now := time.Now()

	existing, err := s.Get(ctx, workflow.ID)
	switch {
	case err == nil:
		workflow.CreatedAt = existing.CreatedAt
	case errors.Is(err, domain.ErrWorkflowNotFound):
		if workflow.CreatedAt.IsZero() {
			workflow.CreatedAt = now
		}
	default:
		return err
	}

	workflow.UpdatedAt = now

	data, err := json.Marshal(workflow)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.workflowKey(workflow.ID), data, 0)
		pipe.SAdd(ctx, s.workflowIndexKey(), workflow.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save workflow: %w", err)
	}

	return nil
}

func (s *Store) List(ctx context.Context) ([]domain.Workflow, error) {
	ids, err := s.client.SMembers(ctx, s.workflowIndexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	sort.Strings(ids)

	workflows := make([]domain.Workflow, 0, len(ids))
	for _, id := range ids {
		workflow, err := s.Get(ctx, id)
		if errors.Is(err, domain.ErrWorkflowNotFound) {
			continue
		}

		if err != nil {
			return nil, err
		}

		workflows = append(workflows, workflow)
	}

	return workflows, nil
}

func (s *Store) ExecutionStore() domain.ExecutionStore {
	return executionStore{s}
}

type executionStore struct {
	s *Store
}

func (e executionStore) Create(ctx context.Context, params domain.CreateExecutionParams) (string, error) {
	now := time.Now()

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

	data, err := json.Marshal(execution)
	if err != nil {
		return "", fmt.Errorf("failed to marshal execution: %w", err)
	}

	if err := e.s.client.Set(ctx, e.s.executionKey(execution.ID), data, 0).Err(); err != nil {
		return "", fmt.Errorf("failed to create execution: %w", err)
	}

	return execution.ID, nil
}

// Update applies the change inside a WATCH transaction so concurrent
// writers (a terminate request racing the run loop) do not lose history.
func (e executionStore) Update(ctx context.Context, executionID string, update domain.ExecutionUpdate) error {
	key := e.s.executionKey(executionID)

	txf := func(tx *redis.Tx) error {
		execution, err := e.load(ctx, tx, executionID)
		if err != nil {
			return err
		}

		update.Apply(&execution, time.Now())

		data, err := json.Marshal(execution)
		if err != nil {
			return fmt.Errorf("failed to marshal execution: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})

		return err
	}

	for range maxUpdateRetries {
		err := e.s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}

		if err != nil {
			return fmt.Errorf("failed to update execution %s: %w", executionID, err)
		}

		return nil
	}

	return fmt.Errorf("failed to update execution %s: too much contention", executionID)
}

func (e executionStore) Get(ctx context.Context, executionID string) (domain.Execution, error) {
	return e.load(ctx, e.s.client, executionID)
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (e executionStore) load(ctx context.Context, cmd stringGetter, executionID string) (domain.Execution, error) {
	data, err := cmd.Get(ctx, e.s.executionKey(executionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Execution{}, fmt.Errorf("%w: %s", domain.ErrExecutionNotFound, executionID)
	}

	if err != nil {
		return domain.Execution{}, fmt.Errorf("failed to get execution: %w", err)
	}

	var execution domain.Execution
	if err := json.Unmarshal(data, &execution); err != nil {
		return domain.Execution{}, fmt.Errorf("failed to unmarshal execution %s: %w", executionID, err)
	}

	if execution.Nodes == nil {
		execution.Nodes = domain.NewNodeOutputs()
	}

	return execution, nil
}

func (s *Store) TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	acquired, err := s.client.SetNX(ctx, s.lockKey(key), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}

	return acquired, nil
}

func (s *Store) SaveOutput(ctx context.Context, output domain.SavedOutput) (string, error) {
	if output.ID == "" {
		output.ID = xid.New().String()
	}

	if output.CreatedAt.IsZero() {
		output.CreatedAt = time.Now()
	}

	data, err := json.Marshal(output)
	if err != nil {
		return "", fmt.Errorf("failed to marshal output: %w", err)
	}

	if err := s.client.RPush(ctx, s.outputsKey(output.WorkflowID), data).Err(); err != nil {
		return "", fmt.Errorf("failed to save output: %w", err)
	}

	return output.ID, nil
}

func (s *Store) ListOutputs(ctx context.Context, workflowID string) ([]domain.SavedOutput, error) {
	results, err := s.client.LRange(ctx, s.outputsKey(workflowID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list outputs: %w", err)
	}

	outputs := make([]domain.SavedOutput, 0, len(results))
	for _, result := range results {
		var output domain.SavedOutput
		if err := json.Unmarshal([]byte(result), &output); err != nil {
			return nil, fmt.Errorf("failed to unmarshal output: %w", err)
		}

		outputs = append(outputs, output)
	}

	return outputs, nil
}

func (s *Store) RecordUsage(ctx context.Context, record domain.UsageRecord) error {
	if record.RecordedAt.IsZero() {
		record.RecordedAt = time.Now()
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal usage record: %w", err)
	}

	if err := s.client.RPush(ctx, s.usageKey(record.WorkflowID), data).Err(); err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}

	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
