package postgresql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/flowbaker/autoflow/pkg/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/xid"
)

type Store struct {
	pool        *pgxpool.Pool
	tablePrefix string
}

type Opts struct {
	URI         string
	TablePrefix string
}

func New(ctx context.Context, opts Opts) (*Store, error) {
	pool, err := pgxpool.New(ctx, opts.URI)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	store := &Store{
		pool:        pool,
		tablePrefix: opts.TablePrefix,
	}

	if err := store.ensureTables(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure tables: %w", err)
	}

	return store, nil
}

func (s *Store) table(name string) string {
	return s.tablePrefix + name
}

func (s *Store) ensureTables(ctx context.Context) error {
	statements := []struct {
		name string
		sql  string
	}{
		{
			name: "workflows table",
			sql: fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS %s (
					id TEXT PRIMARY KEY,
					document JSONB NOT NULL,
					created_at TIMESTAMPTZ NOT NULL,
					updated_at TIMESTAMPTZ NOT NULL
				)
			`, s.table("workflows")),
		},
		{
			name: "executions table",
			sql: fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS %s (
					id TEXT PRIMARY KEY,
					workflow_id TEXT NOT NULL,
					status TEXT NOT NULL,
					document JSONB NOT NULL,
					created_at TIMESTAMPTZ NOT NULL,
					updated_at TIMESTAMPTZ NOT NULL
				)
			`, s.table("executions")),
		},
		{
			name: "executions index",
			sql: fmt.Sprintf(`
				CREATE INDEX IF NOT EXISTS idx_%s_workflow ON %s(workflow_id, status)
			`, s.table("executions"), s.table("executions")),
		},
		{
			name: "locks table",
			sql: fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS %s (
					key TEXT PRIMARY KEY,
					expires_at TIMESTAMPTZ NOT NULL
				)
			`, s.table("locks")),
		},
		{
			name: "outputs table",
			sql: fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS %s (
					id TEXT PRIMARY KEY,
					workflow_id TEXT NOT NULL,
					execution_id TEXT NOT NULL,
					node_id TEXT NOT NULL,
					content TEXT NOT NULL,
					created_at TIMESTAMPTZ NOT NULL
				)
			`, s.table("outputs")),
		},
		{
			name: "usage table",
			sql: fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS %s (
					id SERIAL PRIMARY KEY,
					execution_id TEXT NOT NULL,
					workflow_id TEXT NOT NULL,
					node_id TEXT NOT NULL,
					provider TEXT NOT NULL,
					model TEXT NOT NULL,
					prompt_tokens INT NOT NULL,
					completion_tokens INT NOT NULL,
					recorded_at TIMESTAMPTZ NOT NULL
				)
			`, s.table("usage")),
		},
	}

	for _, statement := range statements {
		if _, err := s.pool.Exec(ctx, statement.sql); err != nil {
			return fmt.Errorf("failed to create %s: %w", statement.name, err)
		}
	}

	return nil
}

func (s *Store) Get(ctx context.Context, workflowID string) (domain.Workflow, error) {
	query := fmt.Sprintf(`SELECT document FROM %s WHERE id = $1`, s.table("workflows"))

	var document []byte
	err := s.pool.QueryRow(ctx, query, workflowID).Scan(&document)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Workflow{}, fmt.Errorf("%w: %s", domain.ErrWorkflowNotFound, workflowID)
	}

	if err != nil {
		return domain.Workflow{}, fmt.Errorf("failed to get workflow: %w", err)
	}

	var workflow domain.Workflow
	if err := json.Unmarshal(document, &workflow); err != nil {
		return domain.Workflow{}, fmt.Errorf("failed to unmarshal workflow %s: %w", workflowID, err)
	}

	return workflow, nil
}

func (s *Store) Save(ctx context.Context, workflow domain.Workflow) error {
	if workflow.ID == "" {
		return fmt.Errorf("%w: workflow id is required", domain.ErrInvalidWorkflow)
	}

	now := time.Now().UTC()

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

	document, err := json.Marshal(workflow)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, document, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET document = EXCLUDED.document, updated_at = EXCLUDED.updated_at
	`, s.table("workflows"))

	if _, err := s.pool.Exec(ctx, query, workflow.ID, document, workflow.CreatedAt, workflow.UpdatedAt); err != nil {
		return fmt.Errorf("failed to save workflow: %w", err)
	}

	return nil
}

func (s *Store) List(ctx context.Context) ([]domain.Workflow, error) {
	query := fmt.Sprintf(`SELECT document FROM %s ORDER BY id`, s.table("workflows"))

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	var workflows []domain.Workflow

	for rows.Next() {
		var document []byte
		if err := rows.Scan(&document); err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		var workflow domain.Workflow
		if err := json.Unmarshal(document, &workflow); err != nil {
			return nil, fmt.Errorf("failed to unmarshal workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate workflows: %w", err)
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
	now := time.Now().UTC()

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

	document, err := json.Marshal(execution)
	if err != nil {
		return "", fmt.Errorf("failed to marshal execution: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, workflow_id, status, document, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.s.table("executions"))

	_, err = e.s.pool.Exec(ctx, query, execution.ID, execution.WorkflowID, string(execution.Status), document, now, now)
	if err != nil {
		return "", fmt.Errorf("failed to create execution: %w", err)
	}

	return execution.ID, nil
}

// Update locks the row for the read-modify-write so the run loop and a
// terminate request serialize.
func (e executionStore) Update(ctx context.Context, executionID string, update domain.ExecutionUpdate) error {
	return pgx.BeginFunc(ctx, e.s.pool, func(tx pgx.Tx) error {
		query := fmt.Sprintf(`SELECT document FROM %s WHERE id = $1 FOR UPDATE`, e.s.table("executions"))

		execution, err := scanExecution(tx.QueryRow(ctx, query, executionID), executionID)
		if err != nil {
			return err
		}

		update.Apply(&execution, time.Now().UTC())

		document, err := json.Marshal(execution)
		if err != nil {
			return fmt.Errorf("failed to marshal execution: %w", err)
		}

		updateSQL := fmt.Sprintf(`
			UPDATE %s SET status = $1, document = $2, updated_at = $3 WHERE id = $4
		`, e.s.table("executions"))

		if _, err := tx.Exec(ctx, updateSQL, string(execution.Status), document, execution.UpdatedAt, executionID); err != nil {
			return fmt.Errorf("failed to update execution %s: %w", executionID, err)
		}

		return nil
	})
}

func (e executionStore) Get(ctx context.Context, executionID string) (domain.Execution, error) {
	query := fmt.Sprintf(`SELECT document FROM %s WHERE id = $1`, e.s.table("executions"))

	return scanExecution(e.s.pool.QueryRow(ctx, query, executionID), executionID)
}

func scanExecution(row pgx.Row, executionID string) (domain.Execution, error) {
	var document []byte

	err := row.Scan(&document)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Execution{}, fmt.Errorf("%w: %s", domain.ErrExecutionNotFound, executionID)
	}

	if err != nil {
		return domain.Execution{}, fmt.Errorf("failed to get execution: %w", err)
	}

	var execution domain.Execution
	if err := json.Unmarshal(document, &execution); err != nil {
		return domain.Execution{}, fmt.Errorf("failed to unmarshal execution %s: %w", executionID, err)
	}

	if execution.Nodes == nil {
		execution.Nodes = domain.NewNodeOutputs()
	}

	return execution, nil
}

// TryAcquire inserts the lock row, or takes over a row whose expiry passed.
func (s *Store) TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()

	query := fmt.Sprintf(`
		INSERT INTO %[1]s (key, expires_at) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET expires_at = EXCLUDED.expires_at
		WHERE %[1]s.expires_at < $3
		RETURNING key
	`, s.table("locks"))

	var acquired string
	err := s.pool.QueryRow(ctx, query, key, now.Add(ttl), now).Scan(&acquired)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}

	return true, nil
}

func (s *Store) SaveOutput(ctx context.Context, output domain.SavedOutput) (string, error) {
	if output.ID == "" {
		output.ID = xid.New().String()
	}

	if output.CreatedAt.IsZero() {
		output.CreatedAt = time.Now().UTC()
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, workflow_id, execution_id, node_id, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, s.table("outputs"))

	_, err := s.pool.Exec(ctx, query, output.ID, output.WorkflowID, output.ExecutionID, output.NodeID, output.Content, output.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("failed to save output: %w", err)
	}

	return output.ID, nil
}

func (s *Store) ListOutputs(ctx context.Context, workflowID string) ([]domain.SavedOutput, error) {
	query := fmt.Sprintf(`
		SELECT id, workflow_id, execution_id, node_id, content, created_at
		FROM %s WHERE workflow_id = $1 ORDER BY created_at
	`, s.table("outputs"))

	rows, err := s.pool.Query(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list outputs: %w", err)
	}
	defer rows.Close()

	var outputs []domain.SavedOutput

	for rows.Next() {
		var output domain.SavedOutput
		if err := rows.Scan(&output.ID, &output.WorkflowID, &output.ExecutionID, &output.NodeID, &output.Content, &output.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan output: %w", err)
		}

		outputs = append(outputs, output)
	}

	return outputs, rows.Err()
}

func (s *Store) RecordUsage(ctx context.Context, record domain.UsageRecord) error {
	if record.RecordedAt.IsZero() {
		record.RecordedAt = time.Now().UTC()
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (execution_id, workflow_id, node_id, provider, model, prompt_tokens, completion_tokens, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, s.table("usage"))

	_, err := s.pool.Exec(ctx, query,
		record.ExecutionID,
		record.WorkflowID,
		record.NodeID,
		record.Provider,
		record.Model,
		record.PromptTokens,
		record.CompletionTokens,
		record.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}

	return nil
}

func (s *Store) Close() error {
	s.pool.Close()

	return nil
}
