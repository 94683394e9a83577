package domain

import (
	"context"
	"time"
)

type TaskName string

const (
	TaskExecuteWorkflow       TaskName = "execute_workflow"
	TaskRunScheduledExecution TaskName = "run_scheduled_execution"
	TaskDeliverOutput         TaskName = "deliver_output"
)

type TaskHandler func(ctx context.Context, payload map[string]any) error

// TaskScheduler runs named tasks at a later point in time.
type TaskScheduler interface {
	ScheduleAt(ctx context.Context, at time.Time, task TaskName, payload map[string]any) (string, error)
}

// TaskRegistry binds task names to handlers. The orchestrator registers its
// handlers at startup.
type TaskRegistry interface {
	RegisterHandler(task TaskName, handler TaskHandler)
}

// RecurringScheduler keeps cron scheduled workflow runs in sync.
type RecurringScheduler interface {
	SyncWorkflowSchedule(ctx context.Context, workflow Workflow) error
}
