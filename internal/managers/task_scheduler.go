package managers

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/flowbaker/autoflow/pkg/domain"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// TaskScheduler runs one-shot tasks on timers and recurring workflow runs on
// cron. Handlers are registered by name and run on their own goroutine.
type TaskScheduler struct {
	mu sync.Mutex

	clock    clock.Clock
	cron     *cron.Cron
	handlers map[domain.TaskName]domain.TaskHandler
	timers   map[string]*clock.Timer
	entries  map[string]cron.EntryID

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type TaskSchedulerDependencies struct {
	Clock clock.Clock
}

func NewTaskScheduler(deps TaskSchedulerDependencies) *TaskScheduler {
	clk := deps.Clock
	if clk == nil {
		clk = clock.New()
	}

	logger := cronLogger{logger: log.With().Str("component", "scheduler").Logger()}
	ctx, cancel := context.WithCancel(context.Background())

	return &TaskScheduler{
		clock: clk,
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.SkipIfStillRunning(logger), cron.Recover(logger)),
		),
		handlers: map[domain.TaskName]domain.TaskHandler{},
		timers:   map[string]*clock.Timer{},
		entries:  map[string]cron.EntryID{},
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (s *TaskScheduler) RegisterHandler(task domain.TaskName, handler domain.TaskHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.handlers[task] = handler
}

// ScheduleAt runs task at the given time. Times in the past run immediately.
func (s *TaskScheduler) ScheduleAt(ctx context.Context, at time.Time, task domain.TaskName, payload map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.handlers[task]; !ok {
		return "", fmt.Errorf("no handler registered for task %s", task)
	}

	taskID := uuid.NewString()

	delay := at.Sub(s.clock.Now())
	if delay < 0 {
		delay = 0
	}

	s.timers[taskID] = s.clock.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, taskID)
		s.mu.Unlock()

		s.dispatch(taskID, task, payload)
	})

	log.Debug().Str("task_id", taskID).Str("task", string(task)).Time("at", at).Msg("Task scheduled")

	return taskID, nil
}

// SyncWorkflowSchedule registers, replaces or removes the cron entry of a
// workflow. Inactive workflows and workflows without a schedule are removed.
func (s *TaskScheduler) SyncWorkflowSchedule(ctx context.Context, workflow domain.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.entries[workflow.ID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, workflow.ID)
	}

	if workflow.Schedule == "" || !workflow.IsActive() {
		return nil
	}

	schedule, err := cron.ParseStandard(workflow.Schedule)
	if err != nil {
		return fmt.Errorf("invalid cron expression for workflow %s: %w", workflow.ID, err)
	}

	workflowID := workflow.ID

	s.entries[workflowID] = s.cron.Schedule(schedule, cron.FuncJob(func() {
		s.dispatch(uuid.NewString(), domain.TaskExecuteWorkflow, map[string]any{
			"workflow_id": workflowID,
			"source":      string(domain.TriggerSourceSchedule),
		})
	}))

	log.Info().Str("workflow_id", workflowID).Str("schedule", workflow.Schedule).Msg("Workflow schedule registered")

	return nil
}

// ScheduledWorkflows lists the workflow ids with an active cron entry.
func (s *TaskScheduler) ScheduledWorkflows() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return ids
}

func (s *TaskScheduler) Start() {
	s.cron.Start()
}

// Stop cancels pending timers and waits for running tasks until ctx is done.
func (s *TaskScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	cronDone := s.cron.Stop()
	s.cancel()

	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *TaskScheduler) dispatch(taskID string, task domain.TaskName, payload map[string]any) {
	s.mu.Lock()
	handler, ok := s.handlers[task]
	s.mu.Unlock()

	if !ok {
		log.Error().Str("task_id", taskID).Str("task", string(task)).Msg("No handler registered for task")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		defer func() {
			if r := recover(); r != nil {
				log.Error().Str("task_id", taskID).Interface("panic", r).Msg("Task panicked")
			}
		}()

		if err := handler(s.ctx, payload); err != nil {
			log.Error().Err(err).Str("task_id", taskID).Str("task", string(task)).Msg("Task failed")
			return
		}

		log.Debug().Str("task_id", taskID).Str("task", string(task)).Msg("Task completed")
	}()
}

type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
