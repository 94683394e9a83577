package initialization

import (
	"context"
	"fmt"
	"net/http"

	"github.com/benbjohnson/clock"
	"github.com/flowbaker/autoflow/internal/controllers"
	"github.com/flowbaker/autoflow/internal/managers"
	"github.com/flowbaker/autoflow/internal/server"
	"github.com/flowbaker/autoflow/pkg/domain"
	"github.com/flowbaker/autoflow/pkg/domain/executor"
	"github.com/flowbaker/autoflow/pkg/expressions"
	"github.com/flowbaker/autoflow/pkg/integrations/output"
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"
)

// Container holds the wired engine. Commands build one per process.
type Container struct {
	Config    domain.EngineConfig
	Storage   Storage
	Scheduler *managers.TaskScheduler
	Workflows *managers.WorkflowManager
	Executor  executor.WorkflowExecutorService
	App       *fiber.App
}

type ContainerOptions struct {
	Config domain.EngineConfig
	Clock  clock.Clock
}

func NewContainer(ctx context.Context, opts ContainerOptions) (*Container, error) {
	log.Info().Str("storage_driver", string(opts.Config.Storage.Driver)).Msg("Building engine dependencies")

	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}

	config := opts.Config

	storage, err := OpenStorage(ctx, config.Storage, clk)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: config.Engine.HTTPTimeout}

	providers, err := buildProviders(ctx, config)
	if err != nil {
		storage.Close()
		return nil, err
	}

	scheduler := managers.NewTaskScheduler(managers.TaskSchedulerDependencies{
		Clock: clk,
	})

	sink := managers.NewContentSink(managers.ContentSinkDependencies{
		Outputs:    storage,
		HTTPClient: httpClient,
		Google:     providers.Google,
	})

	usage := managers.NewUsageRecorder(managers.UsageRecorderDependencies{
		Store: storage,
	})

	workflowManager := managers.NewWorkflowManager(managers.WorkflowManagerDependencies{
		Store:     storage,
		Scheduler: scheduler,
	})

	site := config.Site.Variables()

	resolver := expressions.NewTemplateResolver(expressions.TemplateResolverOptions{
		Clock:  clk,
		Site:   site,
		Logger: log.Logger,
	})

	outputIntegration := output.NewOutputIntegration(output.OutputIntegrationDependencies{
		Sink:      sink,
		Scheduler: scheduler,
		Clock:     clk,
	})

	selector := domain.NewExecutorSelector()

	registerExecutors(selector, executorDependencies{
		Config:     config,
		Clock:      clk,
		HTTPClient: httpClient,
		Storage:    storage,
		Providers:  providers,
		Usage:      usage,
		Output:     outputIntegration,
	})

	service := executor.NewWorkflowExecutorService(executor.WorkflowExecutorServiceDependencies{
		WorkflowStore:  storage,
		ExecutionStore: storage.ExecutionStore(),
		Selector:       selector,
		Resolver:       resolver,
		Scheduler:      scheduler,
		Clock:          clk,
		Site:           site,
		Options: executor.WorkflowExecutorOptions{
			NodeDelay:             config.Engine.NodeDelay,
			SkipReconvergingNodes: config.Engine.SkipReconvergingNodes,
		},
	})

	service.RegisterTaskHandlers(scheduler)
	outputIntegration.RegisterTaskHandlers(scheduler)

	app := server.NewHTTPServer(server.HTTPServerDependencies{
		WorkflowController: controllers.NewWorkflowController(controllers.WorkflowControllerDependencies{
			Workflows:               workflowManager,
			WorkflowExecutorService: service,
		}),
		ExecutionController: controllers.NewExecutionController(controllers.ExecutionControllerDependencies{
			WorkflowExecutorService: service,
		}),
	})

	log.Info().Msg("Engine dependencies built successfully")

	return &Container{
		Config:    config,
		Storage:   storage,
		Scheduler: scheduler,
		Workflows: workflowManager,
		Executor:  service,
		App:       app,
	}, nil
}

// StartScheduler registers cron entries for every active scheduled workflow
// and starts the task scheduler.
func (c *Container) StartScheduler(ctx context.Context) error {
	if err := c.Workflows.SyncSchedules(ctx); err != nil {
		return fmt.Errorf("failed to sync workflow schedules: %w", err)
	}

	c.Scheduler.Start()

	return nil
}

func (c *Container) Close(ctx context.Context) error {
	if err := c.Scheduler.Stop(ctx); err != nil {
		log.Warn().Err(err).Msg("Task scheduler did not stop cleanly")
	}

	if err := c.Storage.Close(); err != nil {
		return fmt.Errorf("failed to close storage: %w", err)
	}

	return nil
}
