package server

import (
	"time"

	"github.com/flowbaker/autoflow/internal/controllers"
	"github.com/flowbaker/autoflow/internal/version"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
)

type HTTPServerDependencies struct {
	WorkflowController  *controllers.WorkflowController
	ExecutionController *controllers.ExecutionController
}

func NewHTTPServer(deps HTTPServerDependencies) *fiber.App {
	router := fiber.New(fiber.Config{
		AppName: "autoflow",
	})

	router.Use(recover.New())
	router.Use(cors.New())
	router.Use(logger.New())

	router.Get("/health", func(c fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":    "healthy",
			"service":   "autoflow",
			"version":   version.GetVersion(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	workflows := router.Group("/workflows/:workflowID")

	workflows.Get("/", deps.WorkflowController.GetWorkflow)
	workflows.Put("/", deps.WorkflowController.SaveWorkflow)
	workflows.Post("/executions", deps.WorkflowController.StartExecution)
	workflows.Post("/webhook", deps.WorkflowController.HandleWebhook)
	workflows.Post("/chat-actions", deps.WorkflowController.ExecuteChatAction)

	executions := router.Group("/executions/:executionID")

	executions.Get("/", deps.ExecutionController.GetExecution)
	executions.Post("/resume", deps.ExecutionController.ResumeExecution)
	executions.Post("/terminate", deps.ExecutionController.TerminateExecution)

	return router
}
