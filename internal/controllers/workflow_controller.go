package controllers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/flowbaker/autoflow/pkg/domain"
	"github.com/flowbaker/autoflow/pkg/domain/executor"
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"
)

type WorkflowRepository interface {
	Get(ctx context.Context, workflowID string) (domain.Workflow, error)
	Save(ctx context.Context, workflow domain.Workflow) (domain.Workflow, error)
}

type WorkflowController struct {
	workflows       WorkflowRepository
	executorService executor.WorkflowExecutorService
}

type WorkflowControllerDependencies struct {
	Workflows               WorkflowRepository
	WorkflowExecutorService executor.WorkflowExecutorService
}

func NewWorkflowController(deps WorkflowControllerDependencies) *WorkflowController {
	return &WorkflowController{
		workflows:       deps.Workflows,
		executorService: deps.WorkflowExecutorService,
	}
}

type SaveWorkflowRequest struct {
	Name     string                          `json:"name"`
	Status   domain.WorkflowActivationStatus `json:"status" validate:"omitempty,oneof=active inactive"`
	Nodes    []domain.Node                   `json:"nodes" validate:"required,dive"`
	Edges    []domain.Edge                   `json:"edges" validate:"dive"`
	Schedule string                          `json:"schedule" validate:"omitempty,cron"`
}

type StartExecutionRequest struct {
	Input any        `json:"input"`
	RunAt *time.Time `json:"run_at"`
}

type ChatActionRequest struct {
	ChatNodeID   string         `json:"chat_node_id" validate:"required"`
	ActionID     string         `json:"action_id" validate:"required"`
	ActionParams map[string]any `json:"action_params"`
}

func (c *WorkflowController) GetWorkflow(ctx fiber.Ctx) error {
	workflow, err := c.workflows.Get(ctx.Context(), ctx.Params("workflowID"))
	if err != nil {
		return toHTTPError(err)
	}

	return ctx.JSON(workflow)
}

func (c *WorkflowController) SaveWorkflow(ctx fiber.Ctx) error {
	var req SaveWorkflowRequest
	if err := bindAndValidate(ctx, &req); err != nil {
		return err
	}

	workflow, err := c.workflows.Save(ctx.Context(), domain.Workflow{
		ID:       ctx.Params("workflowID"),
		Name:     req.Name,
		Status:   req.Status,
		Nodes:    req.Nodes,
		Edges:    req.Edges,
		Schedule: req.Schedule,
	})
	if err != nil {
		return toHTTPError(err)
	}

	return ctx.JSON(workflow)
}

// StartExecution runs the workflow manually. With run_at it only records a
// scheduled execution; with ?async=true it returns before the run finishes.
func (c *WorkflowController) StartExecution(ctx fiber.Ctx) error {
	var req StartExecutionRequest
	if err := bindAndValidate(ctx, &req); err != nil {
		return err
	}

	workflowID := ctx.Params("workflowID")

	if req.RunAt != nil {
		executionID, err := c.executorService.ScheduleExecution(ctx.Context(), executor.ScheduleExecutionParams{
			WorkflowID: workflowID,
			Input:      req.Input,
			At:         *req.RunAt,
		})
		if err != nil {
			return toHTTPError(err)
		}

		return ctx.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"execution_id": executionID,
			"status":       domain.ExecutionStatusScheduled,
		})
	}

	params := executor.ExecuteParams{
		WorkflowID: workflowID,
		Input:      req.Input,
		Source:     domain.TriggerSourceManual,
	}

	if fiber.Query[bool](ctx, "async") {
		executionID, err := c.executorService.Start(ctx.Context(), params)
		if err != nil {
			return toHTTPError(err)
		}

		return ctx.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"execution_id": executionID,
			"status":       domain.ExecutionStatusProcessing,
		})
	}

	result, err := c.executorService.Execute(ctx.Context(), params)
	if err != nil {
		return toHTTPError(err)
	}

	return ctx.JSON(result)
}

func (c *WorkflowController) HandleWebhook(ctx fiber.Ctx) error {
	var payload any
	if body := ctx.Body(); len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			payload = string(body)
		}
	}

	key := ctx.Get("X-Webhook-Key")
	if key == "" {
		key = ctx.Query("key")
	}

	workflowID := ctx.Params("workflowID")

	log.Info().Str("workflow_id", workflowID).Msg("Webhook received")

	result, err := c.executorService.HandleWebhook(ctx.Context(), executor.WebhookParams{
		WorkflowID: workflowID,
		Key:        key,
		Payload:    payload,
	})
	if err != nil {
		return toHTTPError(err)
	}

	return ctx.JSON(result)
}

func (c *WorkflowController) ExecuteChatAction(ctx fiber.Ctx) error {
	var req ChatActionRequest
	if err := bindAndValidate(ctx, &req); err != nil {
		return err
	}

	result, err := c.executorService.ExecuteChatAction(ctx.Context(), executor.ChatActionParams{
		WorkflowID:   ctx.Params("workflowID"),
		ChatNodeID:   req.ChatNodeID,
		ActionID:     req.ActionID,
		ActionParams: req.ActionParams,
	})
	if err != nil {
		return toHTTPError(err)
	}

	return ctx.JSON(result)
}
