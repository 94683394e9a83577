package controllers

import (
	"github.com/flowbaker/autoflow/pkg/domain"
	"github.com/flowbaker/autoflow/pkg/domain/executor"
	"github.com/gofiber/fiber/v3"
)

type ExecutionController struct {
	executorService executor.WorkflowExecutorService
}

type ExecutionControllerDependencies struct {
	WorkflowExecutorService executor.WorkflowExecutorService
}

func NewExecutionController(deps ExecutionControllerDependencies) *ExecutionController {
	return &ExecutionController{
		executorService: deps.WorkflowExecutorService,
	}
}

type ResumeExecutionRequest struct {
	NodeID      string `json:"node_id" validate:"required"`
	HumanAction string `json:"human_action" validate:"required,oneof=approve revert"`
	HumanInput  any    `json:"human_input"`
}

// GetExecution serves the polling view.
func (c *ExecutionController) GetExecution(ctx fiber.Ctx) error {
	execution, err := c.executorService.GetExecution(ctx.Context(), ctx.Params("executionID"))
	if err != nil {
		return toHTTPError(err)
	}

	return ctx.JSON(execution.View())
}

func (c *ExecutionController) ResumeExecution(ctx fiber.Ctx) error {
	var req ResumeExecutionRequest
	if err := bindAndValidate(ctx, &req); err != nil {
		return err
	}

	result, err := c.executorService.Resume(ctx.Context(), executor.ResumeParams{
		ExecutionID: ctx.Params("executionID"),
		NodeID:      req.NodeID,
		HumanAction: domain.HumanAction(req.HumanAction),
		HumanInput:  req.HumanInput,
	})
	if err != nil {
		return toHTTPError(err)
	}

	return ctx.JSON(result)
}

func (c *ExecutionController) TerminateExecution(ctx fiber.Ctx) error {
	executionID := ctx.Params("executionID")

	if err := c.executorService.Terminate(ctx.Context(), executionID); err != nil {
		return toHTTPError(err)
	}

	return ctx.JSON(fiber.Map{
		"execution_id": executionID,
		"status":       domain.ExecutionStatusTerminated,
	})
}
