package controllers

import (
	"errors"

	"github.com/flowbaker/autoflow/pkg/domain"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// toHTTPError maps domain sentinels to status codes. Anything unknown is a
// 500 and gets logged.
func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrWorkflowNotFound), errors.Is(err, domain.ErrExecutionNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrExecutionNotResumable), errors.Is(err, domain.ErrExecutionTerminated):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidWorkflow), errors.Is(err, domain.ErrCycleDetected):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrWebhookKeyMismatch), errors.Is(err, domain.ErrWorkflowInactive):
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	}

	log.Error().Err(err).Msg("Request failed")

	return fiber.NewError(fiber.StatusInternalServerError, "Internal server error")
}

func bindAndValidate(ctx fiber.Ctx, req any) error {
	if len(ctx.Body()) > 0 {
		if err := ctx.Bind().JSON(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
	}

	if err := validate.Struct(req); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
			first := validationErrors[0]
			return fiber.NewError(fiber.StatusBadRequest, "Invalid field "+first.Field()+": "+first.Tag())
		}

		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	return nil
}
