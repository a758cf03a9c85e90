package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/servicehub/backend/internal/models"
	"github.com/servicehub/backend/pkg/utils"
)

// respondError maps workflow error codes to HTTP status. Anything that is not
// a typed workflow error is an internal failure.
func respondError(c *fiber.Ctx, err error) error {
	we, ok := err.(*models.WorkflowError)
	if !ok {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, err.Error())
	}

	status := fiber.StatusInternalServerError
	switch we.Code {
	case models.ErrCodeValidation:
		status = fiber.StatusUnprocessableEntity
	case models.ErrCodeIllegalTransition:
		status = fiber.StatusConflict
	case models.ErrCodeNotFound:
		status = fiber.StatusNotFound
	case models.ErrCodeDependencyFailure:
		status = fiber.StatusBadGateway
	case models.ErrCodeConfiguration:
		status = fiber.StatusInternalServerError
	}

	if len(we.Fields) > 0 {
		return c.Status(status).JSON(fiber.Map{
			"success": false,
			"error":   we.Message,
			"code":    we.Code,
			"fields":  we.Fields,
		})
	}
	return utils.CodedErrorResponse(c, status, we.Code, we.Message)
}
