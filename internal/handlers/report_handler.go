package handlers

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/servicehub/backend/internal/models"
	"github.com/servicehub/backend/internal/services"
	"github.com/servicehub/backend/pkg/utils"
)

type ReportHandler struct {
	service   services.ReportService
	validator *validator.Validate
}

func NewReportHandler(service services.ReportService) *ReportHandler {
	return &ReportHandler{
		service:   service,
		validator: validator.New(),
	}
}

func (h *ReportHandler) Generate(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid ID")
	}

	// The body is optional; an empty one yields a draft report.
	var req models.GenerateReportRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body")
		}
	}
	if err := h.validator.Struct(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error())
	}

	agentID := c.Locals("agent_id").(uuid.UUID)

	report, err := h.service.Generate(c.Context(), id, models.ReportType(req.ReportType), agentID)
	if err != nil {
		return respondError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusCreated, "Report generated", report)
}

func (h *ReportHandler) List(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid ID")
	}

	reports, err := h.service.ListReports(c.Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, "Reports retrieved", reports)
}

func (h *ReportHandler) Download(c *fiber.Ctx) error {
	reportID, err := uuid.Parse(c.Params("report_id"))
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid report ID")
	}

	url, err := h.service.Download(c.Context(), reportID)
	if err != nil {
		return respondError(c, err)
	}
	return c.Redirect(url, fiber.StatusTemporaryRedirect)
}

func (h *ReportHandler) Delete(c *fiber.Ctx) error {
	reportID, err := uuid.Parse(c.Params("report_id"))
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid report ID")
	}

	if err := h.service.DeleteReport(c.Context(), reportID); err != nil {
		return respondError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, "Report deleted", nil)
}
