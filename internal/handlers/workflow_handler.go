package handlers

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/servicehub/backend/internal/catalog"
	"github.com/servicehub/backend/internal/models"
	"github.com/servicehub/backend/internal/services"
	"github.com/servicehub/backend/pkg/utils"
)

type WorkflowHandler struct {
	service   services.WorkflowService
	validator *validator.Validate
}

func NewWorkflowHandler(service services.WorkflowService) *WorkflowHandler {
	return &WorkflowHandler{
		service:   service,
		validator: validator.New(),
	}
}

// GetCatalog returns the step catalog so clients can render forms.
func (h *WorkflowHandler) GetCatalog(c *fiber.Ctx) error {
	return utils.SuccessResponse(c, fiber.StatusOK, "Step catalog retrieved", catalog.Definitions())
}

func (h *WorkflowHandler) CreateInstance(c *fiber.Ctx) error {
	var req models.WorkflowCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := h.validator.Struct(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error())
	}

	agentID := c.Locals("agent_id").(uuid.UUID)

	instance, created, err := h.service.CreateOrGetInstance(c.Context(), &req, agentID)
	if err != nil {
		return respondError(c, err)
	}

	if created {
		return utils.SuccessResponse(c, fiber.StatusCreated, "Workflow instance created", instance)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, "Workflow instance already exists", instance)
}

func (h *WorkflowHandler) GetInstance(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid ID")
	}

	instance, err := h.service.GetInstance(c.Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, "Workflow instance retrieved", instance)
}

// Lookup resolves an instance by its natural key.
func (h *WorkflowHandler) Lookup(c *fiber.Ctx) error {
	ticketID, err := uuid.Parse(c.Query("ticket_id"))
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid ticket_id")
	}
	deviceSerial := c.Query("device_serial_number")
	if deviceSerial == "" {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "device_serial_number is required")
	}

	instance, err := h.service.GetInstanceByTicketAndDevice(c.Context(), ticketID, deviceSerial)
	if err != nil {
		return respondError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, "Workflow instance retrieved", instance)
}

func (h *WorkflowHandler) ListInstances(c *fiber.Ctx) error {
	var filter models.InstanceFilter
	if err := c.QueryParser(&filter); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid query parameters")
	}

	instances, total, err := h.service.ListInstances(c.Context(), &filter)
	if err != nil {
		return respondError(c, err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return utils.PaginatedSuccessResponse(c, instances, page, limit, total)
}

func (h *WorkflowHandler) ListByTicket(c *fiber.Ctx) error {
	ticketID, err := uuid.Parse(c.Params("ticket_id"))
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid ticket ID")
	}

	instances, err := h.service.ListByTicket(c.Context(), ticketID)
	if err != nil {
		return respondError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, "Workflow instances retrieved", instances)
}

func (h *WorkflowHandler) SaveStep(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid ID")
	}
	stepNumber, err := c.ParamsInt("step")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid step number")
	}

	var req models.SaveStepRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := h.validator.Struct(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error())
	}

	agentID := c.Locals("agent_id").(uuid.UUID)

	instance, err := h.service.SaveStep(c.Context(), id, stepNumber, &req, agentID)
	if err != nil {
		return respondError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, "Step saved", instance)
}

func (h *WorkflowHandler) SkipStep(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid ID")
	}
	stepNumber, err := c.ParamsInt("step")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid step number")
	}

	agentID := c.Locals("agent_id").(uuid.UUID)

	instance, err := h.service.SkipStep(c.Context(), id, stepNumber, agentID)
	if err != nil {
		return respondError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, "Step skipped", instance)
}

func (h *WorkflowHandler) ReopenStep(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid ID")
	}
	stepNumber, err := c.ParamsInt("step")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid step number")
	}

	agentID := c.Locals("agent_id").(uuid.UUID)

	instance, err := h.service.ReopenStep(c.Context(), id, stepNumber, agentID)
	if err != nil {
		return respondError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, "Step reopened", instance)
}

func (h *WorkflowHandler) SetStatus(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid ID")
	}

	var req models.InstanceStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := h.validator.Struct(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error())
	}

	agentID := c.Locals("agent_id").(uuid.UUID)

	instance, err := h.service.SetInstanceStatus(c.Context(), id, models.InstanceStatus(req.Status), agentID)
	if err != nil {
		return respondError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, "Workflow status updated", instance)
}

func (h *WorkflowHandler) GetAuditTrail(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid ID")
	}

	records, err := h.service.ListAuditTrail(c.Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, "Audit trail retrieved", records)
}
