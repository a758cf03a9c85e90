package handlers

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/servicehub/backend/internal/models"
	"github.com/servicehub/backend/internal/services"
	"github.com/servicehub/backend/pkg/utils"
)

type TicketHandler struct {
	service   services.TicketService
	validator *validator.Validate
}

func NewTicketHandler(service services.TicketService) *TicketHandler {
	return &TicketHandler{
		service:   service,
		validator: validator.New(),
	}
}

func (h *TicketHandler) Create(c *fiber.Ctx) error {
	var req models.TicketCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := h.validator.Struct(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error())
	}

	ticket, err := h.service.CreateTicket(c.Context(), &req)
	if err != nil {
		return respondError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusCreated, "Ticket created", ticket)
}

func (h *TicketHandler) Get(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid ID")
	}

	ticket, err := h.service.GetTicket(c.Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, "Ticket retrieved", ticket)
}

func (h *TicketHandler) List(c *fiber.Ctx) error {
	var filter models.TicketFilter
	if err := c.QueryParser(&filter); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid query parameters")
	}

	tickets, total, err := h.service.ListTickets(c.Context(), &filter)
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
	return utils.PaginatedSuccessResponse(c, tickets, page, limit, total)
}

func (h *TicketHandler) Update(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid ID")
	}

	var req models.TicketUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := h.validator.Struct(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error())
	}

	ticket, err := h.service.UpdateTicket(c.Context(), id, &req)
	if err != nil {
		return respondError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, "Ticket updated", ticket)
}

func (h *TicketHandler) Delete(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid ID")
	}

	if err := h.service.DeleteTicket(c.Context(), id); err != nil {
		return respondError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, "Ticket deleted", nil)
}
