package handlers

import (
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/servicehub/backend/internal/models"
	"github.com/servicehub/backend/internal/services"
	"github.com/servicehub/backend/pkg/utils"
)

type AgentHandler struct {
	service   services.AgentService
	validator *validator.Validate
}

func NewAgentHandler(service services.AgentService) *AgentHandler {
	return &AgentHandler{
		service:   service,
		validator: validator.New(),
	}
}

func (h *AgentHandler) Register(c *fiber.Ctx) error {
	var req models.AgentRegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := h.validator.Struct(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error())
	}

	auth, err := h.service.Register(c.Context(), &req)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusConflict, err.Error())
	}
	return utils.SuccessResponse(c, fiber.StatusCreated, "Agent registered", auth)
}

func (h *AgentHandler) Login(c *fiber.Ctx) error {
	var req models.AgentLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := h.validator.Struct(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error())
	}

	auth, err := h.service.Login(c.Context(), &req)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, err.Error())
	}
	return utils.SuccessResponse(c, fiber.StatusOK, "Login successful", auth)
}

func (h *AgentHandler) Logout(c *fiber.Ctx) error {
	agentID := c.Locals("agent_id").(uuid.UUID)
	token := c.Locals("token").(string)
	if err := h.service.Logout(c.Context(), agentID, token); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to logout")
	}
	return utils.SuccessResponse(c, fiber.StatusOK, "Logged out", nil)
}

func (h *AgentHandler) GetProfile(c *fiber.Ctx) error {
	agentID := c.Locals("agent_id").(uuid.UUID)

	profile, err := h.service.GetProfile(c.Context(), agentID)
	if err != nil {
		return respondError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, "Profile retrieved", profile)
}

func (h *AgentHandler) UpdateProfile(c *fiber.Ctx) error {
	agentID := c.Locals("agent_id").(uuid.UUID)

	var req models.AgentUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := h.validator.Struct(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error())
	}
	// Role and activation changes go through the admin endpoint.
	req.Role = nil
	req.IsActive = nil

	profile, err := h.service.UpdateProfile(c.Context(), agentID, &req)
	if err != nil {
		return respondError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, "Profile updated", profile)
}

func (h *AgentHandler) ChangePassword(c *fiber.Ctx) error {
	agentID := c.Locals("agent_id").(uuid.UUID)

	var req models.ChangePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := h.validator.Struct(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.ChangePassword(c.Context(), agentID, &req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error())
	}
	return utils.SuccessResponse(c, fiber.StatusOK, "Password changed", nil)
}

func (h *AgentHandler) List(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))

	agents, total, err := h.service.ListAgents(c.Context(), page, limit)
	if err != nil {
		return respondError(c, err)
	}
	return utils.PaginatedSuccessResponse(c, agents, page, limit, total)
}

func (h *AgentHandler) AdminUpdate(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid ID")
	}

	var req models.AgentUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := h.validator.Struct(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error())
	}

	agent, err := h.service.AdminUpdateAgent(c.Context(), id, &req)
	if err != nil {
		return respondError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, "Agent updated", agent)
}
