package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/servicehub/backend/internal/services"
	"github.com/servicehub/backend/pkg/utils"
)

type AttachmentHandler struct {
	service services.AttachmentService
}

func NewAttachmentHandler(service services.AttachmentService) *AttachmentHandler {
	return &AttachmentHandler{service: service}
}

func (h *AttachmentHandler) Upload(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid ID")
	}
	stepNumber, err := c.ParamsInt("step")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid step number")
	}
	fieldName := c.FormValue("field")
	if fieldName == "" {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "field is required")
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "No file uploaded")
	}
	file, err := fileHeader.Open()
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Failed to open uploaded file")
	}
	defer file.Close()

	agentID := c.Locals("agent_id").(uuid.UUID)

	attachment, err := h.service.Attach(c.Context(), id, stepNumber, fieldName, file, fileHeader, agentID)
	if err != nil {
		return respondError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusCreated, "Attachment uploaded", attachment)
}

func (h *AttachmentHandler) ListByStep(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid ID")
	}
	stepNumber, err := c.ParamsInt("step")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid step number")
	}

	attachments, err := h.service.ListByStep(c.Context(), id, stepNumber)
	if err != nil {
		return respondError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, "Attachments retrieved", attachments)
}

func (h *AttachmentHandler) ListByInstance(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid ID")
	}

	attachments, err := h.service.ListByInstance(c.Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, "Attachments retrieved", attachments)
}

func (h *AttachmentHandler) Download(c *fiber.Ctx) error {
	attachmentID, err := uuid.Parse(c.Params("attachment_id"))
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid attachment ID")
	}

	reader, attachment, err := h.service.Download(c.Context(), attachmentID)
	if err != nil {
		return respondError(c, err)
	}

	contentType := attachment.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Set("Content-Type", contentType)
	c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", attachment.FileName))
	return c.SendStream(reader)
}

func (h *AttachmentHandler) Delete(c *fiber.Ctx) error {
	attachmentID, err := uuid.Parse(c.Params("attachment_id"))
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid attachment ID")
	}

	agentID := c.Locals("agent_id").(uuid.UUID)

	if err := h.service.Detach(c.Context(), attachmentID, agentID); err != nil {
		return respondError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, "Attachment deleted", nil)
}
