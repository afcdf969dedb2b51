package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/crosspost/internal/common"
	"github.com/maheshrc27/crosspost/internal/service"
	"github.com/maheshrc27/crosspost/internal/transfer"
)

type MediaHandler struct {
	s service.MediaService
}

func NewMediaHandler(service service.MediaService) *MediaHandler {
	return &MediaHandler{s: service}
}

func (h *MediaHandler) RegisterUpload(c *fiber.Ctx) error {
	var req transfer.MediaUploadRequest
	if err := c.BodyParser(&req); err != nil {
		return ErrorResponse(c, common.InvalidMedia("unable to parse request body"))
	}

	resp, err := h.s.RegisterUpload(c.Context(), GetUserID(c), c.Params("id"), &req)
	if err != nil {
		return ErrorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (h *MediaHandler) CompleteUpload(c *fiber.Ctx) error {
	if err := h.s.CompleteUpload(c.Context(), GetUserID(c), c.Params("id")); err != nil {
		return ErrorResponse(c, err)
	}
	return c.SendStatus(fiber.StatusAccepted)
}
