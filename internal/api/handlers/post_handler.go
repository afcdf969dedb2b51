package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/crosspost/internal/service"
	"github.com/maheshrc27/crosspost/internal/transfer"
)

type PostHandler struct {
	s service.PostService
}

func NewPostHandler(service service.PostService) *PostHandler {
	return &PostHandler{s: service}
}

func (h *PostHandler) CreatePost(c *fiber.Ctx) error {
	userID := GetUserID(c)

	var req transfer.PostGroupRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request body",
		})
	}

	group, err := h.s.Create(c.Context(), userID, &req)
	if err != nil {
		return ErrorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(group)
}

func (h *PostHandler) GetPost(c *fiber.Ctx) error {
	group, err := h.s.Get(c.Context(), GetUserID(c), c.Params("id"))
	if err != nil {
		return ErrorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(group)
}

func (h *PostHandler) ListPosts(c *fiber.Ctx) error {
	from, err := parseTime(c, "from")
	if err != nil {
		return ErrorResponse(c, err)
	}
	to, err := parseTime(c, "to")
	if err != nil {
		return ErrorResponse(c, err)
	}

	list, err := h.s.List(c.Context(), GetUserID(c), &transfer.PostGroupListQuery{
		Page:     c.QueryInt("page", 1),
		Limit:    c.QueryInt("limit", 0),
		Status:   c.Query("status"),
		Platform: c.Query("platform"),
		From:     from,
		To:       to,
	})
	if err != nil {
		return ErrorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(list)
}

func (h *PostHandler) UpdatePost(c *fiber.Ctx) error {
	var req transfer.PostGroupUpdate
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request body",
		})
	}

	group, err := h.s.Update(c.Context(), GetUserID(c), c.Params("id"), &req)
	if err != nil {
		return ErrorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(group)
}

func (h *PostHandler) RemovePost(c *fiber.Ctx) error {
	if err := h.s.Delete(c.Context(), GetUserID(c), c.Params("id")); err != nil {
		return ErrorResponse(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *PostHandler) Quota(c *fiber.Ctx) error {
	usage, err := h.s.Quota(c.Context(), GetUserID(c))
	if err != nil {
		return ErrorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"pending": usage.Pending,
		"limit":   usage.Limit,
	})
}
