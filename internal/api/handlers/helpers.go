package handlers

import (
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/crosspost/internal/common"
)

func GetUserID(c *fiber.Ctx) int64 {
	raw, _ := c.Locals("user_id").(string)
	userID, _ := strconv.ParseInt(raw, 10, 64)
	return userID
}

// ErrorResponse maps a service error onto its HTTP status.
func ErrorResponse(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	msg := err.Error()

	var rl *common.RateLimitError
	switch {
	case errors.As(err, &rl):
		status = fiber.StatusTooManyRequests
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(rl.RetryAfter/time.Second)))
	case errors.Is(err, common.ErrValidation):
		status = fiber.StatusBadRequest
	case errors.Is(err, common.ErrNotFound):
		status = fiber.StatusNotFound
		msg = "not found"
	case errors.Is(err, common.ErrInvalidState):
		status = fiber.StatusConflict
	case errors.Is(err, common.ErrQuotaExceeded):
		status = fiber.StatusForbidden
	case errors.Is(err, common.ErrRateLimited):
		status = fiber.StatusTooManyRequests
	default:
		slog.Error(err.Error())
		msg = "internal server error"
	}

	return c.Status(status).JSON(fiber.Map{
		"error": msg,
	})
}

func parseTime(c *fiber.Ctx, key string) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, common.Validation("%s must be an RFC3339 timestamp", key)
	}
	return &t, nil
}
