package handlers

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/avataralabs/queuelabs-sub000/internal/logger"
	"github.com/avataralabs/queuelabs-sub000/internal/service"
	"github.com/gofiber/fiber/v2"
)

func GetUserID(c *fiber.Ctx) int64 {
	raw, _ := c.Locals("user_id").(string)
	userID, _ := strconv.ParseInt(raw, 10, 64)
	return userID
}

// ParamID reads a positive integer path parameter.
func ParamID(c *fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func errorStatus(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, service.ErrInvalidInput):
		return fiber.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, service.ErrNoAvailableSlot),
		errors.Is(err, service.ErrReservationContention),
		errors.Is(err, service.ErrInvalidState):
		return fiber.StatusConflict
	}
	return fiber.StatusInternalServerError
}

// sendError writes an {"error": ...} body. Internal errors
// are logged and replaced with a generic message.
func sendError(c *fiber.Ctx, err error) error {
	status := errorStatus(err)
	msg := err.Error()
	if status == fiber.StatusInternalServerError {
		logger.FromContext(c.UserContext(), slog.Default()).Error("request failed",
			"method", c.Method(), "path", c.Path(), "error", err)
		msg = "Something went wrong"
	}
	return c.Status(status).JSON(fiber.Map{"error": msg})
}
