package handlers

import (
	"github.com/avataralabs/queuelabs-sub000/internal/service"
	"github.com/gofiber/fiber/v2"
)

type DispatchHandler struct {
	s service.DispatchService
}

func NewDispatchHandler(service service.DispatchService) *DispatchHandler {
	return &DispatchHandler{s: service}
}

// RunPass triggers one dispatch pass and returns its report.
func (h *DispatchHandler) RunPass(c *fiber.Ctx) error {
	report, err := h.s.RunPass(c.UserContext())
	if err != nil {
		return sendError(c, err)
	}
	// Per-item errors name content of every user; they stay in the server log.
	report.Errors = nil
	return c.JSON(report)
}
