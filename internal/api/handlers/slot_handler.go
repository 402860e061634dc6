package handlers

import (
	"github.com/avataralabs/queuelabs-sub000/internal/models"
	"github.com/avataralabs/queuelabs-sub000/internal/service"
	"github.com/gofiber/fiber/v2"
)

type SlotHandler struct {
	s service.SlotService
}

func NewSlotHandler(service service.SlotService) *SlotHandler {
	return &SlotHandler{s: service}
}

type slotRequest struct {
	ProfileID int64   `json:"profile_id"`
	Platform  string  `json:"platform"`
	Hour      int     `json:"hour"`
	Minute    int     `json:"minute"`
	Type      string  `json:"type"`
	WeekDays  []int64 `json:"week_days"`
	IsActive  *bool   `json:"is_active"`
}

func (r *slotRequest) toModel() *models.ScheduleSlot {
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}
	return &models.ScheduleSlot{
		ProfileID: r.ProfileID,
		Platform:  r.Platform,
		Hour:      r.Hour,
		Minute:    r.Minute,
		Type:      r.Type,
		WeekDays:  r.WeekDays,
		IsActive:  active,
	}
}

func (h *SlotHandler) List(c *fiber.Ctx) error {
	slots, err := h.s.List(c.UserContext(), GetUserID(c), int64(c.QueryInt("profile_id", 0)), c.Query("platform"))
	if err != nil {
		return sendError(c, err)
	}
	return c.JSON(slots)
}

func (h *SlotHandler) Create(c *fiber.Ctx) error {
	var req slotRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	slot, err := h.s.Create(c.UserContext(), GetUserID(c), req.toModel())
	if err != nil {
		return sendError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(slot)
}

func (h *SlotHandler) Update(c *fiber.Ctx) error {
	id, err := ParamID(c, "id")
	if err != nil {
		return sendError(c, err)
	}
	var req slotRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	slot := req.toModel()
	slot.ID = id
	updated, err := h.s.Update(c.UserContext(), GetUserID(c), slot)
	if err != nil {
		return sendError(c, err)
	}
	return c.JSON(updated)
}

func (h *SlotHandler) Activate(c *fiber.Ctx) error {
	return h.setActive(c, true)
}

func (h *SlotHandler) Deactivate(c *fiber.Ctx) error {
	return h.setActive(c, false)
}

func (h *SlotHandler) setActive(c *fiber.Ctx, active bool) error {
	id, err := ParamID(c, "id")
	if err != nil {
		return sendError(c, err)
	}
	if err := h.s.SetActive(c.UserContext(), GetUserID(c), id, active); err != nil {
		return sendError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *SlotHandler) Delete(c *fiber.Ctx) error {
	id, err := ParamID(c, "id")
	if err != nil {
		return sendError(c, err)
	}
	released, err := h.s.Delete(c.UserContext(), GetUserID(c), id)
	if err != nil {
		return sendError(c, err)
	}
	return c.JSON(fiber.Map{
		"released": released,
	})
}
