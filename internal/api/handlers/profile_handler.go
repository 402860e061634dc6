package handlers

import (
	"time"

	"github.com/avataralabs/queuelabs-sub000/internal/service"
	"github.com/gofiber/fiber/v2"
)

type ProfileHandler struct {
	s      service.ProfileService
	assign service.AssignService
}

func NewProfileHandler(service service.ProfileService, assign service.AssignService) *ProfileHandler {
	return &ProfileHandler{s: service, assign: assign}
}

func (h *ProfileHandler) List(c *fiber.Ctx) error {
	profiles, err := h.s.List(c.UserContext(), GetUserID(c))
	if err != nil {
		return sendError(c, err)
	}
	return c.JSON(profiles)
}

func (h *ProfileHandler) Create(c *fiber.Ctx) error {
	var in service.ProfileInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	profile, err := h.s.Create(c.UserContext(), GetUserID(c), &in)
	if err != nil {
		return sendError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(profile)
}

func (h *ProfileHandler) Delete(c *fiber.Ctx) error {
	id, err := ParamID(c, "id")
	if err != nil {
		return sendError(c, err)
	}
	if err := h.s.Delete(c.UserContext(), GetUserID(c), id); err != nil {
		return sendError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type previewItem struct {
	SlotID        int64  `json:"slot_id"`
	Hour          int    `json:"hour"`
	Minute        int    `json:"minute"`
	ScheduledAt   string `json:"scheduled_at"`
	ScheduledDate string `json:"scheduled_date"`
}

// Preview lists the next free instants of a profile on a platform.
func (h *ProfileHandler) Preview(c *fiber.Ctx) error {
	id, err := ParamID(c, "id")
	if err != nil {
		return sendError(c, err)
	}
	owned, err := h.ownsProfile(c, id)
	if err != nil {
		return sendError(c, err)
	}
	if !owned {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Profile not found",
		})
	}

	candidates, err := h.assign.Preview(c.UserContext(), id, c.Query("platform"), c.QueryInt("count", 5))
	if err != nil {
		return sendError(c, err)
	}

	out := make([]previewItem, 0, len(candidates))
	for _, cand := range candidates {
		out = append(out, previewItem{
			SlotID:        cand.Slot.ID,
			Hour:          cand.Slot.Hour,
			Minute:        cand.Slot.Minute,
			ScheduledAt:   cand.ScheduledAt.Format(time.RFC3339),
			ScheduledDate: cand.Date.String(),
		})
	}
	return c.JSON(out)
}

func (h *ProfileHandler) ownsProfile(c *fiber.Ctx, id int64) (bool, error) {
	profiles, err := h.s.List(c.UserContext(), GetUserID(c))
	if err != nil {
		return false, err
	}
	for _, p := range profiles {
		if p.ID == id {
			return true, nil
		}
	}
	return false, nil
}
