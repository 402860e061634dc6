package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"time"

	"github.com/avataralabs/queuelabs-sub000/internal/service"
	"github.com/gofiber/fiber/v2"
)

type ContentHandler struct {
	s service.ContentService
}

func NewContentHandler(service service.ContentService) *ContentHandler {
	return &ContentHandler{s: service}
}

// Upload takes a multipart form with a "file" part, optional "caption" and
// "description", and a "targets" JSON array of {profile_id, platform}.
func (h *ContentHandler) Upload(c *fiber.Ctx) error {
	userID := GetUserID(c)

	file, err := c.FormFile("file")
	if err != nil {
		slog.Info(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No file selected",
		})
	}

	var targets []service.UploadTarget
	if raw := c.FormValue("targets"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &targets); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid targets format",
			})
		}
	}

	f, err := file.Open()
	if err != nil {
		return sendError(c, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return sendError(c, err)
	}

	results, err := h.s.Upload(c.UserContext(), &service.UploadInput{
		UserID:      userID,
		FileName:    file.Filename,
		Caption:     c.FormValue("caption"),
		Description: c.FormValue("description"),
		Data:        data,
		Targets:     targets,
	})
	if err != nil {
		return sendError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"results": results,
	})
}

type assignNextSlotResponse struct {
	Success       bool      `json:"success"`
	SlotID        int64     `json:"slot_id,omitempty"`
	Hour          int       `json:"hour"`
	Minute        int       `json:"minute"`
	ScheduledAt   time.Time `json:"scheduled_at"`
	ScheduledDate string    `json:"scheduled_date,omitempty"`
}

// AssignNextSlot is the reservation RPC. The caller's provisional row is
// deleted when no reservation materializes.
func (h *ContentHandler) AssignNextSlot(c *fiber.Ctx) error {
	userID := GetUserID(c)

	var req service.ReserveRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request body",
		})
	}
	if req.UserID != 0 && req.UserID != userID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"success": false,
			"error":   "userId does not match the session",
		})
	}
	req.UserID = userID

	a, err := h.s.AssignNextSlot(c.UserContext(), req)
	if err != nil {
		return c.Status(errorStatus(err)).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}

	return c.JSON(assignNextSlotResponse{
		Success:       true,
		SlotID:        a.SlotID,
		Hour:          a.Hour,
		Minute:        a.Minute,
		ScheduledAt:   a.ScheduledAt,
		ScheduledDate: a.ScheduledDate,
	})
}

func (h *ContentHandler) List(c *fiber.Ctx) error {
	contents, err := h.s.List(c.UserContext(), GetUserID(c), c.Query("status"))
	if err != nil {
		return sendError(c, err)
	}
	return c.JSON(contents)
}

func (h *ContentHandler) Get(c *fiber.Ctx) error {
	id, err := ParamID(c, "id")
	if err != nil {
		return sendError(c, err)
	}
	content, err := h.s.Get(c.UserContext(), GetUserID(c), id)
	if err != nil {
		return sendError(c, err)
	}
	return c.JSON(content)
}

func (h *ContentHandler) Unschedule(c *fiber.Ctx) error {
	return h.transition(c, h.s.Unschedule)
}

func (h *ContentHandler) Trash(c *fiber.Ctx) error {
	return h.transition(c, h.s.Trash)
}

func (h *ContentHandler) Restore(c *fiber.Ctx) error {
	return h.transition(c, h.s.Restore)
}

func (h *ContentHandler) Delete(c *fiber.Ctx) error {
	return h.transition(c, h.s.Delete)
}

func (h *ContentHandler) Reassign(c *fiber.Ctx) error {
	id, err := ParamID(c, "id")
	if err != nil {
		return sendError(c, err)
	}
	a, err := h.s.Reassign(c.UserContext(), GetUserID(c), id)
	if err != nil {
		return sendError(c, err)
	}
	return c.JSON(a)
}

func (h *ContentHandler) History(c *fiber.Ctx) error {
	history, err := h.s.History(c.UserContext(), GetUserID(c), c.QueryInt("limit", 100))
	if err != nil {
		return sendError(c, err)
	}
	return c.JSON(history)
}

func (h *ContentHandler) transition(c *fiber.Ctx, op func(ctx context.Context, userID, contentID int64) error) error {
	id, err := ParamID(c, "id")
	if err != nil {
		return sendError(c, err)
	}
	if err := op(c.UserContext(), GetUserID(c), id); err != nil {
		return sendError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
