package handlers

import "github.com/gofiber/fiber/v2"

type Handlers struct {
	Content  *ContentHandler
	Slots    *SlotHandler
	Profiles *ProfileHandler
	Dispatch *DispatchHandler
}

// Register mounts every API route on api, which is expected to sit behind
// the auth middleware.
func Register(api fiber.Router, h Handlers) {
	api.Post("/contents", h.Content.Upload)
	api.Get("/contents", h.Content.List)
	api.Get("/contents/:id", h.Content.Get)
	api.Post("/contents/:id/unschedule", h.Content.Unschedule)
	api.Post("/contents/:id/trash", h.Content.Trash)
	api.Post("/contents/:id/restore", h.Content.Restore)
	api.Post("/contents/:id/reassign", h.Content.Reassign)
	api.Delete("/contents/:id", h.Content.Delete)
	api.Post("/rpc/assign-next-slot", h.Content.AssignNextSlot)
	api.Get("/history", h.Content.History)

	api.Get("/slots", h.Slots.List)
	api.Post("/slots", h.Slots.Create)
	api.Put("/slots/:id", h.Slots.Update)
	api.Post("/slots/:id/activate", h.Slots.Activate)
	api.Post("/slots/:id/deactivate", h.Slots.Deactivate)
	api.Delete("/slots/:id", h.Slots.Delete)

	api.Get("/profiles", h.Profiles.List)
	api.Post("/profiles", h.Profiles.Create)
	api.Delete("/profiles/:id", h.Profiles.Delete)
	api.Get("/profiles/:id/preview", h.Profiles.Preview)

	api.Post("/dispatch/run", h.Dispatch.RunPass)
}
