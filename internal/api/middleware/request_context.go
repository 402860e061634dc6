package middleware

import (
	"github.com/avataralabs/queuelabs-sub000/internal/logger"
	"github.com/gofiber/fiber/v2"
)

// RequestContext copies the id set by Fiber's requestid middleware into the
// user context so services can log it.
func RequestContext() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if id, ok := c.Locals("requestid").(string); ok && id != "" {
			c.SetUserContext(logger.WithRequestID(c.UserContext(), id))
		}
		return c.Next()
	}
}
