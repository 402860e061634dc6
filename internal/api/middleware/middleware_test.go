package middleware

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/avataralabs/queuelabs-sub000/internal/logger"
	"github.com/avataralabs/queuelabs-sub000/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

const secret = "test-secret"

func newApp() *fiber.App {
	app := fiber.New()
	app.Use(requestid.New(), RequestContext())
	api := app.Group("/api", NewAuthMiddleware(secret, "session").AuthMiddleware())
	api.Get("/whoami", func(c *fiber.Ctx) error {
		return c.SendString(c.Locals("user_id").(string) + "|" + logger.RequestIDFromContext(c.UserContext()))
	})
	return app
}

func TestAuthMiddleware(t *testing.T) {
	valid, err := utils.GenerateToken(secret, "7", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	forged, _ := utils.GenerateToken("other-secret", "7", time.Hour)

	tests := []struct {
		name   string
		header string
		cookie string
		want   int
	}{
		{"no credentials", "", "", fiber.StatusUnauthorized},
		{"bearer", "Bearer " + valid, "", fiber.StatusOK},
		{"lowercase bearer", "bearer " + valid, "", fiber.StatusOK},
		{"cookie", "", valid, fiber.StatusOK},
		{"forged", "Bearer " + forged, "", fiber.StatusUnauthorized},
		{"garbage cookie", "", "nope", fiber.StatusUnauthorized},
		{"basic auth", "Basic dXNlcjpwYXNz", "", fiber.StatusUnauthorized},
	}

	app := newApp()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/whoami", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.Header.Set("Cookie", "session="+tt.cookie)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestRequestContextCarriesRequestID(t *testing.T) {
	token, _ := utils.GenerateToken(secret, "7", time.Hour)
	req := httptest.NewRequest("GET", "/api/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Request-ID", "req-123")

	resp, err := newApp().Test(req)
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "7|req-123" {
		t.Fatalf("body = %q", body)
	}
}
