package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/TicketPilot/internal/pkg/usercontext"
)

// RequireAPIAuth returns JSON 401 for requests without an authenticated user.
func RequireAPIAuth(c *fiber.Ctx) error {
	if !usercontext.IsLoggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "login required",
		})
	}
	return c.Next()
}
