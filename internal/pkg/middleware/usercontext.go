package middleware

import (
	"crypto/subtle"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/TicketPilot/internal/pkg/usercontext"
)

// UserContextMiddleware builds the user context from the identity headers set
// by the authenticating gateway. When gatewayToken is not empty, the headers
// are only trusted if the request carries that token.
func UserContextMiddleware(gatewayToken string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(usercontext.KeyUserContext, resolveUserContext(c, gatewayToken))
		return c.Next()
	}
}

func resolveUserContext(c *fiber.Ctx, gatewayToken string) usercontext.UserContext {
	if gatewayToken != "" {
		got := c.Get(usercontext.HeaderGatewayToken)
		if subtle.ConstantTimeCompare([]byte(got), []byte(gatewayToken)) != 1 {
			return usercontext.UserContext{}
		}
	}

	raw := strings.TrimSpace(c.Get(usercontext.HeaderUserID))
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return usercontext.UserContext{}
	}
	return usercontext.UserContext{
		UserID:     uint(id),
		Email:      strings.TrimSpace(c.Get(usercontext.HeaderUserEmail)),
		IsLoggedIn: true,
	}
}
