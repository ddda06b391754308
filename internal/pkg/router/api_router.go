package router

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/TicketPilot/app/controllers"
	"github.com/ManuelReschke/TicketPilot/internal/pkg/middleware"
	"github.com/ManuelReschke/TicketPilot/internal/pkg/usercontext"
)

type ApiRouter struct {
	deps Deps
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api")
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1",
		middleware.UserContextMiddleware(h.deps.GatewayToken),
		middleware.RequireAPIAuth,
		limiter.New(limiter.Config{
			Max:          h.deps.RateLimitMax,
			Expiration:   time.Minute,
			Storage:      h.deps.LimiterStorage,
			KeyGenerator: rateLimitKey,
			LimitReached: func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
					"error":   "rate_limited",
					"message": "too many requests",
				})
			},
		}),
	)

	account := controllers.NewAccountController(h.deps.Engine)
	generation := controllers.NewGenerationController(h.deps.Engine)
	billing := controllers.NewBillingController(h.deps.Engine)

	v1.Post("/account", account.HandleRegister)
	v1.Get("/usage", account.HandleUsage)

	v1.Post("/projects/generate", generation.HandleGenerateProject)
	v1.Post("/projects/:id/generate", generation.HandleGenerateForProject)
	v1.Post("/tickets/:id/enrich", generation.HandleEnrichTicket)

	if h.deps.Projects != nil {
		projects := controllers.NewProjectController(h.deps.Projects)
		v1.Get("/projects", projects.HandleList)
		v1.Get("/projects/:id/tickets", projects.HandleTickets)
	}

	v1.Post("/billing/checkout", billing.HandleCheckout)
	v1.Post("/billing/portal", billing.HandlePortal)
	v1.Post("/billing/cancel", billing.HandleCancel)
}

// rateLimitKey limits per user; auth runs first, so the user is always known.
func rateLimitKey(c *fiber.Ctx) string {
	return "user:" + strconv.FormatUint(uint64(usercontext.GetUserID(c)), 10)
}

func NewApiRouter(deps Deps) *ApiRouter {
	if deps.RateLimitMax <= 0 {
		deps.RateLimitMax = 60
	}
	return &ApiRouter{deps: deps}
}
