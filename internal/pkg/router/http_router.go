package router

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/TicketPilot/app/controllers"
)

// HttpRouter serves the unauthenticated routes: health and provider webhooks.
type HttpRouter struct {
	billing *controllers.BillingController
	queue   QueueInspector
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	app.Get("/health", h.handleHealth)

	// Billing provider webhooks (signature-verified in controller)
	app.Post("/webhooks/stripe", h.billing.HandleStripeWebhook)
}

// handleHealth reports the compensation backlog. An unreachable queue means
// failed generations are not being cleaned up, so the service is degraded.
func (h HttpRouter) handleHealth(c *fiber.Ctx) error {
	if h.queue == nil {
		return c.JSON(fiber.Map{"status": "ok"})
	}

	backlog, err := queueBacklog(c.UserContext(), h.queue)
	if err != nil {
		log.Warnf("[API] Health check: compensation queue unavailable: %v", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "degraded",
			"error":  "compensation queue unavailable",
		})
	}
	return c.JSON(fiber.Map{"status": "ok", "compensation_queue": backlog})
}

func queueBacklog(ctx context.Context, q QueueInspector) (fiber.Map, error) {
	pending, err := q.GetQueueSize(ctx)
	if err != nil {
		return nil, err
	}
	processing, err := q.GetProcessingSize(ctx)
	if err != nil {
		return nil, err
	}
	delayed, err := q.GetDelayedSize(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := q.GetJobStats(ctx)
	if err != nil {
		return nil, err
	}
	return fiber.Map{"pending": pending, "processing": processing, "awaiting_retry": delayed, "jobs": stats}, nil
}

func NewHttpRouter(deps Deps) *HttpRouter {
	return &HttpRouter{
		billing: controllers.NewBillingController(deps.Engine),
		queue:   deps.Queue,
	}
}
