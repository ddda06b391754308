package router

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/TicketPilot/app/controllers"
	"github.com/ManuelReschke/TicketPilot/internal/pkg/jobqueue"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// QueueInspector reports the compensation queue backlog.
type QueueInspector interface {
	GetJobStats(ctx context.Context) (map[jobqueue.JobStatus]int64, error)
	GetQueueSize(ctx context.Context) (int64, error)
	GetProcessingSize(ctx context.Context) (int64, error)
	GetDelayedSize(ctx context.Context) (int64, error)
}

// Deps are shared by all routers.
type Deps struct {
	Engine   controllers.Engine
	Projects controllers.ProjectReader
	Queue    QueueInspector

	// LimiterStorage backs the API rate limiter. nil keeps counters in memory.
	LimiterStorage fiber.Storage
	RateLimitMax   int
	GatewayToken   string
}

func InstallRouter(app *fiber.App, deps Deps) {
	// Webhooks first: they must not pass through the user context or limiter.
	setup(app, NewHttpRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
