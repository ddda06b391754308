package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/TicketPilot/app/repository"
	"github.com/ManuelReschke/TicketPilot/internal/pkg/billing"
	"github.com/ManuelReschke/TicketPilot/internal/pkg/cache"
	"github.com/ManuelReschke/TicketPilot/internal/pkg/database"
	"github.com/ManuelReschke/TicketPilot/internal/pkg/engine"
	"github.com/ManuelReschke/TicketPilot/internal/pkg/env"
	"github.com/ManuelReschke/TicketPilot/internal/pkg/generator"
	"github.com/ManuelReschke/TicketPilot/internal/pkg/jobqueue"
	"github.com/ManuelReschke/TicketPilot/internal/pkg/orchestrator"
	"github.com/ManuelReschke/TicketPilot/internal/pkg/router"
)

func main() {
	app, jobs := NewApplication()
	jobs.Start()

	go func() {
		addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
		if err := app.Listen(addr); err != nil {
			log.Fatalf("[API] Server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("[API] Shutting down")
	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		log.Errorf("[API] Shutdown: %v", err)
	}
	jobs.Stop()
}

func NewApplication() (*fiber.App, *jobqueue.Manager) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()
	repository.InitializeFactory(database.GetDB())

	repos := repository.GetGlobalRepositories()
	projects := repos.Project

	queue := jobqueue.NewQueue(cache.GetClient(), env.GetEnvInt("COMPENSATION_WORKERS", 2), projects)
	jobs := jobqueue.NewManager(queue, projects, jobqueue.ManagerConfig{
		SweepInterval: env.GetEnvDuration("ORPHAN_SWEEP_INTERVAL", 10*time.Minute),
		MaxAge:        env.GetEnvDuration("ORPHAN_MAX_AGE", 30*time.Minute),
	})

	cfg := orchestrator.DefaultConfig()
	cfg.GeneratorTimeout = env.GetEnvDuration("GENERATOR_TIMEOUT", cfg.GeneratorTimeout)

	eng := engine.New(engine.Deps{
		Accounts:    repos.Accounts,
		Projects:    projects,
		Events:      repos.WebhookEvents,
		Provider:    billing.NewStripeProviderFromEnv(),
		Generator:   generator.NewGeminiClientFromEnv(),
		Compensator: queue,
		Config:      cfg,
	})

	app := fiber.New(fiber.Config{
		BodyLimit: 1 << 20,
	})
	app.Use(recover.New(), logger.New())

	router.InstallRouter(app, router.Deps{
		Engine:         eng,
		Projects:       projects,
		Queue:          queue,
		LimiterStorage: cache.LimiterStorage(),
		RateLimitMax:   env.GetEnvInt("API_RATE_LIMIT", 60),
		GatewayToken:   env.GetEnv("GATEWAY_TOKEN", ""),
	})

	return app, jobs
}
