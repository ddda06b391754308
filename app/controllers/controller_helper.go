package controllers

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/TicketPilot/app/models"
	"github.com/ManuelReschke/TicketPilot/internal/pkg/billing"
	"github.com/ManuelReschke/TicketPilot/internal/pkg/generator"
	"github.com/ManuelReschke/TicketPilot/internal/pkg/ledger"
	"github.com/ManuelReschke/TicketPilot/internal/pkg/orchestrator"
	"github.com/ManuelReschke/TicketPilot/internal/pkg/quota"
)

// Engine is the part of the engine facade the HTTP layer uses.
type Engine interface {
	RegisterAccount(ctx context.Context, userID uint) (*models.Account, error)
	EvaluateUsage(ctx context.Context, accountID uint) (quota.UsageWindow, error)
	RunSingleGeneration(ctx context.Context, accountID, projectID uint, opts generator.Options) (*orchestrator.Result, error)
	RunProjectGeneration(ctx context.Context, accountID uint, project orchestrator.ProjectInput, opts generator.Options) (*orchestrator.Result, error)
	EnrichTicket(ctx context.Context, accountID, ticketID uint) (*models.Ticket, error)
	HandleProviderEvent(ctx context.Context, payload []byte, signature string) error
	StartCheckout(ctx context.Context, accountID uint, email string) (string, error)
	OpenPortal(ctx context.Context, accountID uint) (string, error)
	CancelSubscription(ctx context.Context, accountID uint) error
}

var validate = validator.New()

func jsonError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": code, "message": message})
}

// writeError maps engine errors onto HTTP responses.
func writeError(c *fiber.Ctx, err error) error {
	var exceeded *quota.ExceededError
	var invalid validator.ValidationErrors

	switch {
	case errors.As(err, &exceeded):
		return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
			"error":   "quota_exceeded",
			"message": "generation limit reached for the current period",
			"usage":   exceeded.Window,
		})
	case errors.As(err, &invalid):
		return jsonError(c, fiber.StatusBadRequest, "validation_failed", invalid.Error())
	case errors.Is(err, ledger.ErrAccountNotFound):
		return jsonError(c, fiber.StatusNotFound, "account_not_found", "account not found")
	case errors.Is(err, orchestrator.ErrProjectNotFound):
		return jsonError(c, fiber.StatusNotFound, "project_not_found", "project not found")
	case errors.Is(err, orchestrator.ErrTicketNotFound):
		return jsonError(c, fiber.StatusNotFound, "ticket_not_found", "ticket not found")
	case errors.Is(err, billing.ErrAlreadySubscribed):
		return jsonError(c, fiber.StatusConflict, "already_subscribed", "account already has an active subscription")
	case errors.Is(err, billing.ErrNoCustomer):
		return jsonError(c, fiber.StatusConflict, "no_customer", "account has no billing customer")
	case errors.Is(err, billing.ErrNoSubscription):
		return jsonError(c, fiber.StatusConflict, "no_subscription", "account has no subscription")
	}

	switch orchestrator.FailedStage(err) {
	case orchestrator.StageGenerator:
		log.Warnf("[API] %s %s: %v", c.Method(), c.Path(), err)
		return jsonError(c, fiber.StatusBadGateway, "generation_failed", "ticket generation failed, no usage was charged")
	case orchestrator.StagePersistence:
		log.Errorf("[API] %s %s: %v", c.Method(), c.Path(), err)
		return jsonError(c, fiber.StatusInternalServerError, "persistence_failed", "saving the generated tickets failed, no usage was charged")
	}

	log.Errorf("[API] %s %s: %v", c.Method(), c.Path(), err)
	return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "request failed")
}

func paramID(c *fiber.Ctx, name string) (uint, bool) {
	id, err := c.ParamsInt(name)
	if err != nil || id <= 0 {
		return 0, false
	}
	return uint(id), true
}
