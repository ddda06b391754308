package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/TicketPilot/internal/pkg/billing"
	"github.com/ManuelReschke/TicketPilot/internal/pkg/usercontext"
)

const stripeSignatureHeader = "Stripe-Signature"

type BillingController struct {
	engine Engine
}

func NewBillingController(engine Engine) *BillingController {
	return &BillingController{engine: engine}
}

func (bc *BillingController) HandleCheckout(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	url, err := bc.engine.StartCheckout(c.UserContext(), userCtx.UserID, userCtx.Email)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"url": url})
}

func (bc *BillingController) HandlePortal(c *fiber.Ctx) error {
	url, err := bc.engine.OpenPortal(c.UserContext(), usercontext.GetUserID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"url": url})
}

// HandleCancel asks the provider to cancel. The local plan changes when the
// provider confirms through the webhook.
func (bc *BillingController) HandleCancel(c *fiber.Ctx) error {
	if err := bc.engine.CancelSubscription(c.UserContext(), usercontext.GetUserID(c)); err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "cancellation_requested"})
}

// HandleStripeWebhook passes the raw body to the reconciler, since the
// signature covers the exact bytes. Events for unknown accounts are
// acknowledged so the provider does not redeliver them.
func (bc *BillingController) HandleStripeWebhook(c *fiber.Ctx) error {
	signature := c.Get(stripeSignatureHeader)
	payload := append([]byte(nil), c.Body()...)

	err := bc.engine.HandleProviderEvent(c.UserContext(), payload, signature)
	switch {
	case err == nil:
		return c.JSON(fiber.Map{"received": true})
	case errors.Is(err, billing.ErrEventAuthenticity):
		return jsonError(c, fiber.StatusBadRequest, "invalid_signature", "webhook signature verification failed")
	default:
		log.Errorf("[Billing] Webhook processing failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "webhook_failed", "webhook processing failed")
	}
}
