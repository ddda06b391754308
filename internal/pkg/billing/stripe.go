package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/ManuelReschke/TicketPilot/app/models"
	"github.com/ManuelReschke/TicketPilot/internal/pkg/env"
)

// StripeConfig holds the settings of the Stripe adapter.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	PriceID       string
	FrontendURL   string
}

// StripeProvider implements PaymentProvider on top of stripe-go.
type StripeProvider struct {
	api *client.API
	cfg StripeConfig
}

var _ PaymentProvider = (*StripeProvider)(nil)

func NewStripeProvider(cfg StripeConfig) *StripeProvider {
	cfg.FrontendURL = strings.TrimRight(cfg.FrontendURL, "/")
	return &StripeProvider{
		api: client.New(cfg.SecretKey, nil),
		cfg: cfg,
	}
}

func NewStripeProviderFromEnv() *StripeProvider {
	return NewStripeProvider(StripeConfig{
		SecretKey:     strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", "")),
		WebhookSecret: strings.TrimSpace(env.GetEnv("STRIPE_WEBHOOK_SECRET", "")),
		PriceID:       strings.TrimSpace(env.GetEnv("STRIPE_PRICE_ID_PRO", "")),
		FrontendURL:   strings.TrimSpace(env.GetEnv("FRONTEND_URL", "http://localhost:4200")),
	})
}

func (p *StripeProvider) Name() string {
	return models.BillingProviderStripe
}

// VerifyEvent checks the Stripe-Signature header against the exact payload
// bytes and maps the event onto the provider-neutral Event shape.
func (p *StripeProvider) VerifyEvent(payload []byte, signature string) (*Event, error) {
	if p.cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("%w: STRIPE_WEBHOOK_SECRET is not configured", ErrEventAuthenticity)
	}
	if strings.TrimSpace(signature) == "" {
		return nil, fmt.Errorf("%w: missing signature", ErrEventAuthenticity)
	}
	ev, err := webhook.ConstructEventWithOptions(payload, signature, p.cfg.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEventAuthenticity, err)
	}
	return parseStripeEvent(ev, payload)
}

func parseStripeEvent(ev stripe.Event, payload []byte) (*Event, error) {
	out := &Event{
		ID:      ev.ID,
		Type:    string(ev.Type),
		Kind:    EventUnknown,
		Payload: payload,
	}
	if ev.Data == nil {
		return out, nil
	}

	switch out.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &session); err != nil {
			return nil, fmt.Errorf("decode checkout session: %w", err)
		}
		out.Kind = EventCheckoutCompleted
		out.UserRef = strings.TrimSpace(session.ClientReferenceID)
		if session.Customer != nil {
			out.CustomerRef = session.Customer.ID
		}
		if session.Subscription != nil {
			out.SubscriptionRef = session.Subscription.ID
		}
		out.Status = string(stripe.SubscriptionStatusActive)

	case "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(ev.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("decode subscription: %w", err)
		}
		out.Kind = EventSubscriptionUpdated
		out.SubscriptionRef = sub.ID
		if sub.Customer != nil {
			out.CustomerRef = sub.Customer.ID
		}
		out.Status = strings.ToLower(string(sub.Status))
		if out.Type == "customer.subscription.deleted" {
			out.Status = string(stripe.SubscriptionStatusCanceled)
		}

	case "invoice.payment_failed":
		var inv stripe.Invoice
		if err := json.Unmarshal(ev.Data.Raw, &inv); err != nil {
			return nil, fmt.Errorf("decode invoice: %w", err)
		}
		out.Kind = EventPaymentFailed
		if inv.Customer != nil {
			out.CustomerRef = inv.Customer.ID
		}
		if inv.Subscription != nil {
			out.SubscriptionRef = inv.Subscription.ID
		}
	}
	return out, nil
}

func (p *StripeProvider) CreateCustomer(ctx context.Context, accountID uint, email string) (string, error) {
	params := &stripe.CustomerParams{}
	if e := strings.TrimSpace(email); e != "" {
		params.Email = stripe.String(e)
	}
	params.AddMetadata("userId", strconv.FormatUint(uint64(accountID), 10))
	params.Context = ctx
	// Concurrent first checkouts for one account get the same remote customer.
	params.SetIdempotencyKey(customerIdempotencyKey(accountID))

	c, err := p.api.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create customer: %w", err)
	}
	return c.ID, nil
}

func customerIdempotencyKey(accountID uint) string {
	return "customer-" + strconv.FormatUint(uint64(accountID), 10)
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, customerRef string, accountID uint) (string, error) {
	if p.cfg.PriceID == "" {
		return "", errors.New("STRIPE_PRICE_ID_PRO is not configured")
	}
	userRef := strconv.FormatUint(uint64(accountID), 10)
	params := &stripe.CheckoutSessionParams{
		Customer:          stripe.String(customerRef),
		ClientReferenceID: stripe.String(userRef),
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(p.cfg.PriceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL: stripe.String(p.cfg.FrontendURL + "/dashboard?upgrade=success"),
		CancelURL:  stripe.String(p.cfg.FrontendURL + "/dashboard?upgrade=canceled"),
	}
	params.AddMetadata("userId", userRef)
	params.Context = ctx

	s, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create checkout session: %w", err)
	}
	return s.URL, nil
}

func (p *StripeProvider) CreatePortalSession(ctx context.Context, customerRef string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerRef),
		ReturnURL: stripe.String(p.cfg.FrontendURL + "/dashboard"),
	}
	params.Context = ctx

	s, err := p.api.BillingPortalSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create portal session: %w", err)
	}
	return s.URL, nil
}

func (p *StripeProvider) CancelSubscription(ctx context.Context, subscriptionRef string) error {
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	if _, err := p.api.Subscriptions.Cancel(subscriptionRef, params); err != nil {
		return fmt.Errorf("stripe cancel subscription: %w", err)
	}
	return nil
}
