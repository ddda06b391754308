package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/TicketPilot/app/models"
	"github.com/ManuelReschke/TicketPilot/internal/pkg/ledger"
)

// Reconciler maps verified provider events onto ledger transitions. Every
// transition is expressed as a target state, so redelivered events settle on
// the same result.
type Reconciler struct {
	ledger   *ledger.Ledger
	provider PaymentProvider
	events   EventLog
}

// NewReconciler creates a reconciler. events may be nil, which disables the
// webhook event log.
func NewReconciler(l *ledger.Ledger, provider PaymentProvider, events EventLog) *Reconciler {
	return &Reconciler{ledger: l, provider: provider, events: events}
}

// HandleProviderEvent verifies, records and applies one inbound event.
// payload must be the raw request body. Events that cannot be matched to an
// account are acknowledged with a nil error.
func (r *Reconciler) HandleProviderEvent(ctx context.Context, payload []byte, signature string) error {
	ev, err := r.provider.VerifyEvent(payload, signature)
	if err != nil {
		log.Warnf("[Reconciler] Rejected %s event: %v", r.provider.Name(), err)
		if !errors.Is(err, ErrEventAuthenticity) {
			err = fmt.Errorf("%w: %v", ErrEventAuthenticity, err)
		}
		return err
	}

	var stored *models.BillingWebhookEvent
	if r.events != nil {
		var created bool
		created, stored, err = recordWebhookEvent(ctx, r.events, WebhookEventInput{
			Provider:        r.provider.Name(),
			ProviderEventID: ev.ID,
			EventType:       ev.Type,
			PayloadJSON:     string(payload),
		})
		if err != nil {
			return fmt.Errorf("record webhook event: %w", err)
		}
		if !created && stored.ProcessedSuccessfully() {
			log.Infof("[Reconciler] Duplicate event %s (%s) already processed", ev.ID, ev.Type)
			return nil
		}
	}

	procErr := r.Apply(ctx, ev)

	if stored != nil {
		msg := ""
		if procErr != nil {
			msg = procErr.Error()
		}
		if err := r.events.MarkWebhookProcessed(context.WithoutCancel(ctx), stored.ID, msg); err != nil {
			log.Errorf("[Reconciler] Failed to mark event %s processed: %v", ev.ID, err)
		}
	}
	return procErr
}

// Apply maps an already verified event onto the ledger.
func (r *Reconciler) Apply(ctx context.Context, ev *Event) error {
	switch ev.Kind {
	case EventCheckoutCompleted:
		return r.applyCheckoutCompleted(ctx, ev)
	case EventSubscriptionUpdated:
		return r.applySubscriptionUpdated(ctx, ev)
	case EventPaymentFailed:
		log.Warnf("[Reconciler] Payment failed for customer %s (subscription %s)", ev.CustomerRef, ev.SubscriptionRef)
		return nil
	default:
		log.Debugf("[Reconciler] Ignoring unhandled event type %s", ev.Type)
		return nil
	}
}

func (r *Reconciler) applyCheckoutCompleted(ctx context.Context, ev *Event) error {
	userID, err := strconv.ParseUint(ev.UserRef, 10, 64)
	if err != nil || userID == 0 {
		log.Warnf("[Reconciler] Checkout %s has no usable user reference %q", ev.ID, ev.UserRef)
		return nil
	}
	accountID := uint(userID)

	acc, err := r.ledger.SetPlan(ctx, accountID, checkoutChange(ev.SubscriptionRef))
	if errors.Is(err, ledger.ErrAccountNotFound) {
		log.Warnf("[Reconciler] Checkout %s references unknown account %d", ev.ID, accountID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("activate pro plan for account %d: %w", accountID, err)
	}

	if ev.CustomerRef != "" {
		linked, err := r.ledger.LinkCustomer(ctx, accountID, ev.CustomerRef)
		if err != nil {
			return fmt.Errorf("link customer for account %d: %w", accountID, err)
		}
		if linked != ev.CustomerRef {
			log.Warnf("[Reconciler] Account %d is linked to customer %s, checkout used %s", accountID, linked, ev.CustomerRef)
		}
	}

	log.Infof("[Reconciler] Account %d upgraded to %s (subscription %s)", accountID, acc.PlanType, acc.SubscriptionRef())
	return nil
}

func (r *Reconciler) applySubscriptionUpdated(ctx context.Context, ev *Event) error {
	acc, err := r.ledger.FindBySubscriptionRef(ctx, ev.SubscriptionRef)
	adopting := false
	if errors.Is(err, ledger.ErrAccountNotFound) {
		// The first update can overtake the checkout notification, so fall
		// back to the customer the subscription belongs to.
		acc, err = r.ledger.FindByCustomerRef(ctx, ev.CustomerRef)
		if errors.Is(err, ledger.ErrAccountNotFound) {
			log.Warnf("[Reconciler] No account for subscription %s / customer %s, ignoring %s",
				ev.SubscriptionRef, ev.CustomerRef, ev.Type)
			return nil
		}
		adopting = true
	}
	if err != nil {
		return fmt.Errorf("resolve account for subscription %s: %w", ev.SubscriptionRef, err)
	}

	if adopting && acc.SubscriptionRef() != "" {
		log.Infof("[Reconciler] Account %d already has subscription %s, ignoring %s for %s",
			acc.UserID, acc.SubscriptionRef(), ev.Type, ev.SubscriptionRef)
		return nil
	}
	if adopting && acc.SubscriptionStatus != models.SubscriptionNone {
		log.Infof("[Reconciler] Account %d is %s, not adopting subscription %s from %s",
			acc.UserID, acc.SubscriptionStatus, ev.SubscriptionRef, ev.Type)
		return nil
	}

	change, ok := transitionFor(ev.Status, adopting)
	if !ok {
		log.Infof("[Reconciler] Subscription %s status %q has no local transition", ev.SubscriptionRef, ev.Status)
		return nil
	}
	if adopting {
		change.RequireUnlinked = true
		if change.SubscriptionRef == nil && ev.SubscriptionRef != "" {
			change.SubscriptionRef = ledger.StringPtr(ev.SubscriptionRef)
		}
	}

	updated, err := r.ledger.SetPlan(ctx, acc.UserID, change)
	if errors.Is(err, ledger.ErrSubscriptionAlreadyLinked) {
		log.Infof("[Reconciler] Account %d was linked concurrently, ignoring %s", acc.UserID, ev.SubscriptionRef)
		return nil
	}
	if err != nil {
		return fmt.Errorf("apply subscription %s status %s to account %d: %w", ev.SubscriptionRef, ev.Status, acc.UserID, err)
	}

	log.Infof("[Reconciler] Account %d subscription %s now %s/%s", updated.UserID, ev.SubscriptionRef, updated.PlanType, updated.SubscriptionStatus)
	return nil
}
