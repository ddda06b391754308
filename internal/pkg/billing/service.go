package billing

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/TicketPilot/internal/pkg/entitlements"
	"github.com/ManuelReschke/TicketPilot/internal/pkg/ledger"
)

var (
	ErrAlreadySubscribed = errors.New("billing: account already has an active pro subscription")
	ErrNoCustomer        = errors.New("billing: account has no payment customer")
	ErrNoSubscription    = errors.New("billing: account has no subscription")
)

// Service starts provider-side flows for an account: checkout, portal and
// cancellation. Local plan state only changes through the Reconciler.
type Service struct {
	ledger   *ledger.Ledger
	provider PaymentProvider
}

// NewService creates a billing service.
func NewService(l *ledger.Ledger, provider PaymentProvider) *Service {
	return &Service{ledger: l, provider: provider}
}

// StartCheckout returns a checkout URL for the pro plan. A remote customer is
// created only when the account has none; if a concurrent request linked one
// first, that customer is used.
func (s *Service) StartCheckout(ctx context.Context, accountID uint, email string) (string, error) {
	acc, err := s.ledger.Get(ctx, accountID)
	if err != nil {
		return "", err
	}
	if entitlements.IsUnlimited(acc) {
		return "", ErrAlreadySubscribed
	}

	customerRef := acc.CustomerRef()
	if customerRef == "" {
		created, err := s.provider.CreateCustomer(ctx, accountID, email)
		if err != nil {
			return "", err
		}
		customerRef, err = s.ledger.LinkCustomer(ctx, accountID, created)
		if err != nil {
			return "", err
		}
		if customerRef != created {
			log.Warnf("[Billing] Account %d linked customer %s concurrently, discarding %s", accountID, customerRef, created)
		}
	}

	return s.provider.CreateCheckoutSession(ctx, customerRef, accountID)
}

// OpenPortal returns a self-service portal URL for the linked customer.
func (s *Service) OpenPortal(ctx context.Context, accountID uint) (string, error) {
	acc, err := s.ledger.Get(ctx, accountID)
	if err != nil {
		return "", err
	}
	if acc.CustomerRef() == "" {
		return "", ErrNoCustomer
	}
	return s.provider.CreatePortalSession(ctx, acc.CustomerRef())
}

// CancelSubscription asks the provider to cancel the linked subscription. The
// account is downgraded when the provider confirms through a webhook event.
func (s *Service) CancelSubscription(ctx context.Context, accountID uint) error {
	acc, err := s.ledger.Get(ctx, accountID)
	if err != nil {
		return err
	}
	if acc.SubscriptionRef() == "" {
		return ErrNoSubscription
	}
	if err := s.provider.CancelSubscription(ctx, acc.SubscriptionRef()); err != nil {
		return err
	}
	log.Infof("[Billing] Cancellation requested for account %d subscription %s", accountID, acc.SubscriptionRef())
	return nil
}
