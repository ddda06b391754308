package billing

import (
	"context"
	"errors"
)

// ErrEventAuthenticity is returned when an inbound event fails signature
// verification. Nothing has been recorded or mutated at that point.
var ErrEventAuthenticity = errors.New("billing: event signature verification failed")

// PaymentProvider is the remote subscription system.
type PaymentProvider interface {
	Name() string
	VerifyEvent(payload []byte, signature string) (*Event, error)
	CreateCustomer(ctx context.Context, accountID uint, email string) (string, error)
	CreateCheckoutSession(ctx context.Context, customerRef string, accountID uint) (string, error)
	CreatePortalSession(ctx context.Context, customerRef string) (string, error)
	CancelSubscription(ctx context.Context, subscriptionRef string) error
}
